// Package config loads producer settings from a YAML file and the
// environment, and validates them against an embedded CUE schema.
//
// Precedence, lowest first: built-in defaults, the YAML file, environment
// variables.
package config

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	"gopkg.in/yaml.v3"

	"github.com/roach88/ldes/internal/errs"
	"github.com/roach88/ldes/internal/fragment"
)

//go:embed schema.cue
var schemaCUE string

// Environment variables that override file settings.
const (
	EnvBaseFolder         = "BASE_FOLDER"
	EnvBaseURL            = "LDES_BASE"
	EnvPageResourcesCount = "PAGE_RESOURCES_COUNT"
	EnvSubFolderNodeCount = "SUBFOLDER_NODE_COUNT"
	EnvFolderDepth        = "FOLDER_DEPTH"
	EnvFragmenter         = "LDES_FRAGMENTER"
	EnvLogLevel           = "LDES_PRODUCER_LOG_LEVEL"
	EnvIndexPath          = "LDES_INDEX_PATH"
)

// Config holds producer settings.
type Config struct {
	BaseFolder         string `yaml:"base_folder" json:"base_folder"`
	BaseURL            string `yaml:"base_url" json:"base_url"`
	PageResourcesCount int    `yaml:"page_resources_count" json:"page_resources_count"`
	SubFolderNodeCount int    `yaml:"sub_folder_node_count" json:"sub_folder_node_count"`
	FolderDepth        int    `yaml:"folder_depth" json:"folder_depth"`
	DefaultFragmenter  string `yaml:"default_fragmenter" json:"default_fragmenter"`
	PrefixPath         string `yaml:"prefix_path" json:"prefix_path"`
	IndexPath          string `yaml:"index_path" json:"index_path"` // "" disables the member index
	Watch              bool   `yaml:"watch" json:"watch"`
	LogLevel           string `yaml:"log_level" json:"log_level"`
	LogFormat          string `yaml:"log_format" json:"log_format"`
}

// Default returns the built-in settings.
func Default() Config {
	return Config{
		BaseFolder:         "./data",
		BaseURL:            "http://localhost/",
		PageResourcesCount: 10,
		SubFolderNodeCount: 10,
		FolderDepth:        1,
		DefaultFragmenter:  fragment.TimeFragmenter,
		PrefixPath:         fragment.DefaultPrefixPath,
		LogLevel:           "info",
		LogFormat:          "text",
	}
}

// Load reads path (optional; "" skips the file), applies environment
// overrides and validates the result. Invalid settings are InvalidArgument.
func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		b, err := os.ReadFile(path)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return Config{}, errs.New(errs.CodeInvalidArgument, "load config",
					"config file does not exist").WithPath(path)
			}
			return Config{}, fmt.Errorf("load config: %w", err)
		}
		if err := yaml.Unmarshal(b, &cfg); err != nil {
			return Config{}, errs.Wrap(errs.CodeInvalidArgument, "load config", err).WithPath(path)
		}
	}

	if err := cfg.applyEnv(os.LookupEnv); err != nil {
		return Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c *Config) applyEnv(lookup func(string) (string, bool)) error {
	str := func(key string, dst *string) {
		if v, ok := lookup(key); ok && v != "" {
			*dst = v
		}
	}
	num := func(key string, dst *int) error {
		v, ok := lookup(key)
		if !ok || v == "" {
			return nil
		}
		n, err := strconv.Atoi(strings.TrimSpace(v))
		if err != nil {
			return errs.New(errs.CodeInvalidArgument, "load config",
				fmt.Sprintf("%s must be an integer, got %q", key, v))
		}
		*dst = n
		return nil
	}

	str(EnvBaseFolder, &c.BaseFolder)
	str(EnvBaseURL, &c.BaseURL)
	str(EnvFragmenter, &c.DefaultFragmenter)
	str(EnvLogLevel, &c.LogLevel)
	str(EnvIndexPath, &c.IndexPath)
	if err := num(EnvPageResourcesCount, &c.PageResourcesCount); err != nil {
		return err
	}
	if err := num(EnvSubFolderNodeCount, &c.SubFolderNodeCount); err != nil {
		return err
	}
	if err := num(EnvFolderDepth, &c.FolderDepth); err != nil {
		return err
	}
	c.LogLevel = strings.ToLower(c.LogLevel)
	return nil
}

// Validate checks c against the embedded CUE schema.
func (c Config) Validate() error {
	ctx := cuecontext.New()
	schema := ctx.CompileString(schemaCUE, cue.Filename("schema.cue"))
	if err := schema.Err(); err != nil {
		return fmt.Errorf("compile config schema: %w", err)
	}

	def := schema.LookupPath(cue.ParsePath("#Config"))
	v := def.Unify(ctx.Encode(c))
	if err := v.Validate(cue.Concrete(true)); err != nil {
		return errs.Wrap(errs.CodeInvalidArgument, "validate config", err)
	}

	if c.FolderDepth > 1 && c.SubFolderNodeCount == 0 {
		return errs.New(errs.CodeInvalidArgument, "validate config",
			"folder_depth > 1 requires sub_folder_node_count > 0")
	}
	return nil
}
