// Package index records which page each member was placed in.
//
// The index is a SQLite database next to the page tree. It answers "where is
// member X" without scanning pages and lets the producer resume its sequence
// counter after a restart. Page files stay the source of truth: a lost or
// stale index never changes what readers see.
//
// # Database Configuration
//
//   - WAL mode: Concurrent reads during writes
//   - synchronous=NORMAL: Balance durability/performance
//   - busy_timeout=5000: Wait on lock contention
package index

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"

	_ "github.com/mattn/go-sqlite3"
)

//go:embed schema.sql
var schemaSQL string

// Schema version tracking:
// 0 - Initial schema (pre-migration)
// 1 - Added index on members.version_of for lookups by original id
const currentSchemaVersion = 1

// ErrNotIndexed is returned by PageOf for unknown members.
var ErrNotIndexed = errors.New("member not indexed")

// Entry is one placed member.
type Entry struct {
	Seq        int64  `json:"seq"`
	Folder     string `json:"folder"`
	MemberID   string `json:"member_id"`
	VersionOf  string `json:"version_of,omitempty"`
	Page       int    `json:"page"`
	Fragmenter string `json:"fragmenter"`
}

// PageCount is the number of indexed members on one page.
type PageCount struct {
	Page    int
	Members int
}

// Index is the SQLite-backed member index.
type Index struct {
	db *sql.DB
}

// Open creates or opens the index database at path.
// Applies required pragmas and migrations automatically.
func Open(path string) (*Index, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("open index: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("connect index: %w", err)
	}

	// SQLite only supports one writer at a time
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if err := applyPragmas(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("apply pragmas: %w", err)
	}
	if err := applySchema(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}
	return &Index{db: db}, nil
}

// Close closes the database connection.
func (x *Index) Close() error {
	if x == nil || x.db == nil {
		return nil
	}
	return x.db.Close()
}

// Record stores e. Recording a member twice keeps the first placement.
func (x *Index) Record(ctx context.Context, e Entry) error {
	_, err := x.db.ExecContext(ctx, `
		INSERT INTO members (seq, folder, member_id, version_of, page, fragmenter)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(folder, member_id) DO NOTHING
	`, e.Seq, e.Folder, e.MemberID, e.VersionOf, e.Page, e.Fragmenter)
	if err != nil {
		return fmt.Errorf("record member %s: %w", e.MemberID, err)
	}
	return nil
}

// PageOf returns the page holding id in folder. id may be a stored member id
// or the original id a member versions; for the latter the newest version
// wins. Unknown ids return ErrNotIndexed.
func (x *Index) PageOf(ctx context.Context, folder, id string) (Entry, error) {
	row := x.db.QueryRowContext(ctx, `
		SELECT seq, folder, member_id, version_of, page, fragmenter
		FROM members
		WHERE folder = ? AND (member_id = ? OR version_of = ?)
		ORDER BY seq DESC
		LIMIT 1
	`, folder, id, id)

	var e Entry
	err := row.Scan(&e.Seq, &e.Folder, &e.MemberID, &e.VersionOf, &e.Page, &e.Fragmenter)
	if errors.Is(err, sql.ErrNoRows) {
		return Entry{}, fmt.Errorf("page of %s: %w", id, ErrNotIndexed)
	}
	if err != nil {
		return Entry{}, fmt.Errorf("page of %s: %w", id, err)
	}
	return e, nil
}

// PageCounts returns the number of indexed members per page of folder,
// ordered by page.
func (x *Index) PageCounts(ctx context.Context, folder string) ([]PageCount, error) {
	rows, err := x.db.QueryContext(ctx, `
		SELECT page, COUNT(*)
		FROM members
		WHERE folder = ?
		GROUP BY page
		ORDER BY page ASC
	`, folder)
	if err != nil {
		return nil, fmt.Errorf("query page counts: %w", err)
	}
	defer rows.Close()

	var out []PageCount
	for rows.Next() {
		var pc PageCount
		if err := rows.Scan(&pc.Page, &pc.Members); err != nil {
			return nil, fmt.Errorf("scan page count: %w", err)
		}
		out = append(out, pc)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate page counts: %w", err)
	}
	return out, nil
}

// MaxSeq returns the highest recorded sequence number, 0 for an empty index.
func (x *Index) MaxSeq(ctx context.Context) (int64, error) {
	var seq sql.NullInt64
	if err := x.db.QueryRowContext(ctx, "SELECT MAX(seq) FROM members").Scan(&seq); err != nil {
		return 0, fmt.Errorf("max seq: %w", err)
	}
	return seq.Int64, nil
}

func applyPragmas(db *sql.DB) error {
	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA busy_timeout = 5000",
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			return fmt.Errorf("execute %q: %w", pragma, err)
		}
	}
	return nil
}

func applySchema(db *sql.DB) error {
	if _, err := db.Exec(schemaSQL); err != nil {
		return fmt.Errorf("execute schema: %w", err)
	}
	if err := runMigrations(db); err != nil {
		return fmt.Errorf("run migrations: %w", err)
	}
	return nil
}

// runMigrations applies incremental schema migrations based on user_version.
func runMigrations(db *sql.DB) error {
	var version int
	if err := db.QueryRow("PRAGMA user_version").Scan(&version); err != nil {
		return fmt.Errorf("get user_version: %w", err)
	}

	if version < 1 {
		if err := migrateToV1(db); err != nil {
			return err
		}
	}

	if _, err := db.Exec(fmt.Sprintf("PRAGMA user_version = %d", currentSchemaVersion)); err != nil {
		return fmt.Errorf("set user_version: %w", err)
	}
	return nil
}

func migrateToV1(db *sql.DB) error {
	_, err := db.Exec(`
		CREATE INDEX IF NOT EXISTS idx_members_version_of
		ON members(folder, version_of)
	`)
	if err != nil {
		return fmt.Errorf("migrate to v1: %w", err)
	}
	return nil
}
