package harness

import "github.com/roach88/ldes/internal/producer"

// TraceEvent records the outcome of one flow step.
type TraceEvent struct {
	Seq       int64  `json:"seq"`
	Op        string `json:"op"`
	Folder    string `json:"folder,omitempty"`
	Page      int    `json:"page,omitempty"`
	Members   int    `json:"members,omitempty"`
	Pages     []int  `json:"pages,omitempty"` // pages an add placed members on
	Immutable bool   `json:"immutable,omitempty"`
	Error     string `json:"error,omitempty"` // errs code of a failed step
}

// FolderSnapshot is the page graph of one folder after the flow.
type FolderSnapshot struct {
	Folder string                 `json:"folder"`
	Pages  []producer.PageSummary `json:"pages"`
}

// Result is the outcome of a scenario execution.
type Result struct {
	// Pass indicates overall test success: every expect clause and
	// assertion matched.
	Pass bool `json:"pass"`

	// Trace contains one event per flow step, in order.
	Trace []TraceEvent `json:"trace"`

	// Folders holds the final page graph of every folder the flow touched,
	// sorted by folder name.
	Folders []FolderSnapshot `json:"folders"`

	// Errors contains validation error messages.
	// Empty if Pass is true.
	Errors []string `json:"errors,omitempty"`
}

// NewResult creates a new passing result.
// Used as the starting point for test execution.
func NewResult() *Result {
	return &Result{
		Pass:    true,
		Trace:   []TraceEvent{},
		Folders: []FolderSnapshot{},
		Errors:  []string{},
	}
}

// AddError adds a validation error and marks the result as failed.
func (r *Result) AddError(err string) {
	r.Errors = append(r.Errors, err)
	r.Pass = false
}

// Folder returns the snapshot of folder, if the flow touched it.
func (r *Result) Folder(folder string) (FolderSnapshot, bool) {
	for _, f := range r.Folders {
		if f.Folder == folder {
			return f, true
		}
	}
	return FolderSnapshot{}, false
}
