package upload

import (
	"time"

	"github.com/gokatarajesh/quiz-uploader/internal/items"
	"github.com/gokatarajesh/quiz-uploader/internal/quiz"
	"github.com/gokatarajesh/quiz-uploader/internal/quiz/tags"
)

// Source formats accepted in Request.Format.
const (
	FormatMarkup = "markup"
	FormatYAML   = "yaml"
	FormatJSON   = "json"
)

// Run statuses stored with each report.
const (
	StatusCompleted = "completed"
	StatusPartial   = "partial"
	StatusFailed    = "failed"
	StatusBlocked   = "blocked"
	StatusDryRun    = "dry_run"
)

// Request describes one upload. Without an AssignmentID a new quiz titled
// Title is created in CourseID.
type Request struct {
	RunID        string `json:"run_id,omitempty"`
	Source       string `json:"source"`
	Format       string `json:"format,omitempty"`
	CourseID     string `json:"course_id"`
	AssignmentID string `json:"assignment_id,omitempty"`
	Title        string `json:"title,omitempty"`
	Description  string `json:"description,omitempty"`
	ModuleName   string `json:"module_name,omitempty"`
	Reset        bool   `json:"reset,omitempty"`
	DryRun       bool   `json:"dry_run,omitempty"`
}

// PreviewItem is one built item with its validation outcome.
type PreviewItem struct {
	Position    int        `json:"position"`
	Type        quiz.Type  `json:"type"`
	Item        items.Item `json:"item"`
	Problems    []string   `json:"problems,omitempty"`
	Ambiguities []string   `json:"ambiguities,omitempty"`
	Err         string     `json:"error,omitempty"`
}

// Preview is the parse/build/validate result for a source, without any
// Canvas calls.
type Preview struct {
	Items    []PreviewItem   `json:"items"`
	Pages    []tags.QuizPage `json:"pages,omitempty"`
	Warnings []string        `json:"warnings,omitempty"`
}

// Invalid counts items that failed to build or have validation problems.
func (p Preview) Invalid() int {
	n := 0
	for _, it := range p.Items {
		if it.Err != "" || len(it.Problems) > 0 {
			n++
		}
	}
	return n
}

// Failure is an item that did not land in the quiz.
type Failure struct {
	Position int    `json:"position"`
	Title    string `json:"title,omitempty"`
	Status   int    `json:"status,omitempty"`
	Body     string `json:"body,omitempty"`
	Err      string `json:"error,omitempty"`
}

// Report summarizes a run.
type Report struct {
	RunID        string        `json:"run_id"`
	Status       string        `json:"status"`
	CourseID     string        `json:"course_id"`
	AssignmentID string        `json:"assignment_id,omitempty"`
	Title        string        `json:"title,omitempty"`
	QuizURL      string        `json:"quiz_url,omitempty"`
	Total        int           `json:"total"`
	Succeeded    int           `json:"succeeded"`
	Deleted      int           `json:"deleted,omitempty"`
	Published    bool          `json:"published"`
	ModuleID     string        `json:"module_id,omitempty"`
	Failures     []Failure     `json:"failures,omitempty"`
	Warnings     []string      `json:"warnings,omitempty"`
	Preview      []PreviewItem `json:"preview,omitempty"`
	StartedAt    time.Time     `json:"started_at"`
	FinishedAt   time.Time     `json:"finished_at"`
}

// Event kinds published while a run progresses.
const (
	EventStarted  = "started"
	EventItem     = "item"
	EventFinished = "finished"
)

// Event is a progress notification for one run.
type Event struct {
	RunID    string `json:"run_id"`
	Kind     string `json:"kind"`
	Position int    `json:"position,omitempty"`
	Total    int    `json:"total"`
	OK       bool   `json:"ok,omitempty"`
	Status   int    `json:"status,omitempty"`
	Message  string `json:"message,omitempty"`
}
