package upload

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgtype"

	"github.com/gokatarajesh/quiz-uploader/internal/db/repository"
)

// History stores run reports in Postgres.
type History struct {
	repo *repository.UploadRunRepository
}

var _ RunRecorder = (*History)(nil)

func NewHistory(repo *repository.UploadRunRepository) *History {
	return &History{repo: repo}
}

func (h *History) Record(ctx context.Context, rep Report) error {
	id, err := uuid.Parse(rep.RunID)
	if err != nil {
		return fmt.Errorf("run id: %w", err)
	}
	raw, err := json.Marshal(rep)
	if err != nil {
		return err
	}

	run := repository.UploadRun{
		RunID:        repository.PGUUID(id),
		CourseID:     rep.CourseID,
		AssignmentID: rep.AssignmentID,
		Title:        rep.Title,
		Status:       rep.Status,
		Total:        int32(rep.Total),
		Succeeded:    int32(rep.Succeeded),
		Report:       raw,
		StartedAt:    pgtype.Timestamptz{Time: rep.StartedAt, Valid: true},
		FinishedAt:   pgtype.Timestamptz{Time: rep.FinishedAt, Valid: true},
	}
	failures := make([]repository.RunFailure, 0, len(rep.Failures))
	for _, f := range rep.Failures {
		failures = append(failures, repository.RunFailure{
			Position: int32(f.Position),
			Title:    f.Title,
			Status:   int32(f.Status),
			Body:     f.Body,
			Error:    f.Err,
		})
	}
	return h.repo.Save(ctx, run, failures)
}

// Get loads a stored report. Failures come from their own table.
func (h *History) Get(ctx context.Context, runID string) (Report, error) {
	id, err := uuid.Parse(runID)
	if err != nil {
		return Report{}, repository.ErrRunNotFound
	}
	run, failures, err := h.repo.Get(ctx, id)
	if err != nil {
		return Report{}, err
	}

	var rep Report
	if len(run.Report) > 0 {
		if err := json.Unmarshal(run.Report, &rep); err != nil {
			return Report{}, fmt.Errorf("decode stored report: %w", err)
		}
	}
	rep.RunID = runID
	rep.CourseID = run.CourseID
	rep.AssignmentID = run.AssignmentID
	rep.Title = run.Title
	rep.Status = run.Status
	rep.Total = int(run.Total)
	rep.Succeeded = int(run.Succeeded)
	rep.StartedAt = run.StartedAt.Time
	rep.FinishedAt = run.FinishedAt.Time
	rep.Failures = nil
	for _, f := range failures {
		rep.Failures = append(rep.Failures, Failure{
			Position: int(f.Position),
			Title:    f.Title,
			Status:   int(f.Status),
			Body:     f.Body,
			Err:      f.Error,
		})
	}
	return rep, nil
}

// RunSummary is one row of the recent-runs listing.
type RunSummary struct {
	RunID        string    `json:"run_id"`
	CourseID     string    `json:"course_id"`
	AssignmentID string    `json:"assignment_id"`
	Title        string    `json:"title"`
	Status       string    `json:"status"`
	Total        int       `json:"total"`
	Succeeded    int       `json:"succeeded"`
	StartedAt    time.Time `json:"started_at"`
}

// Recent lists the latest runs for a course, newest first.
func (h *History) Recent(ctx context.Context, courseID string, limit int) ([]RunSummary, error) {
	runs, err := h.repo.Recent(ctx, courseID, limit)
	if err != nil {
		return nil, err
	}
	out := make([]RunSummary, 0, len(runs))
	for _, run := range runs {
		id := ""
		if run.RunID.Valid {
			id = uuid.UUID(run.RunID.Bytes).String()
		}
		out = append(out, RunSummary{
			RunID:        id,
			CourseID:     run.CourseID,
			AssignmentID: run.AssignmentID,
			Title:        run.Title,
			Status:       run.Status,
			Total:        int(run.Total),
			Succeeded:    int(run.Succeeded),
			StartedAt:    run.StartedAt.Time,
		})
	}
	return out, nil
}
