package repository

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
)

var (
	// ErrRunNotFound is returned when no run has the requested id.
	ErrRunNotFound = errors.New("upload run not found")
	// ErrRunExists is returned when a run id was already recorded.
	ErrRunExists = errors.New("upload run already exists")
)

type uploadRunStore interface {
	InsertUploadRun(ctx context.Context, run UploadRun, failures []RunFailure) error
	GetUploadRun(ctx context.Context, runID pgtype.UUID) (UploadRun, error)
	ListRunFailures(ctx context.Context, runID pgtype.UUID) ([]RunFailure, error)
	ListRecentRuns(ctx context.Context, courseID string, limit int32) ([]UploadRun, error)
}

// UploadRunRepository persists upload history.
type UploadRunRepository struct {
	store uploadRunStore
}

func NewUploadRunRepository(store uploadRunStore) *UploadRunRepository {
	return &UploadRunRepository{store: store}
}

// Save stores a finished run. Failures inherit the run id.
func (r *UploadRunRepository) Save(ctx context.Context, run UploadRun, failures []RunFailure) error {
	if !run.RunID.Valid {
		return errors.New("upload run id is required")
	}
	for i := range failures {
		failures[i].RunID = run.RunID
	}
	if run.Report == nil {
		run.Report = []byte("{}")
	}
	return r.store.InsertUploadRun(ctx, run, failures)
}

// Get loads a run with its failures.
func (r *UploadRunRepository) Get(ctx context.Context, runID uuid.UUID) (UploadRun, []RunFailure, error) {
	id := PGUUID(runID)
	run, err := r.store.GetUploadRun(ctx, id)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return UploadRun{}, nil, ErrRunNotFound
		}
		return UploadRun{}, nil, err
	}
	failures, err := r.store.ListRunFailures(ctx, id)
	if err != nil {
		return UploadRun{}, nil, err
	}
	return run, failures, nil
}

// Recent lists the latest runs for a course, newest first.
func (r *UploadRunRepository) Recent(ctx context.Context, courseID string, limit int) ([]UploadRun, error) {
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	return r.store.ListRecentRuns(ctx, courseID, int32(limit))
}

// PGUUID converts a uuid to its pgtype form.
func PGUUID(id uuid.UUID) pgtype.UUID {
	return pgtype.UUID{Bytes: id, Valid: true}
}
