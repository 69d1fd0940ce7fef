package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"
)

// UploadRun is one row of upload_runs.
type UploadRun struct {
	RunID        pgtype.UUID
	CourseID     string
	AssignmentID string
	Title        string
	Status       string
	Total        int32
	Succeeded    int32
	Report       []byte
	StartedAt    pgtype.Timestamptz
	FinishedAt   pgtype.Timestamptz
}

// RunFailure is one row of upload_run_failures.
type RunFailure struct {
	RunID    pgtype.UUID
	Position int32
	Title    string
	Status   int32
	Body     string
	Error    string
}

// PGStore runs the upload history queries against a pgx pool.
type PGStore struct {
	pool *pgxpool.Pool
}

func NewPGStore(pool *pgxpool.Pool) *PGStore {
	return &PGStore{pool: pool}
}

const insertUploadRun = `
INSERT INTO upload_runs (run_id, course_id, assignment_id, title, status, total, succeeded, report, started_at, finished_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`

const insertRunFailure = `
INSERT INTO upload_run_failures (run_id, position, title, status, body, error)
VALUES ($1, $2, $3, $4, $5, $6)`

// InsertUploadRun writes the run and its failures in one transaction.
func (s *PGStore) InsertUploadRun(ctx context.Context, run UploadRun, failures []RunFailure) error {
	return pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, insertUploadRun,
			run.RunID, run.CourseID, run.AssignmentID, run.Title, run.Status,
			run.Total, run.Succeeded, run.Report, run.StartedAt, run.FinishedAt,
		); err != nil {
			return insertError(err)
		}

		batch := &pgx.Batch{}
		for _, f := range failures {
			batch.Queue(insertRunFailure, run.RunID, f.Position, f.Title, f.Status, f.Body, f.Error)
		}
		if batch.Len() == 0 {
			return nil
		}
		if err := tx.SendBatch(ctx, batch).Close(); err != nil {
			return fmt.Errorf("insert run failures: %w", err)
		}
		return nil
	})
}

const uniqueViolation = "23505"

func insertError(err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
		return fmt.Errorf("insert upload run: %w", ErrRunExists)
	}
	return fmt.Errorf("insert upload run: %w", err)
}

const getUploadRun = `
SELECT run_id, course_id, assignment_id, title, status, total, succeeded, report, started_at, finished_at
FROM upload_runs WHERE run_id = $1`

func (s *PGStore) GetUploadRun(ctx context.Context, runID pgtype.UUID) (UploadRun, error) {
	var r UploadRun
	err := s.pool.QueryRow(ctx, getUploadRun, runID).Scan(
		&r.RunID, &r.CourseID, &r.AssignmentID, &r.Title, &r.Status,
		&r.Total, &r.Succeeded, &r.Report, &r.StartedAt, &r.FinishedAt,
	)
	return r, err
}

const listRunFailures = `
SELECT run_id, position, title, status, body, error
FROM upload_run_failures WHERE run_id = $1 ORDER BY position`

func (s *PGStore) ListRunFailures(ctx context.Context, runID pgtype.UUID) ([]RunFailure, error) {
	rows, err := s.pool.Query(ctx, listRunFailures, runID)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (RunFailure, error) {
		var f RunFailure
		err := row.Scan(&f.RunID, &f.Position, &f.Title, &f.Status, &f.Body, &f.Error)
		return f, err
	})
}

const listRecentRuns = `
SELECT run_id, course_id, assignment_id, title, status, total, succeeded, report, started_at, finished_at
FROM upload_runs WHERE course_id = $1 ORDER BY started_at DESC LIMIT $2`

func (s *PGStore) ListRecentRuns(ctx context.Context, courseID string, limit int32) ([]UploadRun, error) {
	rows, err := s.pool.Query(ctx, listRecentRuns, courseID, limit)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (UploadRun, error) {
		var r UploadRun
		err := row.Scan(&r.RunID, &r.CourseID, &r.AssignmentID, &r.Title, &r.Status,
			&r.Total, &r.Succeeded, &r.Report, &r.StartedAt, &r.FinishedAt)
		return r, err
	})
}
