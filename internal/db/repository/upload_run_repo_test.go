package repository

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
)

type mockUploadRunStore struct {
	mock.Mock
}

func (m *mockUploadRunStore) InsertUploadRun(ctx context.Context, run UploadRun, failures []RunFailure) error {
	return m.Called(ctx, run, failures).Error(0)
}

func (m *mockUploadRunStore) GetUploadRun(ctx context.Context, runID pgtype.UUID) (UploadRun, error) {
	args := m.Called(ctx, runID)
	return args.Get(0).(UploadRun), args.Error(1)
}

func (m *mockUploadRunStore) ListRunFailures(ctx context.Context, runID pgtype.UUID) ([]RunFailure, error) {
	args := m.Called(ctx, runID)
	return args.Get(0).([]RunFailure), args.Error(1)
}

func (m *mockUploadRunStore) ListRecentRuns(ctx context.Context, courseID string, limit int32) ([]UploadRun, error) {
	args := m.Called(ctx, courseID, limit)
	return args.Get(0).([]UploadRun), args.Error(1)
}

func TestUploadRunRepository_SaveStampsFailures(t *testing.T) {
	store := new(mockUploadRunStore)
	repo := NewUploadRunRepository(store)

	run := UploadRun{RunID: uuidFromByte(1), CourseID: "101", Status: "partial", Total: 3, Succeeded: 2}
	failures := []RunFailure{{Position: 2, Status: 400, Body: "bad"}}

	expectedRun := run
	expectedRun.Report = []byte("{}")
	expectedFailures := []RunFailure{{RunID: run.RunID, Position: 2, Status: 400, Body: "bad"}}
	store.On("InsertUploadRun", mock.Anything, expectedRun, expectedFailures).Return(nil)

	assert.NoError(t, repo.Save(context.Background(), run, failures))
	store.AssertExpectations(t)
}

func TestUploadRunRepository_SaveRequiresID(t *testing.T) {
	store := new(mockUploadRunStore)
	repo := NewUploadRunRepository(store)

	err := repo.Save(context.Background(), UploadRun{CourseID: "101"}, nil)
	assert.Error(t, err)
	store.AssertNotCalled(t, "InsertUploadRun", mock.Anything, mock.Anything, mock.Anything)
}

func TestUploadRunRepository_Get(t *testing.T) {
	store := new(mockUploadRunStore)
	repo := NewUploadRunRepository(store)

	id := uuid.New()
	run := UploadRun{RunID: PGUUID(id), CourseID: "101", Status: "completed"}
	failures := []RunFailure{{RunID: PGUUID(id), Position: 4, Error: "no response"}}
	store.On("GetUploadRun", mock.Anything, PGUUID(id)).Return(run, nil)
	store.On("ListRunFailures", mock.Anything, PGUUID(id)).Return(failures, nil)

	gotRun, gotFailures, err := repo.Get(context.Background(), id)
	assert.NoError(t, err)
	assert.Equal(t, run, gotRun)
	assert.Equal(t, failures, gotFailures)
	store.AssertExpectations(t)
}

func TestUploadRunRepository_GetMissing(t *testing.T) {
	store := new(mockUploadRunStore)
	repo := NewUploadRunRepository(store)

	id := uuid.New()
	store.On("GetUploadRun", mock.Anything, PGUUID(id)).Return(UploadRun{}, pgx.ErrNoRows)

	_, _, err := repo.Get(context.Background(), id)
	assert.True(t, errors.Is(err, ErrRunNotFound))
	store.AssertNotCalled(t, "ListRunFailures", mock.Anything, mock.Anything)
}

func TestUploadRunRepository_RecentClampsLimit(t *testing.T) {
	store := new(mockUploadRunStore)
	repo := NewUploadRunRepository(store)

	store.On("ListRecentRuns", mock.Anything, "101", int32(20)).Return([]UploadRun{}, nil).Twice()

	_, err := repo.Recent(context.Background(), "101", 0)
	assert.NoError(t, err)
	_, err = repo.Recent(context.Background(), "101", 500)
	assert.NoError(t, err)
	store.AssertExpectations(t)
}

func TestInsertErrorMapsDuplicateRunID(t *testing.T) {
	err := insertError(&pgconn.PgError{Code: "23505", ConstraintName: "upload_runs_pkey"})
	assert.ErrorIs(t, err, ErrRunExists)

	other := errors.New("connection reset")
	err = insertError(other)
	assert.ErrorIs(t, err, other)
	assert.NotErrorIs(t, err, ErrRunExists)
}
