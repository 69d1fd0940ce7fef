package upload

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/gokatarajesh/quiz-uploader/internal/canvas"
	"github.com/gokatarajesh/quiz-uploader/internal/db/repository"
	httperrors "github.com/gokatarajesh/quiz-uploader/pkg/http/errors"
)

const maxSourceBytes = 2 << 20

// RunReader loads stored reports.
type RunReader interface {
	Get(ctx context.Context, runID string) (Report, error)
	Recent(ctx context.Context, courseID string, limit int) ([]RunSummary, error)
}

// HTTPHandlers exposes previews, uploads and run history over REST.
type HTTPHandlers struct {
	service *Service
	history RunReader
	queue   chan<- Request
	logger  zerolog.Logger
}

func NewHTTPHandlers(service *Service, history RunReader, queue chan<- Request, logger zerolog.Logger) *HTTPHandlers {
	return &HTTPHandlers{
		service: service,
		history: history,
		queue:   queue,
		logger:  logger.With().Str("component", "upload_http").Logger(),
	}
}

func (h *HTTPHandlers) decode(w http.ResponseWriter, r *http.Request) (Request, bool) {
	var req Request
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxSourceBytes)).Decode(&req); err != nil {
		httperrors.RespondBadRequest(w, httperrors.ErrCodeInvalidRequest, "Invalid JSON payload")
		return req, false
	}
	if strings.TrimSpace(req.Source) == "" {
		httperrors.RespondValidationError(w, httperrors.ErrCodeMissingField, "source is required", "source")
		return req, false
	}
	return req, true
}

// CreatePreview handles POST /v1/previews
func (h *HTTPHandlers) CreatePreview(w http.ResponseWriter, r *http.Request) {
	req, ok := h.decode(w, r)
	if !ok {
		return
	}
	preview, err := h.service.Preview(r.Context(), req)
	if err != nil {
		h.respondSourceError(w, err)
		return
	}
	httperrors.RespondJSON(w, http.StatusOK, preview)
}

// CreateUpload handles POST /v1/uploads. Runs are queued and reported over
// the progress stream unless ?wait=true or dry_run is set.
func (h *HTTPHandlers) CreateUpload(w http.ResponseWriter, r *http.Request) {
	req, ok := h.decode(w, r)
	if !ok {
		return
	}
	if req.CourseID == "" && !req.DryRun {
		httperrors.RespondValidationError(w, httperrors.ErrCodeMissingField, "course_id is required", "course_id")
		return
	}
	if req.RunID == "" {
		req.RunID = uuid.NewString()
	} else if _, err := uuid.Parse(req.RunID); err != nil {
		httperrors.RespondValidationError(w, httperrors.ErrCodeInvalidRequest, "run_id must be a UUID", "run_id")
		return
	} else if !h.runIDFree(r.Context(), w, req.RunID) {
		return
	}

	wait, _ := strconv.ParseBool(r.URL.Query().Get("wait"))
	if wait || req.DryRun || h.queue == nil {
		h.runNow(w, r, req)
		return
	}

	select {
	case h.queue <- req:
		h.logger.Info().Str("run_id", req.RunID).Str("course_id", req.CourseID).Msg("upload queued")
		httperrors.RespondJSON(w, http.StatusAccepted, map[string]string{"run_id": req.RunID, "status": "queued"})
	default:
		httperrors.RespondServiceUnavailable(w, httperrors.ErrCodeQueueFull, "Upload queue is full, try again shortly")
	}
}

// runIDFree rejects a caller-chosen run id that already has a stored report.
func (h *HTTPHandlers) runIDFree(ctx context.Context, w http.ResponseWriter, runID string) bool {
	if h.history == nil {
		return true
	}
	_, err := h.history.Get(ctx, runID)
	switch {
	case err == nil:
		httperrors.RespondError(w, http.StatusConflict, httperrors.ErrCodeRunExists, "run_id is already in use")
		return false
	case errors.Is(err, repository.ErrRunNotFound):
		return true
	default:
		h.logger.Error().Err(err).Str("run_id", runID).Msg("check run id")
		httperrors.RespondInternalError(w, "Could not check run_id")
		return false
	}
}

func (h *HTTPHandlers) runNow(w http.ResponseWriter, r *http.Request, req Request) {
	rep, err := h.service.Run(r.Context(), req)
	switch {
	case err == nil:
		httperrors.RespondJSON(w, http.StatusOK, rep)
	case errors.Is(err, ErrBlocked):
		httperrors.RespondErrorWithDetails(w, http.StatusUnprocessableEntity, httperrors.ErrCodeUploadBlocked,
			"Validation problems blocked the upload", map[string]any{"report": rep})
	case errors.Is(err, canvas.ErrNewQuizzesDisabled):
		httperrors.RespondError(w, http.StatusConflict, httperrors.ErrCodeNewQuizzesDisabled, err.Error())
	case errors.Is(err, ErrNoQuestions), errors.Is(err, ErrMissingCourse):
		h.respondSourceError(w, err)
	case rep.Total > 0:
		// parsed fine, Canvas refused the quiz itself
		h.logger.Warn().Err(err).Str("run_id", rep.RunID).Msg("upload failed upstream")
		httperrors.RespondErrorWithDetails(w, http.StatusBadGateway, httperrors.ErrCodeUpstreamError,
			err.Error(), map[string]any{"report": rep})
	default:
		h.respondSourceError(w, err)
	}
}

func (h *HTTPHandlers) respondSourceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ErrNoQuestions):
		httperrors.RespondError(w, http.StatusUnprocessableEntity, httperrors.ErrCodeNoQuestions, "No questions found in source")
	case errors.Is(err, ErrMissingCourse):
		httperrors.RespondValidationError(w, httperrors.ErrCodeMissingField, err.Error(), "course_id")
	default:
		h.logger.Warn().Err(err).Msg("upload request failed")
		httperrors.RespondBadRequest(w, httperrors.ErrCodeUploadFailed, err.Error())
	}
}

// GetUpload handles GET /v1/uploads/{id}
func (h *HTTPHandlers) GetUpload(w http.ResponseWriter, r *http.Request) {
	rep, err := h.history.Get(r.Context(), r.PathValue("id"))
	if errors.Is(err, repository.ErrRunNotFound) {
		httperrors.RespondNotFound(w, httperrors.ErrCodeRunNotFound, "Upload run not found")
		return
	}
	if err != nil {
		h.logger.Error().Err(err).Msg("load upload run")
		httperrors.RespondInternalError(w, "Could not load upload run")
		return
	}
	httperrors.RespondJSON(w, http.StatusOK, rep)
}

// ListUploads handles GET /v1/uploads?course_id=&limit=
func (h *HTTPHandlers) ListUploads(w http.ResponseWriter, r *http.Request) {
	courseID := r.URL.Query().Get("course_id")
	if courseID == "" {
		httperrors.RespondValidationError(w, httperrors.ErrCodeMissingField, "course_id is required", "course_id")
		return
	}
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))

	runs, err := h.history.Recent(r.Context(), courseID, limit)
	if err != nil {
		h.logger.Error().Err(err).Msg("list upload runs")
		httperrors.RespondInternalError(w, "Could not list upload runs")
		return
	}
	httperrors.RespondJSON(w, http.StatusOK, map[string]any{"runs": runs})
}
