package auth

import (
	"encoding/json"
	"errors"
	"net"
	"net/http"

	"github.com/rs/zerolog"

	httperrors "github.com/gokatarajesh/quiz-uploader/pkg/http/errors"
)

// HTTPHandlers provides REST endpoints for sessions.
type HTTPHandlers struct {
	authSvc *Service
	logger  zerolog.Logger
}

func NewHTTPHandlers(authSvc *Service, logger zerolog.Logger) *HTTPHandlers {
	return &HTTPHandlers{authSvc: authSvc, logger: logger}
}

type sessionRequest struct {
	AccessCode string `json:"access_code"`
}

// CreateSession handles POST /v1/session
func (h *HTTPHandlers) CreateSession(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		httperrors.RespondError(w, http.StatusMethodNotAllowed, httperrors.ErrCodeInvalidRequest, "Method not allowed")
		return
	}

	var req sessionRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 4<<10)).Decode(&req); err != nil {
		httperrors.RespondBadRequest(w, httperrors.ErrCodeInvalidRequest, "Invalid JSON payload")
		return
	}
	if req.AccessCode == "" {
		httperrors.RespondValidationError(w, httperrors.ErrCodeMissingField, "access_code is required", "access_code")
		return
	}

	session, err := h.authSvc.Login(r.Context(), req.AccessCode, clientKey(r))
	switch {
	case errors.Is(err, ErrTooManyAttempts):
		httperrors.RespondError(w, http.StatusTooManyRequests, httperrors.ErrCodeTooManyAttempts, err.Error())
		return
	case errors.Is(err, ErrInvalidAccessCode):
		httperrors.RespondUnauthorized(w, httperrors.ErrCodeLoginFailed, "Invalid access code")
		return
	case err != nil:
		h.logger.Error().Err(err).Msg("create session failed")
		httperrors.RespondInternalError(w, "Could not create session")
		return
	}

	httperrors.RespondJSON(w, http.StatusCreated, session)
}

func clientKey(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
