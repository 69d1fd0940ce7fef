package errors

import (
	"encoding/json"
	"net/http"
)

// ErrorResponse is the body of every non-2xx API response.
type ErrorResponse struct {
	Error   string         `json:"error"`
	Message string         `json:"message"`
	Field   string         `json:"field,omitempty"`
	Details map[string]any `json:"details,omitempty"`
}

// RespondJSON writes data with the given status.
func RespondJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

// RespondError writes a coded error.
func RespondError(w http.ResponseWriter, status int, code, message string) {
	RespondJSON(w, status, ErrorResponse{Error: code, Message: message})
}

// RespondValidationError writes a 400 naming the offending field.
func RespondValidationError(w http.ResponseWriter, code, message, field string) {
	RespondJSON(w, http.StatusBadRequest, ErrorResponse{Error: code, Message: message, Field: field})
}

// RespondErrorWithDetails attaches structured details, such as the preview
// that blocked an upload.
func RespondErrorWithDetails(w http.ResponseWriter, status int, code, message string, details map[string]any) {
	RespondJSON(w, status, ErrorResponse{Error: code, Message: message, Details: details})
}

func RespondInternalError(w http.ResponseWriter, message string) {
	RespondError(w, http.StatusInternalServerError, ErrCodeInternalError, message)
}

func RespondNotFound(w http.ResponseWriter, code, message string) {
	RespondError(w, http.StatusNotFound, code, message)
}

func RespondUnauthorized(w http.ResponseWriter, code, message string) {
	RespondError(w, http.StatusUnauthorized, code, message)
}

func RespondBadRequest(w http.ResponseWriter, code, message string) {
	RespondError(w, http.StatusBadRequest, code, message)
}

func RespondServiceUnavailable(w http.ResponseWriter, code, message string) {
	RespondError(w, http.StatusServiceUnavailable, code, message)
}

func RespondBadGateway(w http.ResponseWriter, code, message string) {
	RespondError(w, http.StatusBadGateway, code, message)
}
