package errors

// Error codes for standardized error responses
const (
	// Authentication errors
	ErrCodeUnauthorized           = "unauthorized"
	ErrCodeInvalidToken           = "invalid_token"
	ErrCodeTokenExpired           = "token_expired"
	ErrCodeAuthenticationRequired = "authentication_required"
	ErrCodeLoginFailed            = "login_failed"
	ErrCodeTooManyAttempts        = "too_many_attempts"

	// Validation errors
	ErrCodeInvalidRequest   = "invalid_request"
	ErrCodeValidationFailed = "validation_failed"
	ErrCodeMissingField     = "missing_field"
	ErrCodeNoQuestions      = "no_questions"

	// Resource errors
	ErrCodeNotFound    = "not_found"
	ErrCodeRunNotFound = "run_not_found"
	ErrCodeRunExists   = "run_exists"

	// Upload errors
	ErrCodeUploadBlocked      = "upload_blocked"
	ErrCodeUploadFailed       = "upload_failed"
	ErrCodeQueueFull          = "queue_full"
	ErrCodeNewQuizzesDisabled = "new_quizzes_disabled"

	// WebSocket errors
	ErrCodeInvalidPayload     = "invalid_payload"
	ErrCodeUnknownMessageType = "unknown_message_type"

	// Server errors
	ErrCodeInternalError      = "internal_error"
	ErrCodeServiceUnavailable = "service_unavailable"
	ErrCodeUpstreamError      = "upstream_error"
)
