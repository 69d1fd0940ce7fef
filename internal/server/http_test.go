package server

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"

	"github.com/gokatarajesh/quiz-uploader/internal/logging"
)

func okHandler(name string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(name))
	}
}

func denyAll(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	})
}

func do(h http.Handler, method, target string) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(method, target, nil))
	return rec
}

func TestOperationalEndpoints(t *testing.T) {
	h := NewHandler(zerolog.Nop(), nil, Routes{})

	rec := do(h, http.MethodGet, "/healthz")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())

	rec = do(h, http.MethodGet, "/metrics")
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = do(h, http.MethodGet, "/v1/ping")
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = do(h, http.MethodPost, "/v1/uploads")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestPingFailure(t *testing.T) {
	h := NewHandler(zerolog.Nop(), func(context.Context) error { return errors.New("redis down") }, Routes{})
	assert.Equal(t, http.StatusBadGateway, do(h, http.MethodGet, "/v1/ping").Code)
}

func TestProtectedRoutes(t *testing.T) {
	h := NewHandler(zerolog.Nop(), nil, Routes{
		CreateSession:  okHandler("session"),
		CreatePreview:  okHandler("preview"),
		CreateUpload:   okHandler("upload"),
		GetUpload:      okHandler("get"),
		RequireSession: denyAll,
	})

	rec := do(h, http.MethodPost, "/v1/session")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "session", rec.Body.String())

	assert.Equal(t, http.StatusUnauthorized, do(h, http.MethodPost, "/v1/previews").Code)
	assert.Equal(t, http.StatusUnauthorized, do(h, http.MethodPost, "/v1/uploads").Code)
	assert.Equal(t, http.StatusUnauthorized, do(h, http.MethodGet, "/v1/uploads/abc").Code)
	assert.Equal(t, http.StatusMethodNotAllowed, do(h, http.MethodGet, "/v1/session").Code)
}

func TestRequestLoggerInContext(t *testing.T) {
	var got zerolog.Level
	h := NewHandler(zerolog.New(nil).Level(zerolog.WarnLevel), nil, Routes{
		CreateSession: func(w http.ResponseWriter, r *http.Request) {
			got = logging.FromContext(r.Context()).GetLevel()
		},
	})

	do(h, http.MethodPost, "/v1/session")
	assert.Equal(t, zerolog.WarnLevel, got)
}
