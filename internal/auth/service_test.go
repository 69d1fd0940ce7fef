package auth

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/gokatarajesh/quiz-uploader/internal/auth/jwt"
)

type mockLimiter struct {
	mock.Mock
}

func (m *mockLimiter) Blocked(ctx context.Context, key string) (bool, error) {
	args := m.Called(ctx, key)
	return args.Bool(0), args.Error(1)
}

func (m *mockLimiter) Fail(ctx context.Context, key string) error {
	return m.Called(ctx, key).Error(0)
}

func (m *mockLimiter) Reset(ctx context.Context, key string) error {
	return m.Called(ctx, key).Error(0)
}

const testCode = "open-sesame-42"

func sha256Hex(s string) string {
	sum := sha256.Sum256([]byte(s))
	return hex.EncodeToString(sum[:])
}

func newTestService(t *testing.T, limiter Limiter) *Service {
	t.Helper()
	return NewService(ServiceOptions{
		AccessCodeHash: sha256Hex(testCode),
		TokenConfig:    jwt.TokenConfig{Secret: []byte("test-secret")},
		Limiter:        limiter,
	}, zerolog.Nop())
}

func TestHashAccessCode(t *testing.T) {
	hash, err := HashAccessCode(testCode)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(hash, "$2"))

	assert.NoError(t, VerifyAccessCode(hash, testCode))
	assert.ErrorIs(t, VerifyAccessCode(hash, "wrong-code"), ErrInvalidAccessCode)
}

func TestAccessCodeTooShort(t *testing.T) {
	_, err := HashAccessCode("short")
	assert.Equal(t, ErrAccessCodeTooShort, err)
}

func TestVerifyLegacySHA256(t *testing.T) {
	assert.NoError(t, VerifyAccessCode(sha256Hex(testCode), testCode))
	assert.NoError(t, VerifyAccessCode(strings.ToUpper(sha256Hex(testCode)), testCode))
	assert.ErrorIs(t, VerifyAccessCode(sha256Hex(testCode), "nope"), ErrInvalidAccessCode)
	assert.ErrorIs(t, VerifyAccessCode("", testCode), ErrInvalidAccessCode)
	assert.ErrorIs(t, VerifyAccessCode("zz", testCode), ErrInvalidAccessCode)
}

func TestLoginIssuesValidToken(t *testing.T) {
	limiter := new(mockLimiter)
	limiter.On("Blocked", mock.Anything, "10.0.0.1").Return(false, nil)
	limiter.On("Reset", mock.Anything, "10.0.0.1").Return(nil)
	svc := newTestService(t, limiter)

	session, err := svc.Login(context.Background(), testCode, "10.0.0.1")
	require.NoError(t, err)
	assert.Equal(t, int64(8*3600), session.ExpiresIn)

	claims, err := svc.ValidateToken(session.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, session.ID, claims.SessionID)
	limiter.AssertExpectations(t)
}

func TestLoginRecordsFailure(t *testing.T) {
	limiter := new(mockLimiter)
	limiter.On("Blocked", mock.Anything, "10.0.0.1").Return(false, nil)
	limiter.On("Fail", mock.Anything, "10.0.0.1").Return(nil)
	svc := newTestService(t, limiter)

	_, err := svc.Login(context.Background(), "guess", "10.0.0.1")
	assert.ErrorIs(t, err, ErrInvalidAccessCode)
	limiter.AssertExpectations(t)
	limiter.AssertNotCalled(t, "Reset", mock.Anything, mock.Anything)
}

func TestLoginBlocked(t *testing.T) {
	limiter := new(mockLimiter)
	limiter.On("Blocked", mock.Anything, "10.0.0.1").Return(true, nil)
	svc := newTestService(t, limiter)

	_, err := svc.Login(context.Background(), testCode, "10.0.0.1")
	assert.ErrorIs(t, err, ErrTooManyAttempts)
}

func TestCreateSessionHandler(t *testing.T) {
	h := NewHTTPHandlers(newTestService(t, nil), zerolog.Nop())

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/v1/session", strings.NewReader(`{"access_code":"`+testCode+`"}`))
	h.CreateSession(rec, req)
	assert.Equal(t, http.StatusCreated, rec.Code)
	assert.Contains(t, rec.Body.String(), "access_token")

	rec = httptest.NewRecorder()
	req = httptest.NewRequest(http.MethodPost, "/v1/session", strings.NewReader(`{"access_code":"wrong"}`))
	h.CreateSession(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Contains(t, rec.Body.String(), "login_failed")

	rec = httptest.NewRecorder()
	req = httptest.NewRequest(http.MethodPost, "/v1/session", strings.NewReader(`{}`))
	h.CreateSession(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = httptest.NewRecorder()
	h.CreateSession(rec, httptest.NewRequest(http.MethodGet, "/v1/session", nil))
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestRequireSession(t *testing.T) {
	svc := newTestService(t, nil)
	session, err := svc.Login(context.Background(), testCode, "x")
	require.NoError(t, err)

	var seen string
	handler := RequireSession(svc, zerolog.Nop())(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		claims, ok := ClaimsFromContext(r.Context())
		require.True(t, ok)
		seen = claims.SessionID
		w.WriteHeader(http.StatusNoContent)
	}))

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/v1/uploads/x", nil)
	req.Header.Set("Authorization", "Bearer "+session.AccessToken)
	handler.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, session.ID, seen)

	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/ws/uploads?token="+session.AccessToken, nil))
	assert.Equal(t, http.StatusNoContent, rec.Code)

	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/uploads/x", nil))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = httptest.NewRecorder()
	req = httptest.NewRequest(http.MethodGet, "/v1/uploads/x", nil)
	req.Header.Set("Authorization", "Bearer garbage")
	handler.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Contains(t, rec.Body.String(), "invalid_token")
}
