package server

import (
	"context"
	"net/http"
	"strings"

	"github.com/gorilla/websocket"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/gokatarajesh/quiz-uploader/internal/config"
	"github.com/gokatarajesh/quiz-uploader/internal/logging"
)

// WSUpgrader handles WebSocket upgrades for the progress stream. Tokens
// travel in the query string, so browsers from any origin may connect.
var WSUpgrader = websocket.Upgrader{
	CheckOrigin:     func(r *http.Request) bool { return true },
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
}

// Routes are the handlers the API serves. Nil handlers are left unrouted.
type Routes struct {
	CreateSession http.HandlerFunc
	CreatePreview http.HandlerFunc
	CreateUpload  http.HandlerFunc
	ListUploads   http.HandlerFunc
	GetUpload     http.HandlerFunc
	UploadStream  http.HandlerFunc

	// RequireSession guards everything except session creation and the
	// operational endpoints.
	RequireSession func(http.Handler) http.Handler
}

// Pinger reports dependency health for /v1/ping.
type Pinger func(ctx context.Context) error

// NewHTTPServer wires operational endpoints and the API routes.
func NewHTTPServer(cfg *config.App, logger zerolog.Logger, ping Pinger, routes Routes) *http.Server {
	return &http.Server{
		Addr:    cfg.HTTPAddr,
		Handler: NewHandler(logger, ping, routes),
	}
}

// NewHandler builds the router. Split from NewHTTPServer for tests.
func NewHandler(logger zerolog.Logger, ping Pinger, routes Routes) http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})

	mux.Handle("GET /metrics", promhttp.Handler())

	mux.HandleFunc("GET /v1/ping", func(w http.ResponseWriter, r *http.Request) {
		if ping != nil {
			if err := ping(r.Context()); err != nil {
				logger.Error().Err(err).Msg("dependency ping failed")
				http.Error(w, "upstream error", http.StatusBadGateway)
				return
			}
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"pong":true}`))
	})

	guard := routes.RequireSession
	if guard == nil {
		guard = func(next http.Handler) http.Handler { return next }
	}
	handle := func(pattern string, h http.HandlerFunc, protected bool) {
		if h == nil {
			return
		}
		if protected {
			mux.Handle(pattern, guard(h))
			return
		}
		mux.Handle(pattern, h)
	}

	handle("POST /v1/session", routes.CreateSession, false)
	handle("POST /v1/previews", routes.CreatePreview, true)
	handle("POST /v1/uploads", routes.CreateUpload, true)
	handle("GET /v1/uploads", routes.ListUploads, true)
	handle("GET /v1/uploads/{id}", routes.GetUpload, true)
	handle("GET /ws/uploads", routes.UploadStream, true)

	return withRequestLogger(logger, mux)
}

// withRequestLogger stores a request-scoped logger in the context and logs
// each non-operational request once it completes.
func withRequestLogger(logger zerolog.Logger, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		reqLogger := logger.With().Str("method", r.Method).Str("path", r.URL.Path).Logger()
		ctx := logging.IntoContext(r.Context(), reqLogger)

		// upgrades need the original writer to hijack
		if strings.HasPrefix(r.URL.Path, "/ws/") {
			next.ServeHTTP(w, r.WithContext(ctx))
			return
		}

		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r.WithContext(ctx))

		if r.URL.Path == "/healthz" || r.URL.Path == "/metrics" {
			return
		}
		reqLogger.Debug().Int("status", rec.status).Msg("request served")
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (s *statusRecorder) WriteHeader(code int) {
	s.status = code
	s.ResponseWriter.WriteHeader(code)
}

// Unwrap lets http.ResponseController reach the underlying writer.
func (s *statusRecorder) Unwrap() http.ResponseWriter {
	return s.ResponseWriter
}

// PingDependencies checks Postgres and Redis.
func PingDependencies(pool *pgxpool.Pool, redis *redis.Client) Pinger {
	return func(ctx context.Context) error {
		if err := pool.Ping(ctx); err != nil {
			return err
		}
		return redis.Ping(ctx).Err()
	}
}
