package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/gokatarajesh/quiz-uploader/internal/auth"
	"github.com/gokatarajesh/quiz-uploader/internal/auth/jwt"
	"github.com/gokatarajesh/quiz-uploader/internal/canvas"
	"github.com/gokatarajesh/quiz-uploader/internal/config"
	"github.com/gokatarajesh/quiz-uploader/internal/db/repository"
	"github.com/gokatarajesh/quiz-uploader/internal/logging"
	"github.com/gokatarajesh/quiz-uploader/internal/quiz/remote"
	"github.com/gokatarajesh/quiz-uploader/internal/server"
	"github.com/gokatarajesh/quiz-uploader/internal/upload"
	ws "github.com/gokatarajesh/quiz-uploader/pkg/http/ws"
)

// Application aggregates shared infrastructure (DB, cache, HTTP server).
type Application struct {
	cfg    *config.App
	logger zerolog.Logger

	pool  *pgxpool.Pool
	redis *redis.Client
	http  *http.Server

	broadcaster *upload.Broadcaster
	worker      *upload.Worker
	bgCancels   []context.CancelFunc
}

// New bootstraps configs, logger, Postgres, Redis and HTTP server.
func New(ctx context.Context, cfg *config.App) (*Application, error) {
	logger := logging.New(cfg.Name, cfg.Env, cfg.LogLevel)
	logger.Info().Msg("starting application bootstrap")

	// Settings errors surface before any connection is opened.
	canvasClient, err := NewCanvasClient(cfg.Canvas, cfg.Submit, logger)
	if err != nil {
		return nil, err
	}

	pool, err := pgxpool.New(ctx, cfg.Postgres.DSN()+" pool_max_conns=10")
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}

	redisClient := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		DB:       cfg.Redis.DB,
		PoolSize: cfg.Redis.PoolSize,
	})

	authSvc := auth.NewService(auth.ServiceOptions{
		AccessCodeHash: cfg.Security.AccessCodeHash,
		TokenConfig: jwt.TokenConfig{
			Secret: []byte(cfg.Security.JWTSecret),
			TTL:    cfg.Security.SessionTTL,
			Issuer: cfg.Name,
		},
		Limiter: auth.NewRedisLimiter(redisClient, cfg.Security.MaxLoginFailure, cfg.Security.LockoutWindow),
	}, logger)
	authHandlers := auth.NewHTTPHandlers(authSvc, logger)

	history := upload.NewHistory(repository.NewUploadRunRepository(repository.NewPGStore(pool)))
	wsHub := ws.NewHub(logger)

	uploadSvc := upload.NewService(
		canvasClient,
		upload.NewCache(redisClient, cfg.Upload.PreviewTTL),
		history,
		NewConverter(cfg.Converter, logger),
		UploadOptions(cfg.Upload, upload.NewMetrics(prometheus.DefaultRegisterer), upload.NewRedisPublisher(redisClient, "")),
		logger,
	)

	queue := make(chan upload.Request, max(cfg.Upload.QueueSize, 1))
	uploadHandlers := upload.NewHTTPHandlers(uploadSvc, history, queue, logger)
	streamHandler := upload.NewStreamHandler(wsHub, logger)

	apiServer := server.NewHTTPServer(cfg, logger, server.PingDependencies(pool, redisClient), server.Routes{
		CreateSession:  authHandlers.CreateSession,
		CreatePreview:  uploadHandlers.CreatePreview,
		CreateUpload:   uploadHandlers.CreateUpload,
		ListUploads:    uploadHandlers.ListUploads,
		GetUpload:      uploadHandlers.GetUpload,
		UploadStream:   streamHandler.HandleWebSocket,
		RequireSession: auth.RequireSession(authSvc, logger),
	})

	return &Application{
		cfg:         cfg,
		logger:      logger,
		pool:        pool,
		redis:       redisClient,
		http:        apiServer,
		broadcaster: upload.NewBroadcaster(redisClient, wsHub, "", logger),
		worker:      upload.NewWorker(uploadSvc, queue, logger, cfg.Upload.RunTimeout),
		bgCancels:   make([]context.CancelFunc, 0, 1),
	}, nil
}

// NewCanvasClient builds the Canvas client from configuration. Shared with
// the command-line uploader.
func NewCanvasClient(c config.Canvas, s config.Submit, logger zerolog.Logger) (*canvas.Client, error) {
	encodings, err := canvas.ParseEncodings(s.Encodings)
	if err != nil {
		return nil, fmt.Errorf("SUBMIT_ENCODINGS: %w", err)
	}
	return canvas.NewClient(canvas.Options{
		Domain:  c.Domain,
		Token:   c.AccessToken,
		Timeout: c.HTTPTimeout,
		Policy:  canvas.RetryPolicy{Delays: s.RetryDelays, Encodings: encodings},
		Logger:  logger,
	}), nil
}

// NewConverter returns nil when no converter URL is configured, so the
// service sees a nil interface rather than a typed nil.
func NewConverter(c config.Converter, logger zerolog.Logger) upload.Converter {
	if c.URL == "" {
		return nil
	}
	return remote.NewConverter(remote.Config{URL: c.URL, APIKey: c.APIKey, Timeout: c.Timeout}, logger)
}

// UploadOptions maps run policy onto service options.
func UploadOptions(u config.Upload, metrics *upload.Metrics, progress upload.Publisher) upload.ServiceOptions {
	return upload.ServiceOptions{
		StrictTrueFalse: u.StrictTrueFalse,
		BlockOnInvalid:  u.BlockOnInvalid,
		Publish:         u.Publish,
		DefaultTitle:    u.DefaultTitle,
		Metrics:         metrics,
		Progress:        progress,
	}
}

// Run starts the HTTP server and waits for termination signals.
func (a *Application) Run(ctx context.Context) error {
	errCh := make(chan error, 1)

	a.startBackgroundWorkers(ctx)

	go func() {
		a.logger.Info().Str("addr", a.cfg.HTTPAddr).Msg("http server listening")
		if err := a.http.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		a.logger.Info().Str("signal", sig.String()).Msg("shutdown signal received")
	case err := <-errCh:
		return fmt.Errorf("http server error: %w", err)
	case <-ctx.Done():
		a.logger.Warn().Msg("context canceled")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), a.cfg.GracefulShutdownTimeout)
	defer cancel()

	if err := a.http.Shutdown(shutdownCtx); err != nil {
		a.logger.Error().Err(err).Msg("http shutdown error")
	}

	a.worker.Stop()
	for _, cancel := range a.bgCancels {
		cancel()
	}

	a.pool.Close()
	if err := a.redis.Close(); err != nil {
		a.logger.Error().Err(err).Msg("redis shutdown error")
	}

	a.logger.Info().Msg("shutdown complete")
	return nil
}

func (a *Application) startBackgroundWorkers(ctx context.Context) {
	go a.worker.Run()

	bgCtx, cancel := context.WithCancel(ctx)
	a.bgCancels = append(a.bgCancels, cancel)
	go func() {
		if err := a.broadcaster.Run(bgCtx); err != nil && !errors.Is(err, context.Canceled) {
			a.logger.Warn().Err(err).Msg("progress broadcaster stopped")
		}
	}()
}
