package upload

import (
	"context"
	"time"

	"github.com/rs/zerolog"
)

// Worker runs queued upload requests one at a time so API calls can
// return before Canvas has accepted every item.
type Worker struct {
	service   *Service
	queue     <-chan Request
	logger    zerolog.Logger
	timeout   time.Duration
	shutdownC chan struct{}
}

func NewWorker(service *Service, queue <-chan Request, logger zerolog.Logger, timeout time.Duration) *Worker {
	if timeout <= 0 {
		timeout = 15 * time.Minute
	}
	return &Worker{
		service:   service,
		queue:     queue,
		logger:    logger.With().Str("component", "upload_worker").Logger(),
		timeout:   timeout,
		shutdownC: make(chan struct{}),
	}
}

func (w *Worker) Run() {
	for {
		select {
		case <-w.shutdownC:
			w.logger.Info().Msg("upload worker stopping")
			return
		case req := <-w.queue:
			w.handle(req)
		}
	}
}

func (w *Worker) handle(req Request) {
	ctx, cancel := context.WithTimeout(context.Background(), w.timeout)
	defer cancel()

	rep, err := w.service.Run(ctx, req)
	if err != nil {
		w.logger.Warn().Err(err).Str("run_id", rep.RunID).Msg("queued upload failed")
		return
	}
	w.logger.Info().Str("run_id", rep.RunID).Str("status", rep.Status).Msg("queued upload done")
}

func (w *Worker) Stop() {
	close(w.shutdownC)
}
