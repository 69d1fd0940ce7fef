package upload

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/gokatarajesh/quiz-uploader/internal/canvas"
	"github.com/gokatarajesh/quiz-uploader/internal/db/repository"
	"github.com/gokatarajesh/quiz-uploader/internal/items"
	"github.com/gokatarajesh/quiz-uploader/internal/quiz"
	"github.com/gokatarajesh/quiz-uploader/internal/quiz/tags"
)

var (
	// ErrBlocked is returned when validation problems stop a run before
	// anything is sent.
	ErrBlocked = errors.New("upload blocked by invalid items")
	// ErrNoQuestions means the source produced zero questions.
	ErrNoQuestions = errors.New("no questions found in source")
	// ErrMissingCourse means a live run was requested without a course.
	ErrMissingCourse = errors.New("course id is required")
)

// Submitter is the slice of the Canvas client a run needs.
type Submitter interface {
	PostItem(ctx context.Context, t canvas.Target, item *items.Item, position int) (*canvas.Response, error)
	CreateQuiz(ctx context.Context, courseID, title, description string) (canvas.Quiz, error)
	DeleteAllItems(ctx context.Context, t canvas.Target) (int, error)
	PublishAssignment(ctx context.Context, courseID, assignmentID string) error
	GetOrCreateModule(ctx context.Context, courseID, name string) (canvas.Module, error)
	AddToModule(ctx context.Context, courseID, moduleID string, item canvas.ModuleItem) error
	AssignmentURL(courseID, assignmentID string) string
}

// PreviewCache stores previews by key (implemented by the Redis Cache).
type PreviewCache interface {
	Get(ctx context.Context, key string) (*Preview, error)
	Set(ctx context.Context, key string, p Preview) error
}

// Converter structures free-form text when it carries no quiz markup.
type Converter interface {
	Convert(ctx context.Context, text string) ([]quiz.Question, error)
}

// Publisher receives progress events.
type Publisher interface {
	Publish(ctx context.Context, evt Event) error
}

// RunRecorder persists finished reports.
type RunRecorder interface {
	Record(ctx context.Context, rep Report) error
}

type ServiceOptions struct {
	StrictTrueFalse bool
	BlockOnInvalid  bool
	Publish         bool
	DefaultTitle    string

	Metrics  *Metrics
	Progress Publisher
	NewID    items.IDGenerator
	Now      func() time.Time
}

// Service runs storyboards through parse, build, validate and submit.
type Service struct {
	client    Submitter
	cache     PreviewCache
	runs      RunRecorder
	converter Converter
	parser    *tags.Parser
	builder   *items.Builder
	opts      ServiceOptions
	logger    zerolog.Logger
}

func NewService(client Submitter, cache PreviewCache, runs RunRecorder, converter Converter, opts ServiceOptions, logger zerolog.Logger) *Service {
	if opts.Now == nil {
		opts.Now = func() time.Time { return time.Now().UTC() }
	}
	if opts.DefaultTitle == "" {
		opts.DefaultTitle = "New Quiz"
	}
	builder := items.NewBuilder(logger)
	if opts.NewID != nil {
		builder.NewID = opts.NewID
	}
	return &Service{
		client:    client,
		cache:     cache,
		runs:      runs,
		converter: converter,
		parser:    &tags.Parser{StrictTrueFalse: opts.StrictTrueFalse},
		builder:   builder,
		opts:      opts,
		logger:    logger.With().Str("component", "upload").Logger(),
	}
}

// Questions reads the request source in its declared format. Markup with
// no question blocks is handed to the converter when one is configured.
func (s *Service) Questions(ctx context.Context, req Request) ([]quiz.Question, error) {
	src, err := s.read(ctx, req)
	return src.Questions, err
}

func (s *Service) read(ctx context.Context, req Request) (tags.Storyboard, error) {
	var (
		src tags.Storyboard
		err error
	)
	switch strings.ToLower(strings.TrimSpace(req.Format)) {
	case "", FormatMarkup:
		src = s.parser.ParseStoryboard(req.Source)
		if len(src.Questions) == 0 && s.converter != nil && strings.TrimSpace(req.Source) != "" {
			src.Questions, err = s.converter.Convert(ctx, req.Source)
			if err != nil {
				return tags.Storyboard{}, fmt.Errorf("convert storyboard: %w", err)
			}
		}
	case FormatYAML:
		src.Questions, err = tags.DecodeYAML([]byte(req.Source))
	case FormatJSON:
		src.Questions, err = tags.DecodeJSON([]byte(req.Source))
	default:
		return tags.Storyboard{}, fmt.Errorf("unknown source format %q", req.Format)
	}
	if errors.Is(err, tags.ErrNoQuestions) {
		return tags.Storyboard{}, ErrNoQuestions
	}
	if err != nil {
		return tags.Storyboard{}, err
	}
	if len(src.Questions) == 0 {
		return tags.Storyboard{}, ErrNoQuestions
	}
	return src, nil
}

// Preview parses, builds and validates without contacting Canvas. Results
// are cached by source content.
func (s *Service) Preview(ctx context.Context, req Request) (Preview, error) {
	key := PreviewKey(strings.ToLower(req.Format), req.Source, s.opts.StrictTrueFalse)
	if s.cache != nil {
		if cached, err := s.cache.Get(ctx, key); err == nil && cached != nil {
			return *cached, nil
		} else if err != nil {
			s.logger.Warn().Err(err).Msg("preview cache read failed")
		}
	}

	src, err := s.read(ctx, req)
	if err != nil {
		return Preview{}, err
	}
	p := s.build(src.Questions)
	p.Pages = src.Pages
	p.Warnings = src.Warnings

	if s.cache != nil {
		if err := s.cache.Set(ctx, key, p); err != nil {
			s.logger.Warn().Err(err).Msg("preview cache write failed")
		}
	}
	return p, nil
}

func (s *Service) build(qs []quiz.Question) Preview {
	p := Preview{Items: make([]PreviewItem, 0, len(qs))}
	for i, q := range qs {
		pi := PreviewItem{Position: i + 1, Type: q.Type, Ambiguities: q.Ambiguities}
		item, err := s.builder.Build(q)
		if err != nil {
			pi.Err = err.Error()
			p.Items = append(p.Items, pi)
			continue
		}
		pi.Item = item
		pi.Problems = items.Validate(item)
		pi.Ambiguities = append(pi.Ambiguities, item.Notes...)
		if item.Synthesized {
			pi.Ambiguities = append(pi.Ambiguities, "placeholder options were added to reach two choices")
		}
		p.Items = append(p.Items, pi)
	}
	return p
}

// Run uploads every question of the request into one New Quiz. One item's
// failure never stops the loop; failures are collected in the report.
func (s *Service) Run(ctx context.Context, req Request) (Report, error) {
	rep := Report{
		RunID:        req.RunID,
		CourseID:     req.CourseID,
		AssignmentID: req.AssignmentID,
		Title:        strings.TrimSpace(req.Title),
		StartedAt:    s.opts.Now(),
	}
	if rep.RunID == "" {
		rep.RunID = uuid.NewString()
	} else if _, err := uuid.Parse(rep.RunID); err != nil {
		return rep, fmt.Errorf("invalid run id %q: %w", rep.RunID, err)
	}
	if rep.Title == "" {
		rep.Title = s.opts.DefaultTitle
	}
	logger := s.logger.With().Str("run_id", rep.RunID).Str("course_id", req.CourseID).Logger()

	if req.CourseID == "" && !req.DryRun {
		return rep, ErrMissingCourse
	}

	src, err := s.read(ctx, req)
	if err != nil {
		s.finish(ctx, &rep, StatusFailed, logger)
		return rep, err
	}
	preview := s.build(src.Questions)
	rep.Total = len(preview.Items)
	rep.Warnings = append(rep.Warnings, src.Warnings...)

	problems := 0
	for _, pi := range preview.Items {
		problems += len(pi.Problems)
		for _, p := range pi.Problems {
			rep.Warnings = append(rep.Warnings, fmt.Sprintf("position %d: %s", pi.Position, p))
		}
		for _, a := range pi.Ambiguities {
			rep.Warnings = append(rep.Warnings, fmt.Sprintf("position %d: %s", pi.Position, a))
		}
	}
	s.opts.Metrics.validation(problems)

	if s.opts.BlockOnInvalid && preview.Invalid() > 0 {
		rep.Preview = preview.Items
		s.finish(ctx, &rep, StatusBlocked, logger)
		return rep, ErrBlocked
	}
	if req.DryRun {
		rep.Preview = preview.Items
		s.finish(ctx, &rep, StatusDryRun, logger)
		return rep, nil
	}

	if rep.AssignmentID == "" {
		created, err := s.client.CreateQuiz(ctx, req.CourseID, rep.Title, req.Description)
		if err != nil {
			s.finish(ctx, &rep, StatusFailed, logger)
			return rep, fmt.Errorf("create quiz: %w", err)
		}
		rep.AssignmentID = created.AssignmentID
		logger.Info().Str("assignment_id", rep.AssignmentID).Msg("created new quiz")
	} else if req.Reset {
		deleted, err := s.client.DeleteAllItems(ctx, canvas.Target{CourseID: req.CourseID, AssignmentID: rep.AssignmentID})
		if err != nil {
			rep.Warnings = append(rep.Warnings, "reset: "+err.Error())
		}
		rep.Deleted = deleted
	}
	target := canvas.Target{CourseID: req.CourseID, AssignmentID: rep.AssignmentID}

	s.emit(ctx, Event{RunID: rep.RunID, Kind: EventStarted, Total: rep.Total})
	for _, pi := range preview.Items {
		f, ok := s.submit(ctx, target, pi)
		evt := Event{RunID: rep.RunID, Kind: EventItem, Position: pi.Position, Total: rep.Total, OK: ok, Status: f.Status, Message: f.Err}
		if ok {
			rep.Succeeded++
		} else {
			f.Title = pi.Item.Entry.Title
			rep.Failures = append(rep.Failures, f)
			logger.Warn().Int("position", pi.Position).Int("status", f.Status).Str("error", f.Err).Msg("item not uploaded")
		}
		s.emit(ctx, evt)
	}

	status := StatusPartial
	switch rep.Succeeded {
	case rep.Total:
		status = StatusCompleted
	case 0:
		status = StatusFailed
	}

	if s.opts.Publish && rep.Succeeded > 0 {
		if err := s.client.PublishAssignment(ctx, req.CourseID, rep.AssignmentID); err != nil {
			rep.Warnings = append(rep.Warnings, "publish: "+err.Error())
		} else {
			rep.Published = true
		}
	}
	if req.ModuleName != "" {
		if err := s.addToModule(ctx, &rep, req.ModuleName); err != nil {
			rep.Warnings = append(rep.Warnings, "module: "+err.Error())
		}
	}
	rep.QuizURL = s.client.AssignmentURL(req.CourseID, rep.AssignmentID)

	s.finish(ctx, &rep, status, logger)
	return rep, nil
}

// submit posts one item and reports whether it landed.
func (s *Service) submit(ctx context.Context, target canvas.Target, pi PreviewItem) (Failure, bool) {
	f := Failure{Position: pi.Position}
	if pi.Err != "" {
		s.opts.Metrics.item("build_error")
		f.Err = pi.Err
		return f, false
	}

	item := pi.Item
	start := time.Now()
	resp, err := s.client.PostItem(ctx, target, &item, pi.Position)
	s.opts.Metrics.submitted(time.Since(start))

	switch {
	case err != nil:
		s.opts.Metrics.item("failed")
		f.Err = err.Error()
		if resp != nil {
			f.Status = resp.StatusCode
			f.Body = canvas.Snippet(resp.Body, 500)
		}
		return f, false
	case !resp.OK():
		s.opts.Metrics.item("rejected")
		f.Status = resp.StatusCode
		f.Body = canvas.Snippet(resp.Body, 500)
		return f, false
	}
	s.opts.Metrics.item("ok")
	return f, true
}

func (s *Service) addToModule(ctx context.Context, rep *Report, name string) error {
	m, err := s.client.GetOrCreateModule(ctx, rep.CourseID, name)
	if err != nil {
		return err
	}
	rep.ModuleID = m.ID
	return s.client.AddToModule(ctx, rep.CourseID, m.ID, canvas.ModuleItem{
		Type:      "Assignment",
		ContentID: rep.AssignmentID,
		Title:     rep.Title,
	})
}

func (s *Service) finish(ctx context.Context, rep *Report, status string, logger zerolog.Logger) {
	rep.Status = status
	rep.FinishedAt = s.opts.Now()
	s.opts.Metrics.run(status)
	s.emit(ctx, Event{RunID: rep.RunID, Kind: EventFinished, Total: rep.Total, OK: status == StatusCompleted, Message: status})

	if s.runs != nil {
		err := s.runs.Record(context.WithoutCancel(ctx), *rep)
		switch {
		case errors.Is(err, repository.ErrRunExists):
			logger.Error().Err(err).Msg("run id already recorded; report not stored")
		case err != nil:
			logger.Warn().Err(err).Msg("failed to record upload run")
		}
	}
	logger.Info().
		Str("status", status).
		Int("total", rep.Total).
		Int("succeeded", rep.Succeeded).
		Int("failed", len(rep.Failures)).
		Msg("upload run finished")
}

func (s *Service) emit(ctx context.Context, evt Event) {
	if s.opts.Progress == nil {
		return
	}
	if err := s.opts.Progress.Publish(ctx, evt); err != nil {
		s.logger.Debug().Err(err).Str("run_id", evt.RunID).Msg("progress publish failed")
	}
}
