package upload

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gokatarajesh/quiz-uploader/internal/canvas"
	"github.com/gokatarajesh/quiz-uploader/internal/items"
	"github.com/gokatarajesh/quiz-uploader/internal/quiz"
)

const threeQuestions = `<quiz_start>
<question><multiple_choice>
What is 2 + 2?
* 4
3
</question>

<question><true_false>
The sky is blue.
correct: true
</question>

<question><essay>
Explain photosynthesis.
</question>
</quiz_end>`

const invalidNumeric = `<question><numeric>
How far is it?
</question>`

type postCall struct {
	target   canvas.Target
	position int
	title    string
}

type stubCanvas struct {
	mu         sync.Mutex
	post       func(position int) (*canvas.Response, error)
	createErr  error
	posts      []postCall
	created    []string
	reset      []canvas.Target
	published  []string
	modules    []string
	moduleItem []canvas.ModuleItem
}

func (s *stubCanvas) PostItem(_ context.Context, t canvas.Target, item *items.Item, position int) (*canvas.Response, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	item.Position = position
	s.posts = append(s.posts, postCall{target: t, position: position, title: item.Entry.Title})
	if s.post != nil {
		return s.post(position)
	}
	return &canvas.Response{StatusCode: 201, Body: []byte(`{}`)}, nil
}

func (s *stubCanvas) CreateQuiz(_ context.Context, courseID, title, _ string) (canvas.Quiz, error) {
	s.created = append(s.created, courseID+"/"+title)
	if s.createErr != nil {
		return canvas.Quiz{}, s.createErr
	}
	return canvas.Quiz{AssignmentID: "55"}, nil
}

func (s *stubCanvas) DeleteAllItems(_ context.Context, t canvas.Target) (int, error) {
	s.reset = append(s.reset, t)
	return 2, nil
}

func (s *stubCanvas) PublishAssignment(_ context.Context, courseID, assignmentID string) error {
	s.published = append(s.published, courseID+"/"+assignmentID)
	return nil
}

func (s *stubCanvas) GetOrCreateModule(_ context.Context, _ string, name string) (canvas.Module, error) {
	s.modules = append(s.modules, name)
	return canvas.Module{ID: "m1", Name: name}, nil
}

func (s *stubCanvas) AddToModule(_ context.Context, _ string, _ string, item canvas.ModuleItem) error {
	s.moduleItem = append(s.moduleItem, item)
	return nil
}

func (s *stubCanvas) AssignmentURL(courseID, assignmentID string) string {
	return "https://canvas.test/courses/" + courseID + "/assignments/" + assignmentID
}

func (s *stubCanvas) postCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.posts)
}

type memoryCache struct {
	store map[string]Preview
	gets  int
}

func newMemoryCache() *memoryCache {
	return &memoryCache{store: map[string]Preview{}}
}

func (c *memoryCache) Get(_ context.Context, key string) (*Preview, error) {
	c.gets++
	if p, ok := c.store[key]; ok {
		return &p, nil
	}
	return nil, nil
}

func (c *memoryCache) Set(_ context.Context, key string, p Preview) error {
	c.store[key] = p
	return nil
}

type recordingPublisher struct {
	events []Event
}

func (p *recordingPublisher) Publish(_ context.Context, evt Event) error {
	p.events = append(p.events, evt)
	return nil
}

type recordingRuns struct {
	reports []Report
}

func (r *recordingRuns) Record(_ context.Context, rep Report) error {
	r.reports = append(r.reports, rep)
	return nil
}

type stubConverter struct {
	questions []quiz.Question
	calls     int
}

func (c *stubConverter) Convert(context.Context, string) ([]quiz.Question, error) {
	c.calls++
	return c.questions, nil
}

func fixedNow() time.Time {
	return time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
}

func newTestService(client Submitter, runs RunRecorder, opts ServiceOptions) *Service {
	opts.Now = fixedNow
	return NewService(client, nil, runs, nil, opts, zerolog.Nop())
}

func TestRunCollectsFailuresAndContinues(t *testing.T) {
	client := &stubCanvas{post: func(position int) (*canvas.Response, error) {
		switch position {
		case 2:
			return &canvas.Response{StatusCode: 400, Body: []byte(`{"errors":"bad item"}`)}, nil
		case 3:
			return nil, fmt.Errorf("%w: dial tcp: refused", canvas.ErrNoResponse)
		}
		return &canvas.Response{StatusCode: 201}, nil
	}}
	runs := &recordingRuns{}
	progress := &recordingPublisher{}
	reg := prometheus.NewRegistry()
	metrics := NewMetrics(reg)
	svc := newTestService(client, runs, ServiceOptions{Publish: true, Progress: progress, Metrics: metrics})

	rep, err := svc.Run(context.Background(), Request{Source: threeQuestions, CourseID: "101", Title: "Week 1"})
	require.NoError(t, err)

	assert.Equal(t, StatusPartial, rep.Status)
	assert.Equal(t, 3, rep.Total)
	assert.Equal(t, 1, rep.Succeeded)
	assert.Equal(t, "55", rep.AssignmentID)
	assert.True(t, rep.Published)
	assert.Equal(t, "https://canvas.test/courses/101/assignments/55", rep.QuizURL)
	assert.Equal(t, []string{"101/Week 1"}, client.created)
	assert.Equal(t, []string{"101/55"}, client.published)

	require.Len(t, rep.Failures, 2)
	assert.Equal(t, Failure{Position: 2, Title: "Question 2", Status: 400, Body: `{"errors":"bad item"}`}, rep.Failures[0])
	assert.Equal(t, 3, rep.Failures[1].Position)
	assert.Contains(t, rep.Failures[1].Err, "no response")

	require.Len(t, client.posts, 3)
	for i, p := range client.posts {
		assert.Equal(t, i+1, p.position)
		assert.Equal(t, canvas.Target{CourseID: "101", AssignmentID: "55"}, p.target)
	}

	require.Len(t, progress.events, 5)
	assert.Equal(t, EventStarted, progress.events[0].Kind)
	assert.True(t, progress.events[1].OK)
	assert.Equal(t, 400, progress.events[2].Status)
	assert.Equal(t, EventFinished, progress.events[4].Kind)

	require.Len(t, runs.reports, 1)
	assert.Equal(t, rep.RunID, runs.reports[0].RunID)
	assert.Equal(t, fixedNow(), rep.FinishedAt)

	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.items.WithLabelValues("ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.items.WithLabelValues("rejected")))
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.items.WithLabelValues("failed")))
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.runs.WithLabelValues(StatusPartial)))
}

func TestRunAllSucceed(t *testing.T) {
	client := &stubCanvas{}
	svc := newTestService(client, nil, ServiceOptions{})

	rep, err := svc.Run(context.Background(), Request{Source: threeQuestions, CourseID: "101"})
	require.NoError(t, err)
	assert.Equal(t, StatusCompleted, rep.Status)
	assert.Equal(t, 3, rep.Succeeded)
	assert.Empty(t, rep.Failures)
	assert.False(t, rep.Published)
	assert.Equal(t, []string{"101/New Quiz"}, client.created)
}

func TestRunAllFail(t *testing.T) {
	client := &stubCanvas{post: func(int) (*canvas.Response, error) {
		return &canvas.Response{StatusCode: 422}, nil
	}}
	svc := newTestService(client, nil, ServiceOptions{Publish: true})

	rep, err := svc.Run(context.Background(), Request{Source: threeQuestions, CourseID: "101"})
	require.NoError(t, err)
	assert.Equal(t, StatusFailed, rep.Status)
	assert.Len(t, rep.Failures, 3)
	assert.Empty(t, client.published)
}

func TestRunWarnsOnInvalidItemsByDefault(t *testing.T) {
	client := &stubCanvas{}
	svc := newTestService(client, nil, ServiceOptions{})

	rep, err := svc.Run(context.Background(), Request{Source: invalidNumeric, CourseID: "101"})
	require.NoError(t, err)
	assert.Equal(t, 1, client.postCount())
	assert.Contains(t, rep.Warnings, "position 1: numeric exactResponse scoring has no value")
}

func TestRunBlocksOnInvalidItemsWhenConfigured(t *testing.T) {
	client := &stubCanvas{}
	runs := &recordingRuns{}
	svc := newTestService(client, runs, ServiceOptions{BlockOnInvalid: true})

	rep, err := svc.Run(context.Background(), Request{Source: invalidNumeric, CourseID: "101"})
	assert.ErrorIs(t, err, ErrBlocked)
	assert.Equal(t, StatusBlocked, rep.Status)
	assert.Empty(t, client.created)
	assert.Zero(t, client.postCount())
	require.Len(t, rep.Preview, 1)
	assert.NotEmpty(t, rep.Preview[0].Problems)
	require.Len(t, runs.reports, 1)
}

func TestRunDryRunTouchesNothing(t *testing.T) {
	client := &stubCanvas{}
	svc := newTestService(client, nil, ServiceOptions{Publish: true})

	rep, err := svc.Run(context.Background(), Request{Source: threeQuestions, DryRun: true})
	require.NoError(t, err)
	assert.Equal(t, StatusDryRun, rep.Status)
	assert.Len(t, rep.Preview, 3)
	assert.Empty(t, client.created)
	assert.Zero(t, client.postCount())
	assert.Empty(t, client.published)
}

func TestRunResetsExistingQuiz(t *testing.T) {
	client := &stubCanvas{}
	svc := newTestService(client, nil, ServiceOptions{})

	rep, err := svc.Run(context.Background(), Request{Source: threeQuestions, CourseID: "101", AssignmentID: "77", Reset: true})
	require.NoError(t, err)
	assert.Empty(t, client.created)
	assert.Equal(t, []canvas.Target{{CourseID: "101", AssignmentID: "77"}}, client.reset)
	assert.Equal(t, 2, rep.Deleted)
	assert.Equal(t, "77", client.posts[0].target.AssignmentID)
}

func TestRunAddsQuizToModule(t *testing.T) {
	client := &stubCanvas{}
	svc := newTestService(client, nil, ServiceOptions{})

	rep, err := svc.Run(context.Background(), Request{Source: threeQuestions, CourseID: "101", Title: "Check-in", ModuleName: "Week 1"})
	require.NoError(t, err)
	assert.Equal(t, "m1", rep.ModuleID)
	assert.Equal(t, []string{"Week 1"}, client.modules)
	assert.Equal(t, []canvas.ModuleItem{{Type: "Assignment", ContentID: "55", Title: "Check-in"}}, client.moduleItem)
}

func TestRunCreateQuizFailure(t *testing.T) {
	client := &stubCanvas{createErr: canvas.ErrNewQuizzesDisabled}
	runs := &recordingRuns{}
	svc := newTestService(client, runs, ServiceOptions{})

	rep, err := svc.Run(context.Background(), Request{Source: threeQuestions, CourseID: "101"})
	assert.ErrorIs(t, err, canvas.ErrNewQuizzesDisabled)
	assert.Equal(t, StatusFailed, rep.Status)
	assert.Zero(t, client.postCount())
	require.Len(t, runs.reports, 1)
}

func TestRunRequiresCourseAndValidRunID(t *testing.T) {
	svc := newTestService(&stubCanvas{}, nil, ServiceOptions{})

	_, err := svc.Run(context.Background(), Request{Source: threeQuestions})
	assert.ErrorIs(t, err, ErrMissingCourse)

	_, err = svc.Run(context.Background(), Request{Source: threeQuestions, CourseID: "1", RunID: "not-a-uuid"})
	assert.Error(t, err)
}

func TestRunWithoutQuestions(t *testing.T) {
	runs := &recordingRuns{}
	svc := newTestService(&stubCanvas{}, runs, ServiceOptions{})

	rep, err := svc.Run(context.Background(), Request{Source: "just prose", CourseID: "101"})
	assert.ErrorIs(t, err, ErrNoQuestions)
	assert.Equal(t, StatusFailed, rep.Status)
}

func TestBuildReportsUnsupportedType(t *testing.T) {
	svc := newTestService(&stubCanvas{}, nil, ServiceOptions{})

	p := svc.build([]quiz.Question{{Type: "drawing", Title: "Q1"}})
	require.Len(t, p.Items, 1)
	assert.Contains(t, p.Items[0].Err, items.ErrUnsupportedType.Error())
	assert.Equal(t, 1, p.Invalid())

	client := &stubCanvas{}
	f, ok := newTestService(client, nil, ServiceOptions{}).submit(context.Background(), canvas.Target{}, p.Items[0])
	assert.False(t, ok)
	assert.Equal(t, 1, f.Position)
	assert.Zero(t, client.postCount())
}

func TestBuildFlagsSynthesizedOptions(t *testing.T) {
	svc := newTestService(&stubCanvas{}, nil, ServiceOptions{})
	qs, err := svc.Questions(context.Background(), Request{Source: "<question><multiple_choice>\nPick one.\n* Only\n</question>"})
	require.NoError(t, err)

	p := svc.build(qs)
	require.Len(t, p.Items, 1)
	assert.Contains(t, p.Items[0].Ambiguities, "placeholder options were added to reach two choices")
}

func TestPreviewUsesCache(t *testing.T) {
	cache := newMemoryCache()
	svc := NewService(&stubCanvas{}, cache, nil, nil, ServiceOptions{}, zerolog.Nop())

	first, err := svc.Preview(context.Background(), Request{Source: threeQuestions})
	require.NoError(t, err)
	assert.Len(t, first.Items, 3)
	assert.Len(t, cache.store, 1)

	second, err := svc.Preview(context.Background(), Request{Source: threeQuestions})
	require.NoError(t, err)
	assert.Equal(t, first, second)
	assert.Equal(t, 2, cache.gets)
	assert.Len(t, cache.store, 1)
}

func TestQuestionsFormats(t *testing.T) {
	conv := &stubConverter{questions: []quiz.Question{{Type: quiz.TypeEssay, Title: "Converted"}}}
	svc := NewService(&stubCanvas{}, nil, nil, conv, ServiceOptions{}, zerolog.Nop())
	ctx := context.Background()

	qs, err := svc.Questions(ctx, Request{Source: "Describe the water cycle in your own words."})
	require.NoError(t, err)
	assert.Equal(t, "Converted", qs[0].Title)
	assert.Equal(t, 1, conv.calls)

	qs, err = svc.Questions(ctx, Request{Source: threeQuestions})
	require.NoError(t, err)
	assert.Len(t, qs, 3)
	assert.Equal(t, 1, conv.calls)

	qs, err = svc.Questions(ctx, Request{Format: "YAML", Source: "questions:\n  - type: essay\n    prompt_html: <p>Why?</p>\n"})
	require.NoError(t, err)
	assert.Equal(t, quiz.TypeEssay, qs[0].Type)

	_, err = svc.Questions(ctx, Request{Format: "json", Source: `{"questions":[]}`})
	assert.ErrorIs(t, err, ErrNoQuestions)

	_, err = svc.Questions(ctx, Request{Format: "docx", Source: "x"})
	assert.Error(t, err)
}

func TestWorkerRunsQueuedRequests(t *testing.T) {
	client := &stubCanvas{}
	svc := newTestService(client, nil, ServiceOptions{})

	queue := make(chan Request, 1)
	queue <- Request{Source: threeQuestions, CourseID: "101"}
	worker := NewWorker(svc, queue, zerolog.Nop(), time.Second)

	done := make(chan struct{})
	go func() {
		worker.Run()
		close(done)
	}()

	assert.Eventually(t, func() bool { return client.postCount() == 3 }, time.Second, 5*time.Millisecond)
	worker.Stop()
	<-done
}

func TestPreviewKeyDependsOnSettings(t *testing.T) {
	a := PreviewKey("markup", "x", false)
	assert.Equal(t, a, PreviewKey("markup", "x", false))
	assert.NotEqual(t, a, PreviewKey("markup", "x", true))
	assert.NotEqual(t, a, PreviewKey("yaml", "x", false))
}

func TestPreviewReadsEveryQuizPage(t *testing.T) {
	source := "<canvas_page>\n<page_title>Check 1</page_title>\n<quiz_start>\n<question><essay>\nOne?\n</question>\n</quiz_end>\n</canvas_page>\n" +
		"<canvas_page>\n<page_title>Check 2</page_title>\n<quiz_start>\n<question><essay>\nTwo?\n</question>\n</quiz_end>\n</canvas_page>"
	svc := newTestService(&stubCanvas{}, nil, ServiceOptions{})

	p, err := svc.Preview(context.Background(), Request{Source: source})
	require.NoError(t, err)
	require.Len(t, p.Items, 2)
	require.Len(t, p.Pages, 2)
	assert.Equal(t, "Check 2", p.Pages[1].Title)
	assert.Equal(t, 2, p.Pages[1].First)
	assert.Empty(t, p.Warnings)
}

func TestRunCarriesStoryboardWarnings(t *testing.T) {
	source := "<quiz_start>\n<question><essay>\nOne?\n</question>\n<question><essay>\nTwo?\n</question>"
	client := &stubCanvas{}
	svc := newTestService(client, nil, ServiceOptions{})

	rep, err := svc.Run(context.Background(), Request{Source: source, CourseID: "101"})
	require.NoError(t, err)
	assert.Equal(t, 2, client.postCount())
	require.NotEmpty(t, rep.Warnings)
	assert.Contains(t, rep.Warnings[0], "1 <quiz_start> and 0 </quiz_end>")
}

func TestSubmitKeepsFailureBodyValidUTF8(t *testing.T) {
	body := strings.Repeat("x", 499) + "日本語のエラー"
	client := &stubCanvas{post: func(int) (*canvas.Response, error) {
		return &canvas.Response{StatusCode: 422, Body: []byte(body)}, nil
	}}
	svc := newTestService(client, nil, ServiceOptions{})

	f, ok := svc.submit(context.Background(), canvas.Target{}, PreviewItem{Position: 1})
	assert.False(t, ok)
	assert.Equal(t, 422, f.Status)
	assert.True(t, utf8.ValidString(f.Body))
	assert.Equal(t, strings.Repeat("x", 499)+"...", f.Body)
}

func TestBuildNotesSeveralCorrectOptions(t *testing.T) {
	svc := newTestService(&stubCanvas{}, nil, ServiceOptions{})
	qs, err := svc.Questions(context.Background(), Request{Source: "<question><multiple_choice>\nPick one.\n* 2\n* 3\n- 4\n</question>"})
	require.NoError(t, err)

	p := svc.build(qs)
	require.Len(t, p.Items, 1)
	assert.Contains(t, p.Items[0].Ambiguities, "2 options are marked correct; only the first is scored")
}
