package canvas

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"slices"
	"sort"
	"strings"
)

// User is the token owner as reported by /users/self.
type User struct {
	ID      int64  `json:"id"`
	Name    string `json:"name"`
	LoginID string `json:"login_id,omitempty"`
}

// WhoAmI checks the token by fetching its user.
func (c *Client) WhoAmI(ctx context.Context) (User, error) {
	var u User
	if _, err := c.getJSON(ctx, "/api/v1/users/self", nil, &u); err != nil {
		return User{}, err
	}
	return u, nil
}

var newQuizzesFlags = []string{"quizzes_next", "quizzes.next", "new_quizzes"}

// NewQuizzesEnabled reports whether any New Quizzes feature flag is on for
// the course. An error means the flags could not be read.
func (c *Client) NewQuizzesEnabled(ctx context.Context, courseID string) (bool, error) {
	var flags []string
	path := fmt.Sprintf("/api/v1/courses/%s/features/enabled", url.PathEscape(courseID))
	if _, err := c.getJSON(ctx, path, nil, &flags); err != nil {
		return false, err
	}
	for _, f := range flags {
		if slices.Contains(newQuizzesFlags, f) {
			return true, nil
		}
	}
	return false, nil
}

// Quiz is a freshly created New Quiz shell.
type Quiz struct {
	AssignmentID string          `json:"assignment_id"`
	Raw          json.RawMessage `json:"raw,omitempty"`
}

// Attempt records one HTTP try for diagnostics.
type Attempt struct {
	Where  string `json:"where"`
	Status int    `json:"status"`
	Body   string `json:"body"`
}

// CreateQuizError carries the attempts made before giving up.
type CreateQuizError struct {
	Attempts []Attempt
}

func (e *CreateQuizError) Error() string {
	parts := make([]string, 0, len(e.Attempts))
	for _, a := range e.Attempts {
		parts = append(parts, fmt.Sprintf("%s=%d", a.Where, a.Status))
	}
	return "canvas: create new quiz failed (" + strings.Join(parts, ", ") + ")"
}

// CreateQuiz creates an empty New Quiz, trying a JSON body first and a
// form body second. A course with New Quizzes explicitly off fails fast
// with ErrNewQuizzesDisabled; an unreadable flag list is not fatal.
func (c *Client) CreateQuiz(ctx context.Context, courseID, title, description string) (Quiz, error) {
	enabled, err := c.NewQuizzesEnabled(ctx, courseID)
	switch {
	case err != nil:
		c.logger.Warn().Err(err).Str("course_id", courseID).Msg("feature flag preflight failed; continuing")
	case !enabled:
		return Quiz{}, ErrNewQuizzesDisabled
	}

	path := fmt.Sprintf("/api/quiz/v1/courses/%s/quizzes", url.PathEscape(courseID))
	var attempts []Attempt

	resp, err := c.postJSON(ctx, http.MethodPost, path, map[string]any{
		"title":           title,
		"description":     description,
		"points_possible": 0,
	})
	if err != nil {
		return Quiz{}, err
	}
	attempts = append(attempts, Attempt{Where: "json", Status: resp.StatusCode, Body: Snippet(resp.Body, 300)})
	if !resp.OK() {
		resp, err = c.postForm(ctx, http.MethodPost, path, url.Values{
			"quiz[title]":           {title},
			"quiz[description]":     {description},
			"quiz[points_possible]": {"0"},
		})
		if err != nil {
			return Quiz{}, err
		}
		attempts = append(attempts, Attempt{Where: "form", Status: resp.StatusCode, Body: Snippet(resp.Body, 300)})
	}
	if !resp.OK() {
		return Quiz{}, &CreateQuizError{Attempts: attempts}
	}

	quiz := Quiz{AssignmentID: extractAssignmentID(resp.Body), Raw: resp.Body}
	if quiz.AssignmentID == "" {
		id, err := c.findAssignmentID(ctx, courseID, title)
		if err != nil {
			return quiz, fmt.Errorf("locate assignment for new quiz: %w", err)
		}
		quiz.AssignmentID = id
	}
	if quiz.AssignmentID == "" {
		return quiz, errors.New("canvas: created quiz but could not determine assignment id")
	}
	return quiz, nil
}

// extractAssignmentID looks for assignment_id at the top level and under the
// wrapper objects different Canvas versions use.
func extractAssignmentID(body []byte) string {
	var doc map[string]any
	if err := json.Unmarshal(body, &doc); err != nil {
		return ""
	}
	if id := idString(doc["assignment_id"]); id != "" {
		return id
	}
	for _, key := range []string{"quiz", "data", "result"} {
		if nested, ok := doc[key].(map[string]any); ok {
			if id := idString(nested["assignment_id"]); id != "" {
				return id
			}
		}
	}
	return ""
}

type assignment struct {
	ID                 any      `json:"id"`
	Name               string   `json:"name"`
	UpdatedAt          string   `json:"updated_at"`
	SubmissionTypes    []string `json:"submission_types"`
	ExternalToolTagURL struct {
		URL string `json:"url"`
	} `json:"external_tool_tag_attributes"`
}

var newQuizURLHints = []string{"quizzes-next", "quizzes.next", "new_quiz", "new-quizzes", "quizzes"}

// findAssignmentID searches assignments by title, preferring the most
// recently updated external-tool assignment that points at New Quizzes.
func (c *Client) findAssignmentID(ctx context.Context, courseID, title string) (string, error) {
	var list []assignment
	path := fmt.Sprintf("/api/v1/courses/%s/assignments", url.PathEscape(courseID))
	query := url.Values{"search_term": {title}, "per_page": {"100"}}
	if _, err := c.getJSON(ctx, path, query, &list); err != nil {
		return "", err
	}

	var candidates, sameTitle []assignment
	for _, a := range list {
		if a.Name == title {
			sameTitle = append(sameTitle, a)
		}
		if !slices.Contains(a.SubmissionTypes, "external_tool") {
			continue
		}
		hint := strings.ToLower(a.ExternalToolTagURL.URL)
		for _, k := range newQuizURLHints {
			if strings.Contains(hint, k) {
				candidates = append(candidates, a)
				break
			}
		}
	}
	for _, group := range [][]assignment{candidates, sameTitle} {
		if len(group) == 0 {
			continue
		}
		sort.SliceStable(group, func(i, j int) bool { return group[i].UpdatedAt > group[j].UpdatedAt })
		return idString(group[0].ID), nil
	}
	return "", nil
}

// PublishAssignment publishes the assignment backing a New Quiz.
func (c *Client) PublishAssignment(ctx context.Context, courseID, assignmentID string) error {
	path := fmt.Sprintf("/api/v1/courses/%s/assignments/%s", url.PathEscape(courseID), url.PathEscape(assignmentID))
	resp, err := c.postForm(ctx, http.MethodPut, path, url.Values{"assignment[published]": {"true"}})
	if err != nil {
		return err
	}
	if !resp.OK() {
		return statusError("publish assignment", resp)
	}
	return nil
}

// AssignmentURL is the browser link for an assignment.
func (c *Client) AssignmentURL(courseID, assignmentID string) string {
	return fmt.Sprintf("%s/courses/%s/assignments/%s", c.baseURL, courseID, assignmentID)
}
