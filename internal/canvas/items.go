package canvas

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/gokatarajesh/quiz-uploader/internal/items"
)

// Encoding is a request body format for item submission.
type Encoding string

const (
	// EncodingForm posts item=<json> as application/x-www-form-urlencoded.
	EncodingForm Encoding = "form"
	// EncodingJSON posts {"item": ...} as application/json.
	EncodingJSON Encoding = "json"
)

// RetryPolicy controls PostItem. Delays are slept between rounds after a
// 5xx or network failure; Encodings are tried in order within a round.
type RetryPolicy struct {
	Delays    []time.Duration
	Encodings []Encoding
}

func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		Delays:    []time.Duration{time.Second, 2 * time.Second, 3 * time.Second, 5 * time.Second, 8 * time.Second},
		Encodings: []Encoding{EncodingForm, EncodingJSON},
	}
}

// ParseEncodings validates encoding names from configuration.
func ParseEncodings(names []string) ([]Encoding, error) {
	out := make([]Encoding, 0, len(names))
	for _, n := range names {
		switch e := Encoding(strings.ToLower(strings.TrimSpace(n))); e {
		case EncodingForm, EncodingJSON:
			out = append(out, e)
		default:
			return nil, fmt.Errorf("unknown submit encoding %q", n)
		}
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("at least one submit encoding is required")
	}
	return out, nil
}

// Target addresses one New Quiz.
type Target struct {
	CourseID     string
	AssignmentID string
}

func (t Target) itemsPath() string {
	return fmt.Sprintf("/api/quiz/v1/courses/%s/quizzes/%s/items", url.PathEscape(t.CourseID), url.PathEscape(t.AssignmentID))
}

// PostItem submits one item at the given position.
//
// Within a round each encoding is tried in order: a 2xx returns at once, a
// 5xx or transport error ends the round and the next delay is slept before
// starting over, and a 4xx falls through to the next encoding. A round in
// which every encoding got a 4xx returns the last response without retry.
// At most len(Delays)+1 rounds run. The latest response is returned; the
// error is set only when no response was ever received or ctx ended.
func (c *Client) PostItem(ctx context.Context, t Target, item *items.Item, position int) (*Response, error) {
	path := t.itemsPath()
	rounds := len(c.policy.Delays) + 1

	var last *Response
	var lastErr error
	for round := 0; round < rounds; round++ {
		if round > 0 {
			delay := c.policy.Delays[round-1]
			if err := c.sleep(ctx, delay); err != nil {
				return last, err
			}
		}

		retry := false
		for _, enc := range c.policy.Encodings {
			item.Position = position
			resp, err := c.sendItem(ctx, path, enc, item)
			if err != nil {
				lastErr = err
				retry = true
				c.logger.Warn().Err(err).Int("position", position).Str("encoding", string(enc)).
					Int("round", round+1).Msg("item submit failed; will retry")
				break
			}
			last = resp
			if resp.OK() {
				return resp, nil
			}
			if resp.StatusCode >= 500 {
				retry = true
				c.logger.Warn().Int("status", resp.StatusCode).Int("position", position).Str("encoding", string(enc)).
					Int("round", round+1).Msg("item submit server error; will retry")
				break
			}
			c.logger.Debug().Int("status", resp.StatusCode).Int("position", position).Str("encoding", string(enc)).
				Msg("item submit rejected; trying next encoding")
		}
		if !retry {
			return last, nil
		}
	}

	if last == nil {
		return nil, fmt.Errorf("%w: %v", ErrNoResponse, lastErr)
	}
	return last, nil
}

func (c *Client) sendItem(ctx context.Context, path string, enc Encoding, item *items.Item) (*Response, error) {
	switch enc {
	case EncodingJSON:
		return c.postJSON(ctx, http.MethodPost, path, map[string]any{"item": item})
	default:
		raw, err := json.Marshal(item)
		if err != nil {
			return nil, err
		}
		return c.postForm(ctx, http.MethodPost, path, url.Values{"item": {string(raw)}})
	}
}

// QuizItem is the part of an existing quiz item needed for cleanup.
type QuizItem struct {
	ID       string
	Position int
}

// ListItems returns the items currently on a quiz.
func (c *Client) ListItems(ctx context.Context, t Target) ([]QuizItem, error) {
	var raw []struct {
		ID       any `json:"id"`
		Position int `json:"position"`
	}
	if _, err := c.getJSON(ctx, t.itemsPath(), nil, &raw); err != nil {
		return nil, err
	}
	out := make([]QuizItem, 0, len(raw))
	for _, r := range raw {
		out = append(out, QuizItem{ID: idString(r.ID), Position: r.Position})
	}
	return out, nil
}

// DeleteItem removes one item; 200 and 204 count as success.
func (c *Client) DeleteItem(ctx context.Context, t Target, itemID string) error {
	resp, err := c.do(ctx, http.MethodDelete, c.url(t.itemsPath()+"/"+url.PathEscape(itemID), nil), "", nil)
	if err != nil {
		return err
	}
	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusNoContent {
		return statusError("DELETE item "+itemID, resp)
	}
	return nil
}

// DeleteAllItems empties a quiz and reports how many items were removed.
// Individual delete failures are logged and skipped.
func (c *Client) DeleteAllItems(ctx context.Context, t Target) (int, error) {
	existing, err := c.ListItems(ctx, t)
	if err != nil {
		return 0, err
	}
	deleted := 0
	for _, it := range existing {
		if err := c.DeleteItem(ctx, t, it.ID); err != nil {
			c.logger.Warn().Err(err).Str("item_id", it.ID).Msg("delete item failed")
			continue
		}
		deleted++
	}
	return deleted, nil
}
