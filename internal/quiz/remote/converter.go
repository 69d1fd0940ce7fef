package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/gokatarajesh/quiz-uploader/internal/quiz"
	"github.com/gokatarajesh/quiz-uploader/internal/quiz/tags"
)

// Config holds connection details for the structuring service.
type Config struct {
	URL     string
	APIKey  string
	Timeout time.Duration
}

// Converter asks an external service to turn free-form storyboard text into
// structured questions. It is used when the text carries no quiz markup.
type Converter struct {
	httpClient *http.Client
	config     Config
	logger     zerolog.Logger
	convertURL string
}

func NewConverter(cfg Config, logger zerolog.Logger) *Converter {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Converter{
		httpClient: &http.Client{Timeout: timeout},
		config:     cfg,
		logger:     logger.With().Str("component", "converter").Logger(),
		convertURL: strings.TrimSuffix(cfg.URL, "/") + "/convert",
	}
}

type convertRequest struct {
	Text string `json:"text"`
}

// Convert posts the text and strictly decodes the returned question
// document.
func (c *Converter) Convert(ctx context.Context, text string) ([]quiz.Question, error) {
	if c.config.URL == "" {
		return nil, fmt.Errorf("converter endpoint not configured")
	}

	body, err := json.Marshal(convertRequest{Text: text})
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.convertURL, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	if c.config.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.config.APIKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return nil, fmt.Errorf("converter returned status %d", resp.StatusCode)
	}
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read converter payload: %w", err)
	}

	questions, err := tags.DecodeJSON(data)
	if err != nil {
		return nil, fmt.Errorf("decode converter payload: %w", err)
	}
	c.logger.Info().Int("questions", len(questions)).Msg("converted storyboard text")
	return questions, nil
}
