package tags

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"gopkg.in/yaml.v3"

	"github.com/gokatarajesh/quiz-uploader/internal/quiz"
)

// ErrNoQuestions is returned when a structured document holds no questions.
var ErrNoQuestions = errors.New("document has no questions")

// Document is the structured alternative to tag markup:
//
//	questions:
//	  - type: multiple_choice
//	    prompt_html: <p>2+2?</p>
//	    answers:
//	      - {text: "4", is_correct: true}
//	      - {text: "3"}
type Document struct {
	Questions []quiz.Question `json:"questions" yaml:"questions"`
}

type presence struct {
	Questions []map[string]any `json:"questions" yaml:"questions"`
}

// DecodeYAML strictly decodes a single YAML document of questions and
// applies the same defaults the tag parser uses.
func DecodeYAML(data []byte) ([]quiz.Question, error) {
	var doc Document
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&doc); err != nil {
		return nil, fmt.Errorf("parse yaml: %w", err)
	}
	if err := decoder.Decode(&struct{}{}); err != io.EOF {
		if err == nil {
			return nil, fmt.Errorf("parse yaml: multiple documents are not supported")
		}
		return nil, fmt.Errorf("parse yaml: %w", err)
	}

	var seen presence
	if err := yaml.Unmarshal(data, &seen); err != nil {
		return nil, fmt.Errorf("parse yaml: %w", err)
	}
	return finishDocument(doc, seen)
}

// DecodeJSON is DecodeYAML for JSON input.
func DecodeJSON(data []byte) ([]quiz.Question, error) {
	var doc Document
	decoder := json.NewDecoder(bytes.NewReader(data))
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(&doc); err != nil {
		return nil, fmt.Errorf("parse json: %w", err)
	}
	if err := decoder.Decode(&struct{}{}); err != io.EOF {
		if err == nil {
			return nil, fmt.Errorf("parse json: multiple documents are not supported")
		}
		return nil, fmt.Errorf("parse json: %w", err)
	}

	var seen presence
	if err := json.Unmarshal(data, &seen); err != nil {
		return nil, fmt.Errorf("parse json: %w", err)
	}
	return finishDocument(doc, seen)
}

func finishDocument(doc Document, seen presence) ([]quiz.Question, error) {
	if len(doc.Questions) == 0 {
		return nil, ErrNoQuestions
	}
	out := make([]quiz.Question, 0, len(doc.Questions))
	for i, q := range doc.Questions {
		t, err := quiz.ParseType(string(q.Type))
		if err != nil {
			return nil, fmt.Errorf("question %d: %w", i+1, err)
		}
		q.Type = t
		if q.Title == "" {
			q.Title = fmt.Sprintf("Question %d", i+1)
		}
		if q.Prompt == "" {
			q.Prompt = "<p></p>"
		}

		var keys map[string]any
		if i < len(seen.Questions) {
			keys = seen.Questions[i]
		}
		if _, ok := keys["points"]; !ok {
			q.Points = 1
		}
		if _, ok := keys["shuffle"]; !ok {
			q.Shuffle = true
		}

		if q.Type == quiz.TypeTrueFalse && q.Correct == nil {
			def := true
			q.Correct = &def
			q.Ambiguities = append(q.Ambiguities, "true/false question has no correct value; defaulted to true")
		}
		out = append(out, q)
	}
	return out, nil
}
