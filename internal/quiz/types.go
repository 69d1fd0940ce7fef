package quiz

import (
	"fmt"
	"strings"
)

// Type is the closed set of question kinds an author can tag.
type Type string

const (
	TypeMultipleChoice Type = "multiple_choice"
	TypeMultipleAnswer Type = "multiple_answer"
	TypeTrueFalse      Type = "true_false"
	TypeShortAnswer    Type = "short_answer"
	TypeEssay          Type = "essay"
	TypeNumeric        Type = "numeric"
	TypeMatching       Type = "matching"
	TypeOrdering       Type = "ordering"
	TypeCategorization Type = "categorization"
	TypeFillInBlank    Type = "fill_in_blank"
	TypeFileUpload     Type = "file_upload"
	TypeHotSpot        Type = "hot_spot"
	TypeFormula        Type = "formula"
)

// Types lists every supported question kind in display order.
var Types = []Type{
	TypeMultipleChoice,
	TypeMultipleAnswer,
	TypeTrueFalse,
	TypeShortAnswer,
	TypeEssay,
	TypeNumeric,
	TypeMatching,
	TypeOrdering,
	TypeCategorization,
	TypeFillInBlank,
	TypeFileUpload,
	TypeHotSpot,
	TypeFormula,
}

var typeAliases = map[string]Type{
	"multiple_answers":  TypeMultipleAnswer,
	"multiple answers":  TypeMultipleAnswer,
	"multiple choice":   TypeMultipleChoice,
	"true/false":        TypeTrueFalse,
	"fill in the blank": TypeFillInBlank,
	"fill_in_the_blank": TypeFillInBlank,
	"hotspot":           TypeHotSpot,
	"file":              TypeFileUpload,
	"numerical":         TypeNumeric,

	"multiple_choice_question":         TypeMultipleChoice,
	"multiple_answers_question":        TypeMultipleAnswer,
	"true_false_question":              TypeTrueFalse,
	"short_answer_question":            TypeShortAnswer,
	"essay_question":                   TypeEssay,
	"numerical_question":               TypeNumeric,
	"matching_question":                TypeMatching,
	"fill_in_multiple_blanks_question": TypeFillInBlank,
}

// ParseType resolves a type name or one of its known aliases.
func ParseType(s string) (Type, error) {
	key := strings.ToLower(strings.TrimSpace(s))
	t := Type(key)
	if t.Valid() {
		return t, nil
	}
	if alias, ok := typeAliases[key]; ok {
		return alias, nil
	}
	return "", fmt.Errorf("unknown question type %q", s)
}

// Valid reports whether t belongs to the supported set.
func (t Type) Valid() bool {
	for _, known := range Types {
		if t == known {
			return true
		}
	}
	return false
}

// ChoiceStyle reports whether the type is answered by picking options.
func (t Type) ChoiceStyle() bool {
	return t == TypeMultipleChoice || t == TypeMultipleAnswer
}

func (t Type) String() string { return string(t) }

// Question is the normalized record produced by the tag parser. Only the
// payload field that matches Type is populated.
type Question struct {
	Type     Type     `json:"type" yaml:"type"`
	Title    string   `json:"title" yaml:"title"`
	Prompt   string   `json:"prompt_html" yaml:"prompt_html"`
	Points   float64  `json:"points" yaml:"points"`
	Shuffle  bool     `json:"shuffle" yaml:"shuffle"`
	Feedback Feedback `json:"feedback,omitempty" yaml:"feedback,omitempty"`

	Answers        []Answer     `json:"answers,omitempty" yaml:"answers,omitempty"`
	Correct        *bool        `json:"correct,omitempty" yaml:"correct,omitempty"`
	Accepted       []string     `json:"accepted,omitempty" yaml:"accepted,omitempty"`
	Numeric        *NumericSpec `json:"numeric,omitempty" yaml:"numeric,omitempty"`
	Pairs          []Pair       `json:"pairs,omitempty" yaml:"pairs,omitempty"`
	Distractors    []string     `json:"distractors,omitempty" yaml:"distractors,omitempty"`
	Order          []string     `json:"order,omitempty" yaml:"order,omitempty"`
	Categories     []Category   `json:"categories,omitempty" yaml:"categories,omitempty"`
	TextWithBlanks string       `json:"text_with_blanks,omitempty" yaml:"text_with_blanks,omitempty"`
	Blanks         []Blank      `json:"blanks,omitempty" yaml:"blanks,omitempty"`
	Hotspot        *Hotspot     `json:"hotspot,omitempty" yaml:"hotspot,omitempty"`
	Formula        string       `json:"formula,omitempty" yaml:"formula,omitempty"`

	// Ambiguities records defaults the parser had to apply.
	Ambiguities []string `json:"ambiguities,omitempty" yaml:"-"`
}

// Answer is one authored option of a choice-style question.
type Answer struct {
	Text     string `json:"text" yaml:"text"`
	Correct  bool   `json:"is_correct" yaml:"is_correct"`
	Feedback string `json:"feedback_html,omitempty" yaml:"feedback_html,omitempty"`
}

// Feedback holds question-level rich-text feedback.
type Feedback struct {
	Correct   string `json:"correct,omitempty" yaml:"correct,omitempty"`
	Incorrect string `json:"incorrect,omitempty" yaml:"incorrect,omitempty"`
	Neutral   string `json:"neutral,omitempty" yaml:"neutral,omitempty"`
}

// Empty reports whether no feedback text is set.
func (f Feedback) Empty() bool {
	return f.Correct == "" && f.Incorrect == "" && f.Neutral == ""
}

// NumericSpec carries the author's numeric answer directives. Nil pointers
// mean the directive was absent.
type NumericSpec struct {
	Exact     *float64 `json:"exact,omitempty" yaml:"exact,omitempty"`
	Tolerance *float64 `json:"tolerance,omitempty" yaml:"tolerance,omitempty"`
	Precision *int     `json:"precision,omitempty" yaml:"precision,omitempty"`
	Min       *float64 `json:"min,omitempty" yaml:"min,omitempty"`
	Max       *float64 `json:"max,omitempty" yaml:"max,omitempty"`
}

// Pair is one LEFT => RIGHT matching line.
type Pair struct {
	Prompt string `json:"prompt" yaml:"prompt"`
	Match  string `json:"match" yaml:"match"`
}

// Category is a named bucket with its member items.
type Category struct {
	Name  string   `json:"name" yaml:"name"`
	Items []string `json:"items" yaml:"items"`
}

// Blank is one fill-in slot; the first alternative is canonical.
type Blank struct {
	ID           string   `json:"id" yaml:"id"`
	Alternatives []string `json:"correct" yaml:"correct"`
}

// Hotspot describes an image with clickable regions.
type Hotspot struct {
	ImageURL string   `json:"image_url" yaml:"image_url"`
	Regions  []Region `json:"regions,omitempty" yaml:"regions,omitempty"`
}

// Region is a rectangular hot spot in image coordinates.
type Region struct {
	ID     string  `json:"id" yaml:"id"`
	X      float64 `json:"x" yaml:"x"`
	Y      float64 `json:"y" yaml:"y"`
	Width  float64 `json:"width" yaml:"width"`
	Height float64 `json:"height" yaml:"height"`
}
