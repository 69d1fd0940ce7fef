package items

import (
	"fmt"
	"slices"
)

// Validate inspects a built item and returns human-readable problems. An
// empty result means the item passed. Validate never modifies the item.
func Validate(item Item) []string {
	var problems []string
	add := func(format string, args ...any) {
		problems = append(problems, fmt.Sprintf(format, args...))
	}
	e := item.Entry
	value := e.ScoringData.Value

	switch e.InteractionTypeSlug {
	case SlugChoice, SlugMultiAnswer:
		data, ok := e.InteractionData.(ChoiceData)
		if !ok {
			add("%s interaction data has unexpected shape", e.InteractionTypeSlug)
			break
		}
		if len(data.Choices) < 2 {
			add("%s interaction needs at least 2 choices, has %d", e.InteractionTypeSlug, len(data.Choices))
		}
		ids := choiceIDs(data.Choices)
		if e.InteractionTypeSlug == SlugChoice {
			v, ok := value.(string)
			if !ok || !slices.Contains(ids, v) {
				add("choice scoring value does not reference a choice")
			}
			break
		}
		v, ok := value.([]string)
		if !ok {
			add("multi-answer scoring value must be a list of choice ids")
			break
		}
		for _, id := range v {
			if !slices.Contains(ids, id) {
				add("multi-answer scoring value references unknown choice %s", id)
			}
		}

	case SlugRichFillBlank:
		data, ok := e.InteractionData.(BlankData)
		v, vok := value.(BlankScoring)
		if !ok || !vok {
			add("rich-fill-blank payload has unexpected shape")
			break
		}
		if len(v.BlankToCorrectAnswerIDs) == 0 {
			add("rich-fill-blank has no blank-to-answer mapping")
		}
		for blank, answerIDs := range v.BlankToCorrectAnswerIDs {
			if len(answerIDs) == 0 {
				add("blank %s has no accepted answers", blank)
			}
			ids := choiceIDs(data.Blanks[blank])
			for _, id := range answerIDs {
				if !slices.Contains(ids, id) {
					add("blank %s references unknown answer %s", blank, id)
				}
			}
		}

	case SlugNumeric:
		v, ok := value.([]NumericScore)
		if !ok || len(v) == 0 {
			add("numeric scoring value is empty")
			break
		}
		for _, s := range v {
			if s.Value == "" && (s.Start == "" || s.End == "") {
				add("numeric %s scoring has no value", s.Type)
			}
		}

	case SlugMatching:
		data, ok := e.InteractionData.(MatchingData)
		v, vok := value.(map[string]string)
		if !ok || !vok {
			add("matching payload has unexpected shape")
			break
		}
		if len(data.Choices) == 0 || len(data.Prompts) == 0 {
			add("matching interaction needs choices and prompts")
		}
		choices := choiceIDs(data.Choices)
		prompts := make([]string, len(data.Prompts))
		for i, p := range data.Prompts {
			prompts[i] = p.ID
		}
		for promptID, choiceID := range v {
			if !slices.Contains(prompts, promptID) {
				add("matching scoring references unknown prompt %s", promptID)
			}
			if !slices.Contains(choices, choiceID) {
				add("matching scoring references unknown choice %s", choiceID)
			}
		}

	case SlugOrdering:
		data, ok := e.InteractionData.(OrderingData)
		v, vok := value.([]string)
		if !ok || !vok {
			add("ordering payload has unexpected shape")
			break
		}
		if len(data.Choices) == 0 || len(v) == 0 {
			add("ordering interaction needs choices and an order")
		}
		ids := choiceIDs(data.Choices)
		for _, id := range v {
			if !slices.Contains(ids, id) {
				add("ordering scoring references unknown choice %s", id)
			}
		}

	case SlugCategorization:
		data, ok := e.InteractionData.(CategorizationData)
		v, vok := value.([]CategoryScore)
		if !ok || !vok {
			add("categorization payload has unexpected shape")
			break
		}
		if len(data.Categories) == 0 || len(data.Choices) == 0 {
			add("categorization interaction needs categories and choices")
		}
		for _, c := range data.Choices {
			if _, ok := data.Categories[c.CategoryID]; !ok {
				add("choice %s references unknown category %s", c.ID, c.CategoryID)
			}
		}
		for _, block := range v {
			if _, ok := data.Categories[block.ID]; !ok {
				add("categorization scoring references unknown category %s", block.ID)
			}
			for _, id := range block.ScoringData.Value {
				if _, ok := data.Choices[id]; !ok {
					add("categorization scoring references unknown choice %s", id)
				}
			}
		}

	case SlugHotSpot:
		data, ok := e.InteractionData.(HotSpotData)
		if !ok {
			add("hot-spot interaction data has unexpected shape")
			break
		}
		if data.Image.URL == "" {
			add("hot-spot interaction has no image url")
		}

	case SlugTrueFalse:
		if _, ok := value.(bool); !ok {
			add("true-false scoring value must be a boolean")
		}

	case SlugEssay, SlugFileUpload, SlugFormula:

	default:
		add("unknown interaction type %q", e.InteractionTypeSlug)
	}

	return problems
}
