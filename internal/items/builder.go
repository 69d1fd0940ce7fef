package items

import (
	"errors"
	"fmt"
	"slices"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/gokatarajesh/quiz-uploader/internal/quiz"
)

// ErrUnsupportedType is returned for question types outside quiz.Types.
var ErrUnsupportedType = errors.New("unsupported question type")

// IDGenerator produces opaque identifiers; ids need only be unique within
// one Build call.
type IDGenerator func() string

// Builder converts parsed questions into New Quizzes item payloads.
type Builder struct {
	NewID  IDGenerator
	Logger zerolog.Logger
}

// NewBuilder returns a builder that mints UUIDs.
func NewBuilder(logger zerolog.Logger) *Builder {
	return &Builder{
		NewID:  uuid.NewString,
		Logger: logger.With().Str("component", "item-builder").Logger(),
	}
}

// Build maps one question to its item. The returned item has no position;
// the submitter sets it.
func (b *Builder) Build(q quiz.Question) (Item, error) {
	newID := b.NewID
	if newID == nil {
		newID = uuid.NewString
	}

	item := Item{
		PointsPossible: q.Points,
		EntryType:      "Item",
		Entry: Entry{
			Title:          q.Title,
			ItemBody:       q.Prompt,
			CalculatorType: "none",
			Feedback:       entryFeedback(q.Feedback),
		},
	}
	e := &item.Entry

	switch q.Type {
	case quiz.TypeMultipleChoice:
		choices, correct, fb := choicesFromAnswers(q.Answers, newID)
		var value string
		if len(correct) > 0 {
			value = correct[0]
		}
		if len(correct) > 1 {
			b.Logger.Warn().Str("title", q.Title).Int("correct", len(correct)).Msg("several options marked correct; scoring the first")
			item.Notes = append(item.Notes, fmt.Sprintf("%d options are marked correct; only the first is scored", len(correct)))
		}
		e.InteractionTypeSlug = SlugChoice
		e.ScoringAlgorithm = AlgEquivalence
		e.AnswerFeedback = fb
		vary := false
		e.Properties = EntryProperties{
			ShuffleRules:       &ShuffleRules{Choices: &Shuffled{Shuffled: q.Shuffle}},
			VaryPointsByAnswer: &vary,
		}
		choices, item.Synthesized = b.ensureMinChoices(choices, q.Title, newID)
		ids := choiceIDs(choices)
		if !slices.Contains(ids, value) {
			b.Logger.Warn().Str("title", q.Title).Msg("no correct option resolved; scoring first option")
			value = ids[0]
		}
		e.InteractionData = ChoiceData{Choices: choices, ShuffleAnswers: q.Shuffle}
		e.ScoringData = ScoringData{Value: value}

	case quiz.TypeMultipleAnswer:
		choices, correct, fb := choicesFromAnswers(q.Answers, newID)
		e.InteractionTypeSlug = SlugMultiAnswer
		e.ScoringAlgorithm = AlgPartialScore
		e.AnswerFeedback = fb
		e.Properties = EntryProperties{
			ShuffleRules: &ShuffleRules{Choices: &Shuffled{Shuffled: q.Shuffle}},
		}
		choices, item.Synthesized = b.ensureMinChoices(choices, q.Title, newID)
		ids := choiceIDs(choices)
		value := make([]string, 0, len(correct))
		for _, id := range correct {
			if slices.Contains(ids, id) {
				value = append(value, id)
			}
		}
		e.InteractionData = ChoiceData{Choices: choices, ShuffleAnswers: q.Shuffle}
		e.ScoringData = ScoringData{Value: value}

	case quiz.TypeTrueFalse:
		value := true
		if q.Correct != nil {
			value = *q.Correct
		}
		e.InteractionTypeSlug = SlugTrueFalse
		e.InteractionData = TrueFalseData{TrueChoice: "True", FalseChoice: "False"}
		e.ScoringData = ScoringData{Value: value}
		e.ScoringAlgorithm = AlgEquivalence

	case quiz.TypeShortAnswer:
		blank := quiz.Blank{ID: "b1", Alternatives: q.Accepted}
		data, scoring := buildBlanks(q.Prompt+" {{b1}}", []quiz.Blank{blank}, newID)
		e.InteractionTypeSlug = SlugRichFillBlank
		e.InteractionData = data
		e.ScoringData = ScoringData{Value: scoring}
		e.ScoringAlgorithm = AlgMultipleMethods

	case quiz.TypeFillInBlank:
		text := q.TextWithBlanks
		if text == "" {
			text = q.Prompt
		}
		blanks := q.Blanks
		if len(blanks) == 0 {
			text += " {{b1}}"
			blanks = []quiz.Blank{{ID: "b1", Alternatives: q.Accepted}}
		}
		data, scoring := buildBlanks(text, blanks, newID)
		e.InteractionTypeSlug = SlugRichFillBlank
		e.InteractionData = data
		e.ScoringData = ScoringData{Value: scoring}
		e.ScoringAlgorithm = AlgMultipleMethods

	case quiz.TypeEssay:
		e.InteractionTypeSlug = SlugEssay
		e.InteractionData = EmptyData{}
		e.ScoringData = ScoringData{Value: nil}
		e.ScoringAlgorithm = AlgNone

	case quiz.TypeFileUpload:
		e.InteractionTypeSlug = SlugFileUpload
		e.InteractionData = EmptyData{}
		e.ScoringData = ScoringData{Value: nil}
		e.ScoringAlgorithm = AlgNone

	case quiz.TypeNumeric:
		e.InteractionTypeSlug = SlugNumeric
		e.InteractionData = EmptyData{}
		e.ScoringData = ScoringData{Value: []NumericScore{numericScore(q.Numeric, newID())}}
		e.ScoringAlgorithm = AlgNumeric

	case quiz.TypeMatching:
		data, value := buildMatching(q.Pairs, q.Distractors, newID)
		e.InteractionTypeSlug = SlugMatching
		e.InteractionData = data
		e.Properties = EntryProperties{
			ShuffleRules: &ShuffleRules{Questions: &Shuffled{Shuffled: false}},
		}
		e.ScoringData = ScoringData{Value: value}
		e.ScoringAlgorithm = AlgDeepEquals

	case quiz.TypeOrdering:
		choices := make([]Choice, 0, len(q.Order))
		ids := make([]string, 0, len(q.Order))
		for i, text := range q.Order {
			c := label(newID(), text)
			c.Position = i + 1
			choices = append(choices, c)
			ids = append(ids, c.ID)
		}
		e.InteractionTypeSlug = SlugOrdering
		e.InteractionData = OrderingData{Choices: choices}
		e.ScoringData = ScoringData{Value: ids}
		e.ScoringAlgorithm = AlgDeepEquals

	case quiz.TypeCategorization:
		data, value := buildCategorization(q.Categories, newID)
		e.InteractionTypeSlug = SlugCategorization
		e.InteractionData = data
		e.Properties = EntryProperties{
			ShuffleRules: &ShuffleRules{Questions: &Shuffled{Shuffled: false}},
		}
		e.ScoringData = ScoringData{Value: value}
		e.ScoringAlgorithm = AlgCategorization

	case quiz.TypeHotSpot:
		data := HotSpotData{Hotspots: []HotSpot{}}
		ids := []string{}
		if q.Hotspot != nil {
			data.Image.URL = q.Hotspot.ImageURL
			for _, r := range q.Hotspot.Regions {
				data.Hotspots = append(data.Hotspots, HotSpot{ID: r.ID, X: r.X, Y: r.Y, Width: r.Width, Height: r.Height})
				ids = append(ids, r.ID)
			}
		}
		e.InteractionTypeSlug = SlugHotSpot
		e.InteractionData = data
		e.ScoringData = ScoringData{Value: ids}
		e.ScoringAlgorithm = AlgHotSpot

	case quiz.TypeFormula:
		e.InteractionTypeSlug = SlugFormula
		e.InteractionData = FormulaData{Formula: q.Formula}
		e.ScoringData = ScoringData{Value: []string{}}
		e.ScoringAlgorithm = AlgNumeric

	default:
		return Item{}, fmt.Errorf("%w: %q", ErrUnsupportedType, q.Type)
	}

	return item, nil
}

func entryFeedback(f quiz.Feedback) *Feedback {
	if f.Empty() {
		return nil
	}
	return &Feedback{Correct: f.Correct, Incorrect: f.Incorrect, Neutral: f.Neutral}
}

func label(id, text string) Choice {
	text = strings.TrimSpace(text)
	return Choice{ID: id, Text: text, ItemBody: text}
}

func choicesFromAnswers(answers []quiz.Answer, newID IDGenerator) ([]Choice, []string, map[string]string) {
	choices := make([]Choice, 0, len(answers))
	var correct []string
	feedback := map[string]string{}
	for _, a := range answers {
		if strings.TrimSpace(a.Text) == "" {
			continue
		}
		c := label(newID(), a.Text)
		c.Position = len(choices) + 1
		choices = append(choices, c)
		if a.Correct {
			correct = append(correct, c.ID)
		}
		if a.Feedback != "" {
			feedback[c.ID] = a.Feedback
		}
	}
	if len(feedback) == 0 {
		feedback = nil
	}
	return choices, correct, feedback
}

// ensureMinChoices tops a choice list up to two entries with "Option N"
// placeholders. The prompt is left as authored. It reports whether anything
// was added.
func (b *Builder) ensureMinChoices(choices []Choice, title string, newID IDGenerator) ([]Choice, bool) {
	if len(choices) >= 2 {
		return choices, false
	}
	before := len(choices)
	for len(choices) < 2 {
		c := label(newID(), fmt.Sprintf("Option %d", len(choices)+1))
		c.Position = len(choices) + 1
		choices = append(choices, c)
	}

	b.Logger.Warn().
		Str("title", title).
		Int("authored", before).
		Int("added", len(choices)-before).
		Msg("choice question had fewer than two options; added placeholders")
	return choices, true
}

func buildBlanks(text string, blanks []quiz.Blank, newID IDGenerator) (BlankData, BlankScoring) {
	data := BlankData{TextWithBlanks: text, Blanks: map[string][]Choice{}}
	scoring := BlankScoring{
		BlankToCorrectAnswerIDs: map[string][]string{},
		BlankToCanonicalAnswer:  map[string]string{},
	}
	for _, bl := range blanks {
		alts := make([]Choice, 0, len(bl.Alternatives))
		ids := make([]string, 0, len(bl.Alternatives))
		for _, v := range bl.Alternatives {
			if strings.TrimSpace(v) == "" {
				continue
			}
			c := label(newID(), v)
			alts = append(alts, c)
			ids = append(ids, c.ID)
		}
		data.Blanks[bl.ID] = alts
		scoring.BlankToCorrectAnswerIDs[bl.ID] = ids
		if len(alts) > 0 {
			scoring.BlankToCanonicalAnswer[bl.ID] = alts[0].Text
		}
	}
	return data, scoring
}

func numericScore(spec *quiz.NumericSpec, id string) NumericScore {
	s := NumericScore{ID: id, Type: "exactResponse"}
	if spec == nil {
		return s
	}
	switch {
	case spec.Exact != nil && spec.Tolerance != nil && *spec.Tolerance > 0:
		s.Type = "marginOfError"
		s.Value = formatNumber(*spec.Exact)
		s.Margin = formatNumber(*spec.Tolerance)
		s.MarginType = "absolute"
	case spec.Exact != nil && spec.Precision != nil:
		s.Type = "preciseResponse"
		s.Value = formatNumber(*spec.Exact)
		s.Precision = strconv.Itoa(*spec.Precision)
		s.PrecisionType = "decimals"
	case spec.Exact != nil:
		s.Value = formatNumber(*spec.Exact)
	case spec.Min != nil && spec.Max != nil:
		s.Type = "withinARange"
		s.Start = formatNumber(*spec.Min)
		s.End = formatNumber(*spec.Max)
	}
	return s
}

func formatNumber(f float64) string {
	return strconv.FormatFloat(f, 'f', -1, 64)
}

func buildMatching(pairs []quiz.Pair, distractors []string, newID IDGenerator) (MatchingData, map[string]string) {
	data := MatchingData{Choices: []Choice{}, Prompts: []MatchPrompt{}}
	value := map[string]string{}
	byText := map[string]string{}

	addChoice := func(text string) string {
		text = strings.TrimSpace(text)
		if id, ok := byText[text]; ok {
			return id
		}
		c := label(newID(), text)
		c.Position = len(data.Choices) + 1
		data.Choices = append(data.Choices, c)
		byText[text] = c.ID
		return c.ID
	}

	for _, p := range pairs {
		choiceID := addChoice(p.Match)
		prompt := strings.TrimSpace(p.Prompt)
		mp := MatchPrompt{ID: newID(), Text: prompt, ItemBody: prompt, AnswerChoiceID: choiceID}
		data.Prompts = append(data.Prompts, mp)
		value[mp.ID] = choiceID
	}
	for _, d := range distractors {
		addChoice(d)
	}
	return data, value
}

func buildCategorization(categories []quiz.Category, newID IDGenerator) (CategorizationData, []CategoryScore) {
	data := CategorizationData{
		Categories:    map[string]CategoryDef{},
		CategoryOrder: []string{},
		Choices:       map[string]Choice{},
	}
	value := make([]CategoryScore, 0, len(categories))
	position := 0
	for _, cat := range categories {
		name := strings.TrimSpace(cat.Name)
		catID := newID()
		data.Categories[catID] = CategoryDef{ID: catID, Text: name, ItemBody: name}
		data.CategoryOrder = append(data.CategoryOrder, catID)

		members := make([]string, 0, len(cat.Items))
		for _, text := range cat.Items {
			position++
			c := label(newID(), text)
			c.Position = position
			c.CategoryID = catID
			data.Choices[c.ID] = c
			members = append(members, c.ID)
		}
		value = append(value, CategoryScore{
			ID:               catID,
			ScoringData:      CategoryValue{Value: members},
			ScoringAlgorithm: AlgAllOrNothing,
		})
	}
	return data, value
}

func choiceIDs(choices []Choice) []string {
	ids := make([]string, len(choices))
	for i, c := range choices {
		ids[i] = c.ID
	}
	return ids
}
