package tags

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/gokatarajesh/quiz-uploader/internal/quiz"
)

var (
	quizBlockRe = regexp.MustCompile(`(?is)<quiz_start\b[^>]*>\s*(.+?)\s*</\s*(?:quiz_end|quiz)\s*>`)
	questionRe  = regexp.MustCompile(`(?is)<question\b[^>]*>\s*(.*?)\s*</\s*question\s*>`)
	flagTagRe   = regexp.MustCompile(`(?i)</?\s*(multiple[_ ]choice|multiple[_ ]answers?|true_false|true/false|short_answer|essay|numeric|matching|ordering|categorization|fill_in_blank|fill in the blank|file_upload|hot_spot|formula|shuffle|no_shuffle)\s*>`)
	noShuffleRe = regexp.MustCompile(`(?i)<\s*no_shuffle\s*>`)
	optionRe    = regexp.MustCompile(`^(\*\s|-\s|[A-Za-z]\)\s|\d+\)\s|[A-Za-z]\.\s|\d+\.\s)`)
	correctRe   = regexp.MustCompile(`^\*\s`)
	markerRe    = regexp.MustCompile(`^[-*](\s+|$)`)
	feedbackRe  = regexp.MustCompile(`(?i)\s*<feedback>\s*`)
	categoryRe  = regexp.MustCompile(`(?i)^category\s+(.+?)\s*:\s*$`)
	blankRe     = regexp.MustCompile(`(?i)^blank\s+([A-Za-z0-9_]+)\s*:\s*$`)
	hotspotRe   = regexp.MustCompile(`(?i)^hotspot\s+([A-Za-z0-9_-]+)\s*:\s*(.+)$`)
	htmlLineRe  = regexp.MustCompile(`(?i)^<(p|div|table|img|ul|ol|figure|pre|h[1-6]|blockquote)\b`)
)

// typeMarkers is checked in order; multi-answer must win over multiple
// choice because authors often write both prefixes loosely.
var typeMarkers = []struct {
	re *regexp.Regexp
	t  quiz.Type
}{
	{regexp.MustCompile(`(?i)<\s*multiple[_ ]answers?\s*>`), quiz.TypeMultipleAnswer},
	{regexp.MustCompile(`(?i)<\s*(true_false|true/false)\s*>`), quiz.TypeTrueFalse},
	{regexp.MustCompile(`(?i)<\s*short_answer\s*>`), quiz.TypeShortAnswer},
	{regexp.MustCompile(`(?i)<\s*essay\s*>`), quiz.TypeEssay},
	{regexp.MustCompile(`(?i)<\s*numeric\s*>`), quiz.TypeNumeric},
	{regexp.MustCompile(`(?i)<\s*matching\s*>`), quiz.TypeMatching},
	{regexp.MustCompile(`(?i)<\s*ordering\s*>`), quiz.TypeOrdering},
	{regexp.MustCompile(`(?i)<\s*categorization\s*>`), quiz.TypeCategorization},
	{regexp.MustCompile(`(?i)<\s*(fill_in_blank|fill in the blank)\s*>`), quiz.TypeFillInBlank},
	{regexp.MustCompile(`(?i)<\s*file_upload\s*>`), quiz.TypeFileUpload},
	{regexp.MustCompile(`(?i)<\s*hot_spot\s*>`), quiz.TypeHotSpot},
	{regexp.MustCompile(`(?i)<\s*formula\s*>`), quiz.TypeFormula},
	{regexp.MustCompile(`(?i)<\s*multiple[_ ]choice\s*>`), quiz.TypeMultipleChoice},
}

// Parser turns storyboard quiz markup into question records.
type Parser struct {
	// StrictTrueFalse makes a true/false question without a "correct:"
	// directive degrade to an essay instead of defaulting to true.
	StrictTrueFalse bool
}

// NewParser returns a parser with the default lenient behavior.
func NewParser() *Parser {
	return &Parser{}
}

// Parse extracts every <question> block in document order. Each
// <quiz_start> block is read; a final block missing its closing tag runs to
// the end of the text. Text without a <quiz_start> wrapper is scanned as a
// whole; text without question markers yields no records.
func (p *Parser) Parse(text string) []quiz.Question {
	var questions []quiz.Question
	for _, body := range quizBodies(Normalize(text)) {
		for _, b := range questionRe.FindAllStringSubmatch(body, -1) {
			questions = append(questions, p.parseBlock(len(questions)+1, b[1]))
		}
	}
	return questions
}

func quizBodies(text string) []string {
	locs := quizBlockRe.FindAllStringSubmatchIndex(text, -1)
	if len(locs) == 0 {
		if loc := quizStartRe.FindStringIndex(text); loc != nil {
			return []string{text[loc[0]:]}
		}
		return []string{text}
	}
	bodies := make([]string, 0, len(locs)+1)
	for _, loc := range locs {
		bodies = append(bodies, text[loc[2]:loc[3]])
	}
	tail := text[locs[len(locs)-1][1]:]
	if loc := quizStartRe.FindStringIndex(tail); loc != nil {
		bodies = append(bodies, tail[loc[0]:])
	}
	return bodies
}

// Normalize folds the typographic noise word processors add into plain text.
func Normalize(text string) string {
	r := strings.NewReplacer(
		"\u00a0", " ",
		"•", "- ",
		"–", "- ",
		"\r\n", "\n",
		"\r", "\n",
	)
	return r.Replace(text)
}

type section int

const (
	sectionNone section = iota
	sectionAnswers
	sectionPairs
	sectionDistractors
	sectionOrder
	sectionCategory
	sectionBlank
	sectionTextWithBlanks
)

type blockState struct {
	q         quiz.Question
	section   section
	prompt    []string
	accepted  []string
	blank     int
	numeric   quiz.NumericSpec
	sawOption bool
}

func (p *Parser) parseBlock(index int, raw string) quiz.Question {
	qtype, ok := detectType(raw)
	if !ok {
		return essayFallback(index, raw, "no recognizable question type marker; treated as essay")
	}

	st := &blockState{
		q: quiz.Question{
			Type:    qtype,
			Title:   fmt.Sprintf("Question %d", index),
			Points:  1,
			Shuffle: !noShuffleRe.MatchString(raw),
		},
		blank: -1,
	}

	for _, line := range strings.Split(raw, "\n") {
		l := strings.TrimSpace(flagTagRe.ReplaceAllString(line, ""))
		if l == "" {
			continue
		}
		st.consume(l)
	}

	return p.finish(index, raw, st)
}

func detectType(raw string) (quiz.Type, bool) {
	for _, m := range typeMarkers {
		if m.re.MatchString(raw) {
			return m.t, true
		}
	}
	return "", false
}

func essayFallback(index int, raw, reason string) quiz.Question {
	return quiz.Question{
		Type:        quiz.TypeEssay,
		Title:       fmt.Sprintf("Question %d", index),
		Prompt:      strings.TrimSpace(raw),
		Points:      1,
		Shuffle:     true,
		Ambiguities: []string{reason},
	}
}

func (st *blockState) consume(l string) {
	lower := strings.ToLower(l)
	q := &st.q

	if v, ok := directive(l, lower, "feedback_correct"); ok {
		q.Feedback.Correct = v
		return
	}
	if v, ok := directive(l, lower, "feedback_incorrect"); ok {
		q.Feedback.Incorrect = v
		return
	}
	if v, ok := directive(l, lower, "feedback_neutral"); ok {
		q.Feedback.Neutral = v
		return
	}
	if v, ok := directive(l, lower, "title"); ok {
		q.Title = v
		return
	}
	if v, ok := directive(l, lower, "points"); ok {
		if f, err := strconv.ParseFloat(v, 64); err == nil && f >= 0 {
			q.Points = f
		} else {
			st.ambiguity("points %q is not a number; kept 1", v)
		}
		return
	}

	if st.header(l, lower) {
		return
	}
	if st.typeDirective(l, lower) {
		return
	}

	if st.section != sectionNone {
		if !strings.HasSuffix(l, ":") {
			st.sectionItem(l)
			return
		}
		st.section = sectionNone
	}

	if q.Type.ChoiceStyle() && st.option(l) {
		return
	}

	st.prompt = append(st.prompt, l)
}

func directive(l, lower, name string) (string, bool) {
	if !strings.HasPrefix(lower, name) {
		return "", false
	}
	rest := strings.TrimSpace(l[len(name):])
	if !strings.HasPrefix(rest, ":") {
		return "", false
	}
	return strings.TrimSpace(rest[1:]), true
}

func (st *blockState) header(l, lower string) bool {
	q := &st.q
	switch q.Type {
	case quiz.TypeShortAnswer:
		if lower == "answers:" {
			st.section = sectionAnswers
			return true
		}
	case quiz.TypeMatching:
		switch lower {
		case "pairs:":
			st.section = sectionPairs
			return true
		case "distractors:":
			st.section = sectionDistractors
			return true
		}
	case quiz.TypeOrdering:
		if lower == "order:" {
			st.section = sectionOrder
			return true
		}
	case quiz.TypeCategorization:
		if m := categoryRe.FindStringSubmatch(l); m != nil {
			q.Categories = append(q.Categories, quiz.Category{Name: strings.TrimSpace(m[1])})
			st.section = sectionCategory
			return true
		}
	case quiz.TypeFillInBlank:
		if lower == "answers:" {
			st.section = sectionAnswers
			return true
		}
		if m := blankRe.FindStringSubmatch(l); m != nil {
			q.Blanks = append(q.Blanks, quiz.Blank{ID: m[1]})
			st.blank = len(q.Blanks) - 1
			st.section = sectionBlank
			return true
		}
		if v, ok := directive(l, lower, "text_with_blanks"); ok {
			q.TextWithBlanks = v
			st.section = sectionNone
			if v == "" {
				st.section = sectionTextWithBlanks
			}
			return true
		}
	}
	return false
}

func (st *blockState) typeDirective(l, lower string) bool {
	q := &st.q
	switch q.Type {
	case quiz.TypeTrueFalse:
		v, ok := directive(l, lower, "correct")
		if !ok {
			return false
		}
		b, known := parseBool(v)
		if !known {
			st.ambiguity("true/false value %q not recognized; defaulted to true", v)
			b = true
		}
		q.Correct = &b
		return true
	case quiz.TypeNumeric:
		for _, name := range []string{"exact", "tolerance", "precision", "min", "max"} {
			v, ok := directive(l, lower, name)
			if !ok {
				continue
			}
			st.numericDirective(name, v)
			return true
		}
	case quiz.TypeHotSpot:
		if v, ok := directive(l, lower, "image"); ok {
			if q.Hotspot == nil {
				q.Hotspot = &quiz.Hotspot{}
			}
			q.Hotspot.ImageURL = v
			return true
		}
		if m := hotspotRe.FindStringSubmatch(l); m != nil {
			st.region(m[1], m[2])
			return true
		}
	case quiz.TypeFormula:
		if v, ok := directive(l, lower, "formula"); ok {
			q.Formula = v
			return true
		}
	}
	return false
}

func (st *blockState) numericDirective(name, v string) {
	if name == "precision" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			st.ambiguity("numeric precision %q is not a non-negative integer; ignored", v)
			return
		}
		st.numeric.Precision = &n
		return
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		st.ambiguity("numeric %s %q is not a number; ignored", name, v)
		return
	}
	switch name {
	case "exact":
		st.numeric.Exact = &f
	case "tolerance":
		st.numeric.Tolerance = &f
	case "min":
		st.numeric.Min = &f
	case "max":
		st.numeric.Max = &f
	}
}

func (st *blockState) region(id, spec string) {
	q := &st.q
	if q.Hotspot == nil {
		q.Hotspot = &quiz.Hotspot{}
	}
	parts := strings.Split(spec, ",")
	if len(parts) != 4 {
		st.ambiguity("hotspot %s needs x,y,width,height; ignored", id)
		return
	}
	var vals [4]float64
	for i, p := range parts {
		f, err := strconv.ParseFloat(strings.TrimSpace(p), 64)
		if err != nil {
			st.ambiguity("hotspot %s coordinate %q is not a number; ignored", id, p)
			return
		}
		vals[i] = f
	}
	q.Hotspot.Regions = append(q.Hotspot.Regions, quiz.Region{
		ID: id, X: vals[0], Y: vals[1], Width: vals[2], Height: vals[3],
	})
}

func (st *blockState) sectionItem(l string) {
	q := &st.q
	item := stripMarker(l)
	if item == "" {
		return
	}
	switch st.section {
	case sectionAnswers:
		st.accepted = append(st.accepted, item)
	case sectionPairs:
		left, right, ok := strings.Cut(l, "=>")
		if !ok {
			st.section = sectionNone
			st.prompt = append(st.prompt, l)
			return
		}
		q.Pairs = append(q.Pairs, quiz.Pair{
			Prompt: stripMarker(left),
			Match:  strings.TrimSpace(right),
		})
	case sectionDistractors:
		q.Distractors = append(q.Distractors, item)
	case sectionOrder:
		q.Order = append(q.Order, item)
	case sectionCategory:
		last := &q.Categories[len(q.Categories)-1]
		last.Items = append(last.Items, item)
	case sectionBlank:
		b := &q.Blanks[st.blank]
		b.Alternatives = append(b.Alternatives, item)
	case sectionTextWithBlanks:
		if q.TextWithBlanks != "" {
			q.TextWithBlanks += " "
		}
		q.TextWithBlanks += l
	}
}

// stripMarker drops one leading "- " or "* " list marker. A bare minus sign
// stays, so negative answers survive.
func stripMarker(l string) string {
	return strings.TrimSpace(markerRe.ReplaceAllString(strings.TrimSpace(l), ""))
}

// option records a choice line. Once the first option is seen every
// following plain line is an option too.
func (st *blockState) option(l string) bool {
	hasFeedback := feedbackRe.MatchString(l)
	prefixed := optionRe.MatchString(l)
	if !prefixed && !hasFeedback && !st.sawOption {
		return false
	}

	correct := correctRe.MatchString(l)
	text := l
	if prefixed {
		text = strings.TrimSpace(optionRe.ReplaceAllString(l, ""))
	}

	var fb string
	if parts := feedbackRe.Split(text, 2); len(parts) == 2 {
		text = strings.TrimSpace(parts[0])
		if f := strings.TrimSpace(parts[1]); f != "" {
			fb = "<p>" + f + "</p>"
		}
	}
	if text == "" {
		return true
	}

	st.sawOption = true
	st.q.Answers = append(st.q.Answers, quiz.Answer{Text: text, Correct: correct, Feedback: fb})
	return true
}

func (st *blockState) ambiguity(format string, args ...any) {
	st.q.Ambiguities = append(st.q.Ambiguities, fmt.Sprintf(format, args...))
}

func (p *Parser) finish(index int, raw string, st *blockState) quiz.Question {
	q := st.q
	q.Prompt = promptHTML(st.prompt)

	switch q.Type {
	case quiz.TypeTrueFalse:
		if q.Correct == nil {
			if p.StrictTrueFalse {
				return essayFallback(index, raw, "true/false question has no correct: directive")
			}
			def := true
			q.Correct = &def
			q.Ambiguities = append(q.Ambiguities, "true/false question has no correct: directive; defaulted to true")
		}
	case quiz.TypeShortAnswer:
		q.Accepted = st.accepted
	case quiz.TypeNumeric:
		spec := st.numeric
		q.Numeric = &spec
		if spec.Exact == nil && (spec.Min == nil || spec.Max == nil) {
			q.Ambiguities = append(q.Ambiguities, "numeric question has no exact: or min:/max: directive")
		}
	case quiz.TypeFillInBlank:
		if len(q.Blanks) == 0 {
			q.TextWithBlanks = strings.TrimSpace(q.Prompt + " {{b1}}")
			q.Blanks = []quiz.Blank{{ID: "b1", Alternatives: st.accepted}}
			if len(st.accepted) == 0 {
				q.Ambiguities = append(q.Ambiguities, "fill-in-blank question has no blanks or answers")
			}
		} else if q.TextWithBlanks == "" {
			q.TextWithBlanks = q.Prompt
		}
	case quiz.TypeHotSpot:
		if q.Hotspot == nil {
			q.Hotspot = &quiz.Hotspot{}
			q.Ambiguities = append(q.Ambiguities, "hot spot question has no image: directive")
		}
	}
	return q
}

func promptHTML(lines []string) string {
	if len(lines) == 0 {
		return "<p></p>"
	}
	var b strings.Builder
	for _, l := range lines {
		if htmlLineRe.MatchString(l) {
			b.WriteString(l)
			continue
		}
		b.WriteString("<p>")
		b.WriteString(l)
		b.WriteString("</p>")
	}
	return b.String()
}

func parseBool(v string) (bool, bool) {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "true", "t", "yes", "y", "1":
		return true, true
	case "false", "f", "no", "n", "0":
		return false, true
	}
	return false, false
}
