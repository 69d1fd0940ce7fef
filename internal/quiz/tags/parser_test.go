package tags

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gokatarajesh/quiz-uploader/internal/quiz"
)

const sampleStoryboard = `<canvas_page>
<quiz_start>
<question><multiple_choice><no_shuffle>
What is 2 + 2?
* 4 <feedback> Correct
3 <feedback> Off by one
5 <feedback> Too high
</question>

<question><true_false>
The sky is blue.
correct: True
</question>

<question><short_answer>
Name a primary color.
answers:
Red
Blue
Yellow
</question>

<question><numeric>
What is the speed (m/s)?
exact: 12.5
tolerance: 0.5
</question>

<question><matching>
Match the chemical to its common name.
pairs:
H2O => Water
NaCl => Salt
</question>

<question><ordering>
Order the stages:
order:
First
Second
Third
</question>

<question><categorization>
Sort animals:
category Mammals:
Dog
Cat
category Birds:
Eagle
Sparrow
</question>

<question><fill_in_blank>
Water formula: H{{b1}}O is {{b2}}.
blank b1:
  - 2
blank b2:
  - water
</question>
</quiz_end>
</canvas_page>`

func TestParseSampleStoryboard(t *testing.T) {
	qs := NewParser().Parse(sampleStoryboard)
	require.Len(t, qs, 8)

	wantTypes := []quiz.Type{
		quiz.TypeMultipleChoice, quiz.TypeTrueFalse, quiz.TypeShortAnswer, quiz.TypeNumeric,
		quiz.TypeMatching, quiz.TypeOrdering, quiz.TypeCategorization, quiz.TypeFillInBlank,
	}
	for i, q := range qs {
		assert.Equal(t, wantTypes[i], q.Type, "question %d", i+1)
		assert.Equal(t, float64(1), q.Points)
		assert.Empty(t, q.Ambiguities, "question %d", i+1)
	}

	mc := qs[0]
	assert.Equal(t, "Question 1", mc.Title)
	assert.False(t, mc.Shuffle)
	assert.Equal(t, "<p>What is 2 + 2?</p>", mc.Prompt)
	assert.Equal(t, []quiz.Answer{
		{Text: "4", Correct: true, Feedback: "<p>Correct</p>"},
		{Text: "3", Feedback: "<p>Off by one</p>"},
		{Text: "5", Feedback: "<p>Too high</p>"},
	}, mc.Answers)

	tf := qs[1]
	require.NotNil(t, tf.Correct)
	assert.True(t, *tf.Correct)
	assert.True(t, tf.Shuffle)

	assert.Equal(t, []string{"Red", "Blue", "Yellow"}, qs[2].Accepted)

	num := qs[3].Numeric
	require.NotNil(t, num)
	require.NotNil(t, num.Exact)
	require.NotNil(t, num.Tolerance)
	assert.Equal(t, 12.5, *num.Exact)
	assert.Equal(t, 0.5, *num.Tolerance)

	assert.Equal(t, []quiz.Pair{{Prompt: "H2O", Match: "Water"}, {Prompt: "NaCl", Match: "Salt"}}, qs[4].Pairs)
	assert.Equal(t, "<p>Match the chemical to its common name.</p>", qs[4].Prompt)

	assert.Equal(t, []string{"First", "Second", "Third"}, qs[5].Order)
	assert.Equal(t, "<p>Order the stages:</p>", qs[5].Prompt)

	assert.Equal(t, []quiz.Category{
		{Name: "Mammals", Items: []string{"Dog", "Cat"}},
		{Name: "Birds", Items: []string{"Eagle", "Sparrow"}},
	}, qs[6].Categories)

	fib := qs[7]
	assert.Equal(t, []quiz.Blank{{ID: "b1", Alternatives: []string{"2"}}, {ID: "b2", Alternatives: []string{"water"}}}, fib.Blanks)
	assert.Equal(t, "<p>Water formula: H{{b1}}O is {{b2}}.</p>", fib.TextWithBlanks)
}

func TestParseChoiceWithInlineFeedback(t *testing.T) {
	qs := NewParser().Parse("<question><multiple_choice>\n* 4 <feedback> Correct\n3 <feedback> Off by one\n</question>")
	require.Len(t, qs, 1)

	q := qs[0]
	require.Len(t, q.Answers, 2)
	assert.True(t, q.Answers[0].Correct)
	assert.False(t, q.Answers[1].Correct)
	assert.Equal(t, "<p>Correct</p>", q.Answers[0].Feedback)
	assert.Equal(t, "<p>Off by one</p>", q.Answers[1].Feedback)
	assert.Equal(t, "<p></p>", q.Prompt)
}

func TestParseOptionPrefixes(t *testing.T) {
	text := "<question><multiple_answer>\nPick the primes.\n* 2\n* 3\n- 4\nA) 9\n1. 11\n</question>"
	qs := NewParser().Parse(text)
	require.Len(t, qs, 1)

	var texts []string
	var correct []string
	for _, a := range qs[0].Answers {
		texts = append(texts, a.Text)
		if a.Correct {
			correct = append(correct, a.Text)
		}
	}
	assert.Equal(t, quiz.TypeMultipleAnswer, qs[0].Type)
	assert.Equal(t, []string{"2", "3", "4", "9", "11"}, texts)
	assert.Equal(t, []string{"2", "3"}, correct)
}

func TestParseBoldPromptLineIsNotAnOption(t *testing.T) {
	qs := NewParser().Parse("<question><multiple_choice>\n**Note:** pick the even number\n* 4\n3\n</question>")
	require.Len(t, qs, 1)

	q := qs[0]
	assert.Equal(t, "<p>**Note:** pick the even number</p>", q.Prompt)
	require.Len(t, q.Answers, 2)
	assert.Equal(t, quiz.Answer{Text: "4", Correct: true}, q.Answers[0])
	assert.Equal(t, quiz.Answer{Text: "3"}, q.Answers[1])
}

func TestParseKeepsNegativeAnswers(t *testing.T) {
	text := "<question><short_answer>\nSolve x + 5 = 0.\nanswers:\n-5\n- -5.0\n</question>" +
		"<question><fill_in_blank>\ntext_with_blanks: The low was {{t}} degrees.\nblank t:\n* -12\n-12.0\n</question>"
	qs := NewParser().Parse(text)
	require.Len(t, qs, 2)

	assert.Equal(t, []string{"-5", "-5.0"}, qs[0].Accepted)
	assert.Equal(t, []quiz.Blank{{ID: "t", Alternatives: []string{"-12", "-12.0"}}}, qs[1].Blanks)
}

func TestParseNoMarkersYieldsNothing(t *testing.T) {
	assert.Empty(t, NewParser().Parse("Just a page of prose with no questions."))
	assert.Empty(t, NewParser().Parse(""))
}

func TestParseUnknownTypeFallsBackToEssay(t *testing.T) {
	qs := NewParser().Parse("<question>\nDescribe photosynthesis <b>briefly</b>.\n</question>")
	require.Len(t, qs, 1)

	assert.Equal(t, quiz.TypeEssay, qs[0].Type)
	assert.Equal(t, "Describe photosynthesis <b>briefly</b>.", qs[0].Prompt)
	assert.NotEmpty(t, qs[0].Ambiguities)
}

func TestParseTrueFalseDefault(t *testing.T) {
	text := "<question><true_false>\nWater is wet.\n</question>"

	qs := NewParser().Parse(text)
	require.Len(t, qs, 1)
	require.NotNil(t, qs[0].Correct)
	assert.True(t, *qs[0].Correct)
	assert.Len(t, qs[0].Ambiguities, 1)

	strict := &Parser{StrictTrueFalse: true}
	qs = strict.Parse(text)
	require.Len(t, qs, 1)
	assert.Equal(t, quiz.TypeEssay, qs[0].Type)
	assert.Nil(t, qs[0].Correct)
	assert.NotEmpty(t, qs[0].Ambiguities)
}

func TestParseTrueFalseValues(t *testing.T) {
	cases := map[string]bool{"false": false, "F": false, "no": false, "0": false, "yes": true, "T": true}
	for v, want := range cases {
		qs := NewParser().Parse("<question><true_false>\nClaim.\ncorrect: " + v + "\n</question>")
		require.Len(t, qs, 1)
		require.NotNil(t, qs[0].Correct)
		assert.Equal(t, want, *qs[0].Correct, v)
		assert.Empty(t, qs[0].Ambiguities, v)
	}
}

func TestParseNumericExactOnly(t *testing.T) {
	qs := NewParser().Parse("<question><numeric>\nHow far?\nexact: 12.5\n</question>")
	require.Len(t, qs, 1)

	n := qs[0].Numeric
	require.NotNil(t, n)
	require.NotNil(t, n.Exact)
	assert.Equal(t, 12.5, *n.Exact)
	assert.Nil(t, n.Tolerance)
	assert.Nil(t, n.Precision)
}

func TestParseNumericRangeAndPrecision(t *testing.T) {
	qs := NewParser().Parse("<question><numeric>\nPick a value.\nmin: 1\nmax: 3\nprecision: 2\n</question>")
	require.Len(t, qs, 1)

	n := qs[0].Numeric
	require.NotNil(t, n.Min)
	require.NotNil(t, n.Max)
	require.NotNil(t, n.Precision)
	assert.Equal(t, 1.0, *n.Min)
	assert.Equal(t, 3.0, *n.Max)
	assert.Equal(t, 2, *n.Precision)
	assert.Empty(t, qs[0].Ambiguities)
}

func TestParseDirectives(t *testing.T) {
	text := `<quiz_start>
<question><essay>
title: Reflection
points: 5
feedback_neutral: Thanks for writing.
Describe your week.
</question>
</quiz>`
	qs := NewParser().Parse(text)
	require.Len(t, qs, 1)

	q := qs[0]
	assert.Equal(t, "Reflection", q.Title)
	assert.Equal(t, 5.0, q.Points)
	assert.Equal(t, "Thanks for writing.", q.Feedback.Neutral)
	assert.Equal(t, "<p>Describe your week.</p>", q.Prompt)
}

func TestParseMatchingDistractors(t *testing.T) {
	text := "<question><matching>\nMatch.\npairs:\nH2O => Water\ndistractors:\nPotash\n</question>"
	qs := NewParser().Parse(text)
	require.Len(t, qs, 1)

	assert.Equal(t, []quiz.Pair{{Prompt: "H2O", Match: "Water"}}, qs[0].Pairs)
	assert.Equal(t, []string{"Potash"}, qs[0].Distractors)
}

func TestParseFillInBlankFallback(t *testing.T) {
	qs := NewParser().Parse("<question><fill_in_blank>\nThe capital of France is\nanswers:\nParis\nparis\n</question>")
	require.Len(t, qs, 1)

	q := qs[0]
	assert.Equal(t, "<p>The capital of France is</p> {{b1}}", q.TextWithBlanks)
	assert.Equal(t, []quiz.Blank{{ID: "b1", Alternatives: []string{"Paris", "paris"}}}, q.Blanks)
}

func TestParseHotSpot(t *testing.T) {
	text := "<question><hot_spot>\nClick the heart.\nimage: https://example.edu/heart.png\nhotspot h1: 10, 20, 30, 40\n</question>"
	qs := NewParser().Parse(text)
	require.Len(t, qs, 1)

	hs := qs[0].Hotspot
	require.NotNil(t, hs)
	assert.Equal(t, "https://example.edu/heart.png", hs.ImageURL)
	assert.Equal(t, []quiz.Region{{ID: "h1", X: 10, Y: 20, Width: 30, Height: 40}}, hs.Regions)
}

func TestNormalize(t *testing.T) {
	assert.Equal(t, "a b\n-  c\n", Normalize("a\u00a0b\r\n• c\r"))
}
