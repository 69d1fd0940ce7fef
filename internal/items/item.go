package items

// Interaction slugs understood by the New Quizzes items API.
const (
	SlugChoice         = "choice"
	SlugMultiAnswer    = "multi-answer"
	SlugTrueFalse      = "true-false"
	SlugRichFillBlank  = "rich-fill-blank"
	SlugEssay          = "essay"
	SlugNumeric        = "numeric"
	SlugMatching       = "matching"
	SlugOrdering       = "ordering"
	SlugCategorization = "categorization"
	SlugFileUpload     = "file-upload"
	SlugHotSpot        = "hot-spot"
	SlugFormula        = "formula"
)

// Scoring algorithms.
const (
	AlgEquivalence     = "Equivalence"
	AlgPartialScore    = "PartialScore"
	AlgMultipleMethods = "MultipleMethods"
	AlgNone            = "None"
	AlgNumeric         = "Numeric"
	AlgDeepEquals      = "DeepEquals"
	AlgCategorization  = "Categorization"
	AlgHotSpot         = "HotSpot"
	AlgAllOrNothing    = "AllOrNothing"
)

// Item is the envelope posted to /quizzes/:assignment/items.
type Item struct {
	Position       int     `json:"position"`
	PointsPossible float64 `json:"points_possible"`
	EntryType      string  `json:"entry_type"`
	Entry          Entry   `json:"entry"`

	// Synthesized is set when placeholder options had to be added.
	Synthesized bool `json:"-"`
	// Notes describe choices the builder made on the author's behalf.
	Notes []string `json:"-"`
}

// Entry is the interaction-specific part of an item.
type Entry struct {
	Title               string            `json:"title"`
	ItemBody            string            `json:"item_body"`
	CalculatorType      string            `json:"calculator_type"`
	InteractionTypeSlug string            `json:"interaction_type_slug"`
	InteractionData     any               `json:"interaction_data"`
	Properties          EntryProperties   `json:"properties"`
	ScoringData         ScoringData       `json:"scoring_data"`
	ScoringAlgorithm    string            `json:"scoring_algorithm"`
	Feedback            *Feedback         `json:"feedback,omitempty"`
	AnswerFeedback      map[string]string `json:"answer_feedback,omitempty"`
}

type EntryProperties struct {
	ShuffleRules       *ShuffleRules `json:"shuffle_rules,omitempty"`
	VaryPointsByAnswer *bool         `json:"vary_points_by_answer,omitempty"`
}

type ShuffleRules struct {
	Choices   *Shuffled `json:"choices,omitempty"`
	Questions *Shuffled `json:"questions,omitempty"`
}

type Shuffled struct {
	Shuffled bool `json:"shuffled"`
}

type Feedback struct {
	Correct   string `json:"correct,omitempty"`
	Incorrect string `json:"incorrect,omitempty"`
	Neutral   string `json:"neutral,omitempty"`
}

// ScoringData wraps the scoring key. Value holds one of: string, []string,
// bool, BlankScoring, []NumericScore, map[string]string, []CategoryScore or
// nil, depending on the interaction.
type ScoringData struct {
	Value any `json:"value"`
}

// Choice is a selectable option with a generated id.
type Choice struct {
	ID         string `json:"id"`
	Position   int    `json:"position,omitempty"`
	Text       string `json:"text"`
	ItemBody   string `json:"item_body"`
	CategoryID string `json:"category_id,omitempty"`
}

type ChoiceData struct {
	Choices        []Choice `json:"choices"`
	ShuffleAnswers bool     `json:"shuffle_answers"`
}

type TrueFalseData struct {
	TrueChoice  string `json:"true_choice"`
	FalseChoice string `json:"false_choice"`
}

type BlankData struct {
	TextWithBlanks string              `json:"text_with_blanks"`
	Blanks         map[string][]Choice `json:"blanks"`
}

type BlankScoring struct {
	BlankToCorrectAnswerIDs map[string][]string `json:"blank_to_correct_answer_ids"`
	BlankToCanonicalAnswer  map[string]string   `json:"blank_to_canonical_answer,omitempty"`
}

// NumericScore is one of exactResponse, marginOfError, preciseResponse or
// withinARange; only the fields of its Type are set.
type NumericScore struct {
	ID            string `json:"id"`
	Type          string `json:"type"`
	Value         string `json:"value,omitempty"`
	Margin        string `json:"margin,omitempty"`
	MarginType    string `json:"margin_type,omitempty"`
	Precision     string `json:"precision,omitempty"`
	PrecisionType string `json:"precision_type,omitempty"`
	Start         string `json:"start,omitempty"`
	End           string `json:"end,omitempty"`
}

type MatchPrompt struct {
	ID             string `json:"id"`
	Text           string `json:"text"`
	ItemBody       string `json:"item_body"`
	AnswerChoiceID string `json:"answer_choice_id"`
}

type MatchingData struct {
	Choices []Choice      `json:"choices"`
	Prompts []MatchPrompt `json:"prompts"`
}

type OrderingData struct {
	Choices []Choice `json:"choices"`
}

type CategoryDef struct {
	ID       string `json:"id"`
	Text     string `json:"text"`
	ItemBody string `json:"item_body"`
}

// CategorizationData keys categories and choices by id; CategoryOrder keeps
// the authored order since JSON objects are unordered.
type CategorizationData struct {
	Categories    map[string]CategoryDef `json:"categories"`
	CategoryOrder []string               `json:"category_order"`
	Choices       map[string]Choice      `json:"choices"`
}

type CategoryScore struct {
	ID               string        `json:"id"`
	ScoringData      CategoryValue `json:"scoring_data"`
	ScoringAlgorithm string        `json:"scoring_algorithm"`
}

type CategoryValue struct {
	Value []string `json:"value"`
}

type HotSpotData struct {
	Image    HotSpotImage `json:"image"`
	Hotspots []HotSpot    `json:"hotspots"`
}

type HotSpotImage struct {
	URL string `json:"url"`
}

type HotSpot struct {
	ID     string  `json:"id"`
	X      float64 `json:"x"`
	Y      float64 `json:"y"`
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

// FormulaData carries the author's formula text as scaffolding.
type FormulaData struct {
	Formula string `json:"formula,omitempty"`
}

// EmptyData serializes as {}.
type EmptyData struct{}
