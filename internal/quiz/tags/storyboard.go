package tags

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/gokatarajesh/quiz-uploader/internal/quiz"
)

var (
	pageRe       = regexp.MustCompile(`(?is)<canvas_page\b[^>]*>(.*?)</canvas_page\s*>`)
	pageStartRe  = regexp.MustCompile(`(?i)<canvas_page\b`)
	pageEndRe    = regexp.MustCompile(`(?i)</canvas_page\s*>`)
	moduleNameRe = regexp.MustCompile(`(?is)<\s*module_name\s*>\s*(.*?)\s*</\s*module_name\s*>`)
	moduleEndRe  = regexp.MustCompile(`(?i)</\s*module\s*>`)
	quizStartRe  = regexp.MustCompile(`(?i)<quiz_start\b`)
	quizEndRe    = regexp.MustCompile(`(?i)</\s*(?:quiz_end|quiz)\s*>`)
)

// PageTypes are the page kinds a storyboard may declare with <page_type>.
var PageTypes = []string{"page", "assignment", "discussion", "quiz"}

// Page is one <canvas_page> block with its metadata tags resolved.
type Page struct {
	Title  string `json:"title"`
	Type   string `json:"type"`
	Module string `json:"module"`
	Body   string `json:"body"`
}

// TagBalance counts opening and closing <canvas_page> tags.
type TagBalance struct {
	Starts   int  `json:"starts"`
	Ends     int  `json:"ends"`
	Balanced bool `json:"balanced"`
}

// Module is a <module_name>…</module> section of a storyboard.
type Module struct {
	Name string `json:"name"`
	Text string `json:"text"`
}

// SplitPages returns the raw <canvas_page> blocks, tags included.
func SplitPages(text string) []string {
	var pages []string
	for _, m := range pageRe.FindAllStringSubmatch(Normalize(text), -1) {
		pages = append(pages, "<canvas_page>\n"+strings.TrimSpace(m[1])+"\n</canvas_page>")
	}
	return pages
}

// ScanPageTags reports whether <canvas_page> tags are balanced, which is
// the usual culprit when a long storyboard yields fewer pages than expected.
func ScanPageTags(text string) TagBalance {
	starts := len(pageStartRe.FindAllStringIndex(text, -1))
	ends := len(pageEndRe.FindAllStringIndex(text, -1))
	return TagBalance{Starts: starts, Ends: ends, Balanced: starts == ends}
}

// SplitModules cuts text into named module sections. A missing </module>
// extends the section to the end of the text.
func SplitModules(text string) []Module {
	var out []Module
	pos := 0
	for pos <= len(text) {
		loc := moduleNameRe.FindStringSubmatchIndex(text[pos:])
		if loc == nil {
			break
		}
		name := strings.TrimSpace(text[pos+loc[2] : pos+loc[3]])
		start := pos + loc[1]

		end, next := len(text), len(text)+1
		if em := moduleEndRe.FindStringIndex(text[start:]); em != nil {
			end, next = start+em[0], start+em[1]
		}
		out = append(out, Module{Name: name, Text: strings.TrimSpace(text[start:end])})
		pos = next
	}
	return out
}

// ExtractTag returns the trimmed content of the first <tag>…</tag>, or def
// when the tag is missing or empty.
func ExtractTag(tag, text, def string) string {
	re, err := regexp.Compile(`(?is)<\s*` + regexp.QuoteMeta(tag) + `\s*>(.*?)</\s*` + regexp.QuoteMeta(tag) + `\s*>`)
	if err != nil {
		return def
	}
	m := re.FindStringSubmatch(text)
	if m == nil || strings.TrimSpace(m[1]) == "" {
		return def
	}
	return strings.TrimSpace(m[1])
}

// HasQuiz reports whether a page carries a quiz block.
func HasQuiz(page string) bool {
	return quizStartRe.MatchString(page)
}

// Pages splits a storyboard and resolves each page's title, type and
// module. Pages without <module_name> inherit the previous page's module.
func Pages(text string) []Page {
	raw := SplitPages(text)
	pages := make([]Page, 0, len(raw))
	module := "General"
	for i, block := range raw {
		kind := strings.ToLower(ExtractTag("page_type", block, "page"))
		if !validPageType(kind) {
			kind = "page"
		}
		module = ExtractTag("module_name", block, module)
		pages = append(pages, Page{
			Title:  ExtractTag("page_title", block, fmt.Sprintf("Page %d", i+1)),
			Type:   kind,
			Module: module,
			Body:   block,
		})
	}
	return pages
}

func validPageType(kind string) bool {
	for _, t := range PageTypes {
		if t == kind {
			return true
		}
	}
	return false
}

// QuizPage locates the questions of one quiz page. First is the 1-based
// position of the page's first question in the combined list.
type QuizPage struct {
	Title     string `json:"title"`
	Module    string `json:"module"`
	First     int    `json:"first"`
	Questions int    `json:"questions"`
}

// Storyboard is the parse of a whole document.
type Storyboard struct {
	Questions []quiz.Question
	Pages     []QuizPage
	Warnings  []string
}

// ParseStoryboard reads every quiz block of a document and, when the text is
// split into <canvas_page> blocks (or, lacking those, <module_name> sections),
// reports which page each run of questions came from. Tag problems that can
// hide content become warnings.
func (p *Parser) ParseStoryboard(text string) Storyboard {
	sb := Storyboard{Questions: p.Parse(text)}

	if bal := ScanPageTags(text); !bal.Balanced {
		sb.Warnings = append(sb.Warnings, fmt.Sprintf(
			"storyboard has %d <canvas_page> and %d </canvas_page> tags; page titles may be wrong", bal.Starts, bal.Ends))
	}
	starts := len(quizStartRe.FindAllStringIndex(text, -1))
	if ends := len(quizEndRe.FindAllStringIndex(text, -1)); starts != ends {
		sb.Warnings = append(sb.Warnings, fmt.Sprintf(
			"storyboard has %d <quiz_start> and %d </quiz_end> tags; an unclosed quiz runs to the next closing tag or the end of the text", starts, ends))
	}

	pages := Pages(text)
	if len(pages) == 0 {
		for _, m := range SplitModules(Normalize(text)) {
			pages = append(pages, Page{Title: m.Name, Type: "quiz", Module: m.Name, Body: m.Text})
		}
	}

	found := 0
	for _, page := range pages {
		if !HasQuiz(page.Body) {
			continue
		}
		n := len(p.Parse(page.Body))
		sb.Pages = append(sb.Pages, QuizPage{Title: page.Title, Module: page.Module, First: found + 1, Questions: n})
		found += n
	}
	if len(sb.Pages) > 0 && found < len(sb.Questions) {
		sb.Warnings = append(sb.Warnings, fmt.Sprintf(
			"%d of %d questions sit outside any <canvas_page> block", len(sb.Questions)-found, len(sb.Questions)))
	}
	return sb
}
