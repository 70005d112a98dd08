package specialty

import (
	"fmt"
	"slices"
	"strings"
	"unicode"

	goahocorasick "github.com/anknown/ahocorasick"
	"github.com/samber/lo"

	"github.com/menta2k/medref/pkg/types"
)

// Extractor pulls a disease label out of a free-text report
type Extractor interface {
	Extract(report types.AnalysisReport) string
}

// ExtractorFunc lets an ordinary function act as an Extractor
type ExtractorFunc func(report types.AnalysisReport) string

func (f ExtractorFunc) Extract(report types.AnalysisReport) string {
	return f(report)
}

// FixedExtractor ignores the report and always returns the same label
type FixedExtractor struct {
	Label string
}

func (e FixedExtractor) Extract(types.AnalysisReport) string {
	return e.Label
}

// KeywordExtractor returns the known condition that appears earliest in the
// report text as a whole word, or "" when none does. Matching is
// case-insensitive and runs in a single pass over the text.
type KeywordExtractor struct {
	matcher *goahocorasick.Machine
}

// NewKeywordExtractor creates an extractor over the mapper's conditions
func NewKeywordExtractor() *KeywordExtractor {
	e, err := NewKeywordExtractorFor(Conditions())
	if err != nil {
		panic(err)
	}
	return e
}

// NewKeywordExtractorFor builds an extractor over a custom keyword list.
// Blank and duplicate keywords are ignored.
func NewKeywordExtractorFor(keywords []string) (*KeywordExtractor, error) {
	words := lo.Uniq(lo.FilterMap(keywords, func(k string, _ int) (string, bool) {
		k = strings.ToLower(strings.TrimSpace(k))
		return k, k != ""
	}))
	if len(words) == 0 {
		return &KeywordExtractor{}, nil
	}
	// the trie is built from keys in lexical order
	slices.Sort(words)

	m := new(goahocorasick.Machine)
	if err := m.Build(lo.Map(words, func(w string, _ int) []rune { return []rune(w) })); err != nil {
		return nil, fmt.Errorf("failed to build keyword matcher: %w", err)
	}
	return &KeywordExtractor{matcher: m}, nil
}

func (e *KeywordExtractor) Extract(report types.AnalysisReport) string {
	if e.matcher == nil || report.Text == "" {
		return ""
	}

	text := []rune(strings.ToLower(report.Text))
	terms := lo.Filter(e.matcher.MultiPatternSearch(text, false), func(term *goahocorasick.Term, _ int) bool {
		return wholeWord(text, term.Pos, len(term.Word))
	})
	if len(terms) == 0 {
		return ""
	}

	best := terms[0]
	for _, term := range terms[1:] {
		if term.Pos < best.Pos || (term.Pos == best.Pos && len(term.Word) > len(best.Word)) {
			best = term
		}
	}
	return string(best.Word)
}

// wholeWord reports whether text[pos:pos+n] is not glued to surrounding letters
func wholeWord(text []rune, pos, n int) bool {
	if pos > 0 && unicode.IsLetter(text[pos-1]) {
		return false
	}
	end := pos + n
	return end >= len(text) || !unicode.IsLetter(text[end])
}
