// Package textnorm validates and normalizes raw utterances before they
// reach the interpreter, and folds item names for similarity checks.
package textnorm

import (
	"strings"
	"unicode"
	"unicode/utf8"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"

	"github.com/hammamikhairi/baskit/internal/domain"
)

// Languages reported by Normalize.
const (
	LangHebrew  = "he"
	LangEnglish = "en"
)

// Text is a validated, normalized utterance.
type Text struct {
	Value       string
	HebrewRatio float64
	Language    string
}

// Normalizer validates and cleans raw text. It has no side effects and is
// safe for concurrent use.
type Normalizer struct {
	minRatio      float64
	requireHebrew bool
	stripMarks    bool
	maxRunes      int
	commandVerbs  map[string]bool
}

// Option configures a Normalizer.
type Option func(*Normalizer)

// WithMinHebrewRatio sets the minimum Hebrew letter ratio.
func WithMinHebrewRatio(r float64) Option {
	return func(n *Normalizer) { n.minRatio = r }
}

// WithRequireHebrew toggles the ratio check.
func WithRequireHebrew(on bool) Option {
	return func(n *Normalizer) { n.requireHebrew = on }
}

// WithStripMarks toggles removal of niqqud and cantillation marks.
func WithStripMarks(on bool) Option {
	return func(n *Normalizer) { n.stripMarks = on }
}

// WithMaxRunes caps the input length.
func WithMaxRunes(max int) Option {
	return func(n *Normalizer) { n.maxRunes = max }
}

// WithCommandVerbs replaces the English verbs that let Latin-only input
// bypass the Hebrew ratio check.
func WithCommandVerbs(verbs ...string) Option {
	return func(n *Normalizer) {
		n.commandVerbs = make(map[string]bool, len(verbs))
		for _, v := range verbs {
			n.commandVerbs[strings.ToLower(v)] = true
		}
	}
}

// defaultCommandVerbs start English commands understood by the pipeline.
var defaultCommandVerbs = []string{
	"add", "remove", "delete", "drop", "buy", "bought", "got",
	"set", "change", "update", "create", "new", "make",
	"switch", "open", "use", "undo", "mark", "need", "put",
}

// New creates a Normalizer. Defaults: ratio 0.7, Hebrew required, marks
// stripped, 500 runes.
func New(opts ...Option) *Normalizer {
	n := &Normalizer{
		minRatio:      0.7,
		requireHebrew: true,
		stripMarks:    true,
		maxRunes:      500,
	}
	WithCommandVerbs(defaultCommandVerbs...)(n)
	for _, o := range opts {
		o(n)
	}
	return n
}

// Normalize cleans text and validates it. Failures are
// *domain.ValidationError.
func (n *Normalizer) Normalize(text string) (Text, error) {
	clean := n.clean(text)
	if clean == "" {
		return Text{}, domain.ErrEmptyInput
	}
	if count := utf8.RuneCountInString(clean); count > n.maxRunes {
		return Text{}, &domain.ValidationError{
			Kind:   domain.KindTooLong,
			Detail: "input has " + itoa(count) + " characters",
		}
	}

	ratio := HebrewRatio(clean)
	lang := LangHebrew
	if ratio < 0.5 {
		lang = LangEnglish
	}

	if n.requireHebrew && ratio < n.minRatio && !n.isEnglishCommand(clean) {
		return Text{}, &domain.ValidationError{
			Kind:   domain.KindInsufficientHebrewRatio,
			Detail: "hebrew ratio " + ftoa(ratio),
		}
	}

	return Text{Value: clean, HebrewRatio: ratio, Language: lang}, nil
}

// clean applies NFC, drops control and format characters, optionally
// strips Hebrew marks, maps geresh/gershayim, and collapses whitespace.
func (n *Normalizer) clean(s string) string {
	steps := []transform.Transformer{
		norm.NFC,
		runes.Remove(runes.Predicate(isInvisible)),
	}
	if n.stripMarks {
		steps = append(steps, runes.Remove(runes.Predicate(isHebrewMark)))
	}
	steps = append(steps, runes.Map(mapPunct))

	out, _, err := transform.String(transform.Chain(steps...), s)
	if err != nil {
		out = s
	}
	return strings.Join(strings.Fields(out), " ")
}

// isEnglishCommand reports whether s is Latin-script text whose first
// word is a known command verb.
func (n *Normalizer) isEnglishCommand(s string) bool {
	for _, r := range s {
		if isHebrewLetter(r) {
			return false
		}
	}
	first, _, _ := strings.Cut(s, " ")
	return n.commandVerbs[strings.ToLower(first)]
}

// HebrewRatio returns Hebrew letters over all letters, 0 with no letters.
func HebrewRatio(s string) float64 {
	var hebrew, letters int
	for _, r := range s {
		if !unicode.IsLetter(r) {
			continue
		}
		letters++
		if isHebrewLetter(r) {
			hebrew++
		}
	}
	if letters == 0 {
		return 0
	}
	return float64(hebrew) / float64(letters)
}

func isHebrewLetter(r rune) bool {
	return r >= 0x05D0 && r <= 0x05EA
}

// isHebrewMark matches niqqud and cantillation points.
func isHebrewMark(r rune) bool {
	return r >= 0x0591 && r <= 0x05C7 && unicode.Is(unicode.Mn, r)
}

// isInvisible matches control and bidi/format characters. Whitespace
// controls are kept so Fields can split on them.
func isInvisible(r rune) bool {
	if r == '\n' || r == '\t' || r == '\r' {
		return false
	}
	return unicode.IsControl(r) || unicode.Is(unicode.Cf, r)
}

func mapPunct(r rune) rune {
	switch r {
	case '׳':
		return '\''
	case '״':
		return '"'
	default:
		return r
	}
}
