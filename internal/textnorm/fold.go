package textnorm

import (
	"strconv"
	"strings"
	"unicode/utf8"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

var finals = strings.NewReplacer(
	"ך", "כ",
	"ם", "מ",
	"ן", "נ",
	"ף", "פ",
	"ץ", "צ",
)

// Fold reduces an item or list name to the key used for similarity.
// Names with equal keys are considered the same product.
func Fold(name string) string {
	t := transform.Chain(
		norm.NFC,
		runes.Remove(runes.Predicate(isInvisible)),
		runes.Remove(runes.Predicate(isHebrewMark)),
		runes.Map(mapPunct),
	)
	s, _, err := transform.String(t, name)
	if err != nil {
		s = name
	}
	// A Caser keeps state, so each call gets its own.
	s = cases.Lower(language.Und).String(s)
	s = finals.Replace(s)

	words := strings.Fields(s)
	for i, w := range words {
		words[i] = foldPlural(w)
	}
	return strings.Join(words, " ")
}

// foldPlural strips simple plural suffixes from words of four or more
// letters. Final letters are already folded.
func foldPlural(w string) string {
	if utf8.RuneCountInString(w) < 4 {
		return w
	}
	switch {
	case strings.HasSuffix(w, "ות"):
		return strings.TrimSuffix(w, "ות") + "ה"
	case strings.HasSuffix(w, "ימ"):
		return strings.TrimSuffix(w, "ימ")
	case strings.HasSuffix(w, "oes"), strings.HasSuffix(w, "ches"), strings.HasSuffix(w, "shes"):
		return strings.TrimSuffix(w, "es")
	case strings.HasSuffix(w, "ss"):
		return w
	case strings.HasSuffix(w, "s"):
		return strings.TrimSuffix(w, "s")
	}
	return w
}

func itoa(n int) string { return strconv.Itoa(n) }

func ftoa(f float64) string { return strconv.FormatFloat(f, 'f', 2, 64) }
