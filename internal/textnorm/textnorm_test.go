package textnorm

import (
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/hammamikhairi/baskit/internal/domain"
)

func TestNormalize(t *testing.T) {
	n := New()

	tests := []struct {
		name     string
		input    string
		want     string
		wantLang string
		wantErr  error
	}{
		{"hebrew command", "תוסיף שתי עגבניות", "תוסיף שתי עגבניות", LangHebrew, nil},
		{"collapses whitespace", "  תוסיף \t  חלב \n", "תוסיף חלב", LangHebrew, nil},
		{"strips niqqud", "ח\u05b8ל\u05b8ב", "חלב", LangHebrew, nil},
		{"drops bidi marks", "\u200fחלב\u200e", "חלב", LangHebrew, nil},
		{"maps gershayim", "צה״ל", "צה\"ל", LangHebrew, nil},
		{"english command bypass", "add milk", "add milk", LangEnglish, nil},
		{"latin gibberish", "xyz123", "", "", domain.ErrInsufficientHebrewRatio},
		{"digits only", "123", "", "", domain.ErrInsufficientHebrewRatio},
		{"empty", "   ", "", "", domain.ErrEmptyInput},
		{"control only", "\x00\x01", "", "", domain.ErrEmptyInput},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := n.Normalize(tt.input)
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("Normalize(%q) error = %v, want %v", tt.input, err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("Normalize(%q) unexpected error: %v", tt.input, err)
			}
			if got.Value != tt.want {
				t.Errorf("Normalize(%q) = %q, want %q", tt.input, got.Value, tt.want)
			}
			if got.Language != tt.wantLang {
				t.Errorf("Normalize(%q) language = %q, want %q", tt.input, got.Language, tt.wantLang)
			}
		})
	}
}

func TestNormalizeRatioNotRequired(t *testing.T) {
	n := New(WithRequireHebrew(false))
	got, err := n.Normalize("xyz123")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.HebrewRatio != 0 {
		t.Errorf("ratio = %v, want 0", got.HebrewRatio)
	}
}

func TestNormalizeTooLong(t *testing.T) {
	n := New(WithMaxRunes(5))
	_, err := n.Normalize("חלב חלב חלב")
	if !errors.Is(err, domain.ErrTooLong) {
		t.Fatalf("error = %v, want TooLong", err)
	}
}

func TestNormalizeMixedRatio(t *testing.T) {
	n := New(WithMinHebrewRatio(0.7))

	// Three Hebrew letters out of seven.
	if _, err := n.Normalize("חלב 1L abc"); !errors.Is(err, domain.ErrInsufficientHebrewRatio) {
		t.Fatalf("mixed text should fail the ratio check, got %v", err)
	}
	if _, err := n.Normalize("תוסיף חלב 3%"); err != nil {
		t.Fatalf("hebrew with digits should pass: %v", err)
	}
}

func TestHebrewRatio(t *testing.T) {
	if r := HebrewRatio("שלום"); r != 1 {
		t.Errorf("ratio = %v, want 1", r)
	}
	if r := HebrewRatio("ab"); r != 0 {
		t.Errorf("ratio = %v, want 0", r)
	}
	if r := HebrewRatio("שלab"); r != 0.5 {
		t.Errorf("ratio = %v, want 0.5", r)
	}
	if r := HebrewRatio("123 !"); r != 0 {
		t.Errorf("ratio = %v, want 0", r)
	}
}

func TestFold(t *testing.T) {
	tests := []struct {
		a, b string
	}{
		{"עגבניות", "עגבניה"},
		{"תפוחים", "תפוח"},
		{"ח\u05b8ל\u05b8ב", "חלב"},
		{"  Milk ", "milk"},
		{"Tomatoes", "tomato"},
		{"apples", "Apple"},
		{"לחם  לבן", "לחם לבן"},
	}
	for _, tt := range tests {
		if Fold(tt.a) != Fold(tt.b) {
			t.Errorf("Fold(%q)=%q != Fold(%q)=%q", tt.a, Fold(tt.a), tt.b, Fold(tt.b))
		}
	}

	if Fold("חלב") == Fold("לחם") {
		t.Error("distinct names folded together")
	}
	if got := Fold("glass"); got != "glass" {
		t.Errorf("Fold(glass) = %q", got)
	}
	if strings.ContainsAny(Fold("לחם"), "ךםןףץ") {
		t.Error("final letters not folded")
	}
}

func TestFoldLowercases(t *testing.T) {
	if got := Fold("MILK"); got != "milk" {
		t.Errorf("Fold(MILK) = %q, want milk", got)
	}
	if got := Fold("Bread Rolls"); got != "bread roll" {
		t.Errorf("Fold(Bread Rolls) = %q, want bread roll", got)
	}
}

func TestFoldConcurrent(t *testing.T) {
	var wg sync.WaitGroup
	for range 16 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for range 100 {
				if got := Fold("Tomatoes"); got != "tomato" {
					t.Errorf("Fold(Tomatoes) = %q", got)
					return
				}
			}
		}()
	}
	wg.Wait()
}
