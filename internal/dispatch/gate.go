// Package dispatch decides whether an intent may run and turns accepted
// intents into engine operations.
package dispatch

import "github.com/hammamikhairi/baskit/internal/domain"

// Verdict is the result of Gate.
type Verdict struct {
	Accepted bool
	Intent   domain.Intent // the best guess when not accepted
}

// NeedsClarification reports whether the caller must confirm with the
// user before anything runs.
func (v Verdict) NeedsClarification() bool { return !v.Accepted }

// Gate accepts an intent iff its confidence reaches threshold. A clarify
// intent is never accepted.
func Gate(in domain.Intent, threshold float64) Verdict {
	if in.Tool == domain.ToolClarify {
		return Verdict{Intent: in}
	}
	return Verdict{Accepted: in.Confidence >= threshold, Intent: in}
}
