// Package embedvalid classifies a candidate symbol match's embedding
// similarity score into a verdict the session state machine can act on,
// grounded on the original's tools/embedding.py three-band scoring: above
// FactThreshold the match stands as fact, between RejectThreshold and
// FactThreshold it is admitted but flagged HIGH risk pending verification,
// and below RejectThreshold it is rejected outright.
package embedvalid

import (
	"fmt"
	"strings"
	"unicode"
)

// Verdict classifies a similarity score.
type Verdict string

const (
	VerdictFact     Verdict = "fact"      // similarity > FactThreshold
	VerdictHighRisk Verdict = "high_risk" // RejectThreshold <= similarity <= FactThreshold
	VerdictRejected Verdict = "rejected"  // similarity < RejectThreshold
)

// Thresholds configures the two cut points. Zero values fall back to the
// original's 0.6/0.3 defaults (CodeIntelConfig.EmbeddingFactThreshold /
// EmbeddingRejectThreshold).
type Thresholds struct {
	Fact   float64
	Reject float64
}

// DefaultThresholds matches CodeIntelConfig's defaults.
func DefaultThresholds() Thresholds {
	return Thresholds{Fact: 0.6, Reject: 0.3}
}

// Classification is the result of validating one candidate match.
type Classification struct {
	Similarity float64 `json:"similarity"`
	Verdict    Verdict `json:"verdict"`
	Reason     string  `json:"reason"`
}

// Classify applies the three-band rule to a similarity score in [0, 1].
func Classify(similarity float64, t Thresholds) Classification {
	if t.Fact <= 0 {
		t.Fact = 0.6
	}
	if t.Reject <= 0 {
		t.Reject = 0.3
	}

	switch {
	case similarity > t.Fact:
		return Classification{
			Similarity: similarity,
			Verdict:    VerdictFact,
			Reason:     fmt.Sprintf("similarity %.3f meets fact threshold %.3f", similarity, t.Fact),
		}
	case similarity >= t.Reject:
		return Classification{
			Similarity: similarity,
			Verdict:    VerdictHighRisk,
			Reason:     fmt.Sprintf("similarity %.3f is between reject threshold %.3f and fact threshold %.3f", similarity, t.Reject, t.Fact),
		}
	default:
		return Classification{
			Similarity: similarity,
			Verdict:    VerdictRejected,
			Reason:     fmt.Sprintf("similarity %.3f is below reject threshold %.3f", similarity, t.Reject),
		}
	}
}

// ClassifyBatch validates a set of candidate similarities together, e.g. the
// hits returned by a vectorindex.Search call, returning one Classification
// per input in order. Summarize counts how many fell into each band.
func ClassifyBatch(similarities []float64, t Thresholds) []Classification {
	out := make([]Classification, len(similarities))
	for i, s := range similarities {
		out[i] = Classify(s, t)
	}
	return out
}

// Summary aggregates a batch of classifications for reporting.
type Summary struct {
	Fact     int `json:"fact"`
	HighRisk int `json:"high_risk"`
	Rejected int `json:"rejected"`
}

// Summarize counts classifications per verdict.
func Summarize(classifications []Classification) Summary {
	var s Summary
	for _, c := range classifications {
		switch c.Verdict {
		case VerdictFact:
			s.Fact++
		case VerdictHighRisk:
			s.HighRisk++
		case VerdictRejected:
			s.Rejected++
		}
	}
	return s
}

// SplitSymbolName splits a compound identifier into space-separated words
// before embedding, so its semantic weight isn't buried in a single
// unbroken token: AuthService -> "Auth Service",
// HTTPSConnection -> "HTTPS Connection", retry_count -> "retry count".
func SplitSymbolName(symbol string) string {
	if symbol == "" {
		return ""
	}
	symbol = strings.ReplaceAll(symbol, "_", " ")
	symbol = strings.ReplaceAll(symbol, "-", " ")

	var words []string
	var current []rune
	runes := []rune(symbol)
	for i, r := range runes {
		if r == ' ' {
			if len(current) > 0 {
				words = append(words, string(current))
				current = nil
			}
			continue
		}
		if unicode.IsUpper(r) && len(current) > 0 {
			prev := current[len(current)-1]
			nextIsLower := i+1 < len(runes) && unicode.IsLower(runes[i+1])
			if unicode.IsLower(prev) || (unicode.IsUpper(prev) && nextIsLower) {
				words = append(words, string(current))
				current = nil
			}
		}
		current = append(current, r)
	}
	if len(current) > 0 {
		words = append(words, string(current))
	}
	return strings.Join(words, " ")
}

// RequiresVerification reports whether any classification in the batch
// landed in the HIGH risk band, meaning the session should not proceed past
// VERIFICATION without human or additional-evidence confirmation.
func RequiresVerification(classifications []Classification) bool {
	for _, c := range classifications {
		if c.Verdict == VerdictHighRisk {
			return true
		}
	}
	return false
}
