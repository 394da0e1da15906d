package types

import "time"

// Insight is one observation the Insights Engine surfaces to the user,
// built from a Trend Detector's finding.
type Insight struct {
	ID          string    `json:"id"`
	Timestamp   time.Time `json:"timestamp"`
	Severity    Severity  `json:"severity"`
	Title       string    `json:"title"`
	Explanation string    `json:"explanation"`
	Evidence    []string  `json:"evidence,omitempty"`
	Suggestion  *string   `json:"suggestion,omitempty"`
	Detector    string    `json:"detector"`
}

// NewInsight starts an Insight with its required fields. ID is derived
// from detector name and timestamp by the caller (internal/insights),
// since pkg/types must not depend on time formatting conventions owned
// elsewhere.
func NewInsight(id string, ts time.Time, severity Severity, title, explanation, detector string) Insight {
	return Insight{
		ID:          id,
		Timestamp:   ts,
		Severity:    severity,
		Title:       title,
		Explanation: explanation,
		Detector:    detector,
	}
}

// WithEvidence returns a copy of the Insight with evidence attached.
func (i Insight) WithEvidence(evidence []string) Insight {
	i.Evidence = evidence
	return i
}

// WithSuggestion returns a copy of the Insight with a suggestion attached.
func (i Insight) WithSuggestion(suggestion string) Insight {
	i.Suggestion = &suggestion
	return i
}
