// Package models contains the shared value types passed between pipeline
// stages: intents, plans, feasibility verdicts, generated SQL, and result sets.
package models

// IntentLabel classifies what kind of answer a user utterance is asking for.
type IntentLabel string

const (
	// IntentSpecific asks for a concrete value answerable by one SQL query.
	IntentSpecific IntentLabel = "specific"
	// IntentExploratoryAnalytical asks for suggested analyses rather than one answer.
	IntentExploratoryAnalytical IntentLabel = "exploratory_analytical"
	// IntentExploratoryDescriptive asks what the dataset contains.
	IntentExploratoryDescriptive IntentLabel = "exploratory_descriptive"
)

// ParseIntentLabel matches a label token case-insensitively.
// Returns false for anything outside the closed label set.
func ParseIntentLabel(s string) (IntentLabel, bool) {
	switch IntentLabel(normalizeLabel(s)) {
	case IntentSpecific:
		return IntentSpecific, true
	case IntentExploratoryAnalytical:
		return IntentExploratoryAnalytical, true
	case IntentExploratoryDescriptive:
		return IntentExploratoryDescriptive, true
	}
	return "", false
}

func normalizeLabel(s string) string {
	b := []byte(s)
	for i := range b {
		if b[i] >= 'A' && b[i] <= 'Z' {
			b[i] += 'a' - 'A'
		}
	}
	return string(b)
}

// IntentSource records which classification path produced the label.
type IntentSource string

const (
	IntentSourceLLM      IntentSource = "llm"
	IntentSourceFallback IntentSource = "fallback"
)

// Intent is the classifier's output for one utterance.
type Intent struct {
	Label      IntentLabel  `json:"label"`
	Confidence float64      `json:"confidence"`
	Source     IntentSource `json:"source"`
}
