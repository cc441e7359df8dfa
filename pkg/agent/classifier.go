// Package agent implements the pipeline stages that turn a user utterance
// into approved SQL and an interpretation: intent classification, planning,
// plan validation, SQL synthesis, execution debugging, result interpretation,
// and dataset description. Each stage is a small struct around the LLM
// gateway; stages hold no per-request state and are safe for concurrent use.
package agent

import (
	"context"
	"log/slog"
	"strconv"
	"strings"

	"github.com/askql/askql/pkg/agent/prompt"
	"github.com/askql/askql/pkg/llm"
	"github.com/askql/askql/pkg/models"
	"github.com/askql/askql/pkg/schema"
)

// defaultLLMConfidence is assumed when the model answers with a bare label
// and no self-score.
const defaultLLMConfidence = 0.9

// fallbackConfidence is reported by the keyword rules. Deliberately below the
// 0.5 threshold that would let an LLM answer override the specific default.
const fallbackConfidence = 0.4

// Classifier labels an utterance with one of the three intent labels.
// Classification never fails: when the LLM call or its parse fails, keyword
// rules take over, and when those tie, the label defaults to specific.
type Classifier struct {
	gateway *llm.Gateway
	schema  *schema.Schema
	logger  *slog.Logger
}

// NewClassifier creates an intent classifier.
func NewClassifier(gateway *llm.Gateway, s *schema.Schema, logger *slog.Logger) *Classifier {
	return &Classifier{gateway: gateway, schema: s, logger: logger}
}

// Classify labels the utterance. sessionID opts the call into the gateway's
// conversation memory so follow-up questions classify with prior turns in view.
func (c *Classifier) Classify(ctx context.Context, sessionID, utterance, dbContext string) models.Intent {
	reply, err := c.gateway.Ask(ctx, sessionID, prompt.Classify(utterance, dbContext))
	if err != nil {
		c.logger.Warn("intent classification LLM call failed, using keyword fallback",
			"error", err)
		return c.fallback(utterance)
	}

	intent, ok := parseIntentReply(reply)
	if !ok {
		c.logger.Warn("intent classification reply not parseable, using keyword fallback",
			"reply", firstLine(reply))
		return c.fallback(utterance)
	}

	if intent.Confidence < 0.5 {
		// Low self-score: take the safest branch but keep the score visible.
		intent.Label = models.IntentSpecific
	}
	return intent
}

// parseIntentReply reads "label" or "label confidence" from the first
// non-empty line of the model's answer.
func parseIntentReply(reply string) (models.Intent, bool) {
	fields := strings.Fields(firstLine(reply))
	if len(fields) == 0 {
		return models.Intent{}, false
	}

	label, ok := models.ParseIntentLabel(strings.Trim(fields[0], ".,:"))
	if !ok {
		return models.Intent{}, false
	}

	confidence := defaultLLMConfidence
	if len(fields) > 1 {
		if v, err := strconv.ParseFloat(fields[1], 64); err == nil && v >= 0 && v <= 1 {
			confidence = v
		}
	}

	return models.Intent{
		Label:      label,
		Confidence: confidence,
		Source:     models.IntentSourceLLM,
	}, true
}

var (
	specificCues    = []string{"how many", "list", "what is the"}
	analyticalCues  = []string{"explore", "insights", "suggest", "interesting"}
	descriptiveCues = []string{"describe", "overview", "what's in"}
)

// fallback applies the keyword rules. When more than one rule matches, or
// none does, the label is specific.
func (c *Classifier) fallback(utterance string) models.Intent {
	lower := strings.ToLower(utterance)

	isSpecific := containsAny(lower, specificCues) && c.mentionsColumn(lower)
	isAnalytical := containsAny(lower, analyticalCues)
	isDescriptive := containsAny(lower, descriptiveCues)

	label := models.IntentSpecific
	switch {
	case isSpecific && !isAnalytical && !isDescriptive:
		label = models.IntentSpecific
	case isAnalytical && !isSpecific && !isDescriptive:
		label = models.IntentExploratoryAnalytical
	case isDescriptive && !isSpecific && !isAnalytical:
		label = models.IntentExploratoryDescriptive
	}

	return models.Intent{
		Label:      label,
		Confidence: fallbackConfidence,
		Source:     models.IntentSourceFallback,
	}
}

// mentionsColumn reports whether any token of the lowercased utterance names
// a schema column.
func (c *Classifier) mentionsColumn(lower string) bool {
	for _, token := range strings.FieldsFunc(lower, func(r rune) bool {
		return !(r >= 'a' && r <= 'z' || r >= '0' && r <= '9' || r == '_')
	}) {
		if c.schema.HasColumnNamed(token) {
			return true
		}
	}
	return false
}

func containsAny(s string, cues []string) bool {
	for _, cue := range cues {
		if strings.Contains(s, cue) {
			return true
		}
	}
	return false
}

func firstLine(s string) string {
	s = strings.TrimSpace(s)
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		s = s[:i]
	}
	return strings.TrimSpace(s)
}
