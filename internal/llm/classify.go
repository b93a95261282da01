package llm

import (
	"strings"
)

// DefaultRefusalPhrases are matched case-insensitively against replies that
// did not parse.
var DefaultRefusalPhrases = []string{"I'm sorry", "I can't", "cannot"}

// DefaultClassifier accepts flat JSON objects and treats everything else as
// worth another attempt. It never reports OutcomeFatal.
type DefaultClassifier struct {
	RefusalPhrases []string
}

// NewDefaultClassifier returns a classifier using DefaultRefusalPhrases.
func NewDefaultClassifier() *DefaultClassifier {
	return &DefaultClassifier{RefusalPhrases: DefaultRefusalPhrases}
}

var _ Classifier = (*DefaultClassifier)(nil)

// Classify parses first, so a valid object that happens to contain a refusal
// phrase (a company named "Cannot Inc.") is accepted on the attempt that
// produced it. Refusal phrases only decide the reason for replies that did
// not parse.
func (c *DefaultClassifier) Classify(text string) Verdict {
	body := StripCodeFences(text)
	if body == "" {
		return Verdict{Outcome: OutcomeRetryable, Reason: "empty"}
	}
	if err := ValidateFlatObject([]byte(body)); err == nil {
		fields, _, nerr := NormalizeFields([]byte(body))
		if nerr == nil {
			return Verdict{Outcome: OutcomeOK, Fields: fields}
		}
	}
	if c.isRefusal(text) {
		return Verdict{Outcome: OutcomeRetryable, Reason: "refusal"}
	}
	return Verdict{Outcome: OutcomeRetryable, Reason: "malformed"}
}

func (c *DefaultClassifier) isRefusal(text string) bool {
	phrases := c.RefusalPhrases
	if phrases == nil {
		phrases = DefaultRefusalPhrases
	}
	lower := strings.ToLower(text)
	for _, p := range phrases {
		if strings.Contains(lower, strings.ToLower(p)) {
			return true
		}
	}
	return false
}
