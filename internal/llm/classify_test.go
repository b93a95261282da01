package llm

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDefaultClassifier(t *testing.T) {
	c := NewDefaultClassifier()

	tests := []struct {
		name    string
		text    string
		outcome Outcome
		reason  string
		fields  map[string]string
	}{
		{
			name:    "plain object",
			text:    `{"会社名":"ACME","電話番号":"03-1234-5678"}`,
			outcome: OutcomeOK,
			fields:  map[string]string{"会社名": "ACME", "電話番号": "03-1234-5678"},
		},
		{
			name:    "fenced object",
			text:    "```json\n{\"会社名\": \"ACME\"}\n```",
			outcome: OutcomeOK,
			fields:  map[string]string{"会社名": "ACME"},
		},
		{
			name:    "scalars coerced and nulls dropped",
			text:    `{"郵便番号": 1000001, "携帯番号": null, "x": true}`,
			outcome: OutcomeOK,
			fields:  map[string]string{"郵便番号": "1000001", "x": "true"},
		},
		{
			name:    "object containing refusal word is still accepted",
			text:    `{"会社名":"Cannot Corp"}`,
			outcome: OutcomeOK,
			fields:  map[string]string{"会社名": "Cannot Corp"},
		},
		{
			name:    "refusal",
			text:    "I'm sorry, but I can't assist with that.",
			outcome: OutcomeRetryable,
			reason:  "refusal",
		},
		{
			name:    "refusal lower case cannot",
			text:    "This image CANNOT be processed",
			outcome: OutcomeRetryable,
			reason:  "refusal",
		},
		{
			name:    "malformed",
			text:    `{"会社名": "ACME"`,
			outcome: OutcomeRetryable,
			reason:  "malformed",
		},
		{
			name:    "nested object is malformed",
			text:    `{"会社": {"名前": "ACME"}}`,
			outcome: OutcomeRetryable,
			reason:  "malformed",
		},
		{
			name:    "array is malformed",
			text:    `[{"会社名":"ACME"}]`,
			outcome: OutcomeRetryable,
			reason:  "malformed",
		},
		{
			name:    "empty",
			text:    "  ",
			outcome: OutcomeRetryable,
			reason:  "empty",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v := c.Classify(tt.text)
			assert.Equal(t, tt.outcome, v.Outcome)
			assert.Equal(t, tt.reason, v.Reason)
			if tt.fields != nil {
				assert.Equal(t, tt.fields, v.Fields)
			}
		})
	}
}

func TestStripCodeFences(t *testing.T) {
	assert.Equal(t, `{"a":1}`, StripCodeFences("```json\n{\"a\":1}\n```"))
	assert.Equal(t, `{"a":1}`, StripCodeFences("```\n{\"a\":1}"))
	assert.Equal(t, `{"a":1}`, StripCodeFences(`{"a":1}`))
	assert.Equal(t, "", StripCodeFences("```\n```"))
}

func TestClassifierFunc(t *testing.T) {
	var c Classifier = ClassifierFunc(func(string) Verdict { return Verdict{Outcome: OutcomeFatal} })
	assert.Equal(t, OutcomeFatal, c.Classify("x").Outcome)
	assert.Equal(t, "fatal", OutcomeFatal.String())
}
