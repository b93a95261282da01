package llm

import "context"

// VisionRequest asks a vision-text service to answer Instruction about the
// image at ImageURL.
type VisionRequest struct {
	Instruction string
	ImageURL    string
}

// VisionCompleter is the extraction service the pipeline depends on. It returns
// the model's raw text reply.
type VisionCompleter interface {
	Complete(ctx context.Context, req VisionRequest) (string, error)
}

// Outcome is how a single reply should be treated by the retry loop.
type Outcome int

const (
	OutcomeOK Outcome = iota
	OutcomeRetryable
	OutcomeFatal
)

func (o Outcome) String() string {
	switch o {
	case OutcomeOK:
		return "ok"
	case OutcomeRetryable:
		return "retryable"
	case OutcomeFatal:
		return "fatal"
	}
	return "unknown"
}

// Verdict is the classification of one reply. Fields is set only for OutcomeOK.
type Verdict struct {
	Outcome Outcome
	Fields  map[string]string
	Reason  string
}

// Classifier turns raw reply text into a verdict.
type Classifier interface {
	Classify(text string) Verdict
}

// ClassifierFunc adapts a function to Classifier.
type ClassifierFunc func(text string) Verdict

func (f ClassifierFunc) Classify(text string) Verdict { return f(text) }
