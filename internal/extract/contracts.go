package extract

import (
	"context"

	"github.com/joseph-ayodele/cardlead/internal/entity"
)

// FieldExtractor reads card fields off a staged image. Implementations never
// fail: an unrecoverable problem yields an empty mapping.
type FieldExtractor interface {
	Extract(ctx context.Context, imageURL string) entity.ExtractionResult
}

// AttemptObserver is told the result of every attempt: "ok", "service_error",
// "fatal" or the classifier's reason for a retryable reply.
type AttemptObserver interface {
	ObserveAttempt(result string)
}

type nopObserver struct{}

func (nopObserver) ObserveAttempt(string) {}
