package extract

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/joseph-ayodele/cardlead/internal/common"
	"github.com/joseph-ayodele/cardlead/internal/entity"
	"github.com/joseph-ayodele/cardlead/internal/llm"
)

// DefaultMaxAttempts bounds the number of service calls per image.
const DefaultMaxAttempts = 5

// Engine runs bounded-retry extraction against a vision-text service.
type Engine struct {
	completer   llm.VisionCompleter
	classifier  llm.Classifier
	mode        llm.Mode
	maxAttempts int
	jitter      time.Duration
	batchLimit  int
	observer    AttemptObserver
	logger      *slog.Logger
}

var _ FieldExtractor = (*Engine)(nil)

// Option configures an Engine.
type Option func(*Engine)

// WithMaxAttempts overrides DefaultMaxAttempts. Values below one are ignored.
func WithMaxAttempts(n int) Option {
	return func(e *Engine) {
		if n > 0 {
			e.maxAttempts = n
		}
	}
}

// WithJitter waits a random duration in [0, max) between attempts. Zero disables it.
func WithJitter(max time.Duration) Option {
	return func(e *Engine) {
		if max > 0 {
			e.jitter = max
		}
	}
}

// WithMode selects the instruction sent with every image.
func WithMode(mode llm.Mode) Option {
	return func(e *Engine) { e.mode = mode }
}

// WithClassifier replaces the default reply classifier.
func WithClassifier(c llm.Classifier) Option {
	return func(e *Engine) {
		if c != nil {
			e.classifier = c
		}
	}
}

// WithObserver reports every attempt result, typically to metrics.
func WithObserver(o AttemptObserver) Option {
	return func(e *Engine) {
		if o != nil {
			e.observer = o
		}
	}
}

// WithBatchLimit caps concurrent images in ExtractBatch. Zero means no cap.
func WithBatchLimit(n int) Option {
	return func(e *Engine) { e.batchLimit = n }
}

// NewEngine builds an engine around completer.
func NewEngine(completer llm.VisionCompleter, logger *slog.Logger, opts ...Option) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	e := &Engine{
		completer:   completer,
		classifier:  llm.NewDefaultClassifier(),
		mode:        llm.ModeInferred,
		maxAttempts: DefaultMaxAttempts,
		observer:    nopObserver{},
		logger:      logger,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Extract asks the service about imageURL until a reply classifies as OK, a
// reply classifies as fatal, attempts run out or ctx is done. Transport errors
// and retryable HTTP statuses spend an attempt; 4xx statuses other than 408
// and 429 are fatal. Only the OK case returns fields; every other case
// returns an empty mapping.
func (e *Engine) Extract(ctx context.Context, imageURL string) entity.ExtractionResult {
	log := common.LoggerFrom(ctx, e.logger).With("image_url", imageURL)
	instruction := llm.BuildInstruction(e.mode)
	start := time.Now()

	for attempt := 1; attempt <= e.maxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			log.Warn("extract.cancelled", "attempt", attempt, "error", err)
			return entity.ExtractionResult{}
		}

		text, err := e.completer.Complete(ctx, llm.VisionRequest{Instruction: instruction, ImageURL: imageURL})
		if err != nil {
			// A client timeout also matches context.DeadlineExceeded; only the caller's ctx ends the job.
			if ctx.Err() != nil {
				log.Warn("extract.cancelled", "attempt", attempt, "error", err)
				return entity.ExtractionResult{}
			}
			var se *llm.StatusError
			if errors.As(err, &se) && !se.Retryable() {
				e.observer.ObserveAttempt("fatal")
				log.Error("extract.attempt.fatal", "attempt", attempt, "status", se.StatusCode, "error", err)
				return entity.ExtractionResult{}
			}
			e.observer.ObserveAttempt("service_error")
			log.Warn("extract.attempt.service_error",
				"attempt", attempt, "max_attempts", e.maxAttempts,
				"error", fmt.Errorf("%w: %w", common.ErrExtraction, err))
			if !e.pause(ctx, attempt) {
				return entity.ExtractionResult{}
			}
			continue
		}

		v := e.classifier.Classify(text)
		switch v.Outcome {
		case llm.OutcomeOK:
			e.observer.ObserveAttempt("ok")
			out := make(entity.ExtractionResult, len(v.Fields))
			for k, val := range v.Fields {
				out[k] = val
			}
			log.Info("extract.ok",
				"attempt", attempt, "fields", len(out),
				"elapsed_ms", time.Since(start).Milliseconds())
			return out
		case llm.OutcomeFatal:
			e.observer.ObserveAttempt("fatal")
			log.Error("extract.attempt.fatal", "attempt", attempt, "reason", v.Reason, "reply", llm.Snippet(text))
			return entity.ExtractionResult{}
		default:
			reason := v.Reason
			if reason == "" {
				reason = "retryable"
			}
			e.observer.ObserveAttempt(reason)
			log.Warn("extract.attempt."+reason,
				"attempt", attempt, "max_attempts", e.maxAttempts, "reply", llm.Snippet(text))
			if !e.pause(ctx, attempt) {
				return entity.ExtractionResult{}
			}
		}
	}

	log.Error("extract.exhausted", "attempts", e.maxAttempts, "elapsed_ms", time.Since(start).Milliseconds())
	return entity.ExtractionResult{}
}

// pause waits the jitter before the next attempt. It returns false when ctx ends first.
func (e *Engine) pause(ctx context.Context, attempt int) bool {
	if e.jitter <= 0 || attempt >= e.maxAttempts {
		return true
	}
	timer := time.NewTimer(rand.N(e.jitter))
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}

// ExtractBatch extracts every URL concurrently and returns results in input
// order. One image failing, even by panicking, leaves an empty mapping in its
// slot and does not cancel the others.
func (e *Engine) ExtractBatch(ctx context.Context, imageURLs []string) []entity.ExtractionResult {
	results := make([]entity.ExtractionResult, len(imageURLs))
	var g errgroup.Group
	if e.batchLimit > 0 {
		g.SetLimit(e.batchLimit)
	}
	for i, u := range imageURLs {
		g.Go(func() error {
			defer func() {
				if r := recover(); r != nil {
					common.LoggerFrom(ctx, e.logger).Error("extract.batch.panic", "index", i, "image_url", u, "panic", r)
					results[i] = entity.ExtractionResult{}
				}
			}()
			results[i] = e.Extract(ctx, u)
			return nil
		})
	}
	_ = g.Wait()
	return results
}
