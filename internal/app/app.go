package app

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"cloud.google.com/go/firestore"
	"cloud.google.com/go/storage"

	"github.com/joseph-ayodele/cardlead/internal/assemble"
	"github.com/joseph-ayodele/cardlead/internal/async"
	"github.com/joseph-ayodele/cardlead/internal/common"
	"github.com/joseph-ayodele/cardlead/internal/extract"
	"github.com/joseph-ayodele/cardlead/internal/ledger"
	"github.com/joseph-ayodele/cardlead/internal/llm"
	"github.com/joseph-ayodele/cardlead/internal/llm/openai"
	"github.com/joseph-ayodele/cardlead/internal/llm/vertex"
	"github.com/joseph-ayodele/cardlead/internal/metrics"
	"github.com/joseph-ayodele/cardlead/internal/pipeline"
	"github.com/joseph-ayodele/cardlead/internal/publish"
	"github.com/joseph-ayodele/cardlead/internal/record"
	"github.com/joseph-ayodele/cardlead/internal/staging"
)

// App holds every component built from one Config. The daemon and the CLI
// both construct it; closers run in reverse order on Close.
type App struct {
	Config    *common.Config
	Logger    *slog.Logger
	Metrics   *metrics.Metrics
	Staging   staging.Store
	Completer llm.VisionCompleter
	Extractor *extract.Engine
	Records   record.Store
	Assembler *assemble.Assembler
	Publisher *publish.Publisher
	// Ledger is nil when ledger.driver is "none".
	Ledger *ledger.Ledger

	closers []func()
}

// Build wires the components. Parts needed only by some commands can be
// skipped by the caller never touching them; all are built eagerly so
// configuration errors surface at startup.
func Build(ctx context.Context, cfg *common.Config, logger *slog.Logger) (*App, error) {
	if logger == nil {
		logger = slog.Default()
	}
	a := &App{Config: cfg, Logger: logger, Metrics: metrics.New()}

	steps := []struct {
		name string
		fn   func(context.Context) error
	}{
		{"staging", a.buildStaging},
		{"llm", a.buildCompleter},
		{"records", a.buildRecords},
		{"ledger", a.buildLedger},
	}
	for _, s := range steps {
		if err := s.fn(ctx); err != nil {
			a.Close()
			return nil, fmt.Errorf("build %s: %w", s.name, err)
		}
	}

	mode, err := llm.ParseMode(cfg.Pipeline.ExtractionMode)
	if err != nil {
		a.Close()
		return nil, common.NewAppError("CONFIG_ERROR", "pipeline.extraction_mode", err)
	}
	a.Extractor = extract.NewEngine(a.Completer, logger,
		extract.WithMaxAttempts(cfg.Pipeline.MaxAttempts),
		extract.WithJitter(cfg.Pipeline.RetryJitter.Duration),
		extract.WithMode(mode),
		extract.WithObserver(a.Metrics),
	)
	a.Assembler = assemble.New(assemble.Options{
		DefaultTag:           cfg.Pipeline.DefaultTag,
		DefaultStatus:        cfg.Pipeline.DefaultStatus,
		UnknownAssigneeLabel: cfg.Pipeline.UnknownAssigneeLabel,
		AssigneeUserIDs:      cfg.Pipeline.AssigneeUserIDs,
	})
	a.Publisher = publish.NewPublisher(a.Records, a.Staging, logger)

	logger.Info("app.build.ok",
		"staging", cfg.Staging.Backend,
		"llm", cfg.LLM.Provider,
		"records", cfg.Pipeline.RecordStore,
		"ledger", cfg.Ledger.Driver,
		"mode", mode,
	)
	return a, nil
}

func (a *App) buildStaging(ctx context.Context) error {
	sc := a.Config.Staging
	switch sc.Backend {
	case "local":
		s, err := staging.NewLocalStore(staging.LocalConfig{
			Dir:           sc.Dir,
			PublicBaseURL: sc.PublicBaseURL,
			Prefix:        sc.Prefix,
			ProcessName:   sc.ProcessName,
		}, a.Logger)
		if err != nil {
			return err
		}
		a.Staging = s
	case "gcs":
		client, err := storage.NewClient(ctx)
		if err != nil {
			return fmt.Errorf("storage client: %w", err)
		}
		a.closers = append(a.closers, func() { _ = client.Close() })
		s, err := staging.NewGCSStore(client, staging.GCSConfig{
			Bucket:        sc.Bucket,
			Prefix:        sc.Prefix,
			PublicBaseURL: sc.PublicBaseURL,
			ProcessName:   sc.ProcessName,
		}, a.Logger)
		if err != nil {
			return err
		}
		a.Staging = s
	default:
		return fmt.Errorf("%w: staging backend %q", common.ErrConfig, sc.Backend)
	}
	return nil
}

func (a *App) buildCompleter(ctx context.Context) error {
	lc := a.Config.LLM
	switch lc.Provider {
	case "openai":
		a.Completer = openai.NewClient(openai.Config{
			APIKey:      lc.APIKey,
			BaseURL:     lc.BaseURL,
			Model:       lc.Model,
			Temperature: lc.Temperature,
			Timeout:     lc.Timeout.Duration,
		}, a.Logger)
	case "vertex":
		model := lc.Model
		if strings.HasPrefix(model, "gpt") {
			model = ""
		}
		c, err := vertex.NewClient(ctx, vertex.Config{
			ProjectID:   lc.ProjectID,
			Region:      lc.Region,
			Model:       model,
			Temperature: lc.Temperature,
			Timeout:     lc.Timeout.Duration,
		}, a.Logger)
		if err != nil {
			return err
		}
		a.closers = append(a.closers, func() { _ = c.Close() })
		a.Completer = c
	default:
		return fmt.Errorf("%w: llm provider %q", common.ErrConfig, lc.Provider)
	}
	return nil
}

func (a *App) buildRecords(ctx context.Context) error {
	switch a.Config.Pipeline.RecordStore {
	case "notion":
		nc := a.Config.Notion
		a.Records = record.NewNotionStore(record.NotionConfig{
			Token:             nc.Token,
			DatabaseID:        nc.DatabaseID,
			Version:           nc.Version,
			BaseURL:           nc.BaseURL,
			Timeout:           nc.Timeout.Duration,
			RequestsPerSecond: nc.RequestsPerSecond,
		}, a.Logger)
	case "firestore":
		client, err := firestore.NewClient(ctx, a.Config.Firestore.ProjectID)
		if err != nil {
			return fmt.Errorf("firestore client: %w", err)
		}
		a.closers = append(a.closers, func() { _ = client.Close() })
		a.Records = record.NewFirestoreStore(client, a.Config.Firestore.Collection, a.Logger)
	default:
		return fmt.Errorf("%w: record store %q", common.ErrConfig, a.Config.Pipeline.RecordStore)
	}
	return nil
}

func (a *App) buildLedger(ctx context.Context) error {
	if a.Config.Ledger.Driver == "none" {
		return nil
	}
	l, err := ledger.Open(ctx, ledger.Config{
		Driver:      a.Config.Ledger.Driver,
		DSN:         a.Config.Ledger.DSN,
		DialTimeout: 5 * time.Second,
	}, a.Logger)
	if err != nil {
		return err
	}
	a.closers = append(a.closers, l.Close)
	a.Ledger = l
	return nil
}

// Orchestrator builds a pipeline orchestrator over the app's components.
// queue may be nil for synchronous use through Run.
func (a *App) Orchestrator(queue async.Queue) (*pipeline.Orchestrator, error) {
	deps := pipeline.Deps{
		Staging:   a.Staging,
		Extractor: a.Extractor,
		Assembler: a.Assembler,
		Publisher: a.Publisher,
		Queue:     queue,
		Observer:  a.Metrics,
	}
	if a.Ledger != nil {
		deps.Recorder = a.Ledger
	}
	return pipeline.NewOrchestrator(deps, pipeline.Options{
		DeleteStagedAfterRun: a.Config.Pipeline.DeleteStagedAfterRun,
	}, a.Logger)
}

// Close releases clients in reverse construction order.
func (a *App) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
}
