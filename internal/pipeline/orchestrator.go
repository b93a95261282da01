package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"runtime/debug"
	"time"

	"github.com/joseph-ayodele/cardlead/constants"
	"github.com/joseph-ayodele/cardlead/internal/assemble"
	"github.com/joseph-ayodele/cardlead/internal/async"
	"github.com/joseph-ayodele/cardlead/internal/common"
	"github.com/joseph-ayodele/cardlead/internal/entity"
	"github.com/joseph-ayodele/cardlead/internal/extract"
	"github.com/joseph-ayodele/cardlead/internal/publish"
	"github.com/joseph-ayodele/cardlead/internal/staging"
)

// Deps are the collaborators of an Orchestrator. Queue, Recorder and Observer
// are optional; without a Queue only Run can be used.
type Deps struct {
	Staging   staging.Store
	Extractor extract.FieldExtractor
	Assembler *assemble.Assembler
	Publisher *publish.Publisher
	Queue     async.Queue
	Recorder  RunRecorder
	Observer  Observer
}

type Options struct {
	// DeleteStagedAfterRun removes the staged namespace once the record is published.
	DeleteStagedAfterRun bool
	Now                  func() time.Time
}

// Orchestrator sequences staging, extraction, assembly and publishing for
// one submission and always removes the submission's local files.
type Orchestrator struct {
	staging   staging.Store
	extractor extract.FieldExtractor
	assembler *assemble.Assembler
	publisher *publish.Publisher
	queue     async.Queue
	recorder  RunRecorder
	observer  Observer
	opts      Options
	logger    *slog.Logger
}

func NewOrchestrator(deps Deps, opts Options, logger *slog.Logger) (*Orchestrator, error) {
	if deps.Staging == nil || deps.Extractor == nil || deps.Assembler == nil || deps.Publisher == nil {
		return nil, fmt.Errorf("%w: orchestrator needs staging, extractor, assembler and publisher", common.ErrConfig)
	}
	if logger == nil {
		logger = slog.Default()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	o := &Orchestrator{
		staging:   deps.Staging,
		extractor: deps.Extractor,
		assembler: deps.Assembler,
		publisher: deps.Publisher,
		queue:     deps.Queue,
		recorder:  deps.Recorder,
		observer:  deps.Observer,
		opts:      opts,
		logger:    logger,
	}
	if o.recorder == nil {
		o.recorder = nopRecorder{}
	}
	if o.observer == nil {
		o.observer = nopObserver{}
	}
	return o, nil
}

func normalize(sub Submission) Submission {
	if sub.Context.InputMode == "" {
		sub.Context.InputMode = constants.InputModeImage
	}
	sub.HearingPaths = append([]string(nil), sub.HearingPaths...)
	return sub
}

// Validate runs the pre-flight checks. It performs no I/O.
func (o *Orchestrator) Validate(sub Submission) error {
	sub = normalize(sub)
	pc := sub.Context

	v := common.NewValidator()
	v.Field("assignee", pc.Assignee, common.Required)
	v.Field("proposal_plan", pc.ProposalPlan, common.Required)
	v.Field("need", pc.Need, common.Required)
	v.Field("authority", pc.Authority, common.Required)
	v.Field("timing", pc.Timing, common.Required)
	v.Field("input_mode", string(pc.InputMode),
		common.OneOf(string(constants.InputModeImage), string(constants.InputModeManual)))

	if pc.IsManual() {
		v.Field("manual.company", pc.Manual.Company, common.Required)
		v.Field("manual.name", pc.Manual.Name, common.Required)
	} else {
		v.Field("card_path", sub.CardPath, common.Required)
		if sub.CardPath != "" && !constants.IsAllowedImage(filepath.Ext(sub.CardPath)) {
			v.Add(common.ValidationError{Field: "card_path", Value: sub.CardPath, Message: "unsupported image type"})
		}
	}
	for i, p := range sub.HearingPaths {
		if !constants.IsAllowedImage(filepath.Ext(p)) {
			v.Add(common.ValidationError{Field: fmt.Sprintf("hearing_paths[%d]", i), Value: p, Message: "unsupported image type"})
		}
	}

	if _, err := assemble.ParseLeadDate(sub.LeadDate, o.opts.Now()); err != nil {
		var ve common.ValidationError
		if errors.As(err, &ve) {
			v.Add(ve)
		} else {
			v.Add(common.ValidationError{Field: "lead_date", Value: sub.LeadDate, Message: err.Error()})
		}
	}
	return v.Error()
}

// Start validates sub, mints its process id and queues it. It never waits for
// the pipeline itself; the returned id is only for correlating logs and the
// run ledger. A full queue is reported as async.ErrQueueFull.
func (o *Orchestrator) Start(ctx context.Context, sub Submission) (entity.ProcessID, error) {
	sub = normalize(sub)
	if err := o.Validate(sub); err != nil {
		common.LoggerFrom(ctx, o.logger).Warn("pipeline.start.rejected", "error", err)
		return "", err
	}
	if o.queue == nil {
		return "", fmt.Errorf("%w: orchestrator has no queue", common.ErrInternal)
	}

	job := o.accept(ctx, sub)
	ctx = common.WithProcessID(ctx, job.ProcessID.String())
	log := common.LoggerFrom(ctx, o.logger)

	err := o.queue.Submit(async.Job{
		ID:          job.ProcessID.String(),
		SubmittedAt: job.QueuedAt,
		Run: func(ctx context.Context) error {
			return o.Run(ctx, job).Err
		},
	})
	if err != nil {
		o.finish(ctx, Outcome{ProcessID: job.ProcessID, Status: constants.RunStatusFailed, Stage: StageQueue, Err: err})
		return "", err
	}
	log.Info("pipeline.queued", "input_mode", sub.Context.InputMode, "images", imageCount(sub))
	return job.ProcessID, nil
}

// RunNow validates sub and runs it on the calling goroutine, bypassing the
// queue. The error is non-nil only when validation fails.
func (o *Orchestrator) RunNow(ctx context.Context, sub Submission) (Outcome, error) {
	sub = normalize(sub)
	if err := o.Validate(sub); err != nil {
		return Outcome{Status: constants.RunStatusFailed, Stage: StageValidate, Err: err}, err
	}
	return o.Run(ctx, o.accept(ctx, sub)), nil
}

// accept mints the process id and writes the QUEUED ledger row.
func (o *Orchestrator) accept(ctx context.Context, sub Submission) Job {
	job := Job{ProcessID: entity.NewProcessID(), Submission: sub, QueuedAt: o.opts.Now()}
	ctx = common.WithProcessID(ctx, job.ProcessID.String())
	run := entity.Run{
		ProcessID:  job.ProcessID,
		Status:     constants.RunStatusQueued,
		InputMode:  sub.Context.InputMode,
		Assignee:   sub.Context.Assignee,
		Stage:      StageQueue,
		ImageCount: imageCount(sub),
		QueuedAt:   job.QueuedAt,
	}
	if err := o.recorder.RecordQueued(ctx, run); err != nil {
		common.LoggerFrom(ctx, o.logger).Warn("pipeline.ledger.failed", "op", "queued", "error", err)
	}
	return job
}

func imageCount(sub Submission) int {
	n := len(sub.HearingPaths)
	if sub.CardPath != "" && !sub.Context.IsManual() {
		n++
	}
	return n
}

// Run executes one job to completion. It never panics and never returns an
// error to its caller other than through Outcome. Local files named by the
// submission are removed on every path.
func (o *Orchestrator) Run(ctx context.Context, job Job) (out Outcome) {
	ctx = common.WithProcessID(ctx, job.ProcessID.String())
	log := common.LoggerFrom(ctx, o.logger)
	sub := normalize(job.Submission)
	pc := sub.Context

	out = Outcome{ProcessID: job.ProcessID, Status: constants.RunStatusRunning, Stage: StageStaging}
	if err := o.recorder.RecordStarted(ctx, job.ProcessID, o.opts.Now()); err != nil {
		log.Warn("pipeline.ledger.failed", "op", "started", "error", err)
	}
	log.Info("pipeline.run.start", "input_mode", pc.InputMode, "hearing", len(sub.HearingPaths))

	defer func() {
		if r := recover(); r != nil {
			log.Error("pipeline.run.panic", "stage", out.Stage, "panic", r, "stack", string(debug.Stack()))
			out.Status = constants.RunStatusFailed
			out.Err = fmt.Errorf("%w: panic during %s: %v", common.ErrInternal, out.Stage, r)
		}
		o.cleanup(ctx, sub)
		o.finish(ctx, out)
	}()

	var (
		card    *entity.ImageAsset
		hearing []entity.ImageAsset
		res     entity.ExtractionResult
	)

	// staging
	start := time.Now()
	if pc.IsManual() {
		res = entity.FromManual(pc.Manual)
	} else {
		if _, err := os.Stat(sub.CardPath); err != nil {
			return failed(out, common.LocalIOError("stat card", sub.CardPath, err))
		}
		asset, err := o.stage(ctx, job.ProcessID, constants.RoleCard, sub.CardPath)
		if err != nil {
			return failed(out, err)
		}
		card = &asset
		out.CardURL = asset.Staged.URL
	}
	for _, p := range sub.HearingPaths {
		asset, err := o.stage(ctx, job.ProcessID, constants.RoleHearing, p)
		if err != nil {
			return failed(out, err)
		}
		hearing = append(hearing, asset)
	}
	out.ImageCount = len(hearing)
	if card != nil {
		out.ImageCount++
	}
	o.observer.ObserveStage(StageStaging, time.Since(start))

	// extraction
	if card != nil {
		out.Stage = StageExtract
		start = time.Now()
		out.CardURL = o.cardURL(ctx, job.ProcessID, out.CardURL)
		res = o.extractor.Extract(ctx, out.CardURL)
		o.observer.ObserveStage(StageExtract, time.Since(start))
		if res.Empty() {
			log.Warn("pipeline.extract.empty", "card_url", out.CardURL)
		} else {
			log.Info("pipeline.extract.ok", "fields", len(res))
		}
	}

	out.Stage = StageAssemble
	props, err := o.assembler.Assemble(res, pc, sub.LeadDate)
	if err != nil {
		return failed(out, err)
	}

	out.Stage = StagePublish
	start = time.Now()
	recordID, err := o.publisher.Publish(ctx, props)
	o.observer.ObserveStage(StagePublish, time.Since(start))
	if err != nil {
		return failed(out, err)
	}
	out.RecordID = recordID

	out.Stage = StageAttach
	start = time.Now()
	ar := o.publisher.AttachImages(ctx, recordID, job.ProcessID, card, hearing)
	o.observer.ObserveStage(StageAttach, time.Since(start))
	out.Attached = ar.Attached()
	if !ar.OK() {
		out.Status = constants.RunStatusPartial
		out.Err = ar.Err
		return out
	}

	if o.opts.DeleteStagedAfterRun && out.ImageCount > 0 {
		if err := o.staging.Delete(ctx, job.ProcessID); err != nil {
			log.Warn("pipeline.staging.delete_failed", "error", err)
		}
	}

	out.Stage = StageDone
	out.Status = constants.RunStatusSucceeded
	return out
}

func failed(out Outcome, err error) Outcome {
	out.Status = constants.RunStatusFailed
	out.Err = err
	return out
}

func (o *Orchestrator) stage(ctx context.Context, pid entity.ProcessID, role constants.AssetRole, path string) (entity.ImageAsset, error) {
	ref, err := o.staging.Put(ctx, pid, role, path)
	if err != nil {
		return entity.ImageAsset{}, fmt.Errorf("stage %s image %s: %w", role, filepath.Base(path), err)
	}
	common.LoggerFrom(ctx, o.logger).Debug("pipeline.staging.put", "role", role, "key", ref.Key, "size", ref.Size)
	return entity.ImageAsset{LocalPath: path, Role: role, Staged: &ref}, nil
}

// cardURL prefers the URL reported by the staging listing and falls back to
// the one returned by Put.
func (o *Orchestrator) cardURL(ctx context.Context, pid entity.ProcessID, fallback string) string {
	assets, err := o.staging.ListAssets(ctx, pid)
	if err != nil {
		common.LoggerFrom(ctx, o.logger).Warn("pipeline.staging.list_failed", "error", err)
		return fallback
	}
	if a := staging.FirstOfRole(assets, constants.RoleCard); a != nil {
		return a.URL
	}
	return fallback
}

// cleanup removes every local file of the submission. Missing files are
// logged and skipped.
func (o *Orchestrator) cleanup(ctx context.Context, sub Submission) {
	log := common.LoggerFrom(ctx, o.logger)
	paths := make([]string, 0, len(sub.HearingPaths)+1)
	if sub.CardPath != "" {
		paths = append(paths, sub.CardPath)
	}
	paths = append(paths, sub.HearingPaths...)

	removed := 0
	for _, p := range paths {
		if err := os.Remove(p); err != nil {
			lerr := common.LocalIOError("remove", p, err)
			if errors.Is(err, fs.ErrNotExist) {
				log.Warn("pipeline.cleanup.missing", "error", lerr)
			} else {
				log.Error("pipeline.cleanup.failed", "error", lerr)
			}
			continue
		}
		removed++
	}
	log.Debug("pipeline.cleanup.done", "removed", removed, "total", len(paths))
}

func (o *Orchestrator) finish(ctx context.Context, out Outcome) {
	ctx = context.WithoutCancel(ctx)
	log := common.LoggerFrom(ctx, o.logger)

	o.observer.ObserveRun(out.Status)
	if err := o.recorder.RecordFinished(ctx, out, o.opts.Now()); err != nil {
		log.Warn("pipeline.ledger.failed", "op", "finished", "error", err)
	}

	attrs := []any{"status", out.Status, "stage", out.Stage, "record_id", out.RecordID, "attached", out.Attached}
	switch out.Status {
	case constants.RunStatusSucceeded:
		log.Info("pipeline.run.done", attrs...)
	case constants.RunStatusPartial:
		log.Warn("pipeline.run.partial", append(attrs, "error", out.Err)...)
	default:
		log.Error("pipeline.run.failed", append(attrs, "error", out.Err)...)
	}
}
