package pipeline

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joseph-ayodele/cardlead/constants"
	"github.com/joseph-ayodele/cardlead/internal/assemble"
	"github.com/joseph-ayodele/cardlead/internal/async"
	"github.com/joseph-ayodele/cardlead/internal/common"
	"github.com/joseph-ayodele/cardlead/internal/entity"
	"github.com/joseph-ayodele/cardlead/internal/publish"
	"github.com/joseph-ayodele/cardlead/internal/record"
	"github.com/joseph-ayodele/cardlead/internal/staging"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func fixedNow() time.Time {
	return time.Date(2025, 4, 3, 10, 20, 30, 0, time.UTC)
}

type fakeExtractor struct {
	mu     sync.Mutex
	result entity.ExtractionResult
	panics bool
	urls   []string
}

func (f *fakeExtractor) Extract(_ context.Context, url string) entity.ExtractionResult {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.urls = append(f.urls, url)
	if f.panics {
		panic("extractor exploded")
	}
	return f.result.Clone()
}

type fakeRecords struct {
	mu        sync.Mutex
	createErr error
	appendErr error
	created   []record.Properties
	appended  []string
}

func (f *fakeRecords) CreateRecord(_ context.Context, props record.Properties) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.createErr != nil {
		return "", f.createErr
	}
	f.created = append(f.created, props)
	return "rec-1", nil
}

func (f *fakeRecords) AppendImageBlocks(_ context.Context, _ string, urls []string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.appendErr != nil {
		return f.appendErr
	}
	f.appended = append(f.appended, urls...)
	return nil
}

type fakeRecorder struct {
	mu       sync.Mutex
	queued   []entity.Run
	started  []entity.ProcessID
	finished []Outcome
}

func (f *fakeRecorder) RecordQueued(_ context.Context, run entity.Run) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.queued = append(f.queued, run)
	return nil
}

func (f *fakeRecorder) RecordStarted(_ context.Context, id entity.ProcessID, _ time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.started = append(f.started, id)
	return nil
}

func (f *fakeRecorder) RecordFinished(_ context.Context, out Outcome, _ time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.finished = append(f.finished, out)
	return nil
}

type fullQueue struct{ submits int }

func (q *fullQueue) Submit(async.Job) error {
	q.submits++
	return async.ErrQueueFull
}

func (q *fullQueue) Shutdown(context.Context) error { return nil }

type harness struct {
	orch      *Orchestrator
	extractor *fakeExtractor
	records   *fakeRecords
	recorder  *fakeRecorder
	store     *staging.LocalStore
	src       string
}

func newHarness(t *testing.T, queue async.Queue) *harness {
	t.Helper()
	store, err := staging.NewLocalStore(staging.LocalConfig{
		Dir:           t.TempDir(),
		PublicBaseURL: "https://img.example.com/",
		ProcessName:   "test",
		Now:           fixedNow,
	}, quietLogger())
	require.NoError(t, err)

	h := &harness{
		extractor: &fakeExtractor{result: entity.ExtractionResult{
			constants.FieldCompany:  "株式会社テスト",
			constants.FieldName:     "山田 太郎",
			constants.FieldAddress:  "東京都 千代田区1-1",
			constants.FieldIndustry: "IT・通信",
		}},
		records:  &fakeRecords{},
		recorder: &fakeRecorder{},
		store:    store,
		src:      t.TempDir(),
	}
	orch, err := NewOrchestrator(Deps{
		Staging:   store,
		Extractor: h.extractor,
		Assembler: assemble.New(assemble.Options{Now: fixedNow}),
		Publisher: publish.NewPublisher(h.records, store, quietLogger()),
		Queue:     queue,
		Recorder:  h.recorder,
	}, Options{Now: fixedNow}, quietLogger())
	require.NoError(t, err)
	h.orch = orch
	return h
}

func (h *harness) file(t *testing.T, name string) string {
	t.Helper()
	p := filepath.Join(h.src, name)
	require.NoError(t, os.WriteFile(p, []byte(name), 0o644))
	return p
}

func baseContext() entity.PipelineContext {
	return entity.PipelineContext{
		Assignee:     "佐藤",
		ProposalPlan: "スタンダード",
		Need:         "3",
		Authority:    "3",
		Timing:       "2",
		InputMode:    constants.InputModeImage,
	}
}

func assertGone(t *testing.T, paths ...string) {
	t.Helper()
	for _, p := range paths {
		_, err := os.Stat(p)
		assert.True(t, errors.Is(err, os.ErrNotExist), "%s should have been removed", p)
	}
}

func TestRun_ImageMode(t *testing.T) {
	h := newHarness(t, nil)
	card := h.file(t, "card.jpg")
	h1 := h.file(t, "h1.png")
	h2 := h.file(t, "h2.png")

	job := Job{ProcessID: entity.NewProcessID(), Submission: Submission{
		CardPath:     card,
		HearingPaths: []string{h1, h2},
		LeadDate:     "2025/4/1",
		Context:      baseContext(),
	}}
	out := h.orch.Run(context.Background(), job)

	require.NoError(t, out.Err)
	assert.Equal(t, constants.RunStatusSucceeded, out.Status)
	assert.Equal(t, "rec-1", out.RecordID)
	assert.Equal(t, 3, out.ImageCount)
	assert.Equal(t, 3, out.Attached)

	require.Len(t, h.extractor.urls, 1)
	assert.Contains(t, h.extractor.urls[0], "/images/card/")
	assert.Equal(t, h.extractor.urls[0], out.CardURL)

	require.Len(t, h.records.created, 1)
	props := h.records.created[0]
	assert.Equal(t, "株式会社テスト", props[assemble.PropCompany].Text)
	assert.Equal(t, "東京都", props[assemble.PropPrefecture].Text)
	assert.Equal(t, "A", *props[assemble.PropPersona].Str)
	assert.False(t, props[assemble.PropManualEntry].Checkbox)

	require.Len(t, h.records.appended, 3)
	assert.Contains(t, h.records.appended[0], "/images/card/")
	assert.Contains(t, h.records.appended[1], "/images/hearing/")
	assert.Contains(t, h.records.appended[2], "/images/hearing/")

	assertGone(t, card, h1, h2)
	require.Len(t, h.recorder.finished, 1)
	assert.Equal(t, constants.RunStatusSucceeded, h.recorder.finished[0].Status)
}

func TestRun_ManualModeSkipsExtraction(t *testing.T) {
	h := newHarness(t, nil)
	sheet := h.file(t, "sheet.jpg")

	pc := baseContext()
	pc.InputMode = constants.InputModeManual
	pc.Manual = entity.ManualContact{Company: "手入力商事", Name: "鈴木", Email: "ｓｕｚｕｋｉ@example.com"}

	out := h.orch.Run(context.Background(), Job{ProcessID: entity.NewProcessID(), Submission: Submission{
		HearingPaths: []string{sheet},
		Context:      pc,
	}})

	require.NoError(t, out.Err)
	assert.Equal(t, constants.RunStatusSucceeded, out.Status)
	assert.Empty(t, h.extractor.urls)

	props := h.records.created[0]
	assert.Equal(t, "手入力商事", props[assemble.PropCompany].Text)
	assert.True(t, props[assemble.PropManualEntry].Checkbox)
	require.Len(t, h.records.appended, 1)
	assert.Contains(t, h.records.appended[0], "/images/hearing/")
	assertGone(t, sheet)
}

func TestRun_ManualModeWithoutImages(t *testing.T) {
	h := newHarness(t, nil)
	pc := baseContext()
	pc.InputMode = constants.InputModeManual
	pc.Manual = entity.ManualContact{Company: "A", Name: "B"}

	out := h.orch.Run(context.Background(), Job{ProcessID: entity.NewProcessID(), Submission: Submission{Context: pc}})
	assert.Equal(t, constants.RunStatusSucceeded, out.Status)
	assert.Zero(t, out.Attached)
	assert.Empty(t, h.records.appended)
}

func TestRun_MissingCardIsFatal(t *testing.T) {
	h := newHarness(t, nil)
	sheet := h.file(t, "sheet.jpg")

	out := h.orch.Run(context.Background(), Job{ProcessID: entity.NewProcessID(), Submission: Submission{
		CardPath:     filepath.Join(h.src, "missing.jpg"),
		HearingPaths: []string{sheet},
		Context:      baseContext(),
	}})

	assert.Equal(t, constants.RunStatusFailed, out.Status)
	assert.Equal(t, StageStaging, out.Stage)
	assert.ErrorIs(t, out.Err, common.ErrLocalIO)
	assert.Empty(t, h.records.created)
	assertGone(t, sheet)
}

func TestRun_EmptyExtractionStillPublishes(t *testing.T) {
	h := newHarness(t, nil)
	h.extractor.result = entity.ExtractionResult{}
	card := h.file(t, "card.jpg")

	out := h.orch.Run(context.Background(), Job{ProcessID: entity.NewProcessID(), Submission: Submission{
		CardPath: card,
		Context:  baseContext(),
	}})

	assert.Equal(t, constants.RunStatusSucceeded, out.Status)
	props := h.records.created[0]
	assert.True(t, props[assemble.PropCompany].IsNull())
	assert.Len(t, props, len(assemble.PropertyNames))
}

func TestRun_PublishRejected(t *testing.T) {
	h := newHarness(t, nil)
	h.records.createErr = common.NewRemoteRejection("notion", "create_page", 400, "bad property")
	card := h.file(t, "card.jpg")

	out := h.orch.Run(context.Background(), Job{ProcessID: entity.NewProcessID(), Submission: Submission{
		CardPath: card,
		Context:  baseContext(),
	}})

	assert.Equal(t, constants.RunStatusFailed, out.Status)
	assert.Equal(t, StagePublish, out.Stage)
	assert.ErrorIs(t, out.Err, common.ErrRemoteRejection)
	assert.Empty(t, h.records.appended)
	assertGone(t, card)
}

func TestRun_AttachFailureIsPartial(t *testing.T) {
	h := newHarness(t, nil)
	h.records.appendErr = common.NewRemoteRejection("notion", "append_blocks", 502, "gateway")
	card := h.file(t, "card.jpg")

	out := h.orch.Run(context.Background(), Job{ProcessID: entity.NewProcessID(), Submission: Submission{
		CardPath: card,
		Context:  baseContext(),
	}})

	assert.Equal(t, constants.RunStatusPartial, out.Status)
	assert.Equal(t, "rec-1", out.RecordID)
	assert.ErrorIs(t, out.Err, common.ErrRemoteRejection)
	assertGone(t, card)
}

func TestRun_PanicIsContained(t *testing.T) {
	h := newHarness(t, nil)
	h.extractor.panics = true
	card := h.file(t, "card.jpg")

	var out Outcome
	require.NotPanics(t, func() {
		out = h.orch.Run(context.Background(), Job{ProcessID: entity.NewProcessID(), Submission: Submission{
			CardPath: card,
			Context:  baseContext(),
		}})
	})
	assert.Equal(t, constants.RunStatusFailed, out.Status)
	assert.Equal(t, StageExtract, out.Stage)
	assert.ErrorIs(t, out.Err, common.ErrInternal)
	assertGone(t, card)
	require.Len(t, h.recorder.finished, 1)
}

func TestRun_DeletesStagedNamespaceWhenConfigured(t *testing.T) {
	h := newHarness(t, nil)
	h.orch.opts.DeleteStagedAfterRun = true
	card := h.file(t, "card.jpg")
	pid := entity.NewProcessID()

	out := h.orch.Run(context.Background(), Job{ProcessID: pid, Submission: Submission{CardPath: card, Context: baseContext()}})
	require.Equal(t, constants.RunStatusSucceeded, out.Status)

	assets, err := h.store.ListAssets(context.Background(), pid)
	require.NoError(t, err)
	assert.Empty(t, assets)
}

func TestValidate(t *testing.T) {
	h := newHarness(t, nil)

	tests := []struct {
		name  string
		sub   func() Submission
		field string
	}{
		{"bad lead date", func() Submission {
			return Submission{CardPath: "c.jpg", LeadDate: "2025-04-01", Context: baseContext()}
		}, "lead_date"},
		{"impossible lead date", func() Submission {
			return Submission{CardPath: "c.jpg", LeadDate: "2025/2/30", Context: baseContext()}
		}, "lead_date"},
		{"missing assignee", func() Submission {
			pc := baseContext()
			pc.Assignee = " "
			return Submission{CardPath: "c.jpg", Context: pc}
		}, "assignee"},
		{"image mode without card", func() Submission {
			return Submission{Context: baseContext()}
		}, "card_path"},
		{"unsupported card type", func() Submission {
			return Submission{CardPath: "card.gif", Context: baseContext()}
		}, "card_path"},
		{"manual without company", func() Submission {
			pc := baseContext()
			pc.InputMode = constants.InputModeManual
			pc.Manual.Name = "x"
			return Submission{Context: pc}
		}, "manual.company"},
		{"unknown input mode", func() Submission {
			pc := baseContext()
			pc.InputMode = "fax"
			return Submission{CardPath: "c.jpg", Context: pc}
		}, "input_mode"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := h.orch.Validate(tt.sub())
			require.Error(t, err)
			assert.ErrorIs(t, err, common.ErrValidation)
			assert.Contains(t, err.Error(), tt.field)
		})
	}

	assert.NoError(t, h.orch.Validate(Submission{CardPath: "c.JPG", LeadDate: "2025/4/1", Context: baseContext()}))
}

func TestStart_RejectsBeforeAnyIO(t *testing.T) {
	q := &fullQueue{}
	h := newHarness(t, q)
	card := h.file(t, "card.jpg")

	_, err := h.orch.Start(context.Background(), Submission{CardPath: card, LeadDate: "yesterday", Context: baseContext()})
	assert.ErrorIs(t, err, common.ErrValidation)
	assert.Zero(t, q.submits)
	assert.Empty(t, h.recorder.queued)
	_, statErr := os.Stat(card)
	assert.NoError(t, statErr, "rejected submissions keep their files")
}

func TestStart_QueueFull(t *testing.T) {
	h := newHarness(t, &fullQueue{})
	card := h.file(t, "card.jpg")

	_, err := h.orch.Start(context.Background(), Submission{CardPath: card, Context: baseContext()})
	assert.ErrorIs(t, err, async.ErrQueueFull)
	require.Len(t, h.recorder.finished, 1)
	assert.Equal(t, constants.RunStatusFailed, h.recorder.finished[0].Status)
	assert.Equal(t, StageQueue, h.recorder.finished[0].Stage)
}

func TestStart_RunsInBackground(t *testing.T) {
	pool := async.NewPool(quietLogger(), async.WithWorkers(2), async.WithQueueSize(4))
	h := newHarness(t, pool)
	card := h.file(t, "card.jpg")

	pid, err := h.orch.Start(context.Background(), Submission{CardPath: card, Context: baseContext()})
	require.NoError(t, err)
	assert.NotEmpty(t, pid)

	require.NoError(t, pool.Shutdown(context.Background()))

	h.recorder.mu.Lock()
	defer h.recorder.mu.Unlock()
	require.Len(t, h.recorder.queued, 1)
	assert.Equal(t, pid, h.recorder.queued[0].ProcessID)
	assert.Equal(t, constants.RunStatusQueued, h.recorder.queued[0].Status)
	require.Len(t, h.recorder.finished, 1)
	assert.Equal(t, constants.RunStatusSucceeded, h.recorder.finished[0].Status)
	assertGone(t, card)
}

func TestRunNow(t *testing.T) {
	h := newHarness(t, nil)
	card := h.file(t, "card.jpg")

	out, err := h.orch.RunNow(context.Background(), Submission{CardPath: card, Context: baseContext()})
	require.NoError(t, err)
	assert.Equal(t, constants.RunStatusSucceeded, out.Status)
	require.Len(t, h.recorder.queued, 1)
	assert.Equal(t, out.ProcessID, h.recorder.queued[0].ProcessID)
	assert.Equal(t, []entity.ProcessID{out.ProcessID}, h.recorder.started)
	assertGone(t, card)

	pc := baseContext()
	pc.Need = ""
	out, err = h.orch.RunNow(context.Background(), Submission{CardPath: card, Context: pc})
	assert.ErrorIs(t, err, common.ErrValidation)
	assert.Equal(t, StageValidate, out.Stage)
	assert.Len(t, h.recorder.queued, 1)
}
