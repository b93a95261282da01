// Package inbox is the drop-folder intake. An operator (or a sync client)
// copies card and hearing images into the inbox directory and then writes a
// *.json manifest naming them; the manifest is the trigger and must be
// written last.
package inbox

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"github.com/joseph-ayodele/cardlead/internal/common"
	"github.com/joseph-ayodele/cardlead/internal/entity"
	"github.com/joseph-ayodele/cardlead/internal/pipeline"
)

const (
	manifestSuffix = ".json"
	claimedDir     = ".claimed"
	acceptedDir    = "accepted"
	rejectedDir    = "rejected"
)

// Starter queues a submission; *pipeline.Orchestrator implements it.
type Starter interface {
	Start(ctx context.Context, sub pipeline.Submission) (entity.ProcessID, error)
}

// Manifest is the JSON document that triggers one submission. Image names are
// relative to the inbox directory.
type Manifest struct {
	Card     string                 `json:"card,omitempty"`
	Hearing  []string               `json:"hearing,omitempty"`
	LeadDate string                 `json:"lead_date,omitempty"`
	Context  entity.PipelineContext `json:"context"`
}

// Inbox turns manifests into pipeline submissions.
type Inbox struct {
	dir      string
	starter  Starter
	debounce time.Duration
	logger   *slog.Logger
}

func New(dir string, starter Starter, debounce time.Duration, logger *slog.Logger) (*Inbox, error) {
	if logger == nil {
		logger = slog.Default()
	}
	abs, err := filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("inbox dir: %w", err)
	}
	for _, sub := range []string{claimedDir, acceptedDir, rejectedDir} {
		if err := os.MkdirAll(filepath.Join(abs, sub), 0o755); err != nil {
			return nil, fmt.Errorf("inbox dir: %w", err)
		}
	}
	return &Inbox{dir: abs, starter: starter, debounce: debounce, logger: logger}, nil
}

// Run watches the inbox until ctx is done. Manifests already present when it
// starts are handled first.
func (in *Inbox) Run(ctx context.Context) error {
	events, errs, err := StartWatcher(ctx, WatchConfig{
		Dir:         in.dir,
		Suffix:      manifestSuffix,
		InitialScan: true,
		Debounce:    in.debounce,
	}, in.logger)
	if err != nil {
		return fmt.Errorf("watch inbox: %w", err)
	}
	in.logger.Info("inbox.watching", "dir", in.dir)

	for {
		select {
		case <-ctx.Done():
			return nil
		case p, ok := <-events:
			if !ok {
				return nil
			}
			in.Handle(ctx, p)
		case err, ok := <-errs:
			if !ok {
				return nil
			}
			in.logger.Warn("inbox.watch.degraded", "error", err)
		}
	}
}

// Handle claims one manifest and starts its submission. Accepted manifests
// move to accepted/<process id>.json; rejected ones move to rejected/ with a
// sibling .error file and their images are left in place.
func (in *Inbox) Handle(ctx context.Context, manifestPath string) {
	name := filepath.Base(manifestPath)
	log := in.logger.With("manifest", name)

	claimed := filepath.Join(in.dir, claimedDir, uuid.NewString()+"_"+name)
	if err := os.Rename(manifestPath, claimed); err != nil {
		// Another event for the same file already claimed it.
		if errors.Is(err, os.ErrNotExist) {
			return
		}
		log.Error("inbox.claim.failed", "error", err)
		return
	}

	sub, err := in.load(claimed)
	if err != nil {
		in.reject(claimed, name, err, log)
		return
	}
	pid, err := in.starter.Start(ctx, sub)
	if err != nil {
		in.reject(claimed, name, err, log)
		return
	}

	if err := os.Rename(claimed, filepath.Join(in.dir, acceptedDir, pid.String()+manifestSuffix)); err != nil {
		log.Warn("inbox.archive.failed", "process_id", pid, "error", err)
	}
	log.Info("inbox.accepted", "process_id", pid)
}

func (in *Inbox) load(path string) (pipeline.Submission, error) {
	var sub pipeline.Submission
	data, err := os.ReadFile(path)
	if err != nil {
		return sub, common.LocalIOError("read", path, err)
	}
	var m Manifest
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&m); err != nil {
		return sub, fmt.Errorf("%w: manifest: %v", common.ErrInvalidInput, err)
	}

	sub.LeadDate = m.LeadDate
	sub.Context = m.Context
	if m.Card != "" {
		if sub.CardPath, err = in.resolve(m.Card); err != nil {
			return sub, err
		}
	}
	for _, h := range m.Hearing {
		p, err := in.resolve(h)
		if err != nil {
			return sub, err
		}
		sub.HearingPaths = append(sub.HearingPaths, p)
	}
	return sub, nil
}

// resolve maps an image name onto an existing file directly inside the inbox.
func (in *Inbox) resolve(name string) (string, error) {
	p := name
	if !filepath.IsAbs(p) {
		p = filepath.Join(in.dir, p)
	}
	p = filepath.Clean(p)
	if filepath.Dir(p) != in.dir {
		return "", fmt.Errorf("%w: %s is outside the inbox", common.ErrInvalidInput, name)
	}
	st, err := os.Stat(p)
	if err != nil {
		return "", common.LocalIOError("stat", p, err)
	}
	if st.IsDir() {
		return "", fmt.Errorf("%w: %s is a directory", common.ErrInvalidInput, name)
	}
	return p, nil
}

func (in *Inbox) reject(claimed, name string, cause error, log *slog.Logger) {
	log.Warn("inbox.rejected", "error", cause)
	dst := filepath.Join(in.dir, rejectedDir, time.Now().Format("20060102T150405")+"_"+name)
	if err := os.Rename(claimed, dst); err != nil {
		log.Error("inbox.archive.failed", "error", err)
		return
	}
	if err := os.WriteFile(dst+".error", []byte(cause.Error()+"\n"), 0o644); err != nil {
		log.Warn("inbox.error_note.failed", "error", err)
	}
}
