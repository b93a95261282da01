package publish

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/joseph-ayodele/cardlead/constants"
	"github.com/joseph-ayodele/cardlead/internal/common"
	"github.com/joseph-ayodele/cardlead/internal/entity"
	"github.com/joseph-ayodele/cardlead/internal/record"
	"github.com/joseph-ayodele/cardlead/internal/staging"
)

// Publisher creates lead records and attaches staged images to them.
type Publisher struct {
	records record.Store
	staged  staging.Store
	logger  *slog.Logger
}

// AttachResult reports the outcome of AttachImages. It is a value, not an
// error, so a created record is never lost because its images failed.
type AttachResult struct {
	RecordID string
	URLs     []string
	Err      error
}

// OK reports whether every requested image was attached.
func (r AttachResult) OK() bool { return r.Err == nil }

// Attached is the number of image blocks appended.
func (r AttachResult) Attached() int {
	if r.Err != nil {
		return 0
	}
	return len(r.URLs)
}

func NewPublisher(records record.Store, staged staging.Store, logger *slog.Logger) *Publisher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Publisher{records: records, staged: staged, logger: logger}
}

// Publish creates the record. A rejected request comes back as a
// *common.RemoteRejectionError.
func (p *Publisher) Publish(ctx context.Context, props record.Properties) (string, error) {
	log := common.LoggerFrom(ctx, p.logger)
	start := time.Now()

	id, err := p.records.CreateRecord(ctx, props)
	if err != nil {
		var rej *common.RemoteRejectionError
		if !errors.As(err, &rej) {
			err = fmt.Errorf("%w: %w", common.NewRemoteRejection("record", "create", 0, err.Error()), err)
		}
		log.Error("publish.record.rejected", "error", err, "elapsed_ms", time.Since(start).Milliseconds())
		return "", err
	}
	log.Info("publish.record.created", "record_id", id, "elapsed_ms", time.Since(start).Milliseconds())
	return id, nil
}

// AttachImages appends the staged card (when card is non-nil) followed by the
// staged hearing images, one block each. Staged URLs are looked up by role and
// index from the staging store listing. No images means no remote call.
func (p *Publisher) AttachImages(ctx context.Context, recordID string, processID entity.ProcessID, card *entity.ImageAsset, hearing []entity.ImageAsset) AttachResult {
	log := common.LoggerFrom(ctx, p.logger).With("record_id", recordID)
	res := AttachResult{RecordID: recordID}

	if card == nil && len(hearing) == 0 {
		log.Debug("publish.attach.nothing")
		return res
	}

	assets, err := p.staged.ListAssets(ctx, processID)
	if err != nil {
		res.Err = fmt.Errorf("list staged assets: %w", err)
		log.Error("publish.attach.list_failed", "error", err)
		return res
	}

	urls, err := resolveURLs(assets, card != nil, len(hearing))
	if err != nil {
		res.Err = err
		log.Error("publish.attach.missing_asset", "error", err, "staged", len(assets))
		return res
	}

	if err := p.records.AppendImageBlocks(ctx, recordID, urls); err != nil {
		res.Err = err
		log.Error("publish.attach.rejected", "error", err, "images", len(urls))
		return res
	}
	res.URLs = urls
	log.Info("publish.attach.done", "images", len(urls))
	return res
}

func resolveURLs(assets []staging.Asset, withCard bool, hearingCount int) ([]string, error) {
	urls := make([]string, 0, hearingCount+1)
	if withCard {
		c := staging.FirstOfRole(assets, constants.RoleCard)
		if c == nil {
			return nil, fmt.Errorf("%w: no staged card image", common.ErrNotFound)
		}
		urls = append(urls, c.URL)
	}
	staged := staging.OfRole(assets, constants.RoleHearing)
	for i := 0; i < hearingCount; i++ {
		if i >= len(staged) {
			return nil, fmt.Errorf("%w: hearing image %d of %d not staged", common.ErrNotFound, i+1, hearingCount)
		}
		urls = append(urls, staged[i].URL)
	}
	return urls, nil
}
