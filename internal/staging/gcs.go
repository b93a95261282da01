package staging

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"sync"
	"time"

	"cloud.google.com/go/storage"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/iterator"

	"github.com/joseph-ayodele/cardlead/constants"
	"github.com/joseph-ayodele/cardlead/internal/common"
	"github.com/joseph-ayodele/cardlead/internal/entity"
)

// GCSConfig configures a Cloud Storage backed store.
type GCSConfig struct {
	Bucket string
	Prefix string
	// PublicBaseURL overrides https://storage.googleapis.com/<bucket>.
	PublicBaseURL string
	ProcessName   string
	Now           func() time.Time
}

// GCSStore stages images into a Cloud Storage bucket.
type GCSStore struct {
	cfg    GCSConfig
	bucket *storage.BucketHandle
	keys   *keyer
	logger *slog.Logger

	mu            sync.Mutex
	manifests     map[entity.ProcessID]struct{}
	writeManifest func(ctx context.Context, ns entity.ProcessID) error
}

var _ Store = (*GCSStore)(nil)

// NewGCSStore wraps an existing storage client.
func NewGCSStore(client *storage.Client, cfg GCSConfig, logger *slog.Logger) (*GCSStore, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if client == nil || cfg.Bucket == "" {
		return nil, fmt.Errorf("staging: gcs client and bucket are required")
	}
	if cfg.PublicBaseURL == "" {
		cfg.PublicBaseURL = "https://storage.googleapis.com/" + cfg.Bucket
	}
	s := &GCSStore{
		cfg:       cfg,
		bucket:    client.Bucket(cfg.Bucket),
		keys:      newKeyer(cfg.Prefix, cfg.Now),
		logger:    logger,
		manifests: make(map[entity.ProcessID]struct{}),
	}
	s.writeManifest = s.putManifest
	return s, nil
}

func (s *GCSStore) Put(ctx context.Context, ns entity.ProcessID, role constants.AssetRole, localPath string) (entity.StagedRef, error) {
	src, err := os.Open(localPath)
	if err != nil {
		return entity.StagedRef{}, common.LocalIOError("open", localPath, err)
	}
	defer func() { _ = src.Close() }()

	if err := s.ensureManifest(ctx, ns); err != nil {
		return entity.StagedRef{}, err
	}

	key, at := s.keys.object(ns, role, localPath)
	w := s.bucket.Object(key).NewWriter(ctx)
	w.ContentType = constants.ContentTypeFor(filepath.Ext(localPath))
	w.Metadata = map[string]string{
		"process_id":        string(ns),
		"original_filename": filepath.Base(localPath),
		"upload_timestamp":  at.UTC().Format(time.RFC3339),
		"role":              string(role),
	}
	n, err := io.Copy(w, src)
	if err != nil {
		_ = w.Close()
		return entity.StagedRef{}, rejection("put", err)
	}
	if err := w.Close(); err != nil {
		return entity.StagedRef{}, rejection("put", err)
	}

	s.logger.Info("staging.put.ok", "process_id", ns, "role", role, "key", key, "bytes", n)
	return entity.StagedRef{
		Key:        key,
		URL:        publicURL(s.cfg.PublicBaseURL, key),
		Size:       n,
		UploadedAt: at,
	}, nil
}

func (s *GCSStore) ListAssets(ctx context.Context, ns entity.ProcessID) ([]Asset, error) {
	it := s.bucket.Objects(ctx, &storage.Query{Prefix: s.keys.namespace(ns)})
	var assets []Asset
	for {
		attrs, err := it.Next()
		if errors.Is(err, iterator.Done) {
			break
		}
		if err != nil {
			return nil, rejection("list", err)
		}
		role, ok := s.keys.roleOf(ns, attrs.Name)
		if !ok {
			continue
		}
		assets = append(assets, Asset{
			Role:       role,
			Key:        attrs.Name,
			URL:        publicURL(s.cfg.PublicBaseURL, attrs.Name),
			Size:       attrs.Size,
			UploadedAt: attrs.Created,
		})
	}
	sortAssets(assets)
	return assets, nil
}

func (s *GCSStore) Delete(ctx context.Context, ns entity.ProcessID) error {
	it := s.bucket.Objects(ctx, &storage.Query{Prefix: s.keys.namespace(ns)})
	deleted := 0
	for {
		attrs, err := it.Next()
		if errors.Is(err, iterator.Done) {
			break
		}
		if err != nil {
			return rejection("delete", err)
		}
		if err := s.bucket.Object(attrs.Name).Delete(ctx); err != nil && !errors.Is(err, storage.ErrObjectNotExist) {
			return rejection("delete", err)
		}
		deleted++
	}
	s.mu.Lock()
	delete(s.manifests, ns)
	s.mu.Unlock()
	s.logger.Info("staging.delete.ok", "process_id", ns, "objects", deleted)
	return nil
}

// ensureManifest writes metadata.json once; an existing object is left alone.
// The write runs unlocked; racing writers for one namespace are settled by the
// DoesNotExist precondition.
func (s *GCSStore) ensureManifest(ctx context.Context, ns entity.ProcessID) error {
	s.mu.Lock()
	_, ok := s.manifests[ns]
	s.mu.Unlock()
	if ok {
		return nil
	}
	if err := s.writeManifest(ctx, ns); err != nil {
		return err
	}
	s.mu.Lock()
	s.manifests[ns] = struct{}{}
	s.mu.Unlock()
	return nil
}

func (s *GCSStore) putManifest(ctx context.Context, ns entity.ProcessID) error {
	b, err := json.MarshalIndent(Manifest{
		ProcessID:   ns,
		ProcessName: s.cfg.ProcessName,
		CreatedAt:   s.keys.now().UTC(),
	}, "", "  ")
	if err != nil {
		return fmt.Errorf("encode manifest: %w", err)
	}
	w := s.bucket.Object(s.keys.manifest(ns)).If(storage.Conditions{DoesNotExist: true}).NewWriter(ctx)
	w.ContentType = "application/json"
	if _, err := w.Write(b); err != nil {
		_ = w.Close()
		return rejection("manifest", err)
	}
	if err := w.Close(); err != nil {
		var gerr *googleapi.Error
		if !errors.As(err, &gerr) || gerr.Code != http.StatusPreconditionFailed {
			return rejection("manifest", err)
		}
	}
	return nil
}

func rejection(op string, err error) error {
	var gerr *googleapi.Error
	if errors.As(err, &gerr) {
		return common.NewRemoteRejection("gcs", op, gerr.Code, gerr.Message)
	}
	return common.NewRemoteRejection("gcs", op, 0, err.Error())
}
