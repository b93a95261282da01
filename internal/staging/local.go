package staging

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/joseph-ayodele/cardlead/constants"
	"github.com/joseph-ayodele/cardlead/internal/common"
	"github.com/joseph-ayodele/cardlead/internal/entity"
)

// LocalConfig configures a directory-backed store whose contents are served
// publicly at PublicBaseURL by some other process.
type LocalConfig struct {
	Dir           string
	PublicBaseURL string
	Prefix        string
	ProcessName   string
	Now           func() time.Time
}

// LocalStore stages images into a local directory.
type LocalStore struct {
	cfg    LocalConfig
	keys   *keyer
	logger *slog.Logger

	mu        sync.Mutex
	manifests map[entity.ProcessID]struct{}
}

var _ Store = (*LocalStore)(nil)

// NewLocalStore creates the root directory if needed.
func NewLocalStore(cfg LocalConfig, logger *slog.Logger) (*LocalStore, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Dir == "" {
		return nil, fmt.Errorf("staging: dir is required")
	}
	if err := os.MkdirAll(cfg.Dir, 0o755); err != nil {
		return nil, fmt.Errorf("staging: create dir: %w", err)
	}
	return &LocalStore{
		cfg:       cfg,
		keys:      newKeyer(cfg.Prefix, cfg.Now),
		logger:    logger,
		manifests: make(map[entity.ProcessID]struct{}),
	}, nil
}

func (s *LocalStore) Put(ctx context.Context, ns entity.ProcessID, role constants.AssetRole, localPath string) (entity.StagedRef, error) {
	if err := ctx.Err(); err != nil {
		return entity.StagedRef{}, err
	}
	src, err := os.Open(localPath)
	if err != nil {
		return entity.StagedRef{}, common.LocalIOError("open", localPath, err)
	}
	defer func() { _ = src.Close() }()

	if err := s.ensureManifest(ns); err != nil {
		return entity.StagedRef{}, err
	}

	key, at := s.keys.object(ns, role, localPath)
	dst := s.path(key)
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return entity.StagedRef{}, common.NewRemoteRejection("staging", "put", 0, err.Error())
	}
	out, err := os.Create(dst)
	if err != nil {
		return entity.StagedRef{}, common.NewRemoteRejection("staging", "put", 0, err.Error())
	}
	n, copyErr := io.Copy(out, src)
	closeErr := out.Close()
	if err := errors.Join(copyErr, closeErr); err != nil {
		_ = os.Remove(dst)
		return entity.StagedRef{}, common.NewRemoteRejection("staging", "put", 0, err.Error())
	}

	ref := entity.StagedRef{
		Key:        key,
		URL:        publicURL(s.cfg.PublicBaseURL, key),
		Size:       n,
		UploadedAt: at,
	}
	s.logger.Info("staging.put.ok", "process_id", ns, "role", role, "key", key, "bytes", n)
	return ref, nil
}

func (s *LocalStore) ListAssets(ctx context.Context, ns entity.ProcessID) ([]Asset, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	root := s.path(s.keys.namespace(ns))
	var assets []Asset
	err := filepath.WalkDir(root, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		rel, err := filepath.Rel(s.cfg.Dir, p)
		if err != nil {
			return err
		}
		key := filepath.ToSlash(rel)
		role, ok := s.keys.roleOf(ns, key)
		if !ok {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return err
		}
		assets = append(assets, Asset{
			Role:       role,
			Key:        key,
			URL:        publicURL(s.cfg.PublicBaseURL, key),
			Size:       info.Size(),
			UploadedAt: info.ModTime(),
		})
		return nil
	})
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, common.NewRemoteRejection("staging", "list", 0, err.Error())
	}
	sortAssets(assets)
	return assets, nil
}

func (s *LocalStore) Delete(ctx context.Context, ns entity.ProcessID) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := os.RemoveAll(s.path(s.keys.namespace(ns))); err != nil {
		return common.NewRemoteRejection("staging", "delete", 0, err.Error())
	}
	s.mu.Lock()
	delete(s.manifests, ns)
	s.mu.Unlock()
	s.logger.Info("staging.delete.ok", "process_id", ns)
	return nil
}

func (s *LocalStore) ensureManifest(ns entity.ProcessID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.manifests[ns]; ok {
		return nil
	}
	p := s.path(s.keys.manifest(ns))
	if _, err := os.Stat(p); err == nil {
		s.manifests[ns] = struct{}{}
		return nil
	}
	if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
		return common.NewRemoteRejection("staging", "manifest", 0, err.Error())
	}
	b, err := json.MarshalIndent(Manifest{
		ProcessID:   ns,
		ProcessName: s.cfg.ProcessName,
		CreatedAt:   s.keys.now().UTC(),
	}, "", "  ")
	if err != nil {
		return fmt.Errorf("encode manifest: %w", err)
	}
	if err := os.WriteFile(p, b, 0o644); err != nil {
		return common.NewRemoteRejection("staging", "manifest", 0, err.Error())
	}
	s.manifests[ns] = struct{}{}
	return nil
}

func (s *LocalStore) path(key string) string {
	return filepath.Join(s.cfg.Dir, filepath.FromSlash(key))
}
