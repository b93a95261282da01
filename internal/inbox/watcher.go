package inbox

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
)

// WatchConfig configures StartWatcher.
type WatchConfig struct {
	Dir         string        // watched directory, not recursive
	Suffix      string        // only names ending in Suffix are emitted
	InitialScan bool          // emit matching files already present
	Debounce    time.Duration // coalesce create/write bursts per file
}

// StartWatcher emits the path of every matching file created, written or
// renamed into cfg.Dir. Both channels close when ctx is done.
func StartWatcher(ctx context.Context, cfg WatchConfig, logger *slog.Logger) (<-chan string, <-chan error, error) {
	if cfg.Dir == "" {
		return nil, nil, errors.New("watcher: no directory")
	}
	if logger == nil {
		logger = slog.Default()
	}
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, nil, err
	}
	if err := w.Add(cfg.Dir); err != nil {
		_ = w.Close()
		return nil, nil, err
	}

	evCh := make(chan string, 256)
	errCh := make(chan error, 1)

	var initial []string
	if cfg.InitialScan {
		entries, err := os.ReadDir(cfg.Dir)
		if err != nil {
			_ = w.Close()
			return nil, nil, err
		}
		for _, e := range entries {
			if !e.IsDir() && matches(e.Name(), cfg.Suffix) {
				initial = append(initial, filepath.Join(cfg.Dir, e.Name()))
			}
		}
	}

	go func() {
		defer close(evCh)
		defer close(errCh)
		defer func() { _ = w.Close() }()

		pending := map[string]time.Time{}
		tick := time.NewTicker(tickInterval(cfg.Debounce))
		defer tick.Stop()

		emit := func(p string) bool {
			select {
			case evCh <- p:
				return true
			case <-ctx.Done():
				return false
			}
		}
		for _, p := range initial {
			if !emit(p) {
				return
			}
		}

		for {
			select {
			case <-ctx.Done():
				return
			case e, ok := <-w.Events:
				if !ok {
					return
				}
				if !matches(filepath.Base(e.Name), cfg.Suffix) || !e.Has(fsnotify.Create|fsnotify.Write) {
					continue
				}
				if cfg.Debounce <= 0 {
					if !emit(e.Name) {
						return
					}
					continue
				}
				pending[e.Name] = time.Now().Add(cfg.Debounce)
			case <-tick.C:
				now := time.Now()
				for p, due := range pending {
					if now.Before(due) {
						continue
					}
					delete(pending, p)
					if !emit(p) {
						return
					}
				}
			case err, ok := <-w.Errors:
				if !ok {
					return
				}
				logger.Error("inbox.watch.error", "error", err)
				select {
				case errCh <- err:
				default:
				}
			}
		}
	}()

	return evCh, errCh, nil
}

func matches(name, suffix string) bool {
	if strings.HasPrefix(name, ".") {
		return false
	}
	return strings.HasSuffix(strings.ToLower(name), strings.ToLower(suffix))
}

func tickInterval(debounce time.Duration) time.Duration {
	if debounce <= 0 {
		return time.Second
	}
	if d := debounce / 4; d > 10*time.Millisecond {
		return d
	}
	return 10 * time.Millisecond
}
