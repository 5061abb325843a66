// Package inbox watches a drop folder and feeds files into the ingest
// pipeline. The layout is one directory per owner with dropped files inside;
// a consumed file is removed only after its content has been archived and
// ingested, so anything that fails stays put for the next sweep.
package inbox

import (
	"context"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/starford/mimir/internal/docservice"
)

// EventCallback is called after a file has been ingested.
type EventCallback func(ownerID, documentID string)

// settleDelay is how long the inbox waits after the last filesystem event
// before sweeping, so files still being copied in are not read half-written.
const settleDelay = 500 * time.Millisecond

// Watch starts an fsnotify watcher on the inbox root and sweeps it until ctx
// is cancelled. It calls cb (if non-nil) after each ingested file.
//
// Owner directories created at runtime are added to the watch list. One
// sweep runs immediately on start to pick up files dropped while the
// service was down.
func Watch(ctx context.Context, svc *docservice.Service, root string, logger *slog.Logger, cb EventCallback) error {
	if err := os.MkdirAll(root, 0o755); err != nil {
		return err
	}
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer w.Close()

	if err := addDirsRecursive(w, root); err != nil {
		return err
	}

	logger.Info("inbox: started", slog.String("root", root))
	Sweep(ctx, svc, root, logger, cb)

	// settleTimer debounces sweeps across bursts of events.
	var settleTimer *time.Timer
	var settleCh <-chan time.Time

	schedule := func() {
		if settleTimer == nil {
			settleTimer = time.NewTimer(settleDelay)
			settleCh = settleTimer.C
		} else {
			settleTimer.Reset(settleDelay)
		}
	}

	for {
		select {
		case <-ctx.Done():
			if settleTimer != nil {
				settleTimer.Stop()
			}
			logger.Info("inbox: stopped")
			return nil

		case <-settleCh:
			Sweep(ctx, svc, root, logger, cb)

		case ev, ok := <-w.Events:
			if !ok {
				return nil
			}
			if ev.Op&fsnotify.Create != 0 {
				if info, statErr := os.Stat(ev.Name); statErr == nil && info.IsDir() {
					if addErr := addDirsRecursive(w, ev.Name); addErr != nil {
						logger.Warn("inbox: watch new dir failed",
							slog.String("path", ev.Name),
							slog.String("error", addErr.Error()))
					} else {
						logger.Debug("inbox: watching new dir", slog.String("path", ev.Name))
					}
					schedule()
					continue
				}
			}
			if ev.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Rename) != 0 {
				schedule()
			}

		case watchErr, ok := <-w.Errors:
			if !ok {
				return nil
			}
			logger.Error("inbox: error", slog.String("error", watchErr.Error()))
		}
	}
}

// Sweep ingests every eligible file under root, one owner directory at a
// time. Dotfiles, empty files, and anything sitting at the root itself are
// left alone. Empty files are usually copies in progress; a later sweep
// picks them up once they have content.
func Sweep(ctx context.Context, svc *docservice.Service, root string, logger *slog.Logger, cb EventCallback) {
	owners, err := os.ReadDir(root)
	if err != nil {
		logger.Warn("inbox: read root failed", slog.String("root", root), slog.String("error", err.Error()))
		return
	}
	for _, ownerDir := range owners {
		if ctx.Err() != nil {
			return
		}
		if !ownerDir.IsDir() || strings.HasPrefix(ownerDir.Name(), ".") {
			continue
		}
		ownerID := ownerDir.Name()
		files, err := os.ReadDir(filepath.Join(root, ownerID))
		if err != nil {
			logger.Warn("inbox: read owner dir failed", slog.String("owner", ownerID), slog.String("error", err.Error()))
			continue
		}
		for _, f := range files {
			if ctx.Err() != nil {
				return
			}
			if f.IsDir() || strings.HasPrefix(f.Name(), ".") {
				continue
			}
			sweepFile(ctx, svc, root, ownerID, f.Name(), logger, cb)
		}
	}
}

func sweepFile(ctx context.Context, svc *docservice.Service, root, ownerID, name string, logger *slog.Logger, cb EventCallback) {
	path := filepath.Join(root, ownerID, name)
	info, err := os.Stat(path)
	if err != nil || info.Size() == 0 {
		return
	}
	data, err := os.ReadFile(path)
	if err != nil {
		logger.Warn("inbox: read failed", slog.String("path", path), slog.String("error", err.Error()))
		return
	}

	res, err := svc.IngestSource(ctx, ownerID, name, data, docservice.IngestOptions{})
	if err != nil {
		logger.Warn("inbox: ingest failed",
			slog.String("owner", ownerID),
			slog.String("file", name),
			slog.String("error", err.Error()))
		return
	}
	if err := os.Remove(path); err != nil {
		logger.Warn("inbox: consume failed", slog.String("path", path), slog.String("error", err.Error()))
	}
	logger.Info("inbox: ingested",
		slog.String("owner", ownerID),
		slog.String("file", name),
		slog.String("document", res.Envelope.ID),
		slog.Int("chunks", res.Ingest.ChunkCount))
	if cb != nil {
		cb(ownerID, res.Envelope.ID)
	}
}

// addDirsRecursive adds root and all its subdirectories to the watcher.
func addDirsRecursive(w *fsnotify.Watcher, root string) error {
	return filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return w.Add(path)
		}
		return nil
	})
}
