package artifact

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"

	"github.com/fsnotify/fsnotify"

	"github.com/bibbank/fraudscoring/internal/domain/model"
)

// SwapFunc is called after the watcher publishes a new bundle.
type SwapFunc func(ctx context.Context, previous, current *model.ArtifactBundle)

// Watcher reloads the store whenever its CURRENT pointer changes and swaps
// the result into the holder. It lets a separately running trainer publish
// models to a live server.
type Watcher struct {
	store  *FileStore
	holder *Holder
	onSwap SwapFunc
	logger *slog.Logger
}

func NewWatcher(store *FileStore, holder *Holder, onSwap SwapFunc, logger *slog.Logger) *Watcher {
	return &Watcher{store: store, holder: holder, onSwap: onSwap, logger: logger}
}

// Run watches until ctx is cancelled. The store root must exist.
func (w *Watcher) Run(ctx context.Context) error {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create file watcher: %w", err)
	}
	defer fw.Close()

	if err := fw.Add(w.store.Root()); err != nil {
		return fmt.Errorf("failed to watch %s: %w", w.store.Root(), err)
	}
	w.logger.Info("watching artifact store", slog.String("root", w.store.Root()))

	for {
		select {
		case <-ctx.Done():
			return nil
		case evt, ok := <-fw.Events:
			if !ok {
				return nil
			}
			if filepath.Base(evt.Name) != PointerFile || !evt.Has(fsnotify.Create|fsnotify.Write) {
				continue
			}
			w.Reload(ctx)
		case err, ok := <-fw.Errors:
			if !ok {
				return nil
			}
			w.logger.Warn("artifact watcher error", slog.String("error", err.Error()))
		}
	}
}

// Reload loads the current version and swaps it in when it differs from
// the one being served and no in-process publish owns it. A broken version
// is logged and the old one kept.
func (w *Watcher) Reload(ctx context.Context) {
	version, err := w.store.CurrentVersion()
	if err != nil {
		w.logger.Warn("artifact pointer unreadable", slog.String("error", err.Error()))
		return
	}
	if cur, err := w.holder.Current(); err == nil && cur.Version() == version {
		return
	}
	if w.holder.Publishing(version) {
		w.logger.Debug("version is being published in process", slog.String("version", version))
		return
	}

	bundle, err := w.store.LoadVersion(ctx, version)
	if err != nil {
		w.logger.Error("failed to load published artifact, keeping current model",
			slog.String("version", version),
			slog.String("error", err.Error()),
		)
		return
	}

	previous := w.holder.Swap(bundle)
	w.logger.Info("model snapshot swapped", slog.String("version", version))
	if w.onSwap != nil {
		w.onSwap(ctx, previous, bundle)
	}
}
