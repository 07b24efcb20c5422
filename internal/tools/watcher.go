package tools

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/fsnotify/fsnotify"
)

// Watcher registers manifest tools from a directory and keeps watching it,
// picking up manifests dropped in while the process runs. Names stay
// first-registration-wins: a changed manifest for an existing tool is
// logged and skipped, never hot-swapped mid-conversation.
type Watcher struct {
	dir string
	reg *Registry
	log *slog.Logger
	fsw *fsnotify.Watcher
}

// NewWatcher scans dir for *.yaml and *.yml manifests, registers them, and
// returns a watcher primed on the directory.
func NewWatcher(dir string, reg *Registry, log *slog.Logger) (*Watcher, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	w := &Watcher{dir: dir, reg: reg, log: log}
	for _, e := range entries {
		if e.IsDir() || !isManifest(e.Name()) {
			continue
		}
		w.load(filepath.Join(dir, e.Name()))
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if err := fsw.Add(dir); err != nil {
		fsw.Close()
		return nil, err
	}
	w.fsw = fsw
	return w, nil
}

// Run processes directory events until ctx is done.
func (w *Watcher) Run(ctx context.Context) error {
	defer w.fsw.Close()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case event, ok := <-w.fsw.Events:
			if !ok {
				return nil
			}
			if !event.Has(fsnotify.Create) && !event.Has(fsnotify.Write) {
				continue
			}
			if !isManifest(event.Name) {
				continue
			}
			w.load(event.Name)
		case err, ok := <-w.fsw.Errors:
			if !ok {
				return nil
			}
			w.log.Warn("manifest watcher error", "error", err)
		}
	}
}

// Close stops the underlying filesystem watcher.
func (w *Watcher) Close() error {
	return w.fsw.Close()
}

func (w *Watcher) load(path string) {
	err := RegisterManifest(w.reg, path)
	if err == nil {
		w.log.Info("manifest tool loaded", "path", path)
		return
	}
	var regErr *RegistrationError
	if errors.As(err, &regErr) {
		w.log.Debug("manifest tool already registered", "path", path, "tool", regErr.Name)
		return
	}
	w.log.Warn("manifest tool rejected", "path", path, "error", err)
}

func isManifest(name string) bool {
	ext := strings.ToLower(filepath.Ext(name))
	return ext == ".yaml" || ext == ".yml"
}
