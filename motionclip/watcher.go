package motionclip

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"

	"github.com/edaniels/golog"
	"github.com/fsnotify/fsnotify"
	"github.com/pkg/errors"
	"go.viam.com/utils"
)

// Watcher ingests clip files dropped into a directory. Each *.json file is
// parsed as a RawClip and added to the library under its file name (or its
// embedded name field), overwriting any prior entry. Malformed files are
// logged and skipped; the watcher never stops on bad input.
type Watcher struct {
	lib                     *Library
	dir                     string
	watcher                 *fsnotify.Watcher
	logger                  golog.Logger
	cancel                  func()
	activeBackgroundWorkers chan struct{}
}

// NewWatcher starts watching the given directory, ingesting any clip files
// already present before reporting new ones.
func NewWatcher(ctx context.Context, lib *Library, dir string, logger golog.Logger) (*Watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if err := fsw.Add(dir); err != nil {
		return nil, errors.Wrapf(err, "cannot watch clip directory %q", dir)
	}

	cancelCtx, cancel := context.WithCancel(ctx)
	w := &Watcher{
		lib:                     lib,
		dir:                     dir,
		watcher:                 fsw,
		logger:                  logger,
		cancel:                  cancel,
		activeBackgroundWorkers: make(chan struct{}),
	}
	w.ingestExisting()
	utils.PanicCapturingGo(func() {
		defer close(w.activeBackgroundWorkers)
		w.watchLoop(cancelCtx)
	})
	return w, nil
}

// Close stops the watch loop and releases the underlying watcher.
func (w *Watcher) Close() error {
	w.cancel()
	err := w.watcher.Close()
	<-w.activeBackgroundWorkers
	return err
}

func (w *Watcher) ingestExisting() {
	entries, err := os.ReadDir(w.dir)
	if err != nil {
		w.logger.Errorw("cannot list clip directory", "dir", w.dir, "error", err)
		return
	}
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		w.ingestFile(filepath.Join(w.dir, entry.Name()))
	}
}

func (w *Watcher) watchLoop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if event.Op&(fsnotify.Create|fsnotify.Write) == 0 {
				continue
			}
			w.ingestFile(event.Name)
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.logger.Errorw("clip watcher error", "error", err)
		}
	}
}

func (w *Watcher) ingestFile(path string) {
	if strings.ToLower(filepath.Ext(path)) != ".json" {
		return
	}
	buf, err := os.ReadFile(path)
	if err != nil {
		w.logger.Errorw("cannot read clip file", "path", path, "error", err)
		return
	}
	var raw RawClip
	if err := json.Unmarshal(buf, &raw); err != nil {
		w.logger.Warnw("clip file is not valid JSON, skipping", "path", path, "error", err)
		return
	}
	name := raw.Name
	if name == "" {
		name = strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	}

	res := w.lib.AddMotions(map[string]RawClip{name: raw}, true)
	switch {
	case len(res.Invalid) > 0:
		w.logger.Warnw("clip file failed validation, skipping", "path", path, "name", name)
	case len(res.Added) > 0:
		w.logger.Infow("ingested clip file", "path", path, "name", name)
	}
}
