package settings

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
)

// reloadDelay debounces editor save bursts (write + rename + chmod).
const reloadDelay = 200 * time.Millisecond

// Watch reloads the settings file whenever it changes and hands each valid
// result to onChange, until ctx is cancelled. The parent directory is
// watched rather than the file itself so atomic saves (temp + rename) keep
// working. A reload that fails to parse or validate is logged and skipped,
// keeping the previous settings in effect.
func Watch(ctx context.Context, path string, log *slog.Logger, onChange func(Settings)) error {
	if log == nil {
		log = slog.Default()
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return fmt.Errorf("settings: resolve path: %w", err)
	}

	w, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("settings: start watcher: %w", err)
	}
	defer w.Close()

	if err := w.Add(filepath.Dir(abs)); err != nil {
		return fmt.Errorf("settings: watch %s: %w", filepath.Dir(abs), err)
	}
	log.Info("settings watcher started", "path", abs)

	var reloadTimer *time.Timer
	var reloadCh <-chan time.Time

	scheduleReload := func() {
		if reloadTimer == nil {
			reloadTimer = time.NewTimer(reloadDelay)
			reloadCh = reloadTimer.C
		} else {
			reloadTimer.Reset(reloadDelay)
		}
	}

	for {
		select {
		case <-ctx.Done():
			if reloadTimer != nil {
				reloadTimer.Stop()
			}
			log.Info("settings watcher stopped")
			return nil

		case <-reloadCh:
			s, err := Load(abs)
			if err != nil {
				log.Warn("settings reload failed, keeping previous settings", "error", err)
				continue
			}
			log.Info("settings reloaded", "fingerprint", s.Fingerprint()[:12])
			onChange(s)

		case ev, ok := <-w.Events:
			if !ok {
				return nil
			}
			if ev.Name != abs {
				continue
			}
			if ev.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}
			scheduleReload()

		case watchErr, ok := <-w.Errors:
			if !ok {
				return nil
			}
			log.Error("settings watcher error", "error", watchErr)
		}
	}
}
