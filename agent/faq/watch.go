package faq

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog/log"
)

const reloadDebounce = 200 * time.Millisecond

// Watch reloads kb shortly after the file at path changes, until ctx is done.
// The parent directory is watched so editors that replace the file on save
// are picked up. A file that fails to parse leaves kb unchanged.
func Watch(ctx context.Context, path string, kb *KnowledgeBase) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create faq watcher: %w", err)
	}
	defer watcher.Close()

	abs, err := filepath.Abs(path)
	if err != nil {
		return err
	}
	if err := watcher.Add(filepath.Dir(abs)); err != nil {
		return fmt.Errorf("watch faq dir: %w", err)
	}

	var fire <-chan time.Time
	timer := time.NewTimer(reloadDebounce)
	timer.Stop()
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			log.Warn().Err(err).Str("path", abs).Msg("faq watcher error")
		case ev, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(ev.Name) != abs {
				continue
			}
			if ev.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}
			timer.Reset(reloadDebounce)
			fire = timer.C
		case <-fire:
			fire = nil
			entries, err := readFile(abs)
			if err != nil {
				log.Warn().Err(err).Str("path", abs).Msg("faq reload skipped")
				continue
			}
			kb.Replace(entries)
			log.Info().Str("path", abs).Int("entries", len(entries)).Msg("faq reloaded")
		}
	}
}
