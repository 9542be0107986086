package config

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/fsnotify/fsnotify"

	"github.com/gogpu/colorscope"
)

// Watch re-applies the [state] section of the file at path to shared each
// time the file is written, until ctx is done. The directory is watched
// so editors that replace the file on save are followed.
//
// A file that fails to decode leaves shared unchanged. onChange, if not
// nil, is called after every reload with the decode or apply error.
func Watch(ctx context.Context, path string, shared *colorscope.SharedState, onChange func(File, error)) error {
	abs, err := filepath.Abs(path)
	if err != nil {
		return err
	}
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("config: watch: %w", err)
	}
	defer w.Close()
	if err := w.Add(filepath.Dir(abs)); err != nil {
		return fmt.Errorf("config: watch %s: %w", filepath.Dir(abs), err)
	}

	log := colorscope.Logger()
	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-w.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != abs || !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) {
				continue
			}
			f, err := Load(abs)
			if err == nil {
				err = f.State.ApplyTo(shared)
			}
			if err != nil {
				log.Warn("config: reload failed", "path", abs, "err", err)
			} else {
				log.Info("config: reloaded", "path", abs)
			}
			if onChange != nil {
				onChange(f, err)
			}
		case err, ok := <-w.Errors:
			if !ok {
				return nil
			}
			log.Warn("config: watch error", "err", err)
		}
	}
}
