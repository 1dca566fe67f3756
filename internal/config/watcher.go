// Copyright 2025 Tom Barlow
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package config

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// ProfileWatcher reloads the agent profile when its file changes and hands
// the new profile to a callback. A profile that fails to parse is logged
// and ignored, so the previous prompts stay in effect.
type ProfileWatcher struct {
	// fsWatcher watches the profile's directory, since editors often
	// replace the file rather than write it in place
	fsWatcher *fsnotify.Watcher

	path     string
	onChange func(*Profile)
	logger   *slog.Logger

	debounceDelay time.Duration

	// mu protects pending
	mu      sync.Mutex
	pending *time.Timer

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// WatcherConfig configures a ProfileWatcher.
type WatcherConfig struct {
	// Path is the profile file to watch (required)
	Path string

	// OnChange receives each successfully reloaded profile (required)
	OnChange func(*Profile)

	// Logger is used for structured logging (optional)
	Logger *slog.Logger

	// DebounceDelay collapses bursts of events (defaults to 200ms)
	DebounceDelay time.Duration
}

// NewProfileWatcher starts watching cfg.Path.
func NewProfileWatcher(cfg WatcherConfig) (*ProfileWatcher, error) {
	if cfg.Path == "" {
		return nil, fmt.Errorf("profile path is required")
	}
	if cfg.OnChange == nil {
		return nil, fmt.Errorf("change callback is required")
	}

	absPath, err := filepath.Abs(cfg.Path)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve path %s: %w", cfg.Path, err)
	}

	fsWatcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create file watcher: %w", err)
	}
	if err := fsWatcher.Add(filepath.Dir(absPath)); err != nil {
		_ = fsWatcher.Close()
		return nil, fmt.Errorf("failed to watch %s: %w", filepath.Dir(absPath), err)
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	debounceDelay := cfg.DebounceDelay
	if debounceDelay == 0 {
		debounceDelay = 200 * time.Millisecond
	}

	ctx, cancel := context.WithCancel(context.Background())

	w := &ProfileWatcher{
		fsWatcher:     fsWatcher,
		path:          absPath,
		onChange:      cfg.OnChange,
		logger:        logger.With("component", "profile_watcher"),
		debounceDelay: debounceDelay,
		ctx:           ctx,
		cancel:        cancel,
	}

	w.wg.Add(1)
	go w.processEvents()

	w.logger.Debug("watching agent profile", "path", absPath)
	return w, nil
}

func (w *ProfileWatcher) processEvents() {
	defer w.wg.Done()

	for {
		select {
		case event, ok := <-w.fsWatcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(event.Name) != w.path {
				continue
			}
			if event.Has(fsnotify.Write) || event.Has(fsnotify.Create) {
				w.scheduleReload()
			}

		case err, ok := <-w.fsWatcher.Errors:
			if !ok {
				return
			}
			w.logger.Error("file watcher error", "error", err)

		case <-w.ctx.Done():
			return
		}
	}
}

func (w *ProfileWatcher) scheduleReload() {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.pending != nil {
		w.pending.Stop()
	}
	w.pending = time.AfterFunc(w.debounceDelay, w.reload)
}

func (w *ProfileWatcher) reload() {
	if w.ctx.Err() != nil {
		return
	}

	p, err := LoadProfile(w.path)
	if err != nil {
		w.logger.Warn("agent profile reload failed, keeping previous profile", "path", w.path, "error", err)
		return
	}

	w.logger.Info("agent profile reloaded", "path", w.path, "agent", p.AgentInfo.Name)
	w.onChange(p)
}

// Close stops the watcher.
func (w *ProfileWatcher) Close() error {
	w.cancel()

	w.mu.Lock()
	if w.pending != nil {
		w.pending.Stop()
	}
	w.mu.Unlock()

	w.wg.Wait()
	return w.fsWatcher.Close()
}
