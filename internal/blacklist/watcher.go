// Copyright 2025 Esteban Alvarez. All Rights Reserved.
//
// Created: October 2025
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

package blacklist

import (
	"sync/atomic"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog"
)

// Watcher watches the configured blacklist file paths and raises a
// reload-requested flag on any write or create event. It never touches
// detection state itself — spec.md §5 keeps the watcher thread confined to
// flipping an atomic flag; the ingest loop performs the actual reload.
type Watcher struct {
	fsw *fsnotify.Watcher
	log zerolog.Logger

	reloadRequested atomic.Bool

	doneCh chan struct{}
}

// NewWatcher creates a Watcher over the non-empty paths in paths. It adds no
// watch and returns a nil *Watcher with a nil error if every path is empty.
func NewWatcher(log zerolog.Logger, paths ...string) (*Watcher, error) {
	hasPath := false
	for _, p := range paths {
		if p != "" {
			hasPath = true
			break
		}
	}
	if !hasPath {
		return nil, nil
	}
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	w := &Watcher{fsw: fsw, log: log.With().Str("component", "blacklist-watcher").Logger(), doneCh: make(chan struct{})}
	for _, p := range paths {
		if p == "" {
			continue
		}
		if err := fsw.Add(p); err != nil {
			w.log.Error().Err(err).Str("path", p).Msg("failed to watch blacklist file")
		}
	}
	return w, nil
}

// Start runs the watch loop in its own goroutine until Stop is called.
func (w *Watcher) Start() {
	go w.run()
}

func (w *Watcher) run() {
	defer close(w.doneCh)
	for {
		select {
		case ev, ok := <-w.fsw.Events:
			if !ok {
				return
			}
			if ev.Op&(fsnotify.Write|fsnotify.Create) != 0 {
				w.reloadRequested.Store(true)
			}
		case err, ok := <-w.fsw.Errors:
			if !ok {
				return
			}
			w.log.Error().Err(err).Msg("blacklist watcher error")
		}
	}
}

// ReloadRequested atomically reads and clears the flag, so a burst of
// coalesced filesystem events is observed by exactly one caller even if the
// ingest loop checks concurrently with a new event arriving.
func (w *Watcher) ReloadRequested() bool {
	return w.reloadRequested.Swap(false)
}

// Stop closes the underlying fsnotify watcher, which unblocks run and lets
// it exit.
func (w *Watcher) Stop() {
	_ = w.fsw.Close()
	<-w.doneCh
}
