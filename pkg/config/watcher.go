package config

import (
	"os"
	"sync"
	"time"
)

// WatchEvent reports a change of the watched rules file. Either Text holds
// the new content or Error says why it could not be read.
type WatchEvent struct {
	Path  string
	Text  string
	Error error
}

// Watcher polls a rules file and emits its content whenever its size or
// modification time changes.
type Watcher struct {
	path     string
	interval time.Duration
	stopCh   chan struct{}
	doneCh   chan struct{} // signals goroutine exit
	eventCh  chan WatchEvent
	mu       sync.Mutex
	running  bool

	modTime time.Time
	size    int64
	failed  bool
}

// NewWatcher creates a watcher for path. A non-positive interval selects
// DefaultWatchInterval.
func NewWatcher(path string, interval time.Duration) *Watcher {
	if interval <= 0 {
		interval = DefaultWatchInterval
	}
	w := &Watcher{
		path:     path,
		interval: interval,
		eventCh:  make(chan WatchEvent, 10),
	}
	if info, err := os.Stat(path); err == nil {
		w.modTime = info.ModTime()
		w.size = info.Size()
	}
	return w
}

// Start begins polling. The current state of the file is the baseline, so
// the first event reports the first change after Start.
func (w *Watcher) Start() <-chan WatchEvent {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.running {
		return w.eventCh
	}

	w.stopCh = make(chan struct{})
	w.doneCh = make(chan struct{})
	w.running = true

	stopCh := w.stopCh
	doneCh := w.doneCh
	go w.watchLoop(stopCh, doneCh)

	return w.eventCh
}

// Stop stops polling and waits for the poll goroutine to exit.
func (w *Watcher) Stop() {
	w.mu.Lock()
	if !w.running {
		w.mu.Unlock()
		return
	}

	close(w.stopCh)
	w.running = false
	doneCh := w.doneCh
	w.mu.Unlock()

	<-doneCh
}

func (w *Watcher) watchLoop(stopCh <-chan struct{}, doneCh chan<- struct{}) {
	defer close(doneCh)

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-stopCh:
			return
		case <-ticker.C:
			ev, changed := w.poll()
			if !changed {
				continue
			}
			select {
			case w.eventCh <- ev:
			case <-stopCh:
				return
			}
		}
	}
}

// poll checks the file once. Repeated read failures are reported once
// until the file becomes readable again.
func (w *Watcher) poll() (WatchEvent, bool) {
	info, err := os.Stat(w.path)
	if err != nil {
		if w.failed {
			return WatchEvent{}, false
		}
		w.failed = true
		_, rerr := LoadRules(w.path)
		return WatchEvent{Path: w.path, Error: rerr}, true
	}
	if !w.failed && info.ModTime().Equal(w.modTime) && info.Size() == w.size {
		return WatchEvent{}, false
	}

	text, err := LoadRules(w.path)
	if err != nil {
		if w.failed {
			return WatchEvent{}, false
		}
		w.failed = true
		return WatchEvent{Path: w.path, Error: err}, true
	}
	w.failed = false
	w.modTime = info.ModTime()
	w.size = info.Size()
	return WatchEvent{Path: w.path, Text: text}, true
}
