package config

import (
	"fmt"
	"path/filepath"
	"sync"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog/log"
)

// Holder keeps the current Config and reloads it when the file changes.
// A reload that fails to load or validate keeps the old Config.
type Holder struct {
	mu       sync.RWMutex
	cfg      Config
	path     string
	onChange []func(old, cur Config)

	watcher  *fsnotify.Watcher
	stopOnce sync.Once
	stopCh   chan struct{}
	done     chan struct{}
}

func NewHolder(path string) (*Holder, error) {
	cfg, err := Load(path)
	if err != nil {
		return nil, err
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("config: absolute path: %w", err)
	}
	return &Holder{cfg: cfg, path: abs, stopCh: make(chan struct{})}, nil
}

func (h *Holder) Get() Config {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.cfg
}

func (h *Holder) Path() string { return h.path }

// OnChange registers fn to run after every successful reload.
func (h *Holder) OnChange(fn func(old, cur Config)) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.onChange = append(h.onChange, fn)
}

func (h *Holder) Reload() error {
	cur, err := Load(h.path)
	if err != nil {
		log.Warn().Str("path", h.path).Err(err).Msg("config.Holder.Reload keep previous")
		return err
	}
	h.mu.Lock()
	old := h.cfg
	h.cfg = cur
	fns := append([]func(old, cur Config){}, h.onChange...)
	h.mu.Unlock()

	if old.CoordinatorURL != cur.CoordinatorURL {
		log.Info().Str("old", old.CoordinatorURL).Str("new", cur.CoordinatorURL).Msg("config.Holder coordinator url changed")
	}
	for _, fn := range fns {
		fn(old, cur)
	}
	log.Info().Str("path", h.path).Msg("config.Holder.Reload")
	return nil
}

// Watch reloads on writes to the file. The parent directory is watched so
// atomic saves (write temp, rename) are seen.
func (h *Holder) Watch() error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("config: create watcher: %w", err)
	}
	if err := w.Add(filepath.Dir(h.path)); err != nil {
		_ = w.Close()
		return fmt.Errorf("config: watch directory: %w", err)
	}
	h.watcher = w
	h.done = make(chan struct{})
	go h.watchLoop()
	log.Debug().Str("path", h.path).Msg("config.Holder.Watch")
	return nil
}

func (h *Holder) Stop() {
	h.stopOnce.Do(func() {
		close(h.stopCh)
		if h.watcher != nil {
			_ = h.watcher.Close()
			<-h.done
		}
	})
}

func (h *Holder) watchLoop() {
	defer close(h.done)
	name := filepath.Base(h.path)
	for {
		select {
		case ev, ok := <-h.watcher.Events:
			if !ok {
				return
			}
			if filepath.Base(ev.Name) != name || !ev.Has(fsnotify.Write) && !ev.Has(fsnotify.Create) {
				continue
			}
			_ = h.Reload()
		case err, ok := <-h.watcher.Errors:
			if !ok {
				return
			}
			log.Warn().Err(err).Msg("config.Holder watcher")
		case <-h.stopCh:
			return
		}
	}
}
