package config

import (
	"sync"
	"sync/atomic"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

// Source hands out the current snapshot. Callers read it once per request.
type Source interface {
	Current() *Config
}

// Static is a Source that never changes
type Static struct {
	Config *Config
}

// Current returns the fixed snapshot
func (s Static) Current() *Config { return s.Config }

// Store publishes snapshots through an atomic pointer.
type Store struct {
	current   atomic.Pointer[Config]
	mu        sync.Mutex
	callbacks []func(*Config)
	logger    *zap.Logger
}

// NewStore creates a store holding initial
func NewStore(initial *Config, logger *zap.Logger) *Store {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Store{logger: logger}
	s.current.Store(initial)
	return s
}

// Current returns the latest snapshot
func (s *Store) Current() *Config {
	return s.current.Load()
}

// OnChange registers a callback run after every successful reload
func (s *Store) OnChange(fn func(*Config)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.callbacks = append(s.callbacks, fn)
}

// Reload loads a new snapshot and publishes it. Settings that are only read
// at startup keep their current values. An invalid file leaves the current
// snapshot in place.
func (s *Store) Reload(l *Loader) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	next, err := l.Load()
	if err != nil {
		return err
	}
	next = next.withStatic(s.current.Load())
	s.current.Store(next)

	for _, fn := range s.callbacks {
		fn(next)
	}
	return nil
}

// Watch reloads the store whenever the loader's file changes
func (s *Store) Watch(l *Loader) {
	l.v.OnConfigChange(func(e fsnotify.Event) {
		if err := s.Reload(l); err != nil {
			s.logger.Error("config reload failed, keeping previous settings",
				zap.String("file", e.Name),
				zap.Error(err))
			return
		}
		cfg := s.Current()
		s.logger.Info("config reloaded",
			zap.String("file", e.Name),
			zap.String("operation", e.Op.String()),
			zap.Int("datasets_per_page", cfg.Catalog.DatasetsPerPage),
			zap.Duration("search_timeout", cfg.Search.Timeout))
	})
	l.v.WatchConfig()
}
