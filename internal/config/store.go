package config

import (
	"maps"
	"sync"
)

// Store guards a live Config shared by the running panel and persists edits.
// An empty path keeps edits in memory only.
type Store struct {
	mu   sync.RWMutex
	path string
	cfg  *Config
}

// NewStore wraps cfg. A nil cfg starts from defaults.
func NewStore(path string, cfg *Config) *Store {
	if cfg == nil {
		cfg = Default()
	}
	cfg.fillDefaults()
	return &Store{path: path, cfg: cfg}
}

// Snapshot returns a copy of the current config
func (s *Store) Snapshot() Config {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c := *s.cfg
	c.Settings = maps.Clone(s.cfg.Settings)
	return c
}

// Tool returns the configured htflow command
func (s *Store) Tool() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.cfg.Tool
}

// Package returns the npm package name of the htflow CLI
func (s *Store) Package() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.cfg.Package
}

// AutoOpenBrowser reports whether started servers are opened in the browser
func (s *Store) AutoOpenBrowser() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.cfg.AutoOpenBrowser
}

// Update applies one setting and saves the file. The in-memory config is
// left untouched when either step fails.
func (s *Store) Update(setting string, value any) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	next := *s.cfg
	next.Settings = maps.Clone(s.cfg.Settings)
	if err := next.Apply(setting, value); err != nil {
		return err
	}
	if s.path != "" {
		if err := Save(s.path, &next); err != nil {
			return err
		}
	}
	s.cfg = &next
	return nil
}
