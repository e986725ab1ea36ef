package cache

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/jonwraymond/retain/config"
)

// Registry holds named backend configurations so several caches can be
// constructed from one place. The first registration becomes the default
// unless a later one claims it.
type Registry struct {
	mu      sync.RWMutex
	configs map[string]config.Settings
	def     string
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{configs: make(map[string]config.Settings)}
}

// Register adds a named configuration. Passing def marks it as the
// default; the first registration is the default regardless.
func (r *Registry) Register(name string, cfg config.Settings, def bool) error {
	name = strings.TrimSpace(name)
	if name == "" {
		return errors.New("cache: registry entry name is required")
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	r.configs[name] = cfg
	if def || r.def == "" {
		r.def = name
	}
	return nil
}

// Get returns the configuration registered under name.
func (r *Registry) Get(name string) (config.Settings, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	cfg, ok := r.configs[name]
	if !ok {
		return config.Settings{}, fmt.Errorf("cache: no backend registered with name %q", name)
	}
	return cfg, nil
}

// Default returns the default configuration.
func (r *Registry) Default() (config.Settings, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if r.def == "" {
		return config.Settings{}, errors.New("cache: no default backend configured")
	}
	return r.configs[r.def], nil
}

// DefaultName returns the name of the default configuration, if any.
func (r *Registry) DefaultName() (string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.def, r.def != ""
}

// SetDefault marks an existing entry as the default.
func (r *Registry) SetDefault(name string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.configs[name]; !ok {
		return fmt.Errorf("cache: no backend registered with name %q", name)
	}
	r.def = name
	return nil
}

// Remove deletes a named entry. The default entry cannot be removed.
func (r *Registry) Remove(name string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.configs[name]; !ok {
		return fmt.Errorf("cache: no backend registered with name %q", name)
	}
	if name == r.def {
		return fmt.Errorf("cache: cannot remove default backend %q", name)
	}
	delete(r.configs, name)
	return nil
}

// List returns registered names in sorted order.
func (r *Registry) List() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.configs))
	for name := range r.configs {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Clear removes every entry, including the default.
func (r *Registry) Clear() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.configs = make(map[string]config.Settings)
	r.def = ""
}
