package shellsession

import (
	"context"
	"errors"
	"path/filepath"
	"sort"
	"sync"

	"github.com/samber/lo"
)

// Registry hands out one Manager per working root.
type Registry struct {
	mutex    sync.Mutex
	options  Options
	factory  SessionFactory
	managers map[string]*Manager
}

// NewRegistry constructs a Registry whose managers share options.
func NewRegistry(options Options) *Registry {
	return &Registry{options: options, managers: make(map[string]*Manager)}
}

// WithFactory replaces the session factory used by managers created afterwards.
func (registry *Registry) WithFactory(factory SessionFactory) *Registry {
	registry.mutex.Lock()
	defer registry.mutex.Unlock()
	registry.factory = factory
	return registry
}

// Manager returns the manager for root, creating it on first use. Roots are compared after cleaning.
func (registry *Registry) Manager(root string) (*Manager, error) {
	normalizedRoot, normalizeError := filepath.Abs(root)
	if normalizeError != nil {
		return nil, normalizeError
	}

	registry.mutex.Lock()
	defer registry.mutex.Unlock()

	if manager, exists := registry.managers[normalizedRoot]; exists {
		return manager, nil
	}

	options := registry.options
	options.Configuration.WorkingDirectory = normalizedRoot
	manager := NewManager(options).WithFactory(registry.factory)
	registry.managers[normalizedRoot] = manager
	return manager, nil
}

// Instance returns the live session for root.
func (registry *Registry) Instance(executionContext context.Context, root string) (*Session, error) {
	manager, managerError := registry.Manager(root)
	if managerError != nil {
		return nil, managerError
	}
	return manager.Instance(executionContext)
}

// Roots lists the registered roots in lexical order.
func (registry *Registry) Roots() []string {
	registry.mutex.Lock()
	defer registry.mutex.Unlock()
	roots := lo.Keys(registry.managers)
	sort.Strings(roots)
	return roots
}

// Close shuts down every managed session and forgets the roots.
func (registry *Registry) Close() error {
	registry.mutex.Lock()
	managers := lo.Values(registry.managers)
	registry.managers = make(map[string]*Manager)
	registry.mutex.Unlock()

	var closeErrors []error
	for _, manager := range managers {
		if closeError := manager.Close(); closeError != nil {
			closeErrors = append(closeErrors, closeError)
		}
	}
	return errors.Join(closeErrors...)
}
