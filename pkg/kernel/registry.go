package kernel

import (
	"fmt"
	"sort"
	"sync"
)

// Factory creates a transport from options.
type Factory func(opts Options) (Transport, error)

var (
	registryMu sync.RWMutex
	registry   = make(map[string]Factory)
)

// Register adds a kernel factory to the registry.
// Called by kernel implementations in their init() functions.
func Register(name string, factory Factory) {
	registryMu.Lock()
	defer registryMu.Unlock()
	registry[name] = factory
}

// Get retrieves a kernel factory by name.
func Get(name string) (Factory, bool) {
	registryMu.RLock()
	defer registryMu.RUnlock()
	f, ok := registry[name]
	return f, ok
}

// New creates a transport by registered name.
func New(name string, opts Options) (Transport, error) {
	if name == "" {
		return nil, fmt.Errorf("kernel not specified")
	}

	factory, ok := Get(name)
	if !ok {
		return nil, &UnknownKernelError{
			Name:      name,
			Available: List(),
		}
	}

	opts.Logger = opts.logger()
	t, err := factory(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to create %s kernel: %w", name, err)
	}
	return t, nil
}

// List returns all registered kernel names (sorted).
func List() []string {
	registryMu.RLock()
	defer registryMu.RUnlock()
	names := make([]string, 0, len(registry))
	for name := range registry {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// IsRegistered checks if a kernel name is registered.
func IsRegistered(name string) bool {
	registryMu.RLock()
	defer registryMu.RUnlock()
	_, ok := registry[name]
	return ok
}

// UnknownKernelError is returned when an unknown kernel is requested.
type UnknownKernelError struct {
	Name      string
	Available []string
}

func (e *UnknownKernelError) Error() string {
	return fmt.Sprintf("unknown kernel %q\nAvailable kernels: %v\nHint: Check kernel in leapnb.yaml or the --kernel flag", e.Name, e.Available)
}
