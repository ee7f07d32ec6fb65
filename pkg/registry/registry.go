// Package registry maps component type keys to their executors.
package registry

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"plugin"
	"slices"
	"strings"
	"sync"

	"github.com/dukex/flowstudio/pkg/protocol"
)

var ErrUnknownComponentType = errors.New("unknown component type")

type Registry struct {
	logger     *slog.Logger
	mu         sync.RWMutex
	components map[string]protocol.Component
}

func NewRegistry(log *slog.Logger) *Registry {
	if log == nil {
		log = slog.Default()
	}

	return &Registry{
		logger:     log,
		components: make(map[string]protocol.Component),
	}
}

// Register adds a component, replacing any previous registration of the same type.
func (r *Registry) Register(component protocol.Component) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.components[component.ID()]; exists {
		r.logger.Warn("Replacing registered component", "component_type", component.ID())
	}

	r.components[component.ID()] = component
}

// Executor returns the component registered for componentType.
func (r *Registry) Executor(componentType string) (protocol.Component, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	component, ok := r.components[componentType]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownComponentType, componentType)
	}

	return component, nil
}

// Types returns the registered type keys, sorted.
func (r *Registry) Types() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	types := make([]string, 0, len(r.components))
	for componentType := range r.components {
		types = append(types, componentType)
	}

	slices.Sort(types)

	return types
}

// Components returns the registered components sorted by type key.
func (r *Registry) Components() []protocol.Component {
	types := r.Types()

	r.mu.RLock()
	defer r.mu.RUnlock()

	components := make([]protocol.Component, 0, len(types))
	for _, componentType := range types {
		components = append(components, r.components[componentType])
	}

	return components
}

func (r *Registry) HealthCheck() (string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if len(r.components) == 0 {
		return "no components registered", false
	}

	return fmt.Sprintf("%d components registered", len(r.components)), true
}

// LoadComponentPlugins loads every "Component" symbol from the shared objects
// found under <pluginsPath>/components, at any depth.
func (r *Registry) LoadComponentPlugins(pluginsPath string) ([]protocol.Component, error) {
	return loadPlugin[protocol.Component](r.logger, pluginsPath, "Component")
}

func loadPlugin[T any](logger *slog.Logger, pluginsPath string, symbolName string) ([]T, error) {
	rootPath := pluginsPath + "/" + strings.ToLower(symbolName) + "s"

	pluginPathList, err := findPlugins(os.DirFS(rootPath))
	if err != nil {
		return nil, err
	}

	l := logger.With(slog.String("path", pluginsPath), slog.String("type", symbolName))
	l.Info("Loading plugins")

	pluginList := make([]T, 0, len(pluginPathList))

	for _, p := range pluginPathList {
		plg, err := plugin.Open(rootPath + "/" + p)
		if err != nil {
			return nil, fmt.Errorf("failed to open plugin %s: %w", p, err)
		}

		v, err := plg.Lookup(symbolName)
		if err != nil {
			return nil, fmt.Errorf("plugin %s has no %s symbol: %w", p, symbolName, err)
		}

		castV, ok := v.(T)
		if !ok {
			return nil, fmt.Errorf("plugin %s: symbol %s has unexpected type %T", p, symbolName, v)
		}

		pluginList = append(pluginList, castV)

		l.Info("Loaded component plugin", slog.String("plugin", p))
	}

	return pluginList, nil
}

// findPlugins lists the .so files of root recursively. A missing root has no plugins.
func findPlugins(root fs.FS) ([]string, error) {
	found := make([]string, 0)

	err := fs.WalkDir(root, ".", func(path string, entry fs.DirEntry, err error) error {
		if err != nil {
			if path == "." && errors.Is(err, fs.ErrNotExist) {
				return fs.SkipAll
			}

			return err
		}

		if !entry.IsDir() && strings.HasSuffix(entry.Name(), ".so") {
			found = append(found, path)
		}

		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list plugins: %w", err)
	}

	return found, nil
}
