// Package convert maps source element type names to the converters that
// translate them into destination nodes.
package convert

import (
	"sync"

	"github.com/agentic-research/lumen/internal/translate"
)

// Registry is an explicit converter table: one hashmap lookup per
// element, no dispatch hierarchy.
type Registry struct {
	mu         sync.RWMutex
	converters map[string]translate.Converter
}

func NewRegistry() *Registry {
	return &Registry{converters: make(map[string]translate.Converter)}
}

// Register binds a source type name to a converter, replacing any
// previous binding.
func (r *Registry) Register(typeName string, conv translate.Converter) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.converters[typeName] = conv
}

// Lookup implements translate.ConverterRegistry. Nil means the type is
// not convertible and the element is skipped.
func (r *Registry) Lookup(typeName string) translate.Converter {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.converters[typeName]
}

// RegisterBuiltins installs the stock converters.
func (r *Registry) RegisterBuiltins() {
	r.Register("mesh", &meshConverter{})
	r.Register("camera", &cameraConverter{})
	r.Register("point_light", &lightConverter{nodeType: "point_light"})
	r.Register("distant_light", &lightConverter{nodeType: "distant_light"})
	r.Register("material", &materialConverter{})
	r.Register("image", &imageConverter{})
	r.Register("options", &optionsConverter{})
}

var (
	defaultMu       sync.Mutex
	defaultRegistry *Registry
)

// Default returns the process-wide registry, created on first use. The
// accessor is the only global state; callers wanting isolation construct
// their own Registry and hand it to the reader instead.
func Default() *Registry {
	defaultMu.Lock()
	defer defaultMu.Unlock()
	if defaultRegistry == nil {
		defaultRegistry = NewRegistry()
		defaultRegistry.RegisterBuiltins()
	}
	return defaultRegistry
}
