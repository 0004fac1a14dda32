package config

import (
	"errors"
	"fmt"
	"maps"
	"slices"
	"sync"

	"github.com/MrWong99/toolroute/pkg/provider/imagegen"
	"github.com/MrWong99/toolroute/pkg/provider/llm"
	"github.com/MrWong99/toolroute/pkg/provider/tts"
)

// Provider kinds accepted by [Registry.Names].
const (
	KindLLM      = "llm"
	KindTTS      = "tts"
	KindImageGen = "imagegen"
)

// ErrProviderNotRegistered is returned by the Create methods when no factory
// is registered under the requested name.
var ErrProviderNotRegistered = errors.New("config: provider not registered")

// Factory builds a provider of type T from its config block.
type Factory[T any] func(ProviderEntry) (T, error)

// factories is one kind's name-to-constructor table. The owning Registry's
// mutex guards it.
type factories[T any] struct {
	kind string
	m    map[string]Factory[T]
}

func newFactories[T any](kind string) factories[T] {
	return factories[T]{kind: kind, m: make(map[string]Factory[T])}
}

func (f factories[T]) create(mu *sync.RWMutex, entry ProviderEntry) (T, error) {
	mu.RLock()
	factory, ok := f.m[entry.Name]
	mu.RUnlock()
	if !ok {
		var zero T
		return zero, fmt.Errorf("%w: %s/%q", ErrProviderNotRegistered, f.kind, entry.Name)
	}
	return factory(entry)
}

// Registry maps provider names to constructors, one table per provider kind.
// It is safe for concurrent use; later registrations replace earlier ones.
type Registry struct {
	mu       sync.RWMutex
	llm      factories[llm.Provider]
	tts      factories[tts.Provider]
	imagegen factories[imagegen.Provider]
}

// NewRegistry returns an empty Registry.
func NewRegistry() *Registry {
	return &Registry{
		llm:      newFactories[llm.Provider](KindLLM),
		tts:      newFactories[tts.Provider](KindTTS),
		imagegen: newFactories[imagegen.Provider](KindImageGen),
	}
}

func (r *Registry) RegisterLLM(name string, f Factory[llm.Provider]) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.llm.m[name] = f
}

func (r *Registry) RegisterTTS(name string, f Factory[tts.Provider]) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.tts.m[name] = f
}

func (r *Registry) RegisterImageGen(name string, f Factory[imagegen.Provider]) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.imagegen.m[name] = f
}

// CreateLLM builds the LLM provider registered under entry.Name, or returns an
// error wrapping [ErrProviderNotRegistered].
func (r *Registry) CreateLLM(entry ProviderEntry) (llm.Provider, error) {
	return r.llm.create(&r.mu, entry)
}

func (r *Registry) CreateTTS(entry ProviderEntry) (tts.Provider, error) {
	return r.tts.create(&r.mu, entry)
}

func (r *Registry) CreateImageGen(entry ProviderEntry) (imagegen.Provider, error) {
	return r.imagegen.create(&r.mu, entry)
}

// Names returns the sorted provider names registered for kind, or nil for an
// unknown kind.
func (r *Registry) Names(kind string) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	switch kind {
	case KindLLM:
		return slices.Sorted(maps.Keys(r.llm.m))
	case KindTTS:
		return slices.Sorted(maps.Keys(r.tts.m))
	case KindImageGen:
		return slices.Sorted(maps.Keys(r.imagegen.m))
	}
	return nil
}
