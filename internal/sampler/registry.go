package sampler

import (
	"errors"
	"fmt"
	"sort"
	"sync"
)

var (
	ErrSamplerExists   = errors.New("sampler already registered")
	ErrSamplerNotFound = errors.New("sampler not found")
)

// Factory builds an independent simulator seeded for one replicate.
type Factory func(seed int64) Simulator

var samplerRegistry = struct {
	mu sync.RWMutex
	m  map[string]Factory
}{
	m: builtinSamplers(),
}

func builtinSamplers() map[string]Factory {
	return map[string]Factory{
		"bernoulli": func(seed int64) Simulator { return NewBernoulli(seed) },
	}
}

func Register(name string, factory Factory) error {
	if name == "" {
		return errors.New("sampler name is required")
	}
	if factory == nil {
		return errors.New("sampler factory is required")
	}

	samplerRegistry.mu.Lock()
	defer samplerRegistry.mu.Unlock()

	if _, exists := samplerRegistry.m[name]; exists {
		return fmt.Errorf("%w: %s", ErrSamplerExists, name)
	}
	samplerRegistry.m[name] = factory
	return nil
}

// New resolves name and builds a simulator seeded with seed.
func New(name string, seed int64) (Simulator, error) {
	samplerRegistry.mu.RLock()
	factory, ok := samplerRegistry.m[name]
	samplerRegistry.mu.RUnlock()

	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrSamplerNotFound, name)
	}
	return factory(seed), nil
}

func Names() []string {
	samplerRegistry.mu.RLock()
	defer samplerRegistry.mu.RUnlock()

	names := make([]string, 0, len(samplerRegistry.m))
	for name := range samplerRegistry.m {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func resetRegistryForTests() {
	samplerRegistry.mu.Lock()
	defer samplerRegistry.mu.Unlock()
	samplerRegistry.m = builtinSamplers()
}
