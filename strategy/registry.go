package strategy

import (
	"fmt"
	"sync"
)

// The type registry maps abstract type tags to strategies so combinators
// can resolve a value "by type" instead of by explicit strategy.
//
// The registry is process-wide and append-only: populated through Register
// calls before the first run, consulted read-only thereafter. There is no
// teardown beyond process exit.
var registry = struct {
	mu sync.RWMutex
	m  map[string]*Strategy
}{m: make(map[string]*Strategy)}

// Register binds a type tag to a strategy. Re-registering an existing tag
// is an error: the registry is append-only so resolution is stable for the
// lifetime of the process.
func Register(typeTag string, s *Strategy) error {
	if s == nil {
		return fmt.Errorf("strategy: Register(%q) with nil strategy", typeTag)
	}
	registry.mu.Lock()
	defer registry.mu.Unlock()
	if _, exists := registry.m[typeTag]; exists {
		return fmt.Errorf("strategy: type tag %q already registered", typeTag)
	}
	registry.m[typeTag] = s
	return nil
}

// MustRegister is Register that panics on error. Intended for package init
// blocks where a duplicate registration is a programming error.
func MustRegister(typeTag string, s *Strategy) {
	if err := Register(typeTag, s); err != nil {
		panic(err)
	}
}

// FromType resolves a strategy by type tag. Resolution happens at strategy
// construction time, not per draw.
func FromType(typeTag string) (*Strategy, error) {
	registry.mu.RLock()
	defer registry.mu.RUnlock()
	s, ok := registry.m[typeTag]
	if !ok {
		return nil, fmt.Errorf("strategy: no strategy registered for type tag %q", typeTag)
	}
	return s, nil
}
