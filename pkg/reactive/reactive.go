// Package reactive provides observable cells and derived values that recompute
// only when one of their declared inputs has changed.
package reactive

import (
	"sync"
)

// Source is anything whose changes can be observed through a version counter.
// The version strictly increases on every change.
type Source interface {
	Version() uint64
}

// Var is a mutable observable value
type Var[T any] struct {
	mu      sync.RWMutex
	value   T
	version uint64
}

// NewVar creates a cell holding initial
func NewVar[T any](initial T) *Var[T] {
	return &Var[T]{value: initial, version: 1}
}

// Get returns the current value
func (v *Var[T]) Get() T {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return v.value
}

// Set replaces the value and bumps the version
func (v *Var[T]) Set(value T) {
	v.mu.Lock()
	v.value = value
	v.version++
	v.mu.Unlock()
}

// Version implements Source
func (v *Var[T]) Version() uint64 {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return v.version
}

// Computed caches the result of fn and recomputes it only after one of its
// inputs reports a new version.
type Computed[T any] struct {
	inputs []Source
	fn     func() T

	mu       sync.Mutex
	seen     []uint64
	value    T
	valid    bool
	version  uint64
	computes int
}

// NewComputed derives a value from inputs
func NewComputed[T any](fn func() T, inputs ...Source) *Computed[T] {
	return &Computed[T]{inputs: inputs, fn: fn, seen: make([]uint64, len(inputs))}
}

// Get returns the cached value, recomputing it when an input changed
func (c *Computed[T]) Get() T {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.refresh()
	return c.value
}

// Version implements Source so computed values can feed other computed values
func (c *Computed[T]) Version() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.refresh()
	return c.version
}

// Computes returns how often fn has run
func (c *Computed[T]) Computes() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.computes
}

func (c *Computed[T]) refresh() {
	stale := !c.valid
	for i, in := range c.inputs {
		v := in.Version()
		if v != c.seen[i] {
			c.seen[i] = v
			stale = true
		}
	}
	if !stale {
		return
	}
	c.value = c.fn()
	c.valid = true
	c.version++
	c.computes++
}

// Versions sums the versions of sources into one Source
type Versions []Source

// Version implements Source
func (vs Versions) Version() uint64 {
	var total uint64
	for _, s := range vs {
		total += s.Version()
	}
	return total
}
