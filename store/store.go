// Package store implements a registry of singleton, process-wide stores
// created on first access and disposed at shutdown, plus per-request
// scoped stores created on first access within a request and disposed
// together at request end.
package store

import "sync"

// Store is the contract every store implements: an initial state
// producer, a patch-merging updater, and a subscriber list.
type Store interface {
	Init() any
	Update(patch any)
	State() any
	Subscribe(fn func(state any)) (unsubscribe func())
}

// Disposer is optionally implemented by a Store that holds resources
// (connections, timers) needing explicit release.
type Disposer interface {
	Dispose()
}

// Base is an embeddable Store implementation backed by a merge function,
// serializing all state transitions behind a mutex so a store's state
// transitions are serialized per instance.
type Base struct {
	mu        sync.Mutex
	state     any
	merge     func(current, patch any) any
	listeners []func(state any)
}

// NewBase constructs a Base store. initial is the starting state; merge
// combines the current state with an Update patch to produce the next
// state (a plain replace-on-update store can pass
// func(_, patch any) any { return patch }).
func NewBase(initial any, merge func(current, patch any) any) *Base {
	return &Base{state: initial, merge: merge}
}

func (b *Base) Init() any { return b.state }

func (b *Base) Update(patch any) {
	b.mu.Lock()
	b.state = b.merge(b.state, patch)
	listeners := append([]func(any){}, b.listeners...)
	state := b.state
	b.mu.Unlock()
	for _, fn := range listeners {
		if fn != nil {
			fn(state)
		}
	}
}

func (b *Base) State() any {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

func (b *Base) Subscribe(fn func(state any)) func() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.listeners = append(b.listeners, fn)
	idx := len(b.listeners) - 1
	return func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		if idx < len(b.listeners) {
			b.listeners[idx] = nil
		}
	}
}
