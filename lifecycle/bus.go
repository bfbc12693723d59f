// Package lifecycle delivers application foreground/background transitions to
// subscribers. Transitions are delivered in the order they are published.
package lifecycle

import (
	"errors"
	"fmt"
	"reflect"
	"sync"

	evbus "github.com/asaskevich/EventBus"
)

// Topic is the bus topic used for app state transitions.
const Topic = "app:state"

// State is the application visibility state.
type State uint8

const (
	// Foreground means the app is visible and its timers run.
	Foreground State = iota
	// Background means the app is suspended; in-process timers may not fire.
	Background
)

func (s State) String() string {
	switch s {
	case Foreground:
		return "foreground"
	case Background:
		return "background"
	default:
		return "unknown"
	}
}

// Source is what the session tracker needs from a lifecycle signal.
type Source interface {
	Subscribe(fn func(State)) (unsubscribe func(), err error)
}

// Bus publishes State transitions synchronously over an EventBus. Every
// subscriber is its own EventBus handler on [Topic], called in registration
// order. Subscribers must not subscribe or unsubscribe from inside a
// delivery.
type Bus struct {
	bus evbus.Bus

	mu      sync.Mutex
	current State
	nextID  uint64
	regs    []registration
}

type registration struct {
	id  uint64
	fn  func(State)
	ptr uintptr
}

// NewBus returns a Bus whose initial state is Foreground.
func NewBus() *Bus {
	return &Bus{bus: evbus.New(), current: Foreground}
}

// Publish records s and delivers it to every subscriber before returning.
func (b *Bus) Publish(s State) {
	b.mu.Lock()
	b.current = s
	b.mu.Unlock()
	b.bus.Publish(Topic, s)
}

// Current returns the last published state.
func (b *Bus) Current() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.current
}

// Subscribe registers fn for every subsequent transition.
func (b *Bus) Subscribe(fn func(State)) (func(), error) {
	if fn == nil {
		return nil, errors.New("nil lifecycle subscriber")
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if err := b.bus.Subscribe(Topic, fn); err != nil {
		return nil, fmt.Errorf("lifecycle subscribe: %w", err)
	}
	b.nextID++
	reg := registration{id: b.nextID, fn: fn, ptr: reflect.ValueOf(fn).Pointer()}
	b.regs = append(b.regs, reg)

	var once sync.Once
	return func() {
		once.Do(func() { b.unsubscribe(reg.id) })
	}, nil
}

// unsubscribe removes one registration. EventBus identifies handlers by code
// pointer, so closures built from the same literal are indistinguishable to
// it: every handler sharing the pointer is removed and the survivors are
// registered again in their original relative order.
func (b *Bus) unsubscribe(id uint64) {
	b.mu.Lock()
	defer b.mu.Unlock()

	idx := -1
	for i, reg := range b.regs {
		if reg.id == id {
			idx = i
			break
		}
	}
	if idx < 0 {
		return
	}
	target := b.regs[idx]
	b.regs = append(b.regs[:idx], b.regs[idx+1:]...)

	var twins []registration
	for _, reg := range b.regs {
		if reg.ptr == target.ptr {
			twins = append(twins, reg)
		}
	}
	for i := 0; i <= len(twins); i++ {
		if err := b.bus.Unsubscribe(Topic, target.fn); err != nil {
			break
		}
	}
	for _, reg := range twins {
		// The topic exists and fn is a func, so Subscribe cannot fail here.
		_ = b.bus.Subscribe(Topic, reg.fn)
	}
}
