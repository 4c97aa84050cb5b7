// Package obs provides single-writer observable values: every mutation goes
// through Set, which stores the new value and broadcasts it to subscribers in
// one step, so observers can never read a half-updated field.
package obs

import "sync"

// Value holds the current value of one state field plus its subscriber set.
// Exactly one goroutine is expected to call Set; any number may Get or
// Subscribe.
type Value[T any] struct {
	mu     sync.RWMutex
	cur    T
	subs   map[int]chan T
	nextID int
}

func NewValue[T any](initial T) *Value[T] {
	return &Value[T]{cur: initial, subs: make(map[int]chan T, 4)}
}

func (v *Value[T]) Get() T {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return v.cur
}

// Set stores val and delivers it to every subscriber. Each subscriber sees
// emissions in Set order; delivery is non-blocking, so one that stops
// draining loses updates once its buffer fills but never stalls the writer.
func (v *Value[T]) Set(val T) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.cur = val
	for _, ch := range v.subs {
		select {
		case ch <- val:
		default:
			// subscriber too slow; it still sees the latest value via Get
		}
	}
}

// Subscribe registers a new observer. The channel is never closed by the
// writer; callers stop consuming via their own done signal and release the
// subscription with the returned cancel func.
func (v *Value[T]) Subscribe(buf int) (<-chan T, func()) {
	v.mu.Lock()
	defer v.mu.Unlock()
	id := v.nextID
	v.nextID++
	ch := make(chan T, buf)
	v.subs[id] = ch
	return ch, func() {
		v.mu.Lock()
		defer v.mu.Unlock()
		delete(v.subs, id)
	}
}

// Close drops all subscribers. Subsequent Sets still update the stored value
// but broadcast to no one.
func (v *Value[T]) Close() {
	v.mu.Lock()
	defer v.mu.Unlock()
	for id := range v.subs {
		delete(v.subs, id)
	}
}
