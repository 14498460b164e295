package core

import "sync"

type ListenerID uint64

type listener[T any] struct {
	id ListenerID
	fn func(T)
}

// Listeners is an ordered callback registry. The zero value is ready to use.
// Notify calls every listener synchronously, in registration order, outside
// the registry lock so callbacks may add or remove listeners.
type Listeners[T any] struct {
	mu      sync.Mutex
	next    ListenerID
	entries []listener[T]
}

func (l *Listeners[T]) Add(fn func(T)) ListenerID {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.next++
	l.entries = append(l.entries, listener[T]{id: l.next, fn: fn})
	return l.next
}

func (l *Listeners[T]) Remove(id ListenerID) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	for i, e := range l.entries {
		if e.id == id {
			l.entries = append(l.entries[:i:i], l.entries[i+1:]...)
			return true
		}
	}
	return false
}

func (l *Listeners[T]) Notify(v T) {
	l.mu.Lock()
	snapshot := make([]listener[T], len(l.entries))
	copy(snapshot, l.entries)
	l.mu.Unlock()

	for _, e := range snapshot {
		e.fn(v)
	}
}

func (l *Listeners[T]) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.entries)
}

// Reset drops every listener. Ids keep increasing so stale ids never match.
func (l *Listeners[T]) Reset() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.entries = nil
}
