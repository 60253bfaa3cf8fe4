package guidance

import "sync"

// Latest holds the most recent value written by a producer. Readers get a
// copy and never wait for a fresh value. The zero value is ready to use.
type Latest[T any] struct {
	mu    sync.Mutex
	value T
	seq   uint64
}

// Store replaces the held value.
func (l *Latest[T]) Store(v T) {
	l.mu.Lock()
	l.value = v
	l.seq++
	l.mu.Unlock()
}

// Load returns a copy of the held value and the number of stores so far.
// A zero sequence means nothing has been stored yet.
func (l *Latest[T]) Load() (T, uint64) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.value, l.seq
}
