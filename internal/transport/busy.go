package transport

import "sync"

// Busy counts outstanding requests. Observers are called with the new count
// after every change, outside the lock.
type Busy struct {
	mu        sync.Mutex
	count     int
	observers []func(int)
}

// Observe registers fn to be called on every count change.
func (b *Busy) Observe(fn func(int)) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.observers = append(b.observers, fn)
}

// Count returns the number of outstanding requests.
func (b *Busy) Count() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.count
}

// Begin increments the counter and returns the matching decrement. The
// returned func is safe to call more than once; only the first call counts.
func (b *Busy) Begin() (done func()) {
	b.add(1)
	var once sync.Once
	return func() {
		once.Do(func() { b.add(-1) })
	}
}

func (b *Busy) add(delta int) {
	b.mu.Lock()
	b.count += delta
	n := b.count
	observers := append(([]func(int))(nil), b.observers...)
	b.mu.Unlock()

	for _, fn := range observers {
		fn(n)
	}
}
