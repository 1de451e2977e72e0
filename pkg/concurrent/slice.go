// Package concurrent holds small hand-rolled thread-safe containers in
// the same boxed-interface{} style as the teacher's util package
// (util/concurrent_slice.go), rather than reaching for a third-party
// concurrent-collections library that nothing in the reference pack
// uses.
package concurrent

import "sync"

// Slice is an append-only-in-practice, mutex-guarded slice of boxed
// values. It is used where concurrent producers append results that a
// single consumer later reads back as a plain slice.
type Slice struct {
	mu   sync.Mutex
	data []interface{}
}

// NewSlice creates an empty Slice.
func NewSlice() *Slice {
	return &Slice{data: make([]interface{}, 0)}
}

// Append adds value under the lock.
func (s *Slice) Append(value interface{}) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data = append(s.data, value)
}

// Len returns the current length under the lock.
func (s *Slice) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.data)
}

// Snapshot returns a copy of the current contents, safe to iterate
// without holding the lock.
func (s *Slice) Snapshot() []interface{} {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]interface{}, len(s.data))
	copy(out, s.data)
	return out
}
