// Package lock provides per-key mutual exclusion for rating recomputes.
package lock

import (
	"context"
	"hash/fnv"
	"sync"
)

const defaultStripes = 256

// Striped serializes keys within one process by hashing them onto a fixed
// set of mutexes. Distinct keys may share a stripe; that only costs
// throughput, never correctness.
type Striped struct {
	stripes []chan struct{}
}

// NewStriped returns a locker with n stripes (256 when n <= 0).
func NewStriped(n int) *Striped {
	if n <= 0 {
		n = defaultStripes
	}
	s := &Striped{stripes: make([]chan struct{}, n)}
	for i := range s.stripes {
		s.stripes[i] = make(chan struct{}, 1)
	}
	return s
}

// Lock blocks until the key's stripe is free or ctx is done.
func (s *Striped) Lock(ctx context.Context, key string) (func(), error) {
	ch := s.stripes[s.index(key)]
	select {
	case ch <- struct{}{}:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	var once sync.Once
	return func() { once.Do(func() { <-ch }) }, nil
}

func (s *Striped) index(key string) int {
	h := fnv.New32a()
	_, _ = h.Write([]byte(key))
	return int(h.Sum32() % uint32(len(s.stripes)))
}
