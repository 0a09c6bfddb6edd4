package locks

import (
	"hash/fnv"
	"sync"
)

const defaultStripes = 64

// Striped serializes work per key with a fixed number of mutexes, so memory
// does not grow with the number of identities.
type Striped struct {
	stripes []sync.Mutex
}

func NewStriped(n int) *Striped {
	if n <= 0 {
		n = defaultStripes
	}
	return &Striped{stripes: make([]sync.Mutex, n)}
}

func (s *Striped) Lock(key string) func() {
	m := &s.stripes[s.index(key)]
	m.Lock()
	return m.Unlock
}

func (s *Striped) index(key string) int {
	h := fnv.New32a()
	_, _ = h.Write([]byte(key))
	return int(h.Sum32() % uint32(len(s.stripes)))
}
