package share

import (
	"fmt"
	"sync"
)

// resourceLocks serializes read-modify-write cycles on policy documents
// shared across concurrently dispatched shares. The lock key is
// (source account, resource identifier): two shares touching the same
// bucket, access point or key from the same account take the same lock.
type resourceLocks struct {
	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

func newResourceLocks() *resourceLocks {
	return &resourceLocks{locks: map[string]*sync.Mutex{}}
}

func (r *resourceLocks) lock(account string, resource string) func() {
	key := fmt.Sprintf("%s/%s", account, resource)

	r.mu.Lock()
	m, ok := r.locks[key]
	if !ok {
		m = &sync.Mutex{}
		r.locks[key] = m
	}
	r.mu.Unlock()

	m.Lock()

	return m.Unlock
}
