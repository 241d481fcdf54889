package repositories

import "sync"

// keyedMutex serializes operations sharing the same key (user id or
// session id) while letting unrelated keys proceed in parallel.
// Entries are never removed: the population is bounded by the number of
// users and sessions seen by one process lifetime.
type keyedMutex struct {
	locks sync.Map // key -> *sync.Mutex
}

func (k *keyedMutex) Lock(key string) func() {
	v, _ := k.locks.LoadOrStore(key, &sync.Mutex{})
	mu := v.(*sync.Mutex)
	mu.Lock()
	return mu.Unlock
}
