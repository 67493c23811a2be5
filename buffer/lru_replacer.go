package buffer

import (
	"sync"

	"github.com/hashicorp/golang-lru/v2/simplelru"
)

// NewLRUReplacer tracks eviction candidates in release order. capacity is a
// sizing hint; the replacer grows rather than dropping entries.
func NewLRUReplacer[T comparable](capacity int) *LRUReplacer[T] {
	capacity = max(capacity, 1)

	lru, err := simplelru.NewLRU[T, struct{}](capacity, nil)
	if err != nil {
		panic(err)
	}

	return &LRUReplacer[T]{
		capacity: capacity,
		lru:      lru,
	}
}

// Insert marks ref as the most recently released entry. A tracked ref is moved,
// not duplicated.
func (r *LRUReplacer[T]) Insert(ref T) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if !r.lru.Contains(ref) && r.lru.Len() >= r.capacity {
		r.capacity *= 2
		r.lru.Resize(r.capacity)
	}
	r.lru.Add(ref, struct{}{})
}

// Restore puts ref back as the least recently released entry, ahead of
// everything already tracked. It undoes a Victim whose eviction failed.
func (r *LRUReplacer[T]) Restore(ref T) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.lru.Remove(ref)
	if r.lru.Len() >= r.capacity {
		r.capacity *= 2
		r.lru.Resize(r.capacity)
	}

	rest := r.lru.Keys()
	r.lru.Purge()
	r.lru.Add(ref, struct{}{})
	for _, k := range rest {
		r.lru.Add(k, struct{}{})
	}
}

// Victim removes and returns the least recently released entry.
func (r *LRUReplacer[T]) Victim() (T, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	ref, _, ok := r.lru.RemoveOldest()
	return ref, ok
}

func (r *LRUReplacer[T]) Erase(ref T) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	return r.lru.Remove(ref)
}

func (r *LRUReplacer[T]) Size() int {
	r.mu.Lock()
	defer r.mu.Unlock()

	return r.lru.Len()
}

type LRUReplacer[T comparable] struct {
	mu       sync.Mutex
	capacity int
	lru      *simplelru.LRU[T, struct{}]
}
