package index

import (
	"fmt"
	"sync"

	"github.com/jobala/pagecache/util"
)

// MAX_GLOBAL_DEPTH caps directory doubling at 2^24 slots.
const MAX_GLOBAL_DEPTH = 24

// NewExtendibleHash builds a table with global depth 0 and a single bucket
// holding up to bucketSize entries.
func NewExtendibleHash[K comparable, V any](bucketSize int, hash HashFunc[K]) *ExtendibleHash[K, V] {
	if bucketSize <= 0 {
		panic(util.ErrInvalidBucketSize)
	}

	return &ExtendibleHash[K, V]{
		hash:       hash,
		bucketSize: bucketSize,
		maxDepth:   MAX_GLOBAL_DEPTH,
		directory:  []int{0},
		buckets:    []*bucket[K, V]{newBucket[K, V](bucketSize, 0)},
	}
}

func (h *ExtendibleHash[K, V]) Find(key K) (V, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	b := h.buckets[h.directory[h.dirIndex(h.hash(key))]]
	if idx := b.find(key); idx >= 0 {
		return b.slots[idx].value, true
	}

	var zero V
	return zero, false
}

// Insert maps key to value, overwriting any previous value. A full bucket is
// split, doubling the directory when needed, until the key fits.
// ErrDirectoryOverflow is returned, with the table unchanged, when the bucket
// and key agree on every hash bit a split could use.
func (h *ExtendibleHash[K, V]) Insert(key K, value V) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	hv := h.hash(key)
	for {
		handle := h.directory[h.dirIndex(hv)]
		b := h.buckets[handle]

		if idx := b.find(key); idx >= 0 {
			b.slots[idx].value = value
			return nil
		}

		if b.size < h.bucketSize {
			b.put(key, value)
			h.size++
			return nil
		}

		if !h.splittable(b, hv) {
			return fmt.Errorf("inserting at global depth %d: %w", h.globalDepth, util.ErrDirectoryOverflow)
		}
		h.split(handle)
	}
}

// Remove clears the slot holding key. Buckets are never merged.
func (h *ExtendibleHash[K, V]) Remove(key K) bool {
	h.mu.Lock()
	defer h.mu.Unlock()

	b := h.buckets[h.directory[h.dirIndex(h.hash(key))]]
	idx := b.find(key)
	if idx < 0 {
		return false
	}

	b.slots[idx] = slot[K, V]{}
	b.size--
	h.size--
	return true
}

func (h *ExtendibleHash[K, V]) GetGlobalDepth() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.globalDepth
}

// GetLocalDepth reports the local depth of the bucket with the given handle.
// Handles are assigned in creation order, starting at 0.
func (h *ExtendibleHash[K, V]) GetLocalDepth(bucketId int) (int, error) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	if bucketId < 0 || bucketId >= len(h.buckets) {
		return -1, fmt.Errorf("bucket %d of %d: %w", bucketId, len(h.buckets), util.ErrBucketNotFound)
	}
	return h.buckets[bucketId].localDepth, nil
}

func (h *ExtendibleHash[K, V]) GetNumBuckets() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.buckets)
}

func (h *ExtendibleHash[K, V]) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.size
}

// Range calls fn for every entry until fn returns false. fn must not call
// back into the table.
func (h *ExtendibleHash[K, V]) Range(fn func(key K, value V) bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	for _, b := range h.buckets {
		for _, s := range b.slots {
			if s.occupied && !fn(s.key, s.value) {
				return
			}
		}
	}
}

func (h *ExtendibleHash[K, V]) dirIndex(hv uint64) int {
	return int(hv & (uint64(1)<<h.globalDepth - 1))
}

// splittable reports whether some entry of b differs from hv below maxDepth.
// If none does, every split would send all of them to the same side.
func (h *ExtendibleHash[K, V]) splittable(b *bucket[K, V], hv uint64) bool {
	if b.localDepth >= h.maxDepth {
		return false
	}

	mask := uint64(1)<<h.maxDepth - 1
	for _, s := range b.slots {
		if s.occupied && h.hash(s.key)&mask != hv&mask {
			return true
		}
	}
	return false
}

func (h *ExtendibleHash[K, V]) split(handle int) {
	b := h.buckets[handle]
	ld := b.localDepth

	if ld == h.globalDepth {
		// low bit indexing: slot i and i+2^g now share a bucket
		h.directory = append(h.directory, h.directory...)
		h.globalDepth++
	}

	sibling := newBucket[K, V](h.bucketSize, ld+1)
	h.buckets = append(h.buckets, sibling)
	siblingHandle := len(h.buckets) - 1
	b.localDepth = ld + 1

	for i, target := range h.directory {
		if target == handle && (i>>ld)&1 == 1 {
			h.directory[i] = siblingHandle
		}
	}

	for i := range b.slots {
		s := &b.slots[i]
		if s.occupied && (h.hash(s.key)>>ld)&1 == 1 {
			sibling.put(s.key, s.value)
			*s = slot[K, V]{}
			b.size--
		}
	}

	util.Assert(h.globalDepth >= sibling.localDepth, "local depth %d exceeds global depth %d", sibling.localDepth, h.globalDepth)
}

func newBucket[K comparable, V any](capacity, localDepth int) *bucket[K, V] {
	return &bucket[K, V]{
		slots:      make([]slot[K, V], capacity),
		localDepth: localDepth,
	}
}

func (b *bucket[K, V]) find(key K) int {
	for i := range b.slots {
		if b.slots[i].occupied && b.slots[i].key == key {
			return i
		}
	}
	return -1
}

// put assumes the bucket has room.
func (b *bucket[K, V]) put(key K, value V) {
	for i := range b.slots {
		if !b.slots[i].occupied {
			b.slots[i] = slot[K, V]{key: key, value: value, occupied: true}
			b.size++
			return
		}
	}
	util.Assert(false, "put into full bucket of %d slots", len(b.slots))
}

type slot[K comparable, V any] struct {
	key      K
	value    V
	occupied bool
}

type bucket[K comparable, V any] struct {
	slots      []slot[K, V]
	localDepth int
	size       int
}

// ExtendibleHash is a generic extendible hash table. The directory holds
// 2^globalDepth handles into the bucket arena; a bucket with local depth ld is
// shared by 2^(globalDepth-ld) directory slots.
type ExtendibleHash[K comparable, V any] struct {
	mu          sync.RWMutex
	hash        HashFunc[K]
	bucketSize  int
	globalDepth int
	maxDepth    int
	directory   []int
	buckets     []*bucket[K, V]
	size        int
}
