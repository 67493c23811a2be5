package disk

import (
	"fmt"
	"sync"
	"sync/atomic"
)

// MemoryManager keeps pages in a map. It satisfies the same contract as
// Manager and is what the buffer pool tests run against.
type MemoryManager struct {
	mu         sync.Mutex
	pages      map[PageID][]byte
	allocated  map[PageID]struct{}
	nextPageId PageID

	numReads    atomic.Int64
	numWrites   atomic.Int64
	numDeallocs atomic.Int64
}

func NewMemoryManager() *MemoryManager {
	return &MemoryManager{
		pages:     map[PageID][]byte{},
		allocated: map[PageID]struct{}{},
	}
}

func (m *MemoryManager) AllocatePage() (PageID, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	pageId := m.nextPageId
	m.nextPageId++
	m.allocated[pageId] = struct{}{}

	return pageId, nil
}

func (m *MemoryManager) DeallocatePage(pageId PageID) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	delete(m.allocated, pageId)
	delete(m.pages, pageId)
	m.numDeallocs.Add(1)

	return nil
}

func (m *MemoryManager) ReadPage(pageId PageID, buf []byte) error {
	if len(buf) != PAGE_SIZE {
		return fmt.Errorf("read into %d bytes, want %d", len(buf), PAGE_SIZE)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	m.numReads.Add(1)
	if data, ok := m.pages[pageId]; ok {
		copy(buf, data)
	} else {
		clear(buf)
	}

	return nil
}

func (m *MemoryManager) WritePage(pageId PageID, buf []byte) error {
	if len(buf) != PAGE_SIZE {
		return fmt.Errorf("write of %d bytes, want %d", len(buf), PAGE_SIZE)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	data := make([]byte, PAGE_SIZE)
	copy(data, buf)
	m.pages[pageId] = data
	m.allocated[pageId] = struct{}{}
	if pageId >= m.nextPageId {
		m.nextPageId = pageId + 1
	}
	m.numWrites.Add(1)

	return nil
}

// HasPage reports whether pageId is allocated or was written and not since
// deallocated.
func (m *MemoryManager) HasPage(pageId PageID) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	_, ok := m.allocated[pageId]
	return ok
}

func (m *MemoryManager) NumReads() int64         { return m.numReads.Load() }
func (m *MemoryManager) NumWrites() int64        { return m.numWrites.Load() }
func (m *MemoryManager) NumDeallocations() int64 { return m.numDeallocs.Load() }
