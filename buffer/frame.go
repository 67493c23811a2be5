package buffer

import (
	"sync"
	"sync/atomic"

	"github.com/jobala/pagecache/storage/disk"
)

func newFrame(id int) *Frame {
	return &Frame{
		id:     id,
		data:   make([]byte, disk.PAGE_SIZE),
		pageId: disk.INVALID_PAGE_ID,
	}
}

func (f *Frame) pin() {
	f.pins.Add(1)
}

func (f *Frame) unpin() int32 {
	return f.pins.Add(-1)
}

func (f *Frame) reset() {
	f.dirty.Store(false)
	f.pins.Store(0)
	clear(f.data)
	f.pageId = disk.INVALID_PAGE_ID
	f.loading = false
}

// ID is the frame's fixed slot in the pool.
func (f *Frame) ID() int { return f.id }

func (f *Frame) PageId() disk.PageID { return f.pageId }

func (f *Frame) PinCount() int32 { return f.pins.Load() }

func (f *Frame) IsDirty() bool { return f.dirty.Load() }

// Data is the page buffer. It stays valid while the caller holds a pin.
func (f *Frame) Data() []byte { return f.data }

// Frame is one page-sized slot of the pool. Frames live for the lifetime of
// the pool and are only reset and reassigned.
type Frame struct {
	mu     sync.RWMutex
	id     int
	data   []byte
	pins   atomic.Int32
	dirty  atomic.Bool
	pageId disk.PageID

	// set while the page is read in; guarded by the pool mutex
	loading bool
}
