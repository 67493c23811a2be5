package buffer

import (
	"github.com/jobala/pagecache/storage/disk"
	"github.com/jobala/pagecache/util"
)

// ReadPage fetches pageId and takes its latch in shared mode.
func (b *BufferpoolManager) ReadPage(pageId disk.PageID) (*ReadPageGuard, error) {
	frame, err := b.FetchPage(pageId)
	if err != nil {
		return nil, err
	}

	frame.mu.RLock()
	return NewReadPageGuard(frame, b), nil
}

// WritePage fetches pageId and takes its latch exclusively. Dropping the guard
// unpins the page dirty.
func (b *BufferpoolManager) WritePage(pageId disk.PageID) (*WritePageGuard, error) {
	frame, err := b.FetchPage(pageId)
	if err != nil {
		return nil, err
	}

	frame.mu.Lock()
	return NewWritePageGuard(frame, b), nil
}

func NewReadPageGuard(frame *Frame, bpm *BufferpoolManager) *ReadPageGuard {
	return &ReadPageGuard{
		PageGuard: PageGuard{
			frame:  frame,
			pageId: frame.pageId,
			bpm:    bpm,
		},
	}
}

func NewWritePageGuard(frame *Frame, bpm *BufferpoolManager) *WritePageGuard {
	return &WritePageGuard{
		PageGuard: PageGuard{
			frame:  frame,
			pageId: frame.pageId,
			bpm:    bpm,
		},
	}
}

// Drop releases the latch and the pin. Calling it again is a no-op.
func (pg *ReadPageGuard) Drop() {
	if pg == nil || pg.frame == nil {
		return
	}

	pg.frame.mu.RUnlock()
	err := pg.bpm.UnpinPage(pg.pageId, false)
	util.Assert(err == nil, "dropping read guard on page %d: %v", pg.pageId, err)
	pg.frame = nil
}

func (pg *WritePageGuard) Drop() {
	if pg == nil || pg.frame == nil {
		return
	}

	pg.frame.mu.Unlock()
	err := pg.bpm.UnpinPage(pg.pageId, true)
	util.Assert(err == nil, "dropping write guard on page %d: %v", pg.pageId, err)
	pg.frame = nil
}

func (pg *PageGuard) PageId() disk.PageID {
	return pg.pageId
}

func (pg *ReadPageGuard) GetData() []byte {
	return pg.frame.data
}

func (pg *WritePageGuard) GetDataMut() []byte {
	return pg.frame.data
}

type PageGuard struct {
	frame  *Frame
	pageId disk.PageID
	bpm    *BufferpoolManager
}

type ReadPageGuard struct {
	PageGuard
}

type WritePageGuard struct {
	PageGuard
}
