package buffer

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/jobala/pagecache/config"
	"github.com/jobala/pagecache/index"
	"github.com/jobala/pagecache/logging"
	"github.com/jobala/pagecache/storage/disk"
	"github.com/jobala/pagecache/util"
	"golang.org/x/sync/errgroup"
)

// DiskManager is the backing store the pool reads pages from and writes
// them back to. Implementations must be safe for concurrent use.
type DiskManager interface {
	AllocatePage() (disk.PageID, error)
	DeallocatePage(pageId disk.PageID) error
	ReadPage(pageId disk.PageID, buf []byte) error
	WritePage(pageId disk.PageID, buf []byte) error
}

func NewBufferpoolManager(size int, diskMgr DiskManager) *BufferpoolManager {
	opts := config.DefaultOptions()
	opts.PoolSize = size

	bpm, err := NewBufferpoolManagerWithOptions(opts, diskMgr)
	if err != nil {
		panic(err)
	}
	return bpm
}

func NewBufferpoolManagerWithOptions(opts config.Options, diskMgr DiskManager) (*BufferpoolManager, error) {
	if opts.PoolSize <= 0 {
		return nil, util.ErrInvalidPoolSize
	}
	if opts.BucketSize <= 0 {
		return nil, util.ErrInvalidBucketSize
	}

	frames := make([]*Frame, opts.PoolSize)
	freeFrames := make([]int, opts.PoolSize)
	for i := range opts.PoolSize {
		frames[i] = newFrame(i)
		freeFrames[i] = i
	}

	bpm := &BufferpoolManager{
		frames:           frames,
		freeFrames:       freeFrames,
		pageTable:        index.NewExtendibleHash[disk.PageID, int](opts.BucketSize, index.IntegerHash[disk.PageID]),
		replacer:         NewLRUReplacer[int](opts.PoolSize),
		disk:             diskMgr,
		flushParallelism: max(opts.FlushParallelism, 1),
		log:              logging.WithComponent("bufferpool"),
	}
	bpm.cond = sync.NewCond(&bpm.mu)
	return bpm, nil
}

// FetchPage returns the frame holding pageId with its pin count raised,
// reading the page from disk when it is not resident. It fails with
// ErrPoolExhausted when every frame is pinned.
func (b *BufferpoolManager) FetchPage(pageId disk.PageID) (*Frame, error) {
	if pageId == disk.INVALID_PAGE_ID {
		return nil, util.NewError("fetch", int64(pageId), util.ErrInvalidPageId)
	}

	b.mu.Lock()
	for {
		frameId, ok := b.pageTable.Find(pageId)
		if !ok {
			break
		}

		frame := b.frames[frameId]
		if frame.loading {
			// another fetcher is reading this page in
			b.cond.Wait()
			continue
		}

		util.Assert(frame.pageId == pageId, "page table maps page %d to frame %d holding page %d", pageId, frameId, frame.pageId)
		frame.pin()
		b.replacer.Erase(frameId)
		b.mu.Unlock()

		return frame, nil
	}

	frame, err := b.claimFrame()
	if err != nil {
		b.mu.Unlock()
		return nil, wrapClaimError("fetch", pageId, err)
	}

	if err := b.pageTable.Insert(pageId, frame.id); err != nil {
		b.freeFrames = append(b.freeFrames, frame.id)
		b.mu.Unlock()
		return nil, fmt.Errorf("mapping page %d: %w", pageId, err)
	}
	frame.pageId = pageId
	frame.pins.Store(1)
	frame.loading = true
	b.mu.Unlock()

	b.log.Debug("page miss", "page_id", pageId, "frame_id", frame.id)
	readErr := b.disk.ReadPage(pageId, frame.data)

	b.mu.Lock()
	defer b.mu.Unlock()
	defer b.cond.Broadcast()

	frame.loading = false
	if readErr != nil {
		b.pageTable.Remove(pageId)
		frame.reset()
		b.freeFrames = append(b.freeFrames, frame.id)
		b.log.Warn("page read failed", "page_id", pageId, "error", readErr)
		return nil, fmt.Errorf("reading page %d: %w", pageId, readErr)
	}

	return frame, nil
}

// UnpinPage drops one pin on pageId. A dirty unpin marks the frame dirty
// until the next flush; a clean unpin never clears it. At zero pins the frame
// becomes an eviction candidate.
func (b *BufferpoolManager) UnpinPage(pageId disk.PageID, isDirty bool) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	frame, ok := b.resident(pageId)
	if !ok {
		return util.NewError("unpin", int64(pageId), util.ErrPageNotFound)
	}

	if frame.pins.Load() <= 0 {
		return util.NewError("unpin", int64(pageId), util.ErrPinUnderflow)
	}

	if isDirty {
		frame.dirty.Store(true)
	}

	if frame.unpin() == 0 {
		b.replacer.Insert(frame.id)
	}

	return nil
}

// FlushPage writes pageId back to disk whether or not it is dirty. The page is
// pinned for the duration of the write and read under its latch, so a caller
// holding a write guard on pageId must drop it first. An unpinned page moves
// to the most recently used end of the replacer.
func (b *BufferpoolManager) FlushPage(pageId disk.PageID) error {
	if pageId == disk.INVALID_PAGE_ID {
		return util.NewError("flush", int64(pageId), util.ErrInvalidPageId)
	}

	b.mu.Lock()
	frame, ok := b.resident(pageId)
	if !ok {
		b.mu.Unlock()
		return util.NewError("flush", int64(pageId), util.ErrPageNotFound)
	}
	b.pinForFlush(frame)
	b.mu.Unlock()

	err := b.writeLatched(frame)

	b.mu.Lock()
	b.unpinAfterFlush(frame)
	b.mu.Unlock()

	return err
}

// FlushAllPages writes every resident dirty page back to disk. The pages are
// pinned while their writes run, so concurrent fetches may see a fuller pool.
func (b *BufferpoolManager) FlushAllPages() error {
	b.mu.Lock()
	var dirty []*Frame
	for _, frame := range b.frames {
		if frame.pageId == disk.INVALID_PAGE_ID || frame.loading || !frame.dirty.Load() {
			continue
		}
		b.pinForFlush(frame)
		dirty = append(dirty, frame)
	}
	b.mu.Unlock()

	var g errgroup.Group
	g.SetLimit(b.flushParallelism)
	for _, frame := range dirty {
		g.Go(func() error {
			return b.writeLatched(frame)
		})
	}
	err := g.Wait()

	b.mu.Lock()
	for _, frame := range dirty {
		b.unpinAfterFlush(frame)
	}
	b.mu.Unlock()

	return err
}

// DeletePage drops an unpinned resident page from the pool and deallocates it
// on disk. Pinned pages are left untouched. A deallocation error is returned
// after the page has already left the pool; only the disk slot is leaked.
func (b *BufferpoolManager) DeletePage(pageId disk.PageID) error {
	if pageId == disk.INVALID_PAGE_ID {
		return util.NewError("delete", int64(pageId), util.ErrInvalidPageId)
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	frame, ok := b.resident(pageId)
	if !ok {
		return util.NewError("delete", int64(pageId), util.ErrPageNotFound)
	}

	if frame.pins.Load() > 0 {
		return util.NewError("delete", int64(pageId), util.ErrPagePinned)
	}

	b.pageTable.Remove(pageId)
	b.replacer.Erase(frame.id)
	frame.reset()
	b.freeFrames = append(b.freeFrames, frame.id)

	b.log.Debug("deleted page", "page_id", pageId, "frame_id", frame.id)
	if err := b.disk.DeallocatePage(pageId); err != nil {
		return fmt.Errorf("deallocating page %d: %w", pageId, err)
	}

	return nil
}

// NewPage allocates a page on disk and returns it pinned in a zeroed frame.
func (b *BufferpoolManager) NewPage() (disk.PageID, *Frame, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	frame, err := b.claimFrame()
	if err != nil {
		return disk.INVALID_PAGE_ID, nil, wrapClaimError("new", disk.INVALID_PAGE_ID, err)
	}

	pageId, err := b.disk.AllocatePage()
	if err != nil {
		b.freeFrames = append(b.freeFrames, frame.id)
		return disk.INVALID_PAGE_ID, nil, fmt.Errorf("allocating page: %w", err)
	}

	if err := b.pageTable.Insert(pageId, frame.id); err != nil {
		b.freeFrames = append(b.freeFrames, frame.id)
		return disk.INVALID_PAGE_ID, nil, fmt.Errorf("mapping page %d: %w", pageId, err)
	}
	frame.pageId = pageId
	frame.pins.Store(1)

	b.log.Debug("new page", "page_id", pageId, "frame_id", frame.id)
	return pageId, frame, nil
}

func (b *BufferpoolManager) Stats() Stats {
	b.mu.Lock()
	defer b.mu.Unlock()

	stats := Stats{
		PoolSize:  len(b.frames),
		Free:      len(b.freeFrames),
		Evictable: b.replacer.Size(),
	}

	for _, frame := range b.frames {
		if frame.pageId == disk.INVALID_PAGE_ID || frame.loading {
			continue
		}
		stats.Resident++
		if frame.pins.Load() > 0 {
			stats.Pinned++
		}
		if frame.dirty.Load() {
			stats.Dirty++
		}
	}

	return stats
}

// claimFrame takes a frame from the free list, or else evicts the least
// recently unpinned page, writing it back first if dirty. The returned frame
// is reset and unmapped. Callers hold b.mu.
func (b *BufferpoolManager) claimFrame() (*Frame, error) {
	if len(b.freeFrames) > 0 {
		id := b.freeFrames[0]
		b.freeFrames = b.freeFrames[1:]
		return b.frames[id], nil
	}

	id, ok := b.replacer.Victim()
	if !ok {
		return nil, util.ErrPoolExhausted
	}

	frame := b.frames[id]
	util.Assert(frame.pins.Load() == 0, "victim frame %d has %d pins", id, frame.pins.Load())

	dirty := frame.dirty.Load()
	if dirty {
		if err := b.disk.WritePage(frame.pageId, frame.data); err != nil {
			b.replacer.Restore(id)
			b.log.Warn("victim write back failed", "page_id", frame.pageId, "error", err)
			return nil, fmt.Errorf("writing back page %d: %w", frame.pageId, err)
		}
	}

	b.log.Debug("evicted page", "page_id", frame.pageId, "frame_id", id, "dirty", dirty)
	b.pageTable.Remove(frame.pageId)
	frame.reset()

	return frame, nil
}

// pinForFlush keeps frame resident while its contents are written outside
// b.mu. Callers hold b.mu.
func (b *BufferpoolManager) pinForFlush(frame *Frame) {
	frame.pin()
	b.replacer.Erase(frame.id)
}

func (b *BufferpoolManager) unpinAfterFlush(frame *Frame) {
	if frame.unpin() == 0 {
		b.replacer.Insert(frame.id)
	}
}

// writeLatched writes a pinned frame under its shared latch. The dirty flag is
// cleared before the write so a later dirty unpin is never lost, and restored
// if the write fails.
func (b *BufferpoolManager) writeLatched(frame *Frame) error {
	frame.mu.RLock()
	defer frame.mu.RUnlock()

	wasDirty := frame.dirty.Swap(false)
	if err := b.disk.WritePage(frame.pageId, frame.data); err != nil {
		if wasDirty {
			frame.dirty.Store(true)
		}
		b.log.Warn("page flush failed", "page_id", frame.pageId, "error", err)
		return fmt.Errorf("flushing page %d: %w", frame.pageId, err)
	}

	return nil
}

// resident looks up a fully loaded page. Callers hold b.mu.
func (b *BufferpoolManager) resident(pageId disk.PageID) (*Frame, bool) {
	frameId, ok := b.pageTable.Find(pageId)
	if !ok {
		return nil, false
	}

	frame := b.frames[frameId]
	if frame.loading {
		return nil, false
	}

	util.Assert(frame.pageId == pageId, "page table maps page %d to frame %d holding page %d", pageId, frameId, frame.pageId)
	return frame, true
}

func wrapClaimError(op string, pageId disk.PageID, err error) error {
	if errors.Is(err, util.ErrPoolExhausted) {
		return util.NewError(op, int64(pageId), err)
	}
	return err
}

type Stats struct {
	PoolSize  int
	Resident  int
	Pinned    int
	Dirty     int
	Free      int
	Evictable int
}

// BufferpoolManager caches disk pages in a fixed set of frames. Frames are
// addressed by index everywhere: the page table maps page ids to frame
// indexes and the replacer tracks frame indexes.
type BufferpoolManager struct {
	mu               sync.Mutex
	cond             *sync.Cond
	frames           []*Frame
	freeFrames       []int
	pageTable        *index.ExtendibleHash[disk.PageID, int]
	replacer         *LRUReplacer[int]
	disk             DiskManager
	flushParallelism int
	log              *slog.Logger
}
