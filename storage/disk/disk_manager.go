package disk

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"sync"
	"sync/atomic"

	"github.com/jobala/pagecache/logging"
	"github.com/jobala/pagecache/util"
	"github.com/vmihailenco/msgpack"
)

const metaSuffix = ".meta"

// Open opens or creates the database file at path and restores the allocation
// table saved next to it by a previous Sync or Close.
func Open(path string) (*Manager, error) {
	file, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR, 0644)
	if err != nil {
		return nil, fmt.Errorf("opening db file %s: %w", path, err)
	}

	dm := NewManager(file)
	if err := dm.loadMeta(); err != nil {
		_ = file.Close()
		return nil, err
	}

	info, err := file.Stat()
	if err != nil {
		_ = file.Close()
		return nil, fmt.Errorf("stat db file: %w", err)
	}
	if want := int64(dm.pageCapacity) * PAGE_SIZE; info.Size() < want {
		if err := file.Truncate(want); err != nil {
			_ = file.Close()
			return nil, fmt.Errorf("error sizing db file: %w", err)
		}
	}

	return dm, nil
}

func NewManager(file *os.File) *Manager {
	return &Manager{
		dbFile:       file,
		pageCapacity: DEFAULT_PAGE_CAPACITY,
		freeSlots:    []int64{},
		pages:        map[PageID]int64{},
		log:          logging.WithComponent("disk"),
	}
}

func (dm *Manager) AllocatePage() (PageID, error) {
	dm.mu.Lock()
	defer dm.mu.Unlock()

	if dm.closed {
		return INVALID_PAGE_ID, util.ErrDiskClosed
	}

	offset, err := dm.allocateSlot()
	if err != nil {
		return INVALID_PAGE_ID, err
	}

	pageId := dm.nextPageId
	dm.nextPageId++
	dm.pages[pageId] = offset

	return pageId, nil
}

func (dm *Manager) DeallocatePage(pageId PageID) error {
	dm.mu.Lock()
	defer dm.mu.Unlock()

	if dm.closed {
		return util.ErrDiskClosed
	}

	if offset, ok := dm.pages[pageId]; ok {
		dm.freeSlots = append(dm.freeSlots, offset)
		delete(dm.pages, pageId)
	}

	return nil
}

// WritePage persists buf as the contents of pageId, reserving a slot when the
// page was never allocated.
func (dm *Manager) WritePage(pageId PageID, buf []byte) error {
	if len(buf) != PAGE_SIZE {
		return fmt.Errorf("write of %d bytes, want %d", len(buf), PAGE_SIZE)
	}

	dm.mu.Lock()
	defer dm.mu.Unlock()

	if dm.closed {
		return util.ErrDiskClosed
	}

	offset, pageFound := dm.pages[pageId]
	if !pageFound {
		var err error
		if offset, err = dm.allocateSlot(); err != nil {
			return err
		}
		dm.pages[pageId] = offset
		if pageId >= dm.nextPageId {
			dm.nextPageId = pageId + 1
		}
	}

	if _, err := dm.dbFile.WriteAt(buf, offset); err != nil {
		return fmt.Errorf("error writing at offset %d: %w", offset, err)
	}
	dm.numWrites.Add(1)

	return nil
}

// ReadPage fills buf with the contents of pageId. Pages that were never
// written read back as zeros.
func (dm *Manager) ReadPage(pageId PageID, buf []byte) error {
	if len(buf) != PAGE_SIZE {
		return fmt.Errorf("read into %d bytes, want %d", len(buf), PAGE_SIZE)
	}

	dm.mu.Lock()
	defer dm.mu.Unlock()

	if dm.closed {
		return util.ErrDiskClosed
	}
	dm.numReads.Add(1)

	offset, pageFound := dm.pages[pageId]
	if !pageFound {
		clear(buf)
		return nil
	}

	n, err := dm.dbFile.ReadAt(buf, offset)
	if err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("error reading from offset %d: %w", offset, err)
	}
	clear(buf[n:])

	return nil
}

// Sync saves the allocation table and flushes the db file.
func (dm *Manager) Sync() error {
	dm.mu.Lock()
	defer dm.mu.Unlock()

	if dm.closed {
		return util.ErrDiskClosed
	}
	return dm.sync()
}

func (dm *Manager) Close() error {
	dm.mu.Lock()
	defer dm.mu.Unlock()

	if dm.closed {
		return nil
	}

	err := dm.sync()
	dm.closed = true
	if cerr := dm.dbFile.Close(); cerr != nil {
		err = errors.Join(err, fmt.Errorf("close db file: %w", cerr))
	}

	return err
}

func (dm *Manager) NumReads() int64  { return dm.numReads.Load() }
func (dm *Manager) NumWrites() int64 { return dm.numWrites.Load() }

func (dm *Manager) allocateSlot() (int64, error) {
	if len(dm.freeSlots) > 0 {
		offset := dm.freeSlots[0]
		dm.freeSlots = dm.freeSlots[1:]

		return offset, nil
	}

	if len(dm.pages)+1 > dm.pageCapacity {
		dm.pageCapacity *= 2
		if err := dm.dbFile.Truncate(int64(dm.pageCapacity) * PAGE_SIZE); err != nil {
			return -1, fmt.Errorf("error resizing db file: %w", err)
		}
		dm.log.Debug("grew db file", "page_capacity", dm.pageCapacity)
	}

	return dm.getNextOffset(), nil
}

// With the free list drained, live slots are exactly [0, len(pages)).
func (dm *Manager) getNextOffset() int64 {
	return int64(len(dm.pages)) * PAGE_SIZE
}

func (dm *Manager) sync() error {
	if err := dm.saveMeta(); err != nil {
		return err
	}
	if err := dm.dbFile.Sync(); err != nil {
		return fmt.Errorf("sync db file: %w", err)
	}
	return nil
}

func (dm *Manager) metaPath() string {
	return dm.dbFile.Name() + metaSuffix
}

func (dm *Manager) saveMeta() error {
	table := allocationTable{
		NextPageId:   int64(dm.nextPageId),
		PageCapacity: dm.pageCapacity,
		Pages:        make(map[int64]int64, len(dm.pages)),
		FreeSlots:    dm.freeSlots,
	}
	for pageId, offset := range dm.pages {
		table.Pages[int64(pageId)] = offset
	}

	data, err := msgpack.Marshal(table)
	if err != nil {
		return fmt.Errorf("encoding allocation table: %w", err)
	}

	tmp := dm.metaPath() + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return fmt.Errorf("writing allocation table: %w", err)
	}
	if err := os.Rename(tmp, dm.metaPath()); err != nil {
		return fmt.Errorf("installing allocation table: %w", err)
	}

	return nil
}

func (dm *Manager) loadMeta() error {
	data, err := os.ReadFile(dm.metaPath())
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("reading allocation table: %w", err)
	}

	var table allocationTable
	if err := msgpack.Unmarshal(data, &table); err != nil {
		return fmt.Errorf("decoding allocation table: %w", err)
	}

	dm.nextPageId = PageID(table.NextPageId)
	if table.PageCapacity > 0 {
		dm.pageCapacity = table.PageCapacity
	}
	if table.FreeSlots != nil {
		dm.freeSlots = table.FreeSlots
	}
	for pageId, offset := range table.Pages {
		dm.pages[PageID(pageId)] = offset
	}

	dm.log.Debug("restored allocation table", "pages", len(dm.pages), "free_slots", len(dm.freeSlots))
	return nil
}

type allocationTable struct {
	NextPageId   int64           `msgpack:"next_page_id"`
	PageCapacity int             `msgpack:"page_capacity"`
	Pages        map[int64]int64 `msgpack:"pages"`
	FreeSlots    []int64         `msgpack:"free_slots"`
}

// Manager stores pages in a single file. Page ids map to slot offsets; freed
// slots are reused before the file grows.
type Manager struct {
	mu           sync.Mutex
	dbFile       *os.File
	pages        map[PageID]int64
	freeSlots    []int64
	pageCapacity int
	nextPageId   PageID
	closed       bool

	numReads  atomic.Int64
	numWrites atomic.Int64
	log       *slog.Logger
}
