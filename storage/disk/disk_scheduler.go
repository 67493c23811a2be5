package disk

import (
	"log/slog"
	"sync"

	"github.com/jobala/pagecache/logging"
	"github.com/jobala/pagecache/util"
)

// NewScheduler starts a scheduler in front of store. Requests for one page run
// in submission order on that page's worker; different pages run in parallel.
func NewScheduler(store Store) *DiskScheduler {
	return &DiskScheduler{
		store:     store,
		pageQueue: make(map[PageID][]DiskReq),
		log:       logging.WithComponent("disk_scheduler"),
	}
}

func NewRequest(pageId PageID, data []byte, isWrite bool) DiskReq {
	return DiskReq{
		PageId: pageId,
		Data:   data,
		Write:  isWrite,
		RespCh: make(chan DiskResp, 1),
	}
}

// Schedule queues req and returns its response channel without waiting for
// the I/O. A RespCh left nil is created here.
func (ds *DiskScheduler) Schedule(req DiskReq) <-chan DiskResp {
	if req.RespCh == nil {
		req.RespCh = make(chan DiskResp, 1)
	}

	ds.mu.Lock()
	defer ds.mu.Unlock()

	if ds.closed {
		go func(respCh chan DiskResp) {
			respCh <- DiskResp{Success: false, Err: util.ErrDiskClosed}
		}(req.RespCh)
		return req.RespCh
	}

	queue, ok := ds.pageQueue[req.PageId]
	ds.pageQueue[req.PageId] = append(queue, req)

	// no queue means no worker is draining this page
	if !ok {
		ds.wg.Add(1)
		go ds.pageWorker(req.PageId)
	}

	return req.RespCh
}

func (ds *DiskScheduler) pageWorker(pageId PageID) {
	defer ds.wg.Done()

	for {
		ds.mu.Lock()
		queue := ds.pageQueue[pageId]
		if len(queue) == 0 {
			delete(ds.pageQueue, pageId)
			ds.mu.Unlock()
			return
		}
		req := queue[0]
		ds.pageQueue[pageId] = queue[1:]
		ds.mu.Unlock()

		req.RespCh <- ds.handle(req)
	}
}

func (ds *DiskScheduler) handle(req DiskReq) DiskResp {
	if req.Write {
		if err := ds.store.WritePage(req.PageId, req.Data); err != nil {
			ds.log.Warn("page write failed", "page_id", req.PageId, "error", err)
			return DiskResp{Success: false, Err: err}
		}
		return DiskResp{Success: true}
	}

	buf := req.Data
	if buf == nil {
		buf = make([]byte, PAGE_SIZE)
	}
	if err := ds.store.ReadPage(req.PageId, buf); err != nil {
		ds.log.Warn("page read failed", "page_id", req.PageId, "error", err)
		return DiskResp{Success: false, Err: err}
	}
	return DiskResp{Success: true, Data: buf}
}

// ReadPage schedules a read into buf and waits for it.
func (ds *DiskScheduler) ReadPage(pageId PageID, buf []byte) error {
	resp := <-ds.Schedule(NewRequest(pageId, buf, false))
	return resp.Err
}

// WritePage schedules a write of buf and waits for it.
func (ds *DiskScheduler) WritePage(pageId PageID, buf []byte) error {
	resp := <-ds.Schedule(NewRequest(pageId, buf, true))
	return resp.Err
}

func (ds *DiskScheduler) AllocatePage() (PageID, error) {
	return ds.store.AllocatePage()
}

func (ds *DiskScheduler) DeallocatePage(pageId PageID) error {
	return ds.store.DeallocatePage(pageId)
}

// Shutdown rejects new requests and waits for queued ones to finish.
func (ds *DiskScheduler) Shutdown() {
	ds.mu.Lock()
	ds.closed = true
	ds.mu.Unlock()

	ds.wg.Wait()
}

type DiskScheduler struct {
	store Store

	mu        sync.Mutex
	pageQueue map[PageID][]DiskReq
	closed    bool
	wg        sync.WaitGroup
	log       *slog.Logger
}

type DiskReq struct {
	PageId PageID
	Data   []byte
	Write  bool
	RespCh chan DiskResp
}

type DiskResp struct {
	Success bool
	Data    []byte
	Err     error
}
