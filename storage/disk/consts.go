package disk

// PageID identifies a fixed-size block on backing storage.
type PageID int64

const (
	PAGE_SIZE                    = 4096
	DEFAULT_PAGE_CAPACITY        = 16
	INVALID_PAGE_ID       PageID = -1
)

// Store is the page-granular contract every backing store in this package
// satisfies. Each call is synchronous and moves whole pages only.
type Store interface {
	AllocatePage() (PageID, error)
	DeallocatePage(pageId PageID) error
	ReadPage(pageId PageID, buf []byte) error
	WritePage(pageId PageID, buf []byte) error
}
