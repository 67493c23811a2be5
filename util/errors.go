package util

import (
	"errors"
	"fmt"
)

var (
	ErrPoolExhausted     = errors.New("no free or evictable frame")
	ErrPagePinned        = errors.New("page is pinned")
	ErrInvalidPageId     = errors.New("invalid page id")
	ErrPageNotFound      = errors.New("page not resident")
	ErrPinUnderflow      = errors.New("page is not pinned")
	ErrBucketNotFound    = errors.New("bucket not found")
	ErrDirectoryOverflow = errors.New("hash directory cannot split further")
	ErrInvalidPoolSize   = errors.New("invalid pool size")
	ErrInvalidBucketSize = errors.New("invalid bucket size")
	ErrPageTooLarge      = errors.New("data exceeds page size")
	ErrDiskClosed        = errors.New("disk is closed")
)

// PetroError attaches the failing operation and page to one of the sentinel
// errors above. Match it with errors.Is against the sentinel.
type PetroError struct {
	Message string
	Err     error
}

func NewError(op string, pageId int64, err error) *PetroError {
	return &PetroError{
		Message: fmt.Sprintf("%s page %d", op, pageId),
		Err:     err,
	}
}

func (e *PetroError) Error() string {
	if e.Err == nil {
		return e.Message
	}
	return e.Message + ": " + e.Err.Error()
}

func (e *PetroError) Unwrap() error {
	return e.Err
}
