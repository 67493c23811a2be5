package index

import (
	"encoding/binary"

	"github.com/cespare/xxhash/v2"
)

// HashFunc maps a key to a 64 bit value. The directory consumes its low bits,
// so it should spread sequential keys across them.
type HashFunc[K comparable] func(key K) uint64

type Integer interface {
	~int | ~int8 | ~int16 | ~int32 | ~int64 |
		~uint | ~uint8 | ~uint16 | ~uint32 | ~uint64 | ~uintptr
}

func IntegerHash[K Integer](key K) uint64 {
	var buf [8]byte
	binary.LittleEndian.PutUint64(buf[:], uint64(key))
	return xxhash.Sum64(buf[:])
}

func StringHash(key string) uint64 {
	return xxhash.Sum64String(key)
}
