package util

import (
	"fmt"

	"github.com/vmihailenco/msgpack"
)

// ToByteSlice encodes obj into a zero padded buffer of pageSize bytes.
func ToByteSlice[T any](obj T, pageSize int) ([]byte, error) {
	res := make([]byte, pageSize)

	data, err := msgpack.Marshal(obj)
	if err != nil {
		return nil, err
	}
	if len(data) > pageSize {
		return nil, fmt.Errorf("encoded %d bytes into %d byte page: %w", len(data), pageSize, ErrPageTooLarge)
	}
	copy(res, data)

	return res, nil
}

// ToStruct decodes a buffer produced by ToByteSlice. Trailing padding is ignored.
func ToStruct[T any](data []byte) (T, error) {
	var res T

	if err := msgpack.Unmarshal(data, &res); err != nil {
		return res, err
	}

	return res, nil
}
