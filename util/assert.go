//go:build !release

package util

import "fmt"

// Assert panics when cond is false. Builds tagged release compile it out.
func Assert(cond bool, format string, args ...any) {
	if !cond {
		panic(fmt.Sprintf("assertion failed: "+format, args...))
	}
}
