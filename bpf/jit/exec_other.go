//go:build !(linux && amd64)

package jit

import (
	"errors"
	"fmt"
	"runtime"
	"unsafe"
)

var errUnsupportedPlatform = errors.New("native code can only run on linux/amd64")

func jitcall(_, _ unsafe.Pointer) {
	panic(errUnsupportedPlatform)
}

func mapExecutable(_ []byte) ([]byte, error) {
	return nil, fmt.Errorf("%w: running on %s/%s", errUnsupportedPlatform, runtime.GOOS, runtime.GOARCH)
}

func unmapExecutable(_ []byte) error {
	return nil
}
