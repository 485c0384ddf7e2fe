//go:build !unix

package mstore

import (
	"errors"
	"os"
)

var errUnsupported = errors.New("memory mapping is not supported on this platform")

func mapSlice(*os.File, int64, int) ([]byte, error) { return nil, errUnsupported }

func syncSlice([]byte) error { return errUnsupported }

func unmapSlice([]byte) error { return errUnsupported }
