package storage

import (
	"errors"
	"io"
)

func closeWithError(c io.Closer, err *error) {
	if cerr := c.Close(); cerr != nil {
		*err = errors.Join(*err, cerr)
	}
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
