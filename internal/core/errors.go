package core

import (
	"errors"
	"fmt"
)

var (
	ErrUnsupported = errors.New("unsupported source")
	ErrDuplicate   = errors.New("transfer already exists")
)

// DuplicateError names the unfinished transfer that already covers a source.
type DuplicateError struct {
	ID int64
}

func (e *DuplicateError) Error() string {
	return fmt.Sprintf("transfer already exists: %d", e.ID)
}

func (e *DuplicateError) Unwrap() error {
	return ErrDuplicate
}
