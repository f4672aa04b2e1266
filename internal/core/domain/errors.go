package domain

import (
	"errors"
	"fmt"
)

var (
	ErrInvalidArgument = errors.New("invalid argument")
	ErrStoreOperation  = errors.New("store operation failed")
)

// InvalidArgument builds an error matching ErrInvalidArgument.
func InvalidArgument(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidArgument, fmt.Sprintf(format, args...))
}

// StoreError wraps a backing store failure with the operation context.
type StoreError struct {
	Op        string
	SessionID string
	RecordID  string
	Err       error
}

func (e *StoreError) Error() string {
	if e.RecordID != "" {
		return fmt.Sprintf("%s session=%s record=%s: %v", e.Op, e.SessionID, e.RecordID, e.Err)
	}
	return fmt.Sprintf("%s session=%s: %v", e.Op, e.SessionID, e.Err)
}

func (e *StoreError) Unwrap() error {
	return e.Err
}

func (e *StoreError) Is(target error) bool {
	return target == ErrStoreOperation
}
