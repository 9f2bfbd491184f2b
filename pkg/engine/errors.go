package engine

import (
	"errors"
	"fmt"

	"github.com/harrisonrobin/todovault/pkg/model"
)

// TransportError is a failed exchange with the remote: unreachable, timed
// out, or answered with a non-2xx status.
type TransportError struct {
	Op  string
	Err error
}

func (e *TransportError) Error() string { return fmt.Sprintf("%s: %v", e.Op, e.Err) }
func (e *TransportError) Unwrap() error { return e.Err }

// ValidationError is a malformed remote record. The record is dropped and
// the run continues.
type ValidationError struct {
	Err error
}

func (e *ValidationError) Error() string { return "dropped record: " + e.Err.Error() }
func (e *ValidationError) Unwrap() error { return e.Err }

// ConflictAnomaly is a second local document claiming an entity. The later
// scanned document wins.
type ConflictAnomaly struct {
	Kind    model.Kind
	ID      string
	Kept    string
	Dropped string
}

func (e *ConflictAnomaly) Error() string {
	return fmt.Sprintf("duplicate documents for %s %s: kept %s, ignored %s", e.Kind, e.ID, e.Kept, e.Dropped)
}

// StorageError is a failed document read, write or delete. It aborts the
// current entity only.
type StorageError struct {
	Op   string
	Path string
	Err  error
}

func (e *StorageError) Error() string {
	if e.Path == "" {
		return fmt.Sprintf("%s: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("%s %s: %v", e.Op, e.Path, e.Err)
}
func (e *StorageError) Unwrap() error { return e.Err }

// IsTransport reports whether err came from the remote exchange.
func IsTransport(err error) bool {
	var te *TransportError
	return errors.As(err, &te)
}

// IsStorage reports whether err came from document storage.
func IsStorage(err error) bool {
	var se *StorageError
	return errors.As(err, &se)
}
