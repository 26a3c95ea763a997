package update

import (
	"errors"
	"fmt"
)

var (
	// ErrVersionConflict matches every *ConflictError.
	ErrVersionConflict = errors.New("update: version conflict")
	// ErrInvalidDocument is returned for documents without a usable id or version.
	ErrInvalidDocument = errors.New("update: invalid document")
	// ErrSkipped is returned when a skip option prevented the write.
	ErrSkipped = errors.New("update: skipped")
)

// ConflictError reports a failed optimistic concurrency check.
type ConflictError struct {
	ID       string
	Expected int64 // version requested by the caller
	Actual   int64 // version found in the store (0 if the document is missing)
	Exists   bool
}

func (e *ConflictError) Error() string {
	switch {
	case e.Expected == 1 && !e.Exists:
		return fmt.Sprintf("version conflict for %s: document not found, expected it to exist", e.ID)
	case e.Expected < 0:
		return fmt.Sprintf("version conflict for %s: document exists with version %d, expected none", e.ID, e.Actual)
	case !e.Exists:
		return fmt.Sprintf("version conflict for %s: expected version %d, document not found", e.ID, e.Expected)
	}
	return fmt.Sprintf("version conflict for %s: expected version %d, actual %d", e.ID, e.Expected, e.Actual)
}

func (e *ConflictError) Is(target error) bool {
	return target == ErrVersionConflict
}

// checkVersion applies the optimistic concurrency rules:
//
//	requested > 1   the stored version must equal requested
//	requested == 1  the document must exist
//	requested < 0   the document must not exist
//	requested == 0  no check
func checkVersion(id string, requested int64, exists bool, actual int64) error {
	ok := true
	switch {
	case requested > 1:
		ok = exists && actual == requested
	case requested == 1:
		ok = exists
	case requested < 0:
		ok = !exists
	}
	if ok {
		return nil
	}
	return &ConflictError{ID: id, Expected: requested, Actual: actual, Exists: exists}
}
