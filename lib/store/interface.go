package store

import (
	"fmt"
	"io"
)

// --------------------------------------------------------------------------
// Interface Definition
// --------------------------------------------------------------------------

// IStore persists the encoded records of the update coordinator under their
// document id. Stores know nothing about versions; they keep opaque bytes.
// Failed operations return a *Error.
type IStore interface {
	// Set inserts or replaces the value for key. The store keeps its own copy of value.
	Set(key string, value []byte) (err error)
	// Get returns a copy of the value for key. The boolean reports whether the key exists.
	Get(key string) (value []byte, loaded bool, err error)
	// Has reports whether key exists.
	Has(key string) (loaded bool, err error)
	// Delete removes key. Deleting a missing key is not an error.
	Delete(key string) (err error)
	// Len returns the number of stored keys.
	Len() (n int, err error)
	// Range calls f for every key until f returns false. The value passed to f
	// must not be retained after f returns. The iteration order is not defined.
	Range(f func(key string, value []byte) bool) (err error)
	// Save writes a snapshot of all keys and values to w.
	Save(w io.Writer) (err error)
	// Load replaces the content of the store with a snapshot written by Save.
	Load(r io.Reader) (err error)
	// Close releases resources held by the store. Further calls fail.
	Close() (err error)
}

// --------------------------------------------------------------------------
// Custom Error Type
// --------------------------------------------------------------------------

// Error wraps a return code and a message.
type Error struct {
	Code RetCode // The return code
	Msg  string  // The error message.
}

// Error implements the error interface.
func (e *Error) Error() string {
	return fmt.Sprintf("StoreError (code %s): %s", e.Code, e.Msg)
}

// Is lets errors.Is match store errors by code.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Code == e.Code && (t.Msg == "" || t.Msg == e.Msg)
}

// NewError creates a new store error with the given code and message.
func NewError(code RetCode, msg string) *Error {
	return &Error{
		Code: code,
		Msg:  msg,
	}
}

// Errorf creates a new store error with a formatted message.
func Errorf(code RetCode, format string, args ...any) *Error {
	return NewError(code, fmt.Sprintf(format, args...))
}

// Sentinels for errors.Is checks, matching any message.
var (
	ErrInternal  = &Error{Code: RetCInternalError}
	ErrInvalid   = &Error{Code: RetCInvalidOperation}
	ErrCorrupted = &Error{Code: RetCCorrupted}
)

// --------------------------------------------------------------------------
// Return Codes
// --------------------------------------------------------------------------

type RetCode uint64

const (
	RetCSuccess              RetCode = iota // 0: Command executed successfully.
	RetCInternalError                       // 1: Command failed due to an internal error.
	RetCUnsupportedOperation                // 2: Operation is not supported by the store.
	RetCInvalidOperation                    // 3: Invalid operation, e.g. an empty key or a closed store.
	RetCCorrupted                           // 4: Stored or loaded data could not be decoded.
)

func (c RetCode) String() string {
	switch c {
	case RetCSuccess:
		return "Success"
	case RetCInternalError:
		return "InternalError"
	case RetCUnsupportedOperation:
		return "UnsupportedOperation"
	case RetCInvalidOperation:
		return "InvalidOperation"
	case RetCCorrupted:
		return "Corrupted"
	}
	return "Unknown"
}
