package store

import (
	"bufio"
	"io"

	"github.com/ValentinKolb/dDoc/lib/codec"
)

// WriteSnapshot streams every pair produced by rangeFn to w as a single
// codec map (MAP_ENTRY_ITER), so snapshots of any size are written without
// buffering the whole store.
func WriteSnapshot(w io.Writer, rangeFn func(f func(key string, value []byte) bool) error) error {
	var rangeErr error
	entries := codec.MapWriter(func(yield func(string, any) bool) {
		rangeErr = rangeFn(func(key string, value []byte) bool {
			return yield(key, value)
		})
	})
	if err := codec.New().Marshal(w, entries); err != nil {
		return Errorf(RetCInternalError, "write snapshot: %v", err)
	}
	if rangeErr != nil {
		return rangeErr
	}
	return nil
}

// ReadSnapshot decodes a snapshot written by WriteSnapshot and passes every
// pair to set.
func ReadSnapshot(r io.Reader, set func(key string, value []byte) error) error {
	v, err := codec.New().Unmarshal(bufio.NewReader(r))
	if err != nil {
		return Errorf(RetCCorrupted, "read snapshot: %v", err)
	}
	var entries map[string]any
	switch m := v.(type) {
	case map[string]any:
		entries = m
	case nil:
	default:
		return Errorf(RetCCorrupted, "read snapshot: expected a map, found %T", v)
	}
	for key, raw := range entries {
		value, ok := raw.([]byte)
		if !ok {
			return Errorf(RetCCorrupted, "read snapshot: value of %q is %T, not bytes", key, raw)
		}
		if err := set(key, value); err != nil {
			return err
		}
	}
	return nil
}
