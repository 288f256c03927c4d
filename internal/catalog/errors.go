package catalog

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/bensupplier/catalog/internal/platform/httpx"
)

var (
	// ErrNotFound reports that no product has the requested id.
	ErrNotFound = httpx.NewError(httpx.ErrNotFound, "Product not found")
	// ErrValidation reports malformed or missing input.
	ErrValidation = httpx.NewError(httpx.ErrValidation, "invalid product")
	// ErrDuplicate reports an id collision on insert.
	ErrDuplicate = httpx.NewError(httpx.ErrConflict, "product already exists")
	// ErrStorage reports an unreachable or failing storage gateway.
	ErrStorage = errors.New("catalog: storage failure")
	// ErrMedia reports that an image could not be accepted or written.
	ErrMedia = errors.New("catalog: media failure")
)

// ValidationError lists per-field problems. It matches ErrValidation.
type ValidationError struct {
	Fields map[string]string
}

func (e *ValidationError) Error() string {
	keys := make([]string, 0, len(e.Fields))
	for k := range e.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, k+" "+e.Fields[k])
	}
	return strings.Join(parts, "; ")
}

func (e *ValidationError) Unwrap() error { return ErrValidation }

type storageError struct{ err error }

func (e *storageError) Error() string { return fmt.Sprintf("%v: %v", ErrStorage, e.err) }

func (e *storageError) Unwrap() []error { return []error{ErrStorage, e.err} }

type mediaError struct{ err error }

func (e *mediaError) Error() string { return e.err.Error() }

func (e *mediaError) Unwrap() []error { return []error{ErrMedia, e.err} }

func wrapStorage(err error) error {
	if err == nil || errors.Is(err, ErrStorage) || errors.Is(err, ErrNotFound) || errors.Is(err, ErrDuplicate) {
		return err
	}
	return &storageError{err: err}
}

func wrapMedia(err error) error {
	if err == nil || errors.Is(err, ErrMedia) {
		return err
	}
	return &mediaError{err: err}
}
