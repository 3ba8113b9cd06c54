package store

import (
	"errors"
	"fmt"

	"github.com/jacentio/pathstore/docpath"
)

var (
	// ErrInvalidPath is returned when a path is empty or malformed.
	ErrInvalidPath = docpath.ErrInvalid

	// ErrNotDocument is returned when a document path was required but a collection path was given.
	ErrNotDocument = errors.New("pathstore: path does not address a document")

	// ErrNotCollection is returned when a collection path was required but a document path was given.
	ErrNotCollection = errors.New("pathstore: path does not address a collection")

	// ErrNotFound is returned when an update or increment targets a missing document.
	ErrNotFound = errors.New("pathstore: document not found")

	// ErrCollectionDeleteDisabled is returned when Delete receives a collection path
	// without DeleteOptions.AllowCollection.
	ErrCollectionDeleteDisabled = errors.New("pathstore: collection delete not allowed")

	// ErrInvalidField is returned for empty field names and for writes that
	// name one of the table key attributes.
	ErrInvalidField = errors.New("pathstore: invalid field name")

	// ErrInvalidQuery is returned for unknown operators or malformed operands.
	ErrInvalidQuery = errors.New("pathstore: invalid query")

	// ErrPartialDelete is returned when a batched collection delete leaves items unprocessed.
	ErrPartialDelete = errors.New("pathstore: collection delete incomplete")
)

// OpError records a failed operation and the path it addressed.
type OpError struct {
	Op   string
	Path string
	Err  error
}

func (e *OpError) Error() string {
	return fmt.Sprintf("pathstore: %s %q: %v", e.Op, e.Path, e.Err)
}

func (e *OpError) Unwrap() error { return e.Err }

// ErrorKind groups errors by how a caller should react to them.
type ErrorKind int

const (
	// ErrorKindNone means the error was nil.
	ErrorKindNone ErrorKind = iota

	// ErrorKindInvalidPath means the path could not be parsed.
	ErrorKindInvalidPath

	// ErrorKindPathMismatch means a document path was given where a collection was required, or vice versa.
	ErrorKindPathMismatch

	// ErrorKindNotFound means the addressed document does not exist.
	ErrorKindNotFound

	// ErrorKindInvalidArgument means the request was rejected locally (bad field name,
	// bad query, disabled collection delete).
	ErrorKindInvalidArgument

	// ErrorKindRemote means the document store returned an error.
	ErrorKindRemote
)

func (k ErrorKind) String() string {
	switch k {
	case ErrorKindNone:
		return "none"
	case ErrorKindInvalidPath:
		return "invalid_path"
	case ErrorKindPathMismatch:
		return "path_mismatch"
	case ErrorKindNotFound:
		return "not_found"
	case ErrorKindInvalidArgument:
		return "invalid_argument"
	default:
		return "remote"
	}
}

// KindOf classifies err. Errors that carry none of the package sentinels
// are attributed to the remote store.
func KindOf(err error) ErrorKind {
	switch {
	case err == nil:
		return ErrorKindNone
	case errors.Is(err, ErrInvalidPath):
		return ErrorKindInvalidPath
	case errors.Is(err, ErrNotDocument), errors.Is(err, ErrNotCollection):
		return ErrorKindPathMismatch
	case errors.Is(err, ErrNotFound):
		return ErrorKindNotFound
	case errors.Is(err, ErrInvalidField), errors.Is(err, ErrInvalidQuery), errors.Is(err, ErrCollectionDeleteDisabled):
		return ErrorKindInvalidArgument
	default:
		return ErrorKindRemote
	}
}
