// Package docpath parses slash-delimited document store paths.
//
// A path alternates collection and document segments:
//
//	users                  collection
//	users/alice            document
//	users/alice/orders     collection
//	users/alice/orders/42  document
//
// An even segment count addresses a document, an odd count a collection.
package docpath

import (
	"errors"
	"fmt"
	"strings"
)

// ErrInvalid is returned for paths that cannot address a document or collection.
var ErrInvalid = errors.New("docpath: invalid path")

// maxSegmentBytes mirrors the document id limit of hosted document stores.
const maxSegmentBytes = 1500

// Kind is the addressing mode of a path.
type Kind int

const (
	// KindCollection addresses a collection (odd segment count).
	KindCollection Kind = iota + 1

	// KindDocument addresses a single document (even segment count).
	KindDocument
)

func (k Kind) String() string {
	switch k {
	case KindCollection:
		return "collection"
	case KindDocument:
		return "document"
	default:
		return "unknown"
	}
}

// Classify reports the addressing mode of raw by counting "/"-separated
// segments. It performs no validation: "a/" and "a//b" are counted as-is.
// Use Parse to reject malformed paths.
func Classify(raw string) Kind {
	if len(strings.Split(raw, "/"))%2 == 0 {
		return KindDocument
	}
	return KindCollection
}

// Path is a validated document or collection path.
// The zero value is not a valid path.
type Path struct {
	segments []string
}

// Parse validates raw and returns the path it addresses.
func Parse(raw string) (Path, error) {
	if raw == "" {
		return Path{}, fmt.Errorf("%w: empty path", ErrInvalid)
	}
	if strings.HasPrefix(raw, "/") || strings.HasSuffix(raw, "/") {
		return Path{}, fmt.Errorf("%w: %q has a leading or trailing slash", ErrInvalid, raw)
	}

	segments := strings.Split(raw, "/")
	for i, seg := range segments {
		if err := validateSegment(seg); err != nil {
			return Path{}, fmt.Errorf("%w: %q segment %d: %v", ErrInvalid, raw, i, err)
		}
	}
	return Path{segments: segments}, nil
}

// MustParse is like Parse but panics on error. Intended for constants and tests.
func MustParse(raw string) Path {
	p, err := Parse(raw)
	if err != nil {
		panic(err)
	}
	return p
}

// Join builds a path from individual segments.
func Join(segments ...string) (Path, error) {
	if len(segments) == 0 {
		return Path{}, fmt.Errorf("%w: no segments", ErrInvalid)
	}
	for i, seg := range segments {
		if err := validateSegment(seg); err != nil {
			return Path{}, fmt.Errorf("%w: segment %d: %v", ErrInvalid, i, err)
		}
	}
	return Path{segments: append([]string(nil), segments...)}, nil
}

func validateSegment(seg string) error {
	switch {
	case seg == "":
		return errors.New("empty segment")
	case strings.Contains(seg, "/"):
		return errors.New("segment contains a slash")
	case seg == "." || seg == "..":
		return fmt.Errorf("reserved segment %q", seg)
	case len(seg) > 4 && strings.HasPrefix(seg, "__") && strings.HasSuffix(seg, "__"):
		return fmt.Errorf("reserved segment %q", seg)
	case len(seg) > maxSegmentBytes:
		return fmt.Errorf("segment exceeds %d bytes", maxSegmentBytes)
	}
	return nil
}

// IsZero reports whether p is the zero Path.
func (p Path) IsZero() bool { return len(p.segments) == 0 }

// Kind returns the addressing mode of p.
func (p Path) Kind() Kind {
	if len(p.segments)%2 == 0 {
		return KindDocument
	}
	return KindCollection
}

// IsDocument reports whether p addresses a single document.
func (p Path) IsDocument() bool { return !p.IsZero() && p.Kind() == KindDocument }

// IsCollection reports whether p addresses a collection.
func (p Path) IsCollection() bool { return !p.IsZero() && p.Kind() == KindCollection }

// Segments returns a copy of the path segments.
func (p Path) Segments() []string {
	return append([]string(nil), p.segments...)
}

// String returns the slash-joined path.
func (p Path) String() string {
	return strings.Join(p.segments, "/")
}

// ID returns the last segment: the document id or the collection name.
func (p Path) ID() string {
	if p.IsZero() {
		return ""
	}
	return p.segments[len(p.segments)-1]
}

// CollectionPath returns the collection a document belongs to,
// or the path itself for a collection.
func (p Path) CollectionPath() string {
	if p.IsDocument() {
		return strings.Join(p.segments[:len(p.segments)-1], "/")
	}
	return p.String()
}

// Parent returns the enclosing path: a document's collection, or the document
// owning a subcollection. Root collections have no parent.
func (p Path) Parent() (Path, bool) {
	if len(p.segments) < 2 {
		return Path{}, false
	}
	return Path{segments: p.segments[:len(p.segments)-1:len(p.segments)-1]}, true
}

// Child appends one segment, turning a collection into a document path and a
// document into a subcollection path.
func (p Path) Child(id string) (Path, error) {
	if p.IsZero() {
		return Path{}, fmt.Errorf("%w: child of zero path", ErrInvalid)
	}
	if err := validateSegment(id); err != nil {
		return Path{}, fmt.Errorf("%w: %v", ErrInvalid, err)
	}
	segments := make([]string, 0, len(p.segments)+1)
	segments = append(segments, p.segments...)
	return Path{segments: append(segments, id)}, nil
}
