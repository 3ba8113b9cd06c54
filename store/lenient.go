package store

import (
	"context"
	"errors"
	"log/slog"
)

// Lenient wraps a Store and never returns errors. Failures are logged and
// reported as false, "", nil or an empty slice, so callers that only need a
// yes/no answer can skip error handling. Use Store directly to tell a
// malformed path from a missing document or a remote failure.
type Lenient struct {
	store  *Store
	logger *slog.Logger
}

// NewLenient wraps s. A nil logger uses the store's logger.
func NewLenient(s *Store, logger *slog.Logger) *Lenient {
	if logger == nil {
		logger = s.logger
	}
	return &Lenient{store: s, logger: logger}
}

// Store returns the wrapped Store.
func (l *Lenient) Store() *Store {
	return l.store
}

func (l *Lenient) logFailure(msg, path string, err error) {
	l.logger.Error(msg,
		"path", path,
		"kind", KindOf(err).String(),
		"error", err,
	)
}

// ExistsAt reports whether path exists (see Store.Exists); false on any error.
func (l *Lenient) ExistsAt(ctx context.Context, path string, fieldNames ...string) bool {
	ok, err := l.store.Exists(ctx, path, fieldNames...)
	if err != nil {
		l.logFailure("error checking existence", path, err)
		return false
	}
	return ok
}

// Upsert merge-writes data into a document; false on any error.
func (l *Lenient) Upsert(ctx context.Context, path string, data map[string]any) bool {
	if err := l.store.Upsert(ctx, path, data); err != nil {
		l.logFailure("error upserting document", path, err)
		return false
	}
	return true
}

// Create adds a document to a collection and returns its id; "" on any error.
func (l *Lenient) Create(ctx context.Context, path string, data map[string]any, id string) string {
	id, err := l.store.Create(ctx, path, data, id)
	if err != nil {
		l.logFailure("error creating document", path, err)
		return ""
	}
	return id
}

// Update writes fields of an existing document; false on any error,
// including a missing document.
func (l *Lenient) Update(ctx context.Context, path string, changes map[string]any) bool {
	if err := l.store.Update(ctx, path, changes); err != nil {
		l.logFailure("error updating document", path, err)
		return false
	}
	return true
}

// ReadDocument returns one document; nil on any error. A missing document
// yields a record holding only the id field.
func (l *Lenient) ReadDocument(ctx context.Context, path string, opts ReadOptions) Record {
	rec, _, err := l.store.Get(ctx, path, opts)
	if err != nil {
		l.logFailure("error fetching document", path, err)
		return nil
	}
	return rec
}

// ReadCollection returns matching documents; an empty slice on any error.
func (l *Lenient) ReadCollection(ctx context.Context, path string, opts ReadOptions) []Record {
	recs, err := l.store.List(ctx, path, opts)
	if err != nil {
		l.logFailure("error fetching collection", path, err)
		return []Record{}
	}
	return recs
}

// DeleteAt removes a document, or a whole collection when allowCollection is
// set. A collection path without allowCollection is ignored. Failures are
// only logged.
func (l *Lenient) DeleteAt(ctx context.Context, path string, allowCollection bool) {
	err := l.store.Delete(ctx, path, DeleteOptions{AllowCollection: allowCollection})
	switch {
	case err == nil:
	case errors.Is(err, ErrCollectionDeleteDisabled):
		l.logger.Debug("collection delete skipped", "path", path)
	default:
		l.logFailure("error removing path", path, err)
	}
}

// Increment adds delta to a numeric field; false on any error.
func (l *Lenient) Increment(ctx context.Context, path, field string, delta float64) bool {
	if err := l.store.Increment(ctx, path, field, delta); err != nil {
		l.logFailure("error incrementing field", path, err)
		return false
	}
	return true
}
