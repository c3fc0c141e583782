package deck

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/spaolacci/murmur3"

	reperr "github.com/expertsure/expertsure/internal/errors"
	"github.com/expertsure/expertsure/internal/storage"
)

// ArtifactFilename is the object name of the rendered deck.
const ArtifactFilename = "deck.json"

// Fingerprint hashes a document's content. GeneratedAt is excluded so
// regenerating an unchanged deck yields the same fingerprint and the
// upload can be skipped.
func Fingerprint(doc *Document) (string, error) {
	stable := *doc
	stable.GeneratedAt = time.Time{}

	data, err := json.Marshal(&stable)
	if err != nil {
		return "", fmt.Errorf("deck: marshal for fingerprint: %w", err)
	}
	h1, h2 := murmur3.Sum128(data)
	return fmt.Sprintf("%016x%016x", h1, h2), nil
}

// Writer persists deck artifacts to object storage.
type Writer struct {
	store storage.ObjectStorage
}

// NewWriter creates a deck writer on top of the given object store.
func NewWriter(store storage.ObjectStorage) *Writer {
	return &Writer{store: store}
}

// WriteResult reports where an artifact landed and whether anything
// was actually uploaded.
type WriteResult struct {
	Key         string
	Fingerprint string
	Skipped     bool
}

// Write uploads the document unless its fingerprint matches the
// previous one, in which case the existing artifact is left as is.
func (w *Writer) Write(ctx context.Context, doc *Document, prevFingerprint string) (*WriteResult, error) {
	fp, err := Fingerprint(doc)
	if err != nil {
		return nil, reperr.Wrap(reperr.ErrCategoryStorage, reperr.CodeUploadFailed,
			"fingerprint deck", err)
	}

	key := storage.ArtifactKey(doc.ProjectID, ArtifactFilename)
	if fp == prevFingerprint {
		// Skip only when the artifact is actually still there; an
		// object removed out of band gets rewritten.
		if ok, err := w.store.Exists(ctx, key); err == nil && ok {
			return &WriteResult{Key: key, Fingerprint: fp, Skipped: true}, nil
		}
	}

	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return nil, reperr.Wrap(reperr.ErrCategoryStorage, reperr.CodeUploadFailed,
			"marshal deck", err)
	}
	if err := w.store.Put(ctx, key, bytes.NewReader(data)); err != nil {
		return nil, reperr.Wrap(reperr.ErrCategoryStorage, reperr.CodeUploadFailed,
			"upload deck", err)
	}
	return &WriteResult{Key: key, Fingerprint: fp}, nil
}
