// Package storage provides object storage for uploaded datasets,
// slide templates, and rendered deck artifacts.
package storage

import (
	"context"
	"errors"
	"io"
)

// Common errors for storage operations.
var (
	ErrObjectNotFound = errors.New("object not found")
	ErrUploadFailed   = errors.New("upload failed")
	ErrDownloadFailed = errors.New("download failed")
	ErrDeleteFailed   = errors.New("delete failed")
)

// ObjectStorage abstracts the object store holding project inputs and
// outputs. Implementations include S3 and the local filesystem.
type ObjectStorage interface {
	// Put streams an object into storage under key.
	Put(ctx context.Context, key string, r io.Reader) error

	// Get opens an object for reading. The caller closes the reader.
	// Returns ErrObjectNotFound if the key does not exist.
	Get(ctx context.Context, key string) (io.ReadCloser, error)

	// Exists reports whether the key is present.
	Exists(ctx context.Context, key string) (bool, error)

	// Delete removes an object. Deleting a missing key is not an error.
	Delete(ctx context.Context, key string) error

	// List returns all keys under the given prefix.
	List(ctx context.Context, prefix string) ([]string, error)
}

// Well-known key prefixes. Every object a project owns lives under one
// of these, keyed by project ID, so cleanup is a prefix delete.
const (
	DatasetPrefix  = "datasets/"
	SchemaPrefix   = "schemas/"
	TemplatePrefix = "templates/"
	ArtifactPrefix = "artifacts/"
)

// DatasetKey returns the object key for a project's uploaded dataset.
func DatasetKey(projectID, filename string) string {
	return DatasetPrefix + projectID + "/" + filename
}

// SchemaKey returns the object key for a project's field schema.
func SchemaKey(projectID, filename string) string {
	return SchemaPrefix + projectID + "/" + filename
}

// TemplateKey returns the object key for a project's slide template.
func TemplateKey(projectID, filename string) string {
	return TemplatePrefix + projectID + "/" + filename
}

// ArtifactKey returns the object key for a project's rendered deck.
func ArtifactKey(projectID, filename string) string {
	return ArtifactPrefix + projectID + "/" + filename
}

// ProjectPrefixes returns every key prefix a project stores objects
// under, for whole-project cleanup.
func ProjectPrefixes(projectID string) []string {
	return []string{
		DatasetPrefix + projectID + "/",
		SchemaPrefix + projectID + "/",
		TemplatePrefix + projectID + "/",
		ArtifactPrefix + projectID + "/",
	}
}
