package domain

import (
	"context"
	"io"
	"time"
)

// BlobInfo describes a stored object.
type BlobInfo struct {
	Path         string
	Size         int64
	ContentType  string
	LastModified time.Time
}

// BlobWriter uploads data to object storage.
type BlobWriter interface {
	Put(ctx context.Context, path string, data io.Reader, contentType string) error
	PutMultipart(ctx context.Context, path string, data io.Reader, partSize int64) error
}

// BlobReader retrieves data from object storage.
type BlobReader interface {
	Get(ctx context.Context, path string) (io.ReadCloser, error)
	List(ctx context.Context, prefix string) ([]BlobInfo, error)
	Exists(ctx context.Context, path string) (bool, error)
}

// Archiver moves aged terminal arenas and audit rows from the database to
// cold storage.
type Archiver interface {
	// ArchiveArenas exports up to limit terminal arenas older than the cutoff
	// and removes them from the primary store. It returns how many were
	// archived.
	ArchiveArenas(ctx context.Context, before time.Time, limit int) (int64, error)
	// ArchiveAudit exports audit rows older than the cutoff and prunes them.
	ArchiveAudit(ctx context.Context, before time.Time) (int64, error)
}
