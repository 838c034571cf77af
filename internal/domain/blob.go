package domain

import (
	"context"
	"io"
	"time"
)

// BlobWriter uploads objects to blob storage.
type BlobWriter interface {
	Put(ctx context.Context, path string, data io.Reader, contentType string) error
}

// Archiver writes cold-storage snapshots of old transaction history. The
// history is append-only; archival copies rows out but never deletes them.
type Archiver interface {
	// ArchiveTransactions snapshots all records created before the cutoff
	// and returns the number of records written.
	ArchiveTransactions(ctx context.Context, before time.Time) (int, error)
}
