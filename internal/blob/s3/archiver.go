package s3blob

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/alanyoungcy/tradepost/internal/domain"
)

// TransactionArchiveStore provides the read access the archiver needs. The
// Postgres transaction store satisfies it through ListBefore.
type TransactionArchiveStore interface {
	ListBefore(ctx context.Context, before time.Time) ([]domain.TransactionRecord, error)
}

// Archiver implements domain.Archiver by querying old transaction records,
// serializing them to JSONL, and uploading the snapshot to blob storage.
//
// The history table is append-only and archival never deletes from it; the
// snapshot exists so operators can prune or inspect cold history out of band.
type Archiver struct {
	writer       domain.BlobWriter
	transactions TransactionArchiveStore
	prefix       string
}

// NewArchiver creates a new Archiver writing snapshots under the given key
// prefix ("history" when empty).
func NewArchiver(writer domain.BlobWriter, transactions TransactionArchiveStore, prefix string) *Archiver {
	if prefix == "" {
		prefix = "history"
	}
	return &Archiver{
		writer:       writer,
		transactions: transactions,
		prefix:       prefix,
	}
}

// ArchiveTransactions snapshots every record created strictly before the
// cutoff to history/YYYY/MM/DD/transactions-<unix>.jsonl and returns the
// number of records written. An empty window uploads nothing.
func (a *Archiver) ArchiveTransactions(ctx context.Context, before time.Time) (int, error) {
	records, err := a.transactions.ListBefore(ctx, before)
	if err != nil {
		return 0, fmt.Errorf("s3blob: archive transactions query: %w", err)
	}
	if len(records) == 0 {
		return 0, nil
	}

	buf, err := marshalJSONL(records)
	if err != nil {
		return 0, fmt.Errorf("s3blob: archive transactions marshal: %w", err)
	}

	path := a.archivePath(before)
	if err := a.writer.Put(ctx, path, bytes.NewReader(buf), "application/x-ndjson"); err != nil {
		return 0, fmt.Errorf("s3blob: archive transactions upload: %w", err)
	}

	return len(records), nil
}

// archivePath builds the object key for a snapshot, partitioned by the
// cutoff date:
//
//	history/2026/08/28/transactions-1787500800.jsonl
func (a *Archiver) archivePath(before time.Time) string {
	return fmt.Sprintf("%s/%s/transactions-%d.jsonl",
		a.prefix, before.UTC().Format("2006/01/02"), before.Unix())
}

// marshalJSONL serialises records as newline-delimited JSON, one compact
// line per record.
func marshalJSONL(records []domain.TransactionRecord) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)

	for i, rec := range records {
		if err := enc.Encode(rec); err != nil {
			return nil, fmt.Errorf("jsonl encode record %d: %w", i, err)
		}
	}
	return buf.Bytes(), nil
}

// Compile-time interface check.
var _ domain.Archiver = (*Archiver)(nil)
