package domain

import (
	"context"
	"io"
	"time"
)

// BlobWriter uploads data to object storage.
type BlobWriter interface {
	Put(ctx context.Context, path string, data io.Reader, contentType string) error
	PutMultipart(ctx context.Context, path string, data io.Reader, partSize int64) error
}

// Archiver copies settled ledger state to cold storage.
type Archiver interface {
	ArchiveSettlement(ctx context.Context, market Market, settlement Settlement) (string, error)
	ArchiveAudit(ctx context.Context, before time.Time) (int64, error)
}
