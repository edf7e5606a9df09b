package s3blob

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/alanyoungcy/marketledger/internal/domain"
)

// auditPurger is implemented by the SQL audit stores.
type auditPurger interface {
	Purge(ctx context.Context, before time.Time) (int64, error)
}

// SettlementSnapshot is the document written for every settled market.
type SettlementSnapshot struct {
	Market     domain.Market     `json:"market"`
	Settlement domain.Settlement `json:"settlement"`
	ArchivedAt time.Time         `json:"archived_at"`
}

// Archiver implements domain.Archiver on top of a BlobWriter.
//
// Settlements land at settlements/<yyyy-mm>/<market>.json keyed by the
// resolution month. Audit exports land at audit/<yyyy-mm-dd>.jsonl and the
// exported rows are purged afterwards when the store supports it.
type Archiver struct {
	writer domain.BlobWriter
	audit  domain.AuditStore
	now    func() time.Time
}

// NewArchiver creates an Archiver. audit may be nil when only settlement
// snapshots are wanted.
func NewArchiver(writer domain.BlobWriter, audit domain.AuditStore) *Archiver {
	return &Archiver{writer: writer, audit: audit, now: func() time.Time { return time.Now().UTC() }}
}

// ArchiveSettlement uploads a JSON snapshot of a settled market and returns
// its object path.
func (a *Archiver) ArchiveSettlement(ctx context.Context, market domain.Market, settlement domain.Settlement) (string, error) {
	at := a.now()
	if market.ResolvedAt != nil {
		at = *market.ResolvedAt
	}
	path := fmt.Sprintf("settlements/%s/%s.json", at.Format("2006-01"), market.ID)

	data, err := json.Marshal(SettlementSnapshot{Market: market, Settlement: settlement, ArchivedAt: a.now()})
	if err != nil {
		return "", fmt.Errorf("s3blob: marshal settlement %s: %w", market.ID, err)
	}
	if err := a.writer.Put(ctx, path, bytes.NewReader(data), "application/json"); err != nil {
		return "", fmt.Errorf("s3blob: archive settlement %s: %w", market.ID, err)
	}
	return path, nil
}

// ArchiveAudit exports audit entries older than before as JSONL and returns
// how many were written.
func (a *Archiver) ArchiveAudit(ctx context.Context, before time.Time) (int64, error) {
	if a.audit == nil {
		return 0, nil
	}
	entries, err := a.audit.List(ctx, domain.ListOpts{Until: &before})
	if err != nil {
		return 0, fmt.Errorf("s3blob: archive audit query: %w", err)
	}
	if len(entries) == 0 {
		return 0, nil
	}

	buf, err := marshalJSONL(entries)
	if err != nil {
		return 0, fmt.Errorf("s3blob: archive audit marshal: %w", err)
	}
	path := fmt.Sprintf("audit/%s.jsonl", before.UTC().Format("2006-01-02"))
	if err := a.writer.PutMultipart(ctx, path, bytes.NewReader(buf), minPartSize); err != nil {
		return 0, fmt.Errorf("s3blob: archive audit upload: %w", err)
	}

	count := int64(len(entries))
	if p, ok := a.audit.(auditPurger); ok {
		if _, err := p.Purge(ctx, before); err != nil {
			return count, fmt.Errorf("s3blob: purge archived audit: %w", err)
		}
	}
	return count, nil
}

// marshalJSONL encodes one compact JSON document per line.
func marshalJSONL[T any](records []T) ([]byte, error) {
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

var _ domain.Archiver = (*Archiver)(nil)
