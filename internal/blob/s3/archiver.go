package s3blob

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/alanyoungcy/stakeboard/internal/domain"
)

// AuditArchiver offloads old audit log entries to object storage as JSONL
// snapshots. Deletion of the archived rows from the primary store is
// intentionally NOT performed here; that is a separate, explicit step to be
// executed after the archive has been verified.
type AuditArchiver struct {
	writer domain.BlobWriter
	audit  domain.AuditStore
}

// NewAuditArchiver creates a new AuditArchiver.
func NewAuditArchiver(writer domain.BlobWriter, audit domain.AuditStore) *AuditArchiver {
	return &AuditArchiver{writer: writer, audit: audit}
}

// ArchiveBefore serializes every audit entry recorded strictly before the
// cutoff to JSONL and uploads the snapshot. Returns the object path and the
// number of entries archived; an empty result skips the upload entirely.
func (a *AuditArchiver) ArchiveBefore(ctx context.Context, cutoff time.Time) (string, int, error) {
	entries, err := a.audit.List(ctx, domain.ListOpts{Until: &cutoff})
	if err != nil {
		return "", 0, fmt.Errorf("s3blob: list audit entries for archive: %w", err)
	}
	if len(entries) == 0 {
		return "", 0, nil
	}

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	for _, e := range entries {
		if err := enc.Encode(e); err != nil {
			return "", 0, fmt.Errorf("s3blob: encode audit entry %d: %w", e.ID, err)
		}
	}

	path := fmt.Sprintf("archive/audit/%s.jsonl", cutoff.UTC().Format("2006-01-02"))
	if err := a.writer.Put(ctx, path, &buf, "application/x-ndjson"); err != nil {
		return "", 0, fmt.Errorf("s3blob: upload audit archive: %w", err)
	}

	return path, len(entries), nil
}
