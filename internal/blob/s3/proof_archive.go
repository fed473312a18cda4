package s3blob

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/alanyoungcy/stakeboard/internal/domain"
)

// ProofArchive implements domain.ProofArchive on top of the blob reader and
// writer. Payloads are stored content-addressed under proofs/<hash>, so a
// re-upload of the same proof is a no-op overwrite with identical bytes.
type ProofArchive struct {
	writer domain.BlobWriter
	reader domain.BlobReader
}

// NewProofArchive creates a ProofArchive using the given blob accessors.
func NewProofArchive(writer domain.BlobWriter, reader domain.BlobReader) *ProofArchive {
	return &ProofArchive{writer: writer, reader: reader}
}

// proofPath maps a proof hash to its object key. The 0x prefix is stripped so
// keys stay uniform regardless of how the caller renders the hash.
func proofPath(proofHash string) string {
	return "proofs/" + strings.TrimPrefix(strings.ToLower(proofHash), "0x")
}

// PutProof uploads the raw proof payload and returns the object path.
func (a *ProofArchive) PutProof(ctx context.Context, proofHash string, payload io.Reader) (string, error) {
	if proofHash == "" {
		return "", fmt.Errorf("s3blob: put proof: empty proof hash")
	}
	path := proofPath(proofHash)
	if err := a.writer.Put(ctx, path, payload, "application/octet-stream"); err != nil {
		return "", fmt.Errorf("s3blob: put proof %s: %w", proofHash, err)
	}
	return path, nil
}

// GetProof retrieves the payload previously stored for a proof hash.
// Returns domain.ErrNotFound if the proof was never archived.
func (a *ProofArchive) GetProof(ctx context.Context, proofHash string) (io.ReadCloser, error) {
	return a.reader.Get(ctx, proofPath(proofHash))
}

// Compile-time interface check.
var _ domain.ProofArchive = (*ProofArchive)(nil)
