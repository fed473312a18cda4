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

// ProofArchive stores the raw payload behind a submitted proof hash so
// verifiers and auditors can fetch it after the fact. Only the hash lives in
// the coordination core; the payload goes to cold storage.
type ProofArchive interface {
	PutProof(ctx context.Context, proofHash string, payload io.Reader) (path string, err error)
	GetProof(ctx context.Context, proofHash string) (io.ReadCloser, error)
}
