package domain

import (
	"context"
	"io"
	"time"
)

// ResolutionArchivePrefix is the object-key prefix under which resolution
// records are stored.
const ResolutionArchivePrefix = "archive/resolutions/"

// ResolutionArchivePath returns the object key of a market's resolution
// record.
func ResolutionArchivePath(marketID string) string {
	return ResolutionArchivePrefix + marketID + ".jsonl"
}

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
}

// Archiver writes a cold-storage record of a resolved market before its
// positions are cleared from the live tracker.
type Archiver interface {
	ArchiveResolution(ctx context.Context, market Market, report ResolutionReport) (string, error)
}
