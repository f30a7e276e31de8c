package storage

import (
	"context"
	"io"
)

// ObjectStorage defines minimal object storage operations required by the
// submission ingestion flow. It is intentionally small so we can swap
// MinIO/AWS-S3 implementations without touching business logic.
type ObjectStorage interface {
	// PutObject streams an object into the store. Pass sizeBytes = -1 when the
	// final size is not known up front.
	PutObject(ctx context.Context, bucket, objectKey string, reader io.Reader, sizeBytes int64, contentType string) (UploadInfo, error)

	// GetObject opens a reader for an object.
	// Caller must close the returned reader.
	GetObject(ctx context.Context, bucket, objectKey string) (ObjectReader, error)

	// StatObject returns size and ETag for an object.
	StatObject(ctx context.Context, bucket, objectKey string) (ObjectStat, error)

	// RemoveObject deletes an object. Removing an absent object is not an error.
	RemoveObject(ctx context.Context, bucket, objectKey string) error
}

// ObjectReader is a streaming reader for object data.
type ObjectReader interface {
	io.Reader
	io.Closer
}

// UploadInfo describes a completed object write.
type UploadInfo struct {
	ETag      string
	SizeBytes int64
}

// ObjectStat contains object metadata used for validation.
type ObjectStat struct {
	SizeBytes   int64
	ETag        string
	ContentType string
}
