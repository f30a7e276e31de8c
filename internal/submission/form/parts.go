package form

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"sync"

	"github.com/rishvic/jumpcoder/internal/common/storage"
	"github.com/rishvic/jumpcoder/pkg/utils/logger"

	"go.uber.org/zap"
)

// objectNameBytes is the entropy of a generated object name. 192 random bits
// make collisions negligible, so writes never overwrite and need no retry.
const objectNameBytes = 24

// UploadedFile describes one file part whose bytes are already durable in the
// object store. There is no pending representation of partially-uploaded
// content; an UploadedFile exists only after the store acknowledged the write.
type UploadedFile struct {
	FieldName   string
	BucketName  string
	ObjectName  string
	Filename    string
	ContentType string
	Encoding    string
	SizeBytes   int64
	ETag        string

	// Truncated marks a file whose part exceeded the byte cap. The object
	// holds the capped prefix; rejection is deferred to validation so the
	// client gets a structured error instead of a broken transport.
	Truncated bool
}

// Parts is the resolved result of demultiplexing one form stream.
type Parts struct {
	Fields map[string]string
	Files  []UploadedFile
}

// Limits bounds one demultiplexing pass.
type Limits struct {
	// FileSizeBytes caps each file part. Bytes beyond the cap are drained and
	// discarded and the file is flagged Truncated. Zero means unlimited.
	FileSizeBytes int64

	// MaxFiles caps the number of file parts routed to the store. Parts
	// beyond the cap are drained without uploading. Zero means unlimited.
	MaxFiles int
}

// Demultiplexer routes multipart form fields into a map and file parts into
// streaming object store uploads under freshly generated random names.
type Demultiplexer struct {
	storage storage.ObjectStorage
	bucket  string
}

// NewDemultiplexer creates a demultiplexer uploading into the given bucket.
func NewDemultiplexer(objStorage storage.ObjectStorage, bucket string) (*Demultiplexer, error) {
	if objStorage == nil {
		return nil, errors.New("object storage is required")
	}
	if bucket == "" {
		return nil, errors.New("bucket is required")
	}
	return &Demultiplexer{storage: objStorage, bucket: bucket}, nil
}

// pendingUpload is the per-file-part future: done is closed once the store
// acknowledged or rejected the write.
type pendingUpload struct {
	file UploadedFile
	err  error
	done chan struct{}
}

// ReadParts consumes the stream part by part. Each file part starts a
// concurrent streaming upload; the parser moves on to the next part as soon
// as the current part's bytes are handed off, while the store may still be
// finalizing earlier writes. The result resolves only once the stream is
// exhausted and every pending upload has itself resolved.
//
// The returned Parts is non-nil even on error and lists every file that made
// it into the store, so the caller can run compensating cleanup. ReadParts
// itself never removes objects.
func (d *Demultiplexer) ReadParts(ctx context.Context, reader *multipart.Reader, limits Limits) (*Parts, error) {
	parts := &Parts{Fields: make(map[string]string)}

	var pending []*pendingUpload
	var streamErr error
	fileCount := 0

	for streamErr == nil {
		part, err := reader.NextPart()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			streamErr = fmt.Errorf("read next part failed: %w", err)
			break
		}

		if part.FileName() == "" {
			value, err := io.ReadAll(part)
			if err != nil {
				streamErr = fmt.Errorf("read field %q failed: %w", part.FormName(), err)
				break
			}
			// Last write wins for repeated field names.
			parts.Fields[part.FormName()] = string(value)
			continue
		}

		fileCount++
		if limits.MaxFiles > 0 && fileCount > limits.MaxFiles {
			logger.Debug(ctx, "discarding file part beyond limit",
				zap.String("field", part.FormName()),
				zap.Int("max_files", limits.MaxFiles),
			)
			_, _ = io.Copy(io.Discard, part)
			continue
		}

		pending = append(pending, d.consumeFilePart(ctx, part, limits.FileSizeBytes))
	}

	var uploadErr error
	for _, upload := range pending {
		<-upload.done
		if upload.err != nil {
			if uploadErr == nil {
				uploadErr = upload.err
			}
			continue
		}
		parts.Files = append(parts.Files, upload.file)
	}

	if streamErr != nil {
		return parts, streamErr
	}
	if uploadErr != nil {
		return parts, fmt.Errorf("upload file part failed: %w", uploadErr)
	}
	return parts, nil
}

// consumeFilePart drains one file part into a streaming upload. It returns
// once the part's bytes are fully consumed from the stream; the upload itself
// may still be in flight, tracked by the returned pendingUpload.
func (d *Demultiplexer) consumeFilePart(ctx context.Context, part *multipart.Part, sizeLimit int64) *pendingUpload {
	upload := &pendingUpload{done: make(chan struct{})}

	objectName, err := randomObjectName()
	if err != nil {
		upload.err = fmt.Errorf("generate object name failed: %w", err)
		close(upload.done)
		_, _ = io.Copy(io.Discard, part)
		return upload
	}

	upload.file = UploadedFile{
		FieldName:   part.FormName(),
		BucketName:  d.bucket,
		ObjectName:  objectName,
		Filename:    part.FileName(),
		ContentType: part.Header.Get("Content-Type"),
		Encoding:    part.Header.Get("Content-Transfer-Encoding"),
	}

	pr, pw := io.Pipe()
	go func() {
		info, err := d.storage.PutObject(ctx, d.bucket, objectName, pr, -1, upload.file.ContentType)
		if err != nil {
			// Unblock the writer; its next write observes the failure.
			_ = pr.CloseWithError(err)
			upload.err = err
		} else {
			_ = pr.Close()
			upload.file.ETag = info.ETag
		}
		close(upload.done)
		logObjectWrite(ctx, d.bucket, objectName, err)
	}()

	src := io.Reader(part)
	if sizeLimit > 0 {
		src = io.LimitReader(part, sizeLimit)
	}
	written, copyErr := io.Copy(pw, src)
	upload.file.SizeBytes = written

	if copyErr == nil && sizeLimit > 0 && written == sizeLimit {
		// Probe for bytes beyond the cap; the store keeps what fit.
		var probe [1]byte
		if n, _ := part.Read(probe[:]); n > 0 {
			upload.file.Truncated = true
		}
	}

	if copyErr != nil {
		_ = pw.CloseWithError(copyErr)
	} else {
		_ = pw.Close()
	}
	// Drain whatever is left so the stream stays parseable for later parts.
	_, _ = io.Copy(io.Discard, part)

	return upload
}

// Cleanup removes the given objects from the store concurrently. Removal
// failures are logged, never surfaced: compensation must not mask the
// primary failure, and removing an already-removed object is a no-op.
func (d *Demultiplexer) Cleanup(ctx context.Context, files []UploadedFile) {
	var wg sync.WaitGroup
	for _, file := range files {
		wg.Add(1)
		go func(file UploadedFile) {
			defer wg.Done()
			if err := d.storage.RemoveObject(ctx, file.BucketName, file.ObjectName); err != nil {
				logger.Warn(ctx, "remove uploaded object failed",
					zap.String("bucket", file.BucketName),
					zap.String("object", file.ObjectName),
					zap.Error(err),
				)
				return
			}
			logger.Debug(ctx, "removed uploaded object",
				zap.String("bucket", file.BucketName),
				zap.String("object", file.ObjectName),
			)
		}(file)
	}
	wg.Wait()
}

func logObjectWrite(ctx context.Context, bucket, objectName string, err error) {
	if err != nil {
		logger.Warn(ctx, "object write failed",
			zap.String("bucket", bucket),
			zap.String("object", objectName),
			zap.Error(err),
		)
		return
	}
	logger.Debug(ctx, "uploaded object",
		zap.String("bucket", bucket),
		zap.String("object", objectName),
	)
}

func randomObjectName() (string, error) {
	buf := make([]byte, objectNameBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}
