package form

import (
	"bytes"
	"context"
	"crypto/md5"
	"encoding/hex"
	"errors"
	"io"
	"mime/multipart"
	"sync"
	"testing"

	"github.com/rishvic/jumpcoder/internal/common/storage"
)

type fakeStorage struct {
	mu      sync.Mutex
	objects map[string][]byte
	removed []string
	putErr  error
}

func newFakeStorage() *fakeStorage {
	return &fakeStorage{objects: make(map[string][]byte)}
}

func (f *fakeStorage) PutObject(ctx context.Context, bucket, objectKey string, reader io.Reader, sizeBytes int64, contentType string) (storage.UploadInfo, error) {
	data, err := io.ReadAll(reader)
	if err != nil {
		return storage.UploadInfo{}, err
	}
	if f.putErr != nil {
		return storage.UploadInfo{}, f.putErr
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.objects[objectKey] = data
	sum := md5.Sum(data)
	return storage.UploadInfo{ETag: hex.EncodeToString(sum[:]), SizeBytes: int64(len(data))}, nil
}

func (f *fakeStorage) GetObject(ctx context.Context, bucket, objectKey string) (storage.ObjectReader, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	data, ok := f.objects[objectKey]
	if !ok {
		return nil, errors.New("no such object")
	}
	return io.NopCloser(bytes.NewReader(data)), nil
}

func (f *fakeStorage) StatObject(ctx context.Context, bucket, objectKey string) (storage.ObjectStat, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	data, ok := f.objects[objectKey]
	if !ok {
		return storage.ObjectStat{}, errors.New("no such object")
	}
	return storage.ObjectStat{SizeBytes: int64(len(data))}, nil
}

func (f *fakeStorage) RemoveObject(ctx context.Context, bucket, objectKey string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	// Idempotent like S3: removing an absent key succeeds.
	delete(f.objects, objectKey)
	f.removed = append(f.removed, objectKey)
	return nil
}

func (f *fakeStorage) liveCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.objects)
}

type formPart struct {
	field string
	value string
	file  []byte
}

func buildForm(t *testing.T, parts []formPart) *multipart.Reader {
	t.Helper()
	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)
	for _, p := range parts {
		if p.file != nil {
			fw, err := writer.CreateFormFile(p.field, "main.txt")
			if err != nil {
				t.Fatalf("create form file: %v", err)
			}
			if _, err := fw.Write(p.file); err != nil {
				t.Fatalf("write form file: %v", err)
			}
			continue
		}
		if err := writer.WriteField(p.field, p.value); err != nil {
			t.Fatalf("write field: %v", err)
		}
	}
	if err := writer.Close(); err != nil {
		t.Fatalf("close writer: %v", err)
	}
	return multipart.NewReader(&buf, writer.Boundary())
}

func TestReadPartsFieldsAndFile(t *testing.T) {
	st := newFakeStorage()
	demux, err := NewDemultiplexer(st, "jumpcode")
	if err != nil {
		t.Fatalf("new demultiplexer: %v", err)
	}

	content := []byte("print(42)\n")
	reader := buildForm(t, []formPart{
		{field: "lang", value: "python"},
		{field: "code", file: content},
	})

	parts, err := demux.ReadParts(context.Background(), reader, Limits{FileSizeBytes: 65535, MaxFiles: 1})
	if err != nil {
		t.Fatalf("read parts: %v", err)
	}

	if got := parts.Fields["lang"]; got != "python" {
		t.Errorf("lang field = %q, want %q", got, "python")
	}
	if len(parts.Files) != 1 {
		t.Fatalf("got %d files, want 1", len(parts.Files))
	}

	file := parts.Files[0]
	if file.FieldName != "code" {
		t.Errorf("field name = %q, want %q", file.FieldName, "code")
	}
	if file.BucketName != "jumpcode" {
		t.Errorf("bucket = %q, want %q", file.BucketName, "jumpcode")
	}
	if file.ObjectName == "" {
		t.Error("object name should be set")
	}
	if file.ETag == "" {
		t.Error("etag should be set")
	}
	if file.SizeBytes != int64(len(content)) {
		t.Errorf("size = %d, want %d", file.SizeBytes, len(content))
	}
	if file.Truncated {
		t.Error("file should not be truncated")
	}
	if !bytes.Equal(st.objects[file.ObjectName], content) {
		t.Error("stored object content mismatch")
	}
}

func TestReadPartsLastFieldWins(t *testing.T) {
	st := newFakeStorage()
	demux, _ := NewDemultiplexer(st, "jumpcode")

	reader := buildForm(t, []formPart{
		{field: "lang", value: "gcc"},
		{field: "lang", value: "java"},
	})

	parts, err := demux.ReadParts(context.Background(), reader, Limits{})
	if err != nil {
		t.Fatalf("read parts: %v", err)
	}
	if got := parts.Fields["lang"]; got != "java" {
		t.Errorf("lang field = %q, want %q", got, "java")
	}
}

func TestReadPartsFlagsTruncatedFile(t *testing.T) {
	st := newFakeStorage()
	demux, _ := NewDemultiplexer(st, "jumpcode")

	content := bytes.Repeat([]byte("a"), 40)
	reader := buildForm(t, []formPart{{field: "code", file: content}})

	parts, err := demux.ReadParts(context.Background(), reader, Limits{FileSizeBytes: 16, MaxFiles: 1})
	if err != nil {
		t.Fatalf("read parts: %v", err)
	}
	if len(parts.Files) != 1 {
		t.Fatalf("got %d files, want 1", len(parts.Files))
	}

	file := parts.Files[0]
	if !file.Truncated {
		t.Error("file should be flagged truncated")
	}
	if file.SizeBytes != 16 {
		t.Errorf("size = %d, want 16", file.SizeBytes)
	}
	if got := len(st.objects[file.ObjectName]); got != 16 {
		t.Errorf("stored %d bytes, want the 16-byte capped prefix", got)
	}
}

func TestReadPartsExactLimitNotTruncated(t *testing.T) {
	st := newFakeStorage()
	demux, _ := NewDemultiplexer(st, "jumpcode")

	content := bytes.Repeat([]byte("b"), 16)
	reader := buildForm(t, []formPart{{field: "code", file: content}})

	parts, err := demux.ReadParts(context.Background(), reader, Limits{FileSizeBytes: 16})
	if err != nil {
		t.Fatalf("read parts: %v", err)
	}
	if parts.Files[0].Truncated {
		t.Error("file exactly at the limit should not be truncated")
	}
}

func TestReadPartsSkipsFilesBeyondLimit(t *testing.T) {
	st := newFakeStorage()
	demux, _ := NewDemultiplexer(st, "jumpcode")

	reader := buildForm(t, []formPart{
		{field: "code", file: []byte("first")},
		{field: "extra", file: []byte("second")},
	})

	parts, err := demux.ReadParts(context.Background(), reader, Limits{MaxFiles: 1})
	if err != nil {
		t.Fatalf("read parts: %v", err)
	}
	if len(parts.Files) != 1 {
		t.Fatalf("got %d files, want 1", len(parts.Files))
	}
	if st.liveCount() != 1 {
		t.Errorf("got %d stored objects, want 1", st.liveCount())
	}
}

func TestReadPartsUploadFailure(t *testing.T) {
	st := newFakeStorage()
	st.putErr = errors.New("store unreachable")
	demux, _ := NewDemultiplexer(st, "jumpcode")

	reader := buildForm(t, []formPart{{field: "code", file: []byte("content")}})

	parts, err := demux.ReadParts(context.Background(), reader, Limits{})
	if err == nil {
		t.Fatal("expected error when upload fails")
	}
	if parts == nil {
		t.Fatal("parts should be returned even on failure")
	}
	if len(parts.Files) != 0 {
		t.Errorf("got %d files, want 0", len(parts.Files))
	}
}

func TestCleanupRemovesObjectsAndIsIdempotent(t *testing.T) {
	st := newFakeStorage()
	demux, _ := NewDemultiplexer(st, "jumpcode")

	reader := buildForm(t, []formPart{{field: "code", file: []byte("content")}})
	parts, err := demux.ReadParts(context.Background(), reader, Limits{})
	if err != nil {
		t.Fatalf("read parts: %v", err)
	}

	demux.Cleanup(context.Background(), parts.Files)
	if st.liveCount() != 0 {
		t.Errorf("got %d live objects after cleanup, want 0", st.liveCount())
	}

	// Re-running cleanup on already-removed objects must not fail.
	demux.Cleanup(context.Background(), parts.Files)
	if st.liveCount() != 0 {
		t.Errorf("got %d live objects after repeated cleanup, want 0", st.liveCount())
	}
}
