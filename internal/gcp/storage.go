package gcp

import (
	"bytes"
	"context"
	"crypto/md5"
	"errors"
	"fmt"
	"hash/crc32"
	"io"
	"log/slog"
	"net/http"

	"cloud.google.com/go/storage"
	"google.golang.org/api/googleapi"
)

// ErrObjectConflict is returned when an object already exists under the key
// with different content.
var ErrObjectConflict = errors.New("object already exists with different content")

// SaveToGCSAtomically writes data to a GCS object only if it doesn't already exist.
// An existing object is accepted only when its checksum matches data.
func SaveToGCSAtomically(ctx context.Context, bucket *storage.BucketHandle, objectName string, data []byte, contentType string) error {
	obj := bucket.Object(objectName)
	writer := obj.If(storage.Conditions{DoesNotExist: true}).NewWriter(ctx)
	writer.ContentType = contentType

	if _, err := io.Copy(writer, bytes.NewReader(data)); err != nil {
		_ = writer.Close()
		if isPreconditionFailed(err) {
			return checkExisting(ctx, obj, data)
		}
		return fmt.Errorf("failed to write to GCS: %w", err)
	}

	if err := writer.Close(); err != nil {
		if isPreconditionFailed(err) {
			return checkExisting(ctx, obj, data)
		}
		return fmt.Errorf("failed to finalize GCS write: %w", err)
	}
	return nil
}

func checkExisting(ctx context.Context, obj *storage.ObjectHandle, data []byte) error {
	attrs, err := obj.Attrs(ctx)
	if err != nil {
		return fmt.Errorf("failed to read existing object attributes: %w", err)
	}
	if !sameContent(attrs, data) {
		return fmt.Errorf("%w: %s", ErrObjectConflict, obj.ObjectName())
	}
	slog.Info("SKIPPING: Identical object already exists.", "object", obj.ObjectName())
	return nil
}

// sameContent compares data with the stored object's MD5, falling back to
// CRC32C for composite objects that carry no MD5.
func sameContent(attrs *storage.ObjectAttrs, data []byte) bool {
	if attrs.Size != int64(len(data)) {
		return false
	}
	if len(attrs.MD5) > 0 {
		sum := md5.Sum(data)
		return bytes.Equal(attrs.MD5, sum[:])
	}
	return attrs.CRC32C == crc32.Checksum(data, crc32.MakeTable(crc32.Castagnoli))
}

func isPreconditionFailed(err error) bool {
	var gerr *googleapi.Error
	return errors.As(err, &gerr) && gerr.Code == http.StatusPreconditionFailed
}

// GCSStore stores uploaded files in a single bucket.
type GCSStore struct {
	client *storage.Client
	bucket string
}

// NewGCSStore creates a GCS backed object store for the given bucket.
func NewGCSStore(ctx context.Context, bucket string) (*GCSStore, error) {
	if bucket == "" {
		return nil, fmt.Errorf("bucket must be provided to create a GCS store")
	}
	client, err := storage.NewClient(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to create storage client: %w", err)
	}
	return &GCSStore{client: client, bucket: bucket}, nil
}

// Put uploads data under key and returns its gs:// locator.
func (s *GCSStore) Put(ctx context.Context, key string, data []byte, contentType string) (string, error) {
	if err := SaveToGCSAtomically(ctx, s.client.Bucket(s.bucket), key, data, contentType); err != nil {
		return "", err
	}
	return fmt.Sprintf("gs://%s/%s", s.bucket, key), nil
}

func (s *GCSStore) Close() error {
	return s.client.Close()
}
