// Package file provides the file input and file output components backed by a blob bucket.
package file

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"gocloud.dev/blob"
	"gocloud.dev/gcerrors"

	_ "gocloud.dev/blob/fileblob"
	_ "gocloud.dev/blob/memblob"
	_ "gocloud.dev/blob/s3blob"
)

var ErrFileNotFound = errors.New("file not found")

// Store reads and writes component files in a bucket (file://, mem://, s3://).
type Store struct {
	bucket *blob.Bucket
}

// OpenStore opens the bucket at bucketURL.
func OpenStore(ctx context.Context, bucketURL string) (*Store, error) {
	bucket, err := blob.OpenBucket(ctx, bucketURL)
	if err != nil {
		return nil, fmt.Errorf("failed to open bucket %s: %w", bucketURL, err)
	}

	return &Store{bucket: bucket}, nil
}

// NewStore wraps an already opened bucket.
func NewStore(bucket *blob.Bucket) *Store {
	return &Store{bucket: bucket}
}

func (s *Store) Read(ctx context.Context, path string) ([]byte, error) {
	data, err := s.bucket.ReadAll(ctx, key(path))
	if err != nil {
		if gcerrors.Code(err) == gcerrors.NotFound {
			return nil, fmt.Errorf("%w: %s", ErrFileNotFound, path)
		}

		return nil, err
	}

	return data, nil
}

func (s *Store) Write(ctx context.Context, path string, data []byte, contentType string) error {
	return s.bucket.WriteAll(ctx, key(path), data, &blob.WriterOptions{ContentType: contentType})
}

func (s *Store) Close() error {
	return s.bucket.Close()
}

// Bucket keys never start with a slash.
func key(path string) string {
	return strings.TrimLeft(path, "/")
}
