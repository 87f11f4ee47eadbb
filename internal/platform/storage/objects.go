// Package storage reads fixture objects from Cloud Storage.
package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"cloud.google.com/go/storage"
	"google.golang.org/api/option"
)

// Scheme prefixes object URIs handled by this package.
const Scheme = "gs://"

// DefaultMaxObjectSize bounds ReadObject when no limit is configured.
const DefaultMaxObjectSize int64 = 16 << 20

var (
	errInvalidBucket  = errors.New("storage: bucket name is required")
	errInvalidObject  = errors.New("storage: object name is required")
	errInvalidScheme  = errors.New("storage: uri must start with gs://")
	errObjectTooLarge = errors.New("storage: object exceeds size limit")
)

// Object identifies a single Cloud Storage object.
type Object struct {
	Bucket string
	Name   string
}

func (o Object) String() string {
	return Scheme + o.Bucket + "/" + o.Name
}

// IsObjectURI reports whether raw names a Cloud Storage object.
func IsObjectURI(raw string) bool {
	return strings.HasPrefix(strings.TrimSpace(raw), Scheme)
}

// ParseObjectURI splits gs://bucket/path/to/object.
func ParseObjectURI(raw string) (Object, error) {
	raw = strings.TrimSpace(raw)
	if !strings.HasPrefix(raw, Scheme) {
		return Object{}, errInvalidScheme
	}
	bucket, name, _ := strings.Cut(strings.TrimPrefix(raw, Scheme), "/")
	bucket = strings.TrimSpace(bucket)
	name = strings.Trim(strings.TrimSpace(name), "/")
	if bucket == "" {
		return Object{}, errInvalidBucket
	}
	if name == "" {
		return Object{}, errInvalidObject
	}
	return Object{Bucket: bucket, Name: name}, nil
}

type openFunc func(ctx context.Context, obj Object) (io.ReadCloser, error)

// Reader downloads whole objects.
type Reader struct {
	open    openFunc
	close   func() error
	maxSize int64
}

// ReaderOption customises a Reader.
type ReaderOption func(*Reader)

// WithMaxObjectSize caps the number of bytes ReadObject accepts.
func WithMaxObjectSize(limit int64) ReaderOption {
	return func(r *Reader) {
		if limit > 0 {
			r.maxSize = limit
		}
	}
}

// NewReader constructs a Reader backed by a Cloud Storage client.
func NewReader(ctx context.Context, clientOpts []option.ClientOption, opts ...ReaderOption) (*Reader, error) {
	client, err := storage.NewClient(ctx, clientOpts...)
	if err != nil {
		return nil, fmt.Errorf("storage: new client: %w", err)
	}
	open := func(ctx context.Context, obj Object) (io.ReadCloser, error) {
		return client.Bucket(obj.Bucket).Object(obj.Name).NewReader(ctx)
	}
	return newReader(open, client.Close, opts...), nil
}

func newReader(open openFunc, closeFn func() error, opts ...ReaderOption) *Reader {
	r := &Reader{open: open, close: closeFn, maxSize: DefaultMaxObjectSize}
	for _, opt := range opts {
		if opt != nil {
			opt(r)
		}
	}
	return r
}

// ReadObject returns the full contents of the object named by uri.
func (r *Reader) ReadObject(ctx context.Context, uri string) ([]byte, error) {
	obj, err := ParseObjectURI(uri)
	if err != nil {
		return nil, err
	}
	body, err := r.open(ctx, obj)
	if err != nil {
		if errors.Is(err, storage.ErrObjectNotExist) || errors.Is(err, storage.ErrBucketNotExist) {
			return nil, fmt.Errorf("storage: %s not found: %w", obj, err)
		}
		return nil, fmt.Errorf("storage: open %s: %w", obj, err)
	}
	defer body.Close()

	data, err := io.ReadAll(io.LimitReader(body, r.maxSize+1))
	if err != nil {
		return nil, fmt.Errorf("storage: read %s: %w", obj, err)
	}
	if int64(len(data)) > r.maxSize {
		return nil, fmt.Errorf("%w: %s", errObjectTooLarge, obj)
	}
	return data, nil
}

// Close releases the underlying client.
func (r *Reader) Close() error {
	if r == nil || r.close == nil {
		return nil
	}
	return r.close()
}
