package storage

import (
	"context"
	"errors"
	"io"
	"strings"
	"testing"

	"cloud.google.com/go/storage"
)

func TestParseObjectURI(t *testing.T) {
	obj, err := ParseObjectURI(" gs://fixtures/seed/catalog.json ")
	if err != nil {
		t.Fatalf("ParseObjectURI: %v", err)
	}
	if obj.Bucket != "fixtures" || obj.Name != "seed/catalog.json" {
		t.Fatalf("unexpected object %+v", obj)
	}
	if obj.String() != "gs://fixtures/seed/catalog.json" {
		t.Fatalf("unexpected string %q", obj.String())
	}

	for raw, want := range map[string]error{
		"/tmp/seed.json":   errInvalidScheme,
		"gs:///seed.json":  errInvalidBucket,
		"gs://fixtures":    errInvalidObject,
		"gs://fixtures///": errInvalidObject,
	} {
		if _, err := ParseObjectURI(raw); !errors.Is(err, want) {
			t.Fatalf("%s: expected %v, got %v", raw, want, err)
		}
	}
}

func TestReaderReadObject(t *testing.T) {
	var opened Object
	reader := newReader(func(_ context.Context, obj Object) (io.ReadCloser, error) {
		opened = obj
		return io.NopCloser(strings.NewReader(`{"products":[]}`)), nil
	}, nil)

	data, err := reader.ReadObject(context.Background(), "gs://fixtures/seed.json")
	if err != nil {
		t.Fatalf("ReadObject: %v", err)
	}
	if string(data) != `{"products":[]}` {
		t.Fatalf("unexpected data %q", data)
	}
	if opened.Bucket != "fixtures" || opened.Name != "seed.json" {
		t.Fatalf("unexpected object opened %+v", opened)
	}
	if err := reader.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
}

func TestReaderReadObjectLimits(t *testing.T) {
	reader := newReader(func(context.Context, Object) (io.ReadCloser, error) {
		return io.NopCloser(strings.NewReader("0123456789")), nil
	}, nil, WithMaxObjectSize(4))

	if _, err := reader.ReadObject(context.Background(), "gs://fixtures/big.json"); !errors.Is(err, errObjectTooLarge) {
		t.Fatalf("expected size error, got %v", err)
	}
}

func TestReaderReadObjectMissing(t *testing.T) {
	reader := newReader(func(context.Context, Object) (io.ReadCloser, error) {
		return nil, storage.ErrObjectNotExist
	}, nil)

	_, err := reader.ReadObject(context.Background(), "gs://fixtures/missing.json")
	if !errors.Is(err, storage.ErrObjectNotExist) {
		t.Fatalf("expected ErrObjectNotExist, got %v", err)
	}
}
