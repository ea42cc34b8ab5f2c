// Package objectstore provides the durable speech artifact store on a NATS
// JetStream object store bucket.
package objectstore

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/book-expert/speech-service/internal/core"
	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
)

const headerContentType = "Content-Type"

// NatsObjectStore implements core.ObjectStore on a JetStream object bucket.
// Object names are the durable paths ("speech/<key>.mp3"); the content type
// travels as an object header. A missing object maps to core.ErrObjectNotFound
// and any other bucket error to core.ErrStoreUnavailable.
type NatsObjectStore struct {
	bucket string
	store  jetstream.ObjectStore
}

// New creates the bucket, or binds to it when it already exists.
func New(ctx context.Context, js jetstream.JetStream, bucketName string) (*NatsObjectStore, error) {
	store, err := js.CreateObjectStore(ctx, jetstream.ObjectStoreConfig{
		Bucket:      bucketName,
		Description: fmt.Sprintf("Speech audio and speech marks in the %s bucket.", bucketName),
		TTL:         0,
		MaxBytes:    0,
		Storage:     jetstream.FileStorage,
		Replicas:    1,
		Placement:   nil,
		Compression: false,
		Metadata:    nil,
	})
	if err != nil {
		if !errors.Is(err, jetstream.ErrBucketExists) {
			return nil, fmt.Errorf("failed to create object store bucket '%s': %w", bucketName, err)
		}

		store, err = js.ObjectStore(ctx, bucketName)
		if err != nil {
			return nil, fmt.Errorf("failed to bind to existing object store bucket '%s': %w", bucketName, err)
		}
	}

	return &NatsObjectStore{bucket: bucketName, store: store}, nil
}

// Exists reports whether key is stored and not deleted.
func (n *NatsObjectStore) Exists(ctx context.Context, key string) (bool, error) {
	_, err := n.store.GetInfo(ctx, key)
	if err == nil {
		return true, nil
	}

	if errors.Is(err, jetstream.ErrObjectNotFound) {
		return false, nil
	}

	return false, n.unavailable("stat", key, err)
}

// Download retrieves an object.
func (n *NatsObjectStore) Download(ctx context.Context, key string) ([]byte, error) {
	data, err := n.store.GetBytes(ctx, key)
	if err != nil {
		if errors.Is(err, jetstream.ErrObjectNotFound) {
			return nil, fmt.Errorf("%w: '%s' in bucket '%s'", core.ErrObjectNotFound, key, n.bucket)
		}

		return nil, n.unavailable("get", key, err)
	}

	return data, nil
}

// Upload saves data under key.
func (n *NatsObjectStore) Upload(ctx context.Context, key string, data []byte, contentType string) error {
	return n.UploadStream(ctx, key, bytes.NewReader(data), contentType)
}

// UploadStream saves everything read from reader under key. A reader that
// fails leaves no object behind.
func (n *NatsObjectStore) UploadStream(ctx context.Context, key string, reader io.Reader, contentType string) error {
	_, err := n.store.Put(ctx, jetstream.ObjectMeta{
		Name:        key,
		Description: "",
		Headers:     contentHeaders(contentType),
		Metadata:    nil,
		Opts:        nil,
	}, reader)
	if err != nil {
		return n.unavailable("put", key, err)
	}

	return nil
}

// ContentType returns the content type key was stored with.
func (n *NatsObjectStore) ContentType(ctx context.Context, key string) (string, error) {
	info, err := n.store.GetInfo(ctx, key)
	if err != nil {
		return "", fmt.Errorf("failed to stat object '%s': %w", key, err)
	}

	return info.Headers.Get(headerContentType), nil
}

func (n *NatsObjectStore) unavailable(op, key string, err error) error {
	return fmt.Errorf("%w: failed to %s object '%s' in bucket '%s': %w", core.ErrStoreUnavailable, op, key, n.bucket, err)
}

func contentHeaders(contentType string) nats.Header {
	if contentType == "" {
		return nil
	}

	headers := nats.Header{}
	headers.Set(headerContentType, contentType)

	return headers
}
