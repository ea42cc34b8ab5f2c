// Package storetest provides in-memory store and backend doubles for tests.
// It is imported only from _test.go files and is never wired into a binary.
package storetest

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/book-expert/speech-service/internal/core"
)

// ErrInjected is returned by doubles configured to fail.
var ErrInjected = errors.New("injected failure")

// ObjectStore is a concurrency-safe in-memory core.ObjectStore.
type ObjectStore struct {
	mu           sync.Mutex
	objects      map[string][]byte
	contentTypes map[string]string

	FailExists   bool
	FailDownload bool
	FailUpload   bool

	// FailUploadStream rejects streamed uploads before reading any data.
	FailUploadStream bool

	ExistsCalls   int
	DownloadCalls int
	UploadCalls   int
}

// NewObjectStore returns an empty store.
func NewObjectStore() *ObjectStore {
	return &ObjectStore{
		objects:      make(map[string][]byte),
		contentTypes: make(map[string]string),
	}
}

// Put seeds an object without counting as an upload.
func (s *ObjectStore) Put(key string, data []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.objects[key] = append([]byte(nil), data...)
}

// Object returns a stored object.
func (s *ObjectStore) Object(key string) ([]byte, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, ok := s.objects[key]

	return data, ok
}

// ContentType returns the content type an object was uploaded with.
func (s *ObjectStore) ContentType(key string) string {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.contentTypes[key]
}

// Len returns the number of stored objects.
func (s *ObjectStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	return len(s.objects)
}

// Exists implements core.ObjectStore.
func (s *ObjectStore) Exists(_ context.Context, key string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.ExistsCalls++

	if s.FailExists {
		return false, ErrInjected
	}

	_, ok := s.objects[key]

	return ok, nil
}

// Download implements core.ObjectStore.
func (s *ObjectStore) Download(_ context.Context, key string) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.DownloadCalls++

	if s.FailDownload {
		return nil, ErrInjected
	}

	data, ok := s.objects[key]
	if !ok {
		return nil, fmt.Errorf("%w: %s", core.ErrObjectNotFound, key)
	}

	return append([]byte(nil), data...), nil
}

// Upload implements core.ObjectStore.
func (s *ObjectStore) Upload(_ context.Context, key string, data []byte, contentType string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.UploadCalls++

	if s.FailUpload {
		return ErrInjected
	}

	s.objects[key] = append([]byte(nil), data...)
	s.contentTypes[key] = contentType

	return nil
}

// UploadStream implements core.ObjectStore.
func (s *ObjectStore) UploadStream(ctx context.Context, key string, reader io.Reader, contentType string) error {
	s.mu.Lock()
	failEarly := s.FailUploadStream
	s.mu.Unlock()

	if failEarly {
		return ErrInjected
	}

	data, err := io.ReadAll(reader)
	if err != nil {
		return fmt.Errorf("failed to read stream for %s: %w", key, err)
	}

	return s.Upload(ctx, key, data, contentType)
}

type ephemeralValue struct {
	data    []byte
	expires time.Time
}

// EphemeralStore is a concurrency-safe in-memory core.EphemeralStore.
type EphemeralStore struct {
	mu     sync.Mutex
	values map[string]ephemeralValue
	now    func() time.Time

	FailGet bool
	FailSet bool

	GetCalls int
	SetCalls int
}

// NewEphemeralStore returns an empty store using the wall clock.
func NewEphemeralStore() *EphemeralStore {
	return &EphemeralStore{values: make(map[string]ephemeralValue), now: time.Now}
}

// Value returns the live value for key.
func (s *EphemeralStore) Value(key string) ([]byte, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	value, ok := s.live(key)

	return value.data, ok
}

// TTL returns the remaining lifetime of key.
func (s *EphemeralStore) TTL(key string) time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()

	value, ok := s.live(key)
	if !ok {
		return 0
	}

	return value.expires.Sub(s.now())
}

// Len returns the number of live keys.
func (s *EphemeralStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	count := 0

	for key := range s.values {
		if _, ok := s.live(key); ok {
			count++
		}
	}

	return count
}

// Expire drops key as if its TTL elapsed.
func (s *EphemeralStore) Expire(key string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.values, key)
}

// Get implements core.EphemeralStore.
func (s *EphemeralStore) Get(_ context.Context, key string) ([]byte, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.GetCalls++

	if s.FailGet {
		return nil, false, ErrInjected
	}

	value, ok := s.live(key)
	if !ok {
		return nil, false, nil
	}

	return append([]byte(nil), value.data...), true, nil
}

// SetIfAbsent implements core.EphemeralStore.
func (s *EphemeralStore) SetIfAbsent(_ context.Context, key string, data []byte, ttl time.Duration) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.SetCalls++

	if s.FailSet {
		return false, ErrInjected
	}

	if _, ok := s.live(key); ok {
		return false, nil
	}

	s.values[key] = ephemeralValue{data: append([]byte(nil), data...), expires: s.now().Add(ttl)}

	return true, nil
}

func (s *EphemeralStore) live(key string) (ephemeralValue, bool) {
	value, ok := s.values[key]
	if !ok || !s.now().Before(value.expires) {
		return ephemeralValue{}, false
	}

	return value, true
}
