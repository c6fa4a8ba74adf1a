// Package testutil holds in-memory stand-ins for the storage, audit and
// provider layers, shared by the service and handler tests.
package testutil

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"weather-cache/internal/models"
	"weather-cache/internal/storage"
)

// Store is an in-memory storage.ArtifactStore. Objects get LastModified from
// Now, which defaults to time.Now.
type Store struct {
	Now func() time.Time

	// PutErr, ListErr and GetErr make the matching call fail.
	PutErr  error
	ListErr error
	GetErr  error

	// PutGate, when set, blocks Put until it is closed.
	PutGate chan struct{}

	mu      sync.Mutex
	objects map[string]storedObject
}

type storedObject struct {
	doc      json.RawMessage
	modified time.Time
}

// NewStore returns an empty store.
func NewStore() *Store {
	return &Store{objects: map[string]storedObject{}}
}

func (s *Store) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now()
}

func (s *Store) address(key string) string {
	return "s3://test-bucket/" + key
}

// Seed stores doc under key with an explicit modification time.
func (s *Store) Seed(key string, doc json.RawMessage, modified time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.objects[key] = storedObject{doc: doc, modified: modified}
}

// Len returns the number of stored objects.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.objects)
}

func (s *Store) Put(ctx context.Context, key string, doc json.RawMessage) (string, error) {
	if s.PutGate != nil {
		select {
		case <-s.PutGate:
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
	if s.PutErr != nil {
		return "", fmt.Errorf("%w: put %s: %w", storage.ErrStorage, key, s.PutErr)
	}
	s.Seed(key, doc, s.now())
	return s.address(key), nil
}

func (s *Store) Get(_ context.Context, address string) (json.RawMessage, error) {
	if s.GetErr != nil {
		return nil, fmt.Errorf("%w: get %s: %w", storage.ErrStorage, address, s.GetErr)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for key, obj := range s.objects {
		if s.address(key) == address {
			return obj.doc, nil
		}
	}
	return nil, fmt.Errorf("%w: get %s: %w", storage.ErrStorage, address, storage.ErrNotFound)
}

func (s *Store) FindLatest(_ context.Context, prefix string, cutoff time.Time) (models.Locator, bool, error) {
	if s.ListErr != nil {
		return models.Locator{}, false, fmt.Errorf("%w: list %s: %w", storage.ErrStorage, prefix, s.ListErr)
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	var best models.Locator
	found := false
	for key, obj := range s.objects {
		if !storage.IsArtifactKey(prefix, key) || obj.modified.Before(cutoff) {
			continue
		}
		if !found || obj.modified.After(best.LastModified) {
			best = models.Locator{Prefix: prefix, Key: key, Address: s.address(key), LastModified: obj.modified}
			found = true
		}
	}
	return best, found, nil
}

var _ storage.ArtifactStore = (*Store)(nil)

// AuditLog records appended entries in memory.
type AuditLog struct {
	Err error

	mu      sync.Mutex
	records []models.AuditRecord
}

func (l *AuditLog) Append(_ context.Context, city string, timestamp time.Time, address string) error {
	if l.Err != nil {
		return l.Err
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	l.records = append(l.records, models.AuditRecord{
		ID:        fmt.Sprintf("rec-%d", len(l.records)+1),
		City:      city,
		S3FileURL: address,
		Timestamp: timestamp.Unix(),
	})
	return nil
}

// Records returns a copy of everything appended so far.
func (l *AuditLog) Records() []models.AuditRecord {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]models.AuditRecord(nil), l.records...)
}

// Fetcher returns a fixed document or error and counts calls.
type Fetcher struct {
	Doc json.RawMessage
	Err error

	// Entered receives a value when a call starts, if set.
	Entered chan struct{}
	// Release, when set, blocks each call until it is closed.
	Release chan struct{}

	mu     sync.Mutex
	calls  []string
	closed bool
}

func (f *Fetcher) GetCityWeather(_ context.Context, city string) (json.RawMessage, error) {
	f.mu.Lock()
	f.calls = append(f.calls, city)
	f.mu.Unlock()

	if f.Entered != nil {
		f.Entered <- struct{}{}
	}
	if f.Release != nil {
		<-f.Release
	}
	if f.Err != nil {
		return nil, f.Err
	}
	return f.Doc, nil
}

func (f *Fetcher) Close() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
}

// Calls returns the city names the fetcher was asked for.
func (f *Fetcher) Calls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.calls...)
}

// Closed reports whether Close was called.
func (f *Fetcher) Closed() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closed
}
