// Package memory is an in-process Snapshot Store. Contents are lost on
// restart; it backs tests and single-shot runs.
package memory

import (
	"context"
	"slices"
	"sync"
	"time"

	"github.com/use-agent/pagediff/models"
	"github.com/use-agent/pagediff/store"
)

// Store keeps records and assets in maps guarded by a mutex.
type Store struct {
	mu      sync.RWMutex
	records map[string]*models.Record
	order   []string
	assets  map[models.AssetRef][]byte
	now     func() time.Time
}

// New creates an empty Store.
func New() *Store {
	return &Store{
		records: make(map[string]*models.Record),
		assets:  make(map[models.AssetRef][]byte),
		now:     time.Now,
	}
}

func (s *Store) CreatePlaceholder(ctx context.Context) (string, error) {
	id := store.NewRecordID()
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records[id] = models.NewPlaceholder(id, s.now())
	s.order = append(s.order, id)
	return id, nil
}

func (s *Store) UploadAsset(ctx context.Context, data []byte) (models.AssetRef, error) {
	ref := store.NewAssetRef()
	s.mu.Lock()
	defer s.mu.Unlock()
	s.assets[ref] = slices.Clone(data)
	return ref, nil
}

func (s *Store) ReplaceRecord(ctx context.Context, id string, rec *models.Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.records[id]; !ok {
		return store.ErrNotFound
	}
	c := rec.Clone()
	c.ID = id
	s.records[id] = c
	return nil
}

func (s *Store) FetchRecord(ctx context.Context, id string) (*models.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.records[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return rec.Clone(), nil
}

func (s *Store) ListIDs(ctx context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return slices.Clone(s.order), nil
}

func (s *Store) FetchAsset(ctx context.Context, ref models.AssetRef) (*store.Asset, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	data, ok := s.assets[ref]
	if !ok {
		return nil, store.ErrNotFound
	}
	return &store.Asset{Data: slices.Clone(data), ContentType: store.ContentType(data)}, nil
}

func (s *Store) Close() error { return nil }

var _ store.Store = (*Store)(nil)
