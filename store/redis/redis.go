// Package redis is a Snapshot Store on Redis, for deployments that run
// several pagediff instances against shared storage.
package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/use-agent/pagediff/config"
	"github.com/use-agent/pagediff/models"
	"github.com/use-agent/pagediff/store"
)

// Store keeps each record as a JSON string, each asset as a hash and the
// id list in creation order.
type Store struct {
	client *redis.Client
	prefix string
	now    func() time.Time
}

// Open connects to Redis and verifies the connection.
func Open(ctx context.Context, cfg config.StoreConfig) (*Store, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		slog.Error("failed to connect to redis", "address", cfg.RedisAddr, "database", cfg.RedisDB, "error", err)
		_ = client.Close()
		return nil, fmt.Errorf("redis: ping: %w", err)
	}
	return &Store{client: client, prefix: cfg.RedisPrefix, now: time.Now}, nil
}

func (s *Store) recordKey(id string) string          { return s.prefix + "record:" + id }
func (s *Store) assetKey(ref models.AssetRef) string { return s.prefix + "asset:" + string(ref) }
func (s *Store) idsKey() string                      { return s.prefix + "ids" }

func (s *Store) CreatePlaceholder(ctx context.Context) (string, error) {
	id := store.NewRecordID()
	doc, err := json.Marshal(models.NewPlaceholder(id, s.now()))
	if err != nil {
		return "", fmt.Errorf("redis: encode record: %w", err)
	}
	_, err = s.client.TxPipelined(ctx, func(p redis.Pipeliner) error {
		p.Set(ctx, s.recordKey(id), doc, 0)
		p.RPush(ctx, s.idsKey(), id)
		return nil
	})
	if err != nil {
		return "", fmt.Errorf("redis: create placeholder: %w", err)
	}
	return id, nil
}

func (s *Store) UploadAsset(ctx context.Context, data []byte) (models.AssetRef, error) {
	ref := store.NewAssetRef()
	if err := s.client.HSet(ctx, s.assetKey(ref),
		"type", store.ContentType(data),
		"data", data,
	).Err(); err != nil {
		return "", fmt.Errorf("redis: upload asset: %w", err)
	}
	return ref, nil
}

func (s *Store) ReplaceRecord(ctx context.Context, id string, rec *models.Record) error {
	c := rec.Clone()
	c.ID = id
	doc, err := json.Marshal(c)
	if err != nil {
		return fmt.Errorf("redis: encode record: %w", err)
	}
	// SET XX: only overwrite a record that exists.
	ok, err := s.client.SetXX(ctx, s.recordKey(id), doc, 0).Result()
	if err != nil {
		return fmt.Errorf("redis: replace record: %w", err)
	}
	if !ok {
		return store.ErrNotFound
	}
	return nil
}

func (s *Store) FetchRecord(ctx context.Context, id string) (*models.Record, error) {
	doc, err := s.client.Get(ctx, s.recordKey(id)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("redis: fetch record: %w", err)
	}
	var rec models.Record
	if err := json.Unmarshal(doc, &rec); err != nil {
		return nil, fmt.Errorf("redis: decode record %s: %w", id, err)
	}
	return &rec, nil
}

func (s *Store) ListIDs(ctx context.Context) ([]string, error) {
	ids, err := s.client.LRange(ctx, s.idsKey(), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("redis: list ids: %w", err)
	}
	return ids, nil
}

func (s *Store) FetchAsset(ctx context.Context, ref models.AssetRef) (*store.Asset, error) {
	fields, err := s.client.HGetAll(ctx, s.assetKey(ref)).Result()
	if err != nil {
		return nil, fmt.Errorf("redis: fetch asset: %w", err)
	}
	data, ok := fields["data"]
	if !ok {
		return nil, store.ErrNotFound
	}
	return &store.Asset{Data: []byte(data), ContentType: fields["type"]}, nil
}

func (s *Store) Close() error {
	return s.client.Close()
}

var _ store.Store = (*Store)(nil)
