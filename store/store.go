// Package store defines the Snapshot Store the diff pipeline persists to.
// Implementations live in the memory, sqlite and redis subpackages.
package store

import (
	"context"
	"errors"
	"net/http"

	"github.com/google/uuid"

	"github.com/use-agent/pagediff/models"
)

// ErrNotFound is returned when a record or asset does not exist.
var ErrNotFound = errors.New("store: not found")

// Store persists snapshot records and their image assets.
//
// Records are whole documents: ReplaceRecord overwrites the placeholder in
// one step, so readers never see a partially written record.
type Store interface {
	// CreatePlaceholder writes an empty record and returns its fresh id.
	CreatePlaceholder(ctx context.Context) (string, error)

	// UploadAsset stores a binary asset and returns its reference.
	UploadAsset(ctx context.Context, data []byte) (models.AssetRef, error)

	// ReplaceRecord overwrites the record with the given id. The id must
	// have been returned by CreatePlaceholder.
	ReplaceRecord(ctx context.Context, id string, rec *models.Record) error

	// FetchRecord returns the record or ErrNotFound.
	FetchRecord(ctx context.Context, id string) (*models.Record, error)

	// ListIDs returns every record id, oldest first.
	ListIDs(ctx context.Context) ([]string, error)

	// FetchAsset returns the asset or ErrNotFound.
	FetchAsset(ctx context.Context, ref models.AssetRef) (*Asset, error)

	Close() error
}

// Asset is a stored binary with its sniffed content type.
type Asset struct {
	Data        []byte
	ContentType string
}

// Generator produces unique string identifiers.
type Generator func() string

// UUIDv7 produces time-sortable RFC 9562 UUIDs, so ids sort in creation order.
func UUIDv7() Generator {
	return func() string {
		return uuid.Must(uuid.NewV7()).String()
	}
}

// Prefixed prepends a fixed prefix to every id.
func Prefixed(prefix string, gen Generator) Generator {
	return func() string {
		return prefix + gen()
	}
}

// NewRecordID and NewAssetRef are the id strategies shared by all stores.
var (
	NewRecordID = UUIDv7()
	newAssetID  = Prefixed("image-", UUIDv7())
)

// NewAssetRef allocates a fresh asset reference.
func NewAssetRef() models.AssetRef {
	return models.AssetRef(newAssetID())
}

// ContentType sniffs the MIME type of an asset.
func ContentType(data []byte) string {
	return http.DetectContentType(data)
}
