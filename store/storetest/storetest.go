// Package storetest holds the behaviour every store.Store must share.
package storetest

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"

	"golang.org/x/sync/errgroup"

	"github.com/use-agent/pagediff/models"
	"github.com/use-agent/pagediff/store"
)

// pngHeader is enough for content sniffing.
var pngHeader = []byte("\x89PNG\r\n\x1a\n\x00\x00\x00\rIHDR")

// Run exercises s against the Snapshot Store contract.
func Run(t *testing.T, s store.Store) {
	t.Helper()
	ctx := context.Background()

	t.Run("PlaceholderIsEmpty", func(t *testing.T) {
		id, err := s.CreatePlaceholder(ctx)
		if err != nil {
			t.Fatal(err)
		}
		rec, err := s.FetchRecord(ctx, id)
		if err != nil {
			t.Fatal(err)
		}
		if rec.ID != id || rec.CreatedAt.IsZero() {
			t.Errorf("placeholder = %+v", rec)
		}
		if rec.Complete() || rec.VisualDiff != nil || rec.Before != nil {
			t.Errorf("placeholder should carry no verdict: %+v", rec)
		}
	})

	t.Run("ReplaceIsWholeRecord", func(t *testing.T) {
		id, err := s.CreatePlaceholder(ctx)
		if err != nil {
			t.Fatal(err)
		}
		placeholder, err := s.FetchRecord(ctx, id)
		if err != nil {
			t.Fatal(err)
		}

		full := &models.Record{
			ID:           id,
			CreatedAt:    placeholder.CreatedAt,
			VisualDiff:   models.Bool(true),
			MetadataDiff: models.Bool(false),
			BodyDiff:     models.Bool(true),
			Similarity:   &models.Similarity{Structure: 0.9375, Text: 0.75},
			Before:       &models.Side{URL: "https://example.com/a", Image: "image-a", Metadata: "title: A\n", Body: "<p>a</p>"},
			After:        &models.Side{URL: "https://example.com/b", Image: "image-b", Metadata: "title: A\n", Body: "<p>b</p>"},
		}
		if err := s.ReplaceRecord(ctx, id, full); err != nil {
			t.Fatal(err)
		}

		got, err := s.FetchRecord(ctx, id)
		if err != nil {
			t.Fatal(err)
		}
		if !got.Complete() || !*got.VisualDiff || *got.MetadataDiff || !*got.BodyDiff {
			t.Errorf("verdict not persisted: %+v", got)
		}
		if got.After.Body != "<p>b</p>" || got.Before.Image != "image-a" {
			t.Errorf("sides not persisted: %+v %+v", got.Before, got.After)
		}
		if got.Similarity == nil || got.Similarity.Structure != 0.9375 || got.Similarity.Text != 0.75 {
			t.Errorf("similarity not persisted: %+v", got.Similarity)
		}
		if !got.CreatedAt.Equal(placeholder.CreatedAt) {
			t.Errorf("createdAt changed: %v -> %v", placeholder.CreatedAt, got.CreatedAt)
		}
	})

	t.Run("ReplaceUnknownID", func(t *testing.T) {
		err := s.ReplaceRecord(ctx, "does-not-exist", &models.Record{})
		if !errors.Is(err, store.ErrNotFound) {
			t.Errorf("expected ErrNotFound, got %v", err)
		}
	})

	t.Run("FetchUnknownID", func(t *testing.T) {
		if _, err := s.FetchRecord(ctx, "does-not-exist"); !errors.Is(err, store.ErrNotFound) {
			t.Errorf("expected ErrNotFound, got %v", err)
		}
	})

	t.Run("Assets", func(t *testing.T) {
		ref, err := s.UploadAsset(ctx, pngHeader)
		if err != nil {
			t.Fatal(err)
		}
		if !strings.HasPrefix(string(ref), "image-") {
			t.Errorf("asset ref = %q", ref)
		}
		asset, err := s.FetchAsset(ctx, ref)
		if err != nil {
			t.Fatal(err)
		}
		if !bytes.Equal(asset.Data, pngHeader) || asset.ContentType != "image/png" {
			t.Errorf("asset = %q (%s)", asset.Data, asset.ContentType)
		}
		if _, err := s.FetchAsset(ctx, "image-missing"); !errors.Is(err, store.ErrNotFound) {
			t.Errorf("expected ErrNotFound, got %v", err)
		}
	})

	t.Run("ListIDsInCreationOrder", func(t *testing.T) {
		var created []string
		for i := 0; i < 3; i++ {
			id, err := s.CreatePlaceholder(ctx)
			if err != nil {
				t.Fatal(err)
			}
			created = append(created, id)
		}
		ids, err := s.ListIDs(ctx)
		if err != nil {
			t.Fatal(err)
		}
		pos := make(map[string]int, len(ids))
		for i, id := range ids {
			pos[id] = i
		}
		for i, id := range created {
			p, ok := pos[id]
			if !ok {
				t.Fatalf("id %s missing from list", id)
			}
			if i > 0 && p <= pos[created[i-1]] {
				t.Errorf("ids out of creation order: %v", ids)
			}
		}
	})

	t.Run("ConcurrentWriters", func(t *testing.T) {
		const writers, rounds = 8, 5
		shot := bytes.Repeat(pngHeader, 1<<16)

		var g errgroup.Group
		for w := 0; w < writers; w++ {
			g.Go(func() error {
				for i := 0; i < rounds; i++ {
					if _, err := s.UploadAsset(ctx, shot); err != nil {
						return err
					}
					id, err := s.CreatePlaceholder(ctx)
					if err != nil {
						return err
					}
					rec := &models.Record{ID: id, VisualDiff: models.Bool(false), MetadataDiff: models.Bool(false), BodyDiff: models.Bool(false)}
					if err := s.ReplaceRecord(ctx, id, rec); err != nil {
						return err
					}
				}
				return nil
			})
		}
		if err := g.Wait(); err != nil {
			t.Fatalf("concurrent write failed: %v", err)
		}
	})
}
