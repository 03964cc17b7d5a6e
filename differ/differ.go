// Package differ runs the before/after comparison pipeline: capture both
// pages, normalize them, compare the three dimensions and persist the
// snapshot record.
package differ

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/andybalholm/cascadia"
	"golang.org/x/sync/errgroup"

	"github.com/use-agent/pagediff/capture"
	"github.com/use-agent/pagediff/imgdiff"
	"github.com/use-agent/pagediff/models"
	"github.com/use-agent/pagediff/normalizer"
	"github.com/use-agent/pagediff/simhash"
	"github.com/use-agent/pagediff/store"
	"github.com/use-agent/pagediff/webhook"
)

// PageCapturer renders one URL. *capture.Capturer implements it.
type PageCapturer interface {
	Capture(ctx context.Context, url string) (*capture.Page, error)
}

// Options tunes a Differ.
type Options struct {
	// IgnoreSelectors are removed from each page before body normalization.
	IgnoreSelectors []cascadia.Sel

	// SeparateDiffAsset keeps the raw after screenshot and stores the diff
	// overlay as Record.DiffImage. When false the overlay replaces the
	// after screenshot.
	SeparateDiffAsset bool

	// ConcurrentCapture renders both pages at once, each in its own session.
	ConcurrentCapture bool

	// Notifier receives snapshot.completed and snapshot.failed events. May be nil.
	Notifier *webhook.Notifier

	Logger *slog.Logger
}

// Differ owns the snapshot record lifecycle: it is the only writer of the
// records it creates. It is safe for concurrent use.
type Differ struct {
	capturer   PageCapturer
	comparator *imgdiff.Comparator
	store      store.Store
	opts       Options
	logger     *slog.Logger
}

// New creates a Differ.
func New(c PageCapturer, cmp *imgdiff.Comparator, s store.Store, opts Options) *Differ {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Differ{capturer: c, comparator: cmp, store: s, opts: opts, logger: logger}
}

// snapshot is the comparable form of one captured page.
type snapshot struct {
	url      string
	image    []byte
	metadata string
	body     string
}

func (s *snapshot) release() {
	if s != nil {
		s.image = nil
	}
}

// Run compares req.BeforeURL with req.AfterURL.
//
// Sequence:
//
//  1. Validate      – reject malformed URLs before any work
//  2. Placeholder   – allocate the record id
//  3. Capture       – both pages, each in its own isolated session
//  4. Compare       – image, SEO metadata, normalized body
//  5. Diff image    – overlay replaces the after image, or is kept apart
//  6. Persist       – upload assets, replace the placeholder in one write
//
// Any failure after step 2 leaves the placeholder in the store. There is no
// partial verdict: a failed comparison aborts the run.
func (d *Differ) Run(ctx context.Context, req *models.DiffRequest) (*models.DiffResult, error) {
	start := time.Now()

	// ── 1. Validate ───────────────────────────────────────────────────
	if err := req.Validate(); err != nil {
		err = tagError(err, models.ErrCodeInvalidInput, "invalid request", models.StageValidate, "")
		d.logFailure(ctx, d.logger, err)
		return nil, err
	}

	// ── 2. Placeholder ────────────────────────────────────────────────
	id, err := d.store.CreatePlaceholder(ctx)
	if err != nil {
		err = tagError(err, models.ErrCodePersistence, "failed to create placeholder record", models.StagePlaceholder, "")
		d.logFailure(ctx, d.logger, err)
		return nil, err
	}
	log := d.logger.With("id", id)
	log.Info("comparison started", "before", req.BeforeURL, "after", req.AfterURL)

	res, err := d.run(ctx, id, req, start)
	if err != nil {
		d.logFailure(ctx, log, err)
		var detail *models.ErrorDetail
		var de *models.DiffError
		if errors.As(err, &de) {
			detail = de.ToDetail()
		}
		d.opts.Notifier.Notify(webhook.NewEvent(webhook.EventFailed, id, detail))
		return nil, err
	}

	log.Info("comparison completed",
		"visualDiff", res.VisualDiff,
		"metadataDiff", res.MetadataDiff,
		"bodyDiff", res.BodyDiff,
		"structureSimilarity", res.Similarity.Structure,
		"totalMs", res.Timing.TotalMs,
	)
	d.opts.Notifier.Notify(webhook.NewEvent(webhook.EventCompleted, id, res))
	return res, nil
}

func (d *Differ) run(ctx context.Context, id string, req *models.DiffRequest, start time.Time) (*models.DiffResult, error) {
	// ── 3. Capture ────────────────────────────────────────────────────
	captureStart := time.Now()
	before, after, err := d.captureBoth(ctx, req)
	defer before.release()
	defer after.release()
	if err != nil {
		return nil, err
	}
	captureMs := time.Since(captureStart).Milliseconds()

	// ── 4. Compare ────────────────────────────────────────────────────
	compareStart := time.Now()
	img, err := d.comparator.Compare(before.image, after.image)
	if err != nil {
		return nil, tagError(err, models.ErrCodeComparison, "image comparison failed", models.StageCompare, "")
	}
	defer func() { img.DiffImage = nil }()

	visualDiff := !img.Equal
	metadataDiff := !normalizer.ExtractSEOMetadata(before.metadata).Equal(normalizer.ExtractSEOMetadata(after.metadata))
	bodyDiff := before.body != after.body
	similarity := simhash.Compare(before.body, after.body)
	compareMs := time.Since(compareStart).Milliseconds()

	// ── 5. Diff image ─────────────────────────────────────────────────
	afterImage, diffImage := after.image, []byte(nil)
	if visualDiff && len(img.DiffImage) > 0 {
		if d.opts.SeparateDiffAsset {
			diffImage = img.DiffImage
		} else {
			afterImage = img.DiffImage
		}
	}

	// ── 6. Persist ────────────────────────────────────────────────────
	persistStart := time.Now()
	beforeRef, err := d.upload(ctx, before.image, before.url)
	if err != nil {
		return nil, err
	}
	afterRef, err := d.upload(ctx, afterImage, after.url)
	if err != nil {
		return nil, err
	}
	var diffRef models.AssetRef
	if diffImage != nil {
		if diffRef, err = d.upload(ctx, diffImage, after.url); err != nil {
			return nil, err
		}
	}

	rec := &models.Record{
		ID:           id,
		CreatedAt:    start.UTC(),
		VisualDiff:   models.Bool(visualDiff),
		MetadataDiff: models.Bool(metadataDiff),
		BodyDiff:     models.Bool(bodyDiff),
		DiffImage:    diffRef,
		Similarity:   &similarity,
		Before:       &models.Side{URL: before.url, Image: beforeRef, Metadata: before.metadata, Body: before.body},
		After:        &models.Side{URL: after.url, Image: afterRef, Metadata: after.metadata, Body: after.body},
	}
	if err := d.store.ReplaceRecord(ctx, id, rec); err != nil {
		return nil, tagError(err, models.ErrCodePersistence, "failed to replace snapshot record", models.StagePersist, "")
	}
	persistMs := time.Since(persistStart).Milliseconds()

	return &models.DiffResult{
		ID:           id,
		VisualDiff:   visualDiff,
		MetadataDiff: metadataDiff,
		BodyDiff:     bodyDiff,
		Similarity:   similarity,
		Timing: models.TimingInfo{
			TotalMs:   time.Since(start).Milliseconds(),
			CaptureMs: captureMs,
			CompareMs: compareMs,
			PersistMs: persistMs,
		},
	}, nil
}

// captureBoth renders both pages, concurrently when configured. On error
// any snapshot already taken is still returned so the caller releases it.
func (d *Differ) captureBoth(ctx context.Context, req *models.DiffRequest) (before, after *snapshot, err error) {
	if !d.opts.ConcurrentCapture {
		if before, err = d.captureOne(ctx, req.BeforeURL); err != nil {
			return nil, nil, err
		}
		after, err = d.captureOne(ctx, req.AfterURL)
		return before, after, err
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		before, err = d.captureOne(gctx, req.BeforeURL)
		return err
	})
	g.Go(func() error {
		var err error
		after, err = d.captureOne(gctx, req.AfterURL)
		return err
	})
	err = g.Wait()
	return before, after, err
}

// captureOne renders url and reduces it to its comparable snapshot. The
// rendered markup is dropped as soon as it has been normalized.
func (d *Differ) captureOne(ctx context.Context, url string) (*snapshot, error) {
	page, err := d.capturer.Capture(ctx, url)
	if err != nil {
		return nil, tagError(err, models.ErrCodeCapture, "capture failed", models.StageCapture, url)
	}
	defer page.Release()

	markup := page.Markup
	if len(d.opts.IgnoreSelectors) > 0 {
		if markup, err = normalizer.StripSelectors(markup, d.opts.IgnoreSelectors); err != nil {
			return nil, tagError(err, models.ErrCodeComparison, "failed to strip ignored elements", models.StageCompare, url)
		}
	}

	s := &snapshot{
		url:      url,
		image:    page.Image,
		metadata: normalizer.ExtractMetadata(page.Markup),
		body:     normalizer.ExtractBody(markup),
	}
	page.Image = nil
	return s, nil
}

func (d *Differ) upload(ctx context.Context, data []byte, url string) (models.AssetRef, error) {
	ref, err := d.store.UploadAsset(ctx, data)
	if err != nil {
		return "", tagError(err, models.ErrCodePersistence, "failed to upload image", models.StagePersist, url)
	}
	return ref, nil
}

// logFailure logs capture failures, which are the target site's problem, at
// warn level and everything else at error level.
func (d *Differ) logFailure(ctx context.Context, log *slog.Logger, err error) {
	attrs := []any{"error", err}
	var de *models.DiffError
	if errors.As(err, &de) {
		attrs = append(attrs, "code", de.Code, "stage", de.Stage, "url", de.URL)
	}
	level := slog.LevelError
	if models.IsCaptureError(err) {
		level = slog.LevelWarn
	}
	log.Log(ctx, level, "comparison failed", attrs...)
}

// tagError makes sure err is a DiffError carrying a stage. Errors that
// already carry a code keep it.
func tagError(err error, code, msg, stage, url string) error {
	var de *models.DiffError
	if errors.As(err, &de) {
		if de.Stage != "" {
			return de
		}
		return de.WithStage(stage, url)
	}
	return models.NewDiffError(code, msg, err).WithStage(stage, url)
}
