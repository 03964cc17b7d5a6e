package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/use-agent/pagediff/models"
	"github.com/use-agent/pagediff/normalizer"
	"github.com/use-agent/pagediff/store/memory"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type fakeRunner struct {
	res   *models.DiffResult
	err   error
	calls int
}

func (f *fakeRunner) Run(ctx context.Context, req *models.DiffRequest) (*models.DiffResult, error) {
	f.calls++
	if err := req.Validate(); err != nil {
		return nil, err
	}
	return f.res, f.err
}

func postDiff(t *testing.T, runner DiffRunner, body string) (*httptest.ResponseRecorder, models.DiffResponse) {
	t.Helper()
	r := gin.New()
	r.POST("/diff", PostDiff(runner))

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/diff", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	r.ServeHTTP(w, req)

	var resp models.DiffResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("invalid JSON response %q: %v", w.Body.String(), err)
	}
	return w, resp
}

func TestPostDiff_Success(t *testing.T) {
	runner := &fakeRunner{res: &models.DiffResult{ID: "snap-1", MetadataDiff: true, Timing: models.TimingInfo{TotalMs: 42}}}
	w, resp := postDiff(t, runner, `{"beforeUrl":"https://example.com/a","afterUrl":"https://example.com/b"}`)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	if resp.ID != "snap-1" || !resp.MetadataDiff || resp.VisualDiff || resp.BodyDiff {
		t.Errorf("response = %+v", resp)
	}
	if resp.Message == "" || resp.Timing == nil || resp.Timing.TotalMs != 42 {
		t.Errorf("message/timing missing: %+v", resp)
	}
	if !strings.Contains(w.Body.String(), `"visualDiff":false`) {
		t.Errorf("false verdicts must be present in the body: %s", w.Body.String())
	}
}

func TestPostDiff_MalformedURL(t *testing.T) {
	runner := &fakeRunner{}
	w, resp := postDiff(t, runner, `{"beforeUrl":"not-a-url","afterUrl":"https://x.com"}`)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("status = %d", w.Code)
	}
	if resp.Error == nil || resp.Error.Code != models.ErrCodeInvalidInput || resp.ID != "" {
		t.Errorf("response = %+v", resp)
	}
	if runner.calls != 0 {
		t.Error("runner called for malformed input")
	}
}

func TestPostDiff_MissingField(t *testing.T) {
	w, _ := postDiff(t, &fakeRunner{}, `{"beforeUrl":"https://x.com"}`)
	if w.Code != http.StatusBadRequest {
		t.Errorf("status = %d", w.Code)
	}
}

func TestPostDiff_ErrorMapping(t *testing.T) {
	tests := []struct {
		err     error
		status  int
		message string
	}{
		{models.NewDiffError(models.ErrCodeCapture, "navigation failed", nil), http.StatusBadGateway, "Server error"},
		{models.NewDiffError(models.ErrCodeTimeout, "timed out", nil), http.StatusGatewayTimeout, "Server error"},
		{models.NewDiffError(models.ErrCodePersistence, "disk full", nil), http.StatusInternalServerError, "Server error"},
		{models.NewDiffError(models.ErrCodeComparison, "bad image", nil), http.StatusInternalServerError, "Server error"},
		{errors.New("boom"), http.StatusInternalServerError, "Server error"},
	}
	for _, tt := range tests {
		w, resp := postDiff(t, &fakeRunner{err: tt.err}, `{"beforeUrl":"https://example.com/a","afterUrl":"https://example.com/b"}`)
		if w.Code != tt.status || resp.Message != tt.message {
			t.Errorf("%v: status=%d message=%q, want %d %q", tt.err, w.Code, resp.Message, tt.status, tt.message)
		}
		if resp.ID != "" {
			t.Errorf("%v: failed response leaked id %q", tt.err, resp.ID)
		}
	}
}

func seed(t *testing.T) (*memory.Store, string) {
	t.Helper()
	ctx := context.Background()
	s := memory.New()
	id, _ := s.CreatePlaceholder(ctx)
	ref, _ := s.UploadAsset(ctx, []byte("\x89PNG\r\n\x1a\n\x00\x00\x00\rIHDR"))
	rec := &models.Record{
		ID:           id,
		VisualDiff:   models.Bool(true),
		MetadataDiff: models.Bool(false),
		BodyDiff:     models.Bool(false),
		Before: &models.Side{
			URL:      "https://example.com/a",
			Image:    ref,
			Metadata: `<title>Shop</title><meta property="og:type" content="website">`,
			Body:     `<h1>Shop</h1><p>Hello <a href="ANONYMOUS_HOSTNAME/cart">cart</a></p>`,
		},
		After: &models.Side{URL: "https://example.com/b", Image: ref},
	}
	if err := s.ReplaceRecord(ctx, id, rec); err != nil {
		t.Fatal(err)
	}
	return s, id
}

func serve(r *gin.Engine, path string) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, path, nil))
	return w
}

func reviewRouter(s *memory.Store) *gin.Engine {
	r := gin.New()
	r.GET("/snapshots", ListSnapshots(s))
	r.GET("/snapshots/:id", GetSnapshot(s))
	r.GET("/snapshots/:id/:side/body", GetSideBody(s, normalizer.NewMarkdownConverter()))
	r.GET("/snapshots/:id/:side/metadata", GetSideMetadata(s))
	r.GET("/assets/:ref", GetAsset(s))
	return r
}

func TestGetSnapshot(t *testing.T) {
	s, id := seed(t)
	r := reviewRouter(s)

	w := serve(r, "/snapshots/"+id)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	var resp models.SnapshotResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	if !resp.Complete || resp.Summary != "Visually differs · SEO metadata identical · Semantic structure identical" {
		t.Errorf("response = %+v", resp)
	}

	if w := serve(r, "/snapshots/nope"); w.Code != http.StatusNotFound {
		t.Errorf("missing snapshot status = %d", w.Code)
	}
}

func TestGetSnapshot_Placeholder(t *testing.T) {
	s := memory.New()
	id, _ := s.CreatePlaceholder(context.Background())
	r := reviewRouter(s)

	var resp models.SnapshotResponse
	json.Unmarshal(serve(r, "/snapshots/"+id).Body.Bytes(), &resp)
	if resp.Complete || resp.Summary != "Comparison incomplete" {
		t.Errorf("placeholder response = %+v", resp)
	}
	if w := serve(r, "/snapshots/"+id+"/before/body"); w.Code != http.StatusNotFound {
		t.Errorf("placeholder side status = %d", w.Code)
	}
}

func TestListSnapshots(t *testing.T) {
	s, id := seed(t)
	var resp models.SnapshotListResponse
	json.Unmarshal(serve(reviewRouter(s), "/snapshots").Body.Bytes(), &resp)
	if resp.Total != 1 || resp.IDs[0] != id {
		t.Errorf("list = %+v", resp)
	}

	var empty models.SnapshotListResponse
	w := serve(reviewRouter(memory.New()), "/snapshots")
	json.Unmarshal(w.Body.Bytes(), &empty)
	if empty.Total != 0 || !strings.Contains(w.Body.String(), `"ids":[]`) {
		t.Errorf("empty list = %s", w.Body.String())
	}
}

func TestGetSideBody(t *testing.T) {
	s, id := seed(t)
	r := reviewRouter(s)

	w := serve(r, "/snapshots/"+id+"/before/body")
	if w.Code != http.StatusOK || !strings.HasPrefix(w.Body.String(), "<h1>Shop</h1>") {
		t.Errorf("html body = %d %q", w.Code, w.Body.String())
	}

	w = serve(r, "/snapshots/"+id+"/before/body?format=markdown")
	if w.Code != http.StatusOK || !strings.Contains(w.Body.String(), "# Shop") {
		t.Errorf("markdown body = %d %q", w.Code, w.Body.String())
	}

	if w := serve(r, "/snapshots/"+id+"/before/body?format=pdf"); w.Code != http.StatusBadRequest {
		t.Errorf("bad format status = %d", w.Code)
	}
	if w := serve(r, "/snapshots/"+id+"/middle/body"); w.Code != http.StatusBadRequest {
		t.Errorf("bad side status = %d", w.Code)
	}
}

func TestGetSideMetadata(t *testing.T) {
	s, id := seed(t)
	w := serve(reviewRouter(s), "/snapshots/"+id+"/before/metadata")
	var resp models.SideMetadataResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	want := []models.MetadataEntry{{Key: "og:type", Value: "website"}, {Key: "title", Value: "Shop"}}
	if len(resp.Metadata) != 2 || resp.Metadata[0] != want[0] || resp.Metadata[1] != want[1] {
		t.Errorf("metadata = %+v", resp.Metadata)
	}
}

func TestGetAsset(t *testing.T) {
	s, id := seed(t)
	rec, _ := s.FetchRecord(context.Background(), id)
	r := reviewRouter(s)

	w := serve(r, "/assets/"+string(rec.Before.Image))
	if w.Code != http.StatusOK || w.Header().Get("Content-Type") != "image/png" {
		t.Errorf("asset = %d %q", w.Code, w.Header().Get("Content-Type"))
	}
	if w := serve(r, "/assets/image-missing"); w.Code != http.StatusNotFound {
		t.Errorf("missing asset status = %d", w.Code)
	}
}

type fixedStats models.SessionStats

func (f fixedStats) Stats() models.SessionStats { return models.SessionStats(f) }

func TestHealth(t *testing.T) {
	tests := []struct {
		active int
		want   string
	}{
		{0, "healthy"},
		{4, "healthy"},
		{5, "degraded"},
	}
	for _, tt := range tests {
		r := gin.New()
		r.GET("/health", Health(fixedStats{MaxSessions: 5, ActiveSessions: tt.active}, "memory", time.Now()))
		var resp models.HealthResponse
		json.Unmarshal(serve(r, "/health").Body.Bytes(), &resp)
		if resp.Status != tt.want || resp.Store != "memory" || resp.Version != Version {
			t.Errorf("active=%d: %+v", tt.active, resp)
		}
	}
}
