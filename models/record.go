package models

import (
	"strings"
	"time"
)

// AssetRef identifies a binary asset (an image) held by the snapshot store.
type AssetRef string

// Side is one half of a persisted comparison: the page URL, a reference to
// its stored screenshot and the normalized text used for comparison.
type Side struct {
	URL      string   `json:"url"`
	Image    AssetRef `json:"image,omitempty"`
	Metadata string   `json:"metadata"`
	Body     string   `json:"body"`
}

// Record is the persisted result of one comparison run.
//
// A placeholder Record (ID and CreatedAt only, every verdict nil) is written
// before capture begins and replaced as a whole once the run completes. A
// placeholder that is never replaced marks a failed run.
//
// When a visual difference is found, After.Image references the highlighted
// diff overlay rather than the raw after screenshot, unless the store was
// configured to keep the overlay separately in DiffImage. Dropping the raw
// after screenshot is intentional: it keeps one asset per side.
type Record struct {
	ID           string    `json:"id"`
	CreatedAt    time.Time `json:"createdAt"`
	VisualDiff   *bool     `json:"visualDiff,omitempty"`
	MetadataDiff *bool     `json:"metadataDiff,omitempty"`
	BodyDiff     *bool     `json:"bodyDiff,omitempty"`
	DiffImage    AssetRef  `json:"diffImage,omitempty"`

	// Similarity scores how close the normalized bodies are. It is set on
	// complete records only and has no bearing on BodyDiff.
	Similarity *Similarity `json:"similarity,omitempty"`

	Before *Side `json:"before,omitempty"`
	After  *Side `json:"after,omitempty"`
}

// Similarity holds SimHash similarity scores in [0, 1] for the element
// structure and the text of two normalized bodies.
type Similarity struct {
	Structure float64 `json:"structure"`
	Text      float64 `json:"text"`
}

// NewPlaceholder returns the empty record written before capture.
func NewPlaceholder(id string, now time.Time) *Record {
	return &Record{ID: id, CreatedAt: now.UTC()}
}

// Complete reports whether the record carries a full verdict.
func (r *Record) Complete() bool {
	return r.VisualDiff != nil && r.MetadataDiff != nil && r.BodyDiff != nil &&
		r.Before != nil && r.After != nil
}

// Summary renders the one-line review description of the record, e.g.
// "Visually differs · SEO metadata identical · Semantic structure identical".
func (r *Record) Summary() string {
	if !r.Complete() {
		return "Comparison incomplete"
	}
	parts := []string{
		describe(*r.VisualDiff, "Visually differs", "Visually identical"),
		describe(*r.MetadataDiff, "SEO metadata differs", "SEO metadata identical"),
		describe(*r.BodyDiff, "Semantic structure differs", "Semantic structure identical"),
	}
	return strings.Join(parts, " · ")
}

func describe(diff bool, yes, no string) string {
	if diff {
		return yes
	}
	return no
}

// Side returns the named side ("before" or "after"), or nil.
func (r *Record) Side(name string) *Side {
	switch name {
	case "before":
		return r.Before
	case "after":
		return r.After
	}
	return nil
}

// Bool returns a pointer to b, for filling the verdict fields.
func Bool(b bool) *bool { return &b }

// Clone returns a deep copy of r.
func (r *Record) Clone() *Record {
	if r == nil {
		return nil
	}
	c := *r
	c.VisualDiff = cloneBool(r.VisualDiff)
	c.MetadataDiff = cloneBool(r.MetadataDiff)
	c.BodyDiff = cloneBool(r.BodyDiff)
	if r.Similarity != nil {
		sim := *r.Similarity
		c.Similarity = &sim
	}
	if r.Before != nil {
		b := *r.Before
		c.Before = &b
	}
	if r.After != nil {
		a := *r.After
		c.After = &a
	}
	return &c
}

func cloneBool(b *bool) *bool {
	if b == nil {
		return nil
	}
	return Bool(*b)
}
