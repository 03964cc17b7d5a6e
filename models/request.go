package models

import (
	"net/url"
	"strings"
)

// DiffRequest is the payload for POST /api/v1/diff.
type DiffRequest struct {
	// BeforeURL is the reference page. Required, absolute http(s) URL.
	BeforeURL string `json:"beforeUrl" binding:"required,url"`

	// AfterURL is the page compared against BeforeURL. Required, absolute http(s) URL.
	AfterURL string `json:"afterUrl" binding:"required,url"`
}

// Validate checks both URLs independently of the transport's own binding,
// so non-HTTP callers get the same rejection before any capture starts.
func (r *DiffRequest) Validate() error {
	if r == nil {
		return NewDiffError(ErrCodeInvalidInput, "request body is required", nil)
	}
	if err := validateAbsoluteURL("beforeUrl", r.BeforeURL); err != nil {
		return err
	}
	return validateAbsoluteURL("afterUrl", r.AfterURL)
}

func validateAbsoluteURL(field, raw string) error {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return NewDiffError(ErrCodeInvalidInput, field+" is required", nil)
	}
	u, err := url.Parse(raw)
	if err != nil {
		return NewDiffError(ErrCodeInvalidInput, field+" is not a valid URL", err)
	}
	if !u.IsAbs() || u.Host == "" {
		return NewDiffError(ErrCodeInvalidInput, field+" must be an absolute URL", nil)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return NewDiffError(ErrCodeInvalidInput, field+" must use http or https", nil)
	}
	return nil
}
