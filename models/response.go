package models

// DiffResult is the verdict returned by one comparison run.
type DiffResult struct {
	ID           string     `json:"id"`
	VisualDiff   bool       `json:"visualDiff"`
	MetadataDiff bool       `json:"metadataDiff"`
	BodyDiff     bool       `json:"bodyDiff"`
	Similarity   Similarity `json:"similarity"`
	Timing       TimingInfo `json:"timing"`
}

// DiffResponse is the response for POST /api/v1/diff.
type DiffResponse struct {
	ID           string       `json:"id,omitempty"`
	VisualDiff   bool         `json:"visualDiff"`
	MetadataDiff bool         `json:"metadataDiff"`
	BodyDiff     bool         `json:"bodyDiff"`
	Similarity   *Similarity  `json:"similarity,omitempty"`
	Message      string       `json:"message"`
	Timing       *TimingInfo  `json:"timing,omitempty"`
	Error        *ErrorDetail `json:"error,omitempty"`
}

// TimingInfo breaks down the time spent in each phase of a run.
type TimingInfo struct {
	TotalMs   int64 `json:"totalMs"`
	CaptureMs int64 `json:"captureMs"`
	CompareMs int64 `json:"compareMs"`
	PersistMs int64 `json:"persistMs"`
}

// ErrorResponse is the body of every non-2xx response outside /diff.
type ErrorResponse struct {
	Message string       `json:"message"`
	Error   *ErrorDetail `json:"error,omitempty"`
}

// StatusMessage is the client-facing message for an error status: "Server
// error" for 5xx and "Bad request" for everything else. Details travel in
// the error code.
func StatusMessage(status int) string {
	if status >= 500 {
		return "Server error"
	}
	return "Bad request"
}

// SnapshotResponse is the response for GET /api/v1/snapshots/:id.
type SnapshotResponse struct {
	Record   *Record `json:"record"`
	Complete bool    `json:"complete"`
	Summary  string  `json:"summary"`
}

// SnapshotListResponse is the response for GET /api/v1/snapshots.
type SnapshotListResponse struct {
	IDs   []string `json:"ids"`
	Total int      `json:"total"`
}

// MetadataEntry is one key/value pair of normalized SEO metadata.
type MetadataEntry struct {
	Key   string `json:"key"`
	Value string `json:"value"`
}

// SideMetadataResponse is the response for GET /api/v1/snapshots/:id/:side/metadata.
type SideMetadataResponse struct {
	URL      string          `json:"url"`
	Metadata []MetadataEntry `json:"metadata"`
}

// HealthResponse is the response for GET /api/v1/health.
type HealthResponse struct {
	Status       string       `json:"status"` // "healthy" or "degraded"
	Uptime       string       `json:"uptime"`
	SessionStats SessionStats `json:"sessionStats"`
	Store        string       `json:"store"`
	Version      string       `json:"version"`
}

// SessionStats reports browser session utilisation.
type SessionStats struct {
	MaxSessions    int `json:"maxSessions"`
	ActiveSessions int `json:"activeSessions"`
}
