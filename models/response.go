package models

// ResultEntry is the outcome for one requested URL.
//
// A packaged entry carries Filename and Content; an unresolved entry
// carries only Error, whose Code is one of the Reason* constants.
type ResultEntry struct {
	Filename string `json:"filename,omitempty"`

	// Content is base64(gzip(file bytes)).
	Content string `json:"content,omitempty"`

	// Size is the uncompressed snapshot size in bytes.
	Size int64 `json:"size,omitempty"`

	// Fingerprint is the hex SimHash of the snapshot's DOM structure.
	Fingerprint string `json:"fingerprint,omitempty"`

	// Score is the similarity score the file was matched with.
	Score float64 `json:"score,omitempty"`

	Error *ErrorDetail `json:"error,omitempty"`
}

// Resolved reports whether the entry carries content.
func (e ResultEntry) Resolved() bool {
	return e.Error == nil
}

// BatchStats summarises one reconciliation run.
type BatchStats struct {
	Requested  int   `json:"requested"`
	Packaged   int   `json:"packaged"`
	Unresolved int   `json:"unresolved"`
	Ticks      int   `json:"ticks"`
	ElapsedMs  int64 `json:"elapsed_ms"`
}

// SnapshotResponse is the response for POST /api/v1/snapshots.
type SnapshotResponse struct {
	ID          string                 `json:"id"`
	Message     string                 `json:"message"`
	URLMappings map[string]ResultEntry `json:"url_mappings"`
	Stats       BatchStats             `json:"stats"`
}

// HealthResponse is the response for GET /api/v1/health.
type HealthResponse struct {
	Status      string `json:"status"` // "healthy" or "busy"
	Uptime      string `json:"uptime"`
	Mode        string `json:"mode"` // "extension" or "direct"
	BatchActive bool   `json:"batch_active"`
	Version     string `json:"version"`
}

// ErrorResponse is the body of every non-2xx API response.
type ErrorResponse struct {
	Error *ErrorDetail `json:"error"`
}
