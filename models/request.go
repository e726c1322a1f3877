package models

// SnapshotRequest is the payload for POST /api/v1/snapshots.
type SnapshotRequest struct {
	// URLs is the list of pages to capture. Required.
	URLs []string `json:"urls" binding:"required,min=1"`

	// Timeout is the batch deadline in seconds, measured from the moment
	// navigation is triggered. Default comes from configuration.
	Timeout int `json:"timeout,omitempty" binding:"omitempty,min=1"`

	// CallbackURL, when set, receives a signed snapshot.completed event
	// with the same body as the synchronous response.
	CallbackURL string `json:"callback_url,omitempty" binding:"omitempty,url"`
}
