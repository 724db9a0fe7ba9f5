package models

import "time"

// Run statuses recorded in the audit log.
const (
	RunStatusOK     = "ok"
	RunStatusEmpty  = "empty"
	RunStatusFailed = "failed"
	RunStatusDenied = "denied"
)

// StageRun is the audit record of one stage request. It never carries the
// produced text itself.
type StageRun struct {
	ID         int64     `json:"id"`
	Stage      Stage     `json:"stage"`
	ImageID    string    `json:"image_id"`
	Status     string    `json:"status"`
	Error      string    `json:"error,omitempty"`
	DurationMS int64     `json:"duration_ms"`
	TextChars  int       `json:"text_chars"`
	AudioBytes int       `json:"audio_bytes"`
	CreatedAt  time.Time `json:"created_at"`
}
