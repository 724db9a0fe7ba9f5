package models

// AudioPayload is encoded speech for one text artifact.
type AudioPayload struct {
	Data     []byte `json:"data"`
	MimeType string `json:"mime_type"`
	Language string `json:"language"`
}
