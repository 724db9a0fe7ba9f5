package models

import "time"

// ImageHandle is the currently loaded image. Handles are replaced, never mutated.
type ImageHandle struct {
	ID       string    `json:"id"`
	FileName string    `json:"file_name"`
	Format   string    `json:"format"`
	MimeType string    `json:"mime_type"`
	Width    int       `json:"width"`
	Height   int       `json:"height"`
	Data     []byte    `json:"-"`
	LoadedAt time.Time `json:"loaded_at"`
}

// ImageInfo is the metadata part of an ImageHandle exposed in snapshots.
type ImageInfo struct {
	ID       string    `json:"id"`
	FileName string    `json:"file_name"`
	Format   string    `json:"format"`
	Width    int       `json:"width"`
	Height   int       `json:"height"`
	Size     int       `json:"size"`
	LoadedAt time.Time `json:"loaded_at"`
}

// Info returns the handle metadata without pixel data.
func (h ImageHandle) Info() ImageInfo {
	return ImageInfo{
		ID:       h.ID,
		FileName: h.FileName,
		Format:   h.Format,
		Width:    h.Width,
		Height:   h.Height,
		Size:     len(h.Data),
		LoadedAt: h.LoadedAt,
	}
}
