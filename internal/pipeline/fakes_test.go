package pipeline

import (
	"context"
	"sync"

	"visionaid/internal/models"
)

type fakeVision struct {
	mu       sync.Mutex
	text     string
	err      error
	block    chan struct{}
	deaf     bool // ignore ctx while blocked, like a cgo call
	prompts  []string
	analyzed []string
}

func (f *fakeVision) Analyze(ctx context.Context, image models.ImageHandle, instruction string) (string, error) {
	f.mu.Lock()
	f.analyzed = append(f.analyzed, instruction)
	block, deaf := f.block, f.deaf
	f.mu.Unlock()
	if block != nil && deaf {
		<-block
	} else if block != nil {
		select {
		case <-block:
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
	return f.text, f.err
}

func (f *fakeVision) Complete(ctx context.Context, prompt string) (string, error) {
	f.mu.Lock()
	f.prompts = append(f.prompts, prompt)
	f.mu.Unlock()
	return f.text, f.err
}

type fakeOCR struct {
	text  string
	err   error
	calls int
}

func (f *fakeOCR) Extract(ctx context.Context, image models.ImageHandle) (string, error) {
	f.calls++
	return f.text, f.err
}

type fakeSynth struct {
	mu    sync.Mutex
	err   error
	empty bool
	texts []string
}

func (f *fakeSynth) Synthesize(ctx context.Context, text, language string) (models.AudioPayload, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.texts = append(f.texts, text)
	if f.err != nil {
		return models.AudioPayload{}, f.err
	}
	if f.empty {
		return models.AudioPayload{MimeType: "audio/mpeg"}, nil
	}
	return models.AudioPayload{Data: []byte("mp3:" + text), MimeType: "audio/mpeg"}, nil
}

func (f *fakeSynth) calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.texts)
}

type fakeLimiter struct {
	allow bool
	err   error
	keys  []string
}

func (f *fakeLimiter) Allow(ctx context.Context, key string) (bool, error) {
	f.keys = append(f.keys, key)
	return f.allow, f.err
}

type memRecorder struct {
	mu   sync.Mutex
	runs []models.StageRun
}

func (m *memRecorder) Record(ctx context.Context, run models.StageRun) error {
	m.mu.Lock()
	m.runs = append(m.runs, run)
	m.mu.Unlock()
	return nil
}

func (m *memRecorder) all() []models.StageRun {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]models.StageRun(nil), m.runs...)
}

func newImage(id string) models.ImageHandle {
	return models.ImageHandle{ID: id, Format: "png", MimeType: "image/png", Width: 4, Height: 3, Data: []byte(id)}
}

func strPtr(s string) *string { return &s }
