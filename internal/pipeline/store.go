package pipeline

import (
	"fmt"
	"sync"

	"visionaid/internal/models"
)

// Store holds the state of the single active session. Writes are serialized by
// mu; readers get deep copies and never observe a partial update.
type Store struct {
	mu    sync.RWMutex
	image *models.ImageHandle

	extracted *string
	summary   *string
	scene     *string
	obstacles *string
	guidance  *string

	// summarizeEnabled is recomputed whenever extracted changes.
	summarizeEnabled bool
}

// NewStore returns an empty session.
func NewStore() *Store {
	return &Store{}
}

// LoadImage replaces the current image. Derived artifacts are cleared only when
// the new handle has a different identity; it reports whether that happened.
func (s *Store) LoadImage(handle models.ImageHandle) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.image != nil && s.image.ID == handle.ID {
		return false
	}
	h := handle
	s.image = &h
	s.clearDerivedLocked()
	return true
}

// Get returns a snapshot of the session.
func (s *Store) Get() models.SessionState {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.getLocked()
}

func (s *Store) getLocked() models.SessionState {
	state := models.SessionState{
		ExtractedText:    cloneString(s.extracted),
		SummarizedText:   cloneString(s.summary),
		SummarizeEnabled: s.summarizeEnabled,
		SceneDescription: cloneString(s.scene),
		ObstacleReport:   cloneString(s.obstacles),
		Guidance:         cloneString(s.guidance),
	}
	if s.image != nil {
		info := s.image.Info()
		state.Image = &info
	}
	return state
}

// SetExtracted stores the OCR result; SummarizeEnabled follows from it.
func (s *Store) SetExtracted(text string) {
	s.mu.Lock()
	s.setExtractedLocked(text)
	s.mu.Unlock()
}

// SetSummary stores a summary. It fails without mutating state when there is
// no extracted text to summarize.
func (s *Store) SetSummary(text string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.setSummaryLocked(text)
}

// End clears the image and every artifact.
func (s *Store) End() {
	s.mu.Lock()
	s.image = nil
	s.clearDerivedLocked()
	s.mu.Unlock()
}

// commit writes the artifact of stage, but only while imageID is still current.
func (s *Store) commit(imageID string, stage models.Stage, text string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.image == nil || s.image.ID != imageID {
		return ErrStaleImage
	}
	switch stage {
	case models.StageDescribeScene:
		s.scene = &text
	case models.StageExtractText:
		s.setExtractedLocked(text)
	case models.StageSummarizeText:
		return s.setSummaryLocked(text)
	case models.StageDetectObstacles:
		s.obstacles = &text
	case models.StagePersonalizedGuidance:
		s.guidance = &text
	default:
		return fmt.Errorf("%w: %s", ErrUnknownStage, stage)
	}
	return nil
}

func (s *Store) setExtractedLocked(text string) {
	s.extracted = &text
	s.summarizeEnabled = text != ""
}

func (s *Store) setSummaryLocked(text string) error {
	if !s.summarizeEnabled {
		return fmt.Errorf("set summary: %w", ErrPrecondition)
	}
	s.summary = &text
	return nil
}

func (s *Store) clearDerivedLocked() {
	s.summarizeEnabled = false
	s.extracted = nil
	s.summary = nil
	s.scene = nil
	s.obstacles = nil
	s.guidance = nil
}

func cloneString(p *string) *string {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}

// view returns the snapshot and the image handle under one read lock.
func (s *Store) view() (models.SessionState, *models.ImageHandle) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var img *models.ImageHandle
	if s.image != nil {
		h := *s.image
		img = &h
	}
	return s.getLocked(), img
}
