package pipeline

import (
	"context"
	"strings"

	"go.uber.org/zap"

	"visionaid/internal/models"
)

// SpeechRenderer converts finished text artifacts into audio in a fixed language.
type SpeechRenderer struct {
	synth    SpeechSynthesizer
	language string
	guard    guard
}

// NewSpeechRenderer binds a synthesizer to a language code such as "en".
func NewSpeechRenderer(synth SpeechSynthesizer, language string, opts ...Option) *SpeechRenderer {
	o := buildOptions(opts)
	return &SpeechRenderer{
		synth:    synth,
		language: language,
		guard:    newGuard(o),
	}
}

// Wait blocks until synthesizer calls abandoned after a timeout have returned.
func (r *SpeechRenderer) Wait() {
	r.guard.wait()
}

// Render synthesizes text. Blank text is rejected with ErrEmptyInput before
// the synthesizer is called; synthesizer failures come back as *CollaboratorError.
func (r *SpeechRenderer) Render(ctx context.Context, text string) (models.AudioPayload, error) {
	if strings.TrimSpace(text) == "" {
		return models.AudioPayload{}, ErrEmptyInput
	}
	audio, err := invoke(ctx, r.guard, KindSpeech, func(ctx context.Context) (models.AudioPayload, error) {
		return r.synth.Synthesize(ctx, text, r.language)
	})
	if err != nil {
		return models.AudioPayload{}, err
	}
	if len(audio.Data) == 0 {
		return models.AudioPayload{}, &CollaboratorError{Kind: KindSpeech, Err: errEmptyAudio}
	}
	if audio.Language == "" {
		audio.Language = r.language
	}
	r.guard.log.Debug("speech rendered", zap.Int("chars", len(text)), zap.Int("bytes", len(audio.Data)))
	return audio, nil
}
