package speech

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"visionaid/internal/config"
	"visionaid/internal/models"
)

var (
	// ErrThrottled is returned when the provider rejects a request for rate reasons.
	ErrThrottled = errors.New("speech provider throttled")
	// ErrRejected is returned when the provider refuses the input itself.
	ErrRejected = errors.New("speech provider rejected input")
)

const mimeMP3 = "audio/mpeg"

// Synthesizer turns text into encoded audio.
type Synthesizer interface {
	Synthesize(ctx context.Context, text, language string) (models.AudioPayload, error)
}

// New returns the synthesizer selected by cfg.Speech.Provider.
func New(cfg *config.Config, log *zap.Logger) (Synthesizer, error) {
	switch cfg.Speech.Provider {
	case "polly":
		return NewPolly(cfg.Speech, log), nil
	case "openai":
		prov, ok := cfg.Provider("openai")
		if !ok {
			return nil, fmt.Errorf("speech provider openai requires providers.openai")
		}
		return NewOpenAI(prov, cfg.Speech, log), nil
	default:
		return nil, fmt.Errorf("unsupported speech provider: %s", cfg.Speech.Provider)
	}
}
