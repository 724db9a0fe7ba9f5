package speech

import (
	"context"
	"fmt"
	"io"

	openai "github.com/sashabaranov/go-openai"
	"go.uber.org/zap"

	"visionaid/internal/config"
	"visionaid/internal/logger"
	"visionaid/internal/models"
)

// OpenAI synthesizes speech with the OpenAI audio API. The model detects the
// language from the input text.
type OpenAI struct {
	client *openai.Client
	model  openai.SpeechModel
	voice  openai.SpeechVoice
	log    *zap.Logger
}

// NewOpenAI builds a synthesizer from the openai provider entry.
func NewOpenAI(prov config.ProviderConfig, cfg config.SpeechConfig, log *zap.Logger) *OpenAI {
	clientCfg := openai.DefaultConfig(prov.APIKey)
	if prov.BaseURL != "" {
		clientCfg.BaseURL = prov.BaseURL
	}
	return newOpenAIWithClient(openai.NewClientWithConfig(clientCfg), cfg, log)
}

func newOpenAIWithClient(client *openai.Client, cfg config.SpeechConfig, log *zap.Logger) *OpenAI {
	log = logger.OrNop(log)
	o := &OpenAI{
		client: client,
		model:  openai.TTSModel1,
		voice:  openai.VoiceAlloy,
		log:    log,
	}
	if cfg.Model != "" {
		o.model = openai.SpeechModel(cfg.Model)
	}
	if cfg.Voice != "" {
		o.voice = openai.SpeechVoice(cfg.Voice)
	}
	return o
}

// Synthesize renders text as mp3.
func (o *OpenAI) Synthesize(ctx context.Context, text, language string) (models.AudioPayload, error) {
	resp, err := o.client.CreateSpeech(ctx, openai.CreateSpeechRequest{
		Model:          o.model,
		Input:          text,
		Voice:          o.voice,
		ResponseFormat: openai.SpeechResponseFormatMp3,
	})
	if err != nil {
		return models.AudioPayload{}, fmt.Errorf("openai speech: %w", err)
	}
	defer resp.Close()

	data, err := io.ReadAll(resp)
	if err != nil {
		return models.AudioPayload{}, fmt.Errorf("read openai audio: %w", err)
	}
	o.log.Debug("openai synthesized", zap.String("voice", string(o.voice)), zap.Int("bytes", len(data)))
	return models.AudioPayload{Data: data, MimeType: mimeMP3, Language: language}, nil
}
