package speech

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/polly"
	pollytypes "github.com/aws/aws-sdk-go-v2/service/polly/types"
	"github.com/aws/smithy-go"
	"go.uber.org/zap"

	"visionaid/internal/config"
	"visionaid/internal/logger"
	"visionaid/internal/models"
)

type synthClient interface {
	SynthesizeSpeech(ctx context.Context, params *polly.SynthesizeSpeechInput, optFns ...func(*polly.Options)) (*polly.SynthesizeSpeechOutput, error)
}

// default voice per language code
var pollyVoices = map[string]string{
	"en": "Joanna",
	"es": "Lucia",
	"fr": "Lea",
	"de": "Vicki",
	"it": "Bianca",
	"pt": "Camila",
	"ja": "Mizuki",
	"hi": "Aditi",
}

// Polly synthesizes speech with Amazon Polly.
type Polly struct {
	cfg config.SpeechConfig
	log *zap.Logger

	mu     sync.Mutex
	client synthClient
}

// NewPolly builds a Polly synthesizer; the AWS client is created on first use.
func NewPolly(cfg config.SpeechConfig, log *zap.Logger) *Polly {
	log = logger.OrNop(log)
	return &Polly{cfg: cfg, log: log}
}

func newPollyWithClient(cfg config.SpeechConfig, client synthClient) *Polly {
	p := NewPolly(cfg, nil)
	p.client = client
	return p
}

// Synthesize renders text as mp3.
func (p *Polly) Synthesize(ctx context.Context, text, language string) (models.AudioPayload, error) {
	client, err := p.resolveClient(ctx)
	if err != nil {
		return models.AudioPayload{}, err
	}

	engine := pollytypes.EngineStandard
	if strings.EqualFold(p.cfg.Engine, "neural") {
		engine = pollytypes.EngineNeural
	}
	voice := p.voiceFor(language)

	output, err := client.SynthesizeSpeech(ctx, &polly.SynthesizeSpeechInput{
		Engine:       engine,
		OutputFormat: pollytypes.OutputFormatMp3,
		Text:         aws.String(text),
		TextType:     pollytypes.TextTypeText,
		VoiceId:      pollytypes.VoiceId(voice),
	})
	if err != nil {
		return models.AudioPayload{}, normalizePollyError(err)
	}
	if output == nil || output.AudioStream == nil {
		return models.AudioPayload{}, errors.New("polly returned no audio stream")
	}
	defer output.AudioStream.Close()

	data, err := io.ReadAll(output.AudioStream)
	if err != nil {
		return models.AudioPayload{}, fmt.Errorf("read polly audio: %w", err)
	}
	p.log.Debug("polly synthesized", zap.String("voice", voice), zap.Int("bytes", len(data)))
	return models.AudioPayload{Data: data, MimeType: mimeMP3, Language: language}, nil
}

func (p *Polly) voiceFor(language string) string {
	if p.cfg.Voice != "" {
		return p.cfg.Voice
	}
	lang := strings.ToLower(language)
	if i := strings.IndexAny(lang, "-_"); i > 0 {
		lang = lang[:i]
	}
	if v, ok := pollyVoices[lang]; ok {
		return v
	}
	return pollyVoices["en"]
}

func normalizePollyError(err error) error {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.ErrorCode() {
		case "TooManyRequestsException", "ThrottlingException":
			return fmt.Errorf("%w: %s", ErrThrottled, apiErr.ErrorMessage())
		case "InvalidSsmlException", "TextLengthExceededException", "LexiconNotFoundException",
			"MarksNotSupportedForFormatException", "InvalidSampleRateException", "EngineNotSupportedException":
			return fmt.Errorf("%w: %s: %s", ErrRejected, apiErr.ErrorCode(), apiErr.ErrorMessage())
		}
	}
	return fmt.Errorf("polly synthesize: %w", err)
}

func (p *Polly) resolveClient(ctx context.Context) (synthClient, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.client != nil {
		return p.client, nil
	}
	var opts []func(*awsconfig.LoadOptions) error
	if p.cfg.Region != "" {
		opts = append(opts, awsconfig.WithRegion(p.cfg.Region))
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}
	p.client = polly.NewFromConfig(awsCfg)
	return p.client, nil
}
