package vision

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/cloudwego/eino-ext/components/model/claude"
	"github.com/cloudwego/eino-ext/components/model/gemini"
	"github.com/cloudwego/eino-ext/components/model/openai"
	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
	"go.uber.org/zap"
	"google.golang.org/genai"

	"visionaid/internal/config"
	"visionaid/internal/logger"
	"visionaid/internal/models"
)

const defaultMaxTokens = 1024

// NewChatModel builds the chat model of the configured vision provider.
func NewChatModel(ctx context.Context, cfg *config.Config) (model.BaseChatModel, error) {
	provider := cfg.Vision.Provider
	provCfg, ok := cfg.Provider(provider)
	if !ok {
		return nil, fmt.Errorf("provider %s not configured", provider)
	}
	modelName := cfg.Vision.Model
	if modelName == "" {
		modelName = provCfg.Model
	}

	switch provider {
	case "openai":
		return openai.NewChatModel(ctx, &openai.ChatModelConfig{
			BaseURL: provCfg.BaseURL,
			Model:   modelName,
			APIKey:  provCfg.APIKey,
		})
	case "gemini":
		client, err := genai.NewClient(ctx, &genai.ClientConfig{
			APIKey: provCfg.APIKey,
		})
		if err != nil {
			return nil, fmt.Errorf("new gemini client: %w", err)
		}
		return gemini.NewChatModel(ctx, &gemini.Config{
			Client: client,
			Model:  modelName,
		})
	case "claude":
		var baseURLPtr *string
		if provCfg.BaseURL != "" {
			baseURLPtr = &provCfg.BaseURL
		}
		maxTokens := cfg.Vision.MaxTokens
		if maxTokens <= 0 {
			maxTokens = defaultMaxTokens
		}
		return claude.NewChatModel(ctx, &claude.Config{
			APIKey:    provCfg.APIKey,
			Model:     modelName,
			BaseURL:   baseURLPtr,
			MaxTokens: maxTokens,
		})
	default:
		return nil, fmt.Errorf("invalid provider: %s", provider)
	}
}

// Service answers instructions about images through a multimodal chat model.
type Service struct {
	chat      model.BaseChatModel
	provider  string
	maxTokens int
	log       *zap.Logger
}

// New wraps chat. provider is only used for logging.
func New(chat model.BaseChatModel, provider string, maxTokens int, log *zap.Logger) *Service {
	log = logger.OrNop(log)
	return &Service{chat: chat, provider: provider, maxTokens: maxTokens, log: log}
}

// Analyze sends the image and instruction as one user message.
func (s *Service) Analyze(ctx context.Context, image models.ImageHandle, instruction string) (string, error) {
	if len(image.Data) == 0 {
		return "", errors.New("image has no data")
	}
	mimeType := image.MimeType
	if mimeType == "" {
		mimeType = "image/png"
	}
	dataURL := "data:" + mimeType + ";base64," + base64.StdEncoding.EncodeToString(image.Data)
	msg := &schema.Message{
		Role: schema.User,
		MultiContent: []schema.ChatMessagePart{
			{Type: schema.ChatMessagePartTypeText, Text: instruction},
			{
				Type: schema.ChatMessagePartTypeImageURL,
				ImageURL: &schema.ChatMessageImageURL{
					URL:      dataURL,
					MIMEType: mimeType,
				},
			},
		},
	}
	return s.generate(ctx, []*schema.Message{msg})
}

// Complete sends a text-only prompt.
func (s *Service) Complete(ctx context.Context, prompt string) (string, error) {
	return s.generate(ctx, []*schema.Message{schema.UserMessage(prompt)})
}

func (s *Service) generate(ctx context.Context, messages []*schema.Message) (string, error) {
	var opts []model.Option
	if s.maxTokens > 0 {
		opts = append(opts, model.WithMaxTokens(s.maxTokens))
	}
	stream, err := s.chat.Stream(ctx, messages, opts...)
	if err != nil {
		return "", fmt.Errorf("%s stream failed: %w", s.provider, err)
	}
	defer stream.Close()

	var sb strings.Builder
	for {
		chunk, err := stream.Recv()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return "", fmt.Errorf("%s stream recv: %w", s.provider, err)
		}
		sb.WriteString(chunk.Content)
	}
	s.log.Debug("vision reply", zap.String("provider", s.provider), zap.Int("chars", sb.Len()))
	return sb.String(), nil
}
