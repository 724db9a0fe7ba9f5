package ocr

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/otiai10/gosseract/v2"
	"go.uber.org/zap"

	"visionaid/internal/config"
	"visionaid/internal/logger"
	"visionaid/internal/models"
)

// client is the subset of *gosseract.Client used here.
type client interface {
	SetImageFromBytes(data []byte) error
	SetLanguage(langs ...string) error
	SetTessdataPrefix(prefix string) error
	Text() (string, error)
	Close() error
}

// Tesseract extracts text with a fresh gosseract client per image.
type Tesseract struct {
	clientFactory func() client
	languages     []string
	tessdataDir   string
	log           *zap.Logger
}

// NewTesseract constructs a Tesseract-backed extractor.
func NewTesseract(cfg config.OCRConfig, log *zap.Logger) *Tesseract {
	log = logger.OrNop(log)
	return &Tesseract{
		clientFactory: func() client { return gosseract.NewClient() },
		languages:     cfg.Languages,
		tessdataDir:   cfg.TessdataDir,
		log:           log,
	}
}

// Extract returns the trimmed text found in the image; "" when there is none.
func (t *Tesseract) Extract(ctx context.Context, image models.ImageHandle) (string, error) {
	if len(image.Data) == 0 {
		return "", errors.New("image has no data")
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}

	c := t.clientFactory()
	defer c.Close()

	if t.tessdataDir != "" {
		if err := c.SetTessdataPrefix(t.tessdataDir); err != nil {
			return "", fmt.Errorf("set tessdata prefix: %w", err)
		}
	}
	if len(t.languages) > 0 {
		if err := c.SetLanguage(t.languages...); err != nil {
			return "", fmt.Errorf("set languages: %w", err)
		}
	}
	if err := c.SetImageFromBytes(image.Data); err != nil {
		return "", fmt.Errorf("set image: %w", err)
	}
	text, err := c.Text()
	if err != nil {
		return "", fmt.Errorf("recognize text: %w", err)
	}
	plain := strings.TrimSpace(text)
	t.log.Debug("ocr finished", zap.String("image_id", image.ID), zap.Int("chars", len(plain)))
	return plain, nil
}
