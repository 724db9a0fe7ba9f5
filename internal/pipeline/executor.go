package pipeline

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"visionaid/internal/logger"
	"visionaid/internal/models"
)

// Executor runs a single stage against the session store.
type Executor struct {
	vision VisionAnalyzer
	ocr    TextExtractor
	guard  guard
	log    *zap.Logger
	now    func() time.Time
}

// Option configures an Executor or a SpeechRenderer.
type Option func(*options)

type options struct {
	limiter Limiter
	timeout time.Duration
	log     *zap.Logger
}

// WithLimiter applies a quota to collaborator calls.
func WithLimiter(l Limiter) Option {
	return func(o *options) { o.limiter = l }
}

// WithTimeout bounds each collaborator call.
func WithTimeout(d time.Duration) Option {
	return func(o *options) { o.timeout = d }
}

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(o *options) { o.log = l }
}

func buildOptions(opts []Option) options {
	o := options{timeout: defaultCallTimeout}
	for _, opt := range opts {
		opt(&o)
	}
	o.log = logger.OrNop(o.log)
	return o
}

// NewExecutor wires the vision and OCR collaborators.
func NewExecutor(vision VisionAnalyzer, ocr TextExtractor, opts ...Option) *Executor {
	o := buildOptions(opts)
	return &Executor{
		vision: vision,
		ocr:    ocr,
		guard:  newGuard(o),
		log:    o.log,
		now:    time.Now,
	}
}

// Wait blocks until collaborator calls abandoned after a timeout have returned.
func (e *Executor) Wait() {
	e.guard.wait()
}

// Run executes stage. The returned error is non-nil only when the stage may not
// run at all (ErrPrecondition, ErrNoImage, ErrUnknownStage); collaborator
// failures are reported through StageResult.Err and leave the store untouched.
func (e *Executor) Run(ctx context.Context, stage models.Stage, store *Store) (models.StageResult, error) {
	state, img := store.view()
	result := models.StageResult{Stage: stage}
	if err := checkGate(stage, state); err != nil {
		return result, err
	}
	result.ImageID = state.Image.ID

	start := e.now()
	text, err := e.dispatch(ctx, stage, state, img)
	result.Duration = e.now().Sub(start)
	if err != nil {
		result.Err = err.Error()
		e.log.Warn("stage failed",
			zap.String("stage", string(stage)),
			zap.String("image_id", result.ImageID),
			zap.Duration("duration", result.Duration),
			zap.Error(err))
		return result, nil
	}

	if err := store.commit(result.ImageID, stage, text); err != nil {
		if errors.Is(err, ErrStaleImage) {
			result.Err = ErrStaleImage.Error()
			e.log.Info("stage result discarded", zap.String("stage", string(stage)), zap.String("image_id", result.ImageID))
			return result, nil
		}
		return result, err
	}

	result.Text = text
	if stage == models.StageExtractText && text == "" {
		result.Notice = NoTextNotice
	}
	e.log.Info("stage finished",
		zap.String("stage", string(stage)),
		zap.String("image_id", result.ImageID),
		zap.Duration("duration", result.Duration),
		zap.Int("chars", len(text)))
	return result, nil
}

func (e *Executor) dispatch(ctx context.Context, stage models.Stage, state models.SessionState, img *models.ImageHandle) (string, error) {
	switch stage {
	case models.StageExtractText:
		if e.ocr == nil {
			return "", &CollaboratorError{Kind: KindOCR, Err: errors.New("not configured")}
		}
		text, err := invoke(ctx, e.guard, KindOCR, func(ctx context.Context) (string, error) {
			return e.ocr.Extract(ctx, *img)
		})
		return strings.TrimSpace(text), err
	case models.StageSummarizeText:
		if e.vision == nil {
			return "", &CollaboratorError{Kind: KindVision, Err: errors.New("not configured")}
		}
		prompt := SummaryPrompt(*state.ExtractedText)
		text, err := invoke(ctx, e.guard, KindVision, func(ctx context.Context) (string, error) {
			return e.vision.Complete(ctx, prompt)
		})
		return strings.TrimSpace(text), err
	default:
		instruction, ok := Instruction(stage)
		if !ok {
			return "", fmt.Errorf("%w: %s", ErrUnknownStage, stage)
		}
		if e.vision == nil {
			return "", &CollaboratorError{Kind: KindVision, Err: errors.New("not configured")}
		}
		text, err := invoke(ctx, e.guard, KindVision, func(ctx context.Context) (string, error) {
			return e.vision.Analyze(ctx, *img, instruction)
		})
		return strings.TrimSpace(text), err
	}
}
