package pipeline

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"visionaid/internal/models"
)

// VisionAnalyzer answers natural-language instructions about an image, or
// about plain text when no image is involved.
type VisionAnalyzer interface {
	Analyze(ctx context.Context, image models.ImageHandle, instruction string) (string, error)
	Complete(ctx context.Context, prompt string) (string, error)
}

// TextExtractor runs OCR. An empty string means no text was found.
type TextExtractor interface {
	Extract(ctx context.Context, image models.ImageHandle) (string, error)
}

// SpeechSynthesizer turns text into encoded audio in the given language.
type SpeechSynthesizer interface {
	Synthesize(ctx context.Context, text, language string) (models.AudioPayload, error)
}

// Limiter decides whether another collaborator call is allowed for key.
type Limiter interface {
	Allow(ctx context.Context, key string) (bool, error)
}

// guard applies the quota and timeout policy shared by every collaborator call.
// inflight counts calls that have not returned yet, including ones abandoned
// after a timeout; some collaborators (tesseract) ignore ctx entirely.
type guard struct {
	limiter  Limiter
	timeout  time.Duration
	log      *zap.Logger
	inflight *sync.WaitGroup
}

func newGuard(o options) guard {
	return guard{limiter: o.limiter, timeout: o.timeout, log: o.log, inflight: &sync.WaitGroup{}}
}

// wait blocks until every call started through g has returned.
func (g guard) wait() {
	if g.inflight != nil {
		g.inflight.Wait()
	}
}

const defaultCallTimeout = 60 * time.Second

func invoke[T any](ctx context.Context, g guard, kind string, fn func(context.Context) (T, error)) (T, error) {
	var zero T
	if g.limiter != nil {
		ok, err := g.limiter.Allow(ctx, kind)
		switch {
		case err != nil:
			// an unavailable quota backend must not take the pipeline down with it
			g.log.Warn("quota check failed", zap.String("collaborator", kind), zap.Error(err))
		case !ok:
			return zero, &CollaboratorError{Kind: kind, Err: ErrQuotaExceeded}
		}
	}

	timeout := g.timeout
	if timeout <= 0 {
		timeout = defaultCallTimeout
	}
	callCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	type reply struct {
		val T
		err error
	}
	ch := make(chan reply, 1)
	if g.inflight != nil {
		g.inflight.Add(1)
	}
	go func() {
		if g.inflight != nil {
			defer g.inflight.Done()
		}
		v, err := fn(callCtx)
		ch <- reply{val: v, err: err}
	}()

	select {
	case r := <-ch:
		if r.err != nil {
			return zero, &CollaboratorError{Kind: kind, Err: r.err}
		}
		return r.val, nil
	case <-callCtx.Done():
		g.log.Warn("collaborator call abandoned", zap.String("collaborator", kind), zap.Duration("timeout", timeout))
		return zero, &CollaboratorError{Kind: kind, Err: fmt.Errorf("no response after %s: %w", timeout, callCtx.Err())}
	}
}
