package pipeline

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"

	"visionaid/internal/logger"
	"visionaid/internal/models"
	"visionaid/internal/worker"
)

// Lane serializes stage requests.
type Lane interface {
	Submit(ctx context.Context, job worker.Job) error
	Stopped() <-chan struct{}
}

// RunRecorder receives the audit record of every stage request.
type RunRecorder interface {
	Record(ctx context.Context, run models.StageRun) error
}

// Outcome is what the presentation layer shows for one stage request.
type Outcome struct {
	Result     models.StageResult   `json:"result"`
	Audio      *models.AudioPayload `json:"audio,omitempty"`
	AudioError string               `json:"audio_error,omitempty"`
}

// Deps are the collaborators of a Controller. Recorder and Logger are optional.
type Deps struct {
	Store    *Store
	Executor *Executor
	Speech   *SpeechRenderer
	Lane     Lane
	Recorder RunRecorder
	Logger   *zap.Logger
}

// Controller is the entry point of the presentation layer into the pipeline.
type Controller struct {
	store    *Store
	executor *Executor
	speech   *SpeechRenderer
	lane     Lane
	recorder RunRecorder
	log      *zap.Logger
	now      func() time.Time

	mu         sync.Mutex
	lastActive time.Time
}

// NewController assembles a controller.
func NewController(d Deps) *Controller {
	if d.Store == nil {
		d.Store = NewStore()
	}
	d.Logger = logger.OrNop(d.Logger)
	if d.Lane == nil {
		d.Lane = worker.NewRunner(1, d.Logger)
	}
	return &Controller{
		store:      d.Store,
		executor:   d.Executor,
		speech:     d.Speech,
		lane:       d.Lane,
		recorder:   d.Recorder,
		log:        d.Logger,
		now:        time.Now,
		lastActive: time.Now(),
	}
}

// LoadImage makes handle the current image and reports whether derived
// artifacts were reset.
func (c *Controller) LoadImage(handle models.ImageHandle) bool {
	c.touch()
	reset := c.store.LoadImage(handle)
	c.log.Info("image loaded",
		zap.String("image_id", handle.ID),
		zap.String("format", handle.Format),
		zap.Bool("reset", reset))
	return reset
}

// State returns the current snapshot.
func (c *Controller) State() models.SessionState {
	return c.store.Get()
}

// CanRun evaluates the gate for stage against the current state.
func (c *Controller) CanRun(stage models.Stage) bool {
	return CanRun(stage, c.store.Get())
}

// Gates evaluates every gate against the current state.
func (c *Controller) Gates() map[models.Stage]bool {
	return Gates(c.store.Get())
}

// End terminates the session.
func (c *Controller) End() {
	c.store.End()
	c.log.Info("session ended")
}

// Run executes stage and renders its text to speech. Gate failures return
// ErrPrecondition (or ErrNoImage / ErrUnknownStage); a full lane returns
// worker.ErrBusy. Collaborator failures are reported inside the Outcome. Run
// returns as soon as the result is known, but the lane stays busy until any
// timed-out collaborator call has finished.
func (c *Controller) Run(ctx context.Context, stage models.Stage) (Outcome, error) {
	c.touch()
	if err := checkGate(stage, c.store.Get()); err != nil {
		if !errors.Is(err, ErrUnknownStage) {
			c.record(models.StageRun{Stage: stage, Status: models.RunStatusDenied, Error: err.Error()})
		}
		return Outcome{Result: models.StageResult{Stage: stage}}, err
	}

	done := make(chan stageReply, 1)
	err := c.lane.Submit(ctx, func(ctx context.Context) {
		defer func() {
			// a panicking job still answers its caller
			select {
			case done <- stageReply{out: Outcome{Result: models.StageResult{Stage: stage}}, err: errAborted}:
			default:
			}
		}()
		out, err := c.execute(ctx, stage)
		done <- stageReply{out: out, err: err}
		c.drain()
	})
	if err != nil {
		return Outcome{Result: models.StageResult{Stage: stage}}, err
	}
	select {
	case r := <-done:
		return r.out, r.err
	case <-ctx.Done():
		return Outcome{Result: models.StageResult{Stage: stage}}, ctx.Err()
	case <-c.lane.Stopped():
		return Outcome{Result: models.StageResult{Stage: stage}}, worker.ErrStopped
	}
}

type stageReply struct {
	out Outcome
	err error
}

// drain keeps the lane occupied until collaborator calls abandoned after a
// timeout have actually returned, so the next job never overlaps them.
func (c *Controller) drain() {
	if c.executor != nil {
		c.executor.Wait()
	}
	if c.speech != nil {
		c.speech.Wait()
	}
}

func (c *Controller) execute(ctx context.Context, stage models.Stage) (Outcome, error) {
	result, err := c.executor.Run(ctx, stage, c.store)
	out := Outcome{Result: result}
	if err != nil {
		c.record(models.StageRun{Stage: stage, ImageID: result.ImageID, Status: models.RunStatusDenied, Error: err.Error()})
		return out, err
	}

	run := models.StageRun{
		Stage:      stage,
		ImageID:    result.ImageID,
		DurationMS: result.Duration.Milliseconds(),
		TextChars:  len(result.Text),
	}
	switch {
	case result.Failed():
		run.Status = models.RunStatusFailed
		run.Error = result.Err
	case result.Text == "":
		run.Status = models.RunStatusEmpty
	default:
		run.Status = models.RunStatusOK
		if c.speech != nil {
			audio, err := c.speech.Render(ctx, result.Text)
			if err != nil {
				out.AudioError = err.Error()
				run.Error = err.Error()
				c.log.Warn("speech failed", zap.String("stage", string(stage)), zap.Error(err))
			} else {
				out.Audio = &audio
				run.AudioBytes = len(audio.Data)
			}
		}
	}
	c.record(run)
	return out, nil
}

// StartIdleReaper ends the session once no request arrived for idle.
func (c *Controller) StartIdleReaper(ctx context.Context, idle, interval time.Duration) {
	if idle <= 0 {
		return
	}
	if interval <= 0 {
		interval = idle / 4
	}
	go c.reapLoop(ctx, idle, interval)
}

func (c *Controller) reapLoop(ctx context.Context, idle, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.reapIdle(idle)
		}
	}
}

func (c *Controller) reapIdle(idle time.Duration) bool {
	c.mu.Lock()
	last := c.lastActive
	c.mu.Unlock()
	if c.now().Sub(last) < idle || !c.store.Get().HasImage() {
		return false
	}
	c.log.Info("session idle, ending", zap.Duration("idle", c.now().Sub(last)))
	c.End()
	return true
}

func (c *Controller) touch() {
	c.mu.Lock()
	c.lastActive = c.now()
	c.mu.Unlock()
}

func (c *Controller) record(run models.StageRun) {
	if c.recorder == nil {
		return
	}
	run.CreatedAt = c.now().UTC()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := c.recorder.Record(ctx, run); err != nil {
		c.log.Warn("record stage run failed", zap.String("stage", string(run.Stage)), zap.Error(err))
	}
}
