package pipeline

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"visionaid/internal/models"
	"visionaid/internal/worker"
)

type controllerFixture struct {
	ctrl     *Controller
	vision   *fakeVision
	ocr      *fakeOCR
	synth    *fakeSynth
	recorder *memRecorder
	lane     *worker.Runner
}

func newControllerFixture(t *testing.T, queue int) *controllerFixture {
	t.Helper()
	f := &controllerFixture{
		vision:   &fakeVision{text: "A kitchen with a table."},
		ocr:      &fakeOCR{text: "Hello World"},
		synth:    &fakeSynth{},
		recorder: &memRecorder{},
		lane:     worker.NewRunner(queue, nil),
	}
	t.Cleanup(f.lane.Stop)
	f.ctrl = NewController(Deps{
		Executor: NewExecutor(f.vision, f.ocr),
		Speech:   NewSpeechRenderer(f.synth, "en"),
		Lane:     f.lane,
		Recorder: f.recorder,
	})
	return f
}

func TestControllerRunProducesAudio(t *testing.T) {
	f := newControllerFixture(t, 1)
	f.ctrl.LoadImage(newImage("a"))

	out, err := f.ctrl.Run(context.Background(), models.StageDescribeScene)
	require.NoError(t, err)
	assert.Equal(t, "A kitchen with a table.", out.Result.Text)
	require.NotNil(t, out.Audio)
	assert.Equal(t, []byte("mp3:A kitchen with a table."), out.Audio.Data)
	assert.Empty(t, out.AudioError)

	runs := f.recorder.all()
	require.Len(t, runs, 1)
	assert.Equal(t, models.RunStatusOK, runs[0].Status)
	assert.Equal(t, "a", runs[0].ImageID)
	assert.Equal(t, len(out.Audio.Data), runs[0].AudioBytes)
}

func TestControllerNoAudioForEmptyOrFailedStage(t *testing.T) {
	f := newControllerFixture(t, 1)
	f.ctrl.LoadImage(newImage("a"))

	f.ocr.text = ""
	out, err := f.ctrl.Run(context.Background(), models.StageExtractText)
	require.NoError(t, err)
	assert.Equal(t, NoTextNotice, out.Result.Notice)
	assert.Nil(t, out.Audio)

	f.vision.err = errors.New("network unreachable")
	out, err = f.ctrl.Run(context.Background(), models.StageDescribeScene)
	require.NoError(t, err)
	assert.True(t, out.Result.Failed())
	assert.Nil(t, out.Audio)
	assert.Zero(t, f.synth.calls())

	runs := f.recorder.all()
	require.Len(t, runs, 2)
	assert.Equal(t, models.RunStatusEmpty, runs[0].Status)
	assert.Equal(t, models.RunStatusFailed, runs[1].Status)
}

func TestControllerSpeechFailureKeepsText(t *testing.T) {
	f := newControllerFixture(t, 1)
	f.synth.err = errors.New("voice unavailable")
	f.ctrl.LoadImage(newImage("a"))

	out, err := f.ctrl.Run(context.Background(), models.StageExtractText)
	require.NoError(t, err)
	assert.Equal(t, "Hello World", out.Result.Text)
	assert.Nil(t, out.Audio)
	assert.Contains(t, out.AudioError, "voice unavailable")
	assert.Equal(t, "Hello World", *f.ctrl.State().ExtractedText)
}

func TestControllerGateFailures(t *testing.T) {
	f := newControllerFixture(t, 1)

	_, err := f.ctrl.Run(context.Background(), models.StageDescribeScene)
	assert.ErrorIs(t, err, ErrNoImage)

	f.ctrl.LoadImage(newImage("a"))
	_, err = f.ctrl.Run(context.Background(), models.StageSummarizeText)
	assert.ErrorIs(t, err, ErrPrecondition)

	_, err = f.ctrl.Run(context.Background(), models.Stage("translate"))
	assert.ErrorIs(t, err, ErrUnknownStage)

	runs := f.recorder.all()
	require.Len(t, runs, 2)
	for _, run := range runs {
		assert.Equal(t, models.RunStatusDenied, run.Status)
	}
}

func TestControllerBusy(t *testing.T) {
	f := newControllerFixture(t, 0)
	f.vision.block = make(chan struct{})
	f.ctrl.LoadImage(newImage("a"))

	first := make(chan error, 1)
	go func() {
		// an unbuffered lane only accepts work once its goroutine is parked
		for {
			_, err := f.ctrl.Run(context.Background(), models.StageDescribeScene)
			if !errors.Is(err, worker.ErrBusy) {
				first <- err
				return
			}
			time.Sleep(time.Millisecond)
		}
	}()
	require.Eventually(t, func() bool {
		f.vision.mu.Lock()
		defer f.vision.mu.Unlock()
		return len(f.vision.analyzed) == 1
	}, time.Second, 5*time.Millisecond)

	_, err := f.ctrl.Run(context.Background(), models.StageDetectObstacles)
	assert.ErrorIs(t, err, worker.ErrBusy)

	close(f.vision.block)
	require.NoError(t, <-first)
}

func TestControllerHoldsLaneUntilTimedOutCallReturns(t *testing.T) {
	vision := &fakeVision{text: "A kitchen with a table.", block: make(chan struct{}), deaf: true}
	ocr := &fakeOCR{text: "Hello World"}
	lane := worker.NewRunner(0, nil)
	t.Cleanup(lane.Stop)
	ctrl := NewController(Deps{
		Executor: NewExecutor(vision, ocr, WithTimeout(20*time.Millisecond)),
		Speech:   NewSpeechRenderer(&fakeSynth{}, "en"),
		Lane:     lane,
	})
	ctrl.LoadImage(newImage("a"))

	// an unbuffered lane only accepts work once its goroutine is parked
	runWhenIdle := func(stage models.Stage) (Outcome, error) {
		for i := 0; i < 1000; i++ {
			out, err := ctrl.Run(context.Background(), stage)
			if !errors.Is(err, worker.ErrBusy) {
				return out, err
			}
			time.Sleep(time.Millisecond)
		}
		t.Fatalf("lane never accepted %s", stage)
		return Outcome{}, nil
	}

	out, err := runWhenIdle(models.StageDescribeScene)
	require.NoError(t, err)
	require.True(t, out.Result.Failed())
	assert.Contains(t, out.Result.Err, "no response")

	// the vision call is still running: the lane must not start OCR next to it
	_, err = ctrl.Run(context.Background(), models.StageExtractText)
	assert.ErrorIs(t, err, worker.ErrBusy)
	assert.Zero(t, ocr.calls)

	close(vision.block)
	out, err = runWhenIdle(models.StageExtractText)
	require.NoError(t, err)
	assert.Equal(t, "Hello World", out.Result.Text)
}

func TestControllerDiscardsResultForReplacedImage(t *testing.T) {
	f := newControllerFixture(t, 1)
	f.vision.block = make(chan struct{})
	f.ctrl.LoadImage(newImage("a"))

	done := make(chan Outcome, 1)
	go func() {
		out, _ := f.ctrl.Run(context.Background(), models.StageDescribeScene)
		done <- out
	}()
	require.Eventually(t, func() bool {
		f.vision.mu.Lock()
		defer f.vision.mu.Unlock()
		return len(f.vision.analyzed) == 1
	}, time.Second, 5*time.Millisecond)

	assert.True(t, f.ctrl.LoadImage(newImage("b")))
	close(f.vision.block)
	out := <-done

	assert.Equal(t, ErrStaleImage.Error(), out.Result.Err)
	assert.Nil(t, out.Audio)
	state := f.ctrl.State()
	assert.Equal(t, "b", state.Image.ID)
	assert.Nil(t, state.SceneDescription)
}

func TestControllerGatesAndEnd(t *testing.T) {
	f := newControllerFixture(t, 1)
	f.ctrl.LoadImage(newImage("a"))
	_, err := f.ctrl.Run(context.Background(), models.StageExtractText)
	require.NoError(t, err)

	gates := f.ctrl.Gates()
	for _, stage := range models.Stages {
		assert.True(t, gates[stage], stage)
	}
	assert.True(t, f.ctrl.CanRun(models.StageSummarizeText))

	f.ctrl.End()
	assert.False(t, f.ctrl.State().HasImage())
	assert.False(t, f.ctrl.CanRun(models.StageExtractText))
}

func TestControllerIdleReaper(t *testing.T) {
	f := newControllerFixture(t, 1)
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	f.ctrl.now = func() time.Time { return now }
	f.ctrl.LoadImage(newImage("a"))

	now = now.Add(10 * time.Minute)
	assert.False(t, f.ctrl.reapIdle(30*time.Minute))
	assert.True(t, f.ctrl.State().HasImage())

	now = now.Add(25 * time.Minute)
	assert.True(t, f.ctrl.reapIdle(30*time.Minute))
	assert.False(t, f.ctrl.State().HasImage())
	assert.False(t, f.ctrl.reapIdle(30*time.Minute))
}
