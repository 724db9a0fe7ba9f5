package pipeline

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"visionaid/internal/models"
)

func TestGatesWithoutImage(t *testing.T) {
	gates := Gates(models.SessionState{})
	require.Len(t, gates, len(models.Stages))
	for stage, ok := range gates {
		assert.False(t, ok, stage)
	}
	assert.ErrorIs(t, checkGate(models.StageDescribeScene, models.SessionState{}), ErrNoImage)
	assert.ErrorIs(t, checkGate(models.StageDescribeScene, models.SessionState{}), ErrPrecondition)
}

func TestCanRunSummarizeFollowsExtractedText(t *testing.T) {
	info := newImage("a").Info()
	cases := []struct {
		name      string
		extracted *string
		want      bool
	}{
		{"absent", nil, false},
		{"empty", strPtr(""), false},
		{"present", strPtr("Hello World"), true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			s := NewStore()
			s.LoadImage(newImage("a"))
			if tc.extracted != nil {
				s.SetExtracted(*tc.extracted)
			}
			state := s.Get()
			assert.Equal(t, info.ID, state.Image.ID)
			assert.Equal(t, tc.want, CanRun(models.StageSummarizeText, state))
			assert.True(t, CanRun(models.StageExtractText, state))
		})
	}
}

func TestCheckGateUnknownStage(t *testing.T) {
	err := checkGate(models.Stage("translate"), models.SessionState{})
	assert.ErrorIs(t, err, ErrUnknownStage)
	assert.NotErrorIs(t, err, ErrPrecondition)
}
