package pipeline

import (
	"fmt"

	"visionaid/internal/models"
)

// CanRun reports whether stage may run against state. It has no side effects
// and is meant to be evaluated on every request.
func CanRun(stage models.Stage, state models.SessionState) bool {
	return checkGate(stage, state) == nil
}

// Gates evaluates CanRun for every stage.
func Gates(state models.SessionState) map[models.Stage]bool {
	gates := make(map[models.Stage]bool, len(models.Stages))
	for _, stage := range models.Stages {
		gates[stage] = CanRun(stage, state)
	}
	return gates
}

func checkGate(stage models.Stage, state models.SessionState) error {
	switch stage {
	case models.StageDescribeScene, models.StageExtractText,
		models.StageDetectObstacles, models.StagePersonalizedGuidance:
		if !state.HasImage() {
			return ErrNoImage
		}
		return nil
	case models.StageSummarizeText:
		if !state.SummarizeEnabled {
			return fmt.Errorf("%w: no extracted text to summarize", ErrPrecondition)
		}
		return nil
	default:
		return fmt.Errorf("%w: %s", ErrUnknownStage, stage)
	}
}
