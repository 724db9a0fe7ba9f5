package models

import "time"

// Stage names one unit of work in the pipeline.
type Stage string

const (
	StageDescribeScene        Stage = "describe-scene"
	StageExtractText          Stage = "extract-text"
	StageSummarizeText        Stage = "summarize-text"
	StageDetectObstacles      Stage = "detect-obstacles"
	StagePersonalizedGuidance Stage = "personalized-guidance"
)

// Stages lists every stage in presentation order.
var Stages = []Stage{
	StageDescribeScene,
	StageExtractText,
	StageSummarizeText,
	StageDetectObstacles,
	StagePersonalizedGuidance,
}

// ParseStage validates a wire name.
func ParseStage(name string) (Stage, bool) {
	for _, s := range Stages {
		if string(s) == name {
			return s, true
		}
	}
	return "", false
}

// StageResult is the displayable outcome of a stage run. Err carries a
// human-readable message when a collaborator failed.
type StageResult struct {
	Stage    Stage         `json:"stage"`
	ImageID  string        `json:"image_id"`
	Text     string        `json:"text"`
	Notice   string        `json:"notice,omitempty"`
	Err      string        `json:"error,omitempty"`
	Duration time.Duration `json:"duration"`
}

// Failed reports whether the run ended with a collaborator error.
func (r StageResult) Failed() bool {
	return r.Err != ""
}
