package models

// SessionState is a read-only snapshot of one session. A nil pointer means the
// artifact is absent; an empty string means the stage ran and produced nothing.
type SessionState struct {
	Image            *ImageInfo `json:"image"`
	ExtractedText    *string    `json:"extracted_text"`
	SummarizedText   *string    `json:"summarized_text"`
	SummarizeEnabled bool       `json:"summarize_enabled"`
	SceneDescription *string    `json:"scene_description"`
	ObstacleReport   *string    `json:"obstacle_report"`
	Guidance         *string    `json:"guidance"`
}

// HasImage reports whether an image is loaded.
func (s SessionState) HasImage() bool {
	return s.Image != nil
}

// Artifact returns the stored text for a stage, if any.
func (s SessionState) Artifact(stage Stage) (string, bool) {
	var p *string
	switch stage {
	case StageDescribeScene:
		p = s.SceneDescription
	case StageExtractText:
		p = s.ExtractedText
	case StageSummarizeText:
		p = s.SummarizedText
	case StageDetectObstacles:
		p = s.ObstacleReport
	case StagePersonalizedGuidance:
		p = s.Guidance
	}
	if p == nil {
		return "", false
	}
	return *p, true
}
