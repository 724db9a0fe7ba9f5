package pipeline

import (
	"strings"

	"visionaid/internal/models"
)

var stageInstructions = map[models.Stage]string{
	models.StageDescribeScene:        "Describe this image briefly.",
	models.StageDetectObstacles:      "Identify objects or obstacles in this image and provide their positions for safe navigation in brief.",
	models.StagePersonalizedGuidance: "Provide task-specific guidance based on the content of this image in brief. Include item recognition, label reading, and any relevant context.",
}

const summaryTemplate = "Tell what the following text is about and summarize it briefly:\n\n{text}"

// NoTextNotice is shown when OCR found nothing.
const NoTextNotice = "No text detected in the image."

// Instruction returns the fixed instruction of a vision stage.
func Instruction(stage models.Stage) (string, bool) {
	s, ok := stageInstructions[stage]
	return s, ok
}

// SummaryPrompt embeds extracted text into the summarization template.
func SummaryPrompt(text string) string {
	return strings.Replace(summaryTemplate, "{text}", text, 1)
}
