package analysis

import (
	"strings"

	"github.com/zhouzirui/concept-studio/backend/internal/model/workflow"
)

// PromptPlaceholder is offered when the service produced no prompt for a category.
const PromptPlaceholder = "AI未能生成此类型的Prompt，请手动输入。"

// SelectPrompt returns the generated prompt for category, or
// PromptPlaceholder when it is missing or blank. Callers must only pass
// success results.
func SelectPrompt(result workflow.AnalysisResult, category workflow.Category) string {
	if result.Success == nil {
		return PromptPlaceholder
	}
	text := strings.TrimSpace(result.Success.ImagePrompts[category])
	if text == "" {
		return PromptPlaceholder
	}
	return text
}
