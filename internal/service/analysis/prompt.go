package analysis

import (
	"fmt"
	"strings"
)

// instructionTemplate asks for exactly one JSON object with the persona
// summary and three image prompts. %s is the persona segment.
const instructionTemplate = `你是一位资深的汽车行业市场分析师，同时担任 AI 创意总监。你需要分析潜在用户群体「%s」的真实评论。
请完成两项任务：
1. 归纳出该用户群的画像，包含 tags（标签）、pain_points（痛点）、influencers（影响决策的渠道）。
2. 基于该画像，撰写三段专业的英文 AI 绘画提示词，分别用于渲染图(rendering)、黑白草图(sketch)和内饰图(interior)。

只输出一个 JSON 对象，不要包含 markdown 代码块标记或任何解释文字，格式如下：
{
  "persona_analysis": {
    "tags": ["简短的标签"],
    "pain_points": ["用户提到的具体痛点"],
    "influencers": ["影响购买决策的渠道"]
  },
  "image_prompts": {
    "rendering": "English prompt for a photorealistic exterior rendering...",
    "sketch": "English prompt for a black and white design sketch...",
    "interior": "English prompt for an interior design image..."
  }
}`

// buildInstruction renders the system instruction for one persona segment.
func buildInstruction(segment string) string {
	return fmt.Sprintf(instructionTemplate, segment)
}

// buildUserContent lists the comments as a bullet list.
func buildUserContent(comments []string) string {
	var builder strings.Builder
	builder.WriteString("请分析以下用户评论，只返回 JSON 对象：\n\n")
	for i, comment := range comments {
		builder.WriteString("- ")
		builder.WriteString(strings.TrimSpace(comment))
		if i < len(comments)-1 {
			builder.WriteString("\n")
		}
	}
	return builder.String()
}
