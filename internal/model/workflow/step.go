package workflow

import "fmt"

// Step is the position of a session in the wizard.
type Step int

const (
	StepIntro Step = iota
	StepAggregating
	StepAnalyzing
	StepPromptSelect
	StepImageGen
)

var stepNames = map[Step]string{
	StepIntro:        "intro",
	StepAggregating:  "aggregating",
	StepAnalyzing:    "analyzing",
	StepPromptSelect: "prompt_select",
	StepImageGen:     "image_gen",
}

func (s Step) String() string {
	if name, ok := stepNames[s]; ok {
		return name
	}
	return fmt.Sprintf("step(%d)", int(s))
}

// Category is the kind of concept image a prompt is written for.
type Category string

const (
	CategoryRendering Category = "rendering"
	CategorySketch    Category = "sketch"
	CategoryInterior  Category = "interior"
)

// DefaultCategory is preselected when a persona is chosen.
const DefaultCategory = CategoryRendering

// Categories lists the supported categories in display order.
func Categories() []Category {
	return []Category{CategoryRendering, CategorySketch, CategoryInterior}
}

// ParseCategory validates a category name.
func ParseCategory(raw string) (Category, error) {
	for _, c := range Categories() {
		if string(c) == raw {
			return c, nil
		}
	}
	return "", fmt.Errorf("unknown image category %q", raw)
}
