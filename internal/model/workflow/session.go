package workflow

import "time"

// GeneratedImage is the artifact produced at the image generation step.
type GeneratedImage struct {
	Data      []byte    `json:"-"`
	Format    string    `json:"format"`
	Width     int       `json:"width"`
	Height    int       `json:"height"`
	Seed      int64     `json:"seed,omitempty"`
	Prompt    string    `json:"prompt"`
	CreatedAt time.Time `json:"createdAt"`
}

// Session is the mutable state of one wizard run. It is only changed by
// the workflow machine.
type Session struct {
	ID              string                    `json:"id"`
	CreatedAt       time.Time                 `json:"createdAt"`
	Step            Step                      `json:"step"`
	AggregatedData  map[string][]string       `json:"aggregatedData,omitempty"`
	AnalysisResults map[string]AnalysisResult `json:"analysisResults,omitempty"`
	SelectedPersona string                    `json:"selectedPersona,omitempty"`
	Category        Category                  `json:"category,omitempty"`
	Prompt          string                    `json:"prompt,omitempty"`
	Image           *GeneratedImage           `json:"image,omitempty"`
	ImageError      string                    `json:"imageError,omitempty"`
}

// NewSession returns a session in its initial condition.
func NewSession(id string, createdAt time.Time) *Session {
	return &Session{ID: id, CreatedAt: createdAt, Step: StepIntro}
}

// Clone returns a deep copy. Image bytes are shared since they are never
// modified after generation.
func (s *Session) Clone() Session {
	out := *s

	if s.AggregatedData != nil {
		out.AggregatedData = make(map[string][]string, len(s.AggregatedData))
		for k, v := range s.AggregatedData {
			out.AggregatedData[k] = cloneStrings(v)
		}
	}

	if s.AnalysisResults != nil {
		out.AnalysisResults = make(map[string]AnalysisResult, len(s.AnalysisResults))
		for k, v := range s.AnalysisResults {
			out.AnalysisResults[k] = v.clone()
		}
	}

	if s.Image != nil {
		img := *s.Image
		out.Image = &img
	}

	return out
}
