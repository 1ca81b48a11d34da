package workflow

// PersonaAnalysis is the structured persona summary returned by the LLM.
type PersonaAnalysis struct {
	Tags        []string `json:"tags"`
	PainPoints  []string `json:"pain_points"`
	Influencers []string `json:"influencers"`
}

// PersonaInsight is the success variant of an AnalysisResult.
type PersonaInsight struct {
	Analysis     PersonaAnalysis     `json:"personaAnalysis"`
	ImagePrompts map[Category]string `json:"imagePrompts"`
}

// AnalysisFailure is the failure variant of an AnalysisResult.
type AnalysisFailure struct {
	Error     string `json:"error"`
	RawOutput string `json:"rawOutput,omitempty"`
}

// AnalysisResult holds exactly one of Success or Failure. Build it with
// Succeeded or Failed.
type AnalysisResult struct {
	Success *PersonaInsight  `json:"success,omitempty"`
	Failure *AnalysisFailure `json:"failure,omitempty"`
}

// Succeeded wraps a parsed insight.
func Succeeded(insight PersonaInsight) AnalysisResult {
	return AnalysisResult{Success: &insight}
}

// Failed records why an analysis could not produce an insight.
func Failed(message, rawOutput string) AnalysisResult {
	return AnalysisResult{Failure: &AnalysisFailure{Error: message, RawOutput: rawOutput}}
}

// OK reports whether r is the success variant.
func (r AnalysisResult) OK() bool {
	return r.Success != nil && r.Failure == nil
}

func (r AnalysisResult) clone() AnalysisResult {
	out := AnalysisResult{}
	if r.Failure != nil {
		failure := *r.Failure
		out.Failure = &failure
	}
	if r.Success != nil {
		insight := PersonaInsight{
			Analysis: PersonaAnalysis{
				Tags:        cloneStrings(r.Success.Analysis.Tags),
				PainPoints:  cloneStrings(r.Success.Analysis.PainPoints),
				Influencers: cloneStrings(r.Success.Analysis.Influencers),
			},
		}
		if r.Success.ImagePrompts != nil {
			insight.ImagePrompts = make(map[Category]string, len(r.Success.ImagePrompts))
			for k, v := range r.Success.ImagePrompts {
				insight.ImagePrompts[k] = v
			}
		}
		out.Success = &insight
	}
	return out
}

func cloneStrings(in []string) []string {
	if in == nil {
		return nil
	}
	return append([]string(nil), in...)
}
