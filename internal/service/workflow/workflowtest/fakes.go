// Package workflowtest provides in-memory stand-ins for the external
// clients so transport tests can drive a real workflow.Service.
package workflowtest

import (
	"context"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap/zaptest"

	"github.com/zhouzirui/concept-studio/backend/internal/model/feedback"
	"github.com/zhouzirui/concept-studio/backend/internal/model/persona"
	model "github.com/zhouzirui/concept-studio/backend/internal/model/workflow"
	"github.com/zhouzirui/concept-studio/backend/internal/service/image"
	"github.com/zhouzirui/concept-studio/backend/internal/service/workflow"
)

// Analyzer returns canned results per persona and counts calls.
type Analyzer struct {
	mu      sync.Mutex
	results map[string]model.AnalysisResult
	calls   map[string]int
}

// NewAnalyzer succeeds for both seed personas.
func NewAnalyzer() *Analyzer {
	return &Analyzer{
		results: map[string]model.AnalysisResult{
			persona.TechAdventurer: model.Succeeded(model.PersonaInsight{
				Analysis: model.PersonaAnalysis{
					Tags:        []string{"户外", "科技"},
					PainPoints:  []string{"续航焦虑"},
					Influencers: []string{"越野博主"},
				},
				ImagePrompts: map[model.Category]string{
					model.CategoryRendering: "rugged electric SUV at a mountain campsite",
					model.CategorySketch:    "pencil sketch of a boxy electric SUV",
					model.CategoryInterior:  "minimal cabin with a large central screen",
				},
			}),
			persona.BusinessElite: model.Succeeded(model.PersonaInsight{
				Analysis: model.PersonaAnalysis{
					Tags:        []string{"商务", "品质"},
					PainPoints:  []string{"后排舒适性"},
					Influencers: []string{"财经媒体"},
				},
				ImagePrompts: map[model.Category]string{
					model.CategoryRendering: "sleek executive sedan in front of a glass tower",
				},
			}),
		},
		calls: map[string]int{},
	}
}

// SetResult overrides the canned result for personaID.
func (a *Analyzer) SetResult(personaID string, result model.AnalysisResult) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.results[personaID] = result
}

// Calls reports how often personaID was analysed.
func (a *Analyzer) Calls(personaID string) int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.calls[personaID]
}

func (a *Analyzer) Analyze(_ context.Context, _ []string, personaID string) model.AnalysisResult {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.calls[personaID]++
	result, ok := a.results[personaID]
	if !ok {
		return model.Failed("unknown persona "+personaID, "")
	}
	return result
}

// Images records prompts and returns a tiny PNG payload.
type Images struct {
	mu      sync.Mutex
	prompts []string
	Err     error
	Delay   time.Duration
}

func (f *Images) DefaultRequest(prompt string) image.Request {
	return image.Request{Prompt: prompt, Width: 1024, Height: 1024, Steps: 30, CFGScale: 7, StylePreset: "photographic"}
}

func (f *Images) Generate(ctx context.Context, req image.Request) (*image.Result, error) {
	if f.Delay > 0 {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(f.Delay):
		}
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	f.prompts = append(f.prompts, req.Prompt)
	if f.Err != nil {
		return nil, f.Err
	}
	return &image.Result{Data: []byte("\x89PNG fake"), Format: "png", Width: req.Width, Height: req.Height, Seed: 42}, nil
}

// Prompts returns the prompts sent so far.
func (f *Images) Prompts() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.prompts...)
}

// NewService builds a workflow.Service over the seed data. Pass nil
// clients to simulate missing credentials.
func NewService(t testing.TB, analyzer *Analyzer, images *Images) *workflow.Service {
	t.Helper()

	var (
		a workflow.Analyzer
		g workflow.ImageGenerator
	)
	if analyzer != nil {
		a = analyzer
	}
	if images != nil {
		g = images
	}

	log := zaptest.NewLogger(t)
	machine := workflow.NewMachine(
		persona.NewMemoryStore(persona.Seed()),
		feedback.NewStaticProvider(feedback.Seed()),
		a, g, workflow.Options{}, nil, log,
	)
	return workflow.NewService(machine, time.Hour, nil, log)
}
