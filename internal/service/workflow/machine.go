package workflow

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/zhouzirui/concept-studio/backend/internal/config"
	"github.com/zhouzirui/concept-studio/backend/internal/logger"
	"github.com/zhouzirui/concept-studio/backend/internal/metrics"
	"github.com/zhouzirui/concept-studio/backend/internal/model/feedback"
	"github.com/zhouzirui/concept-studio/backend/internal/model/persona"
	model "github.com/zhouzirui/concept-studio/backend/internal/model/workflow"
	"github.com/zhouzirui/concept-studio/backend/internal/service/analysis"
	"github.com/zhouzirui/concept-studio/backend/internal/service/image"
)

// Analyzer produces the analysis of one persona's comments.
type Analyzer interface {
	Analyze(ctx context.Context, comments []string, personaID string) model.AnalysisResult
}

// ImageGenerator renders a prompt into an image.
type ImageGenerator interface {
	DefaultRequest(prompt string) image.Request
	Generate(ctx context.Context, req image.Request) (*image.Result, error)
}

// Options tune the machine. Zero values select the defaults.
type Options struct {
	AggregationDelay time.Duration
	DefaultCategory  model.Category
	Now              func() time.Time
	// AnalysisInitErr explains a nil analyzer whose credential is set.
	AnalysisInitErr error
}

// Machine holds the transition rules of the wizard. It keeps no session
// state of its own; every operation works on the *model.Session passed in,
// and the caller serialises operations per session.
type Machine struct {
	personas persona.Store
	comments feedback.Provider
	analyzer Analyzer
	images   ImageGenerator
	opts     Options
	metrics  *metrics.Metrics
	logger   *zap.Logger
}

// NewMachine wires the machine. analyzer and images may be nil when the
// corresponding credential is missing; Start then reports a *ConfigError.
func NewMachine(personas persona.Store, comments feedback.Provider, analyzer Analyzer, images ImageGenerator, opts Options, m *metrics.Metrics, log *zap.Logger) *Machine {
	if opts.DefaultCategory == "" {
		opts.DefaultCategory = model.DefaultCategory
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Machine{
		personas: personas,
		comments: comments,
		analyzer: analyzer,
		images:   images,
		opts:     opts,
		metrics:  m,
		logger:   logger.OrNop(log),
	}
}

// Ready reports which external clients are missing, or nil.
func (m *Machine) Ready() error {
	cfgErr := &ConfigError{}
	if m.analyzer == nil {
		if m.opts.AnalysisInitErr != nil {
			cfgErr.Failed = append(cfgErr.Failed, fmt.Sprintf("analysis client: %v", m.opts.AnalysisInitErr))
		} else {
			cfgErr.Missing = append(cfgErr.Missing, config.AnalysisKeyEnv)
		}
	}
	if m.images == nil {
		cfgErr.Missing = append(cfgErr.Missing, config.ImageKeyEnv)
	}
	if len(cfgErr.Missing) > 0 || len(cfgErr.Failed) > 0 {
		return cfgErr
	}
	return nil
}

// Start moves Intro to Aggregating and collects the comments.
func (m *Machine) Start(ctx context.Context, s *model.Session) error {
	if s.Step != model.StepIntro {
		return guardError(s.Step, model.StepAggregating, "workflow already started")
	}
	if err := m.Ready(); err != nil {
		return err
	}

	data, err := m.aggregate(ctx)
	if err != nil {
		return err
	}

	s.AggregatedData = data
	s.Step = model.StepAggregating
	return nil
}

// Aggregate re-runs the comment aggregation while at Aggregating.
func (m *Machine) Aggregate(ctx context.Context, s *model.Session) error {
	if s.Step != model.StepAggregating {
		return guardError(s.Step, s.Step, "aggregation only runs at step %s", model.StepAggregating)
	}

	data, err := m.aggregate(ctx)
	if err != nil {
		return err
	}
	s.AggregatedData = data
	return nil
}

// BeginAnalysis moves Aggregating to Analyzing, analysing every persona
// that has no stored result yet.
func (m *Machine) BeginAnalysis(ctx context.Context, s *model.Session) error {
	if s.Step != model.StepAggregating {
		return guardError(s.Step, model.StepAnalyzing, "analysis starts from step %s", model.StepAggregating)
	}
	for _, id := range m.personas.IDs() {
		if len(s.AggregatedData[id]) == 0 {
			return guardError(s.Step, model.StepAnalyzing, "no aggregated comments for persona %s", id)
		}
	}

	if err := m.ensureAnalysis(ctx, s); err != nil {
		return err
	}
	s.Step = model.StepAnalyzing
	return nil
}

// SelectPersona moves Analyzing to PromptSelect for a persona whose
// analysis succeeded, preloading the default category's prompt.
func (m *Machine) SelectPersona(s *model.Session, personaID string) error {
	if s.Step != model.StepAnalyzing {
		return guardError(s.Step, model.StepPromptSelect, "persona selection happens at step %s", model.StepAnalyzing)
	}
	if _, ok := m.personas.FindByID(personaID); !ok {
		return guardError(s.Step, model.StepPromptSelect, "unknown persona %s", personaID)
	}

	result, ok := s.AnalysisResults[personaID]
	if !ok {
		return guardError(s.Step, model.StepPromptSelect, "persona %s has not been analyzed", personaID)
	}
	if !result.OK() {
		reason := fmt.Sprintf("analysis for persona %s failed: %s", personaID, result.Failure.Error)
		if result.Failure.RawOutput != "" {
			reason += "; raw output: " + result.Failure.RawOutput
		}
		return guardError(s.Step, model.StepPromptSelect, "%s", reason)
	}

	s.SelectedPersona = personaID
	s.Category = m.opts.DefaultCategory
	s.Prompt = analysis.SelectPrompt(result, m.opts.DefaultCategory)
	s.Image = nil
	s.ImageError = ""
	s.Step = model.StepPromptSelect
	return nil
}

// ChooseCategory replaces the prompt with the selected persona's prompt
// for category.
func (m *Machine) ChooseCategory(s *model.Session, category model.Category) error {
	if s.Step != model.StepPromptSelect {
		return guardError(s.Step, s.Step, "image category is chosen at step %s", model.StepPromptSelect)
	}

	s.Category = category
	s.Prompt = analysis.SelectPrompt(s.AnalysisResults[s.SelectedPersona], category)
	return nil
}

// EditPrompt stores a user edited prompt.
func (m *Machine) EditPrompt(s *model.Session, prompt string) error {
	if s.Step != model.StepPromptSelect && s.Step != model.StepImageGen {
		return guardError(s.Step, s.Step, "prompt can only be edited at steps %s and %s", model.StepPromptSelect, model.StepImageGen)
	}
	s.Prompt = prompt
	return nil
}

// Generate moves PromptSelect to ImageGen, or regenerates while at
// ImageGen, and calls the image service. A non-blank prompt argument
// replaces the current prompt. Results are never cached. Service failures
// are recorded in s.ImageError and do not return an error.
func (m *Machine) Generate(ctx context.Context, s *model.Session, prompt string) error {
	if s.Step != model.StepPromptSelect && s.Step != model.StepImageGen {
		return guardError(s.Step, model.StepImageGen, "image generation starts from step %s", model.StepPromptSelect)
	}

	candidate := s.Prompt
	if strings.TrimSpace(prompt) != "" {
		candidate = prompt
	}
	if strings.TrimSpace(candidate) == "" {
		return guardError(s.Step, model.StepImageGen, "prompt is empty")
	}

	s.Prompt = candidate
	s.Step = model.StepImageGen
	s.Image = nil
	s.ImageError = ""

	if m.images == nil {
		s.ImageError = fmt.Sprintf("image service is not configured, set %s", config.ImageKeyEnv)
		return nil
	}

	started := time.Now()
	result, err := m.images.Generate(ctx, m.images.DefaultRequest(candidate))
	m.metrics.ObserveImage(err == nil, time.Since(started))
	if err != nil {
		m.logger.Warn("image generation failed", zap.String("session", s.ID), zap.Error(err))
		s.ImageError = err.Error()
		return nil
	}

	s.Image = &model.GeneratedImage{
		Data:      result.Data,
		Format:    result.Format,
		Width:     result.Width,
		Height:    result.Height,
		Seed:      result.Seed,
		Prompt:    candidate,
		CreatedAt: m.opts.Now().UTC(),
	}
	return nil
}

// TryAgain returns from ImageGen to Analyzing, keeping stored analyses.
func (m *Machine) TryAgain(ctx context.Context, s *model.Session) error {
	if s.Step != model.StepImageGen {
		return guardError(s.Step, model.StepAnalyzing, "try again is only offered at step %s", model.StepImageGen)
	}

	if err := m.ensureAnalysis(ctx, s); err != nil {
		return err
	}
	s.Step = model.StepAnalyzing
	return nil
}

// Reset clears s back to its initial condition, keeping its identity.
func (m *Machine) Reset(s *model.Session) {
	*s = *model.NewSession(s.ID, s.CreatedAt)
}

func (m *Machine) aggregate(ctx context.Context) (map[string][]string, error) {
	if m.opts.AggregationDelay > 0 {
		timer := time.NewTimer(m.opts.AggregationDelay)
		defer timer.Stop()
		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("aggregation interrupted: %w", ctx.Err())
		case <-timer.C:
		}
	}

	data := make(map[string][]string)
	for _, id := range m.personas.IDs() {
		data[id] = m.comments.Comments(id)
	}
	return data, nil
}

// ensureAnalysis calls the analyzer at most once per persona per session.
// When ctx ends it stops without storing anything for the remaining
// personas, so they are analysed on the next attempt.
func (m *Machine) ensureAnalysis(ctx context.Context, s *model.Session) error {
	store := func(personaID string, result model.AnalysisResult) {
		if s.AnalysisResults == nil {
			s.AnalysisResults = make(map[string]model.AnalysisResult)
		}
		s.AnalysisResults[personaID] = result
	}

	for _, id := range m.personas.IDs() {
		if _, done := s.AnalysisResults[id]; done {
			continue
		}
		if m.analyzer == nil {
			store(id, model.Failed(fmt.Sprintf("analysis service is not configured, set %s", config.AnalysisKeyEnv), ""))
			continue
		}
		if err := ctx.Err(); err != nil {
			return fmt.Errorf("analysis interrupted: %w", err)
		}

		result := m.analyzer.Analyze(ctx, s.AggregatedData[id], id)
		if !result.OK() && ctx.Err() != nil {
			return fmt.Errorf("analysis interrupted: %w", ctx.Err())
		}
		store(id, result)
	}
	return nil
}
