package analysis

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/zhouzirui/concept-studio/backend/internal/logger"
	"github.com/zhouzirui/concept-studio/backend/internal/metrics"
	"github.com/zhouzirui/concept-studio/backend/internal/model/persona"
	"github.com/zhouzirui/concept-studio/backend/internal/model/workflow"
)

// Completer is the text-analysis capability the analyzer depends on.
type Completer interface {
	Complete(ctx context.Context, systemInstruction, userContent string) (string, error)
}

// Analyzer turns a persona's comments into an AnalysisResult. It never
// returns an error: every failure becomes the failure variant.
type Analyzer struct {
	completer Completer
	personas  persona.Store
	metrics   *metrics.Metrics
	logger    *zap.Logger
}

// NewAnalyzer creates an analyzer. m may be nil.
func NewAnalyzer(completer Completer, personas persona.Store, m *metrics.Metrics, log *zap.Logger) *Analyzer {
	return &Analyzer{
		completer: completer,
		personas:  personas,
		metrics:   m,
		logger:    logger.OrNop(log),
	}
}

// Analyze makes a single call to the analysis service, without retries.
func (a *Analyzer) Analyze(ctx context.Context, comments []string, personaID string) workflow.AnalysisResult {
	if len(comments) == 0 {
		return workflow.Failed(fmt.Sprintf("no comments to analyze for persona %s", personaID), "")
	}

	p, ok := a.personas.FindByID(personaID)
	if !ok {
		return workflow.Failed(fmt.Sprintf("unknown persona %s", personaID), "")
	}

	started := time.Now()
	raw, err := a.completer.Complete(ctx, buildInstruction(p.Segment), buildUserContent(comments))
	if err != nil {
		a.metrics.ObserveAnalysis(personaID, false, time.Since(started))
		a.logger.Warn("analysis call failed", zap.String("persona", personaID), zap.Error(err))
		return workflow.Failed(fmt.Sprintf("analysis service call failed: %v", err), "")
	}

	result := ParseResult(raw)
	a.metrics.ObserveAnalysis(personaID, result.OK(), time.Since(started))
	if !result.OK() {
		a.logger.Warn("analysis output rejected",
			zap.String("persona", personaID),
			zap.String("reason", result.Failure.Error),
		)
		return result
	}

	a.logger.Info("persona analyzed",
		zap.String("persona", personaID),
		zap.Int("tags", len(result.Success.Analysis.Tags)),
		zap.Int("prompts", len(result.Success.ImagePrompts)),
	)
	return result
}

type responsePayload struct {
	PersonaAnalysis workflow.PersonaAnalysis `json:"persona_analysis"`
	ImagePrompts    map[string]string        `json:"image_prompts"`
}

// ParseResult converts raw service output into an AnalysisResult. Output that
// is not JSON, or JSON of the wrong shape, yields the failure variant with
// the raw text preserved verbatim.
func ParseResult(raw string) workflow.AnalysisResult {
	cleaned := normalizeModelOutput(raw)

	var document any
	if err := json.Unmarshal([]byte(cleaned), &document); err != nil {
		return workflow.Failed(fmt.Sprintf("analysis service returned invalid JSON: %v", err), raw)
	}

	if err := validateDocument(document); err != nil {
		return workflow.Failed(err.Error(), raw)
	}

	var payload responsePayload
	if err := json.Unmarshal([]byte(cleaned), &payload); err != nil {
		return workflow.Failed(fmt.Sprintf("analysis service returned invalid JSON: %v", err), raw)
	}

	prompts := make(map[workflow.Category]string, len(payload.ImagePrompts))
	for _, category := range workflow.Categories() {
		if text, ok := payload.ImagePrompts[string(category)]; ok {
			prompts[category] = text
		}
	}

	return workflow.Succeeded(workflow.PersonaInsight{
		Analysis:     payload.PersonaAnalysis,
		ImagePrompts: prompts,
	})
}

// normalizeModelOutput strips a leading ``` or ```json fence token and a
// trailing ``` fence. Content on the fence line itself is kept.
func normalizeModelOutput(raw string) string {
	text := strings.TrimSpace(raw)

	if strings.HasPrefix(text, "```") {
		text = strings.TrimPrefix(text, "```")
		if len(text) >= 4 && strings.EqualFold(text[:4], "json") {
			text = text[4:]
		}
	}

	text = strings.TrimSpace(text)
	text = strings.TrimSuffix(text, "```")
	return strings.TrimSpace(text)
}
