package workflow

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/zhouzirui/concept-studio/backend/internal/model/feedback"
	"github.com/zhouzirui/concept-studio/backend/internal/model/persona"
	model "github.com/zhouzirui/concept-studio/backend/internal/model/workflow"
	"github.com/zhouzirui/concept-studio/backend/internal/service/analysis"
)

const completerReply = `{
  "persona_analysis": {"tags": ["露营"], "pain_points": ["续航"], "influencers": ["博主"]},
  "image_prompts": {"rendering": "electric SUV by a lake"}
}`

// contextCompleter fails with ctx.Err() like a real HTTP client would.
type contextCompleter struct {
	calls  int
	onCall func()
}

func (c *contextCompleter) Complete(ctx context.Context, _, _ string) (string, error) {
	c.calls++
	if c.onCall != nil {
		c.onCall()
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}
	return completerReply, nil
}

func newAnalyzingMachine(t *testing.T, completer *contextCompleter) *Machine {
	t.Helper()
	log := zaptest.NewLogger(t)
	personas := persona.NewMemoryStore(persona.Seed())
	return NewMachine(
		personas,
		feedback.NewStaticProvider(feedback.Seed()),
		analysis.NewAnalyzer(completer, personas, nil, log),
		&fakeImages{},
		Options{},
		nil,
		log,
	)
}

func aggregatedSession(t *testing.T, m *Machine) *model.Session {
	t.Helper()
	s := model.NewSession("s1", time.Unix(0, 0))
	require.NoError(t, m.Start(context.Background(), s))
	return s
}

func TestCancelledAnalysisStoresNothing(t *testing.T) {
	completer := &contextCompleter{}
	m := newAnalyzingMachine(t, completer)
	s := aggregatedSession(t, m)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := m.BeginAnalysis(ctx, s)

	require.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, model.StepAggregating, s.Step)
	assert.Nil(t, s.AnalysisResults)
	assert.Zero(t, completer.calls)
}

func TestAnalysisCancelledMidCallIsRetried(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	completer := &contextCompleter{onCall: cancel}
	m := newAnalyzingMachine(t, completer)
	s := aggregatedSession(t, m)

	require.Error(t, m.BeginAnalysis(ctx, s))
	assert.Empty(t, s.AnalysisResults)
	assert.Equal(t, 1, completer.calls)

	completer.onCall = nil
	require.NoError(t, m.BeginAnalysis(context.Background(), s))
	assert.Equal(t, model.StepAnalyzing, s.Step)
	require.Len(t, s.AnalysisResults, 2)
	for id, result := range s.AnalysisResults {
		assert.True(t, result.OK(), id)
	}
	require.NoError(t, m.SelectPersona(s, persona.TechAdventurer))
	assert.Equal(t, "electric SUV by a lake", s.Prompt)
}

func TestServiceDetachesOperationsFromCallerContext(t *testing.T) {
	completer := &contextCompleter{}
	svc := NewService(newAnalyzingMachine(t, completer), time.Hour, nil, zaptest.NewLogger(t))
	created, err := svc.CreateSession(context.Background())
	require.NoError(t, err)
	_, err = svc.Start(context.Background(), created.ID)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	snapshot, err := svc.BeginAnalysis(ctx, created.ID)

	require.NoError(t, err)
	assert.Equal(t, model.StepAnalyzing, snapshot.Step)
	require.Len(t, snapshot.AnalysisResults, 2)
	assert.True(t, snapshot.AnalysisResults[persona.TechAdventurer].OK())
	assert.True(t, snapshot.AnalysisResults[persona.BusinessElite].OK())
	assert.Equal(t, 2, completer.calls)
}
