package workflow

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/zhouzirui/concept-studio/backend/internal/metrics"
	"github.com/zhouzirui/concept-studio/backend/internal/model/persona"
	model "github.com/zhouzirui/concept-studio/backend/internal/model/workflow"
)

func newTestService(t *testing.T) (*Service, fixture) {
	t.Helper()
	f := newFixture(t)
	return NewService(f.machine, time.Hour, metrics.New(), zaptest.NewLogger(t)), f
}

func TestServiceCreateAndGet(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	created, err := svc.CreateSession(ctx)
	require.NoError(t, err)
	assert.NotEmpty(t, created.ID)
	assert.Equal(t, model.StepIntro, created.Step)

	fetched, err := svc.GetSession(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, created, fetched)
}

func TestServiceUnknownSession(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	_, err := svc.GetSession(ctx, "missing")
	assert.ErrorIs(t, err, ErrSessionNotFound)

	_, err = svc.Start(ctx, "missing")
	assert.ErrorIs(t, err, ErrSessionNotFound)

	_, err = svc.GetSession(ctx, "")
	assert.ErrorIs(t, err, ErrSessionNotFound)
}

func TestServiceSessionsAreIndependent(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	first, err := svc.CreateSession(ctx)
	require.NoError(t, err)
	second, err := svc.CreateSession(ctx)
	require.NoError(t, err)
	require.NotEqual(t, first.ID, second.ID)

	_, err = svc.Start(ctx, first.ID)
	require.NoError(t, err)

	untouched, err := svc.GetSession(ctx, second.ID)
	require.NoError(t, err)
	assert.Equal(t, model.StepIntro, untouched.Step)
}

func TestServiceSnapshotsAreIsolated(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	created, err := svc.CreateSession(ctx)
	require.NoError(t, err)
	snapshot, err := svc.Start(ctx, created.ID)
	require.NoError(t, err)

	snapshot.AggregatedData[persona.TechAdventurer][0] = "tampered"
	snapshot.Step = model.StepImageGen

	stored, err := svc.GetSession(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, model.StepAggregating, stored.Step)
	assert.NotEqual(t, "tampered", stored.AggregatedData[persona.TechAdventurer][0])
}

func TestServiceRejectedOperationReturnsCurrentState(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	created, err := svc.CreateSession(ctx)
	require.NoError(t, err)

	current, err := svc.Generate(ctx, created.ID, "a prompt")
	require.ErrorIs(t, err, ErrGuardViolation)
	assert.Equal(t, model.StepIntro, current.Step)
}

func TestServiceFullRunAndReset(t *testing.T) {
	svc, f := newTestService(t)
	ctx := context.Background()

	created, err := svc.CreateSession(ctx)
	require.NoError(t, err)
	id := created.ID

	_, err = svc.Start(ctx, id)
	require.NoError(t, err)
	_, err = svc.Aggregate(ctx, id)
	require.NoError(t, err)
	_, err = svc.BeginAnalysis(ctx, id)
	require.NoError(t, err)
	_, err = svc.SelectPersona(ctx, id, persona.BusinessElite)
	require.NoError(t, err)
	_, err = svc.ChooseCategory(ctx, id, model.CategoryRendering)
	require.NoError(t, err)
	_, err = svc.EditPrompt(ctx, id, "elite rendering prompt, sunset")
	require.NoError(t, err)
	generated, err := svc.Generate(ctx, id, "")
	require.NoError(t, err)
	assert.Equal(t, model.StepImageGen, generated.Step)

	img, err := svc.Image(ctx, id)
	require.NoError(t, err)
	require.NotNil(t, img)
	assert.Equal(t, []byte("png"), img.Data)
	assert.Equal(t, []string{"elite rendering prompt, sunset"}, f.images.prompts)

	back, err := svc.TryAgain(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, model.StepAnalyzing, back.Step)

	reset, err := svc.Reset(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, *model.NewSession(id, created.CreatedAt), reset)

	img, err = svc.Image(ctx, id)
	require.NoError(t, err)
	assert.Nil(t, img)
}

func TestServiceSerialisesOperationsPerSession(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	created, err := svc.CreateSession(ctx)
	require.NoError(t, err)

	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		succeeded int
	)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := svc.Start(ctx, created.ID); err == nil {
				mu.Lock()
				succeeded++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, succeeded)
}
