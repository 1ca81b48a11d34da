package workflow

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/patrickmn/go-cache"
	"go.uber.org/zap"

	"github.com/zhouzirui/concept-studio/backend/internal/logger"
	"github.com/zhouzirui/concept-studio/backend/internal/metrics"
	model "github.com/zhouzirui/concept-studio/backend/internal/model/workflow"
)

// entry owns one session. mu serialises every operation on it, including
// the external calls made inside them.
type entry struct {
	mu      sync.Mutex
	session *model.Session
}

// Service keeps independent sessions in memory and applies machine
// operations to them one at a time. Idle sessions expire after the TTL.
type Service struct {
	machine  *Machine
	sessions *cache.Cache
	metrics  *metrics.Metrics
	logger   *zap.Logger
}

// NewService creates the session registry.
func NewService(machine *Machine, ttl time.Duration, m *metrics.Metrics, log *zap.Logger) *Service {
	cleanup := ttl / 2
	if cleanup < time.Minute {
		cleanup = time.Minute
	}

	svc := &Service{
		machine:  machine,
		sessions: cache.New(ttl, cleanup),
		metrics:  m,
		logger:   logger.OrNop(log),
	}
	svc.sessions.OnEvicted(func(id string, _ interface{}) {
		svc.logger.Debug("session expired", zap.String("session", id))
		svc.metrics.SetActiveSessions(svc.sessions.ItemCount())
	})
	return svc
}

// Ready reports missing external clients.
func (s *Service) Ready() error {
	return s.machine.Ready()
}

// CreateSession provisions a session at the intro step.
func (s *Service) CreateSession(_ context.Context) (model.Session, error) {
	session := model.NewSession(uuid.NewString(), time.Now().UTC())
	s.sessions.Set(session.ID, &entry{session: session}, cache.DefaultExpiration)
	s.metrics.SetActiveSessions(s.sessions.ItemCount())

	s.logger.Info("session created", zap.String("session", session.ID))
	return session.Clone(), nil
}

// GetSession returns a snapshot of the session.
func (s *Service) GetSession(_ context.Context, sessionID string) (model.Session, error) {
	e, err := s.lookup(sessionID)
	if err != nil {
		return model.Session{}, err
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	return e.session.Clone(), nil
}

// Image returns the generated image of the session, if any.
func (s *Service) Image(ctx context.Context, sessionID string) (*model.GeneratedImage, error) {
	session, err := s.GetSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	return session.Image, nil
}

// Start runs the Intro to Aggregating transition.
func (s *Service) Start(ctx context.Context, sessionID string) (model.Session, error) {
	return s.apply(ctx, sessionID, "start", func(ctx context.Context, session *model.Session) error {
		return s.machine.Start(ctx, session)
	})
}

// Aggregate re-runs comment aggregation.
func (s *Service) Aggregate(ctx context.Context, sessionID string) (model.Session, error) {
	return s.apply(ctx, sessionID, "aggregate", func(ctx context.Context, session *model.Session) error {
		return s.machine.Aggregate(ctx, session)
	})
}

// BeginAnalysis runs the Aggregating to Analyzing transition.
func (s *Service) BeginAnalysis(ctx context.Context, sessionID string) (model.Session, error) {
	return s.apply(ctx, sessionID, "analysis", func(ctx context.Context, session *model.Session) error {
		return s.machine.BeginAnalysis(ctx, session)
	})
}

// SelectPersona runs the Analyzing to PromptSelect transition.
func (s *Service) SelectPersona(ctx context.Context, sessionID, personaID string) (model.Session, error) {
	return s.apply(ctx, sessionID, "select_persona", func(_ context.Context, session *model.Session) error {
		return s.machine.SelectPersona(session, personaID)
	})
}

// ChooseCategory switches the image category at PromptSelect.
func (s *Service) ChooseCategory(ctx context.Context, sessionID string, category model.Category) (model.Session, error) {
	return s.apply(ctx, sessionID, "choose_category", func(_ context.Context, session *model.Session) error {
		return s.machine.ChooseCategory(session, category)
	})
}

// EditPrompt stores a user edited prompt.
func (s *Service) EditPrompt(ctx context.Context, sessionID, prompt string) (model.Session, error) {
	return s.apply(ctx, sessionID, "edit_prompt", func(_ context.Context, session *model.Session) error {
		return s.machine.EditPrompt(session, prompt)
	})
}

// Generate runs the PromptSelect to ImageGen transition or a regeneration.
func (s *Service) Generate(ctx context.Context, sessionID, prompt string) (model.Session, error) {
	return s.apply(ctx, sessionID, "generate", func(ctx context.Context, session *model.Session) error {
		return s.machine.Generate(ctx, session, prompt)
	})
}

// TryAgain runs the ImageGen to Analyzing transition.
func (s *Service) TryAgain(ctx context.Context, sessionID string) (model.Session, error) {
	return s.apply(ctx, sessionID, "try_again", func(ctx context.Context, session *model.Session) error {
		return s.machine.TryAgain(ctx, session)
	})
}

// Reset clears the session back to the intro step.
func (s *Service) Reset(ctx context.Context, sessionID string) (model.Session, error) {
	return s.apply(ctx, sessionID, "reset", func(_ context.Context, session *model.Session) error {
		s.machine.Reset(session)
		return nil
	})
}

func (s *Service) lookup(sessionID string) (*entry, error) {
	if sessionID == "" {
		return nil, ErrSessionNotFound
	}
	value, ok := s.sessions.Get(sessionID)
	if !ok {
		return nil, ErrSessionNotFound
	}
	return value.(*entry), nil
}

// apply runs fn under the session lock. The context handed to fn is detached
// from ctx's cancellation: once an operation has started, its external calls
// run to completion even if the caller goes away.
func (s *Service) apply(ctx context.Context, sessionID, operation string, fn func(context.Context, *model.Session) error) (model.Session, error) {
	e, err := s.lookup(sessionID)
	if err != nil {
		return model.Session{}, err
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	from := e.session.Step
	err = fn(context.WithoutCancel(ctx), e.session)
	s.metrics.ObserveTransition(operation, err)

	// Any activity keeps the session alive.
	s.sessions.Set(sessionID, e, cache.DefaultExpiration)

	if err != nil {
		s.logger.Info("operation rejected",
			zap.String("session", sessionID),
			zap.String("operation", operation),
			zap.Stringer("step", from),
			zap.Error(err),
		)
		return e.session.Clone(), err
	}

	s.logger.Info("operation applied",
		zap.String("session", sessionID),
		zap.String("operation", operation),
		zap.Stringer("from", from),
		zap.Stringer("to", e.session.Step),
	)
	return e.session.Clone(), nil
}
