package handler

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/zhouzirui/concept-studio/backend/internal/handler/persona"
	"github.com/zhouzirui/concept-studio/backend/internal/handler/stream"
	"github.com/zhouzirui/concept-studio/backend/internal/handler/workflow"
	"github.com/zhouzirui/concept-studio/backend/internal/metrics"
	middlewarePkg "github.com/zhouzirui/concept-studio/backend/internal/middleware"
	personaModel "github.com/zhouzirui/concept-studio/backend/internal/model/persona"
	workflowService "github.com/zhouzirui/concept-studio/backend/internal/service/workflow"
	"github.com/zhouzirui/concept-studio/backend/pkg/utils"
)

// Deps 路由依赖的服务
type Deps struct {
	Personas  personaModel.Store
	Workflow  *workflowService.Service
	Metrics   *metrics.Metrics
	Logger    *zap.Logger
	Heartbeat time.Duration // SSE 忙碌提示间隔，0 使用默认值
}

// NewRouter wires HTTP routes to core services.
func NewRouter(deps Deps) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middlewarePkg.RequestLogger(deps.Logger))
	r.Use(middleware.Recoverer)
	r.Use(middlewarePkg.CORS)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		utils.RespondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Method(http.MethodGet, "/metrics", deps.Metrics.Handler())

	// Create handlers
	personaHandler := persona.New(deps.Personas)
	workflowHandler := workflow.New(deps.Workflow, deps.Logger)
	streamHandler := stream.New(deps.Workflow, deps.Heartbeat, deps.Logger)

	r.Route("/api", func(api chi.Router) {
		personaHandler.RegisterRoutes(api)
		workflowHandler.RegisterRoutes(api)
		streamHandler.RegisterRoutes(api)
	})

	return r
}
