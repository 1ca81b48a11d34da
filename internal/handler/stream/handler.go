package stream

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/zhouzirui/concept-studio/backend/internal/handler/workflow"
	"github.com/zhouzirui/concept-studio/backend/internal/logger"
	model "github.com/zhouzirui/concept-studio/backend/internal/model/workflow"
	workflowService "github.com/zhouzirui/concept-studio/backend/internal/service/workflow"
	"github.com/zhouzirui/concept-studio/backend/pkg/utils"
)

// DefaultHeartbeat 两次忙碌提示之间的间隔
const DefaultHeartbeat = 2 * time.Second

// Handler 通过 Server-Sent Events 执行两个耗时操作，执行期间持续推送忙碌提示
type Handler struct {
	svc       *workflowService.Service
	heartbeat time.Duration
	logger    *zap.Logger
}

// New creates a new stream handler. heartbeat <= 0 selects DefaultHeartbeat.
func New(svc *workflowService.Service, heartbeat time.Duration, log *zap.Logger) *Handler {
	if heartbeat <= 0 {
		heartbeat = DefaultHeartbeat
	}
	return &Handler{svc: svc, heartbeat: heartbeat, logger: logger.OrNop(log)}
}

// BusyEvent is pushed while the external call is running.
type BusyEvent struct {
	SessionID string `json:"sessionId"`
	Operation string `json:"operation"`
	Message   string `json:"message"`
	Elapsed   string `json:"elapsed"`
}

type outcome struct {
	session model.Session
	err     error
}

// RegisterRoutes 注册流式路由
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Get("/stream/{sessionID}/analysis", h.handleAnalysis)
	r.Get("/stream/{sessionID}/generation", h.handleGeneration)
}

func (h *Handler) handleAnalysis(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")
	h.run(w, r, sessionID, "analysis", "正在分析用户画像…", func(ctx context.Context) (model.Session, error) {
		return h.svc.BeginAnalysis(ctx, sessionID)
	})
}

func (h *Handler) handleGeneration(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")
	prompt := r.URL.Query().Get("prompt")
	h.run(w, r, sessionID, "generation", "正在生成概念图…", func(ctx context.Context) (model.Session, error) {
		return h.svc.Generate(ctx, sessionID, prompt)
	})
}

// run starts op in the background and streams busy events until it
// finishes; the final event is "result" or "error". Every event carries an
// id, so a reconnecting EventSource sends Last-Event-ID. Such a request is
// answered with 204, which makes the browser stop reconnecting, and op is not
// run again. The workflow service keeps an operation running when the client
// leaves; the outcome is then read from the session snapshot.
func (h *Handler) run(w http.ResponseWriter, r *http.Request, sessionID, operation, message string, op func(context.Context) (model.Session, error)) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		utils.RespondError(w, http.StatusInternalServerError, "streaming unsupported")
		return
	}

	// 会话不存在时直接返回普通错误响应
	if _, err := h.svc.GetSession(r.Context(), sessionID); err != nil {
		status, body := workflow.ErrorResponse(err)
		utils.RespondJSON(w, status, body)
		return
	}

	if lastID := r.Header.Get("Last-Event-ID"); lastID != "" {
		h.logger.Info("ignoring stream reconnect",
			zap.String("session", sessionID),
			zap.String("operation", operation),
			zap.String("last_event_id", lastID),
		)
		w.WriteHeader(http.StatusNoContent)
		return
	}

	utils.SetupSSEHeaders(w)
	w.WriteHeader(http.StatusOK)

	done := make(chan outcome, 1)
	go func() {
		session, err := op(r.Context())
		done <- outcome{session: session, err: err}
	}()

	started := time.Now()
	ticker := time.NewTicker(h.heartbeat)
	defer ticker.Stop()

	seq := 0
	nextID := func() string {
		seq++
		return fmt.Sprintf("%s-%d", operation, seq)
	}

	h.logger.Debug("stream opened", zap.String("session", sessionID), zap.String("operation", operation))
	if err := utils.SendSSEEventWithID(w, flusher, nextID(), "busy", BusyEvent{SessionID: sessionID, Operation: operation, Message: message, Elapsed: "0s"}); err != nil {
		h.logger.Debug("stream write failed", zap.String("session", sessionID), zap.Error(err))
	}

	for {
		select {
		case <-r.Context().Done():
			h.logger.Info("client left before completion",
				zap.String("session", sessionID),
				zap.String("operation", operation),
			)
			return
		case t := <-ticker.C:
			_ = utils.SendSSEEventWithID(w, flusher, nextID(), "busy", BusyEvent{
				SessionID: sessionID,
				Operation: operation,
				Message:   message,
				Elapsed:   t.Sub(started).Round(time.Second).String(),
			})
		case res := <-done:
			if res.err != nil {
				_, body := workflow.ErrorResponse(res.err)
				_ = utils.SendSSEEventWithID(w, flusher, operation+"-done", "error", body)
				return
			}
			_ = utils.SendSSEEventWithID(w, flusher, operation+"-done", "result", workflow.NewSessionView(res.session))
			h.logger.Debug("stream completed", zap.String("session", sessionID), zap.String("operation", operation))
			return
		}
	}
}
