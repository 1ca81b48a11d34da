package workflow

import (
	"encoding/json"
	"errors"
	"io"
	"mime"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/zhouzirui/concept-studio/backend/internal/logger"
	model "github.com/zhouzirui/concept-studio/backend/internal/model/workflow"
	workflowService "github.com/zhouzirui/concept-studio/backend/internal/service/workflow"
	"github.com/zhouzirui/concept-studio/backend/pkg/utils"
)

// Handler 向导流程的HTTP处理器
type Handler struct {
	svc    *workflowService.Service
	logger *zap.Logger
}

// New 创建向导流程处理器
func New(svc *workflowService.Service, log *zap.Logger) *Handler {
	return &Handler{svc: svc, logger: logger.OrNop(log)}
}

// SessionView 会话快照，附带可读的步骤名
type SessionView struct {
	model.Session
	StepName string `json:"stepName"`
}

// NewSessionView 构造会话快照
func NewSessionView(s model.Session) SessionView {
	return SessionView{Session: s, StepName: s.Step.String()}
}

// RegisterRoutes 注册向导流程相关的路由
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Get("/status", h.handleStatus)
	r.Route("/sessions", func(r chi.Router) {
		r.Post("/", h.handleCreateSession)
		r.Route("/{sessionID}", func(r chi.Router) {
			r.Get("/", h.handleGetSession)
			r.Post("/start", h.handleStart)
			r.Post("/aggregate", h.handleAggregate)
			r.Post("/analysis", h.handleBeginAnalysis)
			r.Post("/persona", h.handleSelectPersona)
			r.Post("/category", h.handleChooseCategory)
			r.Put("/prompt", h.handleEditPrompt)
			r.Post("/generation", h.handleGenerate)
			r.Post("/retry", h.handleTryAgain)
			r.Post("/reset", h.handleReset)
			r.Get("/image", h.handleImage)
		})
	})
}

// handleStatus 报告外部服务是否已配置
func (h *Handler) handleStatus(w http.ResponseWriter, r *http.Request) {
	payload := struct {
		Ready   bool     `json:"ready"`
		Missing []string `json:"missing"`
		Failed  []string `json:"failed,omitempty"`
	}{Ready: true, Missing: []string{}}

	var cfgErr *workflowService.ConfigError
	if err := h.svc.Ready(); errors.As(err, &cfgErr) {
		payload.Ready = false
		if len(cfgErr.Missing) > 0 {
			payload.Missing = cfgErr.Missing
		}
		payload.Failed = cfgErr.Failed
	}

	utils.RespondJSON(w, http.StatusOK, payload)
}

func (h *Handler) handleCreateSession(w http.ResponseWriter, r *http.Request) {
	session, err := h.svc.CreateSession(r.Context())
	if err != nil {
		h.respondServiceError(w, err)
		return
	}
	utils.RespondJSON(w, http.StatusCreated, NewSessionView(session))
}

func (h *Handler) handleGetSession(w http.ResponseWriter, r *http.Request) {
	h.respond(w, http.StatusOK)(h.svc.GetSession(r.Context(), chi.URLParam(r, "sessionID")))
}

func (h *Handler) handleStart(w http.ResponseWriter, r *http.Request) {
	h.respond(w, http.StatusOK)(h.svc.Start(r.Context(), chi.URLParam(r, "sessionID")))
}

func (h *Handler) handleAggregate(w http.ResponseWriter, r *http.Request) {
	h.respond(w, http.StatusOK)(h.svc.Aggregate(r.Context(), chi.URLParam(r, "sessionID")))
}

func (h *Handler) handleBeginAnalysis(w http.ResponseWriter, r *http.Request) {
	h.respond(w, http.StatusOK)(h.svc.BeginAnalysis(r.Context(), chi.URLParam(r, "sessionID")))
}

func (h *Handler) handleSelectPersona(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		PersonaID string `json:"personaId"`
	}
	if err := decodeBody(r, &payload, false); err != nil {
		utils.RespondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if payload.PersonaID == "" {
		utils.RespondError(w, http.StatusBadRequest, "personaId is required")
		return
	}

	h.respond(w, http.StatusOK)(h.svc.SelectPersona(r.Context(), chi.URLParam(r, "sessionID"), payload.PersonaID))
}

func (h *Handler) handleChooseCategory(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		Category string `json:"category"`
	}
	if err := decodeBody(r, &payload, false); err != nil {
		utils.RespondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	category, err := model.ParseCategory(strings.ToLower(strings.TrimSpace(payload.Category)))
	if err != nil {
		utils.RespondError(w, http.StatusBadRequest, err.Error())
		return
	}

	h.respond(w, http.StatusOK)(h.svc.ChooseCategory(r.Context(), chi.URLParam(r, "sessionID"), category))
}

func (h *Handler) handleEditPrompt(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		Prompt *string `json:"prompt"`
	}
	if err := decodeBody(r, &payload, false); err != nil {
		utils.RespondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if payload.Prompt == nil {
		utils.RespondError(w, http.StatusBadRequest, "prompt is required")
		return
	}

	h.respond(w, http.StatusOK)(h.svc.EditPrompt(r.Context(), chi.URLParam(r, "sessionID"), *payload.Prompt))
}

// handleGenerate 生成图像；请求体可选，prompt 非空时覆盖当前提示词
func (h *Handler) handleGenerate(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		Prompt string `json:"prompt"`
	}
	if err := decodeBody(r, &payload, true); err != nil {
		utils.RespondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	h.respond(w, http.StatusOK)(h.svc.Generate(r.Context(), chi.URLParam(r, "sessionID"), payload.Prompt))
}

func (h *Handler) handleTryAgain(w http.ResponseWriter, r *http.Request) {
	h.respond(w, http.StatusOK)(h.svc.TryAgain(r.Context(), chi.URLParam(r, "sessionID")))
}

func (h *Handler) handleReset(w http.ResponseWriter, r *http.Request) {
	h.respond(w, http.StatusOK)(h.svc.Reset(r.Context(), chi.URLParam(r, "sessionID")))
}

// handleImage 返回生成图像的原始字节
func (h *Handler) handleImage(w http.ResponseWriter, r *http.Request) {
	img, err := h.svc.Image(r.Context(), chi.URLParam(r, "sessionID"))
	if err != nil {
		h.respondServiceError(w, err)
		return
	}
	if img == nil || len(img.Data) == 0 {
		utils.RespondError(w, http.StatusNotFound, "no image generated yet")
		return
	}

	contentType := mime.TypeByExtension("." + img.Format)
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(img.Data); err != nil {
		h.logger.Warn("failed to write image", zap.Error(err))
	}
}

func (h *Handler) respond(w http.ResponseWriter, status int) func(model.Session, error) {
	return func(session model.Session, err error) {
		if err != nil {
			h.respondServiceError(w, err)
			return
		}
		utils.RespondJSON(w, status, NewSessionView(session))
	}
}

func (h *Handler) respondServiceError(w http.ResponseWriter, err error) {
	status, body := ErrorResponse(err)
	if status >= http.StatusInternalServerError && status != http.StatusServiceUnavailable {
		h.logger.Error("workflow operation failed", zap.Error(err))
	}
	utils.RespondJSON(w, status, body)
}

// ErrorResponse 把服务层错误映射为HTTP状态码与响应体
func ErrorResponse(err error) (int, utils.ErrorBody) {
	body := utils.ErrorBody{Error: err.Error()}

	var (
		cfgErr        *workflowService.ConfigError
		transitionErr *workflowService.TransitionError
	)
	switch {
	case errors.Is(err, workflowService.ErrSessionNotFound):
		return http.StatusNotFound, body
	case errors.As(err, &cfgErr):
		body.Missing = cfgErr.Missing
		body.Failed = cfgErr.Failed
		return http.StatusServiceUnavailable, body
	case errors.As(err, &transitionErr):
		body.From = transitionErr.From.String()
		body.To = transitionErr.To.String()
		body.Reason = transitionErr.Reason
		return http.StatusConflict, body
	default:
		return http.StatusInternalServerError, body
	}
}

func decodeBody(r *http.Request, dst any, optional bool) error {
	err := json.NewDecoder(r.Body).Decode(dst)
	if optional && errors.Is(err, io.EOF) {
		return nil
	}
	return err
}
