package ai

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/components/prompt"
	"github.com/cloudwego/eino/compose"
	"github.com/cloudwego/eino/schema"
	"go.uber.org/zap"

	"github.com/zhouzirui/concept-studio/backend/internal/config"
	"github.com/zhouzirui/concept-studio/backend/internal/logger"
)

// Service is the text-analysis client: one system instruction plus one user
// message in, the raw completion text out.
type Service struct {
	chain  compose.Runnable[map[string]any, *schema.Message]
	logger *zap.Logger
}

// NewService creates the client against the configured OpenAI-compatible
// endpoint. Requests ask for a json_object reply and are never retried.
func NewService(ctx context.Context, cfg config.AnalysisConfig, log *zap.Logger) (*Service, error) {
	httpClient := &http.Client{
		Timeout:   cfg.Timeout,
		Transport: newJSONObjectTransport(http.DefaultTransport),
	}
	chatModel, err := cfg.NewChatModel(ctx, httpClient)
	if err != nil {
		return nil, fmt.Errorf("failed to create chat model: %w", err)
	}
	return NewServiceWithModel(ctx, chatModel, log)
}

// NewServiceWithModel wires an existing chat model into the completion chain.
func NewServiceWithModel(ctx context.Context, chatModel model.BaseChatModel, log *zap.Logger) (*Service, error) {
	if chatModel == nil {
		return nil, fmt.Errorf("chat model is required")
	}

	promptTemplate := prompt.FromMessages(
		schema.FString,
		schema.SystemMessage("{system}"),
		schema.UserMessage("{query}"),
	)

	chain := compose.NewChain[map[string]any, *schema.Message]()
	chain.AppendChatTemplate(promptTemplate)
	chain.AppendChatModel(chatModel)

	runnable, err := chain.Compile(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to compile completion chain: %w", err)
	}

	return &Service{
		chain:  runnable,
		logger: logger.OrNop(log),
	}, nil
}

// Complete runs one completion. An empty reply is reported as an error.
func (s *Service) Complete(ctx context.Context, systemInstruction, userContent string) (string, error) {
	response, err := s.chain.Invoke(ctx, map[string]any{
		"system": systemInstruction,
		"query":  userContent,
	})
	if err != nil {
		return "", fmt.Errorf("failed to run completion chain: %w", err)
	}

	if response == nil || strings.TrimSpace(response.Content) == "" {
		return "", fmt.Errorf("analysis service returned an empty response")
	}

	s.logger.Debug("completion received", zap.Int("length", len(response.Content)))
	return response.Content, nil
}
