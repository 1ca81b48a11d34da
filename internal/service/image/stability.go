package image

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	stdimage "image"
	_ "image/jpeg"
	_ "image/png"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/zhouzirui/concept-studio/backend/internal/config"
	"github.com/zhouzirui/concept-studio/backend/internal/logger"
)

// Request describes one text-to-image generation.
type Request struct {
	Prompt      string
	Width       int
	Height      int
	Steps       int
	CFGScale    float64
	StylePreset string
}

// Result is a decoded raster image returned by the service.
type Result struct {
	Data   []byte
	Format string
	Width  int
	Height int
	Seed   int64
}

// Client calls the Stability AI text-to-image REST endpoint.
type Client struct {
	cfg        config.ImageConfig
	httpClient *http.Client
	logger     *zap.Logger
}

// NewClient creates a client whose requests are bounded by cfg.Timeout.
func NewClient(cfg config.ImageConfig, log *zap.Logger) *Client {
	return &Client{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: cfg.Timeout},
		logger:     logger.OrNop(log),
	}
}

// DefaultRequest fills in the configured dimensions, steps, guidance and style.
func (c *Client) DefaultRequest(prompt string) Request {
	return Request{
		Prompt:      prompt,
		Width:       c.cfg.Width,
		Height:      c.cfg.Height,
		Steps:       c.cfg.Steps,
		CFGScale:    c.cfg.CFGScale,
		StylePreset: c.cfg.StylePreset,
	}
}

type textPrompt struct {
	Text string `json:"text"`
}

type generationRequest struct {
	TextPrompts []textPrompt `json:"text_prompts"`
	CFGScale    float64      `json:"cfg_scale"`
	Height      int          `json:"height"`
	Width       int          `json:"width"`
	Samples     int          `json:"samples"`
	Steps       int          `json:"steps"`
	StylePreset string       `json:"style_preset,omitempty"`
}

type generationResponse struct {
	Artifacts []struct {
		Base64       string `json:"base64"`
		Seed         int64  `json:"seed"`
		FinishReason string `json:"finishReason"`
	} `json:"artifacts"`
}

// Generate requests a single image and decodes the first artifact.
func (c *Client) Generate(ctx context.Context, req Request) (*Result, error) {
	if strings.TrimSpace(req.Prompt) == "" {
		return nil, fmt.Errorf("image prompt is empty")
	}
	if c.cfg.APIKey == "" {
		return nil, fmt.Errorf("image service is not configured, set %s", config.ImageKeyEnv)
	}

	body, err := json.Marshal(generationRequest{
		TextPrompts: []textPrompt{{Text: req.Prompt}},
		CFGScale:    req.CFGScale,
		Height:      req.Height,
		Width:       req.Width,
		Samples:     1,
		Steps:       req.Steps,
		StylePreset: req.StylePreset,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to encode image request: %w", err)
	}

	url := fmt.Sprintf("%s/v1/generation/%s/text-to-image", c.cfg.Host, c.cfg.EngineID)
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to build image request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)

	started := time.Now()
	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("image service request failed: %w", err)
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read image response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("image service returned %d: %s", resp.StatusCode, truncate(string(payload), 300))
	}

	var decoded generationResponse
	if err := json.Unmarshal(payload, &decoded); err != nil {
		return nil, fmt.Errorf("failed to decode image response: %w", err)
	}
	if len(decoded.Artifacts) == 0 {
		return nil, fmt.Errorf("image service returned no artifacts")
	}

	artifact := decoded.Artifacts[0]
	data, err := base64.StdEncoding.DecodeString(artifact.Base64)
	if err != nil {
		return nil, fmt.Errorf("failed to decode image payload: %w", err)
	}

	imgCfg, format, err := stdimage.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("image payload is not a raster image: %w", err)
	}

	c.logger.Info("image generated",
		zap.Duration("elapsed", time.Since(started)),
		zap.String("format", format),
		zap.Int("bytes", len(data)),
		zap.String("finishReason", artifact.FinishReason),
	)

	return &Result{
		Data:   data,
		Format: format,
		Width:  imgCfg.Width,
		Height: imgCfg.Height,
		Seed:   artifact.Seed,
	}, nil
}

func truncate(s string, limit int) string {
	s = strings.TrimSpace(s)
	if len(s) <= limit {
		return s
	}
	return s[:limit] + "..."
}
