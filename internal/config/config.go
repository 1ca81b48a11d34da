package config

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/cloudwego/eino-ext/components/model/ark"
)

// 凭证对应的环境变量名，缺失时按名字报告给运维。
const (
	AnalysisKeyEnv = "DEEPSEEK_API_KEY"
	ImageKeyEnv    = "STABILITY_API_KEY"
)

// Config 聚合整个服务的配置项。
type Config struct {
	Server   ServerConfig
	Log      LogConfig
	Analysis AnalysisConfig
	Image    ImageConfig
	Workflow WorkflowConfig
}

// Load 从环境变量加载配置。
func Load() (*Config, error) {
	server, err := loadServerConfig()
	if err != nil {
		return nil, err
	}

	analysis, err := loadAnalysisConfig()
	if err != nil {
		return nil, err
	}

	image, err := loadImageConfig()
	if err != nil {
		return nil, err
	}

	workflow, err := loadWorkflowConfig()
	if err != nil {
		return nil, err
	}

	return &Config{
		Server:   server,
		Log:      loadLogConfig(),
		Analysis: analysis,
		Image:    image,
		Workflow: workflow,
	}, nil
}

// MissingCredentials 返回未配置的凭证环境变量名。
func (c *Config) MissingCredentials() []string {
	var missing []string
	if !c.Analysis.Enabled() {
		missing = append(missing, AnalysisKeyEnv)
	}
	if !c.Image.Enabled() {
		missing = append(missing, ImageKeyEnv)
	}
	return missing
}

// ServerConfig 描述 HTTP 服务配置。
type ServerConfig struct {
	Addr string
}

// loadServerConfig 解析服务器监听地址。
func loadServerConfig() (ServerConfig, error) {
	port := strings.TrimSpace(os.Getenv("PORT"))
	if port == "" {
		port = "8080"
	}

	if strings.Contains(port, ":") {
		// 允许用户直接传入 ":8080" 或 "127.0.0.1:8080"。
		return ServerConfig{Addr: port}, nil
	}

	if strings.Contains(port, " ") {
		return ServerConfig{}, fmt.Errorf("invalid PORT value: %q", port)
	}

	return ServerConfig{Addr: ":" + port}, nil
}

// LogConfig 描述日志级别与输出格式。
type LogConfig struct {
	Level  string
	Format string
}

func loadLogConfig() LogConfig {
	return LogConfig{
		Level:  strings.ToLower(getEnvOrDefault("LOG_LEVEL", "info")),
		Format: strings.ToLower(getEnvOrDefault("LOG_FORMAT", "console")),
	}
}

// AnalysisConfig 描述文本分析（DeepSeek，OpenAI 兼容接口）相关配置。
type AnalysisConfig struct {
	APIKey  string
	Model   string
	BaseURL string
	Timeout time.Duration
}

// Enabled 表示是否提供了必需的密钥。
func (c AnalysisConfig) Enabled() bool {
	return c.APIKey != "" && c.Model != ""
}

// NewChatModel 使用配置创建模型实例。httpClient 为空时按 Timeout 构造。
// 每次调用只发起一次请求，不做重试。
func (c AnalysisConfig) NewChatModel(ctx context.Context, httpClient *http.Client) (*ark.ChatModel, error) {
	if !c.Enabled() {
		return nil, fmt.Errorf("文本分析服务未配置，请设置 %s", AnalysisKeyEnv)
	}

	timeout := c.Timeout
	if httpClient == nil {
		httpClient = &http.Client{Timeout: timeout}
	}
	retryTimes := 0
	cfg := &ark.ChatModelConfig{
		BaseURL:    c.BaseURL,
		APIKey:     c.APIKey,
		Model:      c.Model,
		Timeout:    &timeout,
		HTTPClient: httpClient,
		RetryTimes: &retryTimes,
	}

	return ark.NewChatModel(ctx, cfg)
}

func loadAnalysisConfig() (AnalysisConfig, error) {
	timeout, err := parseDurationEnv("ANALYSIS_TIMEOUT", 60*time.Second)
	if err != nil {
		return AnalysisConfig{}, err
	}

	return AnalysisConfig{
		APIKey:  strings.TrimSpace(os.Getenv(AnalysisKeyEnv)),
		Model:   getEnvOrDefault("ANALYSIS_MODEL", "deepseek-chat"),
		BaseURL: getEnvOrDefault("ANALYSIS_BASE_URL", "https://api.deepseek.com/v1"),
		Timeout: timeout,
	}, nil
}

// ImageConfig 描述图像生成（Stability AI）相关配置。
type ImageConfig struct {
	APIKey      string
	Host        string
	EngineID    string
	Timeout     time.Duration
	Width       int
	Height      int
	Steps       int
	CFGScale    float64
	StylePreset string
}

// Enabled 表示是否提供了必需的密钥。
func (c ImageConfig) Enabled() bool {
	return c.APIKey != ""
}

func loadImageConfig() (ImageConfig, error) {
	timeout, err := parseDurationEnv("IMAGE_TIMEOUT", 90*time.Second)
	if err != nil {
		return ImageConfig{}, err
	}

	width, err := parseIntEnv("IMAGE_WIDTH", 1024)
	if err != nil {
		return ImageConfig{}, err
	}
	height, err := parseIntEnv("IMAGE_HEIGHT", 1024)
	if err != nil {
		return ImageConfig{}, err
	}
	steps, err := parseIntEnv("IMAGE_STEPS", 30)
	if err != nil {
		return ImageConfig{}, err
	}

	cfgScale := 7.0
	if override, err := parseOptionalFloatEnv("IMAGE_CFG_SCALE"); err != nil {
		return ImageConfig{}, err
	} else if override != nil {
		cfgScale = *override
	}

	if width <= 0 || height <= 0 || steps <= 0 {
		return ImageConfig{}, fmt.Errorf("image dimensions and steps must be positive, got %dx%d steps=%d", width, height, steps)
	}

	return ImageConfig{
		APIKey:      strings.TrimSpace(os.Getenv(ImageKeyEnv)),
		Host:        strings.TrimRight(getEnvOrDefault("STABILITY_API_HOST", "https://api.stability.ai"), "/"),
		EngineID:    getEnvOrDefault("STABILITY_ENGINE_ID", "stable-diffusion-xl-1024-v1-0"),
		Timeout:     timeout,
		Width:       width,
		Height:      height,
		Steps:       steps,
		CFGScale:    cfgScale,
		StylePreset: getEnvOrDefault("IMAGE_STYLE_PRESET", "photographic"),
	}, nil
}

// WorkflowConfig 描述向导流程本身的参数。
type WorkflowConfig struct {
	AggregationDelay time.Duration
	SessionTTL       time.Duration
	DefaultCategory  string
}

func loadWorkflowConfig() (WorkflowConfig, error) {
	delay, err := parseDurationEnv("AGGREGATION_DELAY", 2*time.Second)
	if err != nil {
		return WorkflowConfig{}, err
	}

	ttl, err := parseDurationEnv("SESSION_TTL", 2*time.Hour)
	if err != nil {
		return WorkflowConfig{}, err
	}
	if ttl <= 0 {
		return WorkflowConfig{}, fmt.Errorf("invalid SESSION_TTL value %q: must be positive", ttl)
	}

	return WorkflowConfig{
		AggregationDelay: delay,
		SessionTTL:       ttl,
		DefaultCategory:  strings.ToLower(getEnvOrDefault("DEFAULT_IMAGE_CATEGORY", "rendering")),
	}, nil
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := strings.TrimSpace(os.Getenv(key)); value != "" {
		return value
	}
	return defaultValue
}

func parseIntEnv(key string, defaultValue int) (int, error) {
	val, err := parseOptionalIntEnv(key)
	if err != nil {
		return 0, err
	}
	if val == nil {
		return defaultValue, nil
	}
	return *val, nil
}

func parseDurationEnv(key string, defaultValue time.Duration) (time.Duration, error) {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return defaultValue, nil
	}

	// 纯数字按秒处理，与旧的 *_TIMEOUT 写法兼容。
	if seconds, err := strconv.Atoi(raw); err == nil {
		return time.Duration(seconds) * time.Second, nil
	}

	val, err := time.ParseDuration(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid %s value %q: %w", key, raw, err)
	}
	return val, nil
}

func parseOptionalFloatEnv(key string) (*float64, error) {
	raw, ok := os.LookupEnv(key)
	if !ok {
		return nil, nil
	}

	value := strings.TrimSpace(raw)
	if value == "" {
		return nil, nil
	}

	val, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return nil, fmt.Errorf("invalid %s value %q: %w", key, value, err)
	}
	return &val, nil
}

func parseOptionalIntEnv(key string) (*int, error) {
	raw, ok := os.LookupEnv(key)
	if !ok {
		return nil, nil
	}

	value := strings.TrimSpace(raw)
	if value == "" {
		return nil, nil
	}

	val, err := strconv.Atoi(value)
	if err != nil {
		return nil, fmt.Errorf("invalid %s value %q: %w", key, value, err)
	}
	return &val, nil
}
