package config

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/cloudwego/eino-ext/components/model/ark"
	"github.com/cloudwego/eino/components/model"
)

// Config 聚合整个服务的配置项。
type Config struct {
	Server  ServerConfig
	AI      AIConfig
	Session SessionConfig
	Store   StoreConfig
	Metrics MetricsConfig
}

// Load 从环境变量加载配置。
func Load() (*Config, error) {
	server, err := loadServerConfig()
	if err != nil {
		return nil, err
	}

	ai, err := loadAIConfig()
	if err != nil {
		return nil, err
	}

	session, err := loadSessionConfig()
	if err != nil {
		return nil, err
	}

	metricsEnabled, err := parseBoolEnv("METRICS_ENABLED", true)
	if err != nil {
		return nil, err
	}

	return &Config{
		Server:  server,
		AI:      ai,
		Session: session,
		Store:   StoreConfig{TranscriptDSN: strings.TrimSpace(os.Getenv("TRANSCRIPT_DSN"))},
		Metrics: MetricsConfig{
			Enabled:   metricsEnabled,
			Namespace: getEnvOrDefault("METRICS_NAMESPACE", "zclinic"),
		},
	}, nil
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

// Generation providers.
const (
	ProviderOpenAI = "openai"
	ProviderArk    = "ark"
)

// AIConfig 描述大模型相关配置。
type AIConfig struct {
	Provider string

	OpenAIAPIKey  string
	OpenAIModel   string
	OpenAIBaseURL string

	APIKey      string
	AccessKey   string
	SecretKey   string
	Model       string
	BaseURL     string
	Region      string
	Temperature *float64
	TopP        *float64

	MaxOutputTokens int
	RequestTimeout  time.Duration
}

// OpenAIEnabled 表示是否配置了 OpenAI 凭证。
func (c AIConfig) OpenAIEnabled() bool {
	return c.OpenAIAPIKey != "" && c.OpenAIModel != ""
}

// ArkEnabled 表示是否提供了 Ark 必需的密钥。
func (c AIConfig) ArkEnabled() bool {
	return c.Model != "" && (c.APIKey != "" || (c.AccessKey != "" && c.SecretKey != ""))
}

// Enabled 表示至少有一个生成服务可用。
func (c AIConfig) Enabled() bool {
	return c.ResolvedProvider() != ""
}

// ResolvedProvider picks the configured provider, or the first one with credentials.
func (c AIConfig) ResolvedProvider() string {
	switch c.Provider {
	case ProviderOpenAI:
		if c.OpenAIEnabled() {
			return ProviderOpenAI
		}
		return ""
	case ProviderArk:
		if c.ArkEnabled() {
			return ProviderArk
		}
		return ""
	}
	if c.OpenAIEnabled() {
		return ProviderOpenAI
	}
	if c.ArkEnabled() {
		return ProviderArk
	}
	return ""
}

// NewChatModel 使用配置创建一个 Ark 模型实例。
func (c AIConfig) NewChatModel(ctx context.Context) (model.ChatModel, error) {
	if !c.ArkEnabled() {
		return nil, fmt.Errorf("Ark 凭证或模型配置缺失，至少提供 ARK_API_KEY + Model 或 AK/SK 组合")
	}

	var temperature *float32
	if c.Temperature != nil {
		val := float32(*c.Temperature)
		temperature = &val
	}

	var topP *float32
	if c.TopP != nil {
		val := float32(*c.TopP)
		topP = &val
	}

	maxTokens := c.MaxOutputTokens

	cfg := &ark.ChatModelConfig{
		BaseURL:     c.BaseURL,
		Region:      c.Region,
		APIKey:      c.APIKey,
		AccessKey:   c.AccessKey,
		SecretKey:   c.SecretKey,
		Model:       c.Model,
		MaxTokens:   &maxTokens,
		Temperature: temperature,
		TopP:        topP,
	}

	return ark.NewChatModel(ctx, cfg)
}

func loadAIConfig() (AIConfig, error) {
	temperature, err := parseOptionalFloatEnv("ARK_TEMPERATURE")
	if err != nil {
		return AIConfig{}, err
	}

	topP, err := parseOptionalFloatEnv("ARK_TOP_P")
	if err != nil {
		return AIConfig{}, err
	}

	maxTokens := 500
	if override, err := parseOptionalIntEnv("AI_MAX_OUTPUT_TOKENS"); err != nil {
		return AIConfig{}, err
	} else if override != nil {
		if *override < 1 {
			return AIConfig{}, fmt.Errorf("invalid AI_MAX_OUTPUT_TOKENS value %d: must be positive", *override)
		}
		maxTokens = *override
	}

	timeout, err := parseDurationEnv("AI_REQUEST_TIMEOUT", 10*time.Second)
	if err != nil {
		return AIConfig{}, err
	}
	if timeout <= 0 {
		return AIConfig{}, fmt.Errorf("invalid AI_REQUEST_TIMEOUT value %s: must be positive", timeout)
	}

	provider := strings.ToLower(strings.TrimSpace(os.Getenv("GENERATION_PROVIDER")))
	switch provider {
	case "", ProviderOpenAI, ProviderArk:
	default:
		return AIConfig{}, fmt.Errorf("invalid GENERATION_PROVIDER value %q (expected openai|ark)", provider)
	}

	return AIConfig{
		Provider:        provider,
		OpenAIAPIKey:    strings.TrimSpace(os.Getenv("OPENAI_API_KEY")),
		OpenAIModel:     getEnvOrDefault("OPENAI_MODEL", "gpt-4o"),
		OpenAIBaseURL:   strings.TrimSpace(os.Getenv("OPENAI_BASE_URL")),
		APIKey:          strings.TrimSpace(os.Getenv("ARK_API_KEY")),
		AccessKey:       strings.TrimSpace(os.Getenv("ARK_ACCESS_KEY")),
		SecretKey:       strings.TrimSpace(os.Getenv("ARK_SECRET_KEY")),
		Model:           strings.TrimSpace(os.Getenv("Model")),
		BaseURL:         getEnvOrDefault("ARK_BASE_URL", "https://ark.cn-beijing.volces.com/api/v3"),
		Region:          getEnvOrDefault("ARK_REGION", "cn-beijing"),
		Temperature:     temperature,
		TopP:            topP,
		MaxOutputTokens: maxTokens,
		RequestTimeout:  timeout,
	}, nil
}

// SessionConfig 描述会话状态机的策略参数。
type SessionConfig struct {
	NegativeThreshold float64
	MaxMessageLength  int
	MaxTurns          int
	MaxInputTokens    int
	HistoryLimit      int
	InactivityTimeout time.Duration
	PersonaID         string
	BackgroundFile    string
	TokenEncoding     string
}

func loadSessionConfig() (SessionConfig, error) {
	cfg := SessionConfig{
		NegativeThreshold: -0.3,
		MaxMessageLength:  500,
		MaxTurns:          20,
		MaxInputTokens:    1000,
		PersonaID:         getEnvOrDefault("PERSONA_ID", "monae"),
		BackgroundFile:    getEnvOrDefault("PERSONA_BACKGROUND_FILE", "background.txt"),
		TokenEncoding:     getEnvOrDefault("TOKEN_ENCODING", "o200k_base"),
	}

	threshold, err := parseOptionalFloatEnv("SESSION_NEGATIVE_THRESHOLD")
	if err != nil {
		return SessionConfig{}, err
	}
	if threshold != nil {
		if *threshold < -1 || *threshold > 1 {
			return SessionConfig{}, fmt.Errorf("invalid SESSION_NEGATIVE_THRESHOLD value %v: must be within [-1, 1]", *threshold)
		}
		cfg.NegativeThreshold = *threshold
	}

	positive := []struct {
		key    string
		target *int
	}{
		{"SESSION_MAX_MESSAGE_LENGTH", &cfg.MaxMessageLength},
		{"SESSION_MAX_TURNS", &cfg.MaxTurns},
		{"SESSION_MAX_INPUT_TOKENS", &cfg.MaxInputTokens},
	}
	for _, p := range positive {
		val, err := parseOptionalIntEnv(p.key)
		if err != nil {
			return SessionConfig{}, err
		}
		if val == nil {
			continue
		}
		if *val < 1 {
			return SessionConfig{}, fmt.Errorf("invalid %s value %d: must be positive", p.key, *val)
		}
		*p.target = *val
	}

	// 0 表示不限制历史轮数。
	if limit, err := parseOptionalIntEnv("SESSION_HISTORY_LIMIT"); err != nil {
		return SessionConfig{}, err
	} else if limit != nil && *limit > 0 {
		cfg.HistoryLimit = *limit
	}

	cfg.InactivityTimeout, err = parseDurationEnv("SESSION_INACTIVITY_TIMEOUT", 30*time.Minute)
	if err != nil {
		return SessionConfig{}, err
	}

	return cfg, nil
}

// StoreConfig 描述会话记录的持久化配置，空 DSN 表示仅保存在内存中。
type StoreConfig struct {
	TranscriptDSN string
}

// MetricsConfig 描述 Prometheus 指标配置。
type MetricsConfig struct {
	Enabled   bool
	Namespace string
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := strings.TrimSpace(os.Getenv(key)); value != "" {
		return value
	}
	return defaultValue
}

func parseBoolEnv(key string, defaultValue bool) (bool, error) {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return defaultValue, nil
	}

	val, err := strconv.ParseBool(raw)
	if err != nil {
		return false, fmt.Errorf("invalid %s value %q: %w", key, raw, err)
	}
	return val, nil
}

func parseDurationEnv(key string, defaultValue time.Duration) (time.Duration, error) {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return defaultValue, nil
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
