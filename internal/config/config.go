package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config contains all runtime settings for the easel image service.
type Config struct {
	BindAddr         string
	ShutdownTimeout  time.Duration
	MetricsNamespace string

	Enabled bool

	GeminiAPIKey string
	GeminiMode   string
	Model        string
	BaseURL      string
	EnableProxy  bool
	ProxyURL     string
	CallTimeout  time.Duration

	GenerateCommands []string
	EditCommands     []string
	ExitCommands     []string
	AutoEdit         bool

	SaveDir         string
	ConversationTTL time.Duration
	InboxTTL        time.Duration
	ArtifactMaxAge  time.Duration
	SweepInterval   time.Duration

	GroupQuirk bool

	PointsEnabled bool
	GenerateCost  int
	EditCost      int
	DatabaseURL   string

	PlatformWSURL string
}

// Load reads environment variables and applies safe defaults.
func Load() (Config, error) {
	cfg := Config{
		BindAddr:         envOrDefault("EASEL_BIND_ADDR", ":8080"),
		MetricsNamespace: envOrDefault("EASEL_METRICS_NAMESPACE", "easel"),
		Enabled:          true,
		GeminiAPIKey:     envTrimmed("EASEL_GEMINI_API_KEY"),
		GeminiMode:       envOrDefault("EASEL_GEMINI_MODE", "auto"),
		Model:            envOrDefault("EASEL_MODEL", "gemini-2.0-flash-exp-image-generation"),
		BaseURL:          envOrDefault("EASEL_BASE_URL", "https://generativelanguage.googleapis.com"),
		ProxyURL:         envTrimmed("EASEL_PROXY_URL"),
		CallTimeout:      120 * time.Second,
		GenerateCommands: listOrDefault("EASEL_GENERATE_COMMANDS", []string{"$生成图片", "$画图", "$图片生成"}),
		EditCommands:     listOrDefault("EASEL_EDIT_COMMANDS", []string{"$编辑图片", "$修改图片"}),
		ExitCommands:     listOrDefault("EASEL_EXIT_COMMANDS", []string{"$结束对话", "$退出对话", "$关闭对话", "$结束"}),
		SaveDir:          envOrDefault("EASEL_SAVE_DIR", "temp"),
		ConversationTTL:  600 * time.Second,
		InboxTTL:         300 * time.Second,
		ArtifactMaxAge:   24 * time.Hour,
		SweepInterval:    time.Hour,
		GroupQuirk:       true,
		GenerateCost:     10,
		EditCost:         15,
		DatabaseURL:      envTrimmed("DATABASE_URL"),
		PlatformWSURL:    envTrimmed("EASEL_PLATFORM_WS_URL"),
		ShutdownTimeout:  15 * time.Second,
	}

	var err error
	cfg.Enabled, err = boolFromEnv("EASEL_ENABLED", cfg.Enabled)
	if err != nil {
		return Config{}, err
	}
	cfg.AutoEdit, err = boolFromEnv("EASEL_AUTO_EDIT", cfg.AutoEdit)
	if err != nil {
		return Config{}, err
	}
	cfg.EnableProxy, err = boolFromEnv("EASEL_ENABLE_PROXY", cfg.EnableProxy)
	if err != nil {
		return Config{}, err
	}
	cfg.GroupQuirk, err = boolFromEnv("EASEL_GROUP_SENDER_QUIRK", cfg.GroupQuirk)
	if err != nil {
		return Config{}, err
	}
	cfg.PointsEnabled, err = boolFromEnv("EASEL_ENABLE_POINTS", cfg.PointsEnabled)
	if err != nil {
		return Config{}, err
	}
	cfg.GenerateCost, err = intFromEnv("EASEL_GENERATE_COST", cfg.GenerateCost)
	if err != nil {
		return Config{}, err
	}
	cfg.EditCost, err = intFromEnv("EASEL_EDIT_COST", cfg.EditCost)
	if err != nil {
		return Config{}, err
	}
	cfg.CallTimeout, err = durationFromEnv("EASEL_CALL_TIMEOUT", cfg.CallTimeout)
	if err != nil {
		return Config{}, err
	}
	cfg.ConversationTTL, err = durationFromEnv("EASEL_CONVERSATION_TTL", cfg.ConversationTTL)
	if err != nil {
		return Config{}, err
	}
	cfg.InboxTTL, err = durationFromEnv("EASEL_INBOX_TTL", cfg.InboxTTL)
	if err != nil {
		return Config{}, err
	}
	cfg.ArtifactMaxAge, err = durationFromEnv("EASEL_ARTIFACT_MAX_AGE", cfg.ArtifactMaxAge)
	if err != nil {
		return Config{}, err
	}
	cfg.SweepInterval, err = durationFromEnv("EASEL_SWEEP_INTERVAL", cfg.SweepInterval)
	if err != nil {
		return Config{}, err
	}
	cfg.ShutdownTimeout, err = durationFromEnv("EASEL_SHUTDOWN_TIMEOUT", cfg.ShutdownTimeout)
	if err != nil {
		return Config{}, err
	}

	if cfg.ConversationTTL < 5*time.Second {
		return Config{}, fmt.Errorf("EASEL_CONVERSATION_TTL must be at least 5s")
	}
	if cfg.InboxTTL < 5*time.Second {
		return Config{}, fmt.Errorf("EASEL_INBOX_TTL must be at least 5s")
	}
	if cfg.CallTimeout <= 0 {
		return Config{}, fmt.Errorf("EASEL_CALL_TIMEOUT must be positive")
	}
	if cfg.GenerateCost < 0 || cfg.EditCost < 0 {
		return Config{}, fmt.Errorf("point costs must be >= 0")
	}
	if len(cfg.GenerateCommands) == 0 || len(cfg.EditCommands) == 0 || len(cfg.ExitCommands) == 0 {
		return Config{}, fmt.Errorf("command lists must not be empty")
	}
	if cfg.EnableProxy && cfg.ProxyURL == "" {
		return Config{}, fmt.Errorf("EASEL_PROXY_URL is required when EASEL_ENABLE_PROXY is set")
	}

	return cfg, nil
}

func envOrDefault(key, fallback string) string {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	return v
}

func envTrimmed(key string) string {
	return strings.TrimSpace(os.Getenv(key))
}

// listOrDefault parses a comma-separated env var into a list, dropping empty items.
func listOrDefault(key string, fallback []string) []string {
	v := envTrimmed(key)
	if v == "" {
		return fallback
	}
	var out []string
	for _, item := range strings.Split(v, ",") {
		item = strings.TrimSpace(item)
		if item != "" {
			out = append(out, item)
		}
	}
	if len(out) == 0 {
		return fallback
	}
	return out
}

func durationFromEnv(key string, fallback time.Duration) (time.Duration, error) {
	v := envTrimmed(key)
	if v == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("%s parse error: %w", key, err)
	}
	return d, nil
}

func intFromEnv(key string, fallback int) (int, error) {
	v := envTrimmed(key)
	if v == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("%s parse error: %w", key, err)
	}
	return n, nil
}

func boolFromEnv(key string, fallback bool) (bool, error) {
	v := strings.ToLower(envTrimmed(key))
	if v == "" {
		return fallback, nil
	}
	switch v {
	case "1", "true", "t", "yes", "y", "on":
		return true, nil
	case "0", "false", "f", "no", "n", "off":
		return false, nil
	default:
		return false, fmt.Errorf("%s parse error: expected bool", key)
	}
}
