package config

import (
	"log"
	"os"
	"strconv"
	"strings"
)

// Config holds application configuration.
type Config struct {
	Port               string
	CORSAllowOrigin    []string
	DatabaseURL        string
	Env                string
	LLMProvider        string
	LLMModel           string
	OpenAIAPIKey       string
	AnthropicAPIKey    string
	PriceInputPerMTok  float64
	PriceOutputPerMTok float64
	GitHubAPIURL       string
	GitHubToken        string
	GitHubRPS          float64
	ScanBatchSize      int
	ScanMaxIssues      int
	HeuristicsFile     string
}

// Load reads configuration from environment variables with sensible defaults.
func Load() Config {
	// Best-effort load of local env files for dev convenience.
	loadEnvFiles(".env", "cmd/.env")

	env := normalizeEnv(getEnv("ENV", "dev"))
	dbURL := os.Getenv("DATABASE_URL")

	if env == "production" && dbURL == "" {
		log.Printf("DATABASE_URL is required in production")
	}

	return Config{
		Port:               getEnv("PORT", "8080"),
		CORSAllowOrigin:    splitAndTrim(getEnv("CORS_ALLOW_ORIGINS", "http://localhost:3000")),
		DatabaseURL:        dbURL,
		Env:                env,
		LLMProvider:        normalizeProvider(getEnv("LLM_PROVIDER", "openai")),
		LLMModel:           getEnv("LLM_MODEL", ""),
		OpenAIAPIKey:       getEnv("OPENAI_API_KEY", ""),
		AnthropicAPIKey:    getEnv("ANTHROPIC_API_KEY", ""),
		PriceInputPerMTok:  getEnvFloat("LLM_PRICE_INPUT_PER_MTOK", 0.30),
		PriceOutputPerMTok: getEnvFloat("LLM_PRICE_OUTPUT_PER_MTOK", 2.50),
		GitHubAPIURL:       getEnv("GITHUB_API_URL", "https://api.github.com"),
		GitHubToken:        getEnv("GITHUB_TOKEN", ""),
		GitHubRPS:          getEnvFloat("GITHUB_REQUESTS_PER_SECOND", 5),
		ScanBatchSize:      getEnvInt("SCAN_BATCH_SIZE", 10),
		ScanMaxIssues:      getEnvInt("SCAN_MAX_ISSUES", 3),
		HeuristicsFile:     getEnv("SCAN_HEURISTICS_FILE", ""),
	}
}

func getEnv(key, def string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return def
}

func getEnvInt(key string, def int) int {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return def
	}
	val, err := strconv.Atoi(raw)
	if err != nil || val <= 0 {
		log.Printf("config %s invalid int %q, using %d", key, raw, def)
		return def
	}
	return val
}

func getEnvFloat(key string, def float64) float64 {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return def
	}
	val, err := strconv.ParseFloat(raw, 64)
	if err != nil || val < 0 {
		log.Printf("config %s invalid number %q, using %g", key, raw, def)
		return def
	}
	return val
}

func splitAndTrim(raw string) []string {
	parts := strings.Split(raw, ",")
	var out []string
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}

func normalizeEnv(raw string) string {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "production", "prod":
		return "production"
	case "staging":
		return "staging"
	case "local":
		return "local"
	case "development", "dev":
		return "dev"
	default:
		return "dev"
	}
}

func normalizeProvider(raw string) string {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "anthropic", "claude":
		return "anthropic"
	case "none", "off", "disabled":
		return "none"
	default:
		return "openai"
	}
}
