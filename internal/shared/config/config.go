package config

import (
	"log"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds application configuration.
type Config struct {
	Port                string
	CORSAllowOrigin     []string
	ObjectStoreType     string
	LocalStoreDir       string
	AWSRegion           string
	S3Bucket            string
	S3Prefix            string
	SSEKMSKeyID         string
	LLMProvider         string
	LLMChatModel        string
	LLMVisionModel      string
	OllamaURL           string
	OpenAIAPIKey        string
	OpenAITimeout       time.Duration
	BingAPIKey          string
	SearchRateLimit     float64
	VerifyMinConfidence int
	AIVerifiedTypes     []string
	DatabaseURL         string
	Env                 string
	Policy              Policy
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

	policy := DefaultPolicy()
	if path := strings.TrimSpace(os.Getenv("POLICY_FILE")); path != "" {
		loaded, err := LoadPolicyFile(path)
		if err != nil {
			log.Printf("policy file %s ignored: %v", path, err)
		} else {
			policy = loaded
		}
	}

	return Config{
		Port:                getEnv("PORT", "8080"),
		CORSAllowOrigin:     splitAndTrim(getEnv("CORS_ALLOW_ORIGINS", "http://localhost:5173")),
		ObjectStoreType:     normalizeStoreType(getEnv("OBJECT_STORE", "local")),
		LocalStoreDir:       getEnv("LOCAL_STORE_DIR", "./uploads"),
		AWSRegion:           getEnv("AWS_REGION", ""),
		S3Bucket:            getEnv("S3_BUCKET", ""),
		S3Prefix:            getEnv("S3_PREFIX", ""),
		SSEKMSKeyID:         getEnv("SSE_KMS_KEY_ID", ""),
		LLMProvider:         normalizeProvider(getEnv("LLM_PROVIDER", "openai")),
		LLMChatModel:        getEnv("LLM_CHAT_MODEL", "gpt-4-turbo-preview"),
		LLMVisionModel:      getEnv("LLM_VISION_MODEL", "gpt-4o"),
		OllamaURL:           getEnv("OLLAMA_URL", "http://localhost:11434"),
		OpenAIAPIKey:        os.Getenv("OPENAI_API_KEY"),
		OpenAITimeout:       time.Duration(getEnvInt("OPENAI_TIMEOUT_SECONDS", 60)) * time.Second,
		BingAPIKey:          os.Getenv("BING_API_KEY"),
		SearchRateLimit:     getEnvFloat("SEARCH_RATE_LIMIT", 3),
		VerifyMinConfidence: getEnvInt("VERIFY_MIN_CONFIDENCE", 0),
		AIVerifiedTypes:     splitAndTrim(getEnv("AI_VERIFIED_TYPES", "identity")),
		DatabaseURL:         dbURL,
		Env:                 env,
		Policy:              policy,
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
	if err != nil {
		log.Printf("config %s invalid int: %v", key, err)
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
	if err != nil {
		log.Printf("config %s invalid float: %v", key, err)
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

func normalizeStoreType(raw string) string {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "s3":
		return "s3"
	default:
		return "local"
	}
}

func normalizeProvider(raw string) string {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "ollama":
		return "ollama"
	case "none", "placeholder":
		return "none"
	default:
		return "openai"
	}
}
