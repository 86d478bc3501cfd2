package config

import (
	"os"
	"strconv"
	"time"
)

type R2 struct {
	AccountID  string
	AccessKey  string
	SecretKey  string
	BucketName string
	PublicURL  string
}

type Providers struct {
	OpenAIKey     string
	StabilityKey  string
	ReplicateKey  string
	PreferredName string
	FallbackOrder []string
}

type Pipeline struct {
	SimilarityThreshold float64
	ProximityWindow     time.Duration
	MinGroupConfidence  float64
	ImageCallInterval   time.Duration
	SlotLookaheadDays   int
}

type Config struct {
	PostgresURI   string
	RedisURI      string
	FrontendURL   string
	R2            R2
	Providers     Providers
	Pipeline      Pipeline
	TextModel     string
	VisionModel   string
	SecretKey     string
	CookieName    string
	SweepSchedule string
}

func LoadConfig() *Config {
	return &Config{
		PostgresURI: getEnv("POSTGRES_URI", ""),
		RedisURI:    getEnv("REDIS_URI", ""),
		FrontendURL: getEnv("FRONTEND_URL", "http://localhost:5173"),
		R2: R2{
			AccountID:  getEnv("R2_ACCOUNT_ID", ""),
			AccessKey:  getEnv("R2_ACCESS_KEY", ""),
			SecretKey:  getEnv("R2_SECRET_KEY", ""),
			BucketName: getEnv("R2_BUCKET_NAME", ""),
			PublicURL:  getEnv("R2_PUBLIC_URL", ""),
		},
		Providers: Providers{
			OpenAIKey:     getEnv("OPENAI_API_KEY", ""),
			StabilityKey:  getEnv("STABILITY_API_KEY", ""),
			ReplicateKey:  getEnv("REPLICATE_API_TOKEN", ""),
			PreferredName: getEnv("IMAGE_PROVIDER", "openai"),
			FallbackOrder: []string{"openai", "stability", "replicate"},
		},
		Pipeline: Pipeline{
			SimilarityThreshold: getEnvFloat("GROUPING_SIMILARITY_THRESHOLD", 0.3),
			ProximityWindow:     getEnvDuration("GROUPING_PROXIMITY_WINDOW", 10*time.Minute),
			MinGroupConfidence:  getEnvFloat("GROUPING_MIN_CONFIDENCE", 0.4),
			ImageCallInterval:   getEnvDuration("IMAGE_CALL_INTERVAL", 2*time.Second),
			SlotLookaheadDays:   getEnvInt("SLOT_LOOKAHEAD_DAYS", 28),
		},
		TextModel:     getEnv("TEXT_MODEL", "gpt-4o-mini"),
		VisionModel:   getEnv("VISION_MODEL", "gpt-4o-mini"),
		SecretKey:     getEnv("SECRET_KEY", ""),
		CookieName:    getEnv("COOKIE_NAME", "autopilot_session"),
		SweepSchedule: getEnv("SWEEP_SCHEDULE", "@every 00h15m00s"),
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if n, err := strconv.Atoi(value); err == nil {
			return n
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}
