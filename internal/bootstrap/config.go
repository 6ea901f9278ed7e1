package bootstrap

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	ServerAddr string
	LogLevel   string

	AgentID           string
	APIKey            string
	BaseURL           string
	SignedURLEndpoint string
	ConnectTimeout    time.Duration
	BackoffInitial    time.Duration
	BackoffMax        time.Duration

	DeviceClass       string
	Platform          string
	AudioBackend      string
	CaptureSampleRate int
	ResumeDelay       time.Duration
	AutoOpen          bool

	DatabaseDSN string

	RedisAddr     string
	RedisPassword string
	RedisDB       int

	RateLimitRPS   float64
	RateLimitBurst int
}

// LoadConfig reads the environment, after merging a .env file from the
// working directory when one exists. Variables already set win.
func LoadConfig() *Config {
	_ = godotenv.Load()

	return &Config{
		ServerAddr: getEnv("SERVER_ADDR", "127.0.0.1:8090"),
		LogLevel:   strings.ToLower(getEnv("LOG_LEVEL", "info")),

		AgentID:           getEnv("AGENT_ID", ""),
		APIKey:            getEnv("XI_API_KEY", ""),
		BaseURL:           getEnv("CONVAI_BASE_URL", ""),
		SignedURLEndpoint: getEnv("SIGNED_URL_ENDPOINT", ""),
		ConnectTimeout:    getEnvDuration("CONNECT_TIMEOUT", 20*time.Second),
		BackoffInitial:    getEnvDuration("BACKOFF_INITIAL", time.Second),
		BackoffMax:        getEnvDuration("BACKOFF_MAX", 30*time.Second),

		DeviceClass:       getEnv("DEVICE_CLASS", ""),
		Platform:          getEnv("PLATFORM", "desktop"),
		AudioBackend:      strings.ToLower(getEnv("AUDIO_BACKEND", "portaudio")),
		CaptureSampleRate: getEnvInt("CAPTURE_SAMPLE_RATE", 48000),
		ResumeDelay:       getEnvDuration("RESUME_DELAY", 400*time.Millisecond),
		AutoOpen:          getEnvBool("AUTO_OPEN", false),

		DatabaseDSN: getEnv("DATABASE_DSN", ""),

		RedisAddr:     getEnv("REDIS_ADDR", ""),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		RedisDB:       getEnvInt("REDIS_DB", 0),

		RateLimitRPS:   getEnvFloat("RATE_LIMIT_RPS", 5),
		RateLimitBurst: getEnvInt("RATE_LIMIT_BURST", 10),
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.Atoi(value); err == nil {
			return i
		}
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

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}

// getEnvDuration accepts Go duration strings ("750ms") or a bare integer
// number of milliseconds.
func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	if d, err := time.ParseDuration(value); err == nil {
		return d
	}
	if ms, err := strconv.Atoi(value); err == nil {
		return time.Duration(ms) * time.Millisecond
	}
	return defaultValue
}
