package config

import (
	"os"
	"strconv"

	"github.com/joho/godotenv"
)

type Config struct {
	// Server
	ServerPort string
	Debug      bool

	// Scenario
	ScenarioFile string
	DataDir      string
	Seed         uint64

	// Persistence. DatabaseURL takes precedence over SQLitePath.
	SQLitePath  string
	DatabaseURL string

	// Messaging
	NATSURL     string
	NATSSubject string

	// Replay
	ReplaySpeed float64
}

func Load() (*Config, error) {
	// .env is optional
	_ = godotenv.Load()

	cfg := &Config{
		ServerPort:   getEnv("PORT", "8080"),
		Debug:        getEnvBool("DEBUG", false),
		ScenarioFile: getEnv("SCENARIO_FILE", "scenario.yaml"),
		DataDir:      getEnv("DATA_DIR", "data"),
		Seed:         getEnvUint("SEED", 0),
		SQLitePath:   getEnv("SQLITE_PATH", ""),
		DatabaseURL:  getEnv("DATABASE_URL", ""),
		NATSURL:      getEnv("NATS_URL", ""),
		NATSSubject:  getEnv("NATS_SUBJECT", "vpp"),
		ReplaySpeed:  getEnvFloat("REPLAY_SPEED", 3600),
	}

	return cfg, nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		b, err := strconv.ParseBool(value)
		if err == nil {
			return b
		}
	}
	return defaultValue
}

func getEnvUint(key string, defaultValue uint64) uint64 {
	if value := os.Getenv(key); value != "" {
		n, err := strconv.ParseUint(value, 10, 64)
		if err == nil {
			return n
		}
	}
	return defaultValue
}

func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		f, err := strconv.ParseFloat(value, 64)
		if err == nil {
			return f
		}
	}
	return defaultValue
}
