package config

import (
	"os"
	"strconv"

	"permscreen/internal/errors"
)

// Config represents the complete application configuration
type Config struct {
	Server   ServerConfig
	Database DatabaseConfig
	Screen   ScreenConfig
	Paths    PathConfig
}

// ServerConfig holds HTTP server settings
type ServerConfig struct {
	Port string
}

// DatabaseConfig holds database connection settings. URL may be empty, in
// which case screens are not persisted.
type DatabaseConfig struct {
	URL string
}

// ScreenConfig holds screening defaults
type ScreenConfig struct {
	NumPermutations int
	Alpha           float64
	Seed            int64
	MaxWorkers      int
}

// PathConfig holds file system paths
type PathConfig struct {
	DataFile string
}

// Load reads configuration from environment variables and validates it
func Load() (*Config, error) {
	config := &Config{
		Server: ServerConfig{
			Port: getEnv("PORT", "8080"),
		},
		Database: DatabaseConfig{
			URL: os.Getenv("DATABASE_URL"),
		},
		Paths: PathConfig{
			DataFile: os.Getenv("DATA_FILE"),
		},
	}

	screen, err := loadScreenConfig()
	if err != nil {
		return nil, errors.Wrap(err, "failed to load screen configuration")
	}
	config.Screen = *screen

	return config, nil
}

func loadScreenConfig() (*ScreenConfig, error) {
	numPermutations, err := getEnvInt("SCREEN_PERMUTATIONS", 10000)
	if err != nil {
		return nil, err
	}
	if numPermutations < 1 {
		return nil, errors.ConfigInvalid("SCREEN_PERMUTATIONS must be positive")
	}

	alpha, err := getEnvFloat("SCREEN_ALPHA", 0.05)
	if err != nil {
		return nil, err
	}
	if alpha <= 0 || alpha > 1 {
		return nil, errors.ConfigInvalid("SCREEN_ALPHA must be in (0, 1]")
	}

	seed, err := getEnvInt64("SCREEN_SEED", 294)
	if err != nil {
		return nil, err
	}

	maxWorkers, err := getEnvInt("SCREEN_MAX_WORKERS", 4)
	if err != nil {
		return nil, err
	}
	if maxWorkers < 1 {
		return nil, errors.ConfigInvalid("SCREEN_MAX_WORKERS must be positive")
	}

	return &ScreenConfig{
		NumPermutations: numPermutations,
		Alpha:           alpha,
		Seed:            seed,
		MaxWorkers:      maxWorkers,
	}, nil
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	parsed, err := strconv.Atoi(v)
	if err != nil {
		return 0, errors.ConfigInvalid(key + " must be an integer")
	}
	return parsed, nil
}

func getEnvInt64(key string, fallback int64) (int64, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	parsed, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return 0, errors.ConfigInvalid(key + " must be an integer")
	}
	return parsed, nil
}

func getEnvFloat(key string, fallback float64) (float64, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	parsed, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return 0, errors.ConfigInvalid(key + " must be a number")
	}
	return parsed, nil
}
