package config

import (
	"os"
	"strconv"
	"time"
)

type Config struct {
	DB      DBConfig
	JWT     JWTConfig
	Server  ServerConfig
	Upload  UploadConfig
	Cleanup CleanupConfig
}

type DBConfig struct {
	Host     string
	Port     string
	User     string
	Password string
	Name     string
	SSLMode  string
}

type JWTConfig struct {
	Secret          string
	ExpirationHours int
}

type ServerConfig struct {
	Port string
}

type UploadConfig struct {
	// Dir is the upload root; the on-disk layout below it is
	// {Dir}/communities/{communityId}/[{entityType}/{entityId}/][{category}/]{storedName}.
	Dir                string
	MaxFileSizeBytes   int64
	MaxFilesPerRequest int
}

type CleanupConfig struct {
	Enabled  bool
	Interval time.Duration
}

func Load() *Config {
	return &Config{
		DB: DBConfig{
			Host:     getEnv("DB_HOST", "localhost"),
			Port:     getEnv("DB_PORT", "5432"),
			User:     getEnv("DB_USER", "condoadmin"),
			Password: getEnv("DB_PASSWORD", "condoadmin_secret"),
			Name:     getEnv("DB_NAME", "condoadmin"),
			SSLMode:  getEnv("DB_SSLMODE", "disable"),
		},
		JWT: JWTConfig{
			Secret:          getEnv("JWT_SECRET", "change-me-in-production"),
			ExpirationHours: getEnvAsInt("JWT_EXPIRATION_HOURS", 24),
		},
		Server: ServerConfig{
			Port: getEnv("SERVER_PORT", "8080"),
		},
		Upload: UploadConfig{
			Dir:                getEnv("UPLOAD_DIR", "uploads"),
			MaxFileSizeBytes:   int64(getEnvAsInt("UPLOAD_MAX_FILE_SIZE_MIB", 10)) * 1024 * 1024,
			MaxFilesPerRequest: getEnvAsInt("UPLOAD_MAX_FILES", 10),
		},
		Cleanup: CleanupConfig{
			Enabled:  getEnvAsBool("CLEANUP_ENABLED", false),
			Interval: getEnvAsDuration("CLEANUP_INTERVAL", 24*time.Hour),
		},
	}
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}

func getEnvAsInt(key string, fallback int) int {
	if value, ok := os.LookupEnv(key); ok {
		parsed, err := strconv.Atoi(value)
		if err == nil {
			return parsed
		}
	}
	return fallback
}

func getEnvAsDuration(key string, fallback time.Duration) time.Duration {
	if value, ok := os.LookupEnv(key); ok {
		parsed, err := time.ParseDuration(value)
		if err == nil {
			return parsed
		}
	}
	return fallback
}

func getEnvAsBool(key string, fallback bool) bool {
	if value, ok := os.LookupEnv(key); ok {
		parsed, err := strconv.ParseBool(value)
		if err == nil {
			return parsed
		}
	}
	return fallback
}
