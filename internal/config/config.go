// Package config provides configuration management functionality.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/joho/godotenv"
)

// Config holds application configuration
type Config struct {
	DataDir    string // Base directory for runs, sweeps and the runtime database
	PolicyPath string // Path to policy.yaml (tool allow/deny lists, rate limits)
	RunsDir    string // Where run artifacts are written (DataDir/runs)
	SweepDir   string // Where per-combination sweep records live (DataDir/sweeps)
	LogLevel   string
	Port       int
	DevMode    bool

	// Per-run execution deadline in seconds; a stuck tool call cannot pin a
	// run in RUNNING past this bound.
	RunTimeoutSeconds int

	Backup *BackupConfig
}

// BackupConfig holds artifact backup configuration. Backups are disabled
// unless a bucket is configured.
type BackupConfig struct {
	Enabled         bool
	Bucket          string
	Endpoint        string // S3-compatible endpoint URL (empty = AWS default)
	AccessKeyID     string
	SecretAccessKey string
	RetentionDays   int
}

// Load reads configuration from environment variables
func Load() (*Config, error) {
	// Load .env file if it exists
	_ = godotenv.Load()

	dataDir := getEnv("AEGIS_DATA_DIR", "")
	if dataDir == "" {
		dataDir = "./data"
	}

	absDataDir, err := filepath.Abs(dataDir)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve data directory path: %w", err)
	}

	if err := os.MkdirAll(absDataDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	policyPath := getEnv("AEGIS_POLICY_PATH", "")
	if policyPath == "" {
		policyPath = filepath.Join(absDataDir, "policy.yaml")
	}

	cfg := &Config{
		DataDir:           absDataDir,
		PolicyPath:        policyPath,
		RunsDir:           filepath.Join(absDataDir, "runs"),
		SweepDir:          filepath.Join(absDataDir, "sweeps"),
		Port:              getEnvAsInt("AEGIS_PORT", 8001),
		DevMode:           getEnvAsBool("DEV_MODE", false),
		LogLevel:          getEnv("LOG_LEVEL", "info"),
		RunTimeoutSeconds: getEnvAsInt("AEGIS_RUN_TIMEOUT_SECONDS", 300),
		Backup:            loadBackupConfig(),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks if required configuration is present
func (c *Config) Validate() error {
	if c.RunTimeoutSeconds <= 0 {
		return fmt.Errorf("run timeout must be positive, got %d", c.RunTimeoutSeconds)
	}
	return nil
}

// Helper functions
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolVal, err := strconv.ParseBool(value); err == nil {
			return boolVal
		}
	}
	return defaultValue
}

// loadBackupConfig loads artifact backup configuration from environment variables.
// Backups stay disabled when no bucket is configured.
func loadBackupConfig() *BackupConfig {
	bucket := getEnv("AEGIS_BACKUP_BUCKET", "")

	return &BackupConfig{
		Enabled:         bucket != "",
		Bucket:          bucket,
		Endpoint:        getEnv("AEGIS_BACKUP_ENDPOINT", ""),
		AccessKeyID:     getEnv("AEGIS_BACKUP_ACCESS_KEY_ID", ""),
		SecretAccessKey: getEnv("AEGIS_BACKUP_SECRET_ACCESS_KEY", ""),
		RetentionDays:   getEnvAsInt("AEGIS_BACKUP_RETENTION_DAYS", 14),
	}
}
