// Package config reads the client's settings from the environment, optionally
// seeded from a .env file.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	log "github.com/sirupsen/logrus"
)

const (
	envProjectID       = "FIREBASE_PROJECT_ID"
	envDatabaseURL     = "FIREBASE_DATABASE_URL"
	envStorageBucket   = "FIREBASE_STORAGE_BUCKET"
	envAPIKey          = "FIREBASE_API_KEY"
	envCredentialsFile = "GOOGLE_APPLICATION_CREDENTIALS"
	envExpoPush        = "EXPO_PUSH_ENABLED"
	envLogLevel        = "LOG_LEVEL"
	envMetricsAddr     = "METRICS_ADDR"

	DefaultLogLevel = "info"
)

type Firebase struct {
	ProjectID       string
	DatabaseURL     string
	StorageBucket   string
	APIKey          string
	CredentialsFile string
}

type Config struct {
	Firebase    Firebase
	ExpoPush    bool
	LogLevel    string
	MetricsAddr string
}

// Load reads the environment after loading envFile into it. Variables that
// are already set win over the file. A missing envFile is not an error.
func Load(envFile string) (*Config, error) {
	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil && !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("loading %s: %w", envFile, err)
		}
	}

	cfg := &Config{
		Firebase: Firebase{
			ProjectID:       os.Getenv(envProjectID),
			DatabaseURL:     os.Getenv(envDatabaseURL),
			StorageBucket:   os.Getenv(envStorageBucket),
			APIKey:          os.Getenv(envAPIKey),
			CredentialsFile: os.Getenv(envCredentialsFile),
		},
		LogLevel:    os.Getenv(envLogLevel),
		MetricsAddr: os.Getenv(envMetricsAddr),
	}

	if raw := os.Getenv(envExpoPush); raw != "" {
		enabled, err := strconv.ParseBool(raw)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", envExpoPush, err)
		}
		cfg.ExpoPush = enabled
	}

	cfg.applyDefaults()
	return cfg, nil
}

func (c *Config) applyDefaults() {
	if c.LogLevel == "" {
		c.LogLevel = DefaultLogLevel
	}

	project := c.Firebase.ProjectID
	if project == "" {
		return
	}
	if c.Firebase.DatabaseURL == "" {
		c.Firebase.DatabaseURL = "https://" + project + ".firebaseio.com"
	}
	if c.Firebase.StorageBucket == "" {
		c.Firebase.StorageBucket = project + ".appspot.com"
	}
}

// Validate reports every Firebase setting the backend cannot start without.
func (c *Config) Validate() error {
	var missing []string
	if c.Firebase.ProjectID == "" {
		missing = append(missing, envProjectID)
	}
	if c.Firebase.APIKey == "" {
		missing = append(missing, envAPIKey)
	}
	if len(missing) > 0 {
		return fmt.Errorf("missing configuration: %s", strings.Join(missing, ", "))
	}

	if _, err := log.ParseLevel(c.LogLevel); err != nil {
		return err
	}
	return nil
}
