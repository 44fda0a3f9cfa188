package config

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	// HTTP Server
	Port string

	// Databases
	ExpenseDBPath  string
	SettingsDBPath string
	SecureDBPath   string
	SecureKeyPath  string

	// AMQP
	AMQPURL      string
	AMQPExchange string
	AMQPQueue    string

	// Reports
	ReportDir      string
	ReportDebounce time.Duration

	// Backend selection
	DataBackend string
}

func Load() *Config {
	cfg := &Config{
		Port: getEnv("PORT", "8081"),

		ExpenseDBPath:  getEnv("EXPENSE_DB_PATH", "./data/expenses.db"),
		SettingsDBPath: getEnv("SETTINGS_DB_PATH", "./data/settings.db"),
		SecureDBPath:   getEnv("SECURE_DB_PATH", "./data/secure.db"),
		SecureKeyPath:  getEnv("SECURE_KEY_PATH", "./data/secure.key"),

		AMQPURL:      getEnv("AMQP_URL", ""),
		AMQPExchange: getEnv("AMQP_EXCHANGE", "pocketledger"),
		AMQPQueue:    getEnv("AMQP_QUEUE", "expense_events"),

		ReportDir:      getEnv("REPORT_DIR", "./data/reports"),
		ReportDebounce: getEnvDuration("REPORT_DEBOUNCE", 5*time.Second),

		DataBackend: getEnv("DATA_BACKEND", "sqlite"),
	}

	return cfg
}

// Validate validates the configuration and returns an error if invalid
func (c *Config) Validate() error {
	var errors []string

	if port, err := strconv.Atoi(c.Port); err != nil {
		errors = append(errors, fmt.Sprintf("invalid port '%s': must be a number", c.Port))
	} else if port < 1 || port > 65535 {
		errors = append(errors, fmt.Sprintf("invalid port %d: must be between 1 and 65535", port))
	}

	validBackends := []string{"memory", "sqlite"}
	isValidBackend := false
	for _, backend := range validBackends {
		if c.DataBackend == backend {
			isValidBackend = true
			break
		}
	}
	if !isValidBackend {
		errors = append(errors, fmt.Sprintf("invalid data backend '%s': must be one of %v", c.DataBackend, validBackends))
	}

	if c.DataBackend == "sqlite" {
		if c.ExpenseDBPath == "" {
			errors = append(errors, "expense database path cannot be empty when using sqlite backend")
		} else if err := ensureParentDir(c.ExpenseDBPath); err != nil {
			errors = append(errors, fmt.Sprintf("cannot create expense database directory: %v", err))
		}
	}

	if c.SettingsDBPath == "" {
		errors = append(errors, "settings database path cannot be empty")
	} else if err := ensureParentDir(c.SettingsDBPath); err != nil {
		errors = append(errors, fmt.Sprintf("cannot create settings database directory: %v", err))
	}

	if c.SecureDBPath == "" {
		errors = append(errors, "secure database path cannot be empty")
	}
	if c.SecureKeyPath == "" {
		errors = append(errors, "secure key path cannot be empty")
	}

	if c.AMQPURL != "" {
		if parsedURL, err := url.Parse(c.AMQPURL); err != nil {
			errors = append(errors, fmt.Sprintf("invalid AMQP URL '%s': %v", c.AMQPURL, err))
		} else if parsedURL.Scheme != "amqp" && parsedURL.Scheme != "amqps" {
			errors = append(errors, fmt.Sprintf("invalid AMQP URL scheme '%s': must be 'amqp' or 'amqps'", parsedURL.Scheme))
		}

		if c.AMQPExchange == "" {
			errors = append(errors, "AMQP exchange name cannot be empty when AMQP URL is provided")
		}
		if c.AMQPQueue == "" {
			errors = append(errors, "AMQP queue name cannot be empty when AMQP URL is provided")
		}
	}

	if c.ReportDir == "" {
		errors = append(errors, "report directory cannot be empty")
	}
	if c.ReportDebounce < 100*time.Millisecond {
		errors = append(errors, fmt.Sprintf("invalid report debounce %v: must be at least 100ms", c.ReportDebounce))
	} else if c.ReportDebounce > time.Hour {
		errors = append(errors, fmt.Sprintf("invalid report debounce %v: must be at most 1 hour", c.ReportDebounce))
	}

	if len(errors) > 0 {
		return fmt.Errorf("configuration validation failed:\n- %s", strings.Join(errors, "\n- "))
	}

	return nil
}

func ensureParentDir(path string) error {
	dir := filepath.Dir(path)
	if dir == "." || dir == "" {
		return nil
	}
	if _, err := os.Stat(dir); os.IsNotExist(err) {
		return os.MkdirAll(dir, 0755)
	}
	return nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
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
