package config

import (
	"fmt"
	"log"
	"net/url"
	"os"
	"strconv"

	"github.com/joho/godotenv"
)

type Config struct {
	HTTPPort    string
	WebhookURL  string
	CORSOrigins string
	Environment string
	LogLevel    string

	DBHost     string
	DBPort     string
	DBUser     string
	DBPassword string
	DBName     string
	DBSSLMode  string
	DBTimezone string

	PoolMinConns int
	PoolMaxConns int
}

func (c *Config) DSN() string {
	return fmt.Sprintf("host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		c.DBHost, c.DBPort, c.DBUser, c.DBPassword, c.DBName, c.DBSSLMode)
}

// DSNForLog hides the password so the DSN can be logged at startup.
func (c *Config) DSNForLog() string {
	return fmt.Sprintf("host=%s port=%s user=%s password=*** dbname=%s sslmode=%s",
		c.DBHost, c.DBPort, c.DBUser, c.DBName, c.DBSSLMode)
}

func (c *Config) IsDev() bool {
	return c.Environment == "development"
}

func LoadConfig() *Config {
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using system environment variables")
	}

	cfg := &Config{
		HTTPPort:     getEnv("HTTP_PORT", "8080"),
		WebhookURL:   getEnv("N8N_WEBHOOK_URL", "https://drteneguznay.app.n8n.cloud/webhook/visual-fatigue-diagnosis"),
		CORSOrigins:  getEnv("CORS_ORIGINS", "*"),
		Environment:  getEnv("ENVIRONMENT", "production"),
		LogLevel:     getEnv("LOG_LEVEL", "info"),
		DBHost:       getEnv("DB_HOST", "localhost"),
		DBPort:       getEnv("DB_PORT", "5432"),
		DBUser:       getEnv("DB_USER", "postgres"),
		DBPassword:   getEnv("DB_PASSWORD", ""),
		DBName:       getEnv("DB_NAME", "securityeye"),
		DBSSLMode:    getEnv("DB_SSLMODE", "disable"),
		DBTimezone:   getEnv("DB_TIMEZONE", "America/Guayaquil"),
		PoolMinConns: getEnvInt("DB_POOL_MIN", 1),
		PoolMaxConns: getEnvInt("DB_POOL_MAX", 20),
	}

	// DATABASE_URL (Render style) overrides the discrete DB_* variables.
	if raw := os.Getenv("DATABASE_URL"); raw != "" {
		if err := cfg.applyDatabaseURL(raw); err != nil {
			log.Printf("WARNING: ignoring malformed DATABASE_URL: %v", err)
		}
	}

	if cfg.DBPassword == "" {
		fmt.Println("WARNING: DB_PASSWORD is not set!")
	}

	return cfg
}

func (c *Config) applyDatabaseURL(raw string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return err
	}
	if u.Hostname() != "" {
		c.DBHost = u.Hostname()
	}
	if u.Port() != "" {
		c.DBPort = u.Port()
	}
	if u.User != nil {
		c.DBUser = u.User.Username()
		if pw, ok := u.User.Password(); ok {
			c.DBPassword = pw
		}
	}
	if len(u.Path) > 1 {
		c.DBName = u.Path[1:]
	}
	if mode := u.Query().Get("sslmode"); mode != "" {
		c.DBSSLMode = mode
	}
	return nil
}

func getEnv(key string, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

func getEnvInt(key string, defaultVal int) int {
	if v := os.Getenv(key); v != "" {
		if intVal, err := strconv.Atoi(v); err == nil {
			return intVal
		}
	}
	return defaultVal
}
