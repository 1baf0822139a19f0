// Package config provides configuration for the relay.
package config

import (
	"errors"
	"fmt"
	"net"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-sql-driver/mysql"
	"github.com/joho/godotenv"
)

// ErrMissingEnv is returned when required environment variables are unset.
var ErrMissingEnv = errors.New("missing required environment variables")

// Supported datastore drivers.
const (
	DriverMySQL    = "mysql"
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite3"
)

// Config holds the relay configuration.
type Config struct {
	// Server settings
	AppPort int

	// WhatsApp identity
	ClientID   string
	SessionDir string // Directory holding the <ClientID>.json session marker
	StoreDSN   string // whatsmeow device store (sqlite)

	// Datastore settings
	DB DBConfig

	// WebSocket settings
	PingInterval   time.Duration
	WriteTimeout   time.Duration
	ReadTimeout    time.Duration
	MaxMessageSize int64

	// Timeouts
	RequestTimeout time.Duration
	AckTimeout     time.Duration

	// Outbound send rate limit, per client IP. Zero RPS disables it.
	SendRateLimitRPS   float64
	SendRateLimitBurst int

	// Logging
	LogLevel string
}

// DBConfig holds the broadcast datastore connection settings.
type DBConfig struct {
	Driver   string
	Host     string
	Port     int
	Username string
	Password string
	Database string
}

// Load loads configuration from a .env file (if present) and the environment.
func Load() (*Config, error) {
	if err := loadDotEnv(".env"); err != nil {
		return nil, fmt.Errorf("failed to load .env: %w", err)
	}
	return FromEnv()
}

// FromEnv builds the configuration from environment variables only.
func FromEnv() (*Config, error) {
	var missing []string
	required := func(key string) string {
		val := strings.TrimSpace(os.Getenv(key))
		if val == "" {
			missing = append(missing, key)
		}
		return val
	}

	appPort := required("APP_PORT")
	clientID := required("CLIENT_ID")
	dbHost := required("DB_HOST")
	dbPort := required("DB_PORT")
	dbUser := required("DB_USERNAME")
	dbName := required("DB_DATABASE")

	driver := getEnv("DB_DRIVER", DriverMySQL)
	if driver == DriverSQLite {
		// A sqlite datastore is a file; host, port and user are unused.
		missing = without(missing, "DB_HOST", "DB_PORT", "DB_USERNAME")
	}
	if len(missing) > 0 {
		return nil, fmt.Errorf("%w: %s", ErrMissingEnv, strings.Join(missing, ", "))
	}

	cfg := &Config{
		ClientID:   clientID,
		SessionDir: getEnv("SESSION_DIR", "."),
		StoreDSN:   getEnv("WA_STORE_DSN", "file:"+clientID+".session.db?_foreign_keys=on"),
		DB: DBConfig{
			Driver:   driver,
			Host:     dbHost,
			Username: dbUser,
			Password: os.Getenv("DB_PASSWORD"),
			Database: dbName,
		},
		PingInterval:       time.Duration(getEnvInt("WS_PING_INTERVAL_MS", 30000)) * time.Millisecond,
		WriteTimeout:       time.Duration(getEnvInt("WS_WRITE_TIMEOUT_MS", 10000)) * time.Millisecond,
		ReadTimeout:        time.Duration(getEnvInt("WS_READ_TIMEOUT_MS", 60000)) * time.Millisecond,
		MaxMessageSize:     int64(getEnvInt("WS_MAX_MESSAGE_SIZE", 4096)),
		RequestTimeout:     time.Duration(getEnvInt("REQUEST_TIMEOUT_MS", 30000)) * time.Millisecond,
		AckTimeout:         time.Duration(getEnvInt("ACK_TIMEOUT_MS", 10000)) * time.Millisecond,
		SendRateLimitRPS:   getEnvFloat("SEND_RATE_LIMIT_RPS", 5),
		SendRateLimitBurst: getEnvInt("SEND_RATE_LIMIT_BURST", 10),
		LogLevel:           strings.ToUpper(getEnv("LOG_LEVEL", "INFO")),
	}

	var err error
	if cfg.AppPort, err = strconv.Atoi(appPort); err != nil {
		return nil, fmt.Errorf("invalid APP_PORT %q: %w", appPort, err)
	}
	if dbPort != "" {
		if cfg.DB.Port, err = strconv.Atoi(dbPort); err != nil {
			return nil, fmt.Errorf("invalid DB_PORT %q: %w", dbPort, err)
		}
	}

	switch driver {
	case DriverMySQL, DriverPostgres, DriverSQLite:
	default:
		return nil, fmt.Errorf("unsupported DB_DRIVER %q", driver)
	}

	return cfg, nil
}

// DSN returns the data source name for the configured driver.
func (c DBConfig) DSN() string {
	addr := net.JoinHostPort(c.Host, strconv.Itoa(c.Port))
	switch c.Driver {
	case DriverPostgres:
		u := url.URL{
			Scheme: "postgres",
			User:   url.UserPassword(c.Username, c.Password),
			Host:   addr,
			Path:   "/" + c.Database,
		}
		return u.String()
	case DriverSQLite:
		return c.Database
	default:
		mc := mysql.NewConfig()
		mc.User = c.Username
		mc.Passwd = c.Password
		mc.Net = "tcp"
		mc.Addr = addr
		mc.DBName = c.Database
		mc.ParseTime = true
		return mc.FormatDSN()
	}
}

// loadDotEnv loads environment variables from path. Missing files are ignored.
func loadDotEnv(path string) error {
	err := godotenv.Load(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	return err
}

func without(keys []string, drop ...string) []string {
	out := keys[:0]
	for _, k := range keys {
		skip := false
		for _, d := range drop {
			if k == d {
				skip = true
				break
			}
		}
		if !skip {
			out = append(out, k)
		}
	}
	return out
}

func getEnv(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

func getEnvInt(key string, defaultVal int) int {
	if val := os.Getenv(key); val != "" {
		if intVal, err := strconv.Atoi(val); err == nil {
			return intVal
		}
	}
	return defaultVal
}

func getEnvFloat(key string, defaultVal float64) float64 {
	if val := os.Getenv(key); val != "" {
		if f, err := strconv.ParseFloat(val, 64); err == nil {
			return f
		}
	}
	return defaultVal
}
