package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/zap"
	"gorm.io/gorm/logger"
)

// DBConfig holds database configuration
type DBConfig struct {
	Host            string
	Port            string
	User            string
	Password        string
	DBName          string
	SSLMode         string
	MaxIdleConns    int
	MaxOpenConns    int
	ConnMaxLifetime time.Duration
	LogLevel        logger.LogLevel
}

// GetDSN returns the PostgreSQL connection string
func (c *DBConfig) GetDSN() string {
	return fmt.Sprintf("host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.DBName, c.SSLMode)
}

// ServerConfig holds server configuration
type ServerConfig struct {
	Port string
	Env  string
}

// JWTConfig holds token signing and validation configuration.
// Exactly one signing mode is active per process: symmetric (SecretKey) or
// RSA certificate (RsaPrivateKeyPath + RsaCertificatePassword).
type JWTConfig struct {
	UseRsaCertificate      bool
	RsaPrivateKeyPath      string
	RsaCertificatePassword string
	SecretKey              string
	Issuer                 string
	Audience               string
	AccessTokenExpiration  time.Duration
	RefreshTokenExpiration time.Duration
}

// TenantConfig holds the names of the request signals used to resolve the
// tenant for a request.
type TenantConfig struct {
	HeaderName string
	RouteParam string
	QueryParam string
}

// AuthConfig holds the credential lockout policy
type AuthConfig struct {
	MaxFailedAttempts int
	LockoutDuration   time.Duration
}

// LogConfig holds logging configuration
type LogConfig struct {
	Level string
}

// MetricsConfig holds metrics configuration
type MetricsConfig struct {
	Prefix string
}

// Config holds all configuration
type Config struct {
	DB      DBConfig
	Server  ServerConfig
	JWT     JWTConfig
	Tenant  TenantConfig
	Auth    AuthConfig
	Log     LogConfig
	Metrics MetricsConfig
}

// Load loads configuration from environment variables
func Load() (*Config, error) {
	// Load .env file if it exists
	if err := godotenv.Load(); err != nil {
		// Not returning error as .env file is optional
		fmt.Printf("Warning: .env file not found, using environment variables\n")
	}

	// Initialize config struct with values from environment
	config := &Config{
		DB: DBConfig{
			Host:            getEnv("DB_HOST", "localhost"),
			Port:            getEnv("DB_PORT", "5432"),
			User:            getEnv("DB_USER", "postgres"),
			Password:        getEnv("DB_PASSWORD", "password"),
			DBName:          getEnv("DB_NAME", "authgate"),
			SSLMode:         getEnv("DB_SSL_MODE", "disable"),
			MaxIdleConns:    getEnvAsInt("DB_MAX_IDLE_CONNS", 10),
			MaxOpenConns:    getEnvAsInt("DB_MAX_OPEN_CONNS", 100),
			ConnMaxLifetime: getEnvAsDuration("DB_CONN_MAX_LIFETIME", 1*time.Hour),
			LogLevel:        getEnvAsLogLevel("DB_LOG_LEVEL", logger.Info),
		},
		Server: ServerConfig{
			Port: getEnv("SERVER_PORT", "8080"),
			Env:  getEnv("APP_ENV", "development"),
		},
		JWT: JWTConfig{
			UseRsaCertificate:      getEnvAsBool("JWT_USE_RSA_CERTIFICATE", false),
			RsaPrivateKeyPath:      getEnv("JWT_RSA_PRIVATE_KEY_PATH", ""),
			RsaCertificatePassword: getEnv("JWT_RSA_CERTIFICATE_PASSWORD", ""),
			SecretKey:              getEnv("JWT_SECRET_KEY", ""),
			Issuer:                 getEnv("JWT_ISSUER", "authgate"),
			Audience:               getEnv("JWT_AUDIENCE", "authgate"),
			AccessTokenExpiration:  time.Duration(getEnvAsInt("JWT_ACCESS_TOKEN_EXPIRATION_MINUTES", 60)) * time.Minute,
			RefreshTokenExpiration: time.Duration(getEnvAsInt("JWT_REFRESH_TOKEN_EXPIRATION_DAYS", 7)) * 24 * time.Hour,
		},
		Tenant: TenantConfig{
			HeaderName: getEnv("TENANT_HEADER", "X-Tenant-Id"),
			RouteParam: getEnv("TENANT_ROUTE_PARAM", "tenant"),
			QueryParam: getEnv("TENANT_QUERY_PARAM", "tenant"),
		},
		Auth: AuthConfig{
			MaxFailedAttempts: getEnvAsInt("AUTH_MAX_FAILED_ATTEMPTS", 5),
			LockoutDuration:   getEnvAsDuration("AUTH_LOCKOUT_DURATION", 15*time.Minute),
		},
		Log: LogConfig{
			Level: getEnv("LOG_LEVEL", "info"),
		},
		Metrics: MetricsConfig{
			Prefix: getEnv("METRICS_PREFIX", "authgate"),
		},
	}

	return config, nil
}

// LogConfig returns the configuration as a zap logger-friendly format
func (c *Config) LogConfig() []zap.Field {
	return []zap.Field{
		zap.String("environment", c.Server.Env),
		zap.String("db_host", c.DB.Host),
		zap.String("db_port", c.DB.Port),
		zap.String("db_user", c.DB.User),
		zap.String("db_name", c.DB.DBName),
		zap.String("server_port", c.Server.Port),
		zap.Bool("jwt_rsa_mode", c.JWT.UseRsaCertificate),
	}
}

// Helper function to get environment variables with defaults
func getEnv(key, defaultValue string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return defaultValue
}

// Helper function to get environment variables as integers
func getEnvAsInt(key string, defaultValue int) int {
	valueStr := getEnv(key, "")
	if value, err := strconv.Atoi(valueStr); err == nil {
		return value
	}
	return defaultValue
}

// Helper function to get environment variables as booleans
func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := getEnv(key, "")
	if value, err := strconv.ParseBool(valueStr); err == nil {
		return value
	}
	return defaultValue
}

// Helper function to get environment variables as durations
func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	valueStr := getEnv(key, "")
	if value, err := time.ParseDuration(valueStr); err == nil {
		return value
	}
	return defaultValue
}

// Helper function to get environment variables as log levels
func getEnvAsLogLevel(key string, defaultValue logger.LogLevel) logger.LogLevel {
	valueStr := getEnv(key, "")
	switch valueStr {
	case "silent":
		return logger.Silent
	case "error":
		return logger.Error
	case "warn":
		return logger.Warn
	case "info":
		return logger.Info
	default:
		return defaultValue
	}
}
