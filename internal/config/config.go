package config

import (
	"fmt"
	"log"
	"os"
	"time"

	"github.com/spf13/viper"
)

// Config holds all application settings.
type Config struct {
	Server        ServerConfig
	Database      DatabaseConfig
	Redis         RedisConfig
	JWT           JWTConfig
	Email         EmailConfig
	PasswordReset PasswordResetConfig
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Port         string `mapstructure:"port"`
	ReadTimeout  int    `mapstructure:"read_timeout"`
	WriteTimeout int    `mapstructure:"write_timeout"`
}

// DatabaseConfig holds PostgreSQL connection settings.
type DatabaseConfig struct {
	Host     string `mapstructure:"host"`
	Port     string `mapstructure:"port"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	DBName   string `mapstructure:"dbname"`
	SSLMode  string `mapstructure:"sslmode"`
}

// RedisConfig holds Redis connection settings for the rate limiter.
type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// JWTConfig holds token signing settings. The same secret signs access tokens
// and reset tokens; the purpose claim keeps them apart.
type JWTConfig struct {
	Secret           string `mapstructure:"secret"`
	AccessExpiryMin  int    `mapstructure:"access_expiry_min"`
	ResetTokenTTLMin int    `mapstructure:"reset_token_ttl_min"`
}

// EmailConfig holds outbound email settings.
type EmailConfig struct {
	Enabled      bool   `mapstructure:"enabled"`
	ResendAPIKey string `mapstructure:"resend_api_key"`
	From         string `mapstructure:"from"`
}

// PasswordResetConfig holds OTP flow settings.
type PasswordResetConfig struct {
	CodeTTLSec  int `mapstructure:"code_ttl_sec"`
	MaxAttempts int `mapstructure:"max_attempts"`
}

// PostgresConnectionString builds the PostgreSQL DSN.
func (d *DatabaseConfig) PostgresConnectionString() string {
	return fmt.Sprintf(
		"host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		d.Host, d.Port, d.User, d.Password, d.DBName, d.SSLMode,
	)
}

// CodeTTL returns the configured OTP lifetime, defaulting to five minutes.
func (p *PasswordResetConfig) CodeTTL() time.Duration {
	if p.CodeTTLSec <= 0 {
		return 5 * time.Minute
	}
	return time.Duration(p.CodeTTLSec) * time.Second
}

// Load reads the configuration file and environment overrides.
func Load(configPath string) (*Config, error) {
	vip := viper.New()

	// Explicit env bindings so deployments can run file-less.
	vip.BindEnv("server.port", "SERVER_PORT")

	vip.BindEnv("database.host", "DATABASE_HOST")
	vip.BindEnv("database.port", "DATABASE_PORT")
	vip.BindEnv("database.user", "DATABASE_USER")
	vip.BindEnv("database.password", "DATABASE_PASSWORD")
	vip.BindEnv("database.dbname", "DATABASE_DBNAME")
	vip.BindEnv("database.sslmode", "DATABASE_SSLMODE")

	vip.BindEnv("redis.addr", "REDIS_ADDR")
	vip.BindEnv("redis.password", "REDIS_PASSWORD")
	vip.BindEnv("redis.db", "REDIS_DB")

	vip.BindEnv("jwt.secret", "JWT_SECRET")
	vip.BindEnv("jwt.access_expiry_min", "JWT_ACCESS_EXPIRY_MIN")
	vip.BindEnv("jwt.reset_token_ttl_min", "JWT_RESET_TOKEN_TTL_MIN")

	vip.BindEnv("email.enabled", "EMAIL_ENABLED")
	vip.BindEnv("email.resend_api_key", "RESEND_API_KEY")
	vip.BindEnv("email.from", "EMAIL_FROM")

	vip.BindEnv("password_reset.code_ttl_sec", "PASSWORD_RESET_CODE_TTL_SEC")
	vip.BindEnv("password_reset.max_attempts", "PASSWORD_RESET_MAX_ATTEMPTS")

	if configPath != "" {
		vip.SetConfigFile(configPath)
		if err := vip.ReadInConfig(); err != nil {
			if _, ok := err.(viper.ConfigFileNotFoundError); ok {
				log.Printf("config file '%s' not found, relying on environment variables", configPath)
			} else {
				log.Printf("warning: could not read config file '%s': %v", configPath, err)
			}
		}
	}

	var cfg Config
	if err := vip.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if os.Getenv("GIN_MODE") != "release" {
		log.Printf("--- loaded configuration ---")
		log.Printf("Server Port: %s", cfg.Server.Port)
		log.Printf("Database Host: %s", cfg.Database.Host)
		log.Printf("Database Name: %s", cfg.Database.DBName)
		log.Printf("Redis Addr: %s", cfg.Redis.Addr)
		log.Printf("JWT Secret Set: %t", cfg.JWT.Secret != "")
		log.Printf("Email Enabled: %t", cfg.Email.Enabled)
		log.Printf("----------------------------")
	}

	if cfg.JWT.Secret == "" {
		return nil, fmt.Errorf("jwt secret is required (check JWT_SECRET env var)")
	}
	if cfg.Database.Host == "" || cfg.Database.DBName == "" || cfg.Database.User == "" {
		return nil, fmt.Errorf("database configuration (host, dbname, user) is incomplete (check DATABASE_HOST, DATABASE_DBNAME, DATABASE_USER env vars)")
	}
	if cfg.Email.Enabled && (cfg.Email.ResendAPIKey == "" || cfg.Email.From == "") {
		return nil, fmt.Errorf("email is enabled but RESEND_API_KEY or EMAIL_FROM is missing")
	}

	return &cfg, nil
}
