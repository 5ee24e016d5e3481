package config

import (
	"fmt"
	"log"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config holds all application configuration
type Config struct {
	Environment string

	Database DatabaseConfig
	Cache    CacheConfig
	Queue    QueueConfig
	Upload   UploadConfig
}

// DatabaseConfig holds PostgreSQL connection settings
type DatabaseConfig struct {
	Host            string
	Port            int
	User            string
	Password        string
	Database        string
	SSLMode         string
	LogLevel        string
	MaxConnections  int
	MinConnections  int
	MaxConnLifetime int // minutes
	MaxConnIdleTime int // minutes
}

// CacheConfig holds Redis settings for the canonical-ID lookup cache
type CacheConfig struct {
	Host         string
	Port         int
	Password     string
	DB           int
	DialTimeout  int // seconds
	ReadTimeout  int // seconds
	WriteTimeout int // seconds
	PoolSize     int
	MinIdleConns int
	TTLMinutes   int
}

// QueueConfig holds Asynq/Redis settings for background upload processing
type QueueConfig struct {
	RedisHost     string
	RedisPort     int
	RedisPassword string
	RedisDB       int
	DialTimeout   int // seconds
	ReadTimeout   int // seconds
	WriteTimeout  int // seconds
	Concurrency   int
	MaxRetries    int
}

// UploadConfig holds settings for spreadsheet upload handling
type UploadConfig struct {
	BasePath      string
	MaxFileSizeMB int64
}

// Load loads configuration from environment variables and .env file
func Load() (*Config, error) {
	if err := godotenv.Load(".env"); err != nil {
		if err := godotenv.Load("../.env"); err != nil {
			log.Println("No .env file found, using environment variables only")
		}
	}

	viper.SetDefault("ENV", "development")

	// Database defaults
	viper.SetDefault("DB_HOST", "localhost")
	viper.SetDefault("DB_PORT", 5432)
	viper.SetDefault("DB_NAME", "labtrack")
	viper.SetDefault("DB_SSLMODE", "disable")
	viper.SetDefault("DB_LOG_LEVEL", "warn")
	viper.SetDefault("DB_MAX_CONNECTIONS", 20)
	viper.SetDefault("DB_MIN_CONNECTIONS", 2)
	viper.SetDefault("DB_MAX_CONN_LIFETIME_MIN", 60)
	viper.SetDefault("DB_MAX_CONN_IDLE_MIN", 10)

	// Redis defaults
	viper.SetDefault("REDIS_HOST", "localhost")
	viper.SetDefault("REDIS_PORT", 6379)
	viper.SetDefault("REDIS_DB", 0)
	viper.SetDefault("REDIS_DIAL_TIMEOUT_SEC", 5)
	viper.SetDefault("REDIS_READ_TIMEOUT_SEC", 3)
	viper.SetDefault("REDIS_WRITE_TIMEOUT_SEC", 3)
	viper.SetDefault("REDIS_POOL_SIZE", 10)
	viper.SetDefault("REDIS_MIN_IDLE_CONNS", 2)
	viper.SetDefault("CACHE_TTL_MINUTES", 30)

	// Queue defaults
	viper.SetDefault("QUEUE_CONCURRENCY", 4)
	viper.SetDefault("QUEUE_MAX_RETRIES", 3)

	// Upload defaults
	viper.SetDefault("UPLOAD_BASE_PATH", "/tmp/labtrack-uploads")
	viper.SetDefault("MAX_FILE_SIZE_MB", 100)

	viper.AutomaticEnv()

	cfg := &Config{
		Environment: viper.GetString("ENV"),
		Database: DatabaseConfig{
			Host:            viper.GetString("DB_HOST"),
			Port:            viper.GetInt("DB_PORT"),
			User:            viper.GetString("DB_USER"),
			Password:        viper.GetString("DB_PASSWORD"),
			Database:        viper.GetString("DB_NAME"),
			SSLMode:         viper.GetString("DB_SSLMODE"),
			LogLevel:        viper.GetString("DB_LOG_LEVEL"),
			MaxConnections:  viper.GetInt("DB_MAX_CONNECTIONS"),
			MinConnections:  viper.GetInt("DB_MIN_CONNECTIONS"),
			MaxConnLifetime: viper.GetInt("DB_MAX_CONN_LIFETIME_MIN"),
			MaxConnIdleTime: viper.GetInt("DB_MAX_CONN_IDLE_MIN"),
		},
		Cache: CacheConfig{
			Host:         viper.GetString("REDIS_HOST"),
			Port:         viper.GetInt("REDIS_PORT"),
			Password:     viper.GetString("REDIS_PASSWORD"),
			DB:           viper.GetInt("REDIS_DB"),
			DialTimeout:  viper.GetInt("REDIS_DIAL_TIMEOUT_SEC"),
			ReadTimeout:  viper.GetInt("REDIS_READ_TIMEOUT_SEC"),
			WriteTimeout: viper.GetInt("REDIS_WRITE_TIMEOUT_SEC"),
			PoolSize:     viper.GetInt("REDIS_POOL_SIZE"),
			MinIdleConns: viper.GetInt("REDIS_MIN_IDLE_CONNS"),
			TTLMinutes:   viper.GetInt("CACHE_TTL_MINUTES"),
		},
		Queue: QueueConfig{
			RedisHost:     viper.GetString("REDIS_HOST"),
			RedisPort:     viper.GetInt("REDIS_PORT"),
			RedisPassword: viper.GetString("REDIS_PASSWORD"),
			RedisDB:       viper.GetInt("REDIS_DB"),
			DialTimeout:   viper.GetInt("REDIS_DIAL_TIMEOUT_SEC"),
			ReadTimeout:   viper.GetInt("REDIS_READ_TIMEOUT_SEC"),
			WriteTimeout:  viper.GetInt("REDIS_WRITE_TIMEOUT_SEC"),
			Concurrency:   viper.GetInt("QUEUE_CONCURRENCY"),
			MaxRetries:    viper.GetInt("QUEUE_MAX_RETRIES"),
		},
		Upload: UploadConfig{
			BasePath:      viper.GetString("UPLOAD_BASE_PATH"),
			MaxFileSizeMB: viper.GetInt64("MAX_FILE_SIZE_MB"),
		},
	}

	if cfg.Database.User == "" {
		return nil, fmt.Errorf("DB_USER is required")
	}
	if cfg.Database.Password == "" {
		return nil, fmt.Errorf("DB_PASSWORD is required")
	}

	return cfg, nil
}

// IsProduction returns true if running in production
func (c *Config) IsProduction() bool {
	return c.Environment == "production"
}

// IsDevelopment returns true if running in development
func (c *Config) IsDevelopment() bool {
	return c.Environment == "development"
}
