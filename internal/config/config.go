package config

import (
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all configuration for the application.
// The values are read by Viper from a config file or environment variables.
type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Database  DatabaseConfig  `mapstructure:"database"`
	Model     ModelConfig     `mapstructure:"model"`
	Catalog   RemoteAPIConfig `mapstructure:"catalog"`
	PlanStore RemoteAPIConfig `mapstructure:"planstore"`
	Cache     CacheConfig     `mapstructure:"cache"`
	Archive   ArchiveConfig   `mapstructure:"archive"`
	JWT       JWTConfig       `mapstructure:"jwt"`
}

type ServerConfig struct {
	Address string `mapstructure:"address"`
}

type DatabaseConfig struct {
	URI  string `mapstructure:"uri"`
	Name string `mapstructure:"name"`
}

// ModelConfig points at an OpenAI-compatible chat completions endpoint.
type ModelConfig struct {
	BaseURL string        `mapstructure:"base_url"`
	APIKey  string        `mapstructure:"api_key"`
	Name    string        `mapstructure:"name"`
	Timeout time.Duration `mapstructure:"timeout"`
}

// RemoteAPIConfig covers the exercise catalog and workout-plan store APIs.
type RemoteAPIConfig struct {
	BaseURL string `mapstructure:"base_url"`
	APIKey  string `mapstructure:"api_key"`
}

// CacheConfig sets the advisory model-response cache lifetimes.
type CacheConfig struct {
	Enabled     bool          `mapstructure:"enabled"`
	ChatTTL     time.Duration `mapstructure:"chat_ttl"`
	ArtifactTTL time.Duration `mapstructure:"artifact_ttl"`
}

// ArchiveConfig configures the S3-compatible plan snapshot archive.
// Archival is disabled when BucketName is empty.
type ArchiveConfig struct {
	Endpoint        string `mapstructure:"endpoint"`
	Region          string `mapstructure:"region"`
	AccessKeyID     string `mapstructure:"access_key_id"`
	SecretAccessKey string `mapstructure:"secret_access_key"`
	BucketName      string `mapstructure:"bucket_name"`
}

// JWTConfig defines JWT verification for the API layer. Token issuance
// belongs to the separate auth service.
type JWTConfig struct {
	Secret string `mapstructure:"secret"`
}

// LoadConfig reads configuration from file or environment variables.
func LoadConfig(path string) (config Config, err error) {
	viper.AddConfigPath(path)
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")

	// Environment variables override the file, e.g. model.base_url -> MODEL_BASE_URL.
	viper.AutomaticEnv()
	viper.SetEnvKeyReplacer(strings.NewReplacer(`.`, `_`))

	viper.SetDefault("server.address", ":8080")
	viper.SetDefault("database.uri", "mongodb://localhost:27017")
	viper.SetDefault("database.name", "plan_engine")
	viper.SetDefault("model.base_url", "https://api.openai.com/v1")
	viper.SetDefault("model.name", "gpt-4o-mini")
	viper.SetDefault("model.timeout", "60s")
	viper.SetDefault("cache.enabled", true)
	viper.SetDefault("cache.chat_ttl", "1h")
	viper.SetDefault("cache.artifact_ttl", "24h")

	err = viper.ReadInConfig()
	// Missing config file is fine; env vars and defaults may be enough.
	if _, ok := err.(viper.ConfigFileNotFoundError); ok {
		err = nil
	} else if err != nil {
		return
	}

	err = viper.Unmarshal(&config)
	if err != nil {
		return
	}

	return config, nil
}
