package config

import (
	"time"

	"imagevariants/pkg/logger"

	"github.com/spf13/viper"
)

type Config struct {
	GeneralVersion       string `mapstructure:"GENERAL_VERSION"`
	Environment          string `mapstructure:"ENVIRONMENT"`
	ServerPort           int    `mapstructure:"SERVER_PORT"`
	DatabaseHost         string `mapstructure:"DB_HOST"`
	DatabasePort         int    `mapstructure:"DB_PORT"`
	DatabaseName         string `mapstructure:"DB_NAME"`
	DatabaseUser         string `mapstructure:"DB_USER"`
	DatabasePassword     string `mapstructure:"DB_PASSWORD"`
	DatabaseCacheAddress string `mapstructure:"DB_CACHE_ADDRESS"`
	DatabaseCachePort    int    `mapstructure:"DB_CACHE_PORT"`
	DatabaseCacheReset   int    `mapstructure:"DB_CACHE_RESET"`
	CorsAllowOrigins     string `mapstructure:"CORS_ALLOW_ORIGINS"`

	StorageDriver         string `mapstructure:"STORAGE_DRIVER"`
	StorageLocalPath      string `mapstructure:"STORAGE_LOCAL_PATH"`
	StoragePublicURL      string `mapstructure:"STORAGE_PUBLIC_URL"`
	StorageTimeoutSeconds int    `mapstructure:"STORAGE_TIMEOUT_SECONDS"`
	S3Bucket              string `mapstructure:"S3_BUCKET"`
	S3Region              string `mapstructure:"S3_REGION"`
	S3Endpoint            string `mapstructure:"S3_ENDPOINT"`
	S3AccessKeyID         string `mapstructure:"S3_ACCESS_KEY_ID"`
	S3SecretAccessKey     string `mapstructure:"S3_SECRET_ACCESS_KEY"`
	S3UsePathStyle        bool   `mapstructure:"S3_USE_PATH_STYLE"`

	DerivationConcurrency int    `mapstructure:"DERIVATION_CONCURRENCY"`
	LockBackend           string `mapstructure:"LOCK_BACKEND"`
	LockTTLSeconds        int    `mapstructure:"LOCK_TTL_SECONDS"`
	FamilyCacheTTLSeconds int    `mapstructure:"FAMILY_CACHE_TTL_SECONDS"`

	KafkaBrokers string `mapstructure:"KAFKA_BROKERS"`
	KafkaTopic   string `mapstructure:"KAFKA_TOPIC"`
	KafkaGroupID string `mapstructure:"KAFKA_GROUP_ID"`

	SchedulerEnabled  bool `mapstructure:"SCHEDULER_ENABLED"`
	OrphanSweepDelete bool `mapstructure:"ORPHAN_SWEEP_DELETE"`
}

var ConfigInstance Config

var envVars = []string{
	"GENERAL_VERSION", "ENVIRONMENT", "SERVER_PORT", "DB_HOST", "DB_PORT", "DB_NAME", "DB_USER", "DB_PASSWORD",
	"DB_CACHE_ADDRESS", "DB_CACHE_PORT", "DB_CACHE_RESET",
	"CORS_ALLOW_ORIGINS",
	"STORAGE_DRIVER", "STORAGE_LOCAL_PATH", "STORAGE_PUBLIC_URL", "STORAGE_TIMEOUT_SECONDS",
	"S3_BUCKET", "S3_REGION", "S3_ENDPOINT", "S3_ACCESS_KEY_ID", "S3_SECRET_ACCESS_KEY", "S3_USE_PATH_STYLE",
	"DERIVATION_CONCURRENCY", "LOCK_BACKEND", "LOCK_TTL_SECONDS", "FAMILY_CACHE_TTL_SECONDS",
	"KAFKA_BROKERS", "KAFKA_TOPIC", "KAFKA_GROUP_ID",
	"SCHEDULER_ENABLED", "ORPHAN_SWEEP_DELETE",
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("STORAGE_DRIVER", "local")
	v.SetDefault("STORAGE_LOCAL_PATH", "./storage/images")
	v.SetDefault("STORAGE_PUBLIC_URL", "/storage/images")
	v.SetDefault("STORAGE_TIMEOUT_SECONDS", 30)
	v.SetDefault("DERIVATION_CONCURRENCY", 3)
	v.SetDefault("LOCK_BACKEND", "local")
	v.SetDefault("LOCK_TTL_SECONDS", 60)
	v.SetDefault("FAMILY_CACHE_TTL_SECONDS", 300)
	v.SetDefault("KAFKA_TOPIC", "image-derivations")
	v.SetDefault("KAFKA_GROUP_ID", "image-variants")
	v.SetDefault("SCHEDULER_ENABLED", true)
	v.SetDefault("DB_CACHE_RESET", -1)
}

func New() (Config, error) {
	return load(viper.GetViper())
}

func load(v *viper.Viper) (Config, error) {
	log := logger.New("config").Function("New")
	log.Info("Initializing config")

	setDefaults(v)
	v.AutomaticEnv()

	for _, env := range envVars {
		if err := v.BindEnv(env); err != nil {
			log.Warn("Failed to bind environment variable", "env", env, "error", err)
		}
	}

	envVarsSet := v.IsSet("SERVER_PORT") && v.IsSet("DB_HOST")

	if envVarsSet {
		log.Info("Environment variables detected, skipping file loading")
	} else {
		log.Info("Environment variables not found, attempting to load from files")

		v.SetConfigFile(".env")
		v.SetConfigType("env")

		if err := v.ReadInConfig(); err != nil {
			log.Warn("Could not find .env file", "error", err)
		} else {
			log.Info("Loaded .env file")
		}

		v.SetConfigFile(".env.local")
		if err := v.MergeInConfig(); err != nil {
			log.Debug("No .env.local file found", "error", err)
		} else {
			log.Info("Loaded .env.local overrides")
		}
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return Config{}, log.Err("Fatal error: could not unmarshal config", err)
	}

	log.Info("Successfully initialized config",
		"environment", config.Environment,
		"storageDriver", config.StorageDriver,
		"lockBackend", config.LockBackend,
	)
	if err := validateConfig(config, log); err != nil {
		return Config{}, err
	}
	return ConfigInstance, nil
}

func GetConfig() Config {
	return ConfigInstance
}

// StorageTimeout bounds every object-storage call made during derivation.
func (c Config) StorageTimeout() time.Duration {
	return time.Duration(c.StorageTimeoutSeconds) * time.Second
}

func (c Config) LockTTL() time.Duration {
	return time.Duration(c.LockTTLSeconds) * time.Second
}

func (c Config) FamilyCacheTTL() time.Duration {
	return time.Duration(c.FamilyCacheTTLSeconds) * time.Second
}

func validateConfig(config Config, log logger.Logger) error {
	if config.ServerPort <= 0 {
		return log.Error(
			"Fatal error: invalid server port",
			"port", config.ServerPort,
		)
	}

	switch config.StorageDriver {
	case "local":
		if config.StorageLocalPath == "" {
			return log.Error("Fatal error: STORAGE_LOCAL_PATH required for local storage")
		}
	case "s3":
		if config.S3Bucket == "" {
			return log.Error("Fatal error: S3_BUCKET required when STORAGE_DRIVER is s3")
		}
	default:
		return log.Error("Fatal error: unknown storage driver", "driver", config.StorageDriver)
	}

	if config.LockBackend != "local" && config.LockBackend != "valkey" {
		return log.Error("Fatal error: unknown lock backend", "backend", config.LockBackend)
	}

	if config.DerivationConcurrency <= 0 {
		return log.Error(
			"Fatal error: DERIVATION_CONCURRENCY must be positive",
			"concurrency", config.DerivationConcurrency,
		)
	}

	if config.StorageTimeoutSeconds <= 0 {
		return log.Error(
			"Fatal error: STORAGE_TIMEOUT_SECONDS must be positive",
			"seconds", config.StorageTimeoutSeconds,
		)
	}

	ConfigInstance = config
	return nil
}
