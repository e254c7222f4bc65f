package config

import (
	"testing"

	"imagevariants/pkg/logger"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validConfig() Config {
	return Config{
		ServerPort:            8288,
		StorageDriver:         "local",
		StorageLocalPath:      "/tmp/images",
		StorageTimeoutSeconds: 30,
		DerivationConcurrency: 3,
		LockBackend:           "local",
	}
}

func TestValidateConfig(t *testing.T) {
	log := logger.New("config_test")

	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr bool
	}{
		{name: "valid local", mutate: func(c *Config) {}},
		{name: "bad port", mutate: func(c *Config) { c.ServerPort = 0 }, wantErr: true},
		{name: "s3 without bucket", mutate: func(c *Config) { c.StorageDriver = "s3" }, wantErr: true},
		{name: "s3 with bucket", mutate: func(c *Config) {
			c.StorageDriver = "s3"
			c.S3Bucket = "images"
		}},
		{name: "unknown driver", mutate: func(c *Config) { c.StorageDriver = "ftp" }, wantErr: true},
		{name: "unknown lock backend", mutate: func(c *Config) { c.LockBackend = "zookeeper" }, wantErr: true},
		{name: "zero concurrency", mutate: func(c *Config) { c.DerivationConcurrency = 0 }, wantErr: true},
		{name: "zero storage timeout", mutate: func(c *Config) { c.StorageTimeoutSeconds = 0 }, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := validConfig()
			tt.mutate(&c)
			err := validateConfig(c, log)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			assert.NoError(t, err)
			assert.Equal(t, c, ConfigInstance)
		})
	}
}

func TestLoad_FromEnvironment(t *testing.T) {
	t.Setenv("SERVER_PORT", "9000")
	t.Setenv("DB_HOST", "localhost")
	t.Setenv("LOCK_BACKEND", "valkey")
	t.Setenv("DERIVATION_CONCURRENCY", "5")

	c, err := load(viper.New())
	require.NoError(t, err)

	assert.Equal(t, 9000, c.ServerPort)
	assert.Equal(t, "valkey", c.LockBackend)
	assert.Equal(t, 5, c.DerivationConcurrency)
	assert.Equal(t, "local", c.StorageDriver)
	assert.Equal(t, 30, c.StorageTimeoutSeconds)
	assert.Equal(t, "image-derivations", c.KafkaTopic)
	assert.True(t, c.SchedulerEnabled)
}

func TestDurations(t *testing.T) {
	c := Config{StorageTimeoutSeconds: 2, LockTTLSeconds: 60, FamilyCacheTTLSeconds: 300}

	assert.Equal(t, "2s", c.StorageTimeout().String())
	assert.Equal(t, "1m0s", c.LockTTL().String())
	assert.Equal(t, "5m0s", c.FamilyCacheTTL().String())
}
