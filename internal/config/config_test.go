package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "http://localhost:8080", cfg.Origin)
	assert.Equal(t, ":8080", cfg.ListenAddr)
	assert.Equal(t, "v1", cfg.Version)
	assert.Equal(t, StoreMemory, cfg.Store)
	assert.Equal(t, 4, cfg.PrecacheConcurrency)
	assert.Equal(t, 15*time.Second, cfg.PrecacheTimeout)
	assert.Equal(t, 3, cfg.InstallAttempts)
	assert.Equal(t, 2, cfg.FailureThreshold)
	assert.Equal(t, cfg.OriginURL(), cfg.UpstreamURL())
}

func TestLoad_FromEnv(t *testing.T) {
	t.Setenv("PARADIGM_ORIGIN", "https://app.paradigm.example")
	t.Setenv("PARADIGM_UPSTREAM", "http://10.0.0.5:3000")
	t.Setenv("PARADIGM_VERSION", "v7")
	t.Setenv("PARADIGM_STORE", "redis")
	t.Setenv("PARADIGM_REDIS_ADDR", "redis:6379")
	t.Setenv("PARADIGM_REDIS_DB", "2")
	t.Setenv("PARADIGM_PRECACHE_TIMEOUT", "3s")
	t.Setenv("PARADIGM_LOG_PRETTY", "true")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "v7", cfg.Version)
	assert.Equal(t, StoreRedis, cfg.Store)
	assert.Equal(t, "redis:6379", cfg.RedisAddr)
	assert.Equal(t, 2, cfg.RedisDB)
	assert.Equal(t, 3*time.Second, cfg.PrecacheTimeout)
	assert.True(t, cfg.LogPretty)
	assert.Equal(t, "app.paradigm.example", cfg.OriginURL().Host)
	assert.Equal(t, "10.0.0.5:3000", cfg.UpstreamURL().Host)
}

func TestLoad_InvalidEnv(t *testing.T) {
	t.Setenv("PARADIGM_REDIS_DB", "not-a-number")
	_, err := Load()
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	valid := func() Config {
		return Config{
			Origin:              "https://app.example",
			ListenAddr:          ":8080",
			Version:             "v1",
			Store:               StoreMemory,
			PrecacheConcurrency: 4,
			InstallAttempts:     3,
			FailureThreshold:    2,
		}
	}

	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr bool
	}{
		{name: "valid", mutate: func(c *Config) {}},
		{name: "relative origin", mutate: func(c *Config) { c.Origin = "/app" }, wantErr: true},
		{name: "ftp origin", mutate: func(c *Config) { c.Origin = "ftp://app.example" }, wantErr: true},
		{name: "bad upstream", mutate: func(c *Config) { c.Upstream = "localhost:3000" }, wantErr: true},
		{name: "empty version", mutate: func(c *Config) { c.Version = " " }, wantErr: true},
		{name: "no listen address", mutate: func(c *Config) { c.ListenAddr = "" }, wantErr: true},
		{name: "unknown store", mutate: func(c *Config) { c.Store = "sqlite" }, wantErr: true},
		{name: "redis without address", mutate: func(c *Config) { c.Store = StoreRedis }, wantErr: true},
		{name: "bolt with path", mutate: func(c *Config) { c.Store = StoreBolt; c.BoltPath = "cache.db" }},
		{name: "bolt without path", mutate: func(c *Config) { c.Store = StoreBolt }, wantErr: true},
		{name: "zero concurrency", mutate: func(c *Config) { c.PrecacheConcurrency = 0 }, wantErr: true},
		{name: "zero attempts", mutate: func(c *Config) { c.InstallAttempts = 0 }, wantErr: true},
		{name: "zero threshold", mutate: func(c *Config) { c.FailureThreshold = 0 }, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}
