package config

import (
	"os"
	"testing"
)

func clearEnv(t *testing.T) {
	t.Helper()
	keys := []string{
		"APP_ENV", "ENV", "STORE_BACKEND", "DB_DSN", "DATABASE_URL",
		"REDIS_ADDR", "REDIS_PREFIX", "REDIS_TTL", "DATA_SOURCE_MODE",
		"DATA_SOURCE_POLL_INTERVAL", "BIG_SEGMENTS_POLL_INTERVAL",
		"BIG_SEGMENTS_CACHE_TTL", "BIG_SEGMENTS_STALE_THRESHOLD",
		"EXECUTOR_POOL_SIZE", "METRICS_ADDR", "APP_METRICS_ADDR", "ROLLOUT_SALT",
	}
	for _, k := range keys {
		os.Unsetenv(k)
	}
}

func TestLoad_DefaultValues(t *testing.T) {
	clearEnv(t)
	os.Setenv("ROLLOUT_SALT", "test-salt")
	defer os.Unsetenv("ROLLOUT_SALT")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() failed: %v", err)
	}

	if cfg.AppEnv != "dev" {
		t.Errorf("AppEnv = %q, want dev", cfg.AppEnv)
	}
	if cfg.Env != "prod" {
		t.Errorf("Env = %q, want prod", cfg.Env)
	}
	if cfg.StoreBackend != StoreBackendMemory {
		t.Errorf("StoreBackend = %q, want memory", cfg.StoreBackend)
	}
	if cfg.DataSourceMode != DataSourceModePoll {
		t.Errorf("DataSourceMode = %q, want poll", cfg.DataSourceMode)
	}
	if cfg.ExecutorPoolSize != 4 {
		t.Errorf("ExecutorPoolSize = %d, want 4", cfg.ExecutorPoolSize)
	}
	if cfg.MetricsAddr != ":9090" {
		t.Errorf("MetricsAddr = %q, want :9090", cfg.MetricsAddr)
	}
}

func TestLoad_EnvironmentOverrides(t *testing.T) {
	clearEnv(t)
	os.Setenv("APP_ENV", "test")
	os.Setenv("ENV", "staging")
	os.Setenv("STORE_BACKEND", "redis")
	os.Setenv("REDIS_ADDR", "redis://localhost:6380/1")
	os.Setenv("DATA_SOURCE_MODE", "streaming")
	os.Setenv("EXECUTOR_POOL_SIZE", "8")
	os.Setenv("ROLLOUT_SALT", "custom-salt")
	defer clearEnv(t)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() failed: %v", err)
	}

	if cfg.AppEnv != "test" {
		t.Errorf("AppEnv = %q, want test", cfg.AppEnv)
	}
	if cfg.Env != "staging" {
		t.Errorf("Env = %q, want staging", cfg.Env)
	}
	if cfg.StoreBackend != StoreBackendRedis {
		t.Errorf("StoreBackend = %q, want redis", cfg.StoreBackend)
	}
	if cfg.RedisAddr != "redis://localhost:6380/1" {
		t.Errorf("RedisAddr = %q", cfg.RedisAddr)
	}
	if cfg.DataSourceMode != DataSourceModeStreaming {
		t.Errorf("DataSourceMode = %q, want streaming", cfg.DataSourceMode)
	}
	if cfg.ExecutorPoolSize != 8 {
		t.Errorf("ExecutorPoolSize = %d, want 8", cfg.ExecutorPoolSize)
	}
	if cfg.RolloutSalt != "custom-salt" {
		t.Errorf("RolloutSalt = %q, want custom-salt", cfg.RolloutSalt)
	}
}

func TestLoad_MissingEnvFileIsAcceptable(t *testing.T) {
	clearEnv(t)
	os.Setenv("ROLLOUT_SALT", "test-salt")
	defer os.Unsetenv("ROLLOUT_SALT")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() should not fail when .env is missing: %v", err)
	}
	if cfg == nil {
		t.Fatal("Config should not be nil")
	}
}

func TestLoad_ProdRequiresExplicitRolloutSalt(t *testing.T) {
	clearEnv(t)
	os.Setenv("APP_ENV", "prod")
	defer clearEnv(t)

	if _, err := Load(); err == nil {
		t.Fatal("expected Load() to fail when APP_ENV=prod and ROLLOUT_SALT is unset")
	}
}

func TestLoad_InvalidStoreBackendRejected(t *testing.T) {
	clearEnv(t)
	os.Setenv("ROLLOUT_SALT", "test-salt")
	os.Setenv("STORE_BACKEND", "s3")
	defer clearEnv(t)

	if _, err := Load(); err == nil {
		t.Fatal("expected Load() to fail for an unrecognized STORE_BACKEND")
	}
}

func TestLoad_PostgresBackendRequiresDSN(t *testing.T) {
	clearEnv(t)
	os.Setenv("ROLLOUT_SALT", "test-salt")
	os.Setenv("STORE_BACKEND", "postgres")
	os.Setenv("DB_DSN", "")
	defer clearEnv(t)

	if _, err := Load(); err == nil {
		t.Fatal("expected Load() to fail for an empty DB_DSN with STORE_BACKEND=postgres")
	}
}
