package config

import "testing"

func TestLoad_Defaults(t *testing.T) {
	for _, key := range []string{
		"PORT", "DATABASE_URL", "DATABASE_DRIVER", "MIGRATIONS_DIR",
		"DEPLOY_MIGRATE_STRICT", "LOG_LEVEL", "OTEL_ENABLED", "OTEL_SAMPLING_RATE",
	} {
		t.Setenv(key, "")
	}

	cfg := Load()

	if cfg.Port != "8080" {
		t.Errorf("want port 8080, got %s", cfg.Port)
	}
	if cfg.DatabaseDriver != "mysql" {
		t.Errorf("want driver mysql, got %s", cfg.DatabaseDriver)
	}
	if cfg.MigrationsDir != "./migrations" {
		t.Errorf("want migrations dir ./migrations, got %s", cfg.MigrationsDir)
	}
	if !cfg.Strict {
		t.Error("want strict mode enabled by default")
	}
	if cfg.OtelEnabled {
		t.Error("want otel disabled by default")
	}
	if cfg.OtelSamplingRate != 1.0 {
		t.Errorf("want sampling rate 1.0, got %v", cfg.OtelSamplingRate)
	}
}

func TestLoad_Overrides(t *testing.T) {
	t.Setenv("DATABASE_DRIVER", "postgres")
	t.Setenv("MIGRATIONS_DIR", "/srv/migrations")
	t.Setenv("DEPLOY_MIGRATE_STRICT", "false")
	t.Setenv("OTEL_ENABLED", "true")
	t.Setenv("OTEL_SAMPLING_RATE", "0.25")

	cfg := Load()

	if cfg.DatabaseDriver != "postgres" {
		t.Errorf("want driver postgres, got %s", cfg.DatabaseDriver)
	}
	if cfg.MigrationsDir != "/srv/migrations" {
		t.Errorf("want migrations dir /srv/migrations, got %s", cfg.MigrationsDir)
	}
	if cfg.Strict {
		t.Error("want strict mode disabled")
	}
	if !cfg.OtelEnabled {
		t.Error("want otel enabled")
	}
	if cfg.OtelSamplingRate != 0.25 {
		t.Errorf("want sampling rate 0.25, got %v", cfg.OtelSamplingRate)
	}
}

func TestLoad_InvalidValuesFallBack(t *testing.T) {
	t.Setenv("DEPLOY_MIGRATE_STRICT", "maybe")
	t.Setenv("OTEL_SAMPLING_RATE", "2.5")

	cfg := Load()

	if !cfg.Strict {
		t.Error("want strict fallback to true")
	}
	if cfg.OtelSamplingRate != 1.0 {
		t.Errorf("want sampling rate fallback 1.0, got %v", cfg.OtelSamplingRate)
	}
}
