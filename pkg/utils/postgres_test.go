package utils

import (
	"context"
	"testing"
	"time"
)

func TestPostgresPoolConfig_WithDefaults(t *testing.T) {
	cfg := PostgresPoolConfig{}.withDefaults()

	if cfg.MaxOpenConns != 10 || cfg.MaxIdleConns != 10 {
		t.Fatalf("unexpected conn limits: %d / %d", cfg.MaxOpenConns, cfg.MaxIdleConns)
	}
	if cfg.ConnMaxLifetime != 30*time.Minute {
		t.Fatalf("unexpected conn lifetime: %s", cfg.ConnMaxLifetime)
	}
	if cfg.PingTimeout != 5*time.Second {
		t.Fatalf("unexpected ping timeout: %s", cfg.PingTimeout)
	}
}

func TestPostgresPoolConfig_ExplicitValuesKept(t *testing.T) {
	cfg := PostgresPoolConfig{MaxOpenConns: 3, PingTimeout: time.Second}.withDefaults()

	if cfg.MaxOpenConns != 3 {
		t.Fatalf("explicit conn limit overwritten: %d", cfg.MaxOpenConns)
	}
	if cfg.PingTimeout != time.Second {
		t.Fatalf("explicit ping timeout overwritten: %s", cfg.PingTimeout)
	}
}

func TestOpenPostgres_UnknownDriver(t *testing.T) {
	if _, err := OpenPostgres(context.Background(), "no-such-driver", "dsn", PostgresPoolConfig{}); err == nil {
		t.Fatalf("expected error for unregistered driver")
	}
}
