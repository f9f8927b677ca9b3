package ledger

import (
	"flag"
	"testing"
	"time"
)

func TestParseConfigDefaults(t *testing.T) {
	cfg, err := ParseConfig(flag.NewFlagSet("ledger", flag.ContinueOnError), nil)
	if err != nil {
		t.Fatalf("parse config: %v", err)
	}
	if cfg.Port != 8090 || cfg.DBPath != "data/ledger.db" {
		t.Fatalf("defaults = %+v", cfg)
	}
	if cfg.LockTimeout != 2*time.Second || cfg.ScheduleInterval != time.Hour {
		t.Fatalf("duration defaults = %+v", cfg)
	}
	if !cfg.Telemetry.Enabled {
		t.Fatal("telemetry should default to enabled")
	}
	if got := cfg.ListenAddr(); got != ":8090" {
		t.Fatalf("listen addr = %q", got)
	}
}

func TestParseConfigEnvThenFlags(t *testing.T) {
	t.Setenv("FAMLEDGER_PORT", "9000")
	t.Setenv("FAMLEDGER_DB_PATH", "/tmp/env.db")
	t.Setenv("FAMLEDGER_SCHEDULE_INTERVAL", "5m")
	t.Setenv("FAMLEDGER_OTEL_ENDPOINT", "http://collector:4318")

	cfg, err := ParseConfig(flag.NewFlagSet("ledger", flag.ContinueOnError), []string{"-db-path", "/tmp/flag.db", "-addr", "127.0.0.1:7000"})
	if err != nil {
		t.Fatalf("parse config: %v", err)
	}
	if cfg.Port != 9000 || cfg.DBPath != "/tmp/flag.db" || cfg.ScheduleInterval != 5*time.Minute {
		t.Fatalf("config = %+v", cfg)
	}
	if cfg.Telemetry.Endpoint != "http://collector:4318" {
		t.Fatalf("telemetry endpoint = %q", cfg.Telemetry.Endpoint)
	}
	if got := cfg.ListenAddr(); got != "127.0.0.1:7000" {
		t.Fatalf("listen addr = %q", got)
	}
}

func TestParseConfigRejectsBadEnv(t *testing.T) {
	t.Setenv("FAMLEDGER_LOCK_TIMEOUT", "soon")
	if _, err := ParseConfig(flag.NewFlagSet("ledger", flag.ContinueOnError), nil); err == nil {
		t.Fatal("expected invalid duration to fail")
	}
}

func TestProbeAddr(t *testing.T) {
	tests := []struct {
		cfg  Config
		want string
	}{
		{Config{Port: 8090}, "localhost:8090"},
		{Config{Addr: "0.0.0.0:7000"}, "localhost:7000"},
		{Config{Addr: "127.0.0.1:7000"}, "127.0.0.1:7000"},
	}
	for _, tt := range tests {
		if got := tt.cfg.ProbeAddr(); got != tt.want {
			t.Fatalf("ProbeAddr(%+v) = %q, want %q", tt.cfg, got, tt.want)
		}
	}
}

func TestParseConfigHealthCheckFlag(t *testing.T) {
	cfg, err := ParseConfig(flag.NewFlagSet("ledger", flag.ContinueOnError), []string{"-healthcheck"})
	if err != nil {
		t.Fatalf("parse config: %v", err)
	}
	if !cfg.HealthCheck {
		t.Fatal("expected health check mode")
	}
}
