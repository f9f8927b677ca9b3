// Package ledger parses ledger service flags and launches the service.
package ledger

import (
	"context"
	"flag"
	"log"
	"net"
	"strconv"
	"strings"
	"time"

	entrypoint "github.com/louisbranch/famledger/internal/platform/cmd"
	platformgrpc "github.com/louisbranch/famledger/internal/platform/grpc"
	"github.com/louisbranch/famledger/internal/platform/otel"
	server "github.com/louisbranch/famledger/internal/services/ledger/app"
)

// Config holds ledger command configuration. Variables are read with the
// FAMLEDGER_ prefix.
type Config struct {
	Port             int           `env:"PORT" envDefault:"8090"`
	Addr             string        `env:"ADDR"`
	DBPath           string        `env:"DB_PATH" envDefault:"data/ledger.db"`
	LockTimeout      time.Duration `env:"LOCK_TIMEOUT" envDefault:"2s"`
	ScheduleInterval time.Duration `env:"SCHEDULE_INTERVAL" envDefault:"1h"`
	Telemetry        otel.Config

	// HealthCheck probes a running server instead of starting one.
	HealthCheck bool
}

const probeTimeout = 5 * time.Second

// ParseConfig parses environment and flags into Config.
func ParseConfig(fs *flag.FlagSet, args []string) (Config, error) {
	var cfg Config
	if err := entrypoint.ParseConfig(&cfg); err != nil {
		return Config{}, err
	}
	fs.IntVar(&cfg.Port, "port", cfg.Port, "The ledger server port")
	fs.StringVar(&cfg.Addr, "addr", cfg.Addr, "The ledger server listen address (overrides -port)")
	fs.StringVar(&cfg.DBPath, "db-path", cfg.DBPath, "Path to the ledger SQLite database")
	fs.DurationVar(&cfg.LockTimeout, "lock-timeout", cfg.LockTimeout, "How long a write waits for its accounts")
	fs.DurationVar(&cfg.ScheduleInterval, "schedule-interval", cfg.ScheduleInterval, "How often funding rules are checked")
	fs.BoolVar(&cfg.HealthCheck, "healthcheck", false, "Check the health of a running server and exit")
	if err := entrypoint.ParseArgs(fs, args); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// ListenAddr returns Addr when set, otherwise every interface on Port.
func (c Config) ListenAddr() string {
	if addr := strings.TrimSpace(c.Addr); addr != "" {
		return addr
	}
	return net.JoinHostPort("", strconv.Itoa(c.Port))
}

// ProbeAddr returns the address a local health probe dials.
func (c Config) ProbeAddr() string {
	host, port, err := net.SplitHostPort(c.ListenAddr())
	if err != nil {
		return c.ListenAddr()
	}
	if host == "" || host == "0.0.0.0" || host == "::" {
		host = "localhost"
	}
	return net.JoinHostPort(host, port)
}

// Probe waits for the running ledger to report SERVING over gRPC health.
func Probe(ctx context.Context, cfg Config) error {
	conn, err := platformgrpc.DialWithHealth(ctx, cfg.ProbeAddr(), server.HealthService, probeTimeout, log.Printf)
	if err != nil {
		return err
	}
	return conn.Close()
}

// Run starts the ledger service.
func Run(ctx context.Context, cfg Config) error {
	return entrypoint.RunWithTelemetry(ctx, entrypoint.ServiceLedger, entrypoint.RunOptions{Telemetry: cfg.Telemetry}, func(ctx context.Context) error {
		return server.Run(ctx, server.Config{
			Addr:             cfg.ListenAddr(),
			DBPath:           cfg.DBPath,
			LockTimeout:      cfg.LockTimeout,
			ScheduleInterval: cfg.ScheduleInterval,
		})
	})
}
