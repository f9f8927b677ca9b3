// Package main starts the household ledger service.
package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"

	ledgercmd "github.com/louisbranch/famledger/internal/cmd/ledger"
)

func main() {
	cfg, err := ledgercmd.ParseConfig(flag.CommandLine, os.Args[1:])
	if err != nil {
		log.Fatalf("parse flags: %v", err)
	}
	log.SetPrefix("[LEDGER] ")
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if cfg.HealthCheck {
		if err := ledgercmd.Probe(ctx, cfg); err != nil {
			log.Fatalf("health check: %v", err)
		}
		return
	}
	if err := ledgercmd.Run(ctx, cfg); err != nil {
		log.Fatalf("failed to serve: %v", err)
	}
}
