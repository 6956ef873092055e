// Command coordinator runs the Varys coordinator: the rendezvous point
// every agent and client registers with, the catalog of live
// coflows/flows/agents/clients, and the periodic rate-allocation
// dispatch loop.
//
// Configuration (environment variables):
//
//	VARYS_COORDINATOR_ADDR      listen address (default ":7777")
//	VARYS_HEARTBEAT_INTERVAL    agent heartbeat interval, Go duration (default "2s")
//	VARYS_POLICY_INTERVAL       rate dispatch interval, Go duration (default "1s")
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/dreamware/varys/internal/coordinator"
	"github.com/dreamware/varys/internal/policy"
	"github.com/dreamware/varys/internal/transport"
)

func main() {
	log := newLogger()
	defer log.Sync()

	addr := getenv("VARYS_COORDINATOR_ADDR", ":7777")
	heartbeatInterval := getenvDuration("VARYS_HEARTBEAT_INTERVAL", 2*time.Second)
	policyInterval := getenvDuration("VARYS_POLICY_INTERVAL", time.Second)

	listener, err := transport.Listen(addr)
	if err != nil {
		log.Fatalw("failed to listen", "addr", addr, "error", err)
	}

	co := coordinator.New(listener, policy.Identity, heartbeatInterval, policyInterval, log)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go func() {
		log.Infow("coordinator listening", "addr", listener.Addr().String())
		if err := co.Run(ctx); err != nil {
			log.Errorw("coordinator stopped", "error", err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	<-stop

	log.Infow("shutting down")
	cancel()
	listener.Close()
}

func newLogger() *zap.SugaredLogger {
	cfg := zap.NewProductionConfig()
	if getenv("VARYS_LOG_LEVEL", "info") == "debug" {
		cfg.Level = zap.NewAtomicLevelAt(zap.DebugLevel)
	}
	logger, err := cfg.Build()
	if err != nil {
		panic(err)
	}
	return logger.Sugar()
}

func getenv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getenvDuration(key string, fallback time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return fallback
	}
	return d
}
