// Command agent runs a Varys host agent: the per-machine worker that
// registers with the coordinator, reports measured NIC throughput on
// every heartbeat, and serves ONDISK/FAKE flow bytes on behalf of the
// clients running on its host.
//
// Configuration (environment variables):
//
//	VARYS_SLAVE_ID              unique agent identifier (required)
//	VARYS_SLAVE_PORT            local control listener port (default "7701")
//	VARYS_SLAVE_COMM_PORT       data-plane listener port (default "7702")
//	VARYS_SLAVE_WEBUI_PORT      advertised web UI port (default "7703")
//	VARYS_PUBLIC_DNS            address other peers dial to reach this agent (default "127.0.0.1")
//	VARYS_COORDINATOR_ADDR      coordinator address (required)
//	VARYS_HEARTBEAT_INTERVAL    heartbeat interval, Go duration (default "2s")
//	VARYS_NIC                   network interface to sample (default: all interfaces)
//	VARYS_SLAVE_DIR             work directory, created if missing (default "$VARYS_HOME/work")
package main

import (
	"context"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/dreamware/varys/internal/agent"
)

// logFatal is a variable so tests can intercept a fatal configuration
// error without terminating the test process.
var logFatal = func(log *zap.SugaredLogger, msg string, args ...any) {
	log.Fatalw(msg, args...)
}

func main() {
	log := newLogger()
	defer log.Sync()

	cfg := agent.Config{
		SlaveID:           mustGetenv(log, "VARYS_SLAVE_ID"),
		Host:              getenv("VARYS_SLAVE_HOST", "127.0.0.1"),
		PublicHost:        getenv("VARYS_PUBLIC_DNS", "127.0.0.1"),
		Port:              getenvPort("VARYS_SLAVE_PORT", 7701),
		CommPort:          getenvPort("VARYS_SLAVE_COMM_PORT", 7702),
		WebUIPort:         getenvPort("VARYS_SLAVE_WEBUI_PORT", 7703),
		CoordinatorAddr:   mustGetenv(log, "VARYS_COORDINATOR_ADDR"),
		HeartbeatInterval: getenvDuration("VARYS_HEARTBEAT_INTERVAL", 2*time.Second),
		NIC:               os.Getenv("VARYS_NIC"),
		WorkDir:           getenv("VARYS_SLAVE_DIR", filepath.Join(getenv("VARYS_HOME", "."), "work")),
	}

	a := agent.New(cfg, log)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	done := make(chan error, 1)
	go func() {
		log.Infow("agent starting", "slaveId", cfg.SlaveID, "controlPort", cfg.Port, "commPort", cfg.CommPort)
		done <- a.Run(ctx)
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)

	select {
	case <-stop:
		log.Infow("shutting down")
		cancel()
		<-done
	case err := <-done:
		if err != nil {
			log.Errorw("agent exited", "error", err)
		}
	}
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

func mustGetenv(log *zap.SugaredLogger, key string) string {
	v := os.Getenv(key)
	if v == "" {
		logFatal(log, "missing required environment variable", "key", key)
	}
	return v
}

func getenvPort(key string, fallback uint16) uint16 {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil || n <= 0 || n > 65535 {
		return fallback
	}
	return uint16(n)
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
