// Command gateway runs the conversational WebSocket gateway: it loads
// configuration, wires the agent stream collaborator into the
// orchestrator-backed connection manager, and serves /ws and /health.
package main

import (
	"context"
	"flag"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/arcbound/turngate/pkg/agentstream"
	"github.com/arcbound/turngate/pkg/config"
	"github.com/arcbound/turngate/pkg/gateway"
	"github.com/arcbound/turngate/pkg/version"
)

func getEnv(key, defaultValue string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultValue
}

func main() {
	configPath := flag.String("config", getEnv("GATEWAY_CONFIG", ""),
		"Path to the gateway YAML configuration file")
	httpAddr := flag.String("addr", getEnv("HTTP_ADDR", ":8080"),
		"HTTP listen address")
	envFile := flag.String("env-file", getEnv("ENV_FILE", ".env"),
		"Path to a .env file to load before reading configuration")
	flag.Parse()

	if err := godotenv.Load(*envFile); err != nil {
		log.Printf("no .env file loaded from %s: %v", *envFile, err)
	}

	logger := slog.Default()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("failed to load configuration: %v", err)
	}

	// The agent service is an injected collaborator (see pkg/agentstream);
	// this binary has no concrete LLM backend to wire, so it runs against
	// the scripted FakeStreamer used throughout the test suite. A real
	// deployment supplies its own agentstream.Streamer implementation here.
	streamer := &agentstream.FakeStreamer{
		Events: []agentstream.Event{
			agentstream.StreamStart{},
			agentstream.StreamToken{Chunk: "Hello there."},
			agentstream.StreamEnd{},
		},
	}

	manager := gateway.NewManager(cfg, streamer, nil, logger)
	server := gateway.NewServer(manager, logger)

	logger.Info("starting gateway", "version", version.Full(), "addr", *httpAddr)

	errCh := make(chan error, 1)
	go func() {
		errCh <- server.Start(*httpAddr)
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-errCh:
		if err != nil {
			log.Fatalf("http server stopped: %v", err)
		}
	case <-stop:
		logger.Info("shutting down")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		log.Printf("error during shutdown: %v", err)
	}
}
