// Command bearoffd runs the bearoff query server.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/bgbearoff/bearoff/internal/config"
	"github.com/bgbearoff/bearoff/pkg/api"
	"github.com/bgbearoff/bearoff/pkg/engine"
	"github.com/bgbearoff/bearoff/pkg/external"
)

const version = "0.1.0"

func main() {
	configFile := flag.String("config", "", "Config file (yaml, toml or json)")
	host := flag.String("host", "", "Host to bind to (overrides server.host)")
	port := flag.Int("port", 0, "Port to listen on (overrides server.port)")
	showVersion := flag.Bool("version", false, "Show version and exit")

	flag.Parse()

	if *showVersion {
		fmt.Printf("bearoffd v%s\n", version)
		os.Exit(0)
	}

	cfg, err := config.Load(*configFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	if *host != "" {
		cfg.Server.Host = *host
	}
	if *port != 0 {
		cfg.Server.Port = *port
	}
	cfg.Log.Setup()

	log.Info().Str("version", version).Msg("loading bearoff databases")

	start := time.Now()
	eng, err := engine.NewEngine(context.Background(), cfg.EngineOptions())
	if err != nil {
		log.Fatal().Err(err).Msg("failed to create engine")
	}
	defer eng.Close()

	log.Info().Int("databases", len(eng.Databases())).Dur("took", time.Since(start)).Msg("engine loaded")

	serverConfig := api.DefaultConfig()
	serverConfig.Host = cfg.Server.Host
	serverConfig.Port = cfg.Server.Port
	serverConfig.ReadTimeout = cfg.Server.ReadTimeout
	serverConfig.WriteTimeout = cfg.Server.WriteTimeout
	if cfg.Server.MaxFastWorkers > 0 {
		serverConfig.MaxFastWorkers = cfg.Server.MaxFastWorkers
	}
	if cfg.Server.MaxSlowWorkers > 0 {
		serverConfig.MaxSlowWorkers = cfg.Server.MaxSlowWorkers
	}

	if cfg.Server.ExternalPort != 0 {
		ext := external.NewServer(eng, external.ServerOptions{
			Host:          cfg.Server.Host,
			Port:          cfg.Server.ExternalPort,
			PromptEnabled: true,
		})
		if err := ext.Start(); err != nil {
			log.Fatal().Err(err).Msg("failed to start external protocol server")
		}
		defer ext.Stop()
	}

	server := api.NewServer(eng, serverConfig, version)

	if err := server.ListenAndServeWithGracefulShutdown(); err != nil {
		log.Error().Err(err).Msg("server error")
		eng.Close()
		os.Exit(1)
	}
}
