package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/edgewatch/edgewatch/internal/app"
	"github.com/edgewatch/edgewatch/internal/constants"
	"github.com/edgewatch/edgewatch/internal/log"
	"github.com/edgewatch/edgewatch/pkg/config"
)

func main() {
	cfgFile := flag.String("config", "config.yaml", "Path to YAML configuration file")
	input := flag.String("input", "", "Optional witness list, one pubkey per line (default: full inventory)")
	output := flag.String("output", "", "Override the configured artifact directory")
	debug := flag.Bool("debug", false, "Turn on debugging output")
	showVersion := flag.Bool("version", false, "Show version and exit")
	flag.Parse()

	if *showVersion {
		fmt.Printf("edgewatch %s\n", constants.Version)
		os.Exit(0)
	}

	if err := log.Init(*debug); err != nil {
		fmt.Printf("Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	cfg, err := config.Load(*cfgFile)
	if err != nil {
		log.Errorf("Failed to load configuration: %v", err)
		os.Exit(1)
	}
	if *output != "" {
		cfg.OutputDir = *output
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	application := app.New(cfg, *input, log.GetSugaredLogger())
	if err := application.Run(ctx); err != nil {
		log.Errorf("Run failed: %v", err)
		os.Exit(1)
	}
}
