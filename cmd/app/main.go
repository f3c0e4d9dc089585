package main

import (
	"flag"
	"fmt"
	"os"

	"AlphaNebula/internal/di"
	"AlphaNebula/pkg/config"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "nebula: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	configPath := flag.String("config", "config/config.yaml", "config file path")
	checkOnly := flag.Bool("check", false, "validate the configuration and exit")
	flag.Parse()

	cfg, err := config.LoadOrDefault(*configPath)
	if err != nil {
		return err
	}
	if *checkOnly {
		fmt.Printf("config ok: env=%s store=%s signals=%s cache=%s jobs=%s kafka=%t feed=%t\n",
			cfg.Environment, cfg.Store.Driver, cfg.Signals.Backend, cfg.Cache.Backend,
			cfg.Jobs.Backend, cfg.Kafka.Enabled, cfg.MentionFeed.Enabled)
		return nil
	}

	app, cleanup, err := di.InitializeApp(cfg)
	if err != nil {
		return fmt.Errorf("initialize: %w", err)
	}
	defer cleanup()
	return app.Run()
}
