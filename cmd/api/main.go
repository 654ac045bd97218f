package main

import (
	"context"
	"log"
	"os"

	"github.com/vadim/neo-gateway/internal/app"
	"github.com/vadim/neo-gateway/internal/config"
)

func main() {
	// CONFIG_PATH selects a YAML file; otherwise everything comes from the environment
	cfg, err := config.Load(os.Getenv("CONFIG_PATH"))
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	ctx := context.Background()

	gw, err := app.NewApp(ctx, cfg)
	if err != nil {
		log.Fatalf("failed to initialize gateway: %v", err)
	}

	// Blocks until SIGINT/SIGTERM, then drains in-flight pipelines
	if err := gw.Run(ctx); err != nil {
		log.Printf("gateway error: %v", err)
		os.Exit(1)
	}
}
