// Package main is the telemetry pipeline's single entry point: it wires
// the ingest loop and the detection loop into one process and runs both
// until an interrupt or termination signal arrives.
package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"telemetry-pipeline/internal/app"
	"telemetry-pipeline/internal/config"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load configuration: %v", err)
	}

	pipeline, err := app.New(cfg)
	if err != nil {
		log.Fatalf("failed to initialize pipeline: %v", err)
	}

	if err := pipeline.Start(); err != nil {
		log.Fatalf("failed to start pipeline: %v", err)
	}

	log.Println("telemetry pipeline started")

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	fmt.Println("shutting down telemetry pipeline...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := pipeline.Shutdown(ctx); err != nil {
		log.Printf("pipeline forced to shut down: %v", err)
		os.Exit(1)
	}

	fmt.Println("telemetry pipeline stopped")
}
