package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/flowmediator/mediator/internal/actions"
	"github.com/flowmediator/mediator/internal/bus"
	"github.com/flowmediator/mediator/internal/config"
	"github.com/flowmediator/mediator/internal/mediator"
	"github.com/flowmediator/mediator/internal/runtime"
	"github.com/flowmediator/mediator/internal/state"
	"github.com/flowmediator/mediator/internal/telemetry"
	"github.com/flowmediator/mediator/internal/workflow/loader"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Load workflow definitions and start dispatching bus messages",
	RunE:  runServe,
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	cfg, err := config.Load(cfgFile)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	result, err := loader.New(cfg.DefinitionsDir).LoadAll()
	if err != nil {
		return fmt.Errorf("scanning %s: %w", cfg.DefinitionsDir, err)
	}
	for _, loadErr := range result.Errors {
		fmt.Fprintf(os.Stderr, "mediator: skipping invalid definition: %v\n", loadErr)
	}
	if len(result.Definitions) == 0 {
		return fmt.Errorf("no valid workflow definitions found in %s", cfg.DefinitionsDir)
	}

	store, err := state.Open(cfg.StatePath)
	if err != nil {
		return fmt.Errorf("opening state store %s: %w", cfg.StatePath, err)
	}
	defer store.Close()

	var shutdownTelemetry telemetry.Shutdown
	var runTelemetry *telemetry.Telemetry
	if cfg.TelemetryEnabled {
		shutdownTelemetry, err = telemetry.InstallProvider(ctx, telemetry.ProviderConfig{
			ServiceName:  cfg.TelemetryServiceName,
			OTLPEndpoint: cfg.OTLPEndpoint,
		})
		if err != nil {
			return fmt.Errorf("installing telemetry provider: %w", err)
		}
		runTelemetry, err = telemetry.New()
		if err != nil {
			return fmt.Errorf("initializing telemetry instruments: %w", err)
		}
	}

	b, err := bus.Connect(bus.Options{
		URL:           cfg.NATSURL,
		Stream:        cfg.NATSStream,
		ConsumerGroup: cfg.NATSConsumerGroup,
		Embedded:      cfg.NATSEmbedded,
		AckWait:       cfg.NATSAckWait,
	})
	if err != nil {
		return fmt.Errorf("connecting to bus: %w", err)
	}

	engine := runtime.NewEngine(store, b, actions.NewSuccessRegistry(), actions.NewFailureRegistry())
	if runTelemetry != nil {
		engine = engine.WithTelemetry(runTelemetry)
	}

	m, err := mediator.New(result.Definitions, b, engine, store)
	if err != nil {
		b.Close()
		return fmt.Errorf("building mediator: %w", err)
	}

	if err := m.Start(ctx); err != nil {
		m.Close()
		return fmt.Errorf("starting mediator: %w", err)
	}

	fmt.Printf("mediator: dispatching %d workflow(s) from %s\n", len(result.Definitions), cfg.DefinitionsDir)

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt, syscall.SIGTERM)
	<-sig
	fmt.Println("mediator: shutdown signal received, draining")

	cancel()

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		m.Close()
	}()

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	select {
	case <-done:
	case <-shutdownCtx.Done():
		fmt.Fprintln(os.Stderr, "mediator: shutdown timed out")
	}

	if shutdownTelemetry != nil {
		if err := shutdownTelemetry(shutdownCtx); err != nil {
			fmt.Fprintf(os.Stderr, "mediator: telemetry shutdown: %v\n", err)
		}
	}

	return nil
}
