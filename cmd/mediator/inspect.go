package main

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/flowmediator/mediator/internal/config"
	"github.com/flowmediator/mediator/internal/state"
)

var inspectCmd = &cobra.Command{
	Use:   "inspect <workflow_id>",
	Short: "Print the persisted run state for a workflow_id",
	Args:  cobra.ExactArgs(1),
	RunE:  runInspect,
}

func runInspect(cmd *cobra.Command, args []string) error {
	workflowID := args[0]

	cfg, err := config.Load(cfgFile)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	store, err := state.Open(cfg.StatePath)
	if err != nil {
		return fmt.Errorf("opening state store %s: %w", cfg.StatePath, err)
	}
	defer store.Close()

	raw, err := store.Get(context.Background(), workflowID)
	if err != nil {
		return fmt.Errorf("run %s: %w", workflowID, err)
	}

	var pretty map[string]interface{}
	if err := json.Unmarshal(raw, &pretty); err != nil {
		return fmt.Errorf("decoding run %s: %w", workflowID, err)
	}
	out, err := json.MarshalIndent(pretty, "", "  ")
	if err != nil {
		return fmt.Errorf("formatting run %s: %w", workflowID, err)
	}
	fmt.Println(string(out))
	return nil
}
