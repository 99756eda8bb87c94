package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/flowmediator/mediator/internal/workflow/loader"
)

var validateCmd = &cobra.Command{
	Use:   "validate <directory>",
	Short: "Validate every *.workflow.yaml definition in a directory",
	Args:  cobra.ExactArgs(1),
	RunE:  runValidate,
}

func runValidate(cmd *cobra.Command, args []string) error {
	dir := args[0]

	result, err := loader.New(dir).LoadAll()
	if err != nil {
		return fmt.Errorf("scanning %s: %w", dir, err)
	}

	for _, def := range result.Definitions {
		fmt.Printf("ok   %s (version %s, %d steps)\n", def.Name, def.Version, len(def.Steps))
	}
	for _, loadErr := range result.Errors {
		fmt.Fprintf(os.Stderr, "fail %s: %v\n", loadErr.FilePath, loadErr.Err)
	}

	if len(result.Errors) > 0 {
		return fmt.Errorf("%d definition(s) failed validation", len(result.Errors))
	}
	if len(result.Definitions) == 0 {
		fmt.Println("no *.workflow.yaml / *.workflow.yml files found")
	}
	return nil
}
