// Command mediator runs the event-driven workflow mediator: it loads
// workflow definitions, provisions their topics on the message bus, and
// dispatches messages to the run-time orchestration engine. Command
// structure grounded on station/cmd/main/main.go's cobra root command.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var cfgFile string

var rootCmd = &cobra.Command{
	Use:   "mediator",
	Short: "Event-driven workflow mediator",
	Long:  "mediator dispatches bus messages through declarative DAG workflow definitions, persisting run state and bounded retry across a message bus.",
}

func main() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "path to mediator config file (default: ./mediator.yaml)")
	rootCmd.AddCommand(serveCmd, validateCmd, inspectCmd)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
