// Command querybot answers natural language questions against a SQL database.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var configPath string

func newRootCommand() *cobra.Command {
	root := &cobra.Command{
		Use:           "querybot",
		Short:         "Answer questions about a SQL database in plain language",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVarP(&configPath, "config", "c", "", "path to config file (default: configs/config.yaml)")

	root.AddCommand(
		newServeCommand(),
		newAskCommand(),
		newReportsCommand(),
		newIndexCommand(),
	)
	return root
}

func main() {
	if err := newRootCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
