package main

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"querybot/internal/models"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var (
	askFormat      string
	askSession     string
	askInteractive bool
	askJSON        bool
)

func newAskCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "ask [question]",
		Short: "Ask a question, or start an interactive session with -i",
		RunE: func(cmd *cobra.Command, args []string) error {
			if !askInteractive && len(args) == 0 {
				return fmt.Errorf("a question is required unless --interactive is set")
			}

			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			a, err := newApp(cmd.Context(), cfg, 3)
			if err != nil {
				return err
			}
			defer a.Close()

			if err := a.indexer.EnsureIndexed(cmd.Context()); err != nil {
				a.zap.Warn("Schema indexing failed", zap.Error(err))
			}

			if askInteractive {
				return interactive(cmd.Context(), a, cmd.InOrStdin(), cmd.OutOrStdout())
			}
			res := a.bot.Ask(cmd.Context(), strings.Join(args, " "), askFormat, askSession)
			return printResult(cmd.OutOrStdout(), res)
		},
	}

	cmd.Flags().StringVarP(&askFormat, "format", "f", "", "how the answer should be formatted")
	cmd.Flags().StringVarP(&askSession, "session", "s", "cli", "session id for conversation memory")
	cmd.Flags().BoolVarP(&askInteractive, "interactive", "i", false, "read questions from stdin until 'exit'")
	cmd.Flags().BoolVar(&askJSON, "json", false, "print the full result as JSON")
	return cmd
}

func interactive(ctx context.Context, a *app, in io.Reader, out io.Writer) error {
	fmt.Fprintf(out, "querybot interactive mode. %d reports loaded. Type 'exit' to quit.\n", a.registry.Len())

	scanner := bufio.NewScanner(in)
	for {
		fmt.Fprint(out, "\n> ")
		if !scanner.Scan() {
			return scanner.Err()
		}

		question := strings.TrimSpace(scanner.Text())
		switch strings.ToLower(question) {
		case "":
			continue
		case "exit", "quit":
			return nil
		}

		if err := printResult(out, a.bot.Ask(ctx, question, askFormat, askSession)); err != nil {
			return err
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
	}
}

func printResult(out io.Writer, res *models.QueryResult) error {
	if askJSON {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(res)
	}

	fmt.Fprintln(out, res.Answer)
	for _, q := range res.SQLQueries {
		fmt.Fprintf(out, "  sql: %s\n", q)
	}
	if res.Cached {
		fmt.Fprintln(out, "  (cached)")
	}
	if res.Error != "" {
		fmt.Fprintf(os.Stderr, "  warning: %s\n", res.Error)
	}
	return nil
}
