package main

import (
	"encoding/json"
	"fmt"
	"strings"
	"text/tabwriter"

	"querybot/internal/common/database"
	apperrors "querybot/internal/common/errors"
	"querybot/internal/reports"
	"querybot/pkg/registry"

	"github.com/spf13/cobra"
)

func newReportsCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "reports",
		Short: "Inspect the report template store",
	}
	cmd.AddCommand(newReportsListCommand(), newReportsValidateCommand(), newReportsResolveCommand())
	return cmd
}

func loadRegistry(args []string) (*registry.Registry, error) {
	if len(args) > 0 {
		return registry.LoadRegistry(args[0])
	}
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	return registry.LoadRegistry(cfg.Reports.Path)
}

func newReportsListCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "list [path]",
		Short: "List report ids and names",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			reg, err := loadRegistry(args)
			if err != nil {
				return err
			}

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "ID\tNAME\tVARIABLES")
			for _, tpl := range reg.All() {
				fmt.Fprintf(w, "%s\t%s\t%s\n", tpl.ID, tpl.Name, strings.Join(reports.Placeholders(tpl.Query), ", "))
			}
			return w.Flush()
		},
	}
}

func newReportsValidateCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "validate [path]",
		Short: "Check a report store against the template schema",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			reg, err := loadRegistry(args)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "OK: %d report templates\n", reg.Len())
			return nil
		},
	}
}

// resolve shows the statement a question would run; --run also executes it.
func newReportsResolveCommand() *cobra.Command {
	var execute bool
	cmd := &cobra.Command{
		Use:   "resolve <question>",
		Short: "Show which report a question selects and the query it fills in",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			reg, err := registry.LoadRegistry(cfg.Reports.Path)
			if err != nil {
				return err
			}
			m := reports.NewMatcher(reg, nil)
			question := strings.Join(args, " ")

			id := m.FindReportID(question)
			if id == "" {
				return fmt.Errorf("no report id found in %q", question)
			}
			if missing := m.MissingVariables(id, question); len(missing) > 0 {
				return apperrors.NewParameterMissingError(id, missing)
			}

			query, _ := m.FormatQuery(id, question)
			fmt.Fprintf(cmd.OutOrStdout(), "%s\n%s\n", id, query)
			if !execute {
				return nil
			}

			db, err := database.NewSQL(cfg.Database.SQL)
			if err != nil {
				return err
			}
			defer db.Close()

			rows, err := db.Execute(cmd.Context(), query)
			if err != nil {
				return apperrors.NewReportExecutionFailedError(id, err)
			}
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(rows.Maps())
		},
	}
	cmd.Flags().BoolVar(&execute, "run", false, "execute the filled query and print the rows as JSON")
	return cmd
}
