package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newIndexCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "index",
		Short: "Manage the schema index used for table selection",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "refresh",
		Short: "Describe every live table and rebuild the schema index",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			a, err := newApp(cmd.Context(), cfg, 3)
			if err != nil {
				return err
			}
			defer a.Close()

			n, err := a.indexer.Refresh(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Indexed %d tables into %s (%s)\n", n, cfg.Index.SchemaIndex, cfg.Index.Backend)
			return nil
		},
	})
	return cmd
}
