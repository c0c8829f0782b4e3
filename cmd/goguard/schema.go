package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/MrEthical07/goGuard/pgstore"
)

var schemaCmd = &cobra.Command{
	Use:   "schema",
	Short: "Print or apply the PostgreSQL schema",
	RunE: func(cmd *cobra.Command, args []string) error {
		apply, _ := cmd.Flags().GetBool("apply")
		if !apply {
			fmt.Fprint(cmd.OutOrStdout(), pgstore.Schema)
			return nil
		}
		if cfg.DatabaseURL == "" {
			return fmt.Errorf("schema --apply needs GUARD_DATABASE_URL")
		}
		db, err := pgstore.Open(cfg.DatabaseURL)
		if err != nil {
			return err
		}
		defer db.Close()
		ctx, cancel := context.WithTimeout(cmd.Context(), cfg.ShutdownTimeout)
		defer cancel()
		if err := db.Migrate(ctx); err != nil {
			return fmt.Errorf("apply schema: %w", err)
		}
		fmt.Fprintln(cmd.OutOrStdout(), "schema applied")
		return nil
	},
}

func init() {
	schemaCmd.Flags().Bool("apply", false, "execute the DDL against GUARD_DATABASE_URL")
}
