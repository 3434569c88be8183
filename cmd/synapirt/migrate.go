package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

func migrateCmd(g *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create or upgrade the sqlite database",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := g.setup()
			if err != nil {
				return err
			}
			conn, _, err := openStore(cfg, logger)
			if err != nil {
				return err
			}
			defer closeDB(conn, logger)
			fmt.Fprintf(cmd.OutOrStdout(), "database ready at %s\n", cfg.Storage.SQLitePath)
			return nil
		},
	}
}
