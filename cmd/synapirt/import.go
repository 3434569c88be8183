package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/soaringjerry/synapirt/internal/services"
)

func importCmd(g *globalFlags) *cobra.Command {
	var (
		data dataFlags
		name string
	)
	cmd := &cobra.Command{
		Use:   "import",
		Short: "Store a response CSV as a new scale",
		RunE: func(cmd *cobra.Command, args []string) error {
			if data.csvPath == "" || name == "" {
				return errors.New("--csv and --name are required")
			}
			cfg, logger, err := g.setup()
			if err != nil {
				return err
			}
			x, err := data.readCSV(data.csvPath, data.categories)
			if err != nil {
				return err
			}
			conn, store, err := openStore(cfg, logger)
			if err != nil {
				return err
			}
			defer closeDB(conn, logger)
			sc, err := services.ImportMatrix(store, name, x)
			if err != nil {
				return err
			}
			logger.Info("scale imported", "scale", sc.ID, "people", x.People, "items", x.Items)
			fmt.Fprintln(cmd.OutOrStdout(), sc.ID)
			return nil
		},
	}
	cmd.Flags().StringVar(&data.csvPath, "csv", "", "Wide response CSV")
	cmd.Flags().StringVar(&data.idColumn, "id-column", "", "Respondent id column (default: first column)")
	cmd.Flags().IntVar(&data.offset, "offset", 0, "Subtracted from every code")
	cmd.Flags().IntVar(&data.categories, "categories", 0, "Number of response categories (default: inferred)")
	cmd.Flags().StringVar(&name, "name", "", "Scale name")
	return cmd
}
