package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/soaringjerry/synapirt/internal/grm"
	"github.com/soaringjerry/synapirt/internal/prob"
	"github.com/soaringjerry/synapirt/internal/services"
)

func simulateCmd(g *globalFlags) *cobra.Command {
	var (
		people, items, categories, dims int
		seed                            uint64
		outPath, truthPath              string
	)
	cmd := &cobra.Command{
		Use:   "simulate",
		Short: "Draw a synthetic response matrix from the model prior",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := g.setup()
			if err != nil {
				return err
			}
			_, model, err := cfg.GRM()
			if err != nil {
				return err
			}
			if dims > 0 {
				model.Dimensions = dims
			}
			joint, err := grm.NewJoint(grm.Shape{People: people, Items: items, Dims: model.Dimensions, Categories: categories}, model)
			if err != nil {
				return err
			}
			params, x, err := joint.SimulateFromPrior(prob.NewRand(seed))
			if err != nil {
				return err
			}
			x.PersonIDs = make([]string, x.People)
			for n := range x.PersonIDs {
				x.PersonIDs[n] = fmt.Sprintf("r%04d", n+1)
			}
			x.ItemIDs = make([]string, x.Items)
			for i := range x.ItemIDs {
				x.ItemIDs[i] = fmt.Sprintf("item%02d", i+1)
			}
			b, err := services.ExportWideCSV(x)
			if err != nil {
				return err
			}
			if outPath == "" {
				_, err = cmd.OutOrStdout().Write(b)
			} else {
				err = os.WriteFile(outPath, b, 0o644)
			}
			if err != nil {
				return err
			}
			if truthPath != "" {
				tb, err := json.MarshalIndent(params, "", "  ")
				if err != nil {
					return err
				}
				if err := os.WriteFile(truthPath, tb, 0o644); err != nil {
					return err
				}
			}
			logger.Info("simulated responses", "people", people, "items", items, "categories", categories, "dims", model.Dimensions)
			return nil
		},
	}
	cmd.Flags().IntVar(&people, "people", 500, "Number of respondents")
	cmd.Flags().IntVar(&items, "items", 20, "Number of items")
	cmd.Flags().IntVar(&categories, "categories", 5, "Number of response categories")
	cmd.Flags().IntVar(&dims, "dims", 0, "Latent dimensions (default: model.dimensions)")
	cmd.Flags().Uint64Var(&seed, "seed", 1, "Random seed")
	cmd.Flags().StringVar(&outPath, "out", "", "Output CSV path (default: stdout)")
	cmd.Flags().StringVar(&truthPath, "truth", "", "Write the generating parameters as JSON")
	return cmd
}
