package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/soaringjerry/synapirt/internal/config"
	"github.com/soaringjerry/synapirt/internal/grm"
	"github.com/soaringjerry/synapirt/internal/services"
)

// dataFlags select a response source shared by calibrate and crossval.
type dataFlags struct {
	csvPath    string
	scaleID    string
	idColumn   string
	offset     int
	categories int
	seed       uint64
	mcmc       bool
}

func (d *dataFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVar(&d.csvPath, "csv", "", "Wide response CSV, one row per respondent")
	cmd.Flags().StringVar(&d.idColumn, "id-column", "", "Respondent id column (default: first column)")
	cmd.Flags().IntVar(&d.offset, "offset", 0, "Subtracted from every code, e.g. 1 for 1-based Likert files")
	cmd.Flags().IntVar(&d.categories, "categories", 0, "Number of response categories (default: inferred)")
	cmd.Flags().Uint64Var(&d.seed, "seed", 0, "Random seed; overrides scoring.seed")
	cmd.Flags().BoolVar(&d.mcmc, "mcmc", false, "Refine the variational fit with HMC")
}

func (d *dataFlags) schedule(cmd *cobra.Command, cfg *config.Config) (services.Schedule, error) {
	sched, err := cfg.Schedule()
	if err != nil {
		return sched, err
	}
	if d.categories > 0 {
		sched.Model.Categories = d.categories
	}
	if cmd.Flags().Changed("seed") {
		sched.Seed = d.seed
	}
	if d.mcmc && sched.MCMC == nil {
		m := cfg.MCMC.Config
		if err := m.Validate(); err != nil {
			return sched, err
		}
		sched.MCMC = &m
	}
	return sched, nil
}

func (d *dataFlags) readCSV(path string, categories int) (*grm.ResponseMatrix, error) {
	return readMatrix(path, services.CSVOptions{IDColumn: d.idColumn, Offset: d.offset, Categories: categories})
}

func signalContext(parent context.Context) (context.Context, context.CancelFunc) {
	return signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
}

func calibrateCmd(g *globalFlags) *cobra.Command {
	var (
		data      dataFlags
		outDir    string
		scorePath string
	)
	cmd := &cobra.Command{
		Use:   "calibrate",
		Short: "Calibrate a graded response model",
		Long: `Calibrate fits the configured model to a response CSV (--csv) or to a
scale stored in the database (--scale). The run summary is printed as JSON;
--out writes trait and item estimates as CSV, and --score scores the
respondents of a second CSV against the fresh calibration.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if (data.csvPath == "") == (data.scaleID == "") {
				return errors.New("exactly one of --csv or --scale is required")
			}
			cfg, logger, err := g.setup()
			if err != nil {
				return err
			}
			sched, err := data.schedule(cmd, cfg)
			if err != nil {
				return err
			}
			ctx, stop := signalContext(cmd.Context())
			defer stop()

			svc, res, err := runCalibration(ctx, &data, cfg, sched, logger)
			if err != nil {
				return err
			}
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			if err := enc.Encode(res.Run); err != nil {
				return err
			}
			if outDir != "" {
				if err := writeExports(svc, res.Run.ID, outDir); err != nil {
					return err
				}
				logger.Info("estimates written", "dir", outDir)
			}
			if scorePath != "" {
				return scoreFile(cmd.OutOrStdout(), svc, res, &data, scorePath, outDir, sched.Seed)
			}
			return nil
		},
	}
	data.register(cmd)
	cmd.Flags().StringVar(&data.scaleID, "scale", "", "Stored scale id to calibrate")
	cmd.Flags().StringVar(&outDir, "out", "", "Directory for traits.csv, items.csv and scores.csv")
	cmd.Flags().StringVar(&scorePath, "score", "", "CSV of new respondents to score")
	return cmd
}

func runCalibration(ctx context.Context, data *dataFlags, cfg *config.Config, sched services.Schedule, logger *slog.Logger) (*services.CalibrationService, *services.CalibrationResult, error) {
	if data.csvPath != "" {
		x, err := data.readCSV(data.csvPath, sched.Model.Categories)
		if err != nil {
			return nil, nil, err
		}
		svc := services.NewCalibrationService(nil, logger)
		res, err := svc.CalibrateMatrix(ctx, x, sched)
		return svc, res, err
	}
	conn, store, err := openStore(cfg, logger)
	if err != nil {
		return nil, nil, err
	}
	defer closeDB(conn, logger)
	svc := services.NewCalibrationService(store, logger)
	res, err := svc.CalibrateScale(ctx, data.scaleID, sched)
	return svc, res, err
}

func writeExports(svc *services.CalibrationService, id, dir string) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	for _, format := range []string{"traits", "items"} {
		b, err := svc.Export(id, format)
		if err != nil {
			return err
		}
		if err := os.WriteFile(filepath.Join(dir, format+".csv"), b, 0o644); err != nil {
			return err
		}
	}
	return nil
}

func scoreFile(stdout io.Writer, svc *services.CalibrationService, res *services.CalibrationResult, data *dataFlags, path, outDir string, seed uint64) error {
	categories, err := svc.Categories(res.Run.ID)
	if err != nil {
		return err
	}
	x, err := data.readCSV(path, categories)
	if err != nil {
		return err
	}
	scores, err := svc.Score(res.Run.ID, x, seed)
	if err != nil {
		return err
	}
	b, err := services.ExportScoresCSV(x.PersonIDs, scores)
	if err != nil {
		return err
	}
	if outDir == "" {
		_, err = stdout.Write(b)
		return err
	}
	return os.WriteFile(filepath.Join(outDir, "scores.csv"), b, 0o644)
}

func crossvalCmd(g *globalFlags) *cobra.Command {
	var (
		data  dataFlags
		folds int
	)
	cmd := &cobra.Command{
		Use:   "crossval",
		Short: "K-fold cross-validation of held-out loss",
		RunE: func(cmd *cobra.Command, args []string) error {
			if data.csvPath == "" {
				return errors.New("--csv is required")
			}
			cfg, logger, err := g.setup()
			if err != nil {
				return err
			}
			sched, err := data.schedule(cmd, cfg)
			if err != nil {
				return err
			}
			x, err := data.readCSV(data.csvPath, sched.Model.Categories)
			if err != nil {
				return err
			}
			ctx, stop := signalContext(cmd.Context())
			defer stop()
			report, err := services.CrossValidate(ctx, x, sched, folds, logger)
			if err != nil {
				return err
			}
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(report)
		},
	}
	data.register(cmd)
	cmd.Flags().IntVar(&folds, "folds", 10, "Number of folds")
	return cmd
}

func readMatrix(path string, opts services.CSVOptions) (*grm.ResponseMatrix, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	x, err := services.ReadWideCSV(f, opts)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return x, nil
}
