package services

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	"github.com/soaringjerry/synapirt/internal/grm"
	"github.com/soaringjerry/synapirt/internal/prob"
	"gonum.org/v1/gonum/stat"
)

type FoldResult struct {
	Fold        int     `json:"fold"`
	Train       int     `json:"train"`
	Test        int     `json:"test"`
	TrainLoss   float64 `json:"train_loss"`
	HeldOutLoss float64 `json:"held_out_loss"`
	MeanESS     float64 `json:"mean_ess"`
}

type CrossValidationReport struct {
	Folds      []FoldResult `json:"folds"`
	MeanLoss   float64      `json:"mean_loss"`
	StdDevLoss float64      `json:"std_loss"`
}

// CrossValidate splits respondents into contiguous folds in row order,
// calibrates on all other folds and scores each held-out fold. Every fold
// shares the category count of x.
func CrossValidate(ctx context.Context, x *grm.ResponseMatrix, sched Schedule, folds int, logger *slog.Logger) (*CrossValidationReport, error) {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	if folds < 2 || folds > x.People {
		return nil, NewInvalidError(fmt.Sprintf("folds must be in [2, %d], got %d", x.People, folds))
	}
	if err := sched.validate(); err != nil {
		return nil, err
	}
	if sched.Model.Categories == 0 {
		sched.Model.Categories = x.Categories
	}

	report := &CrossValidationReport{}
	losses := make([]float64, 0, folds)
	for f := 0; f < folds; f++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		lo, hi := f*x.People/folds, (f+1)*x.People/folds
		var train, test []int
		for n := 0; n < x.People; n++ {
			if n >= lo && n < hi {
				test = append(test, n)
			} else {
				train = append(train, n)
			}
		}
		fl := logger.With("fold", f+1)
		cal, err := fitSchedule(ctx, x.Subset(train), sched, fl)
		if err != nil {
			return nil, classify(fmt.Errorf("fold %d: %w", f+1, err))
		}
		scorer, err := cal.Scorer(sched.Draws)
		if err != nil {
			return nil, classify(err)
		}
		held := x.Subset(test)
		scores, err := scorer.Score(held, prob.NewRand(sched.Seed+uint64(f)+1))
		if err != nil {
			return nil, classify(err)
		}
		loss, err := scorer.HeldOutLoss(held, scores)
		if err != nil {
			return nil, classify(err)
		}
		res := FoldResult{
			Fold:        f + 1,
			Train:       len(train),
			Test:        len(test),
			HeldOutLoss: loss,
			MeanESS:     stat.Mean(scores.ESS, nil),
		}
		if len(cal.Loss) > 0 {
			res.TrainLoss = cal.Loss[len(cal.Loss)-1]
		}
		fl.Info("fold scored", "held_out_loss", loss, "mean_ess", res.MeanESS)
		report.Folds = append(report.Folds, res)
		losses = append(losses, loss)
	}
	report.MeanLoss, report.StdDevLoss = stat.PopMeanStdDev(losses, nil)
	return report, nil
}
