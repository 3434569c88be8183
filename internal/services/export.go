package services

import (
	"bytes"
	"encoding/csv"
	"strconv"

	"github.com/soaringjerry/synapirt/internal/grm"
)

func ftoa(v float64) string { return strconv.FormatFloat(v, 'g', 6, 64) }

func idAt(ids []string, n int) string {
	if n < len(ids) {
		return ids[n]
	}
	return strconv.Itoa(n)
}

// ExportWideCSV renders a response matrix with one row per respondent and
// one column per item. Missing cells are blank.
func ExportWideCSV(x *grm.ResponseMatrix) ([]byte, error) {
	buf := &bytes.Buffer{}
	w := csv.NewWriter(buf)
	header := make([]string, 0, 1+x.Items)
	header = append(header, "participant_id")
	for i := 0; i < x.Items; i++ {
		header = append(header, idAt(x.ItemIDs, i))
	}
	_ = w.Write(header)
	for n := 0; n < x.People; n++ {
		row := make([]string, 0, 1+x.Items)
		row = append(row, idAt(x.PersonIDs, n))
		for _, c := range x.Row(n) {
			if c < 0 {
				row = append(row, "")
			} else {
				row = append(row, strconv.Itoa(c))
			}
		}
		if err := w.Write(row); err != nil {
			return nil, err
		}
	}
	w.Flush()
	return buf.Bytes(), w.Error()
}

// ExportTraitsCSV renders posterior trait means and sds per respondent.
func ExportTraitsCSV(cal *grm.Calibration) ([]byte, error) {
	people, dims := cal.Traits.Dims()
	buf := &bytes.Buffer{}
	w := csv.NewWriter(buf)
	_ = w.Write([]string{"participant_id", "dimension", "mean", "sd"})
	for n := 0; n < people; n++ {
		for d := 0; d < dims; d++ {
			rec := []string{idAt(cal.PersonIDs, n), strconv.Itoa(d), ftoa(cal.Traits.At(n, d)), ftoa(cal.TraitsSD.At(n, d))}
			if err := w.Write(rec); err != nil {
				return nil, err
			}
		}
	}
	w.Flush()
	return buf.Bytes(), w.Error()
}

// ExportItemsCSV renders discriminations and thresholds per item and
// dimension. Threshold columns are named threshold_1..threshold_{K-1}.
func ExportItemsCSV(cal *grm.Calibration) ([]byte, error) {
	dims, items := cal.Discriminations.Dims()
	levels := cal.Cutpoints.Levels
	buf := &bytes.Buffer{}
	w := csv.NewWriter(buf)
	header := []string{"item_id", "dimension", "discrimination", "discrimination_sd"}
	for j := 1; j <= levels; j++ {
		header = append(header, "threshold_"+strconv.Itoa(j))
	}
	_ = w.Write(header)
	for i := 0; i < items; i++ {
		for d := 0; d < dims; d++ {
			rec := []string{idAt(cal.ItemIDs, i), strconv.Itoa(d), ftoa(cal.Discriminations.At(d, i)), ftoa(cal.DiscriminationsSD.At(d, i))}
			for _, b := range cal.Cutpoints.Item(d, i) {
				rec = append(rec, ftoa(b))
			}
			if err := w.Write(rec); err != nil {
				return nil, err
			}
		}
	}
	w.Flush()
	return buf.Bytes(), w.Error()
}

// ExportScoresCSV renders importance-sampling scores with their effective
// sample sizes.
func ExportScoresCSV(personIDs []string, s *grm.Scores) ([]byte, error) {
	people, dims := s.Mean.Dims()
	buf := &bytes.Buffer{}
	w := csv.NewWriter(buf)
	_ = w.Write([]string{"participant_id", "dimension", "mean", "sd", "ess"})
	for n := 0; n < people; n++ {
		for d := 0; d < dims; d++ {
			rec := []string{idAt(personIDs, n), strconv.Itoa(d), ftoa(s.Mean.At(n, d)), ftoa(s.SD.At(n, d)), ftoa(s.ESS[n])}
			if err := w.Write(rec); err != nil {
				return nil, err
			}
		}
	}
	w.Flush()
	return buf.Bytes(), w.Error()
}
