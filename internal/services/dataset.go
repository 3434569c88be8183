package services

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"

	"github.com/soaringjerry/synapirt/internal/grm"
)

// CSVOptions describes a wide response file: one row per respondent, one
// column per item, plus an id column.
type CSVOptions struct {
	// IDColumn names the respondent id column. Empty means the first column.
	IDColumn string
	// Offset is subtracted from every code, e.g. 1 for 1-based Likert files.
	Offset int
	// Categories fixes K; 0 infers it from the data.
	Categories int
}

var missingTokens = map[string]bool{"": true, "na": true, "nan": true, "null": true, ".": true}

// ReadWideCSV parses a wide response file into a matrix. Blank or NA cells
// and negative codes are missing.
func ReadWideCSV(r io.Reader, opts CSVOptions) (*grm.ResponseMatrix, error) {
	cr := csv.NewReader(r)
	cr.TrimLeadingSpace = true
	header, err := cr.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, NewInvalidError("empty csv")
		}
		return nil, err
	}
	idCol := 0
	if opts.IDColumn != "" {
		idCol = -1
		for i, h := range header {
			if strings.TrimSpace(h) == opts.IDColumn {
				idCol = i
				break
			}
		}
		if idCol < 0 {
			return nil, NewInvalidError(fmt.Sprintf("id column %q not found", opts.IDColumn))
		}
	}
	var itemIDs []string
	for i, h := range header {
		if i != idCol {
			itemIDs = append(itemIDs, strings.TrimSpace(h))
		}
	}
	if len(itemIDs) == 0 {
		return nil, NewInvalidError("csv has no item columns")
	}

	var rows [][]int
	var personIDs []string
	for line := 2; ; line++ {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, NewInvalidError(fmt.Sprintf("line %d: %v", line, err))
		}
		row := make([]int, 0, len(itemIDs))
		for i, cell := range rec {
			if i == idCol {
				personIDs = append(personIDs, strings.TrimSpace(cell))
				continue
			}
			cell = strings.TrimSpace(cell)
			if missingTokens[strings.ToLower(cell)] {
				row = append(row, grm.Missing)
				continue
			}
			v, err := strconv.Atoi(cell)
			if err != nil {
				return nil, NewInvalidError(fmt.Sprintf("line %d column %q: %q is not an integer", line, header[i], cell))
			}
			if v -= opts.Offset; v < 0 {
				v = grm.Missing
			}
			row = append(row, v)
		}
		rows = append(rows, row)
	}
	if len(rows) == 0 {
		return nil, NewInvalidError("csv has no respondents")
	}
	x, err := grm.NewResponseMatrix(rows, opts.Categories)
	if err != nil {
		return nil, NewInvalidError(err.Error())
	}
	x.PersonIDs, x.ItemIDs = personIDs, itemIDs
	return x, nil
}

// MatrixFromResponses builds a response matrix for a scale's items from
// stored answers. Items keep their position order; participants are sorted
// by id. Unanswered cells are missing.
func MatrixFromResponses(sc *Scale, items []*Item, responses []*Response) (*grm.ResponseMatrix, error) {
	if len(items) == 0 {
		return nil, NewInvalidError("scale has no items")
	}
	items = append([]*Item(nil), items...)
	sort.SliceStable(items, func(i, j int) bool {
		if items[i].Position == items[j].Position {
			return items[i].ID < items[j].ID
		}
		return items[i].Position < items[j].Position
	})
	col := make(map[string]int, len(items))
	itemIDs := make([]string, len(items))
	for i, it := range items {
		col[it.ID] = i
		itemIDs[i] = it.ID
	}
	byPerson := map[string][]int{}
	for _, r := range responses {
		i, ok := col[r.ItemID]
		if !ok {
			continue
		}
		row := byPerson[r.ParticipantID]
		if row == nil {
			row = make([]int, len(items))
			for k := range row {
				row[k] = grm.Missing
			}
			byPerson[r.ParticipantID] = row
		}
		// ScoreValue is already reverse scored.
		row[i] = RecodeLikert(r.ScoreValue, sc.Points, false)
	}
	if len(byPerson) == 0 {
		return nil, NewInvalidError("scale has no responses")
	}
	pids := make([]string, 0, len(byPerson))
	for pid := range byPerson {
		pids = append(pids, pid)
	}
	sort.Strings(pids)
	rows := make([][]int, len(pids))
	for n, pid := range pids {
		rows[n] = byPerson[pid]
	}
	x, err := grm.NewResponseMatrix(rows, sc.Points)
	if err != nil {
		return nil, NewInvalidError(err.Error())
	}
	x.PersonIDs, x.ItemIDs = pids, itemIDs
	return x, nil
}
