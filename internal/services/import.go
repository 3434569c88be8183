package services

import (
	"fmt"
	"strings"
	"time"

	"github.com/soaringjerry/synapirt/internal/grm"
)

type ScaleWriter interface {
	AddScale(sc *Scale) error
	AddItem(it *Item) error
	AddParticipant(p *Participant) error
	AddResponses(rs []*Response) error
}

// ImportMatrix stores x as a new scale with one item per column. Codes are
// taken as already reverse scored; missing cells are skipped.
func ImportMatrix(store ScaleWriter, name string, x *grm.ResponseMatrix) (*Scale, error) {
	if strings.TrimSpace(name) == "" {
		return nil, NewInvalidError("scale name required")
	}
	if err := x.Validate(); err != nil {
		return nil, NewInvalidError(err.Error())
	}
	now := time.Now().UTC()
	sc := &Scale{ID: "s" + shortID(7), Name: name, Points: x.Categories, CreatedAt: now}
	if err := store.AddScale(sc); err != nil {
		return nil, err
	}
	itemIDs := make([]string, x.Items)
	for i := range itemIDs {
		ext := idAt(x.ItemIDs, i)
		it := &Item{ID: fmt.Sprintf("%s-%s", sc.ID, ext), ScaleID: sc.ID, Stem: ext, Position: i}
		if err := store.AddItem(it); err != nil {
			return nil, err
		}
		itemIDs[i] = it.ID
	}
	var rs []*Response
	for n := 0; n < x.People; n++ {
		p := &Participant{ID: "p" + shortID(9), ScaleID: sc.ID, External: idAt(x.PersonIDs, n)}
		if err := store.AddParticipant(p); err != nil {
			return nil, err
		}
		for i := 0; i < x.Items; i++ {
			c := x.At(n, i)
			if c == grm.Missing {
				continue
			}
			rs = append(rs, &Response{ParticipantID: p.ID, ItemID: itemIDs[i], RawValue: c + 1, ScoreValue: c + 1, SubmittedAt: now})
		}
	}
	if err := store.AddResponses(rs); err != nil {
		return nil, err
	}
	return sc, nil
}
