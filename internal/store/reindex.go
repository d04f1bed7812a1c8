package store

import (
	"context"
	"fmt"
	"sort"

	"kinship/internal/models"
)

var prototypes = map[models.Kind]func() models.Entity{
	models.KindProfile:       func() models.Entity { return &models.Profile{} },
	models.KindBlock:         func() models.Entity { return &models.Block{} },
	models.KindFriendRequest: func() models.Entity { return &models.FriendRequest{} },
	models.KindFriendship:    func() models.Entity { return &models.Friendship{} },
	models.KindPost:          func() models.Entity { return &models.Post{} },
	models.KindComment:       func() models.Entity { return &models.Comment{} },
	models.KindLike:          func() models.Entity { return &models.Like{} },
}

// Kinds lists every entity kind, sorted.
func Kinds() []models.Kind {
	out := make([]models.Kind, 0, len(prototypes))
	for k := range prototypes {
		out = append(out, k)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

func indexNamesFor(kind models.Kind) []string {
	var names []string
	for _, idx := range byKind[kind] {
		names = append(names, idx.Name)
	}
	return names
}

// Reindex drops and rebuilds every index row of kind from its records in one
// transaction. It returns the number of rows written.
func (s *Store) Reindex(ctx context.Context, kind models.Kind) (int, error) {
	proto, ok := prototypes[kind]
	if !ok {
		return 0, models.NewValidationError(fmt.Sprintf("unknown kind %q", kind))
	}
	written := 0
	err := s.Update(ctx, func(tx *Tx) error {
		written = 0
		if err := tx.db.Where("index_name IN ?", indexNamesFor(kind)).Delete(&models.IndexEntry{}).Error; err != nil {
			return err
		}
		records, err := tx.all(proto())
		if err != nil {
			return err
		}
		for _, rec := range records {
			rows, err := entries(rec)
			if err != nil {
				return err
			}
			if len(rows) == 0 {
				continue
			}
			if err := tx.db.CreateInBatches(rows, 200).Error; err != nil {
				return translate(err)
			}
			written += len(rows)
		}
		return nil
	})
	if err == nil {
		s.log.LogWrite(ctx, "reindex", map[string]any{"kind": string(kind), "entries": written})
	}
	return written, err
}

// Problem is one discrepancy found by Verify.
type Problem struct {
	Kind     models.Kind
	Index    string
	EntityID string
	// Dangling entries point at a missing record; otherwise the record lacks
	// an expected entry or carries a stale one.
	Dangling bool
	Detail   string
}

func (p Problem) String() string {
	return fmt.Sprintf("%s %s %s: %s", p.Kind, p.Index, p.EntityID, p.Detail)
}

// Verify compares every index row of kind against the rows its records
// derive. It reads one snapshot and changes nothing.
func (s *Store) Verify(ctx context.Context, kind models.Kind) ([]Problem, error) {
	proto, ok := prototypes[kind]
	if !ok {
		return nil, models.NewValidationError(fmt.Sprintf("unknown kind %q", kind))
	}
	var problems []Problem
	err := s.View(ctx, func(tx *Tx) error {
		problems = nil
		var stored []models.IndexEntry
		if err := tx.db.Where("index_name IN ?", indexNamesFor(kind)).Find(&stored).Error; err != nil {
			return err
		}
		records, err := tx.all(proto())
		if err != nil {
			return err
		}

		type slot struct {
			index string
			key   string
		}
		actual := make(map[slot]string, len(stored))
		for _, e := range stored {
			actual[slot{e.IndexName, string(e.Key)}] = e.EntityID
		}
		present := make(map[string]bool, len(records))
		for _, rec := range records {
			id := rec.Base().ID
			present[id] = true
			rows, err := entries(rec)
			if err != nil {
				return err
			}
			for _, row := range rows {
				k := slot{row.IndexName, string(row.Key)}
				owner, ok := actual[k]
				switch {
				case !ok:
					problems = append(problems, Problem{Kind: kind, Index: row.IndexName, EntityID: id, Detail: "missing entry"})
				case owner != id:
					problems = append(problems, Problem{Kind: kind, Index: row.IndexName, EntityID: id, Detail: "entry owned by " + owner})
				}
				delete(actual, k)
			}
		}
		for k, owner := range actual {
			p := Problem{Kind: kind, Index: k.index, EntityID: owner, Detail: "stale entry"}
			if !present[owner] {
				p.Dangling = true
				p.Detail = "entry references missing record"
			}
			problems = append(problems, p)
		}
		sort.Slice(problems, func(i, j int) bool {
			a, b := problems[i], problems[j]
			if a.Index != b.Index {
				return a.Index < b.Index
			}
			if a.EntityID != b.EntityID {
				return a.EntityID < b.EntityID
			}
			return a.Detail < b.Detail
		})
		return nil
	})
	return problems, err
}
