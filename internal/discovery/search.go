package discovery

import (
	"bytes"
	"context"
	"sort"
	"strings"

	"kinship/internal/models"
	"kinship/internal/observability"
	"kinship/internal/relationship"
	"kinship/internal/store"
)

// Field selects which text index a search reads.
type Field string

const (
	FieldName   Field = "name"
	FieldHandle Field = "handle"
	FieldAny    Field = "any"
)

func (f Field) valid() bool {
	switch f {
	case FieldName, FieldHandle, FieldAny, "":
		return true
	}
	return false
}

// indexes returns the text indexes of pl that f reads.
func (f Field) indexes(pl plan) []string {
	switch f {
	case FieldName:
		return []string{pl.name}
	case FieldHandle:
		return []string{pl.handle}
	default:
		return []string{pl.name, pl.handle}
	}
}

// Search finds profiles whose display name or handle has a token starting
// with each query token. The longest query token drives a prefix scan of the
// text index sharing the filter prefix FindCandidates would scan; the rest are
// checked against the loaded profile. Matches obey
// the same visibility rules as FindCandidates and sort by last activity,
// newest first, then user id.
func (e *Engine) Search(ctx context.Context, viewer, query string, field Field, filters Filters, cursor string, pageSize int) (*models.Page[models.ProfileSummary], error) {
	ctx, span := observability.StartEngineSpan(ctx, "discovery", "search")
	var err error
	defer func() { observability.EndSpan(span, err) }()

	if pageSize <= 0 {
		err = models.NewValidationError("Page size must be positive")
		return nil, err
	}
	if !field.valid() {
		err = models.NewValidationError("Field must be one of name, handle or any")
		return nil, err
	}
	tokens := store.Tokens(query)
	if len(tokens) == 0 {
		err = models.NewValidationError("Query must contain a letter or digit")
		return nil, err
	}
	if filters, err = filters.Normalize(); err != nil {
		return nil, err
	}

	scope := "search:" + string(field)
	filterKey := filters.key() + "&q=" + strings.Join(tokens, " ")
	after, err := store.DecodeCursor(cursor, scope, false, filterKey)
	if err != nil {
		return nil, err
	}

	page := &models.Page[models.ProfileSummary]{Items: []models.ProfileSummary{}}
	err = e.store.View(ctx, func(tx *store.Tx) error {
		me, err := loadViewer(tx, viewer)
		if err != nil {
			return err
		}
		pl := choosePlan(me, filters)
		if pl.empty {
			return nil
		}
		excluded, err := relationship.Excluded(tx, viewer)
		if err != nil {
			return err
		}

		lead := tokens[0]
		for _, t := range tokens[1:] {
			if len(t) > len(lead) {
				lead = t
			}
		}

		prefix := append(append([]any{}, pl.prefix...), store.Prefix(lead))
		seen := map[string]struct{}{}
		var ids []string
		indexes := field.indexes(pl)
		for _, index := range indexes {
			rows, err := tx.ScanAfter(index, prefix, nil, e.scanLimit, false)
			if err != nil {
				return err
			}
			observability.DiscoveryScanned.WithLabelValues(index).Observe(float64(len(rows)))
			for _, r := range rows {
				if _, dup := seen[r.EntityID]; !dup {
					seen[r.EntityID] = struct{}{}
					ids = append(ids, r.EntityID)
				}
			}
		}
		profiles, err := store.Fetch[models.Profile](tx, indexes[0], ids)
		if err != nil {
			return err
		}

		type hit struct {
			key     []byte
			profile *models.Profile
		}
		var hits []hit
		now := tx.Now()
		for _, p := range profiles {
			if !eligible(now, me, p, excluded, filters) || !matchesAll(p, field, tokens) {
				continue
			}
			k, err := searchKey(p)
			if err != nil {
				return err
			}
			if after != nil && bytes.Compare(k, after) <= 0 {
				continue
			}
			hits = append(hits, hit{key: k, profile: p})
		}
		sort.Slice(hits, func(i, j int) bool { return bytes.Compare(hits[i].key, hits[j].key) < 0 })

		if len(hits) > pageSize {
			hits = hits[:pageSize]
			page.NextCursor = store.EncodeCursor(scope, hits[pageSize-1].key, false, filterKey)
		}
		for _, h := range hits {
			page.Items = append(page.Items, h.profile.Summary())
		}
		return nil
	})
	if err != nil {
		e.log.LogError(ctx, "search", err)
		return nil, err
	}
	e.log.LogRead(ctx, "search", map[string]any{"viewer": viewer, "count": len(page.Items)})
	return page, nil
}

// searchKey orders results by last activity descending, then user id.
func searchKey(p *models.Profile) ([]byte, error) {
	return store.EncodeKey(-p.LastActiveAt.UnixMicro(), p.UserID)
}

// matchesAll reports whether every query token prefixes some token of the
// searched fields.
func matchesAll(p *models.Profile, field Field, query []string) bool {
	var have []string
	if field != FieldHandle {
		have = append(have, store.Tokens(p.DisplayName)...)
	}
	if field != FieldName {
		have = append(have, store.HandleTokens(p.Handle)...)
	}
	for _, q := range query {
		found := false
		for _, h := range have {
			if strings.HasPrefix(h, q) {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	return true
}
