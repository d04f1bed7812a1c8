// Package discovery finds profiles a viewer may befriend. Candidates come
// from the viewer's own age-group bucket only, newest activity first, minus
// the viewer, blocks in either direction, friends and pending requests.
package discovery

import (
	"context"
	"log/slog"
	"time"

	"kinship/internal/models"
	"kinship/internal/observability"
	"kinship/internal/relationship"
	"kinship/internal/store"
)

const defaultSearchScanLimit = 500

// Engine answers discovery queries against the store.
type Engine struct {
	store     *store.Store
	scanLimit int
	log       *observability.OpLogger
}

// NewEngine returns an Engine. searchScanLimit bounds the text-index entries
// one search may examine; <= 0 uses the default.
func NewEngine(s *store.Store, searchScanLimit int, logger *slog.Logger) *Engine {
	if searchScanLimit <= 0 {
		searchScanLimit = defaultSearchScanLimit
	}
	return &Engine{
		store:     s,
		scanLimit: searchScanLimit,
		log:       observability.NewOpLogger("discovery", logger),
	}
}

// plan is the index scan chosen for a query, plus whether the query can match
// anything at all. name and handle are the text indexes sharing the prefix.
type plan struct {
	index  string
	name   string
	handle string
	prefix []any
	empty  bool
}

// choosePlan picks the most selective index whose prefix the filters pin:
// country first, then gender or preference, then the bare age group.
func choosePlan(viewer *models.Profile, f Filters) plan {
	group := viewer.AgeGroup
	if viewer.GenderPreference && f.Gender != "" && f.Gender != viewer.Gender {
		return plan{empty: true}
	}
	switch {
	case f.Country != "":
		return plan{
			index: store.ProfileByCountryGroupActive, name: store.ProfileNameCountryText, handle: store.ProfileHandleCountryText,
			prefix: []any{f.Country, group},
		}
	case f.Gender != "" && f.Gender == viewer.Gender:
		return plan{
			index: store.ProfileByGroupGenderActive, name: store.ProfileNameGenderText, handle: store.ProfileHandleGenderText,
			prefix: []any{group, f.Gender},
		}
	case f.Gender != "":
		// Other-gender candidates with the preference set would refuse the viewer.
		return plan{
			index: store.ProfileByGroupPrefActive, name: store.ProfileNamePrefText, handle: store.ProfileHandlePrefText,
			prefix: []any{group, false},
		}
	case viewer.GenderPreference:
		return plan{
			index: store.ProfileByGroupGenderActive, name: store.ProfileNameGenderText, handle: store.ProfileHandleGenderText,
			prefix: []any{group, viewer.Gender},
		}
	default:
		return plan{
			index: store.ProfileByGroupActive, name: store.ProfileNameText, handle: store.ProfileHandleText,
			prefix: []any{group},
		}
	}
}

// loadViewer returns the viewer's profile with age and group as of the
// transaction's clock; discovery partitions on that group.
func loadViewer(tx *store.Tx, viewer string) (*models.Profile, error) {
	var p models.Profile
	if err := tx.GetBy(&p, store.ProfileByUser, viewer); err != nil {
		return nil, err
	}
	p.Refresh(tx.Now())
	return &p, nil
}

// eligible applies every visibility rule shared by candidates and search.
// The candidate's group is recomputed at now, so a stored bucket that went
// stale since its owner was last active never leaks across groups.
func eligible(now time.Time, viewer, p *models.Profile, excluded map[string]struct{}, f Filters) bool {
	if _, skip := excluded[p.UserID]; skip {
		return false
	}
	p.Refresh(now)
	return p.AgeGroup == viewer.AgeGroup && viewer.Accepts(p) && f.match(p)
}

// FindCandidates returns one page of candidates for viewer ordered by last
// activity, newest first.
func (e *Engine) FindCandidates(ctx context.Context, viewer string, filters Filters, cursor string, pageSize int) (*models.Page[models.ProfileSummary], error) {
	ctx, span := observability.StartEngineSpan(ctx, "discovery", "find_candidates")
	var err error
	defer func() { observability.EndSpan(span, err) }()

	if pageSize <= 0 {
		err = models.NewValidationError("Page size must be positive")
		return nil, err
	}
	if filters, err = filters.Normalize(); err != nil {
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
		now := tx.Now()
		res, err := store.ScanPage[models.Profile](tx, store.Query{
			Index:  pl.index,
			Prefix: pl.prefix,
			Token:  cursor,
			Limit:  pageSize,
			Desc:   true,
			Filter: filters.key(),
		}, func(p *models.Profile) bool {
			return eligible(now, me, p, excluded, filters)
		})
		if err != nil {
			return err
		}
		observability.DiscoveryScanned.WithLabelValues(pl.index).Observe(float64(res.Scanned))

		page.NextCursor = res.Next
		for _, p := range res.Items {
			page.Items = append(page.Items, p.Summary())
		}
		return nil
	})
	if err != nil {
		e.log.LogError(ctx, "find_candidates", err)
		return nil, err
	}
	e.log.LogRead(ctx, "find_candidates", map[string]any{"viewer": viewer, "count": len(page.Items)})
	return page, nil
}
