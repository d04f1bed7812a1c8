// Package profile maintains the one profile each user owns.
package profile

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"strings"
	"time"
	"unicode/utf8"

	"kinship/internal/models"
	"kinship/internal/observability"
	"kinship/internal/relationship"
	"kinship/internal/store"

	"golang.org/x/text/language"
)

// Field limits.
const (
	MaxDisplayName = 64
	MaxBio         = 500
	MaxListItems   = 20
	MaxListItem    = 100
)

var handlePattern = regexp.MustCompile(`^[A-Za-z0-9_.]{3,30}$`)

// Input is the editable part of a profile.
type Input struct {
	DisplayName       string        `json:"display_name"`
	Handle            string        `json:"handle"`
	PictureRef        string        `json:"picture_ref"`
	Gender            models.Gender `json:"gender"`
	BirthDate         string        `json:"birth_date"` // YYYY-MM-DD
	Country           string        `json:"country"`
	LanguagesSpoken   []string      `json:"languages_spoken"`
	LanguagesLearning []string      `json:"languages_learning"`
	Bio               string        `json:"bio"`
	Hobbies           []string      `json:"hobbies"`
	VisitedCountries  []string      `json:"visited_countries"`
	WantToVisit       []string      `json:"want_to_visit"`
	FavoriteBooks     []string      `json:"favorite_books"`
	GenderPreference  bool          `json:"gender_preference"`
}

// Service reads and writes profiles.
type Service struct {
	store *store.Store
	log   *observability.OpLogger
}

// NewService returns a Service.
func NewService(s *store.Store, logger *slog.Logger) *Service {
	return &Service{store: s, log: observability.NewOpLogger("profile", logger)}
}

// apply validates in and copies it onto p.
func apply(p *models.Profile, in Input) error {
	p.DisplayName = strings.TrimSpace(in.DisplayName)
	if n := utf8.RuneCountInString(p.DisplayName); n == 0 || n > MaxDisplayName {
		return models.NewValidationError(fmt.Sprintf("Display name must be 1 to %d characters", MaxDisplayName))
	}
	p.Handle = strings.TrimSpace(in.Handle)
	if !handlePattern.MatchString(p.Handle) {
		return models.NewValidationError("Handle must be 3 to 30 letters, digits, '_' or '.'")
	}
	p.Gender = models.Gender(strings.ToLower(string(in.Gender)))
	if !p.Gender.Valid() {
		return models.NewValidationError("Gender must be male, female or other")
	}
	birth, err := time.Parse(time.DateOnly, strings.TrimSpace(in.BirthDate))
	if err != nil {
		return models.NewValidationError("Birth date must be formatted as YYYY-MM-DD")
	}
	p.BirthDate = birth

	if p.Country, err = country(in.Country); err != nil {
		return err
	}
	if p.LanguagesSpoken, err = languages(in.LanguagesSpoken); err != nil {
		return err
	}
	if p.LanguagesLearning, err = languages(in.LanguagesLearning); err != nil {
		return err
	}
	if p.VisitedCountries, err = countries(in.VisitedCountries); err != nil {
		return err
	}
	if p.WantToVisit, err = countries(in.WantToVisit); err != nil {
		return err
	}
	if p.Hobbies, err = freeText("hobbies", in.Hobbies); err != nil {
		return err
	}
	if p.FavoriteBooks, err = freeText("favorite books", in.FavoriteBooks); err != nil {
		return err
	}

	p.Bio = strings.TrimSpace(in.Bio)
	if utf8.RuneCountInString(p.Bio) > MaxBio {
		return models.NewValidationError(fmt.Sprintf("Bio must be at most %d characters", MaxBio))
	}
	p.PictureRef = strings.TrimSpace(in.PictureRef)
	p.GenderPreference = in.GenderPreference
	return nil
}

// country canonicalizes an ISO 3166-1 alpha-2 code.
func country(code string) (string, error) {
	code = strings.ToUpper(strings.TrimSpace(code))
	if len(code) != 2 {
		return "", models.NewValidationError(fmt.Sprintf("%q is not an ISO 3166 alpha-2 country code", code))
	}
	r, err := language.ParseRegion(code)
	if err != nil || !r.IsCountry() {
		return "", models.NewValidationError(fmt.Sprintf("%q is not an ISO 3166 alpha-2 country code", code))
	}
	return r.String(), nil
}

func countries(codes []string) ([]string, error) {
	return dedupe(codes, country)
}

func languages(codes []string) ([]string, error) {
	return dedupe(codes, func(code string) (string, error) {
		b, err := language.ParseBase(strings.ToLower(strings.TrimSpace(code)))
		if err != nil {
			return "", models.NewValidationError(fmt.Sprintf("%q is not a language code", code))
		}
		return b.String(), nil
	})
}

func freeText(what string, items []string) ([]string, error) {
	return dedupe(items, func(s string) (string, error) {
		s = strings.TrimSpace(s)
		if utf8.RuneCountInString(s) > MaxListItem {
			return "", models.NewValidationError(fmt.Sprintf("Each of %s must be at most %d characters", what, MaxListItem))
		}
		return s, nil
	})
}

// dedupe canonicalizes items, dropping blanks and repeats.
func dedupe(items []string, canon func(string) (string, error)) ([]string, error) {
	out := []string{}
	seen := map[string]struct{}{}
	for _, item := range items {
		if strings.TrimSpace(item) == "" {
			continue
		}
		v, err := canon(item)
		if err != nil {
			return nil, err
		}
		if _, dup := seen[v]; dup {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	if len(out) > MaxListItems {
		return nil, models.NewValidationError(fmt.Sprintf("At most %d entries are allowed", MaxListItems))
	}
	return out, nil
}

// Upsert creates or replaces userID's profile. Handles are unique; taking one
// already in use is a Conflict. Two first writes racing for the same user
// resolve by replaying the loser as an update.
func (s *Service) Upsert(ctx context.Context, userID string, in Input) (*models.Profile, error) {
	if userID == "" {
		return nil, models.NewValidationError("User ID is required")
	}
	out, err := s.upsert(ctx, userID, in)
	if store.CollidedOn(err, store.ProfileByUser) {
		out, err = s.upsert(ctx, userID, in)
	}
	if err != nil {
		s.log.LogError(ctx, "upsert", err)
		return nil, err
	}
	s.log.LogWrite(ctx, "upsert", map[string]any{"user_id": userID})
	return out, nil
}

func (s *Service) upsert(ctx context.Context, userID string, in Input) (*models.Profile, error) {
	var out *models.Profile
	err := s.store.Update(ctx, func(tx *store.Tx) error {
		var p models.Profile
		err := tx.GetBy(&p, store.ProfileByUser, userID)
		if err != nil && !errors.Is(err, models.ErrNotFound) {
			return err
		}
		p.UserID = userID
		if err := apply(&p, in); err != nil {
			return err
		}
		now := tx.Now()
		if err := p.Derive(now); err != nil {
			return err
		}
		if now.After(p.LastActiveAt) {
			p.LastActiveAt = now
		}
		p.UpdatedAt = now
		if _, err := tx.Put(&p); err != nil {
			if store.CollidedOn(err, store.ProfileByHandle) {
				return models.NewConflictError("Handle is already taken")
			}
			return err
		}
		out = &p
		return nil
	})
	return out, err
}

// Get returns userID's profile as seen by viewer. A block in either direction
// makes it read as missing.
func (s *Service) Get(ctx context.Context, viewer, userID string) (*models.Profile, error) {
	var p models.Profile
	err := s.store.View(ctx, func(tx *store.Tx) error {
		if err := tx.GetBy(&p, store.ProfileByUser, userID); err != nil {
			return err
		}
		p.Refresh(tx.Now())
		if viewer == userID {
			return nil
		}
		blocked, err := relationship.BlockedEither(tx, viewer, userID)
		if err != nil {
			return err
		}
		if blocked {
			return models.NewNotFoundError("profile", userID)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.log.LogRead(ctx, "get", map[string]any{"user_id": userID})
	return &p, nil
}

// Touch marks userID active now. Last activity never moves backwards, and
// age and age group are recomputed as birthdays pass.
func (s *Service) Touch(ctx context.Context, userID string) error {
	err := s.store.Update(ctx, func(tx *store.Tx) error {
		var p models.Profile
		if err := tx.GetBy(&p, store.ProfileByUser, userID); err != nil {
			return err
		}
		now := tx.Now()
		if !now.After(p.LastActiveAt) {
			return nil
		}
		p.LastActiveAt = now
		if err := p.Derive(now); err != nil {
			return err
		}
		_, err := tx.Put(&p)
		return err
	})
	if err != nil && !errors.Is(err, models.ErrNotFound) {
		s.log.LogError(ctx, "touch", err)
	}
	return err
}

// RefreshAges moves profiles whose stored age group went stale into their
// current bucket and returns how many moved. Only the teen bucket can go
// stale, since adults never leave theirs.
func (s *Service) RefreshAges(ctx context.Context) (int, error) {
	moved := 0
	err := s.store.Update(ctx, func(tx *store.Tx) error {
		moved = 0
		ids, err := tx.Lookup(store.ProfileByGroupActive, models.AgeGroupTeen)
		if err != nil {
			return err
		}
		profiles, err := store.Fetch[models.Profile](tx, store.ProfileByGroupActive, ids)
		if err != nil {
			return err
		}
		now := tx.Now()
		for _, p := range profiles {
			if !p.Refresh(now) {
				continue
			}
			if _, err := tx.Put(p); err != nil {
				return err
			}
			moved++
		}
		return nil
	})
	if err != nil {
		s.log.LogError(ctx, "refresh_ages", err)
		return 0, err
	}
	s.log.LogWrite(ctx, "refresh_ages", map[string]any{"moved": moved})
	return moved, nil
}

// SetAdmin grants or revokes moderation rights.
func (s *Service) SetAdmin(ctx context.Context, userID string, admin bool) error {
	err := s.store.Update(ctx, func(tx *store.Tx) error {
		var p models.Profile
		if err := tx.GetBy(&p, store.ProfileByUser, userID); err != nil {
			return err
		}
		p.IsAdmin = admin
		_, err := tx.Put(&p)
		return err
	})
	if err != nil {
		s.log.LogError(ctx, "set_admin", err)
		return err
	}
	s.log.LogWrite(ctx, "set_admin", map[string]any{"user_id": userID, "admin": admin})
	return nil
}

// IsAdmin reports whether userID holds moderation rights.
func (s *Service) IsAdmin(ctx context.Context, userID string) (bool, error) {
	var p models.Profile
	err := s.store.View(ctx, func(tx *store.Tx) error {
		return tx.GetBy(&p, store.ProfileByUser, userID)
	})
	if errors.Is(err, models.ErrNotFound) {
		return false, nil
	}
	return p.IsAdmin, err
}
