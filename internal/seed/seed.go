// Package seed populates a database with fake profiles, relationships and
// posts for development and demos. Every write goes through the domain
// services so index rows stay consistent with records.
package seed

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"
	"unicode"

	"kinship/internal/feed"
	"kinship/internal/models"
	"kinship/internal/observability"
	"kinship/internal/profile"
	"kinship/internal/relationship"
	"kinship/internal/store"

	"github.com/brianvoe/gofakeit/v6"
	"gopkg.in/yaml.v3"
	"gorm.io/gorm"
)

// Options sizes a seeding run.
type Options struct {
	Users           int      `yaml:"users"`
	PostsPerUser    int      `yaml:"posts_per_user"`
	FriendsPerUser  int      `yaml:"friends_per_user"`
	PendingPerUser  int      `yaml:"pending_per_user"`
	BlocksPerUser   int      `yaml:"blocks_per_user"`
	CommentsPerPost int      `yaml:"comments_per_post"`
	LikesPerPost    int      `yaml:"likes_per_post"`
	TeenPercent     int      `yaml:"teen_percent"`
	Admins          int      `yaml:"admins"`
	Countries       []string `yaml:"countries"`
	Languages       []string `yaml:"languages"`
	Seed            int64    `yaml:"seed"`
}

// DefaultOptions is a small, well connected population.
func DefaultOptions() Options {
	return Options{
		Users:           50,
		PostsPerUser:    3,
		FriendsPerUser:  4,
		PendingPerUser:  1,
		BlocksPerUser:   0,
		CommentsPerPost: 2,
		LikesPerPost:    3,
		TeenPercent:     20,
		Admins:          1,
		Countries:       []string{"US", "GB", "FR", "DE", "ES", "BR", "JP", "KR", "IN", "MX"},
		Languages:       []string{"en", "fr", "de", "es", "pt", "ja", "ko", "hi", "it", "zh"},
		Seed:            1,
	}
}

// Presets maps preset names to their options.
type Presets map[string]Options

// ParsePresets reads a YAML document of named presets. Fields a preset leaves
// out take their DefaultOptions value.
func ParsePresets(r io.Reader) (Presets, error) {
	var raw map[string]yaml.Node
	if err := yaml.NewDecoder(r).Decode(&raw); err != nil {
		return nil, fmt.Errorf("decode presets: %w", err)
	}
	out := make(Presets, len(raw))
	for name, node := range raw {
		opts := DefaultOptions()
		if err := node.Decode(&opts); err != nil {
			return nil, fmt.Errorf("preset %q: %w", name, err)
		}
		if err := opts.validate(); err != nil {
			return nil, fmt.Errorf("preset %q: %w", name, err)
		}
		out[name] = opts
	}
	return out, nil
}

func (o Options) validate() error {
	switch {
	case o.Users < 0, o.PostsPerUser < 0, o.FriendsPerUser < 0, o.PendingPerUser < 0,
		o.BlocksPerUser < 0, o.CommentsPerPost < 0, o.LikesPerPost < 0, o.Admins < 0:
		return errors.New("counts must not be negative")
	case o.TeenPercent < 0 || o.TeenPercent > 100:
		return errors.New("teen_percent must be between 0 and 100")
	case len(o.Countries) == 0:
		return errors.New("at least one country is required")
	case len(o.Languages) < 2:
		return errors.New("at least two languages are required")
	}
	return nil
}

// Report counts what a run created.
type Report struct {
	Profiles    int
	Friendships int
	Pending     int
	Blocks      int
	Posts       int
	Comments    int
	Likes       int
	UserIDs     []string
}

// Seeder drives the domain services with generated data.
type Seeder struct {
	store    *store.Store
	profiles *profile.Service
	rel      *relationship.Service
	feed     *feed.Engine
	log      *slog.Logger
}

// NewSeeder builds the services it needs over st.
func NewSeeder(st *store.Store, logger *slog.Logger) *Seeder {
	if logger == nil {
		logger = observability.GlobalLogger
	}
	return &Seeder{
		store:    st,
		profiles: profile.NewService(st, logger),
		rel:      relationship.NewService(st, relationship.NewLocalLocker(), 5*time.Second, logger),
		feed:     feed.NewEngine(st, logger),
		log:      logger,
	}
}

// ClearAll deletes every row the store owns.
func ClearAll(ctx context.Context, db *gorm.DB) error {
	for _, m := range models.PersistentModels() {
		if err := db.WithContext(ctx).Session(&gorm.Session{AllowGlobalUpdate: true}).Delete(m).Error; err != nil {
			return fmt.Errorf("clear %T: %w", m, err)
		}
	}
	return nil
}

// Run creates opts.Users profiles and the relationships and posts around
// them. The same options and seed produce the same data.
func (s *Seeder) Run(ctx context.Context, opts Options) (*Report, error) {
	if err := opts.validate(); err != nil {
		return nil, models.NewValidationError(err.Error())
	}
	faker := gofakeit.New(opts.Seed)
	rep := &Report{}

	for i := 0; i < opts.Users; i++ {
		userID := fmt.Sprintf("seed-%04d", i+1)
		if _, err := s.profiles.Upsert(ctx, userID, s.profileInput(faker, opts, i)); err != nil {
			return rep, fmt.Errorf("profile %s: %w", userID, err)
		}
		rep.UserIDs = append(rep.UserIDs, userID)
		rep.Profiles++
	}
	s.log.Info("seeded profiles", "count", rep.Profiles)

	for i := 0; i < opts.Admins && i < len(rep.UserIDs); i++ {
		if err := s.profiles.SetAdmin(ctx, rep.UserIDs[i], true); err != nil {
			return rep, err
		}
	}

	if err := s.relationships(ctx, faker, opts, rep); err != nil {
		return rep, err
	}
	s.log.Info("seeded relationships",
		"friendships", rep.Friendships, "pending", rep.Pending, "blocks", rep.Blocks)

	if err := s.posts(ctx, faker, opts, rep); err != nil {
		return rep, err
	}
	s.log.Info("seeded posts", "posts", rep.Posts, "comments", rep.Comments, "likes", rep.Likes)
	return rep, nil
}

func (s *Seeder) profileInput(f *gofakeit.Faker, opts Options, i int) profile.Input {
	now := s.store.Now()
	first, last := f.FirstName(), f.LastName()

	var birth time.Time
	if f.Number(1, 100) <= opts.TeenPercent {
		birth = f.DateRange(now.AddDate(-17, 0, -1), now.AddDate(-13, 0, 0))
	} else {
		birth = f.DateRange(now.AddDate(-70, 0, 0), now.AddDate(-18, 0, -1))
	}

	langs := append([]string(nil), opts.Languages...)
	f.ShuffleStrings(langs)
	spoken := langs[:1+f.Number(0, 1)]
	learning := langs[len(spoken) : len(spoken)+1]

	genders := []string{string(models.GenderMale), string(models.GenderFemale), string(models.GenderOther)}
	hobbies := make([]string, 0, 3)
	for range 3 {
		hobbies = append(hobbies, f.Hobby())
	}

	return profile.Input{
		DisplayName:       first + " " + last,
		Handle:            handleFor(first, last, i),
		PictureRef:        fmt.Sprintf("https://i.pravatar.cc/150?u=%s", f.UUID()),
		Gender:            models.Gender(f.RandomString(genders)),
		BirthDate:         birth.Format("2006-01-02"),
		Country:           f.RandomString(opts.Countries),
		LanguagesSpoken:   spoken,
		LanguagesLearning: learning,
		Bio:               f.Sentence(12),
		Hobbies:           hobbies,
		VisitedCountries:  []string{f.RandomString(opts.Countries)},
		WantToVisit:       []string{f.RandomString(opts.Countries)},
		FavoriteBooks:     []string{strings.TrimSuffix(f.Sentence(3), ".")},
		GenderPreference:  f.Number(1, 10) == 1,
	}
}

// handleFor builds a unique handle from a name and the user's ordinal.
func handleFor(first, last string, i int) string {
	var b strings.Builder
	for _, r := range store.NormalizeText(first + "." + last) {
		if r == '.' || (r < unicode.MaxASCII && (unicode.IsLetter(r) || unicode.IsDigit(r))) {
			b.WriteRune(r)
		}
	}
	suffix := fmt.Sprintf("_%d", i+1)
	base := b.String()
	if limit := 30 - len(suffix); len(base) > limit {
		base = base[:limit]
	}
	return base + suffix
}

func (s *Seeder) relationships(ctx context.Context, f *gofakeit.Faker, opts Options, rep *Report) error {
	ids := rep.UserIDs
	if len(ids) < 2 {
		return nil
	}
	pick := func(self string) string {
		for {
			other := ids[f.Number(0, len(ids)-1)]
			if other != self {
				return other
			}
		}
	}

	for _, me := range ids {
		for range opts.FriendsPerUser {
			req, err := s.rel.SendRequest(ctx, me, pick(me), "")
			if skip(err) {
				continue
			} else if err != nil {
				return err
			}
			if req == nil {
				continue
			}
			if _, err := s.rel.AcceptRequest(ctx, req.ReceiverID, req.ID); skip(err) {
				continue
			} else if err != nil {
				return err
			}
			rep.Friendships++
		}
		for range opts.PendingPerUser {
			if _, err := s.rel.SendRequest(ctx, me, pick(me), f.Sentence(6)); skip(err) {
				continue
			} else if err != nil {
				return err
			}
			rep.Pending++
		}
	}
	for _, me := range ids {
		for range opts.BlocksPerUser {
			if _, err := s.rel.Block(ctx, me, pick(me)); skip(err) {
				continue
			} else if err != nil {
				return err
			}
			rep.Blocks++
		}
	}
	return nil
}

func (s *Seeder) posts(ctx context.Context, f *gofakeit.Faker, opts Options, rep *Report) error {
	ids := rep.UserIDs
	for _, author := range ids {
		for range opts.PostsPerUser {
			image := ""
			if f.Bool() {
				image = fmt.Sprintf("https://picsum.photos/seed/%s/800/800", f.UUID())
			}
			post, err := s.feed.CreatePost(ctx, author, f.Paragraph(1, 3, 8, "\n"), image)
			if err != nil {
				return fmt.Errorf("post by %s: %w", author, err)
			}
			rep.Posts++

			for range opts.CommentsPerPost {
				commenter := ids[f.Number(0, len(ids)-1)]
				if _, err := s.feed.AddComment(ctx, commenter, post.ID, f.Sentence(8)); skip(err) {
					continue
				} else if err != nil {
					return err
				}
				rep.Comments++
			}
			likers := append([]string(nil), ids...)
			f.ShuffleStrings(likers)
			for _, liker := range likers[:min(opts.LikesPerPost, len(likers))] {
				if _, err := s.feed.ToggleLike(ctx, liker, post.ID); skip(err) {
					continue
				} else if err != nil {
					return err
				}
				rep.Likes++
			}
		}
	}
	return nil
}

// skip reports whether err is an expected refusal: a duplicate, a block or a
// hidden target.
func skip(err error) bool {
	return errors.Is(err, models.ErrConflict) ||
		errors.Is(err, models.ErrNotFound) ||
		errors.Is(err, models.ErrForbidden)
}
