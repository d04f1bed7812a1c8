package discovery

import (
	"context"
	"testing"
	"time"

	"kinship/internal/models"
	"kinship/internal/relationship"
	"kinship/internal/store"
	"kinship/internal/store/storetest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fixture struct {
	t      *testing.T
	ctx    context.Context
	store  *store.Store
	rel    *relationship.Service
	engine *Engine
	clock  *storetest.Clock
	active time.Time
}

func newFixture(t *testing.T) *fixture {
	start := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	clock := storetest.NewClock(start)
	s := storetest.New(t, clock)
	return &fixture{
		t:      t,
		ctx:    context.Background(),
		store:  s,
		rel:    relationship.NewService(s, nil, time.Second, nil),
		engine: NewEngine(s, 0, nil),
		clock:  clock,
		active: start,
	}
}

// teen makes a profile 15 years old on the fixture's start date.
func teen(p *models.Profile) {
	p.BirthDate = time.Date(2008, 9, 1, 0, 0, 0, 0, time.UTC)
}

// profile stores an adult US profile; each call is more recently active
// than the last. Age and group follow the birth date as of the last activity.
func (f *fixture) profile(user string, edit ...func(p *models.Profile)) *models.Profile {
	f.t.Helper()
	f.active = f.active.Add(time.Minute)
	p := &models.Profile{
		UserID:            user,
		DisplayName:       user,
		Handle:            user,
		Gender:            models.GenderMale,
		BirthDate:         time.Date(1990, 3, 4, 0, 0, 0, 0, time.UTC),
		Age:               34,
		AgeGroup:          models.AgeGroupAdult,
		Country:           "US",
		LanguagesSpoken:   []string{"en"},
		LanguagesLearning: []string{"fr"},
		LastActiveAt:      f.active,
	}
	for _, fn := range edit {
		fn(p)
	}
	require.NoError(f.t, p.Derive(f.active))
	_, err := f.store.Put(f.ctx, p)
	require.NoError(f.t, err)
	return p
}

func users(page *models.Page[models.ProfileSummary]) []string {
	out := make([]string, len(page.Items))
	for i, p := range page.Items {
		out[i] = p.UserID
	}
	return out
}

func TestFindCandidates_CountryThenBlock(t *testing.T) {
	f := newFixture(t)
	f.profile("p1")
	f.profile("p2", func(p *models.Profile) { p.Country = "FR" })

	page, err := f.engine.FindCandidates(f.ctx, "p1", Filters{Country: "fr"}, "", 10)
	require.NoError(t, err)
	assert.Equal(t, []string{"p2"}, users(page))
	assert.Empty(t, page.NextCursor)

	_, err = f.rel.Block(f.ctx, "p1", "p2")
	require.NoError(t, err)

	page, err = f.engine.FindCandidates(f.ctx, "p1", Filters{Country: "FR"}, "", 10)
	require.NoError(t, err)
	assert.Empty(t, page.Items)

	page, err = f.engine.FindCandidates(f.ctx, "p2", Filters{}, "", 10)
	require.NoError(t, err)
	assert.Empty(t, page.Items, "the blocked side does not see the blocker either")
}

func TestFindCandidates_AgeGroupsNeverMix(t *testing.T) {
	f := newFixture(t)
	f.profile("adult")
	f.profile("teen", teen)
	f.profile("other_adult")

	page, err := f.engine.FindCandidates(f.ctx, "adult", Filters{}, "", 10)
	require.NoError(t, err)
	assert.Equal(t, []string{"other_adult"}, users(page))

	page, err = f.engine.FindCandidates(f.ctx, "teen", Filters{}, "", 10)
	require.NoError(t, err)
	assert.Empty(t, page.Items)
}

func TestFindCandidates_AgeGroupFollowsBirthDate(t *testing.T) {
	f := newFixture(t)
	f.profile("viewer", func(p *models.Profile) { p.BirthDate = time.Date(2008, 1, 1, 0, 0, 0, 0, time.UTC) })
	f.profile("almost_adult", func(p *models.Profile) { p.BirthDate = time.Date(2006, 6, 10, 0, 0, 0, 0, time.UTC) })
	f.profile("young", teen)

	page, err := f.engine.FindCandidates(f.ctx, "viewer", Filters{}, "", 10)
	require.NoError(t, err)
	assert.Equal(t, []string{"young", "almost_adult"}, users(page))

	// almost_adult turns 18 without being active again; the stored bucket
	// still says 13-17.
	f.clock.Advance(60 * 24 * time.Hour)

	page, err = f.engine.FindCandidates(f.ctx, "viewer", Filters{}, "", 10)
	require.NoError(t, err)
	assert.Equal(t, []string{"young"}, users(page))
	assert.Equal(t, 15, page.Items[0].Age)
	assert.Equal(t, models.AgeGroupTeen, page.Items[0].AgeGroup)

	page, err = f.engine.Search(f.ctx, "viewer", "almost", FieldAny, Filters{}, "", 10)
	require.NoError(t, err)
	assert.Empty(t, page.Items)

	// A viewer who aged out no longer sees the teen bucket either.
	page, err = f.engine.FindCandidates(f.ctx, "almost_adult", Filters{}, "", 10)
	require.NoError(t, err)
	assert.Empty(t, page.Items)
}

func TestFindCandidates_ExclusionsHoldForEveryFilter(t *testing.T) {
	f := newFixture(t)
	for _, u := range []string{"me", "friend", "pending", "asked", "blocker", "blocked", "stranger"} {
		f.profile(u)
	}
	req, err := f.rel.SendRequest(f.ctx, "me", "friend", "")
	require.NoError(t, err)
	_, err = f.rel.AcceptRequest(f.ctx, "friend", req.ID)
	require.NoError(t, err)
	_, err = f.rel.SendRequest(f.ctx, "me", "pending", "")
	require.NoError(t, err)
	_, err = f.rel.SendRequest(f.ctx, "asked", "me", "")
	require.NoError(t, err)
	_, err = f.rel.Block(f.ctx, "blocker", "me")
	require.NoError(t, err)
	_, err = f.rel.Block(f.ctx, "me", "blocked")
	require.NoError(t, err)

	for _, filters := range []Filters{
		{},
		{Country: "US"},
		{Gender: models.GenderMale},
		{LanguageSpoken: "en"},
		{LanguageLearning: "fr"},
		{Country: "US", Gender: models.GenderMale, LanguageSpoken: "EN", LanguageLearning: "FR"},
	} {
		page, err := f.engine.FindCandidates(f.ctx, "me", filters, "", 10)
		require.NoError(t, err)
		assert.Equal(t, []string{"stranger"}, users(page), "%+v", filters)
	}
}

func TestFindCandidates_PaginatesByLastActive(t *testing.T) {
	f := newFixture(t)
	f.profile("viewer")
	var want []string
	for _, u := range []string{"a", "b", "c", "d", "e", "f", "g"} {
		f.profile(u)
		want = append([]string{u}, want...)
	}

	var got []string
	cursor := ""
	pages := 0
	for {
		page, err := f.engine.FindCandidates(f.ctx, "viewer", Filters{}, cursor, 3)
		require.NoError(t, err)
		got = append(got, users(page)...)
		pages++
		if page.NextCursor == "" {
			break
		}
		cursor = page.NextCursor
	}
	assert.Equal(t, want, got)
	assert.Equal(t, 3, pages)

	first, err := f.engine.FindCandidates(f.ctx, "viewer", Filters{}, "", 3)
	require.NoError(t, err)
	_, err = f.engine.FindCandidates(f.ctx, "viewer", Filters{Country: "US"}, first.NextCursor, 3)
	assert.ErrorIs(t, err, models.ErrInvalidArgument, "cursor is bound to its filters")
}

func TestFindCandidates_PageFillsPastFilteredEntries(t *testing.T) {
	f := newFixture(t)
	f.profile("viewer")
	f.profile("speaker", func(p *models.Profile) { p.LanguagesSpoken = []string{"de"} })
	for i := 0; i < 40; i++ {
		f.profile("filler" + string(rune('a'+i%26)) + string(rune('a'+i/26)))
	}

	page, err := f.engine.FindCandidates(f.ctx, "viewer", Filters{LanguageSpoken: "de"}, "", 1)
	require.NoError(t, err)
	assert.Equal(t, []string{"speaker"}, users(page))
	assert.Empty(t, page.NextCursor)
}

func TestFindCandidates_GenderPreference(t *testing.T) {
	f := newFixture(t)
	female := func(p *models.Profile) { p.Gender = models.GenderFemale }
	prefers := func(p *models.Profile) { p.GenderPreference = true }

	f.profile("viewer", female, prefers)
	f.profile("woman", female)
	f.profile("man")
	f.profile("picky_woman", female, prefers)

	page, err := f.engine.FindCandidates(f.ctx, "viewer", Filters{}, "", 10)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"woman", "picky_woman"}, users(page))

	page, err = f.engine.FindCandidates(f.ctx, "viewer", Filters{Gender: models.GenderMale}, "", 10)
	require.NoError(t, err)
	assert.Empty(t, page.Items)

	// A man never sees a woman who only wants to meet women.
	page, err = f.engine.FindCandidates(f.ctx, "man", Filters{}, "", 10)
	require.NoError(t, err)
	assert.Equal(t, []string{"woman"}, users(page))

	page, err = f.engine.FindCandidates(f.ctx, "man", Filters{Gender: models.GenderFemale}, "", 10)
	require.NoError(t, err)
	assert.Equal(t, []string{"woman"}, users(page))
}

func TestChoosePlan(t *testing.T) {
	viewer := &models.Profile{Gender: models.GenderMale, AgeGroup: models.AgeGroupAdult}
	assert.Equal(t, store.ProfileByGroupActive, choosePlan(viewer, Filters{}).index)
	assert.Equal(t, store.ProfileByCountryGroupActive, choosePlan(viewer, Filters{Country: "US", Gender: models.GenderMale}).index)
	assert.Equal(t, store.ProfileByGroupGenderActive, choosePlan(viewer, Filters{Gender: models.GenderMale}).index)
	assert.Equal(t, store.ProfileByGroupPrefActive, choosePlan(viewer, Filters{Gender: models.GenderFemale}).index)

	viewer.GenderPreference = true
	assert.Equal(t, store.ProfileByGroupGenderActive, choosePlan(viewer, Filters{}).index)
	assert.True(t, choosePlan(viewer, Filters{Gender: models.GenderOther}).empty)
}

func TestFindCandidates_InvalidArguments(t *testing.T) {
	f := newFixture(t)
	f.profile("viewer")

	_, err := f.engine.FindCandidates(f.ctx, "viewer", Filters{}, "", 0)
	assert.ErrorIs(t, err, models.ErrInvalidArgument)
	_, err = f.engine.FindCandidates(f.ctx, "viewer", Filters{Country: "USA"}, "", 5)
	assert.ErrorIs(t, err, models.ErrInvalidArgument)
	_, err = f.engine.FindCandidates(f.ctx, "viewer", Filters{Gender: "robot"}, "", 5)
	assert.ErrorIs(t, err, models.ErrInvalidArgument)
	_, err = f.engine.FindCandidates(f.ctx, "viewer", Filters{}, "not-a-cursor", 5)
	assert.ErrorIs(t, err, models.ErrInvalidArgument)
	_, err = f.engine.FindCandidates(f.ctx, "ghost", Filters{}, "", 5)
	assert.ErrorIs(t, err, models.ErrNotFound)
}
