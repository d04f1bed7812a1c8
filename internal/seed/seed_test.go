package seed

import (
	"context"
	"strings"
	"testing"
	"time"

	"kinship/internal/models"
	"kinship/internal/profile"
	"kinship/internal/store"
	"kinship/internal/store/storetest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func smallOptions() Options {
	opts := DefaultOptions()
	opts.Users = 8
	opts.PostsPerUser = 1
	opts.FriendsPerUser = 2
	opts.PendingPerUser = 1
	opts.CommentsPerPost = 1
	opts.LikesPerPost = 2
	return opts
}

func TestRunPopulatesThroughServices(t *testing.T) {
	ctx := context.Background()
	db := storetest.OpenDB(t)
	clock := storetest.NewClock(time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC))
	st := store.New(db, store.WithClock(clock.Now))

	rep, err := NewSeeder(st, nil).Run(ctx, smallOptions())
	require.NoError(t, err)

	assert.Equal(t, 8, rep.Profiles)
	assert.Len(t, rep.UserIDs, 8)
	assert.Equal(t, 8, rep.Posts)
	assert.Equal(t, 8, rep.Comments)
	assert.Equal(t, 16, rep.Likes)
	assert.Positive(t, rep.Friendships)

	admin, err := profile.NewService(st, nil).IsAdmin(ctx, rep.UserIDs[0])
	require.NoError(t, err)
	assert.True(t, admin)

	for _, kind := range store.Kinds() {
		problems, err := st.Verify(ctx, kind)
		require.NoError(t, err)
		assert.Empty(t, problems, "kind %s", kind)
	}

	var profiles int64
	require.NoError(t, db.Model(&models.Profile{}).Count(&profiles).Error)
	assert.EqualValues(t, 8, profiles)

	require.NoError(t, ClearAll(ctx, db))
	require.NoError(t, db.Model(&models.Profile{}).Count(&profiles).Error)
	assert.Zero(t, profiles)
	var entries int64
	require.NoError(t, db.Model(&models.IndexEntry{}).Count(&entries).Error)
	assert.Zero(t, entries)
}

func TestRunRejectsBadOptions(t *testing.T) {
	st := storetest.New(t, nil)
	opts := smallOptions()
	opts.TeenPercent = 101
	_, err := NewSeeder(st, nil).Run(context.Background(), opts)
	assert.ErrorIs(t, err, models.ErrInvalidArgument)
}

func TestParsePresets(t *testing.T) {
	presets, err := ParsePresets(strings.NewReader(`
demo:
  users: 5
  countries: [US, FR]
busy:
  users: 200
  posts_per_user: 10
  teen_percent: 0
`))
	require.NoError(t, err)
	require.Len(t, presets, 2)

	demo := presets["demo"]
	assert.Equal(t, 5, demo.Users)
	assert.Equal(t, []string{"US", "FR"}, demo.Countries)
	assert.Equal(t, DefaultOptions().Languages, demo.Languages)
	assert.Equal(t, DefaultOptions().PostsPerUser, demo.PostsPerUser)

	busy := presets["busy"]
	assert.Equal(t, 200, busy.Users)
	assert.Equal(t, 10, busy.PostsPerUser)
	assert.Zero(t, busy.TeenPercent)

	_, err = ParsePresets(strings.NewReader("bad:\n  teen_percent: 150\n"))
	assert.ErrorContains(t, err, `preset "bad"`)

	_, err = ParsePresets(strings.NewReader("bad:\n  users: [1, 2]\n"))
	assert.Error(t, err)
}

func TestHandleFor(t *testing.T) {
	assert.Equal(t, "ana.lopez_1", handleFor("Ana", "López", 0))
	assert.Equal(t, "o.neil_12", handleFor("O", "Ne'il", 11))

	long := handleFor("Maximiliano", "Wolfeschlegelsteinhausen", 99)
	assert.LessOrEqual(t, len(long), 30)
	assert.True(t, strings.HasSuffix(long, "_100"))
}
