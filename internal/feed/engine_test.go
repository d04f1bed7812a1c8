package feed

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"kinship/internal/models"
	"kinship/internal/relationship"
	"kinship/internal/store"
	"kinship/internal/store/storetest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

type fixture struct {
	t     *testing.T
	ctx   context.Context
	store *store.Store
	db    *gorm.DB
	rel   *relationship.Service
	feed  *Engine
}

func newFixture(t *testing.T, users ...string) *fixture {
	db := storetest.OpenDB(t)
	clock := storetest.NewClock(time.Date(2024, 2, 1, 9, 0, 0, 0, time.UTC))
	s := store.New(db, store.WithClock(clock.Now))
	f := &fixture{
		t:     t,
		ctx:   context.Background(),
		store: s,
		db:    db,
		rel:   relationship.NewService(s, nil, time.Second, nil),
		feed:  NewEngine(s, nil),
	}
	for _, u := range users {
		f.profile(u, false)
	}
	return f
}

func (f *fixture) profile(user string, admin bool) {
	f.t.Helper()
	_, err := f.store.Put(f.ctx, &models.Profile{
		UserID:       user,
		DisplayName:  user,
		Handle:       user,
		Gender:       models.GenderOther,
		BirthDate:    time.Date(1995, 1, 1, 0, 0, 0, 0, time.UTC),
		Age:          29,
		AgeGroup:     models.AgeGroupAdult,
		IsAdmin:      admin,
		LastActiveAt: f.store.Now(),
	})
	require.NoError(f.t, err)
}

func (f *fixture) post(author, text string) *models.PostView {
	f.t.Helper()
	p, err := f.feed.CreatePost(f.ctx, author, text, "")
	require.NoError(f.t, err)
	return p
}

func (f *fixture) count(index string, prefix ...any) int64 {
	f.t.Helper()
	var n int64
	require.NoError(f.t, f.store.View(f.ctx, func(tx *store.Tx) error {
		var err error
		n, err = tx.Count(index, prefix...)
		return err
	}))
	return n
}

func TestFriendsSeeEachOthersPosts(t *testing.T) {
	f := newFixture(t, "p1", "p2")
	req, err := f.rel.SendRequest(f.ctx, "p1", "p2", "hi")
	require.NoError(t, err)
	_, err = f.rel.AcceptRequest(f.ctx, "p2", req.ID)
	require.NoError(t, err)

	mine := f.post("p1", "from p1")
	theirs := f.post("p2", "from p2")

	page, err := f.feed.ListPosts(f.ctx, "p1", "", "", 10)
	require.NoError(t, err)
	require.Len(t, page.Items, 2)
	assert.Equal(t, theirs.ID, page.Items[0].ID, "newest first")
	assert.False(t, page.Items[0].IsOwner)
	assert.True(t, page.Items[1].IsOwner)
	assert.Equal(t, mine.ID, page.Items[1].ID)

	liked, err := f.feed.ToggleLike(f.ctx, "p1", theirs.ID)
	require.NoError(t, err)
	assert.True(t, liked.IsLiked)
	assert.EqualValues(t, 1, liked.LikesCount)

	page, err = f.feed.ListPosts(f.ctx, "p1", "p2", "", 10)
	require.NoError(t, err)
	require.Len(t, page.Items, 1)
	assert.True(t, page.Items[0].IsLiked)

	other, err := f.feed.GetPost(f.ctx, "p2", theirs.ID)
	require.NoError(t, err)
	assert.False(t, other.IsLiked, "likes are per viewer")
	assert.True(t, other.IsOwner)
}

func TestToggleLikeAlternates(t *testing.T) {
	f := newFixture(t, "author", "fan")
	p := f.post("author", "hello")

	for i := 0; i < 5; i++ {
		v, err := f.feed.ToggleLike(f.ctx, "fan", p.ID)
		require.NoError(t, err)
		assert.Equal(t, i%2 == 0, v.IsLiked)
		assert.LessOrEqual(t, f.count(store.LikeByPair, "fan", p.ID), int64(1))
	}
	assert.EqualValues(t, 1, f.count(store.LikeByPost, p.ID))
}

func TestAggregatesAndCascadingDelete(t *testing.T) {
	const n, m = 6, 4
	f := newFixture(t, "owner")
	for i := 0; i < m; i++ {
		f.profile(fmt.Sprintf("u%d", i), false)
	}
	p := f.post("owner", "count me")

	var wg sync.WaitGroup
	errs := make(chan error, n+m)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := f.feed.AddComment(f.ctx, fmt.Sprintf("u%d", i%m), p.ID, fmt.Sprintf("comment %d", i))
			errs <- err
		}(i)
	}
	for i := 0; i < m; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := f.feed.ToggleLike(f.ctx, fmt.Sprintf("u%d", i), p.ID)
			errs <- err
		}(i)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}

	v, err := f.feed.GetPost(f.ctx, "owner", p.ID)
	require.NoError(t, err)
	assert.EqualValues(t, n, v.CommentsCount)
	assert.EqualValues(t, m, v.LikesCount)

	assert.ErrorIs(t, f.feed.DeletePost(f.ctx, "u0", p.ID), models.ErrForbidden)
	require.NoError(t, f.feed.DeletePost(f.ctx, "owner", p.ID))

	assert.Zero(t, f.count(store.CommentByPost, p.ID))
	assert.Zero(t, f.count(store.LikeByPost, p.ID))
	var comments, likes int64
	require.NoError(t, f.db.Model(&models.Comment{}).Count(&comments).Error)
	require.NoError(t, f.db.Model(&models.Like{}).Count(&likes).Error)
	assert.Zero(t, comments)
	assert.Zero(t, likes)

	_, err = f.feed.GetPost(f.ctx, "owner", p.ID)
	assert.ErrorIs(t, err, models.ErrNotFound)
}

func TestCommentPermissions(t *testing.T) {
	f := newFixture(t, "owner", "author", "stranger")
	f.profile("mod", true)
	p := f.post("owner", "post")

	add := func(who string) *models.CommentView {
		c, err := f.feed.AddComment(f.ctx, who, p.ID, "  nice  ")
		require.NoError(t, err)
		assert.Equal(t, "nice", c.Content)
		return c
	}

	c1 := add("author")
	assert.ErrorIs(t, f.feed.DeleteComment(f.ctx, "stranger", c1.ID), models.ErrForbidden)
	require.NoError(t, f.feed.DeleteComment(f.ctx, "author", c1.ID))
	assert.ErrorIs(t, f.feed.DeleteComment(f.ctx, "author", c1.ID), models.ErrNotFound)

	c2 := add("author")
	require.NoError(t, f.feed.DeleteComment(f.ctx, "owner", c2.ID))

	c3 := add("author")
	require.NoError(t, f.feed.DeleteComment(f.ctx, "mod", c3.ID))

	add("author")
	add("stranger")
	page, err := f.feed.ListComments(f.ctx, "author", p.ID, "", 10)
	require.NoError(t, err)
	require.Len(t, page.Items, 2)
	assert.Equal(t, "author", page.Items[0].UserID, "oldest first")
	assert.True(t, page.Items[0].CanDelete)
	assert.False(t, page.Items[1].CanDelete)

	page, err = f.feed.ListComments(f.ctx, "owner", p.ID, "", 10)
	require.NoError(t, err)
	for _, c := range page.Items {
		assert.True(t, c.CanDelete)
		assert.False(t, c.IsOwner)
	}

	other := f.post("stranger", "mine")
	require.NoError(t, f.feed.DeletePost(f.ctx, "mod", other.ID))
}

func TestBlockHidesPosts(t *testing.T) {
	f := newFixture(t, "viewer", "blocker", "friendly")
	hidden := f.post("blocker", "you cannot see this")
	f.post("friendly", "hello")
	_, err := f.rel.Block(f.ctx, "blocker", "viewer")
	require.NoError(t, err)

	page, err := f.feed.ListPosts(f.ctx, "viewer", "", "", 10)
	require.NoError(t, err)
	require.Len(t, page.Items, 1)
	assert.Equal(t, "friendly", page.Items[0].UserID)

	page, err = f.feed.ListPosts(f.ctx, "viewer", "blocker", "", 10)
	require.NoError(t, err)
	assert.Empty(t, page.Items)

	_, err = f.feed.GetPost(f.ctx, "viewer", hidden.ID)
	assert.ErrorIs(t, err, models.ErrNotFound)
	_, err = f.feed.ToggleLike(f.ctx, "viewer", hidden.ID)
	assert.ErrorIs(t, err, models.ErrNotFound)
	_, err = f.feed.AddComment(f.ctx, "viewer", hidden.ID, "hey")
	assert.ErrorIs(t, err, models.ErrNotFound)

	require.NoError(t, f.rel.Unblock(f.ctx, "blocker", "viewer"))
	_, err = f.feed.GetPost(f.ctx, "viewer", hidden.ID)
	assert.NoError(t, err)
}

func TestCommentCountMatchesVisibleComments(t *testing.T) {
	f := newFixture(t, "author", "viewer", "troll", "friendly")
	p := f.post("author", "discuss")
	for _, u := range []string{"troll", "friendly", "troll"} {
		_, err := f.feed.AddComment(f.ctx, u, p.ID, "from "+u)
		require.NoError(t, err)
	}
	_, err := f.rel.Block(f.ctx, "viewer", "troll")
	require.NoError(t, err)

	v, err := f.feed.GetPost(f.ctx, "viewer", p.ID)
	require.NoError(t, err)
	assert.EqualValues(t, 1, v.CommentsCount)
	comments, err := f.feed.ListComments(f.ctx, "viewer", p.ID, "", 10)
	require.NoError(t, err)
	assert.Len(t, comments.Items, int(v.CommentsCount))

	page, err := f.feed.ListPosts(f.ctx, "viewer", "author", "", 10)
	require.NoError(t, err)
	require.Len(t, page.Items, 1)
	assert.EqualValues(t, 1, page.Items[0].CommentsCount)

	liked, err := f.feed.ToggleLike(f.ctx, "viewer", p.ID)
	require.NoError(t, err)
	assert.EqualValues(t, 1, liked.CommentsCount)

	v, err = f.feed.GetPost(f.ctx, "author", p.ID)
	require.NoError(t, err)
	assert.EqualValues(t, 3, v.CommentsCount)
}

func TestToggleLikeRequiresProfile(t *testing.T) {
	f := newFixture(t, "author")
	p := f.post("author", "hello")

	_, err := f.feed.ToggleLike(f.ctx, "ghost", p.ID)
	assert.ErrorIs(t, err, models.ErrForbidden)
	assert.Zero(t, f.count(store.LikeByPost, p.ID))
}

func TestListPostsPaginates(t *testing.T) {
	f := newFixture(t, "a", "b")
	var want []string
	for i := 0; i < 5; i++ {
		author := "a"
		if i%2 == 1 {
			author = "b"
		}
		p := f.post(author, fmt.Sprintf("post %d", i))
		want = append([]string{p.ID}, want...)
	}

	var got []string
	cursor := ""
	for {
		page, err := f.feed.ListPosts(f.ctx, "a", "", cursor, 2)
		require.NoError(t, err)
		for _, p := range page.Items {
			got = append(got, p.ID)
		}
		if page.NextCursor == "" {
			break
		}
		cursor = page.NextCursor
	}
	assert.Equal(t, want, got)

	first, err := f.feed.ListPosts(f.ctx, "a", "", "", 2)
	require.NoError(t, err)
	_, err = f.feed.ListPosts(f.ctx, "a", "b", first.NextCursor, 2)
	assert.ErrorIs(t, err, models.ErrInvalidArgument)

	_, err = f.feed.ListPosts(f.ctx, "a", "", "", 0)
	assert.ErrorIs(t, err, models.ErrInvalidArgument)
}

func TestCreatePostValidation(t *testing.T) {
	f := newFixture(t, "writer")

	_, err := f.feed.CreatePost(f.ctx, "writer", "   ", "")
	assert.ErrorIs(t, err, models.ErrInvalidArgument)
	_, err = f.feed.CreatePost(f.ctx, "writer", strings.Repeat("é", MaxPostLength+1), "")
	assert.ErrorIs(t, err, models.ErrInvalidArgument)
	_, err = f.feed.CreatePost(f.ctx, "nobody", "hi", "")
	assert.ErrorIs(t, err, models.ErrForbidden)

	p, err := f.feed.CreatePost(f.ctx, "writer", strings.Repeat("é", MaxPostLength), "")
	require.NoError(t, err)
	_, err = f.feed.AddComment(f.ctx, "writer", p.ID, strings.Repeat("x", MaxCommentLength+1))
	assert.ErrorIs(t, err, models.ErrInvalidArgument)

	img, err := f.feed.CreatePost(f.ctx, "writer", "", "blob://pic")
	require.NoError(t, err)
	assert.Equal(t, "blob://pic", img.ImageRef)
}
