package relationship

import (
	"context"
	"sync"
	"testing"
	"time"

	"kinship/internal/models"
	"kinship/internal/store"
	"kinship/internal/store/storetest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setup(t *testing.T, users ...string) (*Service, *store.Store) {
	t.Helper()
	s := storetest.New(t, storetest.NewClock(time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)))
	for _, u := range users {
		_, err := s.Put(context.Background(), &models.Profile{
			UserID:       u,
			DisplayName:  u,
			Handle:       "h_" + u,
			Gender:       models.GenderOther,
			BirthDate:    time.Date(1990, 1, 1, 0, 0, 0, 0, time.UTC),
			Age:          34,
			AgeGroup:     models.AgeGroupAdult,
			Country:      "US",
			LastActiveAt: s.Now(),
		})
		require.NoError(t, err)
	}
	return NewService(s, NewLocalLocker(), time.Second, nil), s
}

func counts(t *testing.T, s *store.Store, a, b string) (requests, friendships, blocks int) {
	t.Helper()
	err := s.View(context.Background(), func(tx *store.Tx) error {
		for _, dir := range [][2]string{{a, b}, {b, a}} {
			if ok, err := tx.Exists(store.RequestByPair, dir[0], dir[1]); err != nil {
				return err
			} else if ok {
				requests++
			}
			if ok, err := tx.Exists(store.BlockByPair, dir[0], dir[1]); err != nil {
				return err
			} else if ok {
				blocks++
			}
		}
		lo, hi := models.NormalizePair(a, b)
		if ok, err := tx.Exists(store.FriendshipByPair, lo, hi); err != nil {
			return err
		} else if ok {
			friendships++
		}
		return nil
	})
	require.NoError(t, err)
	return
}

func TestSendThenAccept(t *testing.T) {
	ctx := context.Background()
	svc, s := setup(t, "alice", "bob")

	req, err := svc.SendRequest(ctx, "alice", "bob", "hi")
	require.NoError(t, err)
	assert.Equal(t, "hi", req.Message)

	fr, err := svc.AcceptRequest(ctx, "bob", req.ID)
	require.NoError(t, err)
	assert.Equal(t, "alice", fr.UserID1)
	assert.Equal(t, "bob", fr.UserID2)

	requests, friendships, _ := counts(t, s, "alice", "bob")
	assert.Zero(t, requests)
	assert.Equal(t, 1, friendships)

	friends, err := svc.ListFriends(ctx, "bob")
	require.NoError(t, err)
	require.Len(t, friends, 1)
	assert.Equal(t, "alice", friends[0].Other("bob"))

	status, err := svc.Status(ctx, "alice", "bob")
	require.NoError(t, err)
	assert.Equal(t, "friends", status.State)
}

func TestSendRequest_Conflicts(t *testing.T) {
	ctx := context.Background()
	svc, _ := setup(t, "alice", "bob", "carol", "dave")

	_, err := svc.SendRequest(ctx, "alice", "alice", "")
	assert.ErrorIs(t, err, models.ErrConflict)

	_, err = svc.SendRequest(ctx, "alice", "bob", "")
	require.NoError(t, err)
	_, err = svc.SendRequest(ctx, "alice", "bob", "")
	assert.ErrorIs(t, err, models.ErrConflict, "duplicate")
	_, err = svc.SendRequest(ctx, "bob", "alice", "")
	assert.ErrorIs(t, err, models.ErrConflict, "reverse while outstanding")

	req, err := svc.SendRequest(ctx, "carol", "dave", "")
	require.NoError(t, err)
	_, err = svc.AcceptRequest(ctx, "dave", req.ID)
	require.NoError(t, err)
	_, err = svc.SendRequest(ctx, "dave", "carol", "")
	assert.ErrorIs(t, err, models.ErrConflict, "already friends")

	_, err = svc.SendRequest(ctx, "alice", "nobody", "")
	assert.ErrorIs(t, err, models.ErrNotFound)

	long := make([]rune, MaxMessageLength+1)
	for i := range long {
		long[i] = 'x'
	}
	_, err = svc.SendRequest(ctx, "carol", "alice", string(long))
	assert.ErrorIs(t, err, models.ErrInvalidArgument)
}

func TestRequestOwnership(t *testing.T) {
	ctx := context.Background()
	svc, s := setup(t, "alice", "bob", "eve")

	req, err := svc.SendRequest(ctx, "alice", "bob", "")
	require.NoError(t, err)

	_, err = svc.AcceptRequest(ctx, "alice", req.ID)
	assert.ErrorIs(t, err, models.ErrNotFound, "sender cannot accept")
	_, err = svc.AcceptRequest(ctx, "eve", req.ID)
	assert.ErrorIs(t, err, models.ErrNotFound, "stranger cannot accept")
	assert.ErrorIs(t, svc.CancelRequest(ctx, "bob", req.ID), models.ErrNotFound, "receiver cannot cancel")
	assert.ErrorIs(t, svc.DeclineRequest(ctx, "alice", req.ID), models.ErrNotFound, "sender cannot decline")

	require.NoError(t, svc.DeclineRequest(ctx, "bob", req.ID))
	requests, _, _ := counts(t, s, "alice", "bob")
	assert.Zero(t, requests)
	assert.ErrorIs(t, svc.DeclineRequest(ctx, "bob", req.ID), models.ErrNotFound)

	req, err = svc.SendRequest(ctx, "alice", "bob", "again")
	require.NoError(t, err)
	outgoing, err := svc.ListOutgoing(ctx, "alice")
	require.NoError(t, err)
	assert.Len(t, outgoing, 1)
	incoming, err := svc.ListIncoming(ctx, "bob")
	require.NoError(t, err)
	assert.Len(t, incoming, 1)

	require.NoError(t, svc.CancelRequest(ctx, "alice", req.ID))
	_, err = svc.AcceptRequest(ctx, "bob", req.ID)
	assert.ErrorIs(t, err, models.ErrNotFound)
}

func TestUnfriend(t *testing.T) {
	ctx := context.Background()
	svc, s := setup(t, "alice", "bob")

	assert.ErrorIs(t, svc.Unfriend(ctx, "alice", "bob"), models.ErrNotFound)

	req, err := svc.SendRequest(ctx, "alice", "bob", "")
	require.NoError(t, err)
	_, err = svc.AcceptRequest(ctx, "bob", req.ID)
	require.NoError(t, err)

	require.NoError(t, svc.Unfriend(ctx, "bob", "alice"))
	_, friendships, _ := counts(t, s, "alice", "bob")
	assert.Zero(t, friendships)
}

func TestBlock(t *testing.T) {
	ctx := context.Background()
	svc, s := setup(t, "alice", "bob")

	req, err := svc.SendRequest(ctx, "alice", "bob", "")
	require.NoError(t, err)
	_, err = svc.AcceptRequest(ctx, "bob", req.ID)
	require.NoError(t, err)

	_, err = svc.Block(ctx, "alice", "alice")
	assert.ErrorIs(t, err, models.ErrConflict)

	b1, err := svc.Block(ctx, "alice", "bob")
	require.NoError(t, err)
	b2, err := svc.Block(ctx, "alice", "bob")
	require.NoError(t, err)
	assert.Equal(t, b1.ID, b2.ID, "block is idempotent")

	requests, friendships, blocks := counts(t, s, "alice", "bob")
	assert.Zero(t, requests)
	assert.Zero(t, friendships, "block wins over friendship")
	assert.Equal(t, 1, blocks)

	// Blocked in either direction suppresses requests.
	_, err = svc.SendRequest(ctx, "alice", "bob", "")
	assert.ErrorIs(t, err, models.ErrConflict)
	_, err = svc.SendRequest(ctx, "bob", "alice", "")
	assert.ErrorIs(t, err, models.ErrConflict)
	assert.ErrorIs(t, svc.Unfriend(ctx, "bob", "alice"), models.ErrNotFound)

	status, err := svc.Status(ctx, "bob", "alice")
	require.NoError(t, err)
	assert.Equal(t, "blocked", status.State)
	assert.Equal(t, BlockedByOther, status.BlockedBy)

	// Only the blocker's own edge can be removed.
	assert.ErrorIs(t, svc.Unblock(ctx, "bob", "alice"), models.ErrNotFound)

	_, err = svc.Block(ctx, "bob", "alice")
	require.NoError(t, err)
	require.NoError(t, svc.Unblock(ctx, "alice", "bob"))
	status, err = svc.Status(ctx, "alice", "bob")
	require.NoError(t, err)
	assert.Equal(t, BlockedByOther, status.BlockedBy, "the other direction stays")

	require.NoError(t, svc.Unblock(ctx, "bob", "alice"))
	status, err = svc.Status(ctx, "alice", "bob")
	require.NoError(t, err)
	assert.Equal(t, "none", status.State, "unblock does not resurrect the friendship")

	_, err = svc.SendRequest(ctx, "bob", "alice", "")
	assert.NoError(t, err)
}

func TestBlockClearsPendingRequest(t *testing.T) {
	ctx := context.Background()
	svc, s := setup(t, "alice", "bob")

	req, err := svc.SendRequest(ctx, "alice", "bob", "")
	require.NoError(t, err)
	_, err = svc.Block(ctx, "bob", "alice")
	require.NoError(t, err)

	_, err = svc.AcceptRequest(ctx, "bob", req.ID)
	assert.ErrorIs(t, err, models.ErrNotFound)
	requests, _, _ := counts(t, s, "alice", "bob")
	assert.Zero(t, requests)

	blocked, err := svc.ListBlocked(ctx, "bob")
	require.NoError(t, err)
	require.Len(t, blocked, 1)
	assert.Equal(t, "alice", blocked[0].BlockedID)
}

func TestConcurrentSendsLeaveOneRequest(t *testing.T) {
	ctx := context.Background()
	svc, s := setup(t, "alice", "bob")

	var wg sync.WaitGroup
	var mu sync.Mutex
	succeeded := 0
	for i := 0; i < 10; i++ {
		from, to := "alice", "bob"
		if i%2 == 1 {
			from, to = to, from
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := svc.SendRequest(ctx, from, to, ""); err == nil {
				mu.Lock()
				succeeded++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, succeeded)
	requests, _, _ := counts(t, s, "alice", "bob")
	assert.Equal(t, 1, requests)
}

func TestBlockRacingAcceptEndsBlocked(t *testing.T) {
	ctx := context.Background()
	for i := 0; i < 5; i++ {
		svc, s := setup(t, "alice", "bob")
		req, err := svc.SendRequest(ctx, "alice", "bob", "")
		require.NoError(t, err)

		var wg sync.WaitGroup
		wg.Add(2)
		go func() {
			defer wg.Done()
			_, _ = svc.AcceptRequest(ctx, "bob", req.ID)
		}()
		go func() {
			defer wg.Done()
			_, _ = svc.Block(ctx, "alice", "bob")
		}()
		wg.Wait()

		requests, friendships, blocks := counts(t, s, "alice", "bob")
		assert.Zero(t, requests)
		assert.Zero(t, friendships)
		assert.Equal(t, 1, blocks)
	}
}

func TestExcluded(t *testing.T) {
	ctx := context.Background()
	svc, s := setup(t, "me", "friend", "pending", "asked", "blocker", "blocked", "stranger")

	req, err := svc.SendRequest(ctx, "me", "friend", "")
	require.NoError(t, err)
	_, err = svc.AcceptRequest(ctx, "friend", req.ID)
	require.NoError(t, err)
	_, err = svc.SendRequest(ctx, "me", "pending", "")
	require.NoError(t, err)
	_, err = svc.SendRequest(ctx, "asked", "me", "")
	require.NoError(t, err)
	_, err = svc.Block(ctx, "blocker", "me")
	require.NoError(t, err)
	_, err = svc.Block(ctx, "me", "blocked")
	require.NoError(t, err)

	err = s.View(ctx, func(tx *store.Tx) error {
		set, err := Excluded(tx, "me")
		require.NoError(t, err)
		for _, u := range []string{"me", "friend", "pending", "asked", "blocker", "blocked"} {
			assert.Contains(t, set, u)
		}
		assert.NotContains(t, set, "stranger")

		blocked, err := BlockedSet(tx, "me")
		require.NoError(t, err)
		assert.Len(t, blocked, 2)

		either, err := BlockedEither(tx, "me", "blocker")
		require.NoError(t, err)
		assert.True(t, either)
		either, err = BlockedEither(tx, "me", "stranger")
		require.NoError(t, err)
		assert.False(t, either)
		return nil
	})
	require.NoError(t, err)
}
