package relationship

import (
	"context"

	"kinship/internal/models"
	"kinship/internal/store"
)

// Direction values reported by Status.
const (
	DirectionOutgoing = "outgoing"
	DirectionIncoming = "incoming"
)

// BlockedBy values reported by Status.
const (
	BlockedByViewer = "viewer"
	BlockedByOther  = "other"
	BlockedByBoth   = "both"
)

// Status describes how viewer relates to other.
func (s *Service) Status(ctx context.Context, viewer, other string) (*models.RelationshipStatus, error) {
	if err := validatePair(viewer, other); err != nil {
		return nil, err
	}
	status := &models.RelationshipStatus{State: StateNone.String()}
	if viewer == other {
		status.State = "self"
		return status, nil
	}
	err := s.store.View(ctx, func(tx *store.Tx) error {
		f, err := loadFacts(tx, viewer, other)
		if err != nil {
			return err
		}
		st := f.state()
		status.State = st.String()
		switch st {
		case StateOutgoing:
			status.RequestID = f.request.ID
			status.Direction = DirectionOutgoing
		case StateIncoming:
			status.RequestID = f.request.ID
			status.Direction = DirectionIncoming
		case StateBlocked:
			switch {
			case f.outBlock != nil && f.inBlock != nil:
				status.BlockedBy = BlockedByBoth
			case f.outBlock != nil:
				status.BlockedBy = BlockedByViewer
			default:
				status.BlockedBy = BlockedByOther
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return status, nil
}

// ListFriends returns user's friendships, oldest first.
func (s *Service) ListFriends(ctx context.Context, user string) ([]*models.Friendship, error) {
	return list[models.Friendship](ctx, s.store, store.FriendshipByMember, user)
}

// ListIncoming returns pending requests addressed to user, oldest first.
func (s *Service) ListIncoming(ctx context.Context, user string) ([]*models.FriendRequest, error) {
	return list[models.FriendRequest](ctx, s.store, store.RequestByReceiver, user)
}

// ListOutgoing returns pending requests sent by user, oldest first.
func (s *Service) ListOutgoing(ctx context.Context, user string) ([]*models.FriendRequest, error) {
	return list[models.FriendRequest](ctx, s.store, store.RequestBySender, user)
}

// ListBlocked returns the blocks user has placed, oldest first.
func (s *Service) ListBlocked(ctx context.Context, user string) ([]*models.Block, error) {
	return list[models.Block](ctx, s.store, store.BlockByBlocker, user)
}

func list[T any, PT interface {
	*T
	models.Entity
}](ctx context.Context, s *store.Store, index, user string) ([]*T, error) {
	var out []*T
	err := s.View(ctx, func(tx *store.Tx) error {
		ids, err := tx.Lookup(index, user)
		if err != nil {
			return err
		}
		out, err = store.Fetch[T, PT](tx, index, ids)
		return err
	})
	return out, err
}

// BlockedEither reports whether a or b blocks the other.
func BlockedEither(tx *store.Tx, a, b string) (bool, error) {
	if a == b {
		return false, nil
	}
	ok, err := tx.Exists(store.BlockByPair, a, b)
	if err != nil || ok {
		return ok, err
	}
	return tx.Exists(store.BlockByPair, b, a)
}

// BlockedSet returns every user in a block relation with viewer, in either
// direction.
func BlockedSet(tx *store.Tx, viewer string) (map[string]struct{}, error) {
	set := map[string]struct{}{}
	if err := collectBlocks(tx, viewer, set); err != nil {
		return nil, err
	}
	return set, nil
}

// Excluded returns every user discovery must hide from viewer: viewer itself,
// blocks either way, friends, and pending requests either way.
func Excluded(tx *store.Tx, viewer string) (map[string]struct{}, error) {
	set := map[string]struct{}{viewer: {}}
	if err := collectBlocks(tx, viewer, set); err != nil {
		return nil, err
	}

	ids, err := tx.Lookup(store.FriendshipByMember, viewer)
	if err != nil {
		return nil, err
	}
	friendships, err := store.Fetch[models.Friendship](tx, store.FriendshipByMember, ids)
	if err != nil {
		return nil, err
	}
	for _, f := range friendships {
		set[f.Other(viewer)] = struct{}{}
	}

	for _, index := range []string{store.RequestBySender, store.RequestByReceiver} {
		ids, err := tx.Lookup(index, viewer)
		if err != nil {
			return nil, err
		}
		reqs, err := store.Fetch[models.FriendRequest](tx, index, ids)
		if err != nil {
			return nil, err
		}
		for _, r := range reqs {
			set[r.SenderID] = struct{}{}
			set[r.ReceiverID] = struct{}{}
		}
	}
	return set, nil
}

func collectBlocks(tx *store.Tx, viewer string, set map[string]struct{}) error {
	for _, index := range []string{store.BlockByBlocker, store.BlockByBlocked} {
		ids, err := tx.Lookup(index, viewer)
		if err != nil {
			return err
		}
		blocks, err := store.Fetch[models.Block](tx, index, ids)
		if err != nil {
			return err
		}
		for _, b := range blocks {
			if b.BlockerID == viewer {
				set[b.BlockedID] = struct{}{}
			} else {
				set[b.BlockerID] = struct{}{}
			}
		}
	}
	return nil
}
