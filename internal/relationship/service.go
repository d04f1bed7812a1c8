package relationship

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"
	"unicode/utf8"

	"kinship/internal/models"
	"kinship/internal/observability"
	"kinship/internal/store"
)

// MaxMessageLength bounds the text attached to a friend request.
const MaxMessageLength = 500

// Service applies relationship events. Each event for a pair runs under that
// pair's lock inside one store transaction, so concurrent events on a pair
// take effect one after another.
type Service struct {
	store    *store.Store
	locker   Locker
	lockWait time.Duration
	log      *observability.OpLogger
}

// NewService returns a Service. A nil locker falls back to a LocalLocker.
func NewService(s *store.Store, locker Locker, lockWait time.Duration, logger *slog.Logger) *Service {
	if locker == nil {
		locker = NewLocalLocker()
	}
	if lockWait <= 0 {
		lockWait = 2 * time.Second
	}
	return &Service{
		store:    s,
		locker:   locker,
		lockWait: lockWait,
		log:      observability.NewOpLogger("relationship", logger),
	}
}

// facts is everything stored about one pair, seen from actor.
type facts struct {
	actor, other string
	outBlock     *models.Block // actor -> other
	inBlock      *models.Block // other -> actor
	request      *models.FriendRequest
	friendship   *models.Friendship
}

func (f *facts) state() State {
	switch {
	case f.outBlock != nil || f.inBlock != nil:
		return StateBlocked
	case f.friendship != nil:
		return StateFriends
	case f.request != nil && f.request.SenderID == f.actor:
		return StateOutgoing
	case f.request != nil:
		return StateIncoming
	default:
		return StateNone
	}
}

// getOptional is GetBy with NotFound mapped to (false, nil).
func getOptional(tx *store.Tx, dst models.Entity, index string, values ...any) (bool, error) {
	err := tx.GetBy(dst, index, values...)
	if errors.Is(err, models.ErrNotFound) {
		return false, nil
	}
	return err == nil, err
}

func loadFacts(tx *store.Tx, actor, other string) (*facts, error) {
	f := &facts{actor: actor, other: other}

	var out, in models.Block
	ok, err := getOptional(tx, &out, store.BlockByPair, actor, other)
	if err != nil {
		return nil, err
	}
	if ok {
		f.outBlock = &out
	}
	if ok, err = getOptional(tx, &in, store.BlockByPair, other, actor); err != nil {
		return nil, err
	} else if ok {
		f.inBlock = &in
	}

	for _, dir := range [][2]string{{actor, other}, {other, actor}} {
		var req models.FriendRequest
		ok, err := getOptional(tx, &req, store.RequestByPair, dir[0], dir[1])
		if err != nil {
			return nil, err
		}
		if ok {
			f.request = &req
			break
		}
	}

	lo, hi := models.NormalizePair(actor, other)
	var fr models.Friendship
	if ok, err = getOptional(tx, &fr, store.FriendshipByPair, lo, hi); err != nil {
		return nil, err
	} else if ok {
		f.friendship = &fr
	}
	return f, nil
}

// result carries whatever record a transition produced.
type result struct {
	request    *models.FriendRequest
	friendship *models.Friendship
	block      *models.Block
}

// apply performs the outcome of ev on the loaded facts.
func apply(tx *store.Tx, f *facts, ev Event, message string) (*result, error) {
	out := Transition(f.state(), ev)
	res := &result{}

	switch out.Effect {
	case Deny:
		if out.Code == codeConflict {
			return nil, models.NewConflictError(out.Reason)
		}
		return nil, &models.AppError{Code: models.CodeNotFound, Message: "No " + out.Reason + " with this user"}

	case CreateRequest:
		req := &models.FriendRequest{SenderID: f.actor, ReceiverID: f.other, Message: message}
		if _, err := tx.Put(req); err != nil {
			return nil, err
		}
		res.request = req

	case DeleteRequest:
		if err := tx.Remove(f.request); err != nil {
			return nil, err
		}
		res.request = f.request

	case PromoteRequest:
		if err := tx.Remove(f.request); err != nil {
			return nil, err
		}
		fr := models.NewFriendship(f.actor, f.other)
		if _, err := tx.Put(fr); err != nil {
			return nil, err
		}
		res.friendship = fr

	case DeleteFriendship:
		if err := tx.Remove(f.friendship); err != nil {
			return nil, err
		}
		res.friendship = f.friendship

	case BlockPair:
		if f.request != nil {
			if err := tx.Remove(f.request); err != nil {
				return nil, err
			}
		}
		if f.friendship != nil {
			if err := tx.Remove(f.friendship); err != nil {
				return nil, err
			}
		}
		fallthrough

	case EnsureBlock:
		if f.outBlock != nil {
			res.block = f.outBlock
			break
		}
		b := &models.Block{BlockerID: f.actor, BlockedID: f.other}
		if _, err := tx.Put(b); err != nil {
			return nil, err
		}
		res.block = b

	case RemoveBlock:
		if f.outBlock == nil {
			return nil, models.NewNotFoundError("block", f.other)
		}
		if err := tx.Remove(f.outBlock); err != nil {
			return nil, err
		}
		res.block = f.outBlock

	default:
		return nil, models.NewInternalError(fmt.Errorf("unhandled effect %d", out.Effect))
	}
	return res, nil
}

// run locks the pair, then applies ev inside one transaction. check, when set,
// runs inside the transaction before the facts are loaded.
func (s *Service) run(ctx context.Context, ev Event, actor, other, message string, check func(tx *store.Tx) error) (*result, error) {
	ctx, span := observability.StartEngineSpan(ctx, "relationship", ev.String())
	var err error
	defer func() { observability.EndSpan(span, err) }()

	var res *result
	err = s.withPairLock(ctx, actor, other, func() error {
		return s.store.Update(ctx, func(tx *store.Tx) error {
			if check != nil {
				if err := check(tx); err != nil {
					return err
				}
			}
			f, err := loadFacts(tx, actor, other)
			if err != nil {
				return err
			}
			res, err = apply(tx, f, ev, message)
			return err
		})
	})

	observability.RelationshipTransitions.WithLabelValues(ev.String(), resultLabel(err)).Inc()
	if err != nil {
		s.log.LogError(ctx, ev.String(), err)
		return nil, err
	}
	s.log.LogWrite(ctx, ev.String(), map[string]any{"actor": actor, "other": other})
	return res, nil
}

func (s *Service) withPairLock(ctx context.Context, a, b string, fn func() error) error {
	lockCtx, cancel := context.WithTimeout(ctx, s.lockWait)
	defer cancel()
	unlock, err := s.locker.Lock(lockCtx, a, b)
	if err != nil {
		return models.NewInternalError(err)
	}
	defer unlock()
	return fn()
}

func resultLabel(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, models.ErrConflict):
		return "conflict"
	case errors.Is(err, models.ErrNotFound):
		return "not_found"
	default:
		return "error"
	}
}

func validatePair(actor, other string) error {
	if actor == "" || other == "" {
		return models.NewValidationError("User ID is required")
	}
	return nil
}

// SendRequest creates a pending request from sender to receiver. The
// receiver must have a profile.
func (s *Service) SendRequest(ctx context.Context, sender, receiver, message string) (*models.FriendRequest, error) {
	if err := validatePair(sender, receiver); err != nil {
		return nil, err
	}
	if sender == receiver {
		return nil, models.NewConflictError("Cannot send a friend request to yourself")
	}
	if utf8.RuneCountInString(message) > MaxMessageLength {
		return nil, models.NewValidationError(fmt.Sprintf("Message must be at most %d characters", MaxMessageLength))
	}
	res, err := s.run(ctx, EventSend, sender, receiver, message, func(tx *store.Tx) error {
		ok, err := tx.Exists(store.ProfileByUser, receiver)
		if err != nil {
			return err
		}
		if !ok {
			return models.NewNotFoundError("profile", receiver)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return res.request, nil
}

// byRequest resolves a request id to its pair, then applies ev as actor. The
// request is read once to learn which pair to lock and again under the lock.
func (s *Service) byRequest(ctx context.Context, ev Event, actor, requestID string) (*result, error) {
	var req models.FriendRequest
	if err := s.store.Get(ctx, requestID, &req); err != nil {
		return nil, err
	}
	var other string
	switch actor {
	case req.ReceiverID:
		other = req.SenderID
	case req.SenderID:
		other = req.ReceiverID
	default:
		return nil, models.NewNotFoundError("friend request", requestID)
	}
	return s.run(ctx, ev, actor, other, "", func(tx *store.Tx) error {
		var current models.FriendRequest
		return tx.Get(requestID, &current)
	})
}

// AcceptRequest turns a pending request addressed to receiver into a
// friendship. Request and friendship never coexist.
func (s *Service) AcceptRequest(ctx context.Context, receiver, requestID string) (*models.Friendship, error) {
	res, err := s.byRequest(ctx, EventAccept, receiver, requestID)
	if err != nil {
		return nil, err
	}
	return res.friendship, nil
}

// DeclineRequest deletes a pending request addressed to receiver.
func (s *Service) DeclineRequest(ctx context.Context, receiver, requestID string) error {
	_, err := s.byRequest(ctx, EventDecline, receiver, requestID)
	return err
}

// CancelRequest deletes a pending request sent by sender.
func (s *Service) CancelRequest(ctx context.Context, sender, requestID string) error {
	_, err := s.byRequest(ctx, EventCancel, sender, requestID)
	return err
}

// Unfriend deletes the friendship between a and b.
func (s *Service) Unfriend(ctx context.Context, a, b string) error {
	if err := validatePair(a, b); err != nil {
		return err
	}
	_, err := s.run(ctx, EventUnfriend, a, b, "", nil)
	return err
}

// Block creates blocker's block edge if absent and clears any request or
// friendship between the pair. Repeating it is a no-op.
func (s *Service) Block(ctx context.Context, blocker, target string) (*models.Block, error) {
	if err := validatePair(blocker, target); err != nil {
		return nil, err
	}
	if blocker == target {
		return nil, models.NewConflictError("Cannot block yourself")
	}
	res, err := s.run(ctx, EventBlock, blocker, target, "", nil)
	if err != nil {
		return nil, err
	}
	return res.block, nil
}

// Unblock deletes blocker's own block edge. Nothing that the block cleared is
// restored, and a block in the other direction stays.
func (s *Service) Unblock(ctx context.Context, blocker, target string) error {
	if err := validatePair(blocker, target); err != nil {
		return err
	}
	_, err := s.run(ctx, EventUnblock, blocker, target, "", nil)
	return err
}
