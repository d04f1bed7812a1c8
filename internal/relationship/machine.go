// Package relationship owns friend requests, friendships and blocks. It is
// the only writer of those records; every write goes through the transition
// table below under a per-pair lock.
package relationship

import "fmt"

// State is how a pair relates, seen from the acting user.
type State int

const (
	StateNone State = iota
	// StateOutgoing: the actor has a pending request to the other user.
	StateOutgoing
	// StateIncoming: the other user has a pending request to the actor.
	StateIncoming
	StateFriends
	// StateBlocked overlays every other state while either block edge exists.
	StateBlocked
)

var stateNames = map[State]string{
	StateNone:     "none",
	StateOutgoing: "request_sent",
	StateIncoming: "request_received",
	StateFriends:  "friends",
	StateBlocked:  "blocked",
}

func (s State) String() string {
	if n, ok := stateNames[s]; ok {
		return n
	}
	return fmt.Sprintf("state(%d)", int(s))
}

// Event is an operation requested by the actor.
type Event int

const (
	EventSend Event = iota
	EventAccept
	EventDecline
	EventCancel
	EventUnfriend
	EventBlock
	EventUnblock
)

var eventNames = map[Event]string{
	EventSend:     "send",
	EventAccept:   "accept",
	EventDecline:  "decline",
	EventCancel:   "cancel",
	EventUnfriend: "unfriend",
	EventBlock:    "block",
	EventUnblock:  "unblock",
}

func (e Event) String() string {
	if n, ok := eventNames[e]; ok {
		return n
	}
	return fmt.Sprintf("event(%d)", int(e))
}

// Effect is the store mutation a transition performs.
type Effect int

const (
	// Deny refuses the event with Outcome.Code.
	Deny Effect = iota
	CreateRequest
	DeleteRequest
	// PromoteRequest deletes the request and creates the friendship.
	PromoteRequest
	DeleteFriendship
	// BlockPair clears any request or friendship and creates the actor's block.
	BlockPair
	// EnsureBlock creates the actor's block unless it already exists.
	EnsureBlock
	// RemoveBlock deletes the actor's block; the other direction is untouched.
	RemoveBlock
)

// Denial codes.
const (
	codeConflict = "conflict"
	codeNotFound = "not_found"
)

// Outcome is one cell of the transition table.
type Outcome struct {
	Effect Effect
	Code   string
	Reason string
}

func conflict(reason string) Outcome { return Outcome{Effect: Deny, Code: codeConflict, Reason: reason} }
func notFound(reason string) Outcome { return Outcome{Effect: Deny, Code: codeNotFound, Reason: reason} }
func do(e Effect) Outcome            { return Outcome{Effect: e} }

var (
	noRequest    = notFound("friend request")
	noFriendship = notFound("friendship")
	noBlock      = notFound("block")
)

// transitions is total over State x Event.
var transitions = map[State]map[Event]Outcome{
	StateNone: {
		EventSend:     do(CreateRequest),
		EventAccept:   noRequest,
		EventDecline:  noRequest,
		EventCancel:   noRequest,
		EventUnfriend: noFriendship,
		EventBlock:    do(BlockPair),
		EventUnblock:  noBlock,
	},
	StateOutgoing: {
		EventSend:     conflict("Friend request already sent"),
		EventAccept:   noRequest,
		EventDecline:  noRequest,
		EventCancel:   do(DeleteRequest),
		EventUnfriend: noFriendship,
		EventBlock:    do(BlockPair),
		EventUnblock:  noBlock,
	},
	StateIncoming: {
		EventSend:     conflict("This user already sent you a friend request; accept it instead"),
		EventAccept:   do(PromoteRequest),
		EventDecline:  do(DeleteRequest),
		EventCancel:   noRequest,
		EventUnfriend: noFriendship,
		EventBlock:    do(BlockPair),
		EventUnblock:  noBlock,
	},
	StateFriends: {
		EventSend:     conflict("Already friends"),
		EventAccept:   noRequest,
		EventDecline:  noRequest,
		EventCancel:   noRequest,
		EventUnfriend: do(DeleteFriendship),
		EventBlock:    do(BlockPair),
		EventUnblock:  noBlock,
	},
	StateBlocked: {
		EventSend:     conflict("Cannot send a friend request to this user"),
		EventAccept:   noRequest,
		EventDecline:  noRequest,
		EventCancel:   noRequest,
		EventUnfriend: noFriendship,
		EventBlock:    do(EnsureBlock),
		EventUnblock:  do(RemoveBlock),
	},
}

// Transition looks up the outcome of event in state.
func Transition(s State, e Event) Outcome {
	if row, ok := transitions[s]; ok {
		if out, ok := row[e]; ok {
			return out
		}
	}
	return notFound("relationship")
}
