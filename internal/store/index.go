package store

import (
	"fmt"
	"sort"

	"kinship/internal/models"
)

// Index names. Each belongs to exactly one entity kind.
const (
	ProfileByUser               = "profile_by_user"
	ProfileByHandle             = "profile_by_handle"
	ProfileByActive             = "profile_by_active"
	ProfileByGroupActive        = "profile_by_group_active"
	ProfileByGroupGenderActive  = "profile_by_group_gender_active"
	ProfileByGroupPrefActive    = "profile_by_group_pref_active"
	ProfileByCountryGroupActive = "profile_by_country_group_active"
	ProfileNameText             = "profile_name_text"
	ProfileNameGenderText       = "profile_name_gender_text"
	ProfileNamePrefText         = "profile_name_pref_text"
	ProfileNameCountryText      = "profile_name_country_text"
	ProfileHandleText           = "profile_handle_text"
	ProfileHandleGenderText     = "profile_handle_gender_text"
	ProfileHandlePrefText       = "profile_handle_pref_text"
	ProfileHandleCountryText    = "profile_handle_country_text"

	BlockByBlocker = "block_by_blocker"
	BlockByBlocked = "block_by_blocked"
	BlockByPair    = "block_by_pair"

	RequestBySender   = "request_by_sender"
	RequestByReceiver = "request_by_receiver"
	RequestByPair     = "request_by_pair"

	FriendshipByMember = "friendship_by_member"
	FriendshipByPair   = "friendship_by_pair"

	PostByCreated = "post_by_created"
	PostByOwner   = "post_by_owner"

	CommentByOwner = "comment_by_owner"
	CommentByPost  = "comment_by_post"

	LikeByOwner = "like_by_owner"
	LikeByPost  = "like_by_post"
	LikeByPair  = "like_by_pair"
)

// Index derives ordered keys from an entity. Keys returns one tuple per entry
// the entity occupies; most indexes yield one, the member and text indexes
// yield several. Unique indexes store the tuple as is and reject a second
// entity with the same tuple. Other indexes append the entity id so equal
// tuples stay distinct and tie-break by id.
type Index struct {
	Name   string
	Kind   models.Kind
	Unique bool
	Keys   func(e models.Entity) [][]any
}

func one(parts ...any) [][]any { return [][]any{parts} }

var definitions = []*Index{
	{Name: ProfileByUser, Kind: models.KindProfile, Unique: true, Keys: func(e models.Entity) [][]any {
		p := e.(*models.Profile)
		return one(p.UserID)
	}},
	{Name: ProfileByHandle, Kind: models.KindProfile, Unique: true, Keys: func(e models.Entity) [][]any {
		p := e.(*models.Profile)
		return one(p.Handle)
	}},
	{Name: ProfileByActive, Kind: models.KindProfile, Keys: func(e models.Entity) [][]any {
		p := e.(*models.Profile)
		return one(p.LastActiveAt)
	}},
	{Name: ProfileByGroupActive, Kind: models.KindProfile, Keys: func(e models.Entity) [][]any {
		p := e.(*models.Profile)
		return one(p.AgeGroup, p.LastActiveAt)
	}},
	{Name: ProfileByGroupGenderActive, Kind: models.KindProfile, Keys: func(e models.Entity) [][]any {
		p := e.(*models.Profile)
		return one(p.AgeGroup, p.Gender, p.LastActiveAt)
	}},
	{Name: ProfileByGroupPrefActive, Kind: models.KindProfile, Keys: func(e models.Entity) [][]any {
		p := e.(*models.Profile)
		return one(p.AgeGroup, p.GenderPreference, p.LastActiveAt)
	}},
	{Name: ProfileByCountryGroupActive, Kind: models.KindProfile, Keys: func(e models.Entity) [][]any {
		p := e.(*models.Profile)
		return one(p.Country, p.AgeGroup, p.LastActiveAt)
	}},
	textIndex(ProfileNameText, nameTokens, func(p *models.Profile) []any { return []any{p.AgeGroup} }),
	textIndex(ProfileNameGenderText, nameTokens, func(p *models.Profile) []any { return []any{p.AgeGroup, p.Gender} }),
	textIndex(ProfileNamePrefText, nameTokens, func(p *models.Profile) []any { return []any{p.AgeGroup, p.GenderPreference} }),
	textIndex(ProfileNameCountryText, nameTokens, func(p *models.Profile) []any { return []any{p.Country, p.AgeGroup} }),
	textIndex(ProfileHandleText, handleTokens, func(p *models.Profile) []any { return []any{p.AgeGroup} }),
	textIndex(ProfileHandleGenderText, handleTokens, func(p *models.Profile) []any { return []any{p.AgeGroup, p.Gender} }),
	textIndex(ProfileHandlePrefText, handleTokens, func(p *models.Profile) []any { return []any{p.AgeGroup, p.GenderPreference} }),
	textIndex(ProfileHandleCountryText, handleTokens, func(p *models.Profile) []any { return []any{p.Country, p.AgeGroup} }),

	{Name: BlockByBlocker, Kind: models.KindBlock, Keys: func(e models.Entity) [][]any {
		b := e.(*models.Block)
		return one(b.BlockerID, b.CreatedAt)
	}},
	{Name: BlockByBlocked, Kind: models.KindBlock, Keys: func(e models.Entity) [][]any {
		b := e.(*models.Block)
		return one(b.BlockedID, b.CreatedAt)
	}},
	{Name: BlockByPair, Kind: models.KindBlock, Unique: true, Keys: func(e models.Entity) [][]any {
		b := e.(*models.Block)
		return one(b.BlockerID, b.BlockedID)
	}},

	{Name: RequestBySender, Kind: models.KindFriendRequest, Keys: func(e models.Entity) [][]any {
		r := e.(*models.FriendRequest)
		return one(r.SenderID, r.CreatedAt)
	}},
	{Name: RequestByReceiver, Kind: models.KindFriendRequest, Keys: func(e models.Entity) [][]any {
		r := e.(*models.FriendRequest)
		return one(r.ReceiverID, r.CreatedAt)
	}},
	{Name: RequestByPair, Kind: models.KindFriendRequest, Unique: true, Keys: func(e models.Entity) [][]any {
		r := e.(*models.FriendRequest)
		return one(r.SenderID, r.ReceiverID)
	}},

	{Name: FriendshipByMember, Kind: models.KindFriendship, Keys: func(e models.Entity) [][]any {
		f := e.(*models.Friendship)
		return [][]any{{f.UserID1, f.CreatedAt}, {f.UserID2, f.CreatedAt}}
	}},
	{Name: FriendshipByPair, Kind: models.KindFriendship, Unique: true, Keys: func(e models.Entity) [][]any {
		f := e.(*models.Friendship)
		return one(f.UserID1, f.UserID2)
	}},

	{Name: PostByCreated, Kind: models.KindPost, Keys: func(e models.Entity) [][]any {
		p := e.(*models.Post)
		return one(p.CreatedAt)
	}},
	{Name: PostByOwner, Kind: models.KindPost, Keys: func(e models.Entity) [][]any {
		p := e.(*models.Post)
		return one(p.UserID, p.CreatedAt)
	}},

	{Name: CommentByOwner, Kind: models.KindComment, Keys: func(e models.Entity) [][]any {
		c := e.(*models.Comment)
		return one(c.UserID, c.CreatedAt)
	}},
	{Name: CommentByPost, Kind: models.KindComment, Keys: func(e models.Entity) [][]any {
		c := e.(*models.Comment)
		return one(c.PostID, c.CreatedAt)
	}},

	{Name: LikeByOwner, Kind: models.KindLike, Keys: func(e models.Entity) [][]any {
		l := e.(*models.Like)
		return one(l.UserID, l.CreatedAt)
	}},
	{Name: LikeByPost, Kind: models.KindLike, Keys: func(e models.Entity) [][]any {
		l := e.(*models.Like)
		return one(l.PostID, l.CreatedAt)
	}},
	{Name: LikeByPair, Kind: models.KindLike, Unique: true, Keys: func(e models.Entity) [][]any {
		l := e.(*models.Like)
		return one(l.UserID, l.PostID)
	}},
}

func nameTokens(p *models.Profile) []string   { return Tokens(p.DisplayName) }
func handleTokens(p *models.Profile) []string { return HandleTokens(p.Handle) }

// textIndex builds a token index over a profile field. Each token gets one
// entry keyed by the filter prefix followed by the token, so a search pinned
// to the same filters as discovery scans only matching profiles.
func textIndex(name string, tokens func(*models.Profile) []string, prefix func(*models.Profile) []any) *Index {
	return &Index{Name: name, Kind: models.KindProfile, Keys: func(e models.Entity) [][]any {
		p := e.(*models.Profile)
		head := prefix(p)
		toks := tokens(p)
		keys := make([][]any, 0, len(toks))
		for _, t := range toks {
			key := make([]any, 0, len(head)+1)
			key = append(append(key, head...), t)
			keys = append(keys, key)
		}
		return keys
	}}
}

var (
	byName = map[string]*Index{}
	byKind = map[models.Kind][]*Index{}
)

func init() {
	for _, idx := range definitions {
		if _, dup := byName[idx.Name]; dup {
			panic(fmt.Sprintf("store: duplicate index %s", idx.Name))
		}
		byName[idx.Name] = idx
		byKind[idx.Kind] = append(byKind[idx.Kind], idx)
	}
}

// IndexByName returns the index definition registered under name.
func IndexByName(name string) (*Index, bool) {
	idx, ok := byName[name]
	return idx, ok
}

// IndexesFor returns the indexes maintained for kind.
func IndexesFor(kind models.Kind) []*Index {
	return byKind[kind]
}

// IndexNames lists every registered index, sorted.
func IndexNames() []string {
	names := make([]string, 0, len(byName))
	for n := range byName {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// entries computes the index rows e occupies across every index of its kind.
func entries(e models.Entity) ([]models.IndexEntry, error) {
	id := e.Base().ID
	var out []models.IndexEntry
	for _, idx := range byKind[e.Kind()] {
		for _, tuple := range idx.Keys(e) {
			if !idx.Unique {
				tuple = append(tuple, id)
			}
			key, err := EncodeKey(tuple...)
			if err != nil {
				return nil, fmt.Errorf("index %s: %w", idx.Name, err)
			}
			out = append(out, models.IndexEntry{IndexName: idx.Name, Key: key, EntityID: id})
		}
	}
	return out, nil
}
