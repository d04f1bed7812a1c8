package models

import "time"

// ProfileSummary is the discovery view of a profile.
type ProfileSummary struct {
	UserID            string    `json:"user_id"`
	DisplayName       string    `json:"display_name"`
	Handle            string    `json:"handle"`
	PictureRef        string    `json:"picture_ref,omitempty"`
	Gender            Gender    `json:"gender"`
	Age               int       `json:"age"`
	AgeGroup          AgeGroup  `json:"age_group"`
	Country           string    `json:"country"`
	LanguagesSpoken   []string  `json:"languages_spoken"`
	LanguagesLearning []string  `json:"languages_learning"`
	Bio               string    `json:"bio"`
	Hobbies           []string  `json:"hobbies"`
	LastActiveAt      time.Time `json:"last_active_at"`
}

// PostView is a post with aggregates computed for one viewer.
// LikesCount and CommentsCount are recomputed on every read, never stored.
type PostView struct {
	Post
	LikesCount    int64 `json:"likes_count"`
	CommentsCount int64 `json:"comments_count"`
	IsLiked       bool  `json:"is_liked"`
	IsOwner       bool  `json:"is_owner"`
}

// CommentView is a comment with per-viewer flags.
type CommentView struct {
	Comment
	IsOwner   bool `json:"is_owner"`
	CanDelete bool `json:"can_delete"`
}

// RelationshipStatus describes how a viewer relates to another user.
type RelationshipStatus struct {
	State     string `json:"state"`
	RequestID string `json:"request_id,omitempty"`
	Direction string `json:"direction,omitempty"`
	BlockedBy string `json:"blocked_by,omitempty"`
}

// Page is one slice of a paginated listing. An empty NextCursor marks the end.
type Page[T any] struct {
	Items      []T    `json:"items"`
	NextCursor string `json:"next_cursor,omitempty"`
}
