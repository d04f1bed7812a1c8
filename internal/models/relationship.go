package models

// Block is a directed edge. Its effect is symmetric: either direction hides
// the pair from each other.
type Block struct {
	Record
	BlockerID string `gorm:"size:128;not null" json:"blocker_id"`
	BlockedID string `gorm:"size:128;not null" json:"blocked_id"`
}

// TableName specifies the table name for GORM
func (Block) TableName() string {
	return "blocks"
}

// Kind implements Entity.
func (Block) Kind() Kind { return KindBlock }

// FriendRequest is a pending, directed request.
type FriendRequest struct {
	Record
	SenderID   string `gorm:"size:128;not null" json:"sender_id"`
	ReceiverID string `gorm:"size:128;not null" json:"receiver_id"`
	Message    string `gorm:"type:text" json:"message"`
}

// TableName specifies the table name for GORM
func (FriendRequest) TableName() string {
	return "friend_requests"
}

// Kind implements Entity.
func (FriendRequest) Kind() Kind { return KindFriendRequest }

// Friendship is an undirected edge stored with UserID1 < UserID2.
type Friendship struct {
	Record
	UserID1 string `gorm:"size:128;not null" json:"user_id_1"`
	UserID2 string `gorm:"size:128;not null" json:"user_id_2"`
}

// TableName specifies the table name for GORM
func (Friendship) TableName() string {
	return "friendships"
}

// Kind implements Entity.
func (Friendship) Kind() Kind { return KindFriendship }

// Other returns the participant that is not userID.
func (f *Friendship) Other(userID string) string {
	if f.UserID1 == userID {
		return f.UserID2
	}
	return f.UserID1
}

// NormalizePair orders two user ids so that the first sorts lower.
func NormalizePair(a, b string) (string, string) {
	if b < a {
		return b, a
	}
	return a, b
}

// NewFriendship builds a friendship with its pair normalized.
func NewFriendship(a, b string) *Friendship {
	lo, hi := NormalizePair(a, b)
	return &Friendship{UserID1: lo, UserID2: hi}
}
