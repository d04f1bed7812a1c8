package models

// Post is immutable once created; only its owner (or an admin) may delete it.
type Post struct {
	Record
	UserID   string `gorm:"size:128;not null" json:"user_id"`
	Content  string `gorm:"type:text" json:"content"`
	ImageRef string `json:"image_ref,omitempty"`
}

// TableName specifies the table name for GORM
func (Post) TableName() string {
	return "posts"
}

// Kind implements Entity.
func (Post) Kind() Kind { return KindPost }

// Comment belongs to a post. Deletable by its author or the post owner.
type Comment struct {
	Record
	UserID  string `gorm:"size:128;not null" json:"user_id"`
	PostID  string `gorm:"size:36;not null" json:"post_id"`
	Content string `gorm:"type:text;not null" json:"content"`
}

// TableName specifies the table name for GORM
func (Comment) TableName() string {
	return "comments"
}

// Kind implements Entity.
func (Comment) Kind() Kind { return KindComment }

// Like represents a user's like on a post.
// The combination of UserID and PostID must be unique.
type Like struct {
	Record
	UserID string `gorm:"size:128;not null" json:"user_id"`
	PostID string `gorm:"size:36;not null" json:"post_id"`
}

// TableName specifies the table name for GORM
func (Like) TableName() string {
	return "likes"
}

// Kind implements Entity.
func (Like) Kind() Kind { return KindLike }
