// Package models contains the records kept by the entity store and the view
// objects assembled from them.
package models

import "time"

// Kind names an entity type. It doubles as the namespace of its indexes.
type Kind string

const (
	KindProfile       Kind = "profile"
	KindBlock         Kind = "block"
	KindFriendRequest Kind = "friend_request"
	KindFriendship    Kind = "friendship"
	KindPost          Kind = "post"
	KindComment       Kind = "comment"
	KindLike          Kind = "like"
)

// Record carries the identity and creation time shared by every entity.
// Both are assigned by the store on first write and never change.
type Record struct {
	ID        string    `gorm:"primaryKey;size:36" json:"id"`
	CreatedAt time.Time `gorm:"not null" json:"created_at"`
}

// Base exposes the embedded record to the store.
func (r *Record) Base() *Record { return r }

// Entity is implemented by pointers to every persisted model.
type Entity interface {
	Kind() Kind
	Base() *Record
}

// IndexEntry is one row of the secondary index table: an ordered composite
// key within a named index pointing at an entity id.
type IndexEntry struct {
	IndexName string `gorm:"column:index_name;primaryKey;size:64"`
	Key       []byte `gorm:"column:entry_key;primaryKey"`
	EntityID  string `gorm:"size:36;not null;index:idx_index_entries_entity"`
}

// TableName specifies the table name for GORM
func (IndexEntry) TableName() string {
	return "index_entries"
}

// PersistentModels returns every schema-managed GORM model, index table last.
func PersistentModels() []interface{} {
	return []interface{}{
		&Profile{},
		&Block{},
		&FriendRequest{},
		&Friendship{},
		&Post{},
		&Comment{},
		&Like{},
		&IndexEntry{},
	}
}
