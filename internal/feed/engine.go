// Package feed serves posts, likes and comments. Like and comment counts are
// computed from the like and comment indexes on every read and never stored.
package feed

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"unicode/utf8"

	"kinship/internal/models"
	"kinship/internal/observability"
	"kinship/internal/relationship"
	"kinship/internal/store"
)

// Content limits, in characters.
const (
	MaxPostLength    = 2000
	MaxCommentLength = 1000
)

// Engine runs feed operations against the store.
type Engine struct {
	store *store.Store
	log   *observability.OpLogger
}

// NewEngine returns an Engine.
func NewEngine(s *store.Store, logger *slog.Logger) *Engine {
	return &Engine{store: s, log: observability.NewOpLogger("feed", logger)}
}

func (e *Engine) finish(ctx context.Context, op string, err error, fields map[string]any, write bool) {
	switch {
	case err != nil:
		e.log.LogError(ctx, op, err)
	case write:
		e.log.LogWrite(ctx, op, fields)
	default:
		e.log.LogRead(ctx, op, fields)
	}
}

// view assembles the per-viewer aggregates of p. Comments by users in
// blocked are left out of the count, matching what ListComments shows.
func view(tx *store.Tx, viewer string, blocked map[string]struct{}, p *models.Post) (*models.PostView, error) {
	likes, err := tx.Count(store.LikeByPost, p.ID)
	if err != nil {
		return nil, err
	}
	comments, err := visibleComments(tx, blocked, p.ID)
	if err != nil {
		return nil, err
	}
	liked, err := tx.Exists(store.LikeByPair, viewer, p.ID)
	if err != nil {
		return nil, err
	}
	return &models.PostView{
		Post:          *p,
		LikesCount:    likes,
		CommentsCount: comments,
		IsLiked:       liked,
		IsOwner:       p.UserID == viewer,
	}, nil
}

func visibleComments(tx *store.Tx, blocked map[string]struct{}, postID string) (int64, error) {
	if len(blocked) == 0 {
		return tx.Count(store.CommentByPost, postID)
	}
	ids, err := tx.Lookup(store.CommentByPost, postID)
	if err != nil {
		return 0, err
	}
	comments, err := store.Fetch[models.Comment](tx, store.CommentByPost, ids)
	if err != nil {
		return 0, err
	}
	var n int64
	for _, c := range comments {
		if _, hidden := blocked[c.UserID]; !hidden {
			n++
		}
	}
	return n, nil
}

// visiblePost loads a post the viewer may see. Posts by a user in a block
// relation with the viewer read as missing.
func visiblePost(tx *store.Tx, viewer, postID string) (*models.Post, error) {
	var p models.Post
	if err := tx.Get(postID, &p); err != nil {
		return nil, err
	}
	blocked, err := relationship.BlockedEither(tx, viewer, p.UserID)
	if err != nil {
		return nil, err
	}
	if blocked {
		return nil, models.NewNotFoundError("post", postID)
	}
	return &p, nil
}

func isAdmin(tx *store.Tx, user string) (bool, error) {
	var p models.Profile
	err := tx.GetBy(&p, store.ProfileByUser, user)
	if errors.Is(err, models.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return p.IsAdmin, nil
}

func requireProfile(tx *store.Tx, user string) error {
	ok, err := tx.Exists(store.ProfileByUser, user)
	if err != nil {
		return err
	}
	if !ok {
		return models.NewForbiddenError("Create a profile first")
	}
	return nil
}

func checkText(what, text string, limit int) error {
	if n := utf8.RuneCountInString(text); n > limit {
		return models.NewValidationError(fmt.Sprintf("%s must be at most %d characters", what, limit))
	}
	return nil
}

// ListPosts returns one page of posts, newest first. A non-empty owner
// restricts the page to that user's posts. Posts by users in a block relation
// with the viewer are skipped.
func (e *Engine) ListPosts(ctx context.Context, viewer, owner, cursor string, pageSize int) (*models.Page[models.PostView], error) {
	ctx, span := observability.StartEngineSpan(ctx, "feed", "list_posts")
	var err error
	defer func() { observability.EndSpan(span, err) }()

	page := &models.Page[models.PostView]{Items: []models.PostView{}}
	err = e.store.View(ctx, func(tx *store.Tx) error {
		q := store.Query{Index: store.PostByCreated, Token: cursor, Limit: pageSize, Desc: true}
		if owner != "" {
			q.Index = store.PostByOwner
			q.Prefix = []any{owner}
		}
		blocked, err := relationship.BlockedSet(tx, viewer)
		if err != nil {
			return err
		}
		res, err := store.ScanPage[models.Post](tx, q, func(p *models.Post) bool {
			_, hidden := blocked[p.UserID]
			return !hidden
		})
		if err != nil {
			return err
		}
		for _, p := range res.Items {
			v, err := view(tx, viewer, blocked, p)
			if err != nil {
				return err
			}
			page.Items = append(page.Items, *v)
		}
		page.NextCursor = res.Next
		return nil
	})
	e.finish(ctx, "list_posts", err, map[string]any{"viewer": viewer, "owner": owner, "count": len(page.Items)}, false)
	if err != nil {
		return nil, err
	}
	return page, nil
}

// GetPost returns one post as seen by viewer.
func (e *Engine) GetPost(ctx context.Context, viewer, postID string) (*models.PostView, error) {
	var out *models.PostView
	err := e.store.View(ctx, func(tx *store.Tx) error {
		p, err := visiblePost(tx, viewer, postID)
		if err != nil {
			return err
		}
		blocked, err := relationship.BlockedSet(tx, viewer)
		if err != nil {
			return err
		}
		out, err = view(tx, viewer, blocked, p)
		return err
	})
	e.finish(ctx, "get_post", err, map[string]any{"post_id": postID}, false)
	if err != nil {
		return nil, err
	}
	return out, nil
}

// CreatePost stores a new post. It needs text, an image reference, or both.
func (e *Engine) CreatePost(ctx context.Context, author, content, imageRef string) (*models.PostView, error) {
	content = strings.TrimSpace(content)
	imageRef = strings.TrimSpace(imageRef)
	if content == "" && imageRef == "" {
		return nil, models.NewValidationError("A post needs text or an image")
	}
	if err := checkText("Post", content, MaxPostLength); err != nil {
		return nil, err
	}

	var out *models.PostView
	err := e.store.Update(ctx, func(tx *store.Tx) error {
		if err := requireProfile(tx, author); err != nil {
			return err
		}
		p := &models.Post{UserID: author, Content: content, ImageRef: imageRef}
		if _, err := tx.Put(p); err != nil {
			return err
		}
		out = &models.PostView{Post: *p, IsOwner: true}
		return nil
	})
	e.finish(ctx, "create_post", err, map[string]any{"author": author}, true)
	if err != nil {
		return nil, err
	}
	return out, nil
}

// ToggleLike likes the post if viewer has not, and unlikes it otherwise. The
// returned view reflects the new state.
func (e *Engine) ToggleLike(ctx context.Context, viewer, postID string) (*models.PostView, error) {
	var out *models.PostView
	err := e.store.Update(ctx, func(tx *store.Tx) error {
		if err := requireProfile(tx, viewer); err != nil {
			return err
		}
		p, err := visiblePost(tx, viewer, postID)
		if err != nil {
			return err
		}
		var like models.Like
		err = tx.GetBy(&like, store.LikeByPair, viewer, postID)
		switch {
		case err == nil:
			if err := tx.Remove(&like); err != nil {
				return err
			}
		case errors.Is(err, models.ErrNotFound):
			if _, err := tx.Put(&models.Like{UserID: viewer, PostID: postID}); err != nil {
				return err
			}
		default:
			return err
		}
		blocked, err := relationship.BlockedSet(tx, viewer)
		if err != nil {
			return err
		}
		out, err = view(tx, viewer, blocked, p)
		return err
	})
	e.finish(ctx, "toggle_like", err, map[string]any{"viewer": viewer, "post_id": postID}, true)
	if err != nil {
		return nil, err
	}
	return out, nil
}

// AddComment appends a comment to a visible post.
func (e *Engine) AddComment(ctx context.Context, viewer, postID, content string) (*models.CommentView, error) {
	content = strings.TrimSpace(content)
	if content == "" {
		return nil, models.NewValidationError("Comment cannot be empty")
	}
	if err := checkText("Comment", content, MaxCommentLength); err != nil {
		return nil, err
	}

	var out *models.CommentView
	err := e.store.Update(ctx, func(tx *store.Tx) error {
		if err := requireProfile(tx, viewer); err != nil {
			return err
		}
		if _, err := visiblePost(tx, viewer, postID); err != nil {
			return err
		}
		c := &models.Comment{UserID: viewer, PostID: postID, Content: content}
		if _, err := tx.Put(c); err != nil {
			return err
		}
		out = &models.CommentView{Comment: *c, IsOwner: true, CanDelete: true}
		return nil
	})
	e.finish(ctx, "add_comment", err, map[string]any{"viewer": viewer, "post_id": postID}, true)
	if err != nil {
		return nil, err
	}
	return out, nil
}

// ListComments returns one page of a post's comments, oldest first. Comments
// by users in a block relation with the viewer are skipped.
func (e *Engine) ListComments(ctx context.Context, viewer, postID, cursor string, pageSize int) (*models.Page[models.CommentView], error) {
	page := &models.Page[models.CommentView]{Items: []models.CommentView{}}
	err := e.store.View(ctx, func(tx *store.Tx) error {
		p, err := visiblePost(tx, viewer, postID)
		if err != nil {
			return err
		}
		admin, err := isAdmin(tx, viewer)
		if err != nil {
			return err
		}
		blocked, err := relationship.BlockedSet(tx, viewer)
		if err != nil {
			return err
		}
		res, err := store.ScanPage[models.Comment](tx, store.Query{
			Index:  store.CommentByPost,
			Prefix: []any{postID},
			Token:  cursor,
			Limit:  pageSize,
		}, func(c *models.Comment) bool {
			_, hidden := blocked[c.UserID]
			return !hidden
		})
		if err != nil {
			return err
		}
		for _, c := range res.Items {
			own := c.UserID == viewer
			page.Items = append(page.Items, models.CommentView{
				Comment:   *c,
				IsOwner:   own,
				CanDelete: own || p.UserID == viewer || admin,
			})
		}
		page.NextCursor = res.Next
		return nil
	})
	e.finish(ctx, "list_comments", err, map[string]any{"post_id": postID, "count": len(page.Items)}, false)
	if err != nil {
		return nil, err
	}
	return page, nil
}

// DeleteComment removes a comment. Its author, the post owner and admins may
// delete it.
func (e *Engine) DeleteComment(ctx context.Context, viewer, commentID string) error {
	err := e.store.Update(ctx, func(tx *store.Tx) error {
		var c models.Comment
		if err := tx.Get(commentID, &c); err != nil {
			return err
		}
		if c.UserID != viewer {
			var p models.Post
			if err := tx.Get(c.PostID, &p); err != nil {
				return err
			}
			if p.UserID != viewer {
				admin, err := isAdmin(tx, viewer)
				if err != nil {
					return err
				}
				if !admin {
					return models.NewForbiddenError("Only the author or the post owner can delete this comment")
				}
			}
		}
		return tx.Remove(&c)
	})
	e.finish(ctx, "delete_comment", err, map[string]any{"viewer": viewer, "comment_id": commentID}, true)
	return err
}

// DeletePost removes a post together with all of its comments and likes.
// Only the owner and admins may delete it.
func (e *Engine) DeletePost(ctx context.Context, viewer, postID string) error {
	ctx, span := observability.StartEngineSpan(ctx, "feed", "delete_post")
	var err error
	defer func() { observability.EndSpan(span, err) }()

	removed := 0
	err = e.store.Update(ctx, func(tx *store.Tx) error {
		removed = 0
		var p models.Post
		if err := tx.Get(postID, &p); err != nil {
			return err
		}
		if p.UserID != viewer {
			admin, err := isAdmin(tx, viewer)
			if err != nil {
				return err
			}
			if !admin {
				return models.NewForbiddenError("Only the owner can delete this post")
			}
		}

		commentIDs, err := tx.Lookup(store.CommentByPost, postID)
		if err != nil {
			return err
		}
		comments, err := store.Fetch[models.Comment](tx, store.CommentByPost, commentIDs)
		if err != nil {
			return err
		}
		for _, c := range comments {
			if err := tx.Remove(c); err != nil {
				return err
			}
		}

		likeIDs, err := tx.Lookup(store.LikeByPost, postID)
		if err != nil {
			return err
		}
		likes, err := store.Fetch[models.Like](tx, store.LikeByPost, likeIDs)
		if err != nil {
			return err
		}
		for _, l := range likes {
			if err := tx.Remove(l); err != nil {
				return err
			}
		}
		removed = len(comments) + len(likes)
		return tx.Remove(&p)
	})
	e.finish(ctx, "delete_post", err, map[string]any{"post_id": postID, "dependents": removed}, true)
	return err
}
