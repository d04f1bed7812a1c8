package server

import (
	"kinship/internal/middleware"
	"kinship/internal/models"

	"github.com/gofiber/fiber/v2"
)

type createPostRequest struct {
	Content  string `json:"content"`
	ImageRef string `json:"image_ref,omitempty"`
}

// GetPosts handles GET /api/posts
// @Summary List posts
// @Description Newest first. Pass user_id to list one user's posts.
// @Tags Posts
// @Produce json
// @Param user_id query string false "Only posts by this user"
// @Param limit query int false "Page size" default(20)
// @Param cursor query string false "Cursor from the previous page"
// @Success 200 {object} map[string]interface{}
// @Router /posts [get]
func (s *Server) GetPosts(c *fiber.Ctx) error {
	page, err := s.parsePagination(c)
	if err != nil {
		return nil
	}
	res, err := s.feed.ListPosts(c.UserContext(), middleware.UserID(c), c.Query("user_id"), page.Cursor, page.Limit)
	if err != nil {
		return s.fail(c, err)
	}
	return c.JSON(res)
}

// GetPost handles GET /api/posts/:id
func (s *Server) GetPost(c *fiber.Ctx) error {
	postID, err := parseID(c, "id")
	if err != nil {
		return nil
	}
	post, err := s.feed.GetPost(c.UserContext(), middleware.UserID(c), postID)
	if err != nil {
		return s.fail(c, err)
	}
	return c.JSON(post)
}

// CreatePost handles POST /api/posts
// @Summary Create a post
// @Tags Posts
// @Accept json
// @Produce json
// @Param post body createPostRequest true "Post content"
// @Success 201 {object} models.PostView
// @Failure 400 {object} models.ErrorResponse
// @Failure 403 {object} models.ErrorResponse
// @Router /posts [post]
func (s *Server) CreatePost(c *fiber.Ctx) error {
	var req createPostRequest
	if err := c.BodyParser(&req); err != nil {
		return models.RespondWithError(c, fiber.StatusBadRequest,
			models.NewValidationError("Invalid request body"))
	}
	post, err := s.feed.CreatePost(c.UserContext(), middleware.UserID(c), req.Content, req.ImageRef)
	if err != nil {
		return s.fail(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(post)
}

// DeletePost handles DELETE /api/posts/:id
func (s *Server) DeletePost(c *fiber.Ctx) error {
	postID, err := parseID(c, "id")
	if err != nil {
		return nil
	}
	if err := s.feed.DeletePost(c.UserContext(), middleware.UserID(c), postID); err != nil {
		return s.fail(c, err)
	}
	return c.SendStatus(fiber.StatusNoContent)
}

// ToggleLike handles POST /api/posts/:id/like
func (s *Server) ToggleLike(c *fiber.Ctx) error {
	postID, err := parseID(c, "id")
	if err != nil {
		return nil
	}
	post, err := s.feed.ToggleLike(c.UserContext(), middleware.UserID(c), postID)
	if err != nil {
		return s.fail(c, err)
	}
	return c.JSON(post)
}
