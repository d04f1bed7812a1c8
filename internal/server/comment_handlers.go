package server

import (
	"kinship/internal/middleware"
	"kinship/internal/models"

	"github.com/gofiber/fiber/v2"
)

type createCommentRequest struct {
	Content string `json:"content"`
}

// GetComments handles GET /api/posts/:id/comments
func (s *Server) GetComments(c *fiber.Ctx) error {
	postID, err := parseID(c, "id")
	if err != nil {
		return nil
	}
	page, err := s.parsePagination(c)
	if err != nil {
		return nil
	}
	res, err := s.feed.ListComments(c.UserContext(), middleware.UserID(c), postID, page.Cursor, page.Limit)
	if err != nil {
		return s.fail(c, err)
	}
	return c.JSON(res)
}

// CreateComment handles POST /api/posts/:id/comments
func (s *Server) CreateComment(c *fiber.Ctx) error {
	postID, err := parseID(c, "id")
	if err != nil {
		return nil
	}
	var req createCommentRequest
	if err := c.BodyParser(&req); err != nil {
		return models.RespondWithError(c, fiber.StatusBadRequest,
			models.NewValidationError("Invalid request body"))
	}
	comment, err := s.feed.AddComment(c.UserContext(), middleware.UserID(c), postID, req.Content)
	if err != nil {
		return s.fail(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(comment)
}

// DeleteComment handles DELETE /api/comments/:id
func (s *Server) DeleteComment(c *fiber.Ctx) error {
	commentID, err := parseID(c, "id")
	if err != nil {
		return nil
	}
	if err := s.feed.DeleteComment(c.UserContext(), middleware.UserID(c), commentID); err != nil {
		return s.fail(c, err)
	}
	return c.SendStatus(fiber.StatusNoContent)
}
