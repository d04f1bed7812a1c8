package server

import (
	"kinship/internal/middleware"

	"github.com/gofiber/fiber/v2"
)

// BlockUser handles POST /api/blocks/:userId
func (s *Server) BlockUser(c *fiber.Ctx) error {
	target, err := parseID(c, "userId")
	if err != nil {
		return nil
	}
	block, err := s.relationships.Block(c.UserContext(), middleware.UserID(c), target)
	if err != nil {
		return s.fail(c, err)
	}
	return c.JSON(block)
}

// UnblockUser handles DELETE /api/blocks/:userId
func (s *Server) UnblockUser(c *fiber.Ctx) error {
	target, err := parseID(c, "userId")
	if err != nil {
		return nil
	}
	if err := s.relationships.Unblock(c.UserContext(), middleware.UserID(c), target); err != nil {
		return s.fail(c, err)
	}
	return c.SendStatus(fiber.StatusNoContent)
}

// GetBlocks handles GET /api/blocks
func (s *Server) GetBlocks(c *fiber.Ctx) error {
	blocks, err := s.relationships.ListBlocked(c.UserContext(), middleware.UserID(c))
	if err != nil {
		return s.fail(c, err)
	}
	return c.JSON(list(blocks))
}
