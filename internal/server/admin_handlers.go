package server

import (
	"kinship/internal/middleware"
	"kinship/internal/models"

	"github.com/gofiber/fiber/v2"
)

// GetFeatureFlags returns configured feature flags and evaluated state for current user.
func (s *Server) GetFeatureFlags(c *fiber.Ctx) error {
	if s.featureFlags == nil {
		return c.JSON(fiber.Map{
			"raw":       map[string]string{},
			"evaluated": map[string]bool{},
		})
	}
	return c.JSON(fiber.Map{
		"raw":       s.featureFlags.Raw(),
		"evaluated": s.featureFlags.Snapshot(middleware.UserID(c)),
	})
}

// PromoteToAdmin handles POST /api/admin/users/:userId/promote
func (s *Server) PromoteToAdmin(c *fiber.Ctx) error {
	return s.setAdmin(c, true)
}

// DemoteFromAdmin handles POST /api/admin/users/:userId/demote
func (s *Server) DemoteFromAdmin(c *fiber.Ctx) error {
	return s.setAdmin(c, false)
}

func (s *Server) setAdmin(c *fiber.Ctx, admin bool) error {
	target, err := parseID(c, "userId")
	if err != nil {
		return nil
	}
	if !admin && target == middleware.UserID(c) {
		return models.RespondWithError(c, fiber.StatusBadRequest,
			models.NewValidationError("Admins cannot demote themselves"))
	}
	if err := s.profiles.SetAdmin(c.UserContext(), target, admin); err != nil {
		return s.fail(c, err)
	}
	return c.JSON(fiber.Map{"user_id": target, "is_admin": admin})
}
