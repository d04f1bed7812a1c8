package server

import (
	"kinship/internal/middleware"
	"kinship/internal/models"
	"kinship/internal/profile"

	"github.com/gofiber/fiber/v2"
)

// GetMyProfile handles GET /api/profiles/me
func (s *Server) GetMyProfile(c *fiber.Ctx) error {
	userID := middleware.UserID(c)
	p, err := s.profiles.Get(c.UserContext(), userID, userID)
	if err != nil {
		return s.fail(c, err)
	}
	return c.JSON(p)
}

// UpsertMyProfile handles PUT /api/profiles/me
// @Summary Create or replace the caller's profile
// @Tags Profiles
// @Accept json
// @Produce json
// @Param profile body profile.Input true "Profile fields"
// @Success 200 {object} models.Profile
// @Failure 400 {object} models.ErrorResponse
// @Failure 409 {object} models.ErrorResponse
// @Router /profiles/me [put]
func (s *Server) UpsertMyProfile(c *fiber.Ctx) error {
	var in profile.Input
	if err := c.BodyParser(&in); err != nil {
		return models.RespondWithError(c, fiber.StatusBadRequest,
			models.NewValidationError("Invalid request body"))
	}
	p, err := s.profiles.Upsert(c.UserContext(), middleware.UserID(c), in)
	if err != nil {
		return s.fail(c, err)
	}
	return c.JSON(p)
}

// GetProfile handles GET /api/profiles/:userId
func (s *Server) GetProfile(c *fiber.Ctx) error {
	target, err := parseID(c, "userId")
	if err != nil {
		return nil
	}
	p, err := s.profiles.Get(c.UserContext(), middleware.UserID(c), target)
	if err != nil {
		return s.fail(c, err)
	}
	return c.JSON(p.Summary())
}
