package server

import (
	"kinship/internal/discovery"
	"kinship/internal/featureflags"
	"kinship/internal/middleware"
	"kinship/internal/models"

	"github.com/gofiber/fiber/v2"
)

func discoveryFilters(c *fiber.Ctx) discovery.Filters {
	return discovery.Filters{
		Country:          c.Query("country"),
		Gender:           models.Gender(c.Query("gender")),
		LanguageSpoken:   c.Query("speaks"),
		LanguageLearning: c.Query("learning"),
	}
}

// FindCandidates handles GET /api/discover
// @Summary Discover people to befriend
// @Description Profiles from the caller's age group, most recently active first.
// @Tags Discovery
// @Produce json
// @Param country query string false "ISO 3166 alpha-2 country"
// @Param gender query string false "male, female or other"
// @Param speaks query string false "Spoken language code"
// @Param learning query string false "Language code being learned"
// @Param limit query int false "Page size" default(20)
// @Param cursor query string false "Cursor from the previous page"
// @Success 200 {object} map[string]interface{}
// @Failure 400 {object} models.ErrorResponse
// @Router /discover [get]
func (s *Server) FindCandidates(c *fiber.Ctx) error {
	page, err := s.parsePagination(c)
	if err != nil {
		return nil
	}
	res, err := s.discovery.FindCandidates(c.UserContext(), middleware.UserID(c),
		discoveryFilters(c), page.Cursor, page.Limit)
	if err != nil {
		return s.fail(c, err)
	}
	return c.JSON(res)
}

// SearchProfiles handles GET /api/discover/search?q=...
// @Summary Search profiles by name or handle
// @Tags Discovery
// @Produce json
// @Param q query string true "Search text"
// @Param field query string false "name, handle or any" default(any)
// @Param limit query int false "Page size" default(20)
// @Param cursor query string false "Cursor from the previous page"
// @Success 200 {object} map[string]interface{}
// @Failure 400 {object} models.ErrorResponse
// @Router /discover/search [get]
func (s *Server) SearchProfiles(c *fiber.Ctx) error {
	userID := middleware.UserID(c)
	if !s.featureFlags.Enabled(featureflags.DiscoverySearch, userID) {
		return models.RespondWithError(c, fiber.StatusNotFound,
			models.NewNotFoundError("feature", featureflags.DiscoverySearch))
	}
	q := c.Query("q")
	if q == "" {
		return models.RespondWithError(c, fiber.StatusBadRequest,
			models.NewValidationError("Search query is required"))
	}
	page, err := s.parsePagination(c)
	if err != nil {
		return nil
	}
	res, err := s.discovery.Search(c.UserContext(), userID, q,
		discovery.Field(c.Query("field", string(discovery.FieldAny))),
		discoveryFilters(c), page.Cursor, page.Limit)
	if err != nil {
		return s.fail(c, err)
	}
	return c.JSON(res)
}
