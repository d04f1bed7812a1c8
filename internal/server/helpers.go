package server

import (
	"errors"
	"strconv"
	"strings"
	"unicode"

	"kinship/internal/middleware"
	"kinship/internal/models"

	"github.com/gofiber/fiber/v2"
)

// errResponseWritten is a sentinel indicating the HTTP response was already
// committed by a helper. Handlers must return nil (not this error) to avoid
// Fiber's ErrorHandler overwriting the response.
var errResponseWritten = errors.New("response already written")

// maxIDLength bounds route identifiers; user ids and record ids both fit.
const maxIDLength = 128

// Pagination holds the parsed limit and cursor query parameters.
type Pagination struct {
	Limit  int
	Cursor string
}

// parsePagination reads ?limit and ?cursor. A missing limit takes the
// configured default; larger limits are capped. A malformed limit writes a
// 400 and returns errResponseWritten.
func (s *Server) parsePagination(c *fiber.Ctx) (Pagination, error) {
	def := s.config.DefaultPageSize
	if def <= 0 {
		def = 20
	}
	limit := def
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			_ = models.RespondWithError(c, fiber.StatusBadRequest,
				models.NewValidationError("limit must be a positive integer"))
			return Pagination{}, errResponseWritten
		}
		limit = n
	}
	if maxLimit := s.config.MaxPageSize; maxLimit > 0 && limit > maxLimit {
		limit = maxLimit
	}
	return Pagination{Limit: limit, Cursor: c.Query("cursor")}, nil
}

// parseID extracts a non-empty route parameter.
// On failure it writes a 400 JSON response and returns errResponseWritten.
// The error message is derived from the parameter name (e.g. "id" -> "Invalid ID",
// "userId" -> "Invalid user ID").
func parseID(c *fiber.Ctx, param string) (string, error) {
	id := strings.TrimSpace(c.Params(param))
	if id == "" || len(id) > maxIDLength {
		_ = models.RespondWithError(c, fiber.StatusBadRequest,
			models.NewValidationError("Invalid "+humanizeParam(param)))
		return "", errResponseWritten
	}
	return id, nil
}

// humanizeParam converts a route param name into a human-readable label.
// Examples: "id" -> "ID", "userId" -> "user ID", "requestId" -> "request ID".
func humanizeParam(param string) string {
	if param == "id" {
		return "ID"
	}
	if prefix, ok := strings.CutSuffix(param, "Id"); ok {
		return strings.ToLower(strings.Join(splitCamel(prefix), " ")) + " ID"
	}
	return param
}

// splitCamel splits a camelCase string into words.
func splitCamel(s string) []string {
	var words []string
	start := 0
	for i, r := range s {
		if i > 0 && unicode.IsUpper(r) {
			words = append(words, s[start:i])
			start = i
		}
	}
	return append(words, s[start:])
}

// fail writes err with the status its code maps to. Internal faults are
// logged here; expected errors are not.
func (s *Server) fail(c *fiber.Ctx, err error) error {
	status := models.StatusFor(err)
	if status >= fiber.StatusInternalServerError {
		middleware.Logger.ErrorContext(c.UserContext(), "request failed",
			"path", c.Path(), "error", err.Error())
		if !errors.Is(err, models.ErrInconsistent) {
			err = models.NewInternalError(err)
		}
	}
	return models.RespondWithError(c, status, err)
}

// list wraps a complete, unpaginated listing in the page envelope.
func list[T any](items []T) models.Page[T] {
	if items == nil {
		items = []T{}
	}
	return models.Page[T]{Items: items}
}
