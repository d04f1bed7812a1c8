package server

import (
	"kinship/internal/middleware"
	"kinship/internal/models"

	"github.com/gofiber/fiber/v2"
)

// SendFriendRequest handles POST /api/friends/requests/:userId
// @Summary Send a friend request
// @Tags Friends
// @Accept json
// @Produce json
// @Param userId path string true "Receiver user ID"
// @Success 201 {object} models.FriendRequest
// @Failure 400 {object} models.ErrorResponse
// @Failure 404 {object} models.ErrorResponse
// @Failure 409 {object} models.ErrorResponse
// @Router /friends/requests/{userId} [post]
func (s *Server) SendFriendRequest(c *fiber.Ctx) error {
	target, err := parseID(c, "userId")
	if err != nil {
		return nil
	}
	var req struct {
		Message string `json:"message"`
	}
	// The body is optional.
	if len(c.Body()) > 0 {
		if err := c.BodyParser(&req); err != nil {
			return models.RespondWithError(c, fiber.StatusBadRequest,
				models.NewValidationError("Invalid request body"))
		}
	}
	fr, err := s.relationships.SendRequest(c.UserContext(), middleware.UserID(c), target, req.Message)
	if err != nil {
		return s.fail(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(fr)
}

// GetPendingRequests handles GET /api/friends/requests
func (s *Server) GetPendingRequests(c *fiber.Ctx) error {
	reqs, err := s.relationships.ListIncoming(c.UserContext(), middleware.UserID(c))
	if err != nil {
		return s.fail(c, err)
	}
	return c.JSON(list(reqs))
}

// GetSentRequests handles GET /api/friends/requests/sent
func (s *Server) GetSentRequests(c *fiber.Ctx) error {
	reqs, err := s.relationships.ListOutgoing(c.UserContext(), middleware.UserID(c))
	if err != nil {
		return s.fail(c, err)
	}
	return c.JSON(list(reqs))
}

// AcceptFriendRequest handles POST /api/friends/requests/:requestId/accept
func (s *Server) AcceptFriendRequest(c *fiber.Ctx) error {
	requestID, err := parseID(c, "requestId")
	if err != nil {
		return nil
	}
	friendship, err := s.relationships.AcceptRequest(c.UserContext(), middleware.UserID(c), requestID)
	if err != nil {
		return s.fail(c, err)
	}
	return c.JSON(friendship)
}

// DeclineFriendRequest handles POST /api/friends/requests/:requestId/decline
func (s *Server) DeclineFriendRequest(c *fiber.Ctx) error {
	requestID, err := parseID(c, "requestId")
	if err != nil {
		return nil
	}
	if err := s.relationships.DeclineRequest(c.UserContext(), middleware.UserID(c), requestID); err != nil {
		return s.fail(c, err)
	}
	return c.SendStatus(fiber.StatusNoContent)
}

// CancelFriendRequest handles DELETE /api/friends/requests/:requestId
func (s *Server) CancelFriendRequest(c *fiber.Ctx) error {
	requestID, err := parseID(c, "requestId")
	if err != nil {
		return nil
	}
	if err := s.relationships.CancelRequest(c.UserContext(), middleware.UserID(c), requestID); err != nil {
		return s.fail(c, err)
	}
	return c.SendStatus(fiber.StatusNoContent)
}

// GetFriends handles GET /api/friends
func (s *Server) GetFriends(c *fiber.Ctx) error {
	friends, err := s.relationships.ListFriends(c.UserContext(), middleware.UserID(c))
	if err != nil {
		return s.fail(c, err)
	}
	return c.JSON(list(friends))
}

// GetRelationshipStatus handles GET /api/friends/status/:userId
func (s *Server) GetRelationshipStatus(c *fiber.Ctx) error {
	target, err := parseID(c, "userId")
	if err != nil {
		return nil
	}
	status, err := s.relationships.Status(c.UserContext(), middleware.UserID(c), target)
	if err != nil {
		return s.fail(c, err)
	}
	return c.JSON(status)
}

// RemoveFriend handles DELETE /api/friends/:userId
func (s *Server) RemoveFriend(c *fiber.Ctx) error {
	target, err := parseID(c, "userId")
	if err != nil {
		return nil
	}
	if err := s.relationships.Unfriend(c.UserContext(), middleware.UserID(c), target); err != nil {
		return s.fail(c, err)
	}
	return c.SendStatus(fiber.StatusNoContent)
}
