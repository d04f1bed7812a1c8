// Package middleware provides the HTTP middleware stack: identity, logging,
// tracing, metrics, rate limiting and activity tracking.
package middleware

import (
	"context"
	"strings"

	"kinship/internal/config"
	"kinship/internal/models"

	"github.com/gofiber/fiber/v2"
	"github.com/golang-jwt/jwt/v5"
)

// maxSubjectLen matches the width of user id columns.
const maxSubjectLen = 128

// UserID returns the authenticated caller set by AuthRequired.
func UserID(c *fiber.Ctx) string {
	uid, _ := c.Locals("userID").(string)
	return uid
}

// AuthRequired validates a bearer token issued by the identity provider and
// stores its subject as the caller's user id. The subject is opaque; this
// service never mints tokens.
func AuthRequired(cfg *config.Config) fiber.Handler {
	return func(c *fiber.Ctx) error {
		authHeader := c.Get("Authorization")
		if authHeader == "" {
			return models.RespondWithError(c, fiber.StatusUnauthorized,
				models.NewUnauthorizedError("Authorization header required"))
		}

		parts := strings.Split(authHeader, " ")
		if len(parts) != 2 || parts[0] != "Bearer" {
			return models.RespondWithError(c, fiber.StatusUnauthorized,
				models.NewUnauthorizedError("Invalid authorization header format"))
		}

		userID, err := ParseToken(cfg, parts[1])
		if err != nil {
			return models.RespondWithError(c, fiber.StatusUnauthorized, err)
		}

		c.Locals("userID", userID)
		ctx := context.WithValue(c.UserContext(), UserIDKey, userID)
		c.SetUserContext(ctx)

		return c.Next()
	}
}

// ParseToken validates an HMAC-signed JWT and returns its subject. Issuer and
// audience are checked when configured.
func ParseToken(cfg *config.Config, tokenString string) (string, error) {
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{"HS256", "HS384", "HS512"}),
		jwt.WithExpirationRequired(),
	}
	if cfg.JWTIssuer != "" {
		opts = append(opts, jwt.WithIssuer(cfg.JWTIssuer))
	}
	if cfg.JWTAudience != "" {
		opts = append(opts, jwt.WithAudience(cfg.JWTAudience))
	}

	token, err := jwt.Parse(tokenString, func(token *jwt.Token) (any, error) {
		return []byte(cfg.JWTSecret), nil
	}, opts...)
	if err != nil || !token.Valid {
		return "", models.NewUnauthorizedError("Invalid or expired token")
	}

	sub, err := token.Claims.GetSubject()
	if err != nil || sub == "" {
		return "", models.NewUnauthorizedError("Invalid token structure - missing subject")
	}
	if len(sub) > maxSubjectLen {
		return "", models.NewUnauthorizedError("Invalid user ID in token")
	}
	return sub, nil
}
