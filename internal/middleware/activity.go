package middleware

import (
	"context"
	"errors"
	"time"

	"kinship/internal/models"
	"kinship/internal/observability"

	"github.com/gofiber/fiber/v2"
	"github.com/redis/go-redis/v9"
)

// Toucher records that a user was active.
type Toucher interface {
	Touch(ctx context.Context, userID string) error
}

// Activity bumps the caller's last-active timestamp after authenticated
// requests. With redis, at most one touch per user per interval goes through
// (SET NX EX); without redis every request touches. Failures never fail the
// request.
func Activity(rdb *redis.Client, toucher Toucher, interval time.Duration) fiber.Handler {
	return func(c *fiber.Ctx) error {
		err := c.Next()

		userID := UserID(c)
		if userID == "" || c.Response().StatusCode() >= fiber.StatusInternalServerError {
			return err
		}
		ctx := c.UserContext()

		if rdb != nil {
			ok, rerr := rdb.SetNX(ctx, "active:"+userID, 1, interval).Result()
			if rerr != nil {
				observability.RedisErrorRate.WithLabelValues("activity").Inc()
			} else if !ok {
				return err
			}
		}

		if terr := toucher.Touch(ctx, userID); terr != nil && !errors.Is(terr, models.ErrNotFound) {
			Logger.WarnContext(ctx, "activity touch failed", "error", terr.Error())
		}
		return err
	}
}
