package middleware

import (
	"crypto/subtle"

	"github.com/gin-gonic/gin"
	"github.com/memberflow/memberflow/internal/config"
	ierr "github.com/memberflow/memberflow/internal/errors"
	"github.com/memberflow/memberflow/internal/types"
)

// CronAuthMiddleware guards the scheduler endpoints with a shared
// secret so stray HTTP clients cannot trigger scans.
func CronAuthMiddleware(cfg *config.Configuration) gin.HandlerFunc {
	return func(c *gin.Context) {
		secret := c.GetHeader(types.HeaderCronSecret)
		if subtle.ConstantTimeCompare([]byte(secret), []byte(cfg.Scheduler.Secret)) != 1 {
			c.Error(ierr.NewError("invalid cron secret").
				WithHint("Missing or invalid scheduler secret").
				Mark(ierr.ErrPermissionDenied))
			c.Abort()
			return
		}
		c.Next()
	}
}
