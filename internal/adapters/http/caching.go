package http

import (
	"strings"

	"github.com/gofiber/fiber/v2"
)

// CachingMiddleware sets a default Cache-Control on GET responses that the
// handler left unset.
func CachingMiddleware() fiber.Handler {
	return func(c *fiber.Ctx) error {
		err := c.Next()

		if c.Method() != fiber.MethodGet || len(c.Response().Header.Peek(fiber.HeaderCacheControl)) > 0 {
			return err
		}

		path := c.Path()
		var ttl string
		switch {
		case path == "/v1/health" || path == "/v1/ready":
			ttl = "public, max-age=10"
		case path == "/metrics", strings.HasPrefix(path, "/ws/"):
			ttl = "no-cache"
		case path == "/graphql":
			ttl = "private, max-age=0"
		case strings.HasPrefix(path, "/v1/regions"):
			ttl = "public, max-age=3600"
		case strings.HasPrefix(path, "/v1/sessions/"):
			ttl = "no-store"
		case strings.HasPrefix(path, "/v1/entities"):
			// Rankings depend on the catalog, which changes without notice.
			ttl = "public, max-age=30"
		case strings.HasPrefix(path, "/v1/"):
			ttl = "public, max-age=60"
		}

		if ttl != "" {
			c.Set(fiber.HeaderCacheControl, ttl)
		}
		return err
	}
}
