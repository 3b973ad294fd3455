package middleware

import (
	"strconv"
	"strings"

	"github.com/gofiber/fiber/v2"
)

// CORSConfig controls which browser origins may call the API.
type CORSConfig struct {
	// AllowedOrigins lists exact origins. Empty means any origin, without credentials.
	AllowedOrigins   []string
	AllowCredentials bool
	AllowedMethods   []string
	AllowedHeaders   []string
	ExposedHeaders   []string
	// MaxAge is the preflight cache lifetime in seconds.
	MaxAge int
}

func DefaultCORSConfig(origins ...string) CORSConfig {
	return CORSConfig{
		AllowedOrigins:   origins,
		AllowCredentials: true,
		AllowedMethods: []string{
			fiber.MethodGet, fiber.MethodPost, fiber.MethodPut,
			fiber.MethodPatch, fiber.MethodDelete, fiber.MethodOptions,
		},
		AllowedHeaders: []string{
			fiber.HeaderOrigin, fiber.HeaderContentType, fiber.HeaderAccept,
			fiber.HeaderAuthorization, fiber.HeaderXRequestedWith,
		},
		ExposedHeaders: []string{fiber.HeaderContentLength},
		MaxAge:         3600,
	}
}

// CORS answers preflight requests and tags responses for allowed origins.
// Requests from other origins still reach the handler; the browser drops
// the response.
func CORS(cfg CORSConfig) fiber.Handler {
	allowed := make(map[string]bool, len(cfg.AllowedOrigins))
	for _, origin := range cfg.AllowedOrigins {
		allowed[origin] = true
	}
	anyOrigin := len(allowed) == 0

	methods := strings.Join(cfg.AllowedMethods, ",")
	headers := strings.Join(cfg.AllowedHeaders, ",")
	exposed := strings.Join(cfg.ExposedHeaders, ",")
	maxAge := strconv.Itoa(cfg.MaxAge)

	return func(c *fiber.Ctx) error {
		origin := c.Get(fiber.HeaderOrigin)
		c.Vary(fiber.HeaderOrigin)

		switch {
		case anyOrigin:
			c.Set(fiber.HeaderAccessControlAllowOrigin, "*")
		case origin != "" && allowed[origin]:
			c.Set(fiber.HeaderAccessControlAllowOrigin, origin)
			if cfg.AllowCredentials {
				c.Set(fiber.HeaderAccessControlAllowCredentials, "true")
			}
		default:
			if c.Method() == fiber.MethodOptions {
				return c.SendStatus(fiber.StatusNoContent)
			}
			return c.Next()
		}

		if exposed != "" {
			c.Set(fiber.HeaderAccessControlExposeHeaders, exposed)
		}
		if c.Method() != fiber.MethodOptions {
			return c.Next()
		}

		c.Set(fiber.HeaderAccessControlAllowMethods, methods)
		c.Set(fiber.HeaderAccessControlAllowHeaders, headers)
		c.Set(fiber.HeaderAccessControlMaxAge, maxAge)
		return c.SendStatus(fiber.StatusNoContent)
	}
}
