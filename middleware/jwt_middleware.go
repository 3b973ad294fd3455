package middleware

import (
	"errors"
	"strings"

	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"

	"taskfolio/models"
	"taskfolio/utils"
)

// Protected authenticates the request from a bearer header, the
// access_token cookie or, for websocket upgrades, a token query parameter.
func Protected(db *gorm.DB) fiber.Handler {
	return func(c *fiber.Ctx) error {
		token, err := extractToken(c)
		if err != nil {
			return utils.ErrorResponse(c, err)
		}

		// Parse and validate JWT
		claims, err := utils.ParseAccessToken(token)
		if err != nil {
			return utils.ErrorResponse(c, utils.Unauthorized("Invalid or expired token"))
		}

		var user models.User
		if err := db.WithContext(c.UserContext()).First(&user, claims.UserID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return utils.ErrorResponse(c, utils.Unauthorized("User not found"))
			}
			return utils.ErrorResponse(c, utils.Internal("load user", err))
		}

		// Verify token version
		if claims.TokenVersion != user.TokenVersion {
			return utils.ErrorResponse(c, utils.Unauthorized("Invalid token version"))
		}

		c.Locals("user", &user)
		c.Locals("userID", user.ID)
		return c.Next()
	}
}

func extractToken(c *fiber.Ctx) (string, error) {
	if authHeader := c.Get(fiber.HeaderAuthorization); authHeader != "" {
		tokenParts := strings.Split(authHeader, " ")
		if len(tokenParts) != 2 || tokenParts[0] != "Bearer" || tokenParts[1] == "" {
			return "", utils.Unauthorized("Invalid authorization format")
		}
		return tokenParts[1], nil
	}
	if token := c.Cookies("access_token"); token != "" {
		return token, nil
	}
	if token := c.Query("token"); token != "" {
		return token, nil
	}
	return "", utils.Unauthorized("Authorization required")
}

// CurrentUser returns the user stored by Protected.
func CurrentUser(c *fiber.Ctx) *models.User {
	user, _ := c.Locals("user").(*models.User)
	return user
}
