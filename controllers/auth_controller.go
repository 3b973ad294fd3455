package controller

import (
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/sirupsen/logrus"

	"taskfolio/config"
	"taskfolio/middleware"
	"taskfolio/models"
	"taskfolio/services"
	"taskfolio/utils"
)

type LoginRequest struct {
	Email    string `json:"email" validate:"required,mailbox"`
	Password string `json:"password" validate:"required"`
}

type ChangePasswordRequest struct {
	CurrentPassword string `json:"current_password" validate:"required"`
	NewPassword     string `json:"new_password" validate:"required,min=6"`
}

type RefreshTokenRequest struct {
	RefreshToken string `json:"refresh_token"`
}

type AuthResponse struct {
	AccessToken  string       `json:"access_token"`
	RefreshToken string       `json:"refresh_token"`
	User         *models.User `json:"user"`
}

type AuthController struct {
	Accounts *services.AccountService
	Logger   *logrus.Entry
}

func NewAuthController(accounts *services.AccountService, logger *logrus.Entry) *AuthController {
	return &AuthController{Accounts: accounts, Logger: logger}
}

func (ac *AuthController) Register(c *fiber.Ctx) error {
	var req services.RegisterInput
	if err := c.BodyParser(&req); err != nil {
		return utils.ErrorResponse(c, utils.InvalidArgument("Invalid request body"))
	}

	user, err := ac.Accounts.Register(c.UserContext(), req)
	if err != nil {
		return utils.ErrorResponse(c, err)
	}
	return ac.issueTokens(c, fiber.StatusCreated, &user)
}

func (ac *AuthController) Login(c *fiber.Ctx) error {
	var req LoginRequest
	if err := c.BodyParser(&req); err != nil {
		return utils.ErrorResponse(c, utils.InvalidArgument("Invalid request body"))
	}
	if err := utils.ValidateStruct(req); err != nil {
		return utils.ErrorResponse(c, err)
	}

	user, err := ac.Accounts.Authenticate(c.UserContext(), req.Email, req.Password)
	if err != nil {
		return utils.ErrorResponse(c, err)
	}
	return ac.issueTokens(c, fiber.StatusOK, &user)
}

func (ac *AuthController) Logout(c *fiber.Ctx) error {
	c.ClearCookie("access_token", "refresh_token")
	return c.JSON(fiber.Map{"message": "Logged out"})
}

// RefreshToken exchanges a refresh token from the body or cookie for a new pair.
func (ac *AuthController) RefreshToken(c *fiber.Ctx) error {
	var req RefreshTokenRequest
	_ = c.BodyParser(&req)
	if req.RefreshToken == "" {
		req.RefreshToken = c.Cookies("refresh_token")
	}
	if req.RefreshToken == "" {
		return utils.ErrorResponse(c, utils.InvalidArgument("Refresh token is required"))
	}

	claims, err := utils.ParseJWTToken(req.RefreshToken)
	if err != nil || claims.TokenType != utils.TokenTypeRefresh {
		return utils.ErrorResponse(c, utils.Unauthorized("Invalid or expired refresh token"))
	}
	user, err := ac.Accounts.Get(c.UserContext(), claims.UserID)
	if err != nil {
		if utils.IsKind(err, utils.KindNotFound) {
			return utils.ErrorResponse(c, utils.Unauthorized("Invalid or expired refresh token"))
		}
		return utils.ErrorResponse(c, err)
	}
	if claims.TokenVersion != user.TokenVersion {
		return utils.ErrorResponse(c, utils.Unauthorized("Invalid token version"))
	}
	return ac.issueTokens(c, fiber.StatusOK, &user)
}

func (ac *AuthController) GetCurrentUser(c *fiber.Ctx) error {
	return c.JSON(middleware.CurrentUser(c))
}

func (ac *AuthController) UpdateProfile(c *fiber.Ctx) error {
	var req services.UpdateProfileInput
	if err := c.BodyParser(&req); err != nil {
		return utils.ErrorResponse(c, utils.InvalidArgument("Invalid request body"))
	}

	user, err := ac.Accounts.UpdateProfile(c.UserContext(), middleware.CurrentUser(c).ID, req)
	if err != nil {
		return utils.ErrorResponse(c, err)
	}
	return c.JSON(user)
}

// ChangePassword invalidates every outstanding token and returns a fresh pair.
func (ac *AuthController) ChangePassword(c *fiber.Ctx) error {
	var req ChangePasswordRequest
	if err := c.BodyParser(&req); err != nil {
		return utils.ErrorResponse(c, utils.InvalidArgument("Invalid request body"))
	}
	if err := utils.ValidateStruct(req); err != nil {
		return utils.ErrorResponse(c, err)
	}

	user, err := ac.Accounts.ChangePassword(c.UserContext(), middleware.CurrentUser(c).ID, req.CurrentPassword, req.NewPassword)
	if err != nil {
		return utils.ErrorResponse(c, err)
	}
	return ac.issueTokens(c, fiber.StatusOK, &user)
}

func (ac *AuthController) DeleteAccount(c *fiber.Ctx) error {
	user := middleware.CurrentUser(c)
	if err := ac.Accounts.DeleteAccount(c.UserContext(), user.ID); err != nil {
		return utils.ErrorResponse(c, err)
	}
	c.ClearCookie("access_token", "refresh_token")
	return c.JSON(fiber.Map{"message": "Account deleted successfully"})
}

func (ac *AuthController) issueTokens(c *fiber.Ctx, status int, user *models.User) error {
	accessToken, refreshToken, err := utils.GenerateJWTToken(user)
	if err != nil {
		return utils.ErrorResponse(c, utils.Internal("generate tokens", err))
	}

	secure := config.AppConfig.Environment == "production"
	c.Cookie(&fiber.Cookie{
		Name:     "access_token",
		Value:    accessToken,
		Expires:  time.Now().Add(config.AppConfig.AccessTokenTTL),
		HTTPOnly: true,
		Secure:   secure,
		SameSite: "Lax",
	})
	c.Cookie(&fiber.Cookie{
		Name:     "refresh_token",
		Value:    refreshToken,
		Expires:  time.Now().Add(config.AppConfig.RefreshTokenTTL),
		HTTPOnly: true,
		Secure:   secure,
		SameSite: "Lax",
	})

	return c.Status(status).JSON(AuthResponse{
		AccessToken:  accessToken,
		RefreshToken: refreshToken,
		User:         user,
	})
}
