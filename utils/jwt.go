package utils

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"taskfolio/config"
	"taskfolio/models"
)

const (
	TokenTypeAccess  = "access"
	TokenTypeRefresh = "refresh"
)

type Claims struct {
	UserID       uint   `json:"user_id"`
	TokenVersion int    `json:"token_version"`
	TokenType    string `json:"token_type"`
	jwt.RegisteredClaims
}

// GenerateJWTToken issues an access/refresh pair for user.
func GenerateJWTToken(user *models.User) (string, string, error) {
	now := time.Now()

	accessToken, err := signToken(user, TokenTypeAccess, now, config.AppConfig.AccessTokenTTL)
	if err != nil {
		return "", "", err
	}

	refreshToken, err := signToken(user, TokenTypeRefresh, now, config.AppConfig.RefreshTokenTTL)
	if err != nil {
		return "", "", err
	}

	return accessToken, refreshToken, nil
}

func signToken(user *models.User, tokenType string, now time.Time, ttl time.Duration) (string, error) {
	if config.AppConfig.JWTSecret == "" {
		return "", errors.New("jwt secret not configured")
	}
	claims := &Claims{
		UserID:       user.ID,
		TokenVersion: user.TokenVersion,
		TokenType:    tokenType,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			IssuedAt:  jwt.NewNumericDate(now),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(config.AppConfig.JWTSecret))
}

func ParseJWTToken(tokenString string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("unexpected signing method")
		}
		return []byte(config.AppConfig.JWTSecret), nil
	})

	if err != nil {
		return nil, err
	}

	if claims, ok := token.Claims.(*Claims); ok && token.Valid {
		return claims, nil
	}

	return nil, errors.New("invalid token")
}

// ParseAccessToken rejects refresh tokens presented as bearer credentials.
func ParseAccessToken(tokenString string) (*Claims, error) {
	claims, err := ParseJWTToken(tokenString)
	if err != nil {
		return nil, err
	}
	if claims.TokenType != TokenTypeAccess {
		return nil, errors.New("not an access token")
	}
	return claims, nil
}
