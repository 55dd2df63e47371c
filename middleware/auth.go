package middleware

import (
	"errors"
	"fmt"
	"time"

	"github.com/gofiber/fiber/v2"
	jwtware "github.com/gofiber/jwt/v3"
	"github.com/golang-jwt/jwt/v4"

	"github.com/meinhoongagan/availability-engine/utils"
)

// localUserID is the fiber local that carries the authenticated user id.
const localUserID = "userID"

var ErrInvalidToken = errors.New("invalid token")

// Protected rejects requests without a valid bearer token and stores the
// token's user id for handlers.
func Protected(secret string) fiber.Handler {
	return jwtware.New(jwtware.Config{
		SigningKey:    []byte(secret),
		SigningMethod: "HS256",
		ErrorHandler:  jwtError,
		SuccessHandler: func(c *fiber.Ctx) error {
			token, ok := c.Locals("user").(*jwt.Token)
			if !ok {
				return jwtError(c, ErrInvalidToken)
			}
			claims, ok := token.Claims.(jwt.MapClaims)
			if !ok {
				return jwtError(c, ErrInvalidToken)
			}
			userID, err := extractUserID(claims)
			if err != nil {
				return jwtError(c, err)
			}
			c.Locals(localUserID, userID)
			return c.Next()
		},
	})
}

// UserID returns the id stored by Protected, or "" outside protected routes.
func UserID(c *fiber.Ctx) string {
	id, _ := c.Locals(localUserID).(string)
	return id
}

// IssueToken signs an HS256 token for userID that expires after ttl.
func IssueToken(secret, userID string, ttl time.Duration, now time.Time) (string, error) {
	claims := jwt.MapClaims{
		"id":  userID,
		"iat": now.Unix(),
		"exp": now.Add(ttl).Unix(),
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
}

// ParseToken validates a raw token and returns its user id. The realtime
// listener uses it to authenticate websocket upgrades.
func ParseToken(secret, raw string) (string, error) {
	token, err := jwt.Parse(raw, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return []byte(secret), nil
	})
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok || !token.Valid {
		return "", ErrInvalidToken
	}
	return extractUserID(claims)
}

// TokenParser binds ParseToken to a secret.
func TokenParser(secret string) func(string) (string, error) {
	return func(raw string) (string, error) {
		return ParseToken(secret, raw)
	}
}

func extractUserID(claims jwt.MapClaims) (string, error) {
	switch v := claims["id"].(type) {
	case string:
		if v == "" {
			return "", fmt.Errorf("%w: empty id claim", ErrInvalidToken)
		}
		return v, nil
	case nil:
		return "", fmt.Errorf("%w: no id claim", ErrInvalidToken)
	default:
		return "", fmt.Errorf("%w: unsupported id type %T", ErrInvalidToken, v)
	}
}

func jwtError(c *fiber.Ctx, err error) error {
	return c.Status(fiber.StatusUnauthorized).JSON(utils.ErrorResponse{
		Message: "Invalid or expired token",
		Error:   err.Error(),
	})
}
