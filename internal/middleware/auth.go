package middleware

import (
	"crypto/subtle"
	"strings"

	"github.com/docshare/conduit/internal/models"
	"github.com/docshare/conduit/pkg/logger"
	"github.com/docshare/conduit/pkg/utils"
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

const (
	currentUserKey = "currentUser"
	tokenClaimsKey = "tokenClaims"
)

type AuthMiddleware struct {
	DB *gorm.DB
}

func NewAuthMiddleware(db *gorm.DB) *AuthMiddleware {
	return &AuthMiddleware{DB: db}
}

func (a *AuthMiddleware) RequireAuth(c *fiber.Ctx) error {
	tokenString, ok := bearerToken(c)
	if !ok {
		logger.Warn("auth_missing_token", map[string]interface{}{
			"ip":   c.IP(),
			"path": c.Path(),
		})
		return utils.Error(c, fiber.StatusUnauthorized, "missing or malformed authorization header")
	}

	claims, err := utils.ValidateToken(tokenString)
	if err != nil {
		logger.Warn("jwt_validation_failed", map[string]interface{}{
			"ip":    c.IP(),
			"path":  c.Path(),
			"error": err.Error(),
		})
		return utils.Error(c, fiber.StatusUnauthorized, "invalid or expired token")
	}

	var user models.User
	if err := a.DB.First(&user, "id = ?", claims.UserID).Error; err != nil {
		logger.Warn("jwt_user_not_found", map[string]interface{}{
			"ip":      c.IP(),
			"path":    c.Path(),
			"user_id": claims.UserID,
		})
		return utils.Error(c, fiber.StatusUnauthorized, "user not found")
	}

	c.Locals(currentUserKey, &user)
	c.Locals(tokenClaimsKey, claims)
	c.Locals("userID", user.ID.String())
	return c.Next()
}

// RequireWebhookToken guards the bucket notification endpoint with a shared
// secret. An empty secret disables the check.
func RequireWebhookToken(secret string) fiber.Handler {
	return func(c *fiber.Ctx) error {
		if secret == "" {
			return c.Next()
		}
		token, ok := bearerToken(c)
		if !ok || subtle.ConstantTimeCompare([]byte(token), []byte(secret)) != 1 {
			logger.Warn("webhook_unauthorized", map[string]interface{}{
				"ip":   c.IP(),
				"path": c.Path(),
			})
			return utils.Error(c, fiber.StatusUnauthorized, "invalid webhook token")
		}
		return c.Next()
	}
}

func bearerToken(c *fiber.Ctx) (string, bool) {
	header := c.Get("Authorization")
	token := strings.TrimSpace(strings.TrimPrefix(header, "Bearer"))
	if header == "" || token == header || token == "" {
		return "", false
	}
	return token, true
}

func GetCurrentUser(c *fiber.Ctx) *models.User {
	value := c.Locals(currentUserKey)
	if value == nil {
		return nil
	}
	user, ok := value.(*models.User)
	if !ok {
		return nil
	}
	return user
}

// TokenAllowsDrive reports whether the request's token scope covers driveID.
// Requests that did not pass RequireAuth are refused.
func TokenAllowsDrive(c *fiber.Ctx, driveID uuid.UUID) bool {
	claims, ok := c.Locals(tokenClaimsKey).(*utils.Claims)
	if !ok {
		return false
	}
	return claims.AllowsDrive(driveID)
}
