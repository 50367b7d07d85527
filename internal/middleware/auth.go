package middleware

import (
	"strconv"
	"strings"

	"github.com/condoadmin/backend/internal/models"
	"github.com/condoadmin/backend/pkg/logger"
	"github.com/condoadmin/backend/pkg/utils"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
)

const principalKey = "principal"

func CORS() fiber.Handler {
	return cors.New(cors.Config{
		AllowOrigins: "http://localhost:3001,http://127.0.0.1:3001",
		AllowHeaders: "Origin, Content-Type, Accept, Authorization",
		AllowMethods: "GET,POST,PUT,PATCH,DELETE,OPTIONS",
	})
}

// RequireAuth extracts the authenticated principal from the bearer token.
// Accounts and sessions live in the portal's auth service; the signed
// claims are the only identity source here.
func RequireAuth(c *fiber.Ctx) error {
	authHeader := c.Get("Authorization")
	if authHeader == "" {
		logger.Warn("jwt_missing_header", map[string]interface{}{
			"ip":   c.IP(),
			"path": c.Path(),
		})
		return utils.Error(c, fiber.StatusUnauthorized, "missing authorization header")
	}

	tokenString := strings.TrimSpace(strings.TrimPrefix(authHeader, "Bearer"))
	if tokenString == authHeader || tokenString == "" {
		logger.Warn("jwt_invalid_format", map[string]interface{}{
			"ip":   c.IP(),
			"path": c.Path(),
		})
		return utils.Error(c, fiber.StatusUnauthorized, "invalid authorization format")
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

	principal := &models.Principal{
		UserID:      claims.UserID,
		CommunityID: claims.CommunityID,
		Email:       claims.Email,
		Role:        claims.Role,
	}

	c.Locals(principalKey, principal)
	c.Locals("userID", strconv.FormatInt(principal.UserID, 10))
	return c.Next()
}

func AdminOnly(c *fiber.Ctx) error {
	principal := GetPrincipal(c)
	if principal == nil {
		return utils.Error(c, fiber.StatusUnauthorized, "unauthorized")
	}
	if principal.Role != models.RoleAdmin {
		return utils.Error(c, fiber.StatusForbidden, "admin access required")
	}
	return c.Next()
}

func GetPrincipal(c *fiber.Ctx) *models.Principal {
	value := c.Locals(principalKey)
	if value == nil {
		return nil
	}
	principal, ok := value.(*models.Principal)
	if !ok {
		return nil
	}
	return principal
}
