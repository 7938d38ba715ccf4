package middleware

import (
	"strings"

	"github.com/gofiber/fiber/v2"

	"chatengine/server/internal/utils"
)

// AuthMiddleware validates the bearer token from the Authorization header,
// falling back to the token cookie
func AuthMiddleware(secret string) fiber.Handler {
	return func(c *fiber.Ctx) error {
		tokenString := BearerToken(c.Get(fiber.HeaderAuthorization))
		if tokenString == "" {
			tokenString = c.Cookies("token")
		}
		if tokenString == "" {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"success": false,
				"error":   "Unauthorized - No token provided",
			})
		}

		// Validate token
		claims, err := utils.ValidateToken(secret, tokenString)
		if err != nil {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"success": false,
				"error":   "Unauthorized - Invalid token",
			})
		}
		userID, _ := claims.UserID()

		// Store user info in context
		c.Locals("userID", userID)
		c.Locals("tenantID", claims.TenantID)

		return c.Next()
	}
}

// BearerToken extracts the token from an Authorization header value
func BearerToken(header string) string {
	scheme, token, ok := strings.Cut(strings.TrimSpace(header), " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return ""
	}
	return strings.TrimSpace(token)
}

// GetUserID gets user ID from context
func GetUserID(c *fiber.Ctx) int64 {
	userID, ok := c.Locals("userID").(int64)
	if !ok {
		return 0
	}
	return userID
}

// GetTenantID gets tenant ID from context
func GetTenantID(c *fiber.Ctx) int64 {
	tenantID, ok := c.Locals("tenantID").(int64)
	if !ok {
		return 0
	}
	return tenantID
}
