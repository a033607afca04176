package middleware

import (
	"strings"

	"bloomshop/internal/models"
	"bloomshop/internal/services"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"
)

const callerKey = "caller"

// AuthRequired is a Fiber middleware to check for a valid JWT token.
func AuthRequired(authService *services.AuthService, logger *zap.Logger) fiber.Handler {
	return func(c *fiber.Ctx) error {
		authHeader := c.Get(fiber.HeaderAuthorization)
		if authHeader == "" {
			return reject(c, fiber.StatusUnauthorized, "Authorization header is required")
		}

		// Expected format: "Bearer <token>"
		parts := strings.SplitN(authHeader, " ", 2)
		if !(len(parts) == 2 && parts[0] == "Bearer") {
			return reject(c, fiber.StatusUnauthorized, "Authorization header format must be 'Bearer <token>'")
		}

		claims, err := authService.ValidateToken(parts[1])
		if err != nil {
			logger.Debug("JWT validation failed", zap.String("path", c.Path()), zap.Error(err))
			return reject(c, fiber.StatusUnauthorized, "Invalid or expired token")
		}
		caller, err := services.CallerFromClaims(claims)
		if err != nil {
			return reject(c, fiber.StatusUnauthorized, err.Error())
		}

		c.Locals(callerKey, caller)
		c.Locals("user_id", caller.UserID)
		c.Locals("username", claims["username"])
		return c.Next()
	}
}

// AdminOnly must run after AuthRequired.
func AdminOnly() fiber.Handler {
	return func(c *fiber.Ctx) error {
		if !CallerFrom(c).IsAdmin() {
			return reject(c, fiber.StatusForbidden, "admin role required")
		}
		return c.Next()
	}
}

// CallerFrom returns the caller stored by AuthRequired, or the zero Caller.
func CallerFrom(c *fiber.Ctx) models.Caller {
	caller, _ := c.Locals(callerKey).(models.Caller)
	return caller
}

func reject(c *fiber.Ctx, status int, message string) error {
	return c.Status(status).JSON(fiber.Map{
		"status":  "error",
		"message": message,
	})
}
