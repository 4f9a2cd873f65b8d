package middleware

import (
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/sol1corejz/invertgold/internal/auth"
	"github.com/sol1corejz/invertgold/internal/tokenstorage"
)

const sessionKey = "session"

func tokenFrom(c *fiber.Ctx) string {
	if token := c.Cookies("jwt"); token != "" {
		return token
	}
	header := c.Get(fiber.HeaderAuthorization)
	if strings.HasPrefix(header, "Bearer ") {
		return strings.TrimPrefix(header, "Bearer ")
	}
	return ""
}

func AuthMiddleware(c *fiber.Ctx) error {
	tokenString := tokenFrom(c)
	if tokenString == "" {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
			"error": "Unauthorized",
		})
	}

	session, err := auth.ParseToken(tokenString)
	if err != nil || !tokenstorage.CheckToken(tokenString) {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
			"error": "Invalid or expired token",
		})
	}

	c.Locals(sessionKey, session)
	return c.Next()
}

// AdminMiddleware must run after AuthMiddleware.
func AdminMiddleware(c *fiber.Ctx) error {
	session, ok := Session(c)
	if !ok || !session.IsAdmin() {
		return c.Status(fiber.StatusForbidden).JSON(fiber.Map{
			"error": "Forbidden",
		})
	}
	return c.Next()
}

func Session(c *fiber.Ctx) (auth.Session, bool) {
	session, ok := c.Locals(sessionKey).(auth.Session)
	return session, ok
}
