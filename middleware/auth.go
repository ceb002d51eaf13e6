// middleware/auth.go
package middleware

import (
	"log"
	"strings"

	"github.com/gofiber/fiber/v2"
)

const (
	LocalContributorID = "contributor_id"
	LocalRoles         = "user_roles"
)

// ContributorContextMiddleware copies the identity the Gateway forwards
// (X-Contributor-ID, X-User-Roles) into fiber locals. Identity is trusted as given.
func ContributorContextMiddleware() fiber.Handler {
	return func(c *fiber.Ctx) error {
		contributorID := strings.TrimSpace(c.Get("X-Contributor-ID"))

		var roles []string
		for _, r := range strings.Split(c.Get("X-User-Roles"), ",") {
			if r = strings.TrimSpace(r); r != "" {
				roles = append(roles, r)
			}
		}

		c.Locals(LocalContributorID, contributorID)
		c.Locals(LocalRoles, roles)
		return c.Next()
	}
}

// RequireRole rejects requests whose forwarded roles do not include role.
// Must run after ContributorContextMiddleware.
func RequireRole(role string) fiber.Handler {
	return func(c *fiber.Ctx) error {
		roles, _ := c.Locals(LocalRoles).([]string)
		for _, r := range roles {
			if strings.EqualFold(r, role) {
				return c.Next()
			}
		}
		log.Printf("🚫 [USER_CTX] Role %q required for %s %s (roles=%v)", role, c.Method(), c.Path(), roles)
		return c.Status(fiber.StatusForbidden).JSON(fiber.Map{
			"error": "insufficient role",
		})
	}
}

// ContributorID returns the contributor forwarded by the Gateway, or "".
func ContributorID(c *fiber.Ctx) string {
	id, _ := c.Locals(LocalContributorID).(string)
	return id
}
