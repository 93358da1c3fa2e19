package middleware

import (
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
)

// RequireScope extracts the tenant and actor identity that upstream
// collaborators supply on every call. Authentication and cross-tenant
// authorization happen before requests reach this service; here the scope is
// only parsed and made available to handlers.
func RequireScope() fiber.Handler {
	return func(c *fiber.Ctx) error {
		clinicID, err := uuid.Parse(c.Get("X-Clinic-ID"))
		if err != nil || clinicID == uuid.Nil {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
				"success": false,
				"error":   "missing or invalid X-Clinic-ID header",
			})
		}

		actor := c.Get("X-Actor-ID")
		if actor == "" {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
				"success": false,
				"error":   "missing X-Actor-ID header",
			})
		}

		c.Locals("clinic_id", clinicID)
		c.Locals("actor", actor)
		return c.Next()
	}
}

func ClinicID(c *fiber.Ctx) uuid.UUID {
	if id, ok := c.Locals("clinic_id").(uuid.UUID); ok {
		return id
	}
	return uuid.Nil
}

func Actor(c *fiber.Ctx) string {
	if actor, ok := c.Locals("actor").(string); ok {
		return actor
	}
	return "system"
}
