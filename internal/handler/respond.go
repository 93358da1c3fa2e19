package handler

import (
	"errors"

	"github.com/xtm888/medflow-clinic-sub003/internal/service"

	"github.com/gofiber/fiber/v2"
)

func ok(c *fiber.Ctx, status int, data interface{}) error {
	return c.Status(status).JSON(fiber.Map{"success": true, "data": data})
}

// fail maps the engine's error taxonomy onto HTTP statuses. Business
// refusals are client-side codes; only integrity and infrastructure faults
// surface as 500s.
func fail(c *fiber.Ctx, err error) error {
	status := fiber.StatusInternalServerError
	switch {
	case service.IsValidation(err):
		status = fiber.StatusBadRequest
	case errors.Is(err, service.ErrNotFound):
		status = fiber.StatusNotFound
	case errors.Is(err, service.ErrInsufficientStock):
		status = fiber.StatusConflict
	case errors.Is(err, service.ErrInvalidState),
		errors.Is(err, service.ErrAlreadyOpened),
		errors.Is(err, service.ErrNoDosesRemaining),
		errors.Is(err, service.ErrBeyondUseDate):
		status = fiber.StatusUnprocessableEntity
	}
	return c.Status(status).JSON(fiber.Map{"success": false, "error": err.Error()})
}
