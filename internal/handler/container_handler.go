package handler

import (
	"github.com/xtm888/medflow-clinic-sub003/internal/middleware"
	"github.com/xtm888/medflow-clinic-sub003/internal/model"
	"github.com/xtm888/medflow-clinic-sub003/internal/service"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
)

type ContainerHandler struct {
	containers service.ContainerService
	coldChain  service.ColdChainService
}

func NewContainerHandler(containers service.ContainerService, coldChain service.ColdChainService) *ContainerHandler {
	return &ContainerHandler{containers: containers, coldChain: coldChain}
}

func (h *ContainerHandler) CreateContainer(c *fiber.Ctx) error {
	var container model.Container
	if err := c.BodyParser(&container); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"success": false, "error": "invalid JSON"})
	}
	container.ClinicID = middleware.ClinicID(c)

	if err := h.containers.CreateContainer(&container, middleware.Actor(c)); err != nil {
		return fail(c, err)
	}
	return ok(c, fiber.StatusCreated, container)
}

func (h *ContainerHandler) GetContainers(c *fiber.Ctx) error {
	list, err := h.containers.ListContainers(middleware.ClinicID(c))
	if err != nil {
		return fail(c, err)
	}
	return ok(c, fiber.StatusOK, list)
}

func (h *ContainerHandler) GetContainer(c *fiber.Ctx) error {
	id, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"success": false, "error": "invalid container id"})
	}
	container, err := h.containers.GetContainer(middleware.ClinicID(c), id)
	if err != nil {
		return fail(c, err)
	}
	return ok(c, fiber.StatusOK, container)
}

func (h *ContainerHandler) Open(c *fiber.Ctx) error {
	id, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"success": false, "error": "invalid container id"})
	}
	container, err := h.containers.Open(middleware.ClinicID(c), id, middleware.Actor(c))
	if err != nil {
		return fail(c, err)
	}
	return ok(c, fiber.StatusOK, container)
}

type doseRequest struct {
	RecipientRef string `json:"recipient_ref"`
	Note         string `json:"note"`
}

func (h *ContainerHandler) RecordDose(c *fiber.Ctx) error {
	id, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"success": false, "error": "invalid container id"})
	}
	var req doseRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"success": false, "error": "invalid JSON"})
	}

	record, err := h.containers.RecordDose(service.DoseInput{
		ClinicID:     middleware.ClinicID(c),
		ContainerID:  id,
		Actor:        middleware.Actor(c),
		RecipientRef: req.RecipientRef,
		Note:         req.Note,
	})
	if err != nil {
		return fail(c, err)
	}
	return ok(c, fiber.StatusCreated, record)
}

type temperatureRequest struct {
	ValueC   float64 `json:"value_c"`
	Location string  `json:"location"`
}

func (h *ContainerHandler) RecordTemperature(c *fiber.Ctx) error {
	id, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"success": false, "error": "invalid container id"})
	}
	var req temperatureRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"success": false, "error": "invalid JSON"})
	}

	result, err := h.coldChain.RecordTemperature(service.TemperatureInput{
		ClinicID:    middleware.ClinicID(c),
		ContainerID: id,
		ValueC:      req.ValueC,
		Location:    req.Location,
		Actor:       middleware.Actor(c),
	})
	if err != nil {
		return fail(c, err)
	}
	return ok(c, fiber.StatusCreated, result)
}

func (h *ContainerHandler) GetObservations(c *fiber.Ctx) error {
	id, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"success": false, "error": "invalid container id"})
	}
	observations, err := h.coldChain.Observations(middleware.ClinicID(c), id)
	if err != nil {
		return fail(c, err)
	}
	return ok(c, fiber.StatusOK, observations)
}

func (h *ContainerHandler) GetUsage(c *fiber.Ctx) error {
	id, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"success": false, "error": "invalid container id"})
	}
	records, err := h.containers.UsageHistory(middleware.ClinicID(c), id)
	if err != nil {
		return fail(c, err)
	}
	return ok(c, fiber.StatusOK, records)
}

func (h *ContainerHandler) Dispose(c *fiber.Ctx) error {
	id, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"success": false, "error": "invalid container id"})
	}
	var req disposeRequest
	if err := c.BodyParser(&req); err != nil && len(c.Body()) > 0 {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"success": false, "error": "invalid JSON"})
	}
	if err := h.containers.Dispose(middleware.ClinicID(c), id, req.Reason, middleware.Actor(c)); err != nil {
		return fail(c, err)
	}
	return ok(c, fiber.StatusOK, fiber.Map{"disposed": id})
}

func (h *ContainerHandler) Recall(c *fiber.Ctx) error {
	id, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"success": false, "error": "invalid container id"})
	}
	if err := h.containers.Recall(middleware.ClinicID(c), id, middleware.Actor(c)); err != nil {
		return fail(c, err)
	}
	return ok(c, fiber.StatusOK, fiber.Map{"recalled": id})
}
