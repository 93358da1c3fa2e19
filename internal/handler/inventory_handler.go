package handler

import (
	"time"

	"github.com/xtm888/medflow-clinic-sub003/internal/middleware"
	"github.com/xtm888/medflow-clinic-sub003/internal/model"
	"github.com/xtm888/medflow-clinic-sub003/internal/service"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
)

type InventoryHandler struct {
	items        service.StockItemService
	batches      service.BatchService
	reservations service.ReservationService
}

func NewInventoryHandler(items service.StockItemService, batches service.BatchService, reservations service.ReservationService) *InventoryHandler {
	return &InventoryHandler{items: items, batches: batches, reservations: reservations}
}

func (h *InventoryHandler) CreateItem(c *fiber.Ctx) error {
	var item model.StockItem
	if err := c.BodyParser(&item); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"success": false, "error": "invalid JSON"})
	}
	item.ClinicID = middleware.ClinicID(c)

	if err := h.items.CreateItem(&item, middleware.Actor(c)); err != nil {
		return fail(c, err)
	}
	return ok(c, fiber.StatusCreated, item)
}

func (h *InventoryHandler) GetItems(c *fiber.Ctx) error {
	items, err := h.items.ListItems(middleware.ClinicID(c))
	if err != nil {
		return fail(c, err)
	}
	return ok(c, fiber.StatusOK, items)
}

func (h *InventoryHandler) GetItem(c *fiber.Ctx) error {
	id, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"success": false, "error": "invalid item id"})
	}
	item, err := h.items.GetItem(middleware.ClinicID(c), id)
	if err != nil {
		return fail(c, err)
	}
	return ok(c, fiber.StatusOK, item)
}

func (h *InventoryHandler) GetItemUsage(c *fiber.Ctx) error {
	id, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"success": false, "error": "invalid item id"})
	}
	records, err := h.items.UsageHistory(middleware.ClinicID(c), id)
	if err != nil {
		return fail(c, err)
	}
	return ok(c, fiber.StatusOK, records)
}

type receiveBatchRequest struct {
	LotNumber  string    `json:"lot_number"`
	Quantity   int       `json:"quantity"`
	ExpiresAt  time.Time `json:"expires_at"`
	ReceivedAt time.Time `json:"received_at"`
}

func (h *InventoryHandler) ReceiveBatch(c *fiber.Ctx) error {
	itemID, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"success": false, "error": "invalid item id"})
	}
	var req receiveBatchRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"success": false, "error": "invalid JSON"})
	}

	batch, err := h.batches.ReceiveBatch(service.ReceiveBatchInput{
		ClinicID:   middleware.ClinicID(c),
		ItemID:     itemID,
		LotNumber:  req.LotNumber,
		Quantity:   req.Quantity,
		ExpiresAt:  req.ExpiresAt,
		ReceivedAt: req.ReceivedAt,
		Actor:      middleware.Actor(c),
	})
	if err != nil {
		return fail(c, err)
	}
	return ok(c, fiber.StatusCreated, batch)
}

func (h *InventoryHandler) GetBatches(c *fiber.Ctx) error {
	itemID, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"success": false, "error": "invalid item id"})
	}
	batches, err := h.batches.ListBatches(middleware.ClinicID(c), itemID)
	if err != nil {
		return fail(c, err)
	}
	return ok(c, fiber.StatusOK, batches)
}

func (h *InventoryHandler) GetExpiringSoon(c *fiber.Ctx) error {
	days := c.QueryInt("days", 30)
	batches, err := h.batches.ExpiringSoon(middleware.ClinicID(c), time.Duration(days)*24*time.Hour)
	if err != nil {
		return fail(c, err)
	}
	return ok(c, fiber.StatusOK, batches)
}

type reserveRequest struct {
	ItemID   uuid.UUID `json:"stock_item_id"`
	Quantity int       `json:"quantity"`
	OrderRef string    `json:"order_ref"`
}

func (h *InventoryHandler) Reserve(c *fiber.Ctx) error {
	var req reserveRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"success": false, "error": "invalid JSON"})
	}

	reservation, err := h.reservations.Reserve(service.ReserveInput{
		ClinicID: middleware.ClinicID(c),
		ItemID:   req.ItemID,
		Quantity: req.Quantity,
		OrderRef: req.OrderRef,
		Actor:    middleware.Actor(c),
	})
	if err != nil {
		return fail(c, err)
	}
	return ok(c, fiber.StatusCreated, reservation)
}

func (h *InventoryHandler) Release(c *fiber.Ctx) error {
	id, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"success": false, "error": "invalid reservation id"})
	}
	if err := h.reservations.Release(middleware.ClinicID(c), id, middleware.Actor(c)); err != nil {
		return fail(c, err)
	}
	return ok(c, fiber.StatusOK, fiber.Map{"released": id})
}

type fulfillRequest struct {
	RecipientRef string `json:"recipient_ref"`
	Note         string `json:"note"`
}

func (h *InventoryHandler) Fulfill(c *fiber.Ctx) error {
	id, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"success": false, "error": "invalid reservation id"})
	}
	var req fulfillRequest
	if err := c.BodyParser(&req); err != nil && len(c.Body()) > 0 {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"success": false, "error": "invalid JSON"})
	}

	record, err := h.reservations.Fulfill(middleware.ClinicID(c), id, service.SaleContext{
		Actor:        middleware.Actor(c),
		RecipientRef: req.RecipientRef,
		Note:         req.Note,
	})
	if err != nil {
		return fail(c, err)
	}
	return ok(c, fiber.StatusOK, record)
}

type consumeRequest struct {
	Quantity     int    `json:"quantity"`
	RecipientRef string `json:"recipient_ref"`
	Note         string `json:"note"`
}

func (h *InventoryHandler) Consume(c *fiber.Ctx) error {
	itemID, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"success": false, "error": "invalid item id"})
	}
	var req consumeRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"success": false, "error": "invalid JSON"})
	}

	allocations, err := h.batches.ConsumeFEFO(service.ConsumeInput{
		ClinicID:     middleware.ClinicID(c),
		ItemID:       itemID,
		Quantity:     req.Quantity,
		Actor:        middleware.Actor(c),
		RecipientRef: req.RecipientRef,
		Note:         req.Note,
	})
	if err != nil {
		return fail(c, err)
	}
	return ok(c, fiber.StatusOK, allocations)
}

func (h *InventoryHandler) GetReservations(c *fiber.Ctx) error {
	orderRef := c.Query("order_ref")
	if orderRef == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"success": false, "error": "order_ref query parameter is required"})
	}
	reservations, err := h.reservations.ReservationsForOrder(middleware.ClinicID(c), orderRef)
	if err != nil {
		return fail(c, err)
	}
	return ok(c, fiber.StatusOK, reservations)
}

func (h *InventoryHandler) GetReservation(c *fiber.Ctx) error {
	id, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"success": false, "error": "invalid reservation id"})
	}
	reservation, err := h.reservations.GetReservation(middleware.ClinicID(c), id)
	if err != nil {
		return fail(c, err)
	}
	return ok(c, fiber.StatusOK, reservation)
}

type disposeRequest struct {
	Reason string `json:"reason"`
}

func (h *InventoryHandler) DisposeBatch(c *fiber.Ctx) error {
	id, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"success": false, "error": "invalid batch id"})
	}
	var req disposeRequest
	if err := c.BodyParser(&req); err != nil && len(c.Body()) > 0 {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"success": false, "error": "invalid JSON"})
	}
	if err := h.batches.DisposeBatch(middleware.ClinicID(c), id, req.Reason, middleware.Actor(c)); err != nil {
		return fail(c, err)
	}
	return ok(c, fiber.StatusOK, fiber.Map{"disposed": id})
}

func (h *InventoryHandler) ExpireBatch(c *fiber.Ctx) error {
	id, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"success": false, "error": "invalid batch id"})
	}
	if err := h.batches.MarkExpired(middleware.ClinicID(c), id, middleware.Actor(c)); err != nil {
		return fail(c, err)
	}
	return ok(c, fiber.StatusOK, fiber.Map{"expired": id})
}

func (h *InventoryHandler) RecallBatch(c *fiber.Ctx) error {
	id, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"success": false, "error": "invalid batch id"})
	}
	var req disposeRequest
	if err := c.BodyParser(&req); err != nil && len(c.Body()) > 0 {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"success": false, "error": "invalid JSON"})
	}
	if err := h.batches.RecallBatch(middleware.ClinicID(c), id, req.Reason, middleware.Actor(c)); err != nil {
		return fail(c, err)
	}
	return ok(c, fiber.StatusOK, fiber.Map{"recalled": id})
}
