package main

import (
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/xtm888/medflow-clinic-sub003/internal/config"
	"github.com/xtm888/medflow-clinic-sub003/internal/events"
	"github.com/xtm888/medflow-clinic-sub003/internal/handler"
	"github.com/xtm888/medflow-clinic-sub003/internal/middleware"
	"github.com/xtm888/medflow-clinic-sub003/internal/model"
	"github.com/xtm888/medflow-clinic-sub003/internal/repository"
	"github.com/xtm888/medflow-clinic-sub003/internal/service"
	"github.com/xtm888/medflow-clinic-sub003/internal/ws"
	"github.com/xtm888/medflow-clinic-sub003/pkg/database"
	"github.com/xtm888/medflow-clinic-sub003/pkg/logger"

	"github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/gofiber/fiber/v2/middleware/cors"
	fiberlogger "github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

func main() {
	if err := godotenv.Load(); err != nil {
		log.Println("Warning: .env file not found")
	}
	cfg := config.Load()
	zlog := logger.New("inventory", cfg.LogLevel)
	defer zlog.Sync()

	db := database.ConnectDB()
	// Schema management belongs in a migration tool for production; automigrate
	// keeps local setups painless.
	if err := db.AutoMigrate(
		&model.StockItem{},
		&model.Batch{},
		&model.Reservation{},
		&model.Container{},
		&model.TemperatureObservation{},
		&model.TemperatureExcursion{},
		&model.UsageRecord{},
	); err != nil {
		zlog.Fatal("automigrate failed", zap.Error(err))
	}

	wsHub := ws.NewHub()
	go wsHub.Run()

	var publisher *events.Publisher
	if cfg.AMQPURL != "" {
		var err error
		publisher, err = events.NewPublisher(cfg.AMQPURL)
		if err != nil {
			zlog.Warn("message bus unavailable, integration events disabled", zap.Error(err))
		} else {
			defer publisher.Close()
		}
	}

	// Wiring
	itemRepo := repository.NewStockItemRepo(db)
	batchRepo := repository.NewBatchRepo(db)
	reservationRepo := repository.NewReservationRepo(db)
	containerRepo := repository.NewContainerRepo(db)
	observationRepo := repository.NewObservationRepo(db)
	usageRepo := repository.NewUsageRepo(db)

	itemService := service.NewStockItemService(db, itemRepo, batchRepo, usageRepo, zlog)
	batchService := service.NewBatchService(db, itemRepo, batchRepo, usageRepo, wsHub, publisher, zlog)
	reservationService := service.NewReservationService(db, itemRepo, batchRepo, reservationRepo, usageRepo, wsHub, publisher, zlog)
	containerService := service.NewContainerService(db, containerRepo, usageRepo, wsHub, publisher, zlog)
	coldChainService := service.NewColdChainService(db, containerRepo, observationRepo, wsHub, publisher, zlog)
	sweeper := service.NewSweepService(db, itemRepo, batchRepo, reservationRepo, containerRepo, wsHub, zlog,
		cfg.SweepInterval, cfg.ReservationTTL)

	inventoryHandler := handler.NewInventoryHandler(itemService, batchService, reservationService)
	containerHandler := handler.NewContainerHandler(containerService, coldChainService)

	app := fiber.New(fiber.Config{
		AppName: "MedFlow Inventory v1.0",
	})
	app.Use(fiberlogger.New())
	app.Use(recover.New())
	app.Use(cors.New())

	app.Get("/metrics", adaptor.HTTPHandler(promhttp.Handler()))
	app.Get("/healthz", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"status": "ok"})
	})

	api := app.Group("/api/v1", middleware.RequireScope())

	// Stock items & lots
	api.Get("/items", inventoryHandler.GetItems)
	api.Post("/items", inventoryHandler.CreateItem)
	api.Get("/items/:id", inventoryHandler.GetItem)
	api.Get("/items/:id/batches", inventoryHandler.GetBatches)
	api.Post("/items/:id/batches", inventoryHandler.ReceiveBatch)
	api.Post("/items/:id/consume", inventoryHandler.Consume)
	api.Get("/items/:id/usage", inventoryHandler.GetItemUsage)
	api.Get("/batches/expiring", inventoryHandler.GetExpiringSoon)
	api.Post("/batches/:id/dispose", inventoryHandler.DisposeBatch)
	api.Post("/batches/:id/expire", inventoryHandler.ExpireBatch)
	api.Post("/batches/:id/recall", inventoryHandler.RecallBatch)

	// Reservations
	api.Post("/reservations", inventoryHandler.Reserve)
	api.Get("/reservations", inventoryHandler.GetReservations)
	api.Get("/reservations/:id", inventoryHandler.GetReservation)
	api.Post("/reservations/:id/release", inventoryHandler.Release)
	api.Post("/reservations/:id/fulfill", inventoryHandler.Fulfill)

	// Containers & cold chain
	api.Get("/containers", containerHandler.GetContainers)
	api.Post("/containers", containerHandler.CreateContainer)
	api.Get("/containers/:id", containerHandler.GetContainer)
	api.Post("/containers/:id/open", containerHandler.Open)
	api.Post("/containers/:id/doses", containerHandler.RecordDose)
	api.Post("/containers/:id/temperatures", containerHandler.RecordTemperature)
	api.Get("/containers/:id/temperatures", containerHandler.GetObservations)
	api.Get("/containers/:id/usage", containerHandler.GetUsage)
	api.Post("/containers/:id/dispose", containerHandler.Dispose)
	api.Post("/containers/:id/recall", containerHandler.Recall)

	// Realtime dashboard feed
	app.Use("/ws", func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			return c.Next()
		}
		return c.SendStatus(fiber.StatusUpgradeRequired)
	})
	app.Get("/ws", websocket.New(func(c *websocket.Conn) {
		wsHub.Register <- c
		defer func() { wsHub.Unregister <- c }()
		for {
			if _, _, err := c.ReadMessage(); err != nil {
				break
			}
		}
	}))

	quitSweep := make(chan struct{})
	go sweeper.Run(quitSweep)

	go func() {
		if err := app.Listen(":" + cfg.Port); err != nil {
			zlog.Fatal("server stopped", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	zlog.Info("shutting down")
	close(quitSweep)
	if err := app.Shutdown(); err != nil {
		zlog.Fatal("forced shutdown", zap.Error(err))
	}
}
