package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/panjf2000/ants/v2"
	"go.uber.org/zap"

	"github.com/prdanielmota/parking-whatsapp-bot/database"
	"github.com/prdanielmota/parking-whatsapp-bot/internal/config"
	"github.com/prdanielmota/parking-whatsapp-bot/internal/events"
	"github.com/prdanielmota/parking-whatsapp-bot/internal/handlers"
	"github.com/prdanielmota/parking-whatsapp-bot/internal/jobs"
	"github.com/prdanielmota/parking-whatsapp-bot/internal/logging"
	"github.com/prdanielmota/parking-whatsapp-bot/internal/models"
	"github.com/prdanielmota/parking-whatsapp-bot/internal/recognition"
	"github.com/prdanielmota/parking-whatsapp-bot/internal/routes"
	"github.com/prdanielmota/parking-whatsapp-bot/internal/services"
	"github.com/prdanielmota/parking-whatsapp-bot/internal/storage"
	"github.com/prdanielmota/parking-whatsapp-bot/internal/transport"
)

const version = "1.0.0"

func main() {
	cfg := config.Load()

	zlog := logging.Setup(cfg.LogDev, cfg.LogFile)
	defer zlog.Sync()
	sugar := zap.S()

	// Initialize storage
	var store storage.Store
	if cfg.UseMemoryStore {
		sugar.Warn("⚠️ Using in-memory storage (not for production!)")
		store = storage.NewMemoryStore()
	} else {
		sugar.Info("📦 Connecting to PostgreSQL database...")
		database.Connect()

		sugar.Info("🔄 Running database migrations...")
		err := database.DB.AutoMigrate(
			&models.User{},
			&models.Driver{},
			&models.Vehicle{},
			&models.ParkingLog{},
			&models.NotificationLog{},
			&models.RecognitionLog{},
			&models.AuthCode{},
			&models.Session{},
			&models.AuditLog{},
		)
		if err != nil {
			sugar.Fatalf("❌ Failed to migrate database: %v", err)
		}
		sugar.Info("✅ Database migrations completed!")

		store = storage.NewDatabaseStore(database.DB)
	}
	storage.SetStore(store)

	// Core services
	authService := services.NewAuthService(store, cfg.CodeTTL, cfg.SessionTTL, cfg.MaxCodeAttempts)
	conversations := services.NewConversationStore()

	provider := recognition.NewScriptProvider(cfg.PythonBin, cfg.RecognitionScript, cfg.RecognitionTimeout)
	orchestrator := recognition.NewOrchestrator(provider, store, cfg.MinConfidence, cfg.CacheTTL, cfg.CacheMaxEntries)

	bus := events.NewBus()
	if err := bus.StartAuditRecorder(store); err != nil {
		sugar.Fatalf("❌ Failed to start audit recorder: %v", err)
	}

	bootstrapAdmin(store, authService, cfg)

	// Transport selection
	var (
		sender      transport.Transport
		waTransport *transport.WhatsmeowTransport
		webhook     *handlers.WebhookHandler
	)
	switch cfg.Transport {
	case "twilio":
		tw, err := transport.NewTwilioTransport(cfg.TwilioAccountSID, cfg.TwilioAuthToken, cfg.TwilioWhatsAppFrom)
		if err != nil {
			sugar.Fatalf("❌ Failed to initialize Twilio transport: %v", err)
		}
		sender = tw
		webhook = handlers.NewWebhookHandler(tw)
	default:
		wa, err := transport.NewWhatsmeowTransport(cfg.WhatsmeowDB)
		if err != nil {
			sugar.Fatalf("❌ Failed to initialize whatsmeow transport: %v", err)
		}
		sender = wa
		waTransport = wa
	}

	pool, err := ants.NewPool(cfg.WorkerPoolSize)
	if err != nil {
		sugar.Fatalf("❌ Failed to create worker pool: %v", err)
	}

	router := services.NewRouter(conversations, authService, store, orchestrator, sender, bus, pool)
	sender.OnMessage(router.HandleMessage)

	if err := sender.Start(context.Background()); err != nil {
		sugar.Fatalf("❌ Failed to start %s transport: %v", cfg.Transport, err)
	}

	// Background sweeper
	sweeper := jobs.NewSweeperJob(store, conversations, cfg.ConversationIdle)
	sweeper.Start()

	// HTTP surface
	app := fiber.New(fiber.Config{
		AppName: "Parking WhatsApp Bot v" + version,
		ErrorHandler: func(c *fiber.Ctx, err error) error {
			code := fiber.StatusInternalServerError
			if e, ok := err.(*fiber.Error); ok {
				code = e.Code
			}
			return c.Status(code).JSON(fiber.Map{
				"error": err.Error(),
			})
		},
	})

	app.Use(logger.New(logger.Config{
		Format: "[${time}] ${status} - ${latency} ${method} ${path}\n",
	}))
	app.Use(recover.New())
	app.Use(cors.New(cors.Config{
		AllowOrigins: "*",
		AllowHeaders: "Origin, Content-Type, Accept, X-Admin-Token",
		AllowMethods: "GET, POST, OPTIONS",
	}))

	health := handlers.NewHealthHandler(version, store)
	admin := handlers.NewAdminHandler(store, sender, waTransport, cfg.Transport)
	routes.SetupRoutes(app, cfg, health, webhook, admin)

	// Graceful shutdown
	sig := make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sig
		sugar.Info("🛑 Gracefully shutting down...")
		sweeper.Stop()
		sender.Stop()
		pool.Release()
		bus.Wait()
		_ = app.Shutdown()
	}()

	sugar.Info("========================================")
	sugar.Infof("🚀 Parking WhatsApp Bot starting on port %s", cfg.Port)
	sugar.Infof("📊 Storage: %s", storageLabel(cfg))
	sugar.Infof("📱 Transport: %s", cfg.Transport)
	sugar.Infof("🔍 Recognizer: %s %s (min confidence %.0f%%)", cfg.PythonBin, cfg.RecognitionScript, cfg.MinConfidence)
	sugar.Info("========================================")

	if err := app.Listen(":" + cfg.Port); err != nil {
		sugar.Fatalf("❌ Server stopped: %v", err)
	}
}

// bootstrapAdmin seeds the very first admin account on an empty user
// table and prints its one-time login code to the console. The code is
// never sent over chat: at this point no transport is paired yet.
func bootstrapAdmin(store storage.Store, auth *services.AuthService, cfg *config.Config) {
	count, err := store.CountUsers()
	if err != nil {
		zap.S().Fatalf("❌ Failed to count users: %v", err)
	}
	if count > 0 {
		return
	}
	if cfg.AdminWhatsApp == "" {
		zap.S().Warn("⚠️ User table is empty and ADMIN_WHATSAPP is unset: nobody can log in")
		return
	}

	admin, err := store.CreateUser(&models.User{
		Name:     cfg.AdminName,
		WhatsApp: cfg.AdminWhatsApp,
		Role:     models.RoleAdmin,
		Active:   true,
	})
	if err != nil {
		zap.S().Fatalf("❌ Failed to create initial admin: %v", err)
	}

	res := auth.IssueInitialCode(admin.UserID)
	if !res.Issued {
		zap.S().Fatalf("❌ Failed to issue initial admin code: %s", res.Reason)
	}

	zap.S().Infof("👤 Initial admin %s created for %s", admin.UserID, admin.WhatsApp)
	zap.S().Infof("🔑 First login code (valid %s): %s", cfg.CodeTTL, res.Code)
}

func storageLabel(cfg *config.Config) string {
	if cfg.UseMemoryStore {
		return "In-Memory (Testing)"
	}
	return "PostgreSQL Database"
}
