package main

import (
	"context"
	"net/http"

	"github.com/joho/godotenv"
	"github.com/rs/cors"

	"pledgedesk/internal/api"
	"pledgedesk/internal/config"
	"pledgedesk/internal/db"
	"pledgedesk/internal/engine"
	"pledgedesk/internal/logger"
	"pledgedesk/internal/models"
	"pledgedesk/internal/services"
	"pledgedesk/internal/store"
	"pledgedesk/internal/tasks"
	"pledgedesk/internal/trigger"
	"pledgedesk/internal/websocket"
)

func main() {
	logger.Init()
	log := logger.Get()

	// Load environment variables
	if err := godotenv.Load(); err != nil {
		log.Info("no .env file found, using environment variables")
	}

	// Initialize configuration
	cfg := config.Load()

	// Initialize database connection
	database, err := db.Connect(cfg.Database)
	if err != nil {
		log.WithError(err).Fatal("failed to connect to database")
	}

	// Initialize Redis; fall back to in-process gating when unavailable
	var (
		gate  trigger.Gate
		locks trigger.Locker
	)
	redisClient, err := db.ConnectRedis(cfg.Redis)
	if err != nil {
		log.WithError(err).Warn("redis unavailable, using in-process trigger gate and locks")
		gate = trigger.NewMemoryGate(cfg.Engine.AutoTriggerEnabled)
		locks = trigger.NewMemoryLocker()
	} else {
		gate = trigger.NewRedisGate(redisClient)
		locks = trigger.NewRedisLocker(redisClient)
		if cfg.Engine.AutoTriggerEnabled {
			if err := gate.SetEnabled(context.Background(), true); err != nil {
				log.WithError(err).Warn("failed to enable trigger gate")
			}
		}
	}

	// Initialize WebSocket hub
	wsHub := websocket.NewHub()
	go wsHub.Run()

	// Wire the stores, engine, and services
	sessionStore := store.NewSessionStore(database)
	pledgeStore := store.NewPledgeStore(database)
	executionStore := store.NewExecutionStore(database)
	auditStore := store.NewAuditStore(database)

	executor := engine.NewExecutor(sessionStore, pledgeStore, executionStore, auditStore, wsHub, cfg.Engine)
	auditService := services.NewAuditService(auditStore)
	sessionService := services.NewSessionService(
		sessionStore, pledgeStore, executor, locks, auditService, cfg.Engine.LockTTL,
		func(message string) {
			if message != "" {
				wsHub.Broadcast(models.Message{Type: "notice", Content: message})
			}
		},
	)
	pledgeService := services.NewPledgeService(sessionStore, pledgeStore, auditService)

	// Start the automated execution trigger
	autoTrigger := trigger.NewAutoTrigger(sessionStore, executor, gate, locks, cfg.Engine)
	autoTrigger.Start()

	// Initialize scheduled maintenance tasks
	taskManager := tasks.NewManager()
	taskManager.RegisterTask(tasks.NewRollupRecountTask(sessionService))
	taskManager.StartScheduledTasks()

	// Initialize router
	router := api.SetupRouter(database, wsHub, cfg, sessionService, pledgeService, auditService, autoTrigger)

	// Set up CORS
	corsMiddleware := cors.New(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Content-Type", "Authorization"},
		AllowCredentials: true,
	})

	// Apply CORS middleware
	handler := corsMiddleware.Handler(router)

	// Start the server
	log.WithField("port", cfg.Server.Port).Info("server starting")
	log.Fatal(http.ListenAndServe(":"+cfg.Server.Port, handler))
}
