package api

import (
	"github.com/gorilla/mux"
	"gorm.io/gorm"

	"pledgedesk/internal/config"
	"pledgedesk/internal/handlers"
	"pledgedesk/internal/middleware"
	"pledgedesk/internal/services"
	"pledgedesk/internal/store"
	"pledgedesk/internal/trigger"
	"pledgedesk/internal/websocket"
)

// SetupRouter configures all routes and returns the router
func SetupRouter(
	db *gorm.DB,
	wsHub *websocket.Hub,
	cfg *config.Config,
	sessionService services.SessionService,
	pledgeService services.PledgeService,
	auditService services.AuditService,
	autoTrigger *trigger.AutoTrigger,
) *mux.Router {
	// Create a new router
	router := mux.NewRouter()

	// Add health check endpoint
	router.HandleFunc("/api/health", HealthHandler).Methods("GET")

	// WebSocket route for operator notifications
	router.HandleFunc("/ws", wsHub.HandleWebSocket)

	// Create handlers using services
	authHandler := handlers.NewAuthHandler(services.NewAuthService(db), cfg.JWT.SecretKey)
	sessionHandler := handlers.NewSessionHandler(sessionService, auditService)
	pledgeHandler := handlers.NewPledgeHandler(pledgeService)
	executionHandler := handlers.NewExecutionHandler(store.NewExecutionStore(db))
	triggerHandler := handlers.NewTriggerHandler(autoTrigger)

	// Add public endpoints directly to the root router (no authentication required)
	router.HandleFunc("/api/login", authHandler.Login).Methods("POST")

	// Create the API router for authenticated endpoints
	apiRouter := router.PathPrefix("/api").Subrouter()

	// Create a subrouter for authenticated endpoints
	authRouter := apiRouter.PathPrefix("").Subrouter()
	authRouter.Use(middleware.AuthMiddleware(cfg.JWT.SecretKey))

	// Register routes
	sessionHandler.RegisterRoutes(authRouter)
	pledgeHandler.RegisterRoutes(authRouter)
	executionHandler.RegisterRoutes(authRouter)
	triggerHandler.RegisterRoutes(authRouter)

	return router
}
