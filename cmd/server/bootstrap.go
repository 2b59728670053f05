package main

import (
	"github.com/openkite/kitehub/internal/config"
	"github.com/openkite/kitehub/internal/handlers"
	"github.com/openkite/kitehub/internal/models"
	"github.com/openkite/kitehub/internal/services"
	"github.com/openkite/kitehub/internal/utils"
	"github.com/openkite/kitehub/pkg/logger"
)

// appServices holds all initialized services and handlers needed by the application.
type appServices struct {
	activityService *services.ActivityService
	eventQueue      services.EventQueue
	worker          *services.Worker
	authHandler     *handlers.AuthHandler
	projectHandler  *handlers.ProjectHandler
	memberHandler   *handlers.ProjectMemberHandler
	activityHandler *handlers.ActivityHandler
}

// bootstrap initializes all application dependencies: database, queue, schedulers.
func bootstrap(cfg *config.Config) *appServices {
	utils.SetJWTSecret(cfg.JWT.Secret)

	// Initialize database
	if err := models.InitDB(&cfg.Database); err != nil {
		logger.Fatalf("Failed to connect to database: %v", err)
	}

	// Auto migrate database
	if err := models.AutoMigrate(); err != nil {
		logger.Fatalf("Failed to migrate database: %v", err)
	}

	db := models.GetDB()

	// Activity feed consumes committed member events
	activityService := services.NewActivityService(db, cfg.Activity)
	activityService.StartRetentionScheduler()

	// Initialize event queue (uses Redis if enabled, otherwise sync mode)
	eventQueue := services.InitEventQueue(cfg)
	if syncQueue, ok := eventQueue.(*services.SyncEventQueue); ok {
		syncQueue.SetProcessor(activityService.ProcessMemberEvent)
	}

	// Start async worker if Redis is enabled
	var worker *services.Worker
	if cfg.Redis.Enabled && eventQueue.IsAsync() {
		worker = services.InitWorker(&cfg.Redis)
		if worker != nil {
			worker.SetProcessor(activityService.ProcessMemberEvent)
			worker.Start()
		}
	}

	memberService := services.NewMembershipService(db, eventQueue)

	// Create default admin user
	authHandler := handlers.NewAuthHandler(db, cfg)
	if err := authHandler.CreateAdminIfNotExists(); err != nil {
		logger.Warn().Err(err).Msg("Failed to create admin user")
	}

	return &appServices{
		activityService: activityService,
		eventQueue:      eventQueue,
		worker:          worker,
		authHandler:     authHandler,
		projectHandler:  handlers.NewProjectHandler(db),
		memberHandler:   handlers.NewProjectMemberHandler(db, memberService),
		activityHandler: handlers.NewActivityHandler(activityService),
	}
}

// shutdown gracefully stops all services.
func (s *appServices) shutdown() {
	s.activityService.StopRetentionScheduler()

	if s.worker != nil {
		s.worker.Stop()
	}
	if s.eventQueue != nil {
		s.eventQueue.Close()
	}
	logger.Info().Msg("All services stopped")
}
