package main

import (
	"github.com/gin-gonic/gin"
	"github.com/openkite/kitehub/internal/handlers"
	"github.com/openkite/kitehub/internal/middleware"
	"github.com/openkite/kitehub/pkg/logger"
)

// registerRoutes sets up all HTTP routes on the given Gin engine.
func registerRoutes(r *gin.Engine, svc *appServices) {
	// Middleware
	r.Use(logger.GinLogger(), logger.GinRecovery())
	r.RedirectTrailingSlash = false
	r.RedirectFixedPath = false
	r.Use(middleware.CORS())

	// Rate limiters: one for login attempts, one for member mutations
	authLimiter := middleware.NewRateLimiter(10, 20)
	memberLimiter := middleware.NewRateLimiter(20, 40)

	// Health check
	r.GET("/health", handlers.Health)

	// API routes
	api := r.Group("/api")
	{
		// Auth routes (public, rate limited)
		auth := api.Group("/auth", authLimiter.Middleware())
		{
			auth.POST("/login", svc.authHandler.Login)
			auth.POST("/refresh", svc.authHandler.Refresh)
			auth.GET("/config", svc.authHandler.GetAuthConfig)
		}

		// Protected routes
		protected := api.Group("")
		protected.Use(middleware.AuthRequired())
		{
			// Auth
			protected.GET("/auth/me", svc.authHandler.GetCurrentUser)
			protected.POST("/auth/logout", svc.authHandler.Logout)
			protected.POST("/auth/change-password", svc.authHandler.ChangePassword)

			// Projects
			protected.GET("/projects", svc.projectHandler.List)
			protected.POST("/projects", svc.projectHandler.Create)
			protected.GET("/projects/:id", svc.projectHandler.Get)

			// Members
			protected.GET("/projects/:id/members", svc.memberHandler.List)
			protected.POST("/projects/:id/members", memberLimiter.Middleware(), svc.memberHandler.Add)
			protected.DELETE("/projects/:id/members/leave", memberLimiter.Middleware(), svc.memberHandler.Leave)
			protected.DELETE("/projects/:id/members/:memberID", memberLimiter.Middleware(), svc.memberHandler.Remove)
			protected.POST("/projects/:id/members/import", memberLimiter.Middleware(), svc.memberHandler.Import)

			// Access requests
			protected.GET("/projects/:id/access-requests", svc.memberHandler.ListRequests)
			protected.POST("/projects/:id/access-requests", memberLimiter.Middleware(), svc.memberHandler.RequestAccess)
			protected.POST("/projects/:id/access-requests/:memberID/approve", memberLimiter.Middleware(), svc.memberHandler.Approve)
		}

		// Admin only routes
		admin := api.Group("")
		admin.Use(middleware.AuthRequired(), middleware.AdminRequired())
		{
			// Activity feed
			admin.GET("/activity-events", svc.activityHandler.List)
		}
	}
}
