package api

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/swasthyasetu/appointment-service/internal/auth"
	"github.com/swasthyasetu/appointment-service/internal/middleware"
)

type Router struct {
	handler     *Handler
	authService auth.Service
}

func NewRouter(handler *Handler, authService auth.Service) *Router {
	return &Router{
		handler:     handler,
		authService: authService,
	}
}

func (r *Router) SetupRouter(logger *zap.Logger) *gin.Engine {
	router := gin.New()

	router.Use(
		middleware.RequestIDMiddleware(),
		middleware.SecurityHeadersMiddleware(),
		middleware.RecoveryMiddleware(logger),
		middleware.LoggerMiddleware(logger),
		middleware.RateLimitMiddleware(rate.Every(time.Second), 30),
		middleware.TimeoutMiddleware(10*time.Second),
	)

	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "healthy"})
	})

	api := router.Group("/api")
	api.Use(middleware.AuthMiddleware(r.authService))
	{
		appointments := api.Group("/appointments")
		{
			// Queries before the :id wildcard so named routes win.
			appointments.GET("/doctor/:id/day", r.handler.DoctorDay)
			appointments.GET("/patient/:id", r.handler.PatientHistory)
			appointments.GET("/queue", r.handler.Queue)
			appointments.GET("/urgent", r.handler.Urgent)
			appointments.GET("/specialty/:name", r.handler.BySpecialty)
			appointments.GET("/district/:district", r.handler.ByDistrict)

			appointments.POST("", r.handler.CreateAppointment)
			appointments.GET("/:id", r.handler.GetAppointment)
			appointments.POST("/:id/transition", r.handler.TransitionAppointment)
			appointments.POST("/:id/reschedule", r.handler.RescheduleAppointment)
			appointments.POST("/:id/triage",
				middleware.RequireRoles(auth.RoleAISystem, auth.RoleAdmin),
				r.handler.AttachTriage)
		}

		auditLogs := api.Group("/audit")
		auditLogs.Use(middleware.RequireRoles(auth.RoleAdmin))
		{
			auditLogs.GET("/logs", r.handler.GetAuditLogs)
		}
	}

	router.NoRoute(func(c *gin.Context) {
		c.JSON(http.StatusNotFound, gin.H{"error": "endpoint not found"})
	})

	return router
}
