package router

import (
	"github.com/gin-gonic/gin"

	"github.com/cuongbtq/helpdesk-be/internal/api/handler"
)

// SetupRouter configures and returns the Gin router with all routes
func SetupRouter(deps *handler.Dependencies) *gin.Engine {
	r := gin.New()

	// Middleware
	r.Use(gin.Recovery())
	r.Use(RequestIDMiddleware())
	r.Use(LoggerMiddleware(deps.Logger))
	r.Use(CORSMiddleware())

	r.GET("/health", handler.Health("helpdesk-api-service", deps.Checks))

	ticketHandler := handler.NewTicketHandler(deps)
	userHandler := handler.NewUserHandler(deps)
	searchHandler := handler.NewSearchHandler(deps)
	jobHandler := handler.NewJobHandler(deps)

	v1 := r.Group("/api/v1")
	{
		auth := v1.Group("/auth")
		{
			auth.POST("/register", userHandler.Register)
			auth.POST("/login", userHandler.Login)
		}

		tickets := v1.Group("/tickets")
		{
			tickets.POST("", ticketHandler.CreateTicket)
			tickets.DELETE("/:ticket_id", ticketHandler.DeleteTicket)
			tickets.POST("/:ticket_id/messages", ticketHandler.CreateMessage)
		}

		v1.GET("/search", searchHandler.Search)

		jobs := v1.Group("/jobs")
		{
			jobs.GET("", jobHandler.ListJobs)
			jobs.GET("/:job_id", jobHandler.GetJob)
			jobs.POST("/:job_id/retry", jobHandler.RetryJob)
			jobs.DELETE("/:job_id", jobHandler.DeleteJob)
		}
	}

	return r
}
