package v1

import (
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/adanyl0v/go-todo-live/internal/services"
)

type Handler interface {
	HandleHealth(c *gin.Context)

	HandleLogin(c *gin.Context)
	HandleRefresh(c *gin.Context)
	HandleRegister(c *gin.Context)
	HandleLogout(c *gin.Context)
	HandleMe(c *gin.Context)
	HandleAuthMiddleware(c *gin.Context)

	HandleCreateTask(c *gin.Context)
	HandleGetTasks(c *gin.Context)
	HandleGetTask(c *gin.Context)
	HandleGetTaskStatistics(c *gin.Context)
	HandleUpdateTask(c *gin.Context)
	HandleDeleteTask(c *gin.Context)
	HandleReorderTasks(c *gin.Context)
}

type handlerImpl struct {
	logger zerolog.Logger
	auth   services.AuthService
	tasks  services.TaskService
}

func New(
	logger zerolog.Logger,
	authService services.AuthService,
	taskService services.TaskService,
) Handler {
	return &handlerImpl{
		logger: logger,
		auth:   authService,
		tasks:  taskService,
	}
}

// RegisterRoutes mounts every v1 route on router.
func RegisterRoutes(router gin.IRouter, h Handler) {
	router.GET("/health", h.HandleHealth)

	authRouter := router.Group("/auth")
	authRouter.POST("/login", h.HandleLogin)
	authRouter.POST("/refresh", h.HandleRefresh)
	authRouter.POST("/register", h.HandleRegister)
	authRouter.POST("/logout", h.HandleAuthMiddleware, h.HandleLogout)
	authRouter.GET("/me", h.HandleAuthMiddleware, h.HandleMe)

	tasksRouter := router.Group("/tasks", h.HandleAuthMiddleware)
	tasksRouter.GET("", h.HandleGetTasks)
	tasksRouter.POST("", h.HandleCreateTask)
	tasksRouter.PUT("/reorder", h.HandleReorderTasks)
	tasksRouter.GET("/statistics", h.HandleGetTaskStatistics)
	tasksRouter.GET("/:id", h.HandleGetTask)
	tasksRouter.PUT("/:id", h.HandleUpdateTask)
	tasksRouter.DELETE("/:id", h.HandleDeleteTask)
}
