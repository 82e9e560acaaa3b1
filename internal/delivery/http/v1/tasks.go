package v1

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/adanyl0v/go-todo-live/internal/realtime"
	"github.com/adanyl0v/go-todo-live/internal/services"
)

type taskResponse struct {
	Task realtime.TaskPayload `json:"task"`
}

type tasksResponse struct {
	Tasks []realtime.TaskPayload `json:"tasks"`
}

type createTaskRequest struct {
	Content string `json:"content" binding:"required,max=500"`
}

func (h *handlerImpl) HandleCreateTask(c *gin.Context) {
	userID, ok := h.userID(c)
	if !ok {
		return
	}

	var req createTaskRequest
	err := c.ShouldBindJSON(&req)
	if err != nil {
		h.logger.Error().
			Err(err).
			Msg("failed to bind json")
		abort(c, newBadRequestError(errInvalidRequestBody.Error()))
		return
	}

	task, err := h.tasks.CreateTask(c, services.CreateTaskParams{
		UserID:  userID,
		Content: req.Content,
	})
	if err != nil {
		h.logger.Error().
			Err(err).
			Msg("failed to create task")
		abort(c, newTaskError(err))
		return
	}

	c.JSON(http.StatusCreated, taskResponse{Task: realtime.NewTaskPayload(task)})
}

type getTasksQuery struct {
	Completed *bool  `form:"completed"`
	Search    string `form:"search" binding:"max=500"`
}

func (h *handlerImpl) HandleGetTasks(c *gin.Context) {
	userID, ok := h.userID(c)
	if !ok {
		return
	}

	var query getTasksQuery
	err := c.ShouldBindQuery(&query)
	if err != nil {
		h.logger.Error().
			Err(err).
			Msg("failed to bind query")
		abort(c, newBadRequestError(errInvalidQuery.Error()))
		return
	}

	tasks, err := h.tasks.FindTasks(c, services.FindTasksParams{
		UserID:    userID,
		Completed: query.Completed,
		Search:    query.Search,
	})
	if err != nil {
		h.logger.Error().
			Err(err).
			Msg("failed to get tasks")
		abort(c, newTaskError(err))
		return
	}

	c.JSON(http.StatusOK, tasksResponse{Tasks: realtime.NewTaskPayloads(tasks)})
}

type statisticsResponse struct {
	Total     int `json:"total"`
	Completed int `json:"completed"`
	Active    int `json:"active"`
}

func (h *handlerImpl) HandleGetTaskStatistics(c *gin.Context) {
	userID, ok := h.userID(c)
	if !ok {
		return
	}

	stats, err := h.tasks.GetTaskStatistics(c, userID)
	if err != nil {
		h.logger.Error().
			Err(err).
			Msg("failed to get task statistics")
		abort(c, newTaskError(err))
		return
	}

	c.JSON(http.StatusOK, statisticsResponse{
		Total:     stats.Total,
		Completed: stats.Completed,
		Active:    stats.Active,
	})
}

func (h *handlerImpl) HandleGetTask(c *gin.Context) {
	userID, ok := h.userID(c)
	if !ok {
		return
	}

	task, err := h.tasks.GetTask(c, userID, c.Param("id"))
	if err != nil {
		h.logger.Error().
			Err(err).
			Msg("failed to get task")
		abort(c, newTaskError(err))
		return
	}

	c.JSON(http.StatusOK, taskResponse{Task: realtime.NewTaskPayload(task)})
}

type updateTaskRequest struct {
	Content   *string `json:"content" binding:"omitempty,max=500"`
	Completed *bool   `json:"completed"`
}

func (h *handlerImpl) HandleUpdateTask(c *gin.Context) {
	userID, ok := h.userID(c)
	if !ok {
		return
	}

	var req updateTaskRequest
	err := c.ShouldBindJSON(&req)
	if err != nil {
		h.logger.Error().
			Err(err).
			Msg("failed to bind json")
		abort(c, newBadRequestError(errInvalidRequestBody.Error()))
		return
	}

	task, err := h.tasks.UpdateTask(c, services.UpdateTaskParams{
		ID:        c.Param("id"),
		UserID:    userID,
		Content:   req.Content,
		Completed: req.Completed,
	})
	if err != nil {
		h.logger.Error().
			Err(err).
			Msg("failed to update task")
		abort(c, newTaskError(err))
		return
	}

	c.JSON(http.StatusOK, taskResponse{Task: realtime.NewTaskPayload(task)})
}

func (h *handlerImpl) HandleDeleteTask(c *gin.Context) {
	userID, ok := h.userID(c)
	if !ok {
		return
	}

	err := h.tasks.DeleteTask(c, services.DeleteTaskParams{
		ID:     c.Param("id"),
		UserID: userID,
	})
	if err != nil {
		h.logger.Error().
			Err(err).
			Msg("failed to delete task")
		abort(c, newTaskError(err))
		return
	}

	c.Status(http.StatusNoContent)
}

type reorderTasksRequest struct {
	TaskID string `json:"taskId" binding:"required"`
	// Pointer so that an explicit 0 passes the required check.
	NewOrder *float64 `json:"newOrder" binding:"required"`
}

func (h *handlerImpl) HandleReorderTasks(c *gin.Context) {
	userID, ok := h.userID(c)
	if !ok {
		return
	}

	var req reorderTasksRequest
	err := c.ShouldBindJSON(&req)
	if err != nil {
		h.logger.Error().
			Err(err).
			Msg("failed to bind json")
		abort(c, newBadRequestError(errInvalidRequestBody.Error()))
		return
	}

	tasks, err := h.tasks.ReorderTask(c, services.ReorderTaskParams{
		UserID:   userID,
		TaskID:   req.TaskID,
		NewOrder: *req.NewOrder,
	})
	if err != nil {
		h.logger.Error().
			Err(err).
			Str("task_id", req.TaskID).
			Msg("failed to reorder task")
		abort(c, newTaskError(err))
		return
	}

	c.JSON(http.StatusOK, tasksResponse{Tasks: realtime.NewTaskPayloads(tasks)})
}
