package http

import (
	"context"
	"net/http"
	"strconv"
	"strings"

	"counsel/internal/app/agent/coordinator"
	"counsel/internal/domain/agent/ports"
	domain "counsel/internal/domain/task"
	"counsel/internal/shared/logging"

	"github.com/gin-gonic/gin"
)

// TaskService is the coordinator surface the HTTP layer depends on.
type TaskService interface {
	CreateTask(ctx context.Context, identity ports.Identity, req coordinator.CreateTaskRequest) (*domain.Task, error)
	GetTask(ctx context.Context, identity ports.Identity, taskID string) (domain.Detail, error)
	ListTasks(ctx context.Context, identity ports.Identity, limit int) ([]domain.Summary, error)
	ActiveTask(ctx context.Context, identity ports.Identity) (*domain.Detail, error)
	RateTask(ctx context.Context, identity ports.Identity, taskID string, rating int) error
	ResumeTask(ctx context.Context, identity ports.Identity, taskID, answer string) (domain.Detail, error)
	Tools() []ports.ToolDefinition
}

type createTaskRequest struct {
	Goal           string         `json:"goal"`
	Plan           []string       `json:"plan"`
	EstimatedSteps int            `json:"estimated_steps"`
	Context        map[string]any `json:"context"`
}

type createTaskResponse struct {
	TaskID         string        `json:"task_id"`
	Goal           string        `json:"goal"`
	Plan           []string      `json:"plan"`
	EstimatedSteps int           `json:"estimated_steps"`
	MaxIterations  int           `json:"max_iterations"`
	Status         domain.Status `json:"status"`
}

type rateTaskRequest struct {
	Rating *int `json:"rating"`
}

type resumeTaskRequest struct {
	Answer string `json:"answer"`
}

// TaskHandler serves the task endpoints.
type TaskHandler struct {
	tasks        TaskService
	logger       logging.Logger
	maxBodyBytes int64
}

// NewTaskHandler creates a TaskHandler.
func NewTaskHandler(tasks TaskService, maxBodyBytes int64, logger logging.Logger) *TaskHandler {
	if maxBodyBytes <= 0 {
		maxBodyBytes = defaultMaxBodyBytes
	}
	return &TaskHandler{tasks: tasks, logger: logging.OrNop(logger), maxBodyBytes: maxBodyBytes}
}

func (h *TaskHandler) bind(c *gin.Context, dst any) bool {
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, h.maxBodyBytes)
	if err := c.ShouldBindJSON(dst); err != nil {
		c.JSON(http.StatusBadRequest, errorBody("invalid request body: "+err.Error()))
		return false
	}
	return true
}

func (h *TaskHandler) writeError(c *gin.Context, err error) {
	if status, msg := mapDomainError(err); status != 0 {
		c.JSON(status, errorBody(msg))
		return
	}
	logging.FromContext(c.Request.Context(), h.logger).Error("%s %s failed: %v", c.Request.Method, c.FullPath(), err)
	c.JSON(http.StatusInternalServerError, errorBody("internal error"))
}

// HandleCreateTask accepts a goal and starts its loop in the background.
func (h *TaskHandler) HandleCreateTask(c *gin.Context) {
	var req createTaskRequest
	if !h.bind(c, &req) {
		return
	}
	t, err := h.tasks.CreateTask(c.Request.Context(), identityFrom(c), coordinator.CreateTaskRequest{
		Goal:           req.Goal,
		Plan:           req.Plan,
		EstimatedSteps: req.EstimatedSteps,
		Context:        req.Context,
	})
	if err != nil {
		h.writeError(c, err)
		return
	}
	plan := t.Plan
	if plan == nil {
		plan = []string{}
	}
	c.JSON(http.StatusCreated, createTaskResponse{
		TaskID:         t.ID,
		Goal:           t.Goal,
		Plan:           plan,
		EstimatedSteps: t.EstimatedSteps,
		MaxIterations:  t.MaxIterations,
		Status:         t.Status,
	})
}

// HandleListTasks lists the caller's recent tasks.
func (h *TaskHandler) HandleListTasks(c *gin.Context) {
	limit := 0
	if raw := strings.TrimSpace(c.Query("limit")); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			c.JSON(http.StatusBadRequest, errorBody("limit must be a non-negative integer"))
			return
		}
		limit = n
	}
	tasks, err := h.tasks.ListTasks(c.Request.Context(), identityFrom(c), limit)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"tasks": tasks, "count": len(tasks)})
}

// HandleActiveTask reports the caller's running task, if any.
func (h *TaskHandler) HandleActiveTask(c *gin.Context) {
	detail, err := h.tasks.ActiveTask(c.Request.Context(), identityFrom(c))
	if err != nil {
		h.writeError(c, err)
		return
	}
	if detail == nil {
		c.JSON(http.StatusOK, gin.H{"active": false})
		return
	}
	c.JSON(http.StatusOK, gin.H{"active": true, "task": detail})
}

// HandleGetTask returns one task with its progress log.
func (h *TaskHandler) HandleGetTask(c *gin.Context) {
	detail, err := h.tasks.GetTask(c.Request.Context(), identityFrom(c), c.Param("id"))
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, detail)
}

// HandleRateTask stores feedback on a finished task.
func (h *TaskHandler) HandleRateTask(c *gin.Context) {
	var req rateTaskRequest
	if !h.bind(c, &req) {
		return
	}
	if req.Rating == nil {
		c.JSON(http.StatusBadRequest, errorBody("rating is required"))
		return
	}
	taskID := c.Param("id")
	if err := h.tasks.RateTask(c.Request.Context(), identityFrom(c), taskID, *req.Rating); err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"task_id": taskID, "rating": *req.Rating})
}

// HandleResumeTask answers a suspended task's question.
func (h *TaskHandler) HandleResumeTask(c *gin.Context) {
	var req resumeTaskRequest
	if !h.bind(c, &req) {
		return
	}
	detail, err := h.tasks.ResumeTask(c.Request.Context(), identityFrom(c), c.Param("id"), req.Answer)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusAccepted, detail)
}

// HandleListTools returns the tool catalog offered to the reasoning service.
func (h *TaskHandler) HandleListTools(c *gin.Context) {
	tools := h.tasks.Tools()
	if tools == nil {
		tools = []ports.ToolDefinition{}
	}
	c.JSON(http.StatusOK, gin.H{"tools": tools, "count": len(tools)})
}

func errorBody(message string) gin.H {
	return gin.H{"error": message}
}
