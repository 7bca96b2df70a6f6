package handler

import (
	"fmt"
	"net/http"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/jpmendieta/taskflow-api/internal/middleware"
	"github.com/jpmendieta/taskflow-api/internal/models"
	"github.com/jpmendieta/taskflow-api/internal/service"
	appErrors "github.com/jpmendieta/taskflow-api/pkg/errors"
	"github.com/jpmendieta/taskflow-api/pkg/export"
	"github.com/jpmendieta/taskflow-api/pkg/response"
)

// TaskHandler wires task services to HTTP routes.
type TaskHandler struct {
	tasks   *service.TaskService
	exports *service.ExportService
}

// NewTaskHandler constructs a new TaskHandler.
func NewTaskHandler(tasks *service.TaskService, exports *service.ExportService) *TaskHandler {
	return &TaskHandler{tasks: tasks, exports: exports}
}

func taskFilterFromQuery(c *gin.Context) models.TaskFilter {
	filter := models.TaskFilter{
		Search:    strings.TrimSpace(c.Query("search")),
		UserID:    c.Query("user_id"),
		SortBy:    c.Query("sort"),
		SortOrder: c.Query("order"),
	}
	if raw := c.Query("status"); raw != "" {
		status := models.TaskStatus(strings.ToLower(raw))
		filter.Status = &status
	}
	if page, err := strconv.Atoi(c.DefaultQuery("page", "1")); err == nil {
		filter.Page = page
	}
	if size, err := strconv.Atoi(c.DefaultQuery("limit", "20")); err == nil {
		filter.PageSize = size
	}
	return filter
}

// List godoc
// @Summary List open tasks
// @Tags Tasks
// @Produce json
// @Param search query string false "Search by title/description"
// @Param status query string false "Filter by status (created,in_progress,done,deleted)"
// @Param user_id query string false "Filter by assignee"
// @Param page query int false "Page number"
// @Param limit query int false "Page size"
// @Param sort query string false "Sort field (title,time,status,created_at)"
// @Param order query string false "Sort order (asc/desc)"
// @Success 200 {object} response.Envelope
// @Router /tasks [get]
func (h *TaskHandler) List(c *gin.Context) {
	start := time.Now()
	tasks, pagination, cacheHit, err := h.tasks.List(c.Request.Context(), taskFilterFromQuery(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	middleware.SetCacheHit(c, cacheHit)
	meta := middleware.ExtractMeta(c)
	if meta == nil {
		meta = map[string]interface{}{}
	}
	meta["processing_time_ms"] = time.Since(start).Milliseconds()
	if len(tasks) == 0 {
		meta["message"] = "no tasks assigned yet"
		tasks = []models.TaskView{}
	}
	response.JSON(c, http.StatusOK, tasks, pagination, meta)
}

// Get godoc
// @Summary Get task detail
// @Tags Tasks
// @Produce json
// @Param id path string true "Task ID"
// @Success 200 {object} response.Envelope
// @Router /tasks/{id} [get]
func (h *TaskHandler) Get(c *gin.Context) {
	task, err := h.tasks.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, task.View(), nil)
}

// Create godoc
// @Summary Create task
// @Tags Tasks
// @Accept json
// @Produce json
// @Param payload body service.CreateTaskRequest true "Task payload"
// @Success 201 {object} response.Envelope
// @Router /tasks [post]
func (h *TaskHandler) Create(c *gin.Context) {
	var req service.CreateTaskRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid task payload"))
		return
	}
	task, err := h.tasks.Create(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, task.View())
}

// Update godoc
// @Summary Update task
// @Tags Tasks
// @Accept json
// @Produce json
// @Param id path string true "Task ID"
// @Param payload body service.UpdateTaskRequest true "Task payload"
// @Success 200 {object} response.Envelope
// @Router /tasks/{id} [put]
func (h *TaskHandler) Update(c *gin.Context) {
	var req service.UpdateTaskRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid task payload"))
		return
	}
	task, err := h.tasks.Update(c.Request.Context(), c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, task.View(), nil)
}

// Patch godoc
// @Summary Partially update task
// @Tags Tasks
// @Accept json
// @Produce json
// @Param id path string true "Task ID"
// @Param payload body service.PatchTaskRequest true "Task payload"
// @Success 200 {object} response.Envelope
// @Router /tasks/{id} [patch]
func (h *TaskHandler) Patch(c *gin.Context) {
	var req service.PatchTaskRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid task payload"))
		return
	}
	task, err := h.tasks.Patch(c.Request.Context(), c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, task.View(), nil)
}

// Delete godoc
// @Summary Soft-delete task
// @Tags Tasks
// @Produce json
// @Param id path string true "Task ID"
// @Success 200 {object} response.Envelope
// @Router /tasks/{id} [delete]
func (h *TaskHandler) Delete(c *gin.Context) {
	if err := h.tasks.Delete(c.Request.Context(), c.Param("id")); err != nil {
		response.Error(c, err)
		return
	}
	response.Message(c, http.StatusOK, "task deleted")
}

// Export godoc
// @Summary Export the task board
// @Tags Tasks
// @Produce text/csv
// @Produce application/pdf
// @Param format query string false "Export format (csv or pdf)"
// @Success 200 {file} file
// @Router /tasks/export [get]
func (h *TaskHandler) Export(c *gin.Context) {
	if !h.exports.Enabled() {
		response.Error(c, appErrors.Clone(appErrors.ErrNotFound, "exports are disabled"))
		return
	}
	format, err := export.ParseFormat(c.DefaultQuery("format", "csv"))
	if err != nil {
		response.Error(c, appErrors.Validation(appErrors.FieldError{Field: "format", Message: "must be csv or pdf"}))
		return
	}

	payload, token, err := h.exports.Tasks(c.Request.Context(), taskFilterFromQuery(c), format)
	if err != nil {
		response.Error(c, err)
		return
	}

	if token != "" {
		c.Header("X-Download-Token", token)
	}
	filename := fmt.Sprintf("tasks_%s.%s", time.Now().UTC().Format("20060102_150405"), format)
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
	c.Data(http.StatusOK, format.ContentType(), payload)
}

// Download godoc
// @Summary Download a previously generated export
// @Tags Tasks
// @Produce text/csv
// @Produce application/pdf
// @Param token query string true "Signed download token"
// @Success 200 {file} file
// @Router /tasks/export/download [get]
func (h *TaskHandler) Download(c *gin.Context) {
	token := c.Query("token")
	if token == "" {
		response.Error(c, appErrors.Validation(appErrors.FieldError{Field: "token", Message: "is required"}))
		return
	}
	path, format, err := h.exports.Download(token)
	if err != nil {
		response.Error(c, err)
		return
	}
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filepath.Base(path)))
	c.Header("Content-Type", format.ContentType())
	c.File(path)
}
