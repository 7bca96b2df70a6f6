package service

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/jpmendieta/taskflow-api/internal/models"
	appErrors "github.com/jpmendieta/taskflow-api/pkg/errors"
)

type taskRepository interface {
	List(ctx context.Context, filter models.TaskFilter) ([]models.TaskDetail, int, error)
	ListAll(ctx context.Context, filter models.TaskFilter) ([]models.TaskDetail, error)
	FindByID(ctx context.Context, id string) (*models.TaskDetail, error)
	FindReusableByTitle(ctx context.Context, title string) (*models.TaskDetail, error)
	Create(ctx context.Context, task *models.Task) error
	Update(ctx context.Context, task *models.Task) error
	UpdateStatus(ctx context.Context, id string, status models.TaskStatus) error
}

type ownerFinder interface {
	FindByID(ctx context.Context, id string) (*models.User, error)
}

type taskNotifier interface {
	Notify(event NotificationEvent, task models.Task, owner models.User)
}

// CreateTaskRequest represents payload for creating tasks.
type CreateTaskRequest struct {
	Title       string `json:"title" validate:"required"`
	Description string `json:"description"`
	UserID      string `json:"user_id" validate:"required,uuid4"`
	Time        string `json:"time" validate:"required,task_time"`
	Status      string `json:"status" validate:"omitempty,task_status"`
}

// UpdateTaskRequest represents payload for full task updates.
type UpdateTaskRequest struct {
	Title       string `json:"title" validate:"required"`
	Description string `json:"description"`
	UserID      string `json:"user_id" validate:"required,uuid4"`
	Time        string `json:"time" validate:"required,task_time"`
	Status      string `json:"status" validate:"required,task_status"`
}

// PatchTaskRequest represents payload for partial task updates.
type PatchTaskRequest struct {
	Title       *string `json:"title" validate:"omitempty,min=1"`
	Description *string `json:"description"`
	UserID      *string `json:"user_id" validate:"omitempty,uuid4"`
	Time        *string `json:"time" validate:"omitempty,task_time"`
	Status      *string `json:"status" validate:"omitempty,task_status"`
}

type cachedTaskList struct {
	Tasks      []models.TaskView  `json:"tasks"`
	Pagination *models.Pagination `json:"pagination"`
}

// TaskService orchestrates task operations and their notifications.
type TaskService struct {
	repo      taskRepository
	users     ownerFinder
	notifier  taskNotifier
	cache     *CacheService
	validator *validator.Validate
	logger    *zap.Logger
}

// NewTaskService constructs a TaskService.
func NewTaskService(repo taskRepository, users ownerFinder, notifier taskNotifier, cache *CacheService, validate *validator.Validate, logger *zap.Logger) *TaskService {
	if validate == nil {
		validate = NewValidator()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &TaskService{repo: repo, users: users, notifier: notifier, cache: cache, validator: validate, logger: logger}
}

// List returns task views plus pagination data, served from cache when
// possible. Without a status filter only non-terminal tasks appear. The
// boolean reports whether the cache answered.
func (s *TaskService) List(ctx context.Context, filter models.TaskFilter) ([]models.TaskView, *models.Pagination, bool, error) {
	key := taskListCacheKey(filter)
	if s.cache.Enabled() {
		var cached cachedTaskList
		if hit, _ := s.cache.Get(ctx, key, &cached); hit {
			return cached.Tasks, cached.Pagination, true, nil
		}
	}

	tasks, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, nil, false, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list tasks")
	}
	views := make([]models.TaskView, 0, len(tasks))
	for _, t := range tasks {
		views = append(views, t.View())
	}
	pagination := paginationFor(filter.Page, filter.PageSize, total)

	if s.cache.Enabled() {
		_ = s.cache.Set(ctx, key, cachedTaskList{Tasks: views, Pagination: pagination}, 0)
	}
	return views, pagination, false, nil
}

// Get returns a task by id.
func (s *TaskService) Get(ctx context.Context, id string) (*models.TaskDetail, error) {
	task, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "task not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load task")
	}
	return task, nil
}

// Create registers a new task. When a task with the same title is still
// open, that record is reused: its status moves to the requested one and
// no duplicate row or assignment mail is produced.
func (s *TaskService) Create(ctx context.Context, req CreateTaskRequest) (*models.TaskDetail, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, validationError(err)
	}

	owner, err := s.resolveOwner(ctx, req.UserID)
	if err != nil {
		return nil, err
	}

	title := titleCase(req.Title)
	status := models.TaskStatusCreated
	if req.Status != "" {
		status = models.TaskStatus(req.Status)
	}

	existing, err := s.repo.FindReusableByTitle(ctx, title)
	switch {
	case err == nil:
		if existing.Status != status {
			if err := s.repo.UpdateStatus(ctx, existing.ID, status); err != nil {
				return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update task status")
			}
			existing.Status = status
		}
		s.invalidateTaskCaches(ctx)
		s.logger.Info("reused open task instead of creating duplicate",
			zap.String("task_id", existing.ID), zap.String("title", title))
		return existing, nil
	case err != sql.ErrNoRows:
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to look up task by title")
	}

	task := &models.Task{
		Title:       title,
		Description: req.Description,
		UserID:      owner.ID,
		Time:        req.Time,
		Status:      status,
	}
	if err := s.repo.Create(ctx, task); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create task")
	}
	s.invalidateTaskCaches(ctx)
	s.notifier.Notify(EventTaskAssigned, *task, *owner)

	return s.Get(ctx, task.ID)
}

// Update overwrites every field of a non-deleted task.
func (s *TaskService) Update(ctx context.Context, id string, req UpdateTaskRequest) (*models.TaskDetail, error) {
	detail, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if detail.Status == models.TaskStatusDeleted {
		return nil, appErrors.Clone(appErrors.ErrState, "task must be active to modify")
	}
	if err := s.validator.Struct(req); err != nil {
		return nil, validationError(err)
	}

	owner, err := s.resolveOwner(ctx, req.UserID)
	if err != nil {
		return nil, err
	}

	task := detail.Task
	task.Title = titleCase(req.Title)
	task.Description = req.Description
	task.UserID = owner.ID
	task.Time = req.Time
	task.Status = models.TaskStatus(req.Status)

	if err := s.repo.Update(ctx, &task); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update task")
	}
	s.invalidateTaskCaches(ctx)
	s.notifier.Notify(EventTaskUpdated, task, *owner)

	return s.Get(ctx, id)
}

// Patch applies only the provided fields to a task. Status changes to
// created or done trigger their lifecycle mails.
func (s *TaskService) Patch(ctx context.Context, id string, req PatchTaskRequest) (*models.TaskDetail, error) {
	detail, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := s.validator.Struct(req); err != nil {
		return nil, validationError(err)
	}

	task := detail.Task
	owner := models.User{ID: task.UserID, Name: detail.OwnerName, LastName: detail.OwnerLastName, Email: detail.OwnerEmail}

	if req.Title != nil {
		task.Title = titleCase(*req.Title)
	}
	if req.Description != nil {
		task.Description = *req.Description
	}
	if req.UserID != nil && *req.UserID != task.UserID {
		resolved, err := s.resolveOwner(ctx, *req.UserID)
		if err != nil {
			return nil, err
		}
		task.UserID = resolved.ID
		owner = *resolved
	}
	if req.Time != nil {
		task.Time = *req.Time
	}

	statusChanged := false
	if req.Status != nil {
		next := models.TaskStatus(*req.Status)
		statusChanged = next != task.Status
		task.Status = next
	}

	if err := s.repo.Update(ctx, &task); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update task")
	}
	s.invalidateTaskCaches(ctx)

	if statusChanged {
		switch task.Status {
		case models.TaskStatusCreated:
			s.notifier.Notify(EventTaskCreated, task, owner)
		case models.TaskStatusDone:
			s.notifier.Notify(EventTaskCompleted, task, owner)
		}
	}

	return s.Get(ctx, id)
}

// Delete soft-deletes a task and mails the owner.
func (s *TaskService) Delete(ctx context.Context, id string) error {
	detail, err := s.Get(ctx, id)
	if err != nil {
		return err
	}
	if detail.Status == models.TaskStatusDeleted {
		return appErrors.Clone(appErrors.ErrState, "task does not exist")
	}

	if err := s.repo.UpdateStatus(ctx, id, models.TaskStatusDeleted); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to delete task")
	}
	s.invalidateTaskCaches(ctx)

	task := detail.Task
	task.Status = models.TaskStatusDeleted
	owner := models.User{ID: task.UserID, Name: detail.OwnerName, LastName: detail.OwnerLastName, Email: detail.OwnerEmail}
	s.notifier.Notify(EventTaskDeleted, task, owner)
	return nil
}

// resolveOwner loads the assignee and rejects missing or inactive ones
// as field-scoped validation failures.
func (s *TaskService) resolveOwner(ctx context.Context, userID string) (*models.User, error) {
	owner, err := s.users.FindByID(ctx, userID)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, fieldError("user_id", "user not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load user")
	}
	if !owner.Active {
		return nil, fieldError("user_id", "user is not active")
	}
	return owner, nil
}

func (s *TaskService) invalidateTaskCaches(ctx context.Context) {
	_ = s.cache.Invalidate(ctx, "tasks:*")
}

func taskListCacheKey(filter models.TaskFilter) string {
	status := "open"
	if filter.Status != nil {
		status = string(*filter.Status)
	}
	return fmt.Sprintf("tasks:list:%s:%s:%s:%s:%s:%d:%d", status, filter.UserID, filter.Search, filter.SortBy, filter.SortOrder, filter.Page, filter.PageSize)
}
