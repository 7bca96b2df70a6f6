package repository

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/jpmendieta/taskflow-api/internal/models"
)

const taskColumns = "t.id, t.title, t.description, t.user_id, t.time, t.status, t.created_at, t.updated_at"
const taskOwnerColumns = taskColumns + ", u.name AS owner_name, u.last_name AS owner_last_name, u.email AS owner_email"

// TaskRepository manages persistence for tasks.
type TaskRepository struct {
	db *sqlx.DB
}

// NewTaskRepository constructs a TaskRepository.
func NewTaskRepository(db *sqlx.DB) *TaskRepository {
	return &TaskRepository{db: db}
}

// taskFilterClause builds the shared FROM/WHERE fragment and its
// positional arguments for a task selection. Unless a status filter is
// given, only non-terminal tasks are selected.
func taskFilterClause(filter models.TaskFilter) (string, []interface{}) {
	base := "FROM tasks t JOIN users u ON u.id = t.user_id WHERE 1=1"
	var conditions []string
	var args []interface{}

	if filter.Status != nil {
		conditions = append(conditions, fmt.Sprintf("t.status = $%d", len(args)+1))
		args = append(args, *filter.Status)
	} else {
		conditions = append(conditions, fmt.Sprintf("t.status IN ($%d, $%d)", len(args)+1, len(args)+2))
		args = append(args, models.TaskStatusCreated, models.TaskStatusInProgress)
	}
	if filter.UserID != "" {
		conditions = append(conditions, fmt.Sprintf("t.user_id = $%d", len(args)+1))
		args = append(args, filter.UserID)
	}
	if filter.Search != "" {
		search := "%" + strings.ToLower(filter.Search) + "%"
		conditions = append(conditions, fmt.Sprintf("(LOWER(t.title) LIKE $%d OR LOWER(t.description) LIKE $%d)", len(args)+1, len(args)+1))
		args = append(args, search)
	}

	if len(conditions) > 0 {
		base += " AND " + strings.Join(conditions, " AND ")
	}
	return base, args
}

func taskSortClause(filter models.TaskFilter) string {
	column := sortColumn(filter.SortBy, map[string]string{
		"title":      "t.title",
		"time":       "t.time",
		"status":     "t.status",
		"created_at": "t.created_at",
		"updated_at": "t.updated_at",
	})
	if column == "created_at" {
		column = "t.created_at"
	}
	return fmt.Sprintf("ORDER BY %s %s", column, sortOrder(filter.SortOrder))
}

// List returns one page of tasks joined with their owners, along with
// the total count for the selection.
func (r *TaskRepository) List(ctx context.Context, filter models.TaskFilter) ([]models.TaskDetail, int, error) {
	base, args := taskFilterClause(filter)
	limit, offset := pageWindow(filter.Page, filter.PageSize)

	query := fmt.Sprintf("SELECT %s %s %s LIMIT %d OFFSET %d", taskOwnerColumns, base, taskSortClause(filter), limit, offset)
	var tasks []models.TaskDetail
	if err := r.db.SelectContext(ctx, &tasks, query, args...); err != nil {
		return nil, 0, fmt.Errorf("list tasks: %w", err)
	}

	countQuery := fmt.Sprintf("SELECT COUNT(*) %s", base)
	var total int
	if err := r.db.GetContext(ctx, &total, countQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("count tasks: %w", err)
	}

	return tasks, total, nil
}

// ListAll returns every task matching the filter without pagination,
// for export rendering.
func (r *TaskRepository) ListAll(ctx context.Context, filter models.TaskFilter) ([]models.TaskDetail, error) {
	base, args := taskFilterClause(filter)

	query := fmt.Sprintf("SELECT %s %s %s", taskOwnerColumns, base, taskSortClause(filter))
	var tasks []models.TaskDetail
	if err := r.db.SelectContext(ctx, &tasks, query, args...); err != nil {
		return nil, fmt.Errorf("list all tasks: %w", err)
	}
	return tasks, nil
}

// FindByID fetches a task with owner context by ID.
func (r *TaskRepository) FindByID(ctx context.Context, id string) (*models.TaskDetail, error) {
	query := fmt.Sprintf("SELECT %s FROM tasks t JOIN users u ON u.id = t.user_id WHERE t.id = $1", taskOwnerColumns)
	var task models.TaskDetail
	if err := r.db.GetContext(ctx, &task, query, id); err != nil {
		return nil, err
	}
	return &task, nil
}

// FindReusableByTitle fetches a task with the same title still in a
// non-terminal state, the candidate for reuse during create.
func (r *TaskRepository) FindReusableByTitle(ctx context.Context, title string) (*models.TaskDetail, error) {
	query := fmt.Sprintf("SELECT %s FROM tasks t JOIN users u ON u.id = t.user_id WHERE LOWER(t.title) = LOWER($1) AND t.status IN ($2, $3) LIMIT 1", taskOwnerColumns)
	var task models.TaskDetail
	if err := r.db.GetContext(ctx, &task, query, title, models.TaskStatusCreated, models.TaskStatusInProgress); err != nil {
		return nil, err
	}
	return &task, nil
}

// CountOpenByUser returns how many non-terminal tasks reference the user.
func (r *TaskRepository) CountOpenByUser(ctx context.Context, userID string) (int, error) {
	const query = `SELECT COUNT(*) FROM tasks WHERE user_id = $1 AND status IN ($2, $3)`
	var count int
	if err := r.db.GetContext(ctx, &count, query, userID, models.TaskStatusCreated, models.TaskStatusInProgress); err != nil {
		return 0, fmt.Errorf("count open tasks: %w", err)
	}
	return count, nil
}

// Create inserts a new task record.
func (r *TaskRepository) Create(ctx context.Context, task *models.Task) error {
	if task.ID == "" {
		task.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if task.CreatedAt.IsZero() {
		task.CreatedAt = now
	}
	task.UpdatedAt = now

	const query = `INSERT INTO tasks (id, title, description, user_id, time, status, created_at, updated_at)
		VALUES (:id, :title, :description, :user_id, :time, :status, :created_at, :updated_at)`
	if _, err := r.db.NamedExecContext(ctx, query, task); err != nil {
		return fmt.Errorf("create task: %w", err)
	}
	return nil
}

// Update modifies an existing task record.
func (r *TaskRepository) Update(ctx context.Context, task *models.Task) error {
	task.UpdatedAt = time.Now().UTC()
	const query = `UPDATE tasks SET title = :title, description = :description, user_id = :user_id, time = :time, status = :status, updated_at = :updated_at WHERE id = :id`
	if _, err := r.db.NamedExecContext(ctx, query, task); err != nil {
		return fmt.Errorf("update task: %w", err)
	}
	return nil
}

// UpdateStatus changes just the lifecycle state of a task.
func (r *TaskRepository) UpdateStatus(ctx context.Context, id string, status models.TaskStatus) error {
	const query = `UPDATE tasks SET status = $2, updated_at = $3 WHERE id = $1`
	if _, err := r.db.ExecContext(ctx, query, id, status, time.Now().UTC()); err != nil {
		return fmt.Errorf("update task status: %w", err)
	}
	return nil
}
