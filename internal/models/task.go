package models

import "time"

// TaskStatus is the lifecycle state of a task. Deleted is the soft-delete
// marker: deleted tasks stay in the store but are invisible to listings.
type TaskStatus string

const (
	TaskStatusCreated    TaskStatus = "created"
	TaskStatusInProgress TaskStatus = "in_progress"
	TaskStatusDone       TaskStatus = "done"
	TaskStatusDeleted    TaskStatus = "deleted"
)

// Assignable reports whether the status may be set through the API.
// Deleted is reserved for the delete operation.
func (s TaskStatus) Assignable() bool {
	switch s {
	case TaskStatusCreated, TaskStatusInProgress, TaskStatusDone:
		return true
	}
	return false
}

// Reusable reports whether a task in this status is matched by the
// create-by-title dedup rule. Done tasks are never silently reused.
func (s TaskStatus) Reusable() bool {
	return s == TaskStatusCreated || s == TaskStatusInProgress
}

// Display returns the human-readable status name.
func (s TaskStatus) Display() string {
	switch s {
	case TaskStatusCreated:
		return "Created"
	case TaskStatusInProgress:
		return "In Progress"
	case TaskStatusDone:
		return "Done"
	case TaskStatusDeleted:
		return "Deleted"
	}
	return string(s)
}

// Task represents an assignment stored in the tasks table.
type Task struct {
	ID          string     `db:"id" json:"id"`
	Title       string     `db:"title" json:"title"`
	Description string     `db:"description" json:"description"`
	UserID      string     `db:"user_id" json:"user_id"`
	Time        string     `db:"time" json:"time"`
	Status      TaskStatus `db:"status" json:"status"`
	CreatedAt   time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt   time.Time  `db:"updated_at" json:"updated_at"`
}

// TaskOwner is the nested owner summary exposed by task serializations
// instead of the raw foreign key.
type TaskOwner struct {
	ID        string `json:"id"`
	ShortName string `json:"short_name"`
}

// TaskDetail joins a task with its owner for listing and responses.
type TaskDetail struct {
	Task
	OwnerName     string `db:"owner_name" json:"-"`
	OwnerLastName string `db:"owner_last_name" json:"-"`
	OwnerEmail    string `db:"owner_email" json:"-"`
}

// Owner builds the nested owner summary.
func (t TaskDetail) Owner() TaskOwner {
	u := User{ID: t.UserID, Name: t.OwnerName, LastName: t.OwnerLastName}
	return TaskOwner{ID: t.UserID, ShortName: u.ShortName()}
}

// TaskView is the wire shape of a task.
type TaskView struct {
	ID          string     `json:"id"`
	Title       string     `json:"title"`
	Description string     `json:"description,omitempty"`
	Time        string     `json:"time"`
	Status      TaskStatus `json:"status"`
	StatusLabel string     `json:"status_label"`
	User        TaskOwner  `json:"user"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
}

// View renders the task detail into its wire shape.
func (t TaskDetail) View() TaskView {
	return TaskView{
		ID:          t.ID,
		Title:       t.Title,
		Description: t.Description,
		Time:        t.Time,
		Status:      t.Status,
		StatusLabel: t.Status.Display(),
		User:        t.Owner(),
		CreatedAt:   t.CreatedAt,
		UpdatedAt:   t.UpdatedAt,
	}
}

// TaskFilter captures filtering criteria for listing tasks.
type TaskFilter struct {
	Search    string
	Status    *TaskStatus
	UserID    string
	Page      int
	PageSize  int
	SortBy    string
	SortOrder string
}
