package service

import (
	"context"
	"database/sql"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/jpmendieta/taskflow-api/internal/models"
	appErrors "github.com/jpmendieta/taskflow-api/pkg/errors"
)

const ownerID = "1c0b5f0e-99aa-4a46-8eb9-53b2a0f8f3a1"

type mockTaskRepo struct {
	items         map[string]*models.TaskDetail
	listResult    []models.TaskDetail
	listTotal     int
	statusUpdates map[string]models.TaskStatus
}

func (m *mockTaskRepo) List(ctx context.Context, filter models.TaskFilter) ([]models.TaskDetail, int, error) {
	return m.listResult, m.listTotal, nil
}

func (m *mockTaskRepo) ListAll(ctx context.Context, filter models.TaskFilter) ([]models.TaskDetail, error) {
	return m.listResult, nil
}

func (m *mockTaskRepo) FindByID(ctx context.Context, id string) (*models.TaskDetail, error) {
	if task, ok := m.items[id]; ok {
		cp := *task
		return &cp, nil
	}
	return nil, sql.ErrNoRows
}

func (m *mockTaskRepo) FindReusableByTitle(ctx context.Context, title string) (*models.TaskDetail, error) {
	for _, task := range m.items {
		if strings.EqualFold(task.Title, title) && task.Status.Reusable() {
			cp := *task
			return &cp, nil
		}
	}
	return nil, sql.ErrNoRows
}

func (m *mockTaskRepo) Create(ctx context.Context, task *models.Task) error {
	if m.items == nil {
		m.items = make(map[string]*models.TaskDetail)
	}
	if task.ID == "" {
		task.ID = "generated"
	}
	now := time.Now()
	task.CreatedAt = now
	task.UpdatedAt = now
	m.items[task.ID] = &models.TaskDetail{Task: *task, OwnerName: "Juan Pablo", OwnerLastName: "Mendieta", OwnerEmail: "juan@example.com"}
	return nil
}

func (m *mockTaskRepo) Update(ctx context.Context, task *models.Task) error {
	if m.items == nil {
		m.items = make(map[string]*models.TaskDetail)
	}
	existing, ok := m.items[task.ID]
	if !ok {
		existing = &models.TaskDetail{}
	}
	existing.Task = *task
	m.items[task.ID] = existing
	return nil
}

func (m *mockTaskRepo) UpdateStatus(ctx context.Context, id string, status models.TaskStatus) error {
	if m.statusUpdates == nil {
		m.statusUpdates = make(map[string]models.TaskStatus)
	}
	m.statusUpdates[id] = status
	if task, ok := m.items[id]; ok {
		task.Status = status
	}
	return nil
}

type recordedNotification struct {
	event NotificationEvent
	task  models.Task
	owner models.User
}

type mockNotifier struct {
	sent []recordedNotification
}

func (m *mockNotifier) Notify(event NotificationEvent, task models.Task, owner models.User) {
	m.sent = append(m.sent, recordedNotification{event: event, task: task, owner: owner})
}

func activeOwnerRepo() *mockUserRepo {
	return &mockUserRepo{
		items: map[string]*models.User{
			ownerID: {ID: ownerID, Name: "Juan Pablo", LastName: "Mendieta", Email: "juan@example.com", Active: true},
		},
	}
}

func newTaskService(repo *mockTaskRepo, users *mockUserRepo, notifier *mockNotifier) *TaskService {
	if users == nil {
		users = activeOwnerRepo()
	}
	return NewTaskService(repo, users, notifier, nil, NewValidator(), zap.NewNop())
}

func validCreateTask() CreateTaskRequest {
	return CreateTaskRequest{
		Title:       "clean lab",
		Description: "wipe the benches",
		UserID:      ownerID,
		Time:        "10:00",
	}
}

func openTask(id, title string, status models.TaskStatus) *models.TaskDetail {
	return &models.TaskDetail{
		Task:          models.Task{ID: id, Title: title, UserID: ownerID, Time: "10:00", Status: status},
		OwnerName:     "Juan Pablo",
		OwnerLastName: "Mendieta",
		OwnerEmail:    "juan@example.com",
	}
}

func TestTaskServiceCreateNotifiesAssignment(t *testing.T) {
	repo := &mockTaskRepo{}
	notifier := &mockNotifier{}
	service := newTaskService(repo, nil, notifier)

	task, err := service.Create(context.Background(), validCreateTask())
	require.NoError(t, err)
	assert.Equal(t, "Clean Lab", task.Title)
	assert.Equal(t, models.TaskStatusCreated, task.Status)

	require.Len(t, notifier.sent, 1)
	assert.Equal(t, EventTaskAssigned, notifier.sent[0].event)
	assert.Equal(t, "juan@example.com", notifier.sent[0].owner.Email)
}

func TestTaskServiceCreateReusesOpenTitle(t *testing.T) {
	repo := &mockTaskRepo{
		items: map[string]*models.TaskDetail{
			"k1": openTask("k1", "Clean Lab", models.TaskStatusInProgress),
		},
	}
	notifier := &mockNotifier{}
	service := newTaskService(repo, nil, notifier)

	req := validCreateTask()
	req.Status = "done"
	task, err := service.Create(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, "k1", task.ID)
	assert.Equal(t, models.TaskStatusDone, task.Status)
	assert.Equal(t, models.TaskStatusDone, repo.statusUpdates["k1"])
	assert.Len(t, repo.items, 1)
	assert.Empty(t, notifier.sent)
}

func TestTaskServiceCreateDoneTitleNotReused(t *testing.T) {
	repo := &mockTaskRepo{
		items: map[string]*models.TaskDetail{
			"k1": openTask("k1", "Clean Lab", models.TaskStatusDone),
		},
	}
	notifier := &mockNotifier{}
	service := newTaskService(repo, nil, notifier)

	task, err := service.Create(context.Background(), validCreateTask())
	require.NoError(t, err)
	assert.NotEqual(t, "k1", task.ID)
	assert.Len(t, repo.items, 2)
	require.Len(t, notifier.sent, 1)
	assert.Equal(t, EventTaskAssigned, notifier.sent[0].event)
}

func TestTaskServiceCreateUnknownOwner(t *testing.T) {
	service := newTaskService(&mockTaskRepo{}, &mockUserRepo{}, &mockNotifier{})

	_, err := service.Create(context.Background(), validCreateTask())
	require.Error(t, err)
	appErr := appErrors.FromError(err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErr.Code)
	require.Len(t, appErr.Fields, 1)
	assert.Equal(t, "user_id", appErr.Fields[0].Field)
}

func TestTaskServiceCreateInactiveOwner(t *testing.T) {
	users := &mockUserRepo{
		items: map[string]*models.User{
			ownerID: {ID: ownerID, Name: "Juan Pablo", Active: false},
		},
	}
	service := newTaskService(&mockTaskRepo{}, users, &mockNotifier{})

	_, err := service.Create(context.Background(), validCreateTask())
	require.Error(t, err)
	appErr := appErrors.FromError(err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErr.Code)
	require.Len(t, appErr.Fields, 1)
	assert.Equal(t, "user_id", appErr.Fields[0].Field)
	assert.Equal(t, "user is not active", appErr.Fields[0].Message)
}

func TestTaskServiceCreateTimeOutsideWindow(t *testing.T) {
	service := newTaskService(&mockTaskRepo{}, nil, &mockNotifier{})

	req := validCreateTask()
	req.Time = "19:30"
	_, err := service.Create(context.Background(), req)
	require.Error(t, err)
	appErr := appErrors.FromError(err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErr.Code)
	require.Len(t, appErr.Fields, 1)
	assert.Equal(t, "time", appErr.Fields[0].Field)
}

func TestTaskServiceUpdateNotifies(t *testing.T) {
	repo := &mockTaskRepo{
		items: map[string]*models.TaskDetail{
			"k1": openTask("k1", "Clean Lab", models.TaskStatusCreated),
		},
	}
	notifier := &mockNotifier{}
	service := newTaskService(repo, nil, notifier)

	task, err := service.Update(context.Background(), "k1", UpdateTaskRequest{
		Title:       "clean lab thoroughly",
		Description: "benches and floors",
		UserID:      ownerID,
		Time:        "11:00",
		Status:      "in_progress",
	})
	require.NoError(t, err)
	assert.Equal(t, "Clean Lab Thoroughly", task.Title)
	assert.Equal(t, models.TaskStatusInProgress, task.Status)

	require.Len(t, notifier.sent, 1)
	assert.Equal(t, EventTaskUpdated, notifier.sent[0].event)
}

func TestTaskServiceUpdateDeletedTask(t *testing.T) {
	repo := &mockTaskRepo{
		items: map[string]*models.TaskDetail{
			"k1": openTask("k1", "Clean Lab", models.TaskStatusDeleted),
		},
	}
	service := newTaskService(repo, nil, &mockNotifier{})

	_, err := service.Update(context.Background(), "k1", UpdateTaskRequest{
		Title:  "clean lab",
		UserID: ownerID,
		Time:   "10:00",
		Status: "created",
	})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrState.Code, appErrors.FromError(err).Code)
}

func TestTaskServicePatchStatusDoneNotifiesCompletion(t *testing.T) {
	repo := &mockTaskRepo{
		items: map[string]*models.TaskDetail{
			"k1": openTask("k1", "Clean Lab", models.TaskStatusInProgress),
		},
	}
	notifier := &mockNotifier{}
	service := newTaskService(repo, nil, notifier)

	done := "done"
	task, err := service.Patch(context.Background(), "k1", PatchTaskRequest{Status: &done})
	require.NoError(t, err)
	assert.Equal(t, models.TaskStatusDone, task.Status)

	require.Len(t, notifier.sent, 1)
	assert.Equal(t, EventTaskCompleted, notifier.sent[0].event)
}

func TestTaskServicePatchStatusCreatedNotifies(t *testing.T) {
	repo := &mockTaskRepo{
		items: map[string]*models.TaskDetail{
			"k1": openTask("k1", "Clean Lab", models.TaskStatusInProgress),
		},
	}
	notifier := &mockNotifier{}
	service := newTaskService(repo, nil, notifier)

	created := "created"
	_, err := service.Patch(context.Background(), "k1", PatchTaskRequest{Status: &created})
	require.NoError(t, err)
	require.Len(t, notifier.sent, 1)
	assert.Equal(t, EventTaskCreated, notifier.sent[0].event)
}

func TestTaskServicePatchSameStatusStaysQuiet(t *testing.T) {
	repo := &mockTaskRepo{
		items: map[string]*models.TaskDetail{
			"k1": openTask("k1", "Clean Lab", models.TaskStatusInProgress),
		},
	}
	notifier := &mockNotifier{}
	service := newTaskService(repo, nil, notifier)

	inProgress := "in_progress"
	_, err := service.Patch(context.Background(), "k1", PatchTaskRequest{Status: &inProgress})
	require.NoError(t, err)
	assert.Empty(t, notifier.sent)
}

func TestTaskServicePatchTitleOnly(t *testing.T) {
	repo := &mockTaskRepo{
		items: map[string]*models.TaskDetail{
			"k1": openTask("k1", "Clean Lab", models.TaskStatusCreated),
		},
	}
	notifier := &mockNotifier{}
	service := newTaskService(repo, nil, notifier)

	title := "water the plants"
	task, err := service.Patch(context.Background(), "k1", PatchTaskRequest{Title: &title})
	require.NoError(t, err)
	assert.Equal(t, "Water The Plants", task.Title)
	assert.Empty(t, notifier.sent)
}

func TestTaskServiceDeleteSoftDeletesAndNotifies(t *testing.T) {
	repo := &mockTaskRepo{
		items: map[string]*models.TaskDetail{
			"k1": openTask("k1", "Clean Lab", models.TaskStatusCreated),
		},
	}
	notifier := &mockNotifier{}
	service := newTaskService(repo, nil, notifier)

	require.NoError(t, service.Delete(context.Background(), "k1"))
	assert.Equal(t, models.TaskStatusDeleted, repo.statusUpdates["k1"])

	require.Len(t, notifier.sent, 1)
	assert.Equal(t, EventTaskDeleted, notifier.sent[0].event)
	assert.Equal(t, models.TaskStatusDeleted, notifier.sent[0].task.Status)
}

func TestTaskServiceDeleteAlreadyDeleted(t *testing.T) {
	repo := &mockTaskRepo{
		items: map[string]*models.TaskDetail{
			"k1": openTask("k1", "Clean Lab", models.TaskStatusDeleted),
		},
	}
	service := newTaskService(repo, nil, &mockNotifier{})

	err := service.Delete(context.Background(), "k1")
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrState.Code, appErrors.FromError(err).Code)
}

func TestTaskServiceDeleteUnknown(t *testing.T) {
	service := newTaskService(&mockTaskRepo{}, nil, &mockNotifier{})

	err := service.Delete(context.Background(), "missing")
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrNotFound.Code, appErrors.FromError(err).Code)
}

func TestTaskServiceListBuildsViews(t *testing.T) {
	repo := &mockTaskRepo{
		listResult: []models.TaskDetail{*openTask("k1", "Clean Lab", models.TaskStatusInProgress)},
		listTotal:  1,
	}
	service := newTaskService(repo, nil, &mockNotifier{})

	views, pagination, cacheHit, err := service.List(context.Background(), models.TaskFilter{Page: 1, PageSize: 20})
	require.NoError(t, err)
	require.Len(t, views, 1)
	assert.False(t, cacheHit)
	assert.Equal(t, "In Progress", views[0].StatusLabel)
	assert.Equal(t, "Juan Mendieta", views[0].User.ShortName)
	require.NotNil(t, pagination)
	assert.Equal(t, 1, pagination.TotalCount)
}
