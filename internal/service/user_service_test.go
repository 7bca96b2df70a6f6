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

type mockUserRepo struct {
	items       map[string]*models.User
	emailIndex  map[string]string
	phoneIndex  map[string]string
	listResult  []models.User
	listTotal   int
	listErr     error
	reactivated []string
	deactivated []string
}

func (m *mockUserRepo) List(ctx context.Context, filter models.UserFilter) ([]models.User, int, error) {
	if m.listErr != nil {
		return nil, 0, m.listErr
	}
	return m.listResult, m.listTotal, nil
}

func (m *mockUserRepo) FindByID(ctx context.Context, id string) (*models.User, error) {
	if user, ok := m.items[id]; ok {
		cp := *user
		return &cp, nil
	}
	return nil, sql.ErrNoRows
}

func (m *mockUserRepo) FindInactiveByName(ctx context.Context, name string) (*models.User, error) {
	for _, user := range m.items {
		if strings.EqualFold(user.Name, name) && !user.Active {
			cp := *user
			return &cp, nil
		}
	}
	return nil, sql.ErrNoRows
}

func (m *mockUserRepo) ExistsByEmail(ctx context.Context, email, excludeID string) (bool, error) {
	if owner, ok := m.emailIndex[email]; ok {
		if excludeID == "" || owner != excludeID {
			return true, nil
		}
	}
	return false, nil
}

func (m *mockUserRepo) ExistsByPhone(ctx context.Context, phone, excludeID string) (bool, error) {
	if owner, ok := m.phoneIndex[phone]; ok {
		if excludeID == "" || owner != excludeID {
			return true, nil
		}
	}
	return false, nil
}

func (m *mockUserRepo) Create(ctx context.Context, user *models.User) error {
	if m.items == nil {
		m.items = make(map[string]*models.User)
	}
	if user.ID == "" {
		user.ID = "generated"
	}
	now := time.Now()
	user.CreatedAt = now
	user.UpdatedAt = now
	cp := *user
	m.items[user.ID] = &cp
	return nil
}

func (m *mockUserRepo) Update(ctx context.Context, user *models.User) error {
	if m.items == nil {
		m.items = make(map[string]*models.User)
	}
	cp := *user
	m.items[user.ID] = &cp
	return nil
}

func (m *mockUserRepo) Reactivate(ctx context.Context, id string) error {
	m.reactivated = append(m.reactivated, id)
	if u, ok := m.items[id]; ok {
		u.Active = true
	}
	return nil
}

func (m *mockUserRepo) Deactivate(ctx context.Context, id string) error {
	m.deactivated = append(m.deactivated, id)
	if u, ok := m.items[id]; ok {
		u.Active = false
	}
	return nil
}

type mockTaskCounter struct {
	open map[string]int
}

func (m *mockTaskCounter) CountOpenByUser(ctx context.Context, userID string) (int, error) {
	return m.open[userID], nil
}

func newUserService(repo *mockUserRepo, counter *mockTaskCounter) *UserService {
	if counter == nil {
		counter = &mockTaskCounter{}
	}
	return NewUserService(repo, counter, nil, NewValidator(), zap.NewNop())
}

func validCreateUser() CreateUserRequest {
	return CreateUserRequest{
		Name:        "juan pablo",
		LastName:    "mendieta",
		Email:       "juan@example.com",
		PhoneNumber: "311 222 3344",
	}
}

func TestUserServiceCreateNormalizesNames(t *testing.T) {
	repo := &mockUserRepo{}
	service := newUserService(repo, nil)

	user, err := service.Create(context.Background(), validCreateUser())
	require.NoError(t, err)
	assert.Equal(t, "Juan Pablo", user.Name)
	assert.Equal(t, "Mendieta", user.LastName)
	assert.True(t, user.Active)
	assert.Len(t, repo.items, 1)
}

func TestUserServiceCreateInvalidFields(t *testing.T) {
	service := newUserService(&mockUserRepo{}, nil)

	_, err := service.Create(context.Background(), CreateUserRequest{
		Name:        "juan99",
		LastName:    "mendieta",
		Email:       "not-an-email",
		PhoneNumber: "12",
	})
	require.Error(t, err)
	appErr := appErrors.FromError(err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErr.Code)
	assert.Len(t, appErr.Fields, 3)
}

func TestUserServiceCreateDuplicateEmail(t *testing.T) {
	repo := &mockUserRepo{emailIndex: map[string]string{"juan@example.com": "other"}}
	service := newUserService(repo, nil)

	_, err := service.Create(context.Background(), validCreateUser())
	require.Error(t, err)
	appErr := appErrors.FromError(err)
	assert.Equal(t, appErrors.ErrConflict.Code, appErr.Code)
	assert.Equal(t, "email already in use", appErr.Message)
}

func TestUserServiceCreateDuplicatePhone(t *testing.T) {
	repo := &mockUserRepo{phoneIndex: map[string]string{"311 222 3344": "other"}}
	service := newUserService(repo, nil)

	_, err := service.Create(context.Background(), validCreateUser())
	require.Error(t, err)
	appErr := appErrors.FromError(err)
	assert.Equal(t, appErrors.ErrConflict.Code, appErr.Code)
	assert.Equal(t, "phone number already in use", appErr.Message)
}

func TestUserServiceCreateReactivatesByName(t *testing.T) {
	repo := &mockUserRepo{
		items: map[string]*models.User{
			"u1": {ID: "u1", Name: "Juan Pablo", LastName: "Mendieta", Email: "old@example.com", Active: false},
		},
	}
	service := newUserService(repo, nil)

	user, err := service.Create(context.Background(), validCreateUser())
	require.NoError(t, err)
	assert.Equal(t, "u1", user.ID)
	assert.True(t, user.Active)
	assert.Equal(t, []string{"u1"}, repo.reactivated)
	assert.Len(t, repo.items, 1)
}

func TestUserServiceUpdateRequiresActive(t *testing.T) {
	repo := &mockUserRepo{
		items: map[string]*models.User{
			"u1": {ID: "u1", Name: "Juan Pablo", Active: false},
		},
	}
	service := newUserService(repo, nil)

	_, err := service.Update(context.Background(), "u1", UpdateUserRequest(validCreateUser()))
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrState.Code, appErrors.FromError(err).Code)
}

func TestUserServiceUpdateOverwrites(t *testing.T) {
	repo := &mockUserRepo{
		items: map[string]*models.User{
			"u1": {ID: "u1", Name: "Juan Pablo", LastName: "Mendieta", Email: "juan@example.com", PhoneNumber: "311 222 3344", Active: true},
		},
	}
	service := newUserService(repo, nil)

	updated, err := service.Update(context.Background(), "u1", UpdateUserRequest{
		Name:        "ana maria",
		LastName:    "lopez",
		Email:       "ana@example.com",
		PhoneNumber: "310 111 2233",
	})
	require.NoError(t, err)
	assert.Equal(t, "Ana Maria", updated.Name)
	assert.Equal(t, "Lopez", updated.LastName)
	assert.Equal(t, "ana@example.com", updated.Email)
}

func TestUserServiceUpdateDuplicateEmail(t *testing.T) {
	repo := &mockUserRepo{
		items: map[string]*models.User{
			"u1": {ID: "u1", Name: "Juan Pablo", LastName: "Mendieta", Email: "juan@example.com", PhoneNumber: "311 222 3344", Active: true},
		},
		emailIndex: map[string]string{"ana@example.com": "u2"},
	}
	service := newUserService(repo, nil)

	_, err := service.Update(context.Background(), "u1", UpdateUserRequest{
		Name:        "juan pablo",
		LastName:    "mendieta",
		Email:       "ana@example.com",
		PhoneNumber: "311 222 3344",
	})
	require.Error(t, err)
	appErr := appErrors.FromError(err)
	assert.Equal(t, appErrors.ErrConflict.Code, appErr.Code)
	assert.Equal(t, "email already in use", appErr.Message)
}

func TestUserServiceUpdateKeepingOwnContact(t *testing.T) {
	repo := &mockUserRepo{
		items: map[string]*models.User{
			"u1": {ID: "u1", Name: "Juan Pablo", LastName: "Mendieta", Email: "juan@example.com", PhoneNumber: "311 222 3344", Active: true},
		},
		emailIndex: map[string]string{"juan@example.com": "u1"},
		phoneIndex: map[string]string{"311 222 3344": "u1"},
	}
	service := newUserService(repo, nil)

	updated, err := service.Update(context.Background(), "u1", UpdateUserRequest{
		Name:        "pedro jose",
		LastName:    "mendieta",
		Email:       "juan@example.com",
		PhoneNumber: "311 222 3344",
	})
	require.NoError(t, err)
	assert.Equal(t, "Pedro Jose", updated.Name)
}

func TestUserServicePatchDuplicatePhone(t *testing.T) {
	repo := &mockUserRepo{
		items: map[string]*models.User{
			"u1": {ID: "u1", Name: "Juan Pablo", LastName: "Mendieta", Email: "juan@example.com", PhoneNumber: "311 222 3344", Active: true},
		},
		phoneIndex: map[string]string{"310 111 2233": "u2"},
	}
	service := newUserService(repo, nil)

	phone := "310 111 2233"
	_, err := service.Patch(context.Background(), "u1", PatchUserRequest{PhoneNumber: &phone})
	require.Error(t, err)
	appErr := appErrors.FromError(err)
	assert.Equal(t, appErrors.ErrConflict.Code, appErr.Code)
	assert.Equal(t, "phone number already in use", appErr.Message)
}

func TestUserServicePatchRejectsActiveFalse(t *testing.T) {
	repo := &mockUserRepo{
		items: map[string]*models.User{
			"u1": {ID: "u1", Name: "Juan Pablo", Active: true},
		},
	}
	service := newUserService(repo, nil)

	inactive := false
	_, err := service.Patch(context.Background(), "u1", PatchUserRequest{Active: &inactive})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)
}

func TestUserServicePatchSingleField(t *testing.T) {
	repo := &mockUserRepo{
		items: map[string]*models.User{
			"u1": {ID: "u1", Name: "Juan Pablo", LastName: "Mendieta", Email: "juan@example.com", PhoneNumber: "311 222 3344", Active: true},
		},
	}
	service := newUserService(repo, nil)

	name := "pedro jose"
	patched, err := service.Patch(context.Background(), "u1", PatchUserRequest{Name: &name})
	require.NoError(t, err)
	assert.Equal(t, "Pedro Jose", patched.Name)
	assert.Equal(t, "Mendieta", patched.LastName)
}

func TestUserServiceDeleteSoftDeletes(t *testing.T) {
	repo := &mockUserRepo{
		items: map[string]*models.User{
			"u1": {ID: "u1", Name: "Juan Pablo", Active: true},
		},
	}
	service := newUserService(repo, nil)

	require.NoError(t, service.Delete(context.Background(), "u1"))
	assert.Equal(t, []string{"u1"}, repo.deactivated)
	assert.False(t, repo.items["u1"].Active)
}

func TestUserServiceDeleteAlreadyInactive(t *testing.T) {
	repo := &mockUserRepo{
		items: map[string]*models.User{
			"u1": {ID: "u1", Name: "Juan Pablo", Active: false},
		},
	}
	service := newUserService(repo, nil)

	err := service.Delete(context.Background(), "u1")
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrState.Code, appErrors.FromError(err).Code)
}

func TestUserServiceDeleteBlockedByOpenTasks(t *testing.T) {
	repo := &mockUserRepo{
		items: map[string]*models.User{
			"u1": {ID: "u1", Name: "Juan Pablo", Active: true},
		},
	}
	counter := &mockTaskCounter{open: map[string]int{"u1": 2}}
	service := newUserService(repo, counter)

	err := service.Delete(context.Background(), "u1")
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrConflict.Code, appErrors.FromError(err).Code)
	assert.Empty(t, repo.deactivated)
}

func TestUserServiceDeleteUnknown(t *testing.T) {
	service := newUserService(&mockUserRepo{}, nil)

	err := service.Delete(context.Background(), "missing")
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrNotFound.Code, appErrors.FromError(err).Code)
}

func TestUserServiceList(t *testing.T) {
	repo := &mockUserRepo{
		listResult: []models.User{{ID: "u1", Name: "Juan Pablo"}},
		listTotal:  1,
	}
	service := newUserService(repo, nil)

	users, pagination, cacheHit, err := service.List(context.Background(), models.UserFilter{Page: 1, PageSize: 20})
	require.NoError(t, err)
	assert.Len(t, users, 1)
	assert.False(t, cacheHit)
	require.NotNil(t, pagination)
	assert.Equal(t, 1, pagination.TotalCount)
}
