package service

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/jpmendieta/taskflow-api/internal/models"
	"github.com/jpmendieta/taskflow-api/internal/repository"
	appErrors "github.com/jpmendieta/taskflow-api/pkg/errors"
)

type userRepository interface {
	List(ctx context.Context, filter models.UserFilter) ([]models.User, int, error)
	FindByID(ctx context.Context, id string) (*models.User, error)
	FindInactiveByName(ctx context.Context, name string) (*models.User, error)
	ExistsByEmail(ctx context.Context, email, excludeID string) (bool, error)
	ExistsByPhone(ctx context.Context, phone, excludeID string) (bool, error)
	Create(ctx context.Context, user *models.User) error
	Update(ctx context.Context, user *models.User) error
	Reactivate(ctx context.Context, id string) error
	Deactivate(ctx context.Context, id string) error
}

type openTaskCounter interface {
	CountOpenByUser(ctx context.Context, userID string) (int, error)
}

// CreateUserRequest represents payload for creating users.
type CreateUserRequest struct {
	Name        string `json:"name" validate:"required,alpha_space"`
	LastName    string `json:"last_name" validate:"required,alpha_space"`
	Email       string `json:"email" validate:"required,email_shape"`
	PhoneNumber string `json:"phone_number" validate:"required,phone"`
}

// UpdateUserRequest represents payload for full user updates.
type UpdateUserRequest struct {
	Name        string `json:"name" validate:"required,alpha_space"`
	LastName    string `json:"last_name" validate:"required,alpha_space"`
	Email       string `json:"email" validate:"required,email_shape"`
	PhoneNumber string `json:"phone_number" validate:"required,phone"`
}

// PatchUserRequest represents payload for partial user updates. Only the
// fields present in the request are applied; unknown fields are rejected
// by the typed decoding.
type PatchUserRequest struct {
	Name        *string `json:"name" validate:"omitempty,alpha_space"`
	LastName    *string `json:"last_name" validate:"omitempty,alpha_space"`
	Email       *string `json:"email" validate:"omitempty,email_shape"`
	PhoneNumber *string `json:"phone_number" validate:"omitempty,phone"`
	Active      *bool   `json:"active" validate:"omitempty,eq=true"`
}

type cachedUserList struct {
	Users      []models.User      `json:"users"`
	Pagination *models.Pagination `json:"pagination"`
}

// UserService orchestrates user operations.
type UserService struct {
	repo      userRepository
	tasks     openTaskCounter
	cache     *CacheService
	validator *validator.Validate
	logger    *zap.Logger
}

// NewUserService constructs a UserService.
func NewUserService(repo userRepository, tasks openTaskCounter, cache *CacheService, validate *validator.Validate, logger *zap.Logger) *UserService {
	if validate == nil {
		validate = NewValidator()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &UserService{repo: repo, tasks: tasks, cache: cache, validator: validate, logger: logger}
}

// List returns users plus pagination data, served from cache when
// possible. The boolean reports whether the cache answered.
func (s *UserService) List(ctx context.Context, filter models.UserFilter) ([]models.User, *models.Pagination, bool, error) {
	key := userListCacheKey(filter)
	if s.cache.Enabled() {
		var cached cachedUserList
		if hit, _ := s.cache.Get(ctx, key, &cached); hit {
			return cached.Users, cached.Pagination, true, nil
		}
	}

	users, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, nil, false, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list users")
	}
	pagination := paginationFor(filter.Page, filter.PageSize, total)

	if s.cache.Enabled() {
		_ = s.cache.Set(ctx, key, cachedUserList{Users: users, Pagination: pagination}, 0)
	}
	return users, pagination, false, nil
}

// Get returns a user by id.
func (s *UserService) Get(ctx context.Context, id string) (*models.User, error) {
	user, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "user not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load user")
	}
	return user, nil
}

// Create registers a new user, reviving a soft-deleted one when the name
// matches instead of inserting a duplicate.
func (s *UserService) Create(ctx context.Context, req CreateUserRequest) (*models.User, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, validationError(err)
	}

	name := titleCase(req.Name)
	lastName := titleCase(req.LastName)
	email := strings.TrimSpace(req.Email)
	phone := strings.TrimSpace(req.PhoneNumber)

	if err := s.ensureUniqueContact(ctx, email, phone, ""); err != nil {
		return nil, err
	}

	existing, err := s.repo.FindInactiveByName(ctx, name)
	switch {
	case err == nil:
		if err := s.repo.Reactivate(ctx, existing.ID); err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to reactivate user")
		}
		existing.Active = true
		s.invalidateCaches(ctx)
		s.logger.Info("reactivated user instead of creating duplicate", zap.String("user_id", existing.ID))
		return existing, nil
	case err != sql.ErrNoRows:
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to look up inactive user")
	}

	user := &models.User{
		Name:        name,
		LastName:    lastName,
		Email:       email,
		PhoneNumber: phone,
		Active:      true,
	}
	if err := s.repo.Create(ctx, user); err != nil {
		if repository.IsUniqueViolation(err) {
			return nil, appErrors.Clone(appErrors.ErrConflict, "email or phone number already in use")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create user")
	}
	s.invalidateCaches(ctx)
	return user, nil
}

// Update overwrites every field of an active user.
func (s *UserService) Update(ctx context.Context, id string, req UpdateUserRequest) (*models.User, error) {
	user, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if !user.Active {
		return nil, appErrors.Clone(appErrors.ErrState, "user must be active to modify")
	}
	if err := s.validator.Struct(req); err != nil {
		return nil, validationError(err)
	}

	user.Name = titleCase(req.Name)
	user.LastName = titleCase(req.LastName)
	user.Email = strings.TrimSpace(req.Email)
	user.PhoneNumber = strings.TrimSpace(req.PhoneNumber)

	if err := s.ensureUniqueContact(ctx, user.Email, user.PhoneNumber, id); err != nil {
		return nil, err
	}

	if err := s.repo.Update(ctx, user); err != nil {
		if repository.IsUniqueViolation(err) {
			return nil, appErrors.Clone(appErrors.ErrConflict, "email or phone number already in use")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update user")
	}
	s.invalidateCaches(ctx)
	return user, nil
}

// Patch applies only the provided fields to a user.
func (s *UserService) Patch(ctx context.Context, id string, req PatchUserRequest) (*models.User, error) {
	user, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := s.validator.Struct(req); err != nil {
		return nil, validationError(err)
	}

	if req.Name != nil {
		user.Name = titleCase(*req.Name)
	}
	if req.LastName != nil {
		user.LastName = titleCase(*req.LastName)
	}
	if req.Email != nil {
		user.Email = strings.TrimSpace(*req.Email)
	}
	if req.PhoneNumber != nil {
		user.PhoneNumber = strings.TrimSpace(*req.PhoneNumber)
	}
	if req.Active != nil {
		user.Active = *req.Active
	}

	if req.Email != nil || req.PhoneNumber != nil {
		if err := s.ensureUniqueContact(ctx, user.Email, user.PhoneNumber, id); err != nil {
			return nil, err
		}
	}

	if err := s.repo.Update(ctx, user); err != nil {
		if repository.IsUniqueViolation(err) {
			return nil, appErrors.Clone(appErrors.ErrConflict, "email or phone number already in use")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update user")
	}
	s.invalidateCaches(ctx)
	return user, nil
}

// Delete soft-deletes an active user. Users still owning open tasks are
// protected from deletion.
func (s *UserService) Delete(ctx context.Context, id string) error {
	user, err := s.Get(ctx, id)
	if err != nil {
		return err
	}
	if !user.Active {
		return appErrors.Clone(appErrors.ErrState, "user does not exist")
	}

	open, err := s.tasks.CountOpenByUser(ctx, id)
	if err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check task ownership")
	}
	if open > 0 {
		return appErrors.Clone(appErrors.ErrConflict, "user still has assigned tasks")
	}

	if err := s.repo.Deactivate(ctx, id); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to delete user")
	}
	s.invalidateCaches(ctx)
	return nil
}

func (s *UserService) ensureUniqueContact(ctx context.Context, email, phone, excludeID string) error {
	exists, err := s.repo.ExistsByPhone(ctx, phone, excludeID)
	if err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check phone uniqueness")
	}
	if exists {
		return appErrors.Clone(appErrors.ErrConflict, "phone number already in use")
	}
	exists, err = s.repo.ExistsByEmail(ctx, email, excludeID)
	if err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check email uniqueness")
	}
	if exists {
		return appErrors.Clone(appErrors.ErrConflict, "email already in use")
	}
	return nil
}

// invalidateCaches drops user listings and task listings alike, since
// task serializations embed the owner's name.
func (s *UserService) invalidateCaches(ctx context.Context) {
	_ = s.cache.Invalidate(ctx, "users:*")
	_ = s.cache.Invalidate(ctx, "tasks:*")
}

func userListCacheKey(filter models.UserFilter) string {
	active := "any"
	if filter.Active != nil {
		active = fmt.Sprintf("%t", *filter.Active)
	}
	return fmt.Sprintf("users:list:%s:%s:%s:%s:%d:%d", active, filter.Search, filter.SortBy, filter.SortOrder, filter.Page, filter.PageSize)
}

func paginationFor(page, size, total int) *models.Pagination {
	if page < 1 {
		page = 1
	}
	if size <= 0 {
		size = 20
	}
	return &models.Pagination{Page: page, PageSize: size, TotalCount: total}
}
