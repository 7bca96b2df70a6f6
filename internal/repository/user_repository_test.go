package repository

import (
	"context"
	"database/sql"
	"fmt"
	"regexp"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jpmendieta/taskflow-api/internal/models"
)

func newRepoMock(t *testing.T) (*sqlx.DB, sqlmock.Sqlmock, func()) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	return sqlx.NewDb(db, "sqlmock"), mock, func() { db.Close() }
}

func userRows(ids ...string) *sqlmock.Rows {
	rows := sqlmock.NewRows([]string{"id", "name", "last_name", "email", "phone_number", "active", "created_at", "updated_at"})
	for i, id := range ids {
		rows.AddRow(id, "Juan Pablo", "Mendieta", fmt.Sprintf("user%d@example.com", i), "311 222 3344", true, time.Now(), time.Now())
	}
	return rows
}

func TestUserRepositoryList(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewUserRepository(db)

	active := true
	mock.ExpectQuery(regexp.QuoteMeta("SELECT id, name, last_name, email, phone_number, active, created_at, updated_at FROM users WHERE 1=1 AND active = $1 ORDER BY created_at DESC LIMIT 20 OFFSET 0")).
		WithArgs(true).
		WillReturnRows(userRows("u1", "u2"))
	mock.ExpectQuery(regexp.QuoteMeta("SELECT COUNT(*) FROM users WHERE 1=1 AND active = $1")).
		WithArgs(true).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(2))

	users, total, err := repo.List(context.Background(), models.UserFilter{Active: &active})
	require.NoError(t, err)
	assert.Len(t, users, 2)
	assert.Equal(t, 2, total)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUserRepositoryFindInactiveByName(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewUserRepository(db)

	mock.ExpectQuery(regexp.QuoteMeta("SELECT id, name, last_name, email, phone_number, active, created_at, updated_at FROM users WHERE LOWER(name) = LOWER($1) AND active = FALSE LIMIT 1")).
		WithArgs("Juan Pablo").
		WillReturnRows(userRows("u1"))

	user, err := repo.FindInactiveByName(context.Background(), "Juan Pablo")
	require.NoError(t, err)
	assert.Equal(t, "u1", user.ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUserRepositoryExistsByEmail(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewUserRepository(db)

	mock.ExpectQuery(regexp.QuoteMeta("SELECT 1 FROM users WHERE LOWER(email) = LOWER($1) LIMIT 1")).
		WithArgs("user@example.com").
		WillReturnRows(sqlmock.NewRows([]string{"1"}).AddRow(1))

	exists, err := repo.ExistsByEmail(context.Background(), "user@example.com", "")
	require.NoError(t, err)
	assert.True(t, exists)

	mock.ExpectQuery(regexp.QuoteMeta("SELECT 1 FROM users WHERE LOWER(email) = LOWER($1) AND id <> $2 LIMIT 1")).
		WithArgs("user@example.com", "u1").
		WillReturnError(sql.ErrNoRows)

	exists, err = repo.ExistsByEmail(context.Background(), "user@example.com", "u1")
	require.NoError(t, err)
	assert.False(t, exists)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUserRepositoryExistsByPhone(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewUserRepository(db)

	mock.ExpectQuery(regexp.QuoteMeta("SELECT 1 FROM users WHERE phone_number = $1 LIMIT 1")).
		WithArgs("311 222 3344").
		WillReturnError(sql.ErrNoRows)

	exists, err := repo.ExistsByPhone(context.Background(), "311 222 3344", "")
	require.NoError(t, err)
	assert.False(t, exists)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUserRepositoryCreateAndDeactivate(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewUserRepository(db)

	mock.ExpectExec("INSERT INTO users").
		WithArgs(sqlmock.AnyArg(), "Juan Pablo", "Mendieta", "user@example.com", "311 222 3344", true, sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(1, 1))

	user := &models.User{Name: "Juan Pablo", LastName: "Mendieta", Email: "user@example.com", PhoneNumber: "311 222 3344", Active: true}
	require.NoError(t, repo.Create(context.Background(), user))
	assert.NotEmpty(t, user.ID)

	mock.ExpectExec("UPDATE users SET active = FALSE").
		WithArgs("u1", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(1, 1))

	require.NoError(t, repo.Deactivate(context.Background(), "u1"))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUserRepositoryReactivate(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewUserRepository(db)

	mock.ExpectExec("UPDATE users SET active = TRUE").
		WithArgs("u1", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(1, 1))

	require.NoError(t, repo.Reactivate(context.Background(), "u1"))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestIsUniqueViolation(t *testing.T) {
	base := &pq.Error{Code: "23505"}
	assert.True(t, IsUniqueViolation(base))
	assert.True(t, IsUniqueViolation(fmt.Errorf("create user: %w", base)))
	assert.False(t, IsUniqueViolation(fmt.Errorf("plain failure")))
	assert.False(t, IsUniqueViolation(&pq.Error{Code: "23503"}))
}
