package models

import (
	"strings"
	"time"
)

// User represents an assignee stored in the users table. Inactive users
// are soft-deleted: they stay in the store and can be revived by a
// create request carrying the same name.
type User struct {
	ID          string    `db:"id" json:"id"`
	Name        string    `db:"name" json:"name"`
	LastName    string    `db:"last_name" json:"last_name"`
	Email       string    `db:"email" json:"email"`
	PhoneNumber string    `db:"phone_number" json:"phone_number"`
	Active      bool      `db:"active" json:"active"`
	CreatedAt   time.Time `db:"created_at" json:"created_at"`
	UpdatedAt   time.Time `db:"updated_at" json:"updated_at"`
}

// ShortName returns the first given name plus the first last name, the
// form used in task listings and notification greetings.
func (u User) ShortName() string {
	first := firstWord(u.Name)
	last := firstWord(u.LastName)
	if last == "" {
		return first
	}
	return first + " " + last
}

// FullName returns the complete display name.
func (u User) FullName() string {
	return strings.TrimSpace(u.Name + " " + u.LastName)
}

func firstWord(s string) string {
	fields := strings.Fields(s)
	if len(fields) == 0 {
		return ""
	}
	return fields[0]
}

// UserFilter captures filtering criteria for listing users.
type UserFilter struct {
	Search    string
	Active    *bool
	Page      int
	PageSize  int
	SortBy    string
	SortOrder string
}

// Pagination contains pagination metadata returned in list responses.
type Pagination struct {
	Page       int `json:"page"`
	PageSize   int `json:"page_size"`
	TotalCount int `json:"total_count"`
}
