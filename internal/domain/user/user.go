package user

import (
	"database/sql"
	"errors"
	"fmt"
	"time"
)

var ErrNotFound = errors.New("user not found")

// Role is the stored role of a user. The administrator is not a role: it is
// recognised by the configured Telegram ID.
type Role string

const (
	RoleStudent Role = "student"
	RoleCurator Role = "curator"
)

// User represents anyone who has interacted with the bot.
type User struct {
	ID        int64
	UserID    int64 // Telegram ID
	Username  sql.NullString
	FirstName sql.NullString
	LastName  sql.NullString
	Role      Role
	IsActive  bool
	CreatedAt time.Time
}

// DisplayName prefers "First Last", then the username, then the numeric ID.
func (u *User) DisplayName() string {
	if u == nil {
		return ""
	}
	return FormatName(u.UserID, u.FirstName.String, u.LastName.String, u.Username.String)
}

// FormatName is DisplayName for callers that only hold the raw columns.
func FormatName(userID int64, firstName, lastName, username string) string {
	if firstName != "" && lastName != "" {
		return firstName + " " + lastName
	}
	if username != "" {
		return username
	}
	return fmt.Sprintf("ID: %d", userID)
}

// NullString converts an optional profile field into its column value.
func NullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}
