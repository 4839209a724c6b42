package models

import "time"

// Role controls access to other owners' sessions.
type Role string

const (
	RoleUser  Role = "user"
	RoleAdmin Role = "admin"
)

// UserModel represents an operator account. Accounts are created on
// registration or lazily on the first authenticated request, and are
// never hard-deleted.
type UserModel struct {
	Base
	Email         string     `json:"email"           gorm:"uniqueIndex;not null"`
	Name          string     `json:"name"`
	Role          Role       `json:"role"            gorm:"type:varchar(16);default:user"`
	Password      string     `json:"-"               gorm:"not null"`
	Salt          string     `json:"-"               gorm:"not null"`
	LastLoginTime *time.Time `json:"last_login_time"`
}

func (UserModel) TableName() string { return "users" }

// IsAdmin reports whether the user may act on sessions they do not own.
func (u *UserModel) IsAdmin() bool { return u.Role == RoleAdmin }
