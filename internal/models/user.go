package models

import "time"

// UserRole represents the available roles for the RBAC system.
type UserRole string

const (
	RoleAdmin          UserRole = "ADMIN"
	RoleVicePrincipal  UserRole = "VICE_PRINCIPAL"
	RoleDepartmentHead UserRole = "DEPARTMENT_HEAD"
	RoleTeacher        UserRole = "TEACHER"
)

// ReviewerRoles lists the roles with reviewer authority over documents
// and review requests. Department scoping is enforced in the services.
var ReviewerRoles = []UserRole{RoleAdmin, RoleVicePrincipal, RoleDepartmentHead}

// IsReviewer reports whether the role carries reviewer authority.
func (r UserRole) IsReviewer() bool {
	switch r {
	case RoleAdmin, RoleVicePrincipal, RoleDepartmentHead:
		return true
	default:
		return false
	}
}

// User represents an application user stored in the users table.
type User struct {
	ID           string     `db:"id" json:"id"`
	Email        string     `db:"email" json:"email"`
	PasswordHash string     `db:"password_hash" json:"-"`
	FullName     string     `db:"full_name" json:"full_name"`
	Role         UserRole   `db:"role" json:"role"`
	Department   string     `db:"department" json:"department"`
	Active       bool       `db:"active" json:"active"`
	LastLogin    *time.Time `db:"last_login" json:"last_login,omitempty"`
	CreatedAt    time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt    time.Time  `db:"updated_at" json:"updated_at"`
}

// UserFilter captures filtering criteria for listing users.
type UserFilter struct {
	Role       *UserRole
	Department string
	Active     *bool
	Search     string
	Page       int
	PageSize   int
	SortBy     string
	SortOrder  string
}

// Pagination contains pagination metadata returned in list responses.
type Pagination struct {
	Page       int `json:"page"`
	PageSize   int `json:"page_size"`
	TotalCount int `json:"total_count"`
}
