package models

import "time"

// Role values carried in the OIDC token and mirrored on the user row.
const (
	RoleAdmin    = "admin"
	RoleReviewer = "reviewer"
	RoleViewer   = "viewer"
)

// User mirrors the identity asserted by the external OIDC provider. Rows are
// upserted on first sight of a subject; there is no local credential store.
type User struct {
	ID        int64     `json:"id"`
	Subject   string    `json:"subject"`
	Email     string    `json:"email"`
	FullName  string    `json:"full_name,omitempty"`
	Role      string    `json:"role"`
	IsActive  bool      `json:"is_active"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}
