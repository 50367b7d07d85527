package models

type Role string

const (
	RoleAdmin  Role = "admin"
	RoleMember Role = "member"
)

// Principal is the authenticated identity attached to every request.
// User accounts, sessions and role assignment live in the portal's auth
// service; this backend only consumes the signed claims.
type Principal struct {
	UserID      int64  `json:"userID"`
	CommunityID int64  `json:"communityID"`
	Email       string `json:"email"`
	Role        Role   `json:"role"`
}
