package models

// UserID identifies an account owned by the account collaborator.
type UserID string

type Role string

const (
	RoleUser  Role = "user"
	RoleAgent Role = "agent"
	RoleAdmin Role = "admin"
)

// Identity is resolved once per connection at handshake time.
type Identity struct {
	UserID UserID `json:"user_id"`
	Role   Role   `json:"role"`
}

type DisplayInfo struct {
	Name   string `json:"name"`
	Avatar string `json:"avatar,omitempty"`
}
