package domain

import (
	"time"

	"github.com/google/uuid"
)

// User represents a platform account. Level drives cache segmentation.
type User struct {
	ID        string    `json:"id"`
	Email     string    `json:"email"`
	Password  string    `json:"-"`
	Role      string    `json:"role"`
	Level     Segment   `json:"level"`
	Phone     string    `json:"phone,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// NewUserID generates a new user ID.
func NewUserID() string {
	return uuid.New().String()
}

// LoginRequest is the input for POST /api/auth/login.
type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// LoginUser is the user subset returned on login.
type LoginUser struct {
	ID    string  `json:"id"`
	Email string  `json:"email"`
	Level Segment `json:"level"`
}

// LoginResponse is returned on successful login.
type LoginResponse struct {
	Token string    `json:"token"`
	User  LoginUser `json:"user"`
}

// JWTClaims are the claims carried in an access token.
type JWTClaims struct {
	Sub   string
	Email string
	Role  string
	Level Segment
}

// CreateUserRequest is the input for admin user creation.
type CreateUserRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required,min=8"`
	Role     string `json:"role" validate:"omitempty,oneof=user admin"`
	Level    string `json:"level" validate:"omitempty,oneof=primary secondary advance"`
}

// UserResponse is the user shape exposed over the API.
type UserResponse struct {
	ID        string    `json:"id"`
	Email     string    `json:"email"`
	Role      string    `json:"role"`
	Level     Segment   `json:"level"`
	CreatedAt time.Time `json:"createdAt"`
}
