package models

import (
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// User is an instructor/admin account.
type User struct {
	ID           string     `db:"id" json:"id"`
	Email        string     `db:"email" json:"email"`
	Name         string     `db:"name" json:"name"`
	PasswordHash string     `db:"password_hash" json:"-"`
	Active       bool       `db:"active" json:"active"`
	LastLoginAt  *time.Time `db:"last_login_at" json:"last_login_at,omitempty"`
	CreatedAt    time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt    time.Time  `db:"updated_at" json:"updated_at"`
}

// Token roles carried in JWT claims.
const (
	RoleInstructor = "instructor"
	RoleStudent    = "student"
)

// JWTClaims are the access-token claims for instructors and portal students.
type JWTClaims struct {
	Role              string `json:"role"`
	Email             string `json:"email,omitempty"`
	StudentIdentifier string `json:"student_identifier,omitempty"`
	jwt.RegisteredClaims
}

// LoginRequest is the instructor login payload.
type LoginRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

// LoginResponse carries the issued access token.
type LoginResponse struct {
	AccessToken string    `json:"access_token"`
	ExpiresAt   time.Time `json:"expires_at"`
	User        *User     `json:"user"`
}
