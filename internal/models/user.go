package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// User is a single account stored in the users collection.
// Password, Tokens, and AvatarKey never leave the process as JSON.
type User struct {
	ID        primitive.ObjectID `json:"id"         bson:"_id,omitempty"`
	Name      string             `json:"name"       bson:"name"`
	Email     string             `json:"email"      bson:"email"`
	Password  string             `json:"-"          bson:"password"`
	Age       int                `json:"age"        bson:"age"`
	AvatarKey string             `json:"-"          bson:"avatar_key,omitempty"`
	Tokens    []string           `json:"-"          bson:"tokens"`
	CreatedAt time.Time          `json:"created_at" bson:"created_at"`
	UpdatedAt time.Time          `json:"updated_at" bson:"updated_at"`
}

// SignupRequest is the JSON body for POST /users.
type SignupRequest struct {
	Name     string `json:"name" validate:"required,max=255"`
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required,min=6,max=72,notpassword"`
	Age      *int   `json:"age" validate:"omitempty,gte=0"`
}

// LoginRequest is the JSON body for POST /users/login.
type LoginRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

// UpdateUserRequest is the JSON body for PATCH /users/me. All fields are
// optional; absent fields are left untouched.
type UpdateUserRequest struct {
	Name     *string `json:"name" validate:"omitempty,min=1,max=255"`
	Email    *string `json:"email" validate:"omitempty,email"`
	Password *string `json:"password" validate:"omitempty,min=6,max=72,notpassword"`
	Age      *int    `json:"age" validate:"omitempty,gte=0"`
}

// AuthResponse is the body returned by signup and login.
type AuthResponse struct {
	User  *User  `json:"user"`
	Token string `json:"token"`
}
