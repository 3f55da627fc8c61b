package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Task is a single todo item stored in the tasks collection. Owner is set
// once at creation and never changes.
type Task struct {
	ID          primitive.ObjectID `json:"id"          bson:"_id,omitempty"`
	Owner       primitive.ObjectID `json:"owner"       bson:"owner"`
	Description string             `json:"description" bson:"description"`
	Completed   bool               `json:"completed"   bson:"completed"`
	CreatedAt   time.Time          `json:"created_at"  bson:"created_at"`
	UpdatedAt   time.Time          `json:"updated_at"  bson:"updated_at"`
}

// CreateTaskRequest is the JSON body for POST /tasks.
type CreateTaskRequest struct {
	Description string `json:"description" validate:"required,notblank"`
	Completed   *bool  `json:"completed"`
}

// UpdateTaskRequest is the JSON body for PATCH /tasks/{id}.
type UpdateTaskRequest struct {
	Description *string `json:"description" validate:"omitempty,notblank"`
	Completed   *bool   `json:"completed"`
}
