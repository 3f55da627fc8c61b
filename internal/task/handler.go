package task

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.uber.org/zap"

	"github.com/drosic/taskman/internal/httpx"
	"github.com/drosic/taskman/internal/middleware"
	"github.com/drosic/taskman/internal/models"
	"github.com/drosic/taskman/internal/store"
	"github.com/drosic/taskman/internal/validation"
)

// updatableFields is the closed set of field names PATCH /tasks/{id} accepts.
var updatableFields = []string{"description", "completed"}

// sortFields maps query-facing sort names to their bson counterparts.
var sortFields = map[string]string{
	"description": "description",
	"completed":   "completed",
	"createdAt":   "created_at",
	"updatedAt":   "updated_at",
}

// TaskStore defines the interface for task persistence.
type TaskStore interface {
	Insert(ctx context.Context, t *models.Task) error
	List(ctx context.Context, owner primitive.ObjectID, f store.ListFilter) ([]models.Task, error)
	GetForOwner(ctx context.Context, id, owner primitive.ObjectID) (*models.Task, error)
	UpdateForOwner(ctx context.Context, id, owner primitive.ObjectID, fields bson.M) (*models.Task, error)
	DeleteForOwner(ctx context.Context, id, owner primitive.ObjectID) error
}

// Handler holds the task resource HTTP handlers. Every route requires auth;
// the store scopes each operation to the authenticated owner.
type Handler struct {
	tasks TaskStore
	log   *zap.Logger
}

func NewHandler(tasks TaskStore, log *zap.Logger) *Handler {
	return &Handler{tasks: tasks, log: log}
}

// Create inserts a task owned by the authenticated user.
func (h *Handler) Create(w http.ResponseWriter, r *http.Request) {
	s := middleware.SessionFrom(r)

	var req models.CreateTaskRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Error(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if fields := validation.Struct(req); fields != nil {
		httpx.Fields(w, fields)
		return
	}

	t := &models.Task{
		Owner:       s.User.ID,
		Description: strings.TrimSpace(req.Description),
	}
	if req.Completed != nil {
		t.Completed = *req.Completed
	}
	if err := h.tasks.Insert(r.Context(), t); err != nil {
		h.internal(w, "insert task", err)
		return
	}

	httpx.JSON(w, http.StatusCreated, t)
}

// List returns the caller's tasks, optionally filtered by completion,
// sorted, and paginated via limit/skip.
func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	s := middleware.SessionFrom(r)

	filter, err := parseListFilter(r)
	if err != nil {
		httpx.Error(w, http.StatusBadRequest, err.Error())
		return
	}

	tasks, err := h.tasks.List(r.Context(), s.User.ID, filter)
	if err != nil {
		h.internal(w, "list tasks", err)
		return
	}
	httpx.JSON(w, http.StatusOK, tasks)
}

// Get returns one task by id. Foreign and missing ids look identical.
func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	s := middleware.SessionFrom(r)

	id, err := primitive.ObjectIDFromHex(chi.URLParam(r, "id"))
	if err != nil {
		httpx.Error(w, http.StatusNotFound, "task not found")
		return
	}
	t, err := h.tasks.GetForOwner(r.Context(), id, s.User.ID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			httpx.Error(w, http.StatusNotFound, "task not found")
			return
		}
		h.internal(w, "get task", err)
		return
	}
	httpx.JSON(w, http.StatusOK, t)
}

// Update applies a partial update to an owned task.
func (h *Handler) Update(w http.ResponseWriter, r *http.Request) {
	s := middleware.SessionFrom(r)

	id, err := primitive.ObjectIDFromHex(chi.URLParam(r, "id"))
	if err != nil {
		httpx.Error(w, http.StatusNotFound, "task not found")
		return
	}

	var req models.UpdateTaskRequest
	if err := httpx.DecodeAllowed(r, &req, updatableFields...); err != nil {
		httpx.Error(w, http.StatusBadRequest, "invalid updates: "+err.Error())
		return
	}
	if fields := validation.Struct(req); fields != nil {
		httpx.Fields(w, fields)
		return
	}

	set := bson.M{}
	if req.Description != nil {
		set["description"] = strings.TrimSpace(*req.Description)
	}
	if req.Completed != nil {
		set["completed"] = *req.Completed
	}

	t, err := h.tasks.UpdateForOwner(r.Context(), id, s.User.ID, set)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			httpx.Error(w, http.StatusNotFound, "task not found")
			return
		}
		h.internal(w, "update task", err)
		return
	}
	httpx.JSON(w, http.StatusOK, t)
}

// Delete removes an owned task.
func (h *Handler) Delete(w http.ResponseWriter, r *http.Request) {
	s := middleware.SessionFrom(r)

	id, err := primitive.ObjectIDFromHex(chi.URLParam(r, "id"))
	if err != nil {
		httpx.Error(w, http.StatusNotFound, "task not found")
		return
	}
	if err := h.tasks.DeleteForOwner(r.Context(), id, s.User.ID); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			httpx.Error(w, http.StatusNotFound, "task not found")
			return
		}
		h.internal(w, "delete task", err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]string{"message": "task deleted"})
}

func (h *Handler) internal(w http.ResponseWriter, msg string, err error) {
	h.log.Error(msg, zap.Error(err))
	httpx.Error(w, http.StatusInternalServerError, "internal server error")
}

// parseListFilter reads completed, sortBy (field:asc|desc), limit, and skip
// from the query string.
func parseListFilter(r *http.Request) (store.ListFilter, error) {
	var f store.ListFilter
	q := r.URL.Query()

	if v := q.Get("completed"); v != "" {
		completed, err := strconv.ParseBool(v)
		if err != nil {
			return f, fmt.Errorf("completed must be true or false")
		}
		f.Completed = &completed
	}

	if v := q.Get("sortBy"); v != "" {
		name, dir, _ := strings.Cut(v, ":")
		field, ok := sortFields[name]
		if !ok {
			return f, fmt.Errorf("unrecognized sort field %q", name)
		}
		f.SortField = field
		switch dir {
		case "", "asc":
		case "desc":
			f.SortDesc = true
		default:
			return f, fmt.Errorf("sort direction must be asc or desc")
		}
	}

	if v := q.Get("limit"); v != "" {
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil || n < 0 {
			return f, fmt.Errorf("limit must be a non-negative integer")
		}
		f.Limit = n
	}
	if v := q.Get("skip"); v != "" {
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil || n < 0 {
			return f, fmt.Errorf("skip must be a non-negative integer")
		}
		f.Skip = n
	}
	return f, nil
}
