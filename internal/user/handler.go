package user

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/drosic/taskman/internal/auth"
	"github.com/drosic/taskman/internal/httpx"
	"github.com/drosic/taskman/internal/middleware"
	"github.com/drosic/taskman/internal/models"
	"github.com/drosic/taskman/internal/store"
	"github.com/drosic/taskman/internal/validation"
)

// updatableFields is the closed set of field names PATCH /users/me accepts.
var updatableFields = []string{"name", "email", "password", "age"}

// UserStore defines the interface for user persistence.
type UserStore interface {
	Insert(ctx context.Context, u *models.User) error
	GetByID(ctx context.Context, id primitive.ObjectID) (*models.User, error)
	GetByEmail(ctx context.Context, email string) (*models.User, error)
	Update(ctx context.Context, id primitive.ObjectID, fields bson.M) (*models.User, error)
	Delete(ctx context.Context, id primitive.ObjectID) error
	SetAvatarKey(ctx context.Context, id primitive.ObjectID, key string) error
	ClearAvatarKey(ctx context.Context, id primitive.ObjectID) error
}

// TaskStore is the slice of task persistence account deletion needs.
type TaskStore interface {
	DeleteByOwner(ctx context.Context, owner primitive.ObjectID) error
}

// BlobStore holds avatar images.
type BlobStore interface {
	Upload(ctx context.Context, key string, data []byte, contentType string) error
	Download(ctx context.Context, key string) ([]byte, string, error)
	Remove(ctx context.Context, key string) error
}

// Auditor records auth events.
type Auditor interface {
	Record(ctx context.Context, userID, event string) error
}

// Handler holds the user resource HTTP handlers.
type Handler struct {
	users  UserStore
	tasks  TaskStore
	blobs  BlobStore
	issuer *auth.Issuer
	audit  Auditor
	log    *zap.Logger
}

func NewHandler(users UserStore, tasks TaskStore, blobs BlobStore, issuer *auth.Issuer, audit Auditor, log *zap.Logger) *Handler {
	return &Handler{users: users, tasks: tasks, blobs: blobs, issuer: issuer, audit: audit, log: log}
}

// Signup creates a new account and opens its first session.
func (h *Handler) Signup(w http.ResponseWriter, r *http.Request) {
	var req models.SignupRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Error(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if fields := validation.Struct(req); fields != nil {
		httpx.Fields(w, fields)
		return
	}

	hashed, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		h.internal(w, "hash password", err)
		return
	}

	u := &models.User{
		Name:     req.Name,
		Email:    normalizeEmail(req.Email),
		Password: string(hashed),
	}
	if req.Age != nil {
		u.Age = *req.Age
	}
	if err := h.users.Insert(r.Context(), u); err != nil {
		if errors.Is(err, store.ErrDuplicateEmail) {
			httpx.Fields(w, map[string]string{"email": "already in use"})
			return
		}
		h.internal(w, "insert user", err)
		return
	}

	token, err := h.issuer.Issue(r.Context(), u.ID)
	if err != nil {
		h.internal(w, "issue token", err)
		return
	}
	h.record(r.Context(), u.ID, store.EventSignup)

	httpx.JSON(w, http.StatusCreated, models.AuthResponse{User: u, Token: token})
}

// Login authenticates credentials and opens a new session. Unknown email
// and wrong password produce the same response.
func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	var req models.LoginRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Error(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Email == "" || req.Password == "" {
		httpx.Error(w, http.StatusBadRequest, "unable to login")
		return
	}

	u, err := h.users.GetByEmail(r.Context(), normalizeEmail(req.Email))
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			httpx.Error(w, http.StatusBadRequest, "unable to login")
			return
		}
		h.internal(w, "find user", err)
		return
	}
	if err := bcrypt.CompareHashAndPassword([]byte(u.Password), []byte(req.Password)); err != nil {
		httpx.Error(w, http.StatusBadRequest, "unable to login")
		return
	}

	token, err := h.issuer.Issue(r.Context(), u.ID)
	if err != nil {
		h.internal(w, "issue token", err)
		return
	}
	h.record(r.Context(), u.ID, store.EventLogin)

	httpx.JSON(w, http.StatusOK, models.AuthResponse{User: u, Token: token})
}

// Logout revokes the session token that authenticated this request.
func (h *Handler) Logout(w http.ResponseWriter, r *http.Request) {
	s := middleware.SessionFrom(r)
	if err := h.issuer.RevokeOne(r.Context(), s.User.ID, s.Token); err != nil {
		h.internal(w, "revoke token", err)
		return
	}
	h.record(r.Context(), s.User.ID, store.EventLogout)
	httpx.JSON(w, http.StatusOK, map[string]string{"message": "logged out"})
}

// LogoutAll revokes every session the user has.
func (h *Handler) LogoutAll(w http.ResponseWriter, r *http.Request) {
	s := middleware.SessionFrom(r)
	if err := h.issuer.RevokeAll(r.Context(), s.User.ID); err != nil {
		h.internal(w, "revoke tokens", err)
		return
	}
	h.record(r.Context(), s.User.ID, store.EventLogoutAll)
	httpx.JSON(w, http.StatusOK, map[string]string{"message": "logged out everywhere"})
}

// Me returns the authenticated user's profile.
func (h *Handler) Me(w http.ResponseWriter, r *http.Request) {
	httpx.JSON(w, http.StatusOK, middleware.SessionFrom(r).User)
}

// Update applies a partial profile update. Any key outside the updatable
// set rejects the whole request before field validation runs.
func (h *Handler) Update(w http.ResponseWriter, r *http.Request) {
	s := middleware.SessionFrom(r)

	var req models.UpdateUserRequest
	if err := httpx.DecodeAllowed(r, &req, updatableFields...); err != nil {
		httpx.Error(w, http.StatusBadRequest, "invalid updates: "+err.Error())
		return
	}
	if fields := validation.Struct(req); fields != nil {
		httpx.Fields(w, fields)
		return
	}

	set := bson.M{}
	if req.Name != nil {
		set["name"] = *req.Name
	}
	if req.Email != nil {
		set["email"] = normalizeEmail(*req.Email)
	}
	if req.Age != nil {
		set["age"] = *req.Age
	}
	if req.Password != nil {
		hashed, err := bcrypt.GenerateFromPassword([]byte(*req.Password), bcrypt.DefaultCost)
		if err != nil {
			h.internal(w, "hash password", err)
			return
		}
		set["password"] = string(hashed)
	}

	u, err := h.users.Update(r.Context(), s.User.ID, set)
	if err != nil {
		if errors.Is(err, store.ErrDuplicateEmail) {
			httpx.Fields(w, map[string]string{"email": "already in use"})
			return
		}
		h.internal(w, "update user", err)
		return
	}
	httpx.JSON(w, http.StatusOK, u)
}

// Delete removes the account. Owned tasks and the avatar go with it; the
// task purge runs first so no task ever outlives its owner.
func (h *Handler) Delete(w http.ResponseWriter, r *http.Request) {
	s := middleware.SessionFrom(r)

	if err := h.tasks.DeleteByOwner(r.Context(), s.User.ID); err != nil {
		h.internal(w, "delete tasks", err)
		return
	}
	if s.User.AvatarKey != "" {
		if err := h.blobs.Remove(r.Context(), s.User.AvatarKey); err != nil {
			h.log.Warn("remove avatar", zap.Error(err))
		}
	}
	if err := h.users.Delete(r.Context(), s.User.ID); err != nil {
		h.internal(w, "delete user", err)
		return
	}
	h.record(r.Context(), s.User.ID, store.EventAccountDelete)

	httpx.JSON(w, http.StatusOK, s.User)
}

func (h *Handler) record(ctx context.Context, id primitive.ObjectID, event string) {
	if err := h.audit.Record(ctx, id.Hex(), event); err != nil {
		h.log.Warn("audit record", zap.String("event", event), zap.Error(err))
	}
}

func (h *Handler) internal(w http.ResponseWriter, msg string, err error) {
	h.log.Error(msg, zap.Error(err))
	httpx.Error(w, http.StatusInternalServerError, "internal server error")
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
