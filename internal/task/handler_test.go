package task

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"slices"
	"sort"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.uber.org/zap"

	"github.com/drosic/taskman/internal/auth"
	"github.com/drosic/taskman/internal/middleware"
	"github.com/drosic/taskman/internal/models"
	"github.com/drosic/taskman/internal/store"
)

// ── in-memory fakes ──────────────────────────────────────────

type fakeUsers struct {
	users map[primitive.ObjectID]*models.User
}

func (f *fakeUsers) GetByID(_ context.Context, id primitive.ObjectID) (*models.User, error) {
	u, ok := f.users[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	cp := *u
	cp.Tokens = slices.Clone(u.Tokens)
	return &cp, nil
}

func (f *fakeUsers) PushToken(_ context.Context, id primitive.ObjectID, token string) error {
	u, ok := f.users[id]
	if !ok {
		return store.ErrNotFound
	}
	u.Tokens = append(u.Tokens, token)
	return nil
}

func (f *fakeUsers) PullToken(_ context.Context, id primitive.ObjectID, token string) error {
	u, ok := f.users[id]
	if !ok {
		return store.ErrNotFound
	}
	u.Tokens = slices.DeleteFunc(u.Tokens, func(t string) bool { return t == token })
	return nil
}

func (f *fakeUsers) ClearTokens(_ context.Context, id primitive.ObjectID) error {
	u, ok := f.users[id]
	if !ok {
		return store.ErrNotFound
	}
	u.Tokens = []string{}
	return nil
}

// fakeTasks mirrors the Mongo store's semantics: insertion order, owner
// scoping in a single predicate, completed filter, sort, skip, limit.
type fakeTasks struct {
	tasks []*models.Task
}

func (f *fakeTasks) Insert(_ context.Context, t *models.Task) error {
	t.ID = primitive.NewObjectID()
	now := time.Now().UTC()
	t.CreatedAt = now
	t.UpdatedAt = now
	cp := *t
	f.tasks = append(f.tasks, &cp)
	return nil
}

func (f *fakeTasks) List(_ context.Context, owner primitive.ObjectID, filter store.ListFilter) ([]models.Task, error) {
	out := []models.Task{}
	for _, t := range f.tasks {
		if t.Owner != owner {
			continue
		}
		if filter.Completed != nil && t.Completed != *filter.Completed {
			continue
		}
		out = append(out, *t)
	}
	if filter.SortField != "" {
		sort.SliceStable(out, func(i, j int) bool {
			var less bool
			switch filter.SortField {
			case "description":
				less = out[i].Description < out[j].Description
			case "completed":
				less = !out[i].Completed && out[j].Completed
			case "created_at":
				less = out[i].CreatedAt.Before(out[j].CreatedAt)
			case "updated_at":
				less = out[i].UpdatedAt.Before(out[j].UpdatedAt)
			}
			if filter.SortDesc {
				return !less
			}
			return less
		})
	}
	if filter.Skip > 0 {
		if filter.Skip >= int64(len(out)) {
			return []models.Task{}, nil
		}
		out = out[filter.Skip:]
	}
	if filter.Limit > 0 && filter.Limit < int64(len(out)) {
		out = out[:filter.Limit]
	}
	return out, nil
}

func (f *fakeTasks) GetForOwner(_ context.Context, id, owner primitive.ObjectID) (*models.Task, error) {
	for _, t := range f.tasks {
		if t.ID == id && t.Owner == owner {
			cp := *t
			return &cp, nil
		}
	}
	return nil, store.ErrNotFound
}

func (f *fakeTasks) UpdateForOwner(_ context.Context, id, owner primitive.ObjectID, fields bson.M) (*models.Task, error) {
	for _, t := range f.tasks {
		if t.ID == id && t.Owner == owner {
			if d, ok := fields["description"].(string); ok {
				t.Description = d
			}
			if c, ok := fields["completed"].(bool); ok {
				t.Completed = c
			}
			t.UpdatedAt = time.Now().UTC()
			cp := *t
			return &cp, nil
		}
	}
	return nil, store.ErrNotFound
}

func (f *fakeTasks) DeleteForOwner(_ context.Context, id, owner primitive.ObjectID) error {
	for i, t := range f.tasks {
		if t.ID == id && t.Owner == owner {
			f.tasks = append(f.tasks[:i], f.tasks[i+1:]...)
			return nil
		}
	}
	return store.ErrNotFound
}

// ── test harness ─────────────────────────────────────────────

// env mirrors the original fixture set: userOne owns two tasks, the second
// completed; userTwo owns one.
type env struct {
	tasks    *fakeTasks
	router   *chi.Mux
	userOne  primitive.ObjectID
	userTwo  primitive.ObjectID
	tokenOne string
	tokenTwo string
	taskOne  primitive.ObjectID
}

func newEnv(t *testing.T) *env {
	t.Helper()

	users := &fakeUsers{users: make(map[primitive.ObjectID]*models.User)}
	issuer := auth.NewIssuer(users, []byte("test-secret"), time.Hour)

	e := &env{
		tasks:   &fakeTasks{},
		userOne: primitive.NewObjectID(),
		userTwo: primitive.NewObjectID(),
	}
	users.users[e.userOne] = &models.User{ID: e.userOne, Name: "Mike", Email: "mike@test.com"}
	users.users[e.userTwo] = &models.User{ID: e.userTwo, Name: "Jess", Email: "jess@test.com"}

	var err error
	e.tokenOne, err = issuer.Issue(context.Background(), e.userOne)
	require.NoError(t, err)
	e.tokenTwo, err = issuer.Issue(context.Background(), e.userTwo)
	require.NoError(t, err)

	first := &models.Task{Owner: e.userOne, Description: "First task"}
	require.NoError(t, e.tasks.Insert(context.Background(), first))
	e.taskOne = first.ID
	require.NoError(t, e.tasks.Insert(context.Background(), &models.Task{Owner: e.userOne, Description: "Second task", Completed: true}))
	require.NoError(t, e.tasks.Insert(context.Background(), &models.Task{Owner: e.userTwo, Description: "Third task"}))

	h := NewHandler(e.tasks, zap.NewNop())
	r := chi.NewRouter()
	r.Route("/tasks", func(r chi.Router) {
		r.Use(middleware.RequireAuth(issuer))
		r.Post("/", h.Create)
		r.Get("/", h.List)
		r.Get("/{id}", h.Get)
		r.Patch("/{id}", h.Update)
		r.Delete("/{id}", h.Delete)
	})
	e.router = r
	return e
}

func (e *env) do(t *testing.T, method, path, token string, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, bytes.NewReader([]byte(body)))
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)
	return w
}

func listOf(t *testing.T, w *httptest.ResponseRecorder) []models.Task {
	t.Helper()
	require.Equal(t, http.StatusOK, w.Code)
	var tasks []models.Task
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &tasks))
	return tasks
}

// ── create ───────────────────────────────────────────────────

func TestCreateTask(t *testing.T) {
	t.Parallel()

	e := newEnv(t)
	w := e.do(t, "POST", "/tasks", e.tokenOne, `{"description":"Walk the dog"}`)
	require.Equal(t, http.StatusCreated, w.Code)

	var created models.Task
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &created))
	assert.Equal(t, "Walk the dog", created.Description)
	assert.False(t, created.Completed)
	assert.Equal(t, e.userOne, created.Owner)

	_, err := e.tasks.GetForOwner(context.Background(), created.ID, e.userOne)
	assert.NoError(t, err)
}

func TestCreateTaskValidation(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		body string
	}{
		{"empty description", `{"description":""}`},
		{"blank description", `{"description":"   "}`},
		{"non-boolean completed", `{"description":"Eat a banana","completed":"banana"}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			e := newEnv(t)
			w := e.do(t, "POST", "/tasks", e.tokenOne, tt.body)
			assert.Equal(t, http.StatusBadRequest, w.Code)
			assert.Len(t, e.tasks.tasks, 3)
		})
	}
}

func TestCreateTaskUnauthenticated(t *testing.T) {
	t.Parallel()

	e := newEnv(t)
	w := e.do(t, "POST", "/tasks", "", `{"description":"Walk the dog"}`)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Len(t, e.tasks.tasks, 3)
}

// ── list ─────────────────────────────────────────────────────

func TestListTasksScopedToOwner(t *testing.T) {
	t.Parallel()

	e := newEnv(t)
	assert.Len(t, listOf(t, e.do(t, "GET", "/tasks", e.tokenOne, "")), 2)
	assert.Len(t, listOf(t, e.do(t, "GET", "/tasks", e.tokenTwo, "")), 1)
}

func TestListTasksCompletedFilter(t *testing.T) {
	t.Parallel()

	e := newEnv(t)
	completed := listOf(t, e.do(t, "GET", "/tasks?completed=true", e.tokenOne, ""))
	require.Len(t, completed, 1)
	assert.True(t, completed[0].Completed)

	incomplete := listOf(t, e.do(t, "GET", "/tasks?completed=false", e.tokenOne, ""))
	require.Len(t, incomplete, 1)
	assert.False(t, incomplete[0].Completed)

	w := e.do(t, "GET", "/tasks?completed=banana", e.tokenOne, "")
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestListTasksPagination(t *testing.T) {
	t.Parallel()

	e := newEnv(t)
	assert.Len(t, listOf(t, e.do(t, "GET", "/tasks?skip=1", e.tokenOne, "")), 1)
	assert.Len(t, listOf(t, e.do(t, "GET", "/tasks?limit=1", e.tokenOne, "")), 1)
	assert.Empty(t, listOf(t, e.do(t, "GET", "/tasks?skip=5", e.tokenOne, "")))
}

func TestListTasksSort(t *testing.T) {
	t.Parallel()

	e := newEnv(t)
	tasks := listOf(t, e.do(t, "GET", "/tasks?sortBy=description:desc", e.tokenOne, ""))
	require.Len(t, tasks, 2)
	assert.Equal(t, "Second task", tasks[0].Description)

	w := e.do(t, "GET", "/tasks?sortBy=owner:asc", e.tokenOne, "")
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = e.do(t, "GET", "/tasks?sortBy=description:sideways", e.tokenOne, "")
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestListTasksEmpty(t *testing.T) {
	t.Parallel()

	e := newEnv(t)
	tasks := listOf(t, e.do(t, "GET", "/tasks?completed=true", e.tokenTwo, ""))
	assert.NotNil(t, tasks)
	assert.Empty(t, tasks)
}

// ── get ──────────────────────────────────────────────────────

func TestGetTask(t *testing.T) {
	t.Parallel()

	e := newEnv(t)
	w := e.do(t, "GET", "/tasks/"+e.taskOne.Hex(), e.tokenOne, "")
	require.Equal(t, http.StatusOK, w.Code)

	var got models.Task
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &got))
	assert.Equal(t, "First task", got.Description)
}

func TestGetTaskUnauthenticated(t *testing.T) {
	t.Parallel()

	e := newEnv(t)
	assert.Equal(t, http.StatusUnauthorized, e.do(t, "GET", "/tasks/"+e.taskOne.Hex(), "", "").Code)
}

// Cross-owner reads look exactly like missing tasks.
func TestGetTaskForeignOwner(t *testing.T) {
	t.Parallel()

	e := newEnv(t)
	foreign := e.do(t, "GET", "/tasks/"+e.taskOne.Hex(), e.tokenTwo, "")
	missing := e.do(t, "GET", "/tasks/"+primitive.NewObjectID().Hex(), e.tokenTwo, "")
	assert.Equal(t, http.StatusNotFound, foreign.Code)
	assert.Equal(t, http.StatusNotFound, missing.Code)
	assert.Equal(t, missing.Body.String(), foreign.Body.String())
}

// ── update ───────────────────────────────────────────────────

func TestUpdateTask(t *testing.T) {
	t.Parallel()

	e := newEnv(t)
	w := e.do(t, "PATCH", "/tasks/"+e.taskOne.Hex(), e.tokenOne, `{"completed":true}`)
	require.Equal(t, http.StatusOK, w.Code)

	updated, err := e.tasks.GetForOwner(context.Background(), e.taskOne, e.userOne)
	require.NoError(t, err)
	assert.True(t, updated.Completed)
}

func TestUpdateTaskValidation(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		body string
	}{
		{"non-boolean completed", `{"completed":"banana"}`},
		{"empty description", `{"description":""}`},
		{"unknown field", `{"owner":"someone-else"}`},
		{"empty body", `{}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			e := newEnv(t)
			w := e.do(t, "PATCH", "/tasks/"+e.taskOne.Hex(), e.tokenOne, tt.body)
			assert.Equal(t, http.StatusBadRequest, w.Code)

			task, err := e.tasks.GetForOwner(context.Background(), e.taskOne, e.userOne)
			require.NoError(t, err)
			assert.Equal(t, "First task", task.Description)
			assert.False(t, task.Completed)
		})
	}
}

func TestUpdateTaskForeignOwner(t *testing.T) {
	t.Parallel()

	e := newEnv(t)
	w := e.do(t, "PATCH", "/tasks/"+e.taskOne.Hex(), e.tokenTwo, `{"description":"Read a book"}`)
	assert.Equal(t, http.StatusNotFound, w.Code)

	task, err := e.tasks.GetForOwner(context.Background(), e.taskOne, e.userOne)
	require.NoError(t, err)
	assert.Equal(t, "First task", task.Description)
}

// ── delete ───────────────────────────────────────────────────

func TestDeleteTask(t *testing.T) {
	t.Parallel()

	e := newEnv(t)
	require.Equal(t, http.StatusOK, e.do(t, "DELETE", "/tasks/"+e.taskOne.Hex(), e.tokenOne, "").Code)

	_, err := e.tasks.GetForOwner(context.Background(), e.taskOne, e.userOne)
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestDeleteTaskUnauthenticated(t *testing.T) {
	t.Parallel()

	e := newEnv(t)
	assert.Equal(t, http.StatusUnauthorized, e.do(t, "DELETE", "/tasks/"+e.taskOne.Hex(), "", "").Code)

	_, err := e.tasks.GetForOwner(context.Background(), e.taskOne, e.userOne)
	assert.NoError(t, err)
}

func TestDeleteTaskForeignOwner(t *testing.T) {
	t.Parallel()

	e := newEnv(t)
	assert.Equal(t, http.StatusNotFound, e.do(t, "DELETE", "/tasks/"+e.taskOne.Hex(), e.tokenTwo, "").Code)

	_, err := e.tasks.GetForOwner(context.Background(), e.taskOne, e.userOne)
	assert.NoError(t, err)
}

func TestDeleteTaskMissing(t *testing.T) {
	t.Parallel()

	e := newEnv(t)
	assert.Equal(t, http.StatusNotFound, e.do(t, "DELETE", "/tasks/"+primitive.NewObjectID().Hex(), e.tokenOne, "").Code)
	assert.Equal(t, http.StatusNotFound, e.do(t, "DELETE", "/tasks/banana", e.tokenOne, "").Code)
}
