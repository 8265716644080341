package example

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"

	"gorm-helpers/database"
	"gorm-helpers/pkg/httputil"
	"gorm-helpers/query"
	"gorm-helpers/web"
)

// Handler はユーザーAPIのHTTPハンドラを提供する。
type Handler struct{}

// NewRouter はユーザーAPIのルーターを生成する。
func NewRouter(manager *database.Manager) http.Handler {
	r := chi.NewRouter()

	// ミドルウェア
	r.Use(chimiddleware.Recoverer)
	r.Use(chimiddleware.RequestID)
	r.Use(web.Sessions(manager))

	h := &Handler{}

	// ルート定義
	r.Route("/v1/users", func(r chi.Router) {
		r.Post("/", h.CreateUser)
		r.Get("/{id}", h.GetUser)
		r.Get("/by-name/{name}", h.GetUserByName)
		r.Put("/{name}", h.UpsertUser)
	})

	return r
}

// UserResponse はユーザーのレスポンス形式。
type UserResponse struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	FullName string `json:"full_name"`
	Timezone string `json:"timezone"`
}

func toResponse(user *User) UserResponse {
	return UserResponse{
		ID:       user.ID,
		Name:     user.Name,
		FullName: user.FullName,
		Timezone: user.Timezone,
	}
}

// userRequest はユーザー作成・更新のリクエスト形式。
type userRequest struct {
	Name     string `json:"name"`
	FullName string `json:"full_name"`
	Timezone string `json:"timezone"`
}

// CreateUser はユーザーを取得または作成する。
func (h *Handler) CreateUser(w http.ResponseWriter, r *http.Request) {
	var req userRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Name == "" {
		httputil.Error(w, http.StatusBadRequest, "invalid_request", "name is required")
		return
	}

	// マップによるINSERTではgormのフックが実行されないため、主キーはここで生成する
	defaults := map[string]any{"id": uuid.New().String()}
	if req.FullName != "" {
		defaults["full_name"] = req.FullName
	}
	if req.Timezone != "" {
		defaults["timezone"] = req.Timezone
	}

	user, created, err := query.GetOrCreate[User](r.Context(), web.Session(r.Context()),
		map[string]any{"name": req.Name}, defaults)
	if err != nil {
		httputil.Error(w, http.StatusInternalServerError, "database_error", "failed to create user")
		return
	}

	status := http.StatusOK
	if created {
		status = http.StatusCreated
	}
	httputil.JSON(w, status, toResponse(user))
}

// GetUser は主キーでユーザーを取得する。
func (h *Handler) GetUser(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	user, ok := web.GetOr404[User](w, r, id, "user not found")
	if !ok {
		return
	}
	httputil.JSON(w, http.StatusOK, toResponse(user))
}

// GetUserByName は名前でユーザーを取得する。
func (h *Handler) GetUserByName(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")

	user, ok := web.FirstOr404[User](w, r, map[string]any{"name": name}, "user not found")
	if !ok {
		return
	}
	httputil.JSON(w, http.StatusOK, toResponse(user))
}

// UpsertUser はユーザーを作成または更新する。
func (h *Handler) UpsertUser(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")

	var req userRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httputil.Error(w, http.StatusBadRequest, "invalid_request", "request body is required")
		return
	}

	updates := map[string]any{}
	if req.FullName != "" {
		updates["full_name"] = req.FullName
	}
	if req.Timezone != "" {
		updates["timezone"] = req.Timezone
	}

	user, created, err := query.UpdateOrCreate[User](r.Context(), web.Session(r.Context()),
		map[string]any{"name": name},
		map[string]any{"id": uuid.New().String()},
		updates)
	if err != nil {
		httputil.Error(w, http.StatusInternalServerError, "database_error", "failed to upsert user")
		return
	}

	status := http.StatusOK
	if created {
		status = http.StatusCreated
	}
	httputil.JSON(w, status, toResponse(user))
}
