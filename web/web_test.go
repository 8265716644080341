package web

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"

	"gorm-helpers/config"
	"gorm-helpers/database"
	"gorm-helpers/query"
)

// widget はテスト用のモデル。
type widget struct {
	ID   uint   `gorm:"primaryKey"`
	Name string `gorm:"type:varchar(64);not null;uniqueIndex"`
}

func setupManager(t *testing.T) *database.Manager {
	t.Helper()

	db, err := database.Open(config.Settings{DatabaseURL: "sqlite::memory:"})
	if err != nil {
		t.Fatalf("failed to open database: %v", err)
	}
	if err := db.AutoMigrate(&widget{}); err != nil {
		t.Fatalf("failed to migrate: %v", err)
	}

	manager := database.NewManager(db, t.TempDir())
	manager.RegisterModels(&widget{})
	return manager
}

func TestSessions_CommitsOnSuccess(t *testing.T) {
	manager := setupManager(t)

	r := chi.NewRouter()
	r.Use(Sessions(manager))
	r.Post("/widgets/{name}", func(w http.ResponseWriter, r *http.Request) {
		session := Session(r.Context())
		if session == nil {
			t.Fatal("expected session in context")
		}
		if err := session.Create(&widget{Name: chi.URLParam(r, "name")}).Error; err != nil {
			t.Fatalf("failed to create widget: %v", err)
		}
		w.WriteHeader(http.StatusCreated)
	})

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/widgets/gear", nil))
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d", rec.Code)
	}

	// コミット済みなのでミドルウェア外からも見える
	var count int64
	if err := manager.DB().Model(&widget{}).Where("name = ?", "gear").Count(&count).Error; err != nil {
		t.Fatalf("failed to count widgets: %v", err)
	}
	if count != 1 {
		t.Errorf("expected 1 widget, got %d", count)
	}
}

func TestSessions_RollsBackOnPanic(t *testing.T) {
	manager := setupManager(t)

	r := chi.NewRouter()
	r.Use(Sessions(manager))
	r.Post("/boom", func(w http.ResponseWriter, r *http.Request) {
		session := Session(r.Context())
		if err := session.Create(&widget{Name: "doomed"}).Error; err != nil {
			t.Fatalf("failed to create widget: %v", err)
		}
		panic("handler exploded")
	})

	func() {
		defer func() {
			if p := recover(); p == nil {
				t.Error("expected panic to propagate")
			}
		}()
		rec := httptest.NewRecorder()
		r.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/boom", nil))
	}()

	// panic時はロールバックされる
	var count int64
	if err := manager.DB().Model(&widget{}).Where("name = ?", "doomed").Count(&count).Error; err != nil {
		t.Fatalf("failed to count widgets: %v", err)
	}
	if count != 0 {
		t.Errorf("expected rollback, got %d rows", count)
	}
}

// コミットに失敗した場合、未応答なら成功を偽らず500を返す
func TestSessions_CommitFailureReturns500(t *testing.T) {
	manager := setupManager(t)

	r := chi.NewRouter()
	r.Use(Sessions(manager))
	r.Post("/widgets", func(w http.ResponseWriter, r *http.Request) {
		// トランザクションを先に閉じてミドルウェアのコミットを失敗させる
		Session(r.Context()).Rollback()
	})

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/widgets", nil))
	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", rec.Code)
	}

	var body struct {
		Code string `json:"code"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("failed to decode error body: %v", err)
	}
	if body.Code != "database_unavailable" {
		t.Errorf("unexpected error code: %q", body.Code)
	}
}

func TestGetOr404(t *testing.T) {
	manager := setupManager(t)

	seed := widget{Name: "sprocket"}
	if err := manager.DB().Create(&seed).Error; err != nil {
		t.Fatalf("failed to seed widget: %v", err)
	}

	r := chi.NewRouter()
	r.Use(Sessions(manager))
	r.Get("/widgets/{id}", func(w http.ResponseWriter, r *http.Request) {
		obj, ok := GetOr404[widget](w, r, chi.URLParam(r, "id"), "widget not found")
		if !ok {
			return
		}
		fmt.Fprint(w, obj.Name)
	})

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, fmt.Sprintf("/widgets/%d", seed.ID), nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if rec.Body.String() != "sprocket" {
		t.Errorf("expected sprocket, got %q", rec.Body.String())
	}

	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/widgets/9999", nil))
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rec.Code)
	}

	var body struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("failed to decode error body: %v", err)
	}
	if body.Code != "not_found" || body.Message != "widget not found" {
		t.Errorf("unexpected error body: %+v", body)
	}
}

func TestFirstOr404(t *testing.T) {
	manager := setupManager(t)

	if err := manager.DB().Create(&widget{Name: "cog"}).Error; err != nil {
		t.Fatalf("failed to seed widget: %v", err)
	}

	r := chi.NewRouter()
	r.Use(Sessions(manager))
	r.Get("/widgets/by-name/{name}", func(w http.ResponseWriter, r *http.Request) {
		obj, ok := FirstOr404[widget](w, r, map[string]any{"name": chi.URLParam(r, "name")}, "")
		if !ok {
			return
		}
		fmt.Fprint(w, obj.Name)
	})

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/widgets/by-name/cog", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}

	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/widgets/by-name/missing", nil))
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rec.Code)
	}
}

func TestSession_OutsideMiddleware(t *testing.T) {
	if Session(context.Background()) != nil {
		t.Error("expected nil session outside the middleware")
	}
}

// queryパッケージとの結合: セッション経由のGetOrCreateがコミットされる
func TestSessions_WithGetOrCreate(t *testing.T) {
	manager := setupManager(t)

	r := chi.NewRouter()
	r.Use(Sessions(manager))
	r.Post("/widgets/{name}", func(w http.ResponseWriter, r *http.Request) {
		_, created, err := query.GetOrCreate[widget](r.Context(), Session(r.Context()),
			map[string]any{"name": chi.URLParam(r, "name")}, nil)
		if err != nil {
			t.Fatalf("GetOrCreate failed: %v", err)
		}
		if created {
			w.WriteHeader(http.StatusCreated)
			return
		}
		w.WriteHeader(http.StatusOK)
	})

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/widgets/bolt", nil))
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d", rec.Code)
	}

	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/widgets/bolt", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 on second call, got %d", rec.Code)
	}
}
