package query

import (
	"context"
	"errors"
	"testing"

	"gorm.io/gorm"

	"gorm-helpers/config"
	"gorm-helpers/database"
)

// testUser はテスト用のモデル。nameとemailにそれぞれ一意制約を持つ。
type testUser struct {
	ID       uint   `gorm:"primaryKey"`
	Name     string `gorm:"type:varchar(64);not null;uniqueIndex"`
	Email    string `gorm:"type:varchar(255);uniqueIndex"`
	FullName string `gorm:"type:varchar(255)"`
}

func (testUser) TableName() string {
	return "test_users"
}

func setupDB(t *testing.T) *gorm.DB {
	t.Helper()

	// TranslateErrorを有効にするためdatabase.Open経由で接続する
	db, err := database.Open(config.Settings{DatabaseURL: "sqlite::memory:"})
	if err != nil {
		t.Fatalf("failed to open database: %v", err)
	}
	if err := db.AutoMigrate(&testUser{}); err != nil {
		t.Fatalf("failed to migrate: %v", err)
	}
	return db
}

func TestGetOrCreate_CreatesThenFinds(t *testing.T) {
	ctx := context.Background()
	db := setupDB(t)

	lookup := map[string]any{"name": "alice"}

	user, created, err := GetOrCreate[testUser](ctx, db, lookup, nil)
	if err != nil {
		t.Fatalf("first GetOrCreate failed: %v", err)
	}
	if !created {
		t.Error("expected created=true on first call")
	}
	if user.Name != "alice" {
		t.Errorf("expected name alice, got %q", user.Name)
	}
	if user.ID == 0 {
		t.Error("expected primary key to be populated")
	}

	again, created, err := GetOrCreate[testUser](ctx, db, lookup, nil)
	if err != nil {
		t.Fatalf("second GetOrCreate failed: %v", err)
	}
	if created {
		t.Error("expected created=false on second call")
	}
	if again.ID != user.ID {
		t.Errorf("expected same primary key, got %d and %d", user.ID, again.ID)
	}
}

func TestGetOrCreate_DefaultsOnlyOnCreate(t *testing.T) {
	ctx := context.Background()
	db := setupDB(t)

	lookup := map[string]any{"name": "bob"}

	user, created, err := GetOrCreate[testUser](ctx, db, lookup, map[string]any{"full_name": "Bob Example"})
	if err != nil {
		t.Fatalf("GetOrCreate failed: %v", err)
	}
	if !created || user.FullName != "Bob Example" {
		t.Errorf("expected created with defaults, got created=%v full_name=%q", created, user.FullName)
	}

	// 既存行の取得ではdefaultsは適用されない
	user, created, err = GetOrCreate[testUser](ctx, db, lookup, map[string]any{"full_name": "Other"})
	if err != nil {
		t.Fatalf("GetOrCreate failed: %v", err)
	}
	if created {
		t.Error("expected created=false")
	}
	if user.FullName != "Bob Example" {
		t.Errorf("expected full_name unchanged, got %q", user.FullName)
	}
}

func TestCreateOnMiss_RecoversLostRace(t *testing.T) {
	ctx := context.Background()
	db := setupDB(t)

	// 初回取得と挿入の間に並行した呼び出しが行を作成した状況を再現する
	if err := db.Create(&testUser{Name: "carol"}).Error; err != nil {
		t.Fatalf("failed to seed row: %v", err)
	}

	user, created, err := createOnMiss[testUser](ctx, db,
		map[string]any{"name": "carol"}, map[string]any{"name": "carol"})
	if err != nil {
		t.Fatalf("expected race to be recovered, got %v", err)
	}
	if created {
		t.Error("expected created=false when losing the race")
	}
	if user.Name != "carol" {
		t.Errorf("expected existing row, got %q", user.Name)
	}
}

func TestGetOrCreate_ConflictEscalates(t *testing.T) {
	ctx := context.Background()
	db := setupDB(t)

	if err := db.Create(&testUser{Name: "dave", Email: "dave@example.com"}).Error; err != nil {
		t.Fatalf("failed to seed row: %v", err)
	}

	// lookupでは見つからないがemailの一意制約に違反する。リトライでも
	// 見つからないため二度目の失敗として扱われる
	_, _, err := GetOrCreate[testUser](ctx, db,
		map[string]any{"name": "eve"}, map[string]any{"email": "dave@example.com"})
	if !errors.Is(err, ErrConflict) {
		t.Errorf("expected ErrConflict, got %v", err)
	}
}

func TestUpdateOrCreate_UpdatesOnlyGivenFields(t *testing.T) {
	ctx := context.Background()
	db := setupDB(t)

	if err := db.Create(&testUser{Name: "frank", Email: "frank@example.com", FullName: "Frank"}).Error; err != nil {
		t.Fatalf("failed to seed row: %v", err)
	}

	user, created, err := UpdateOrCreate[testUser](ctx, db,
		map[string]any{"name": "frank"}, nil,
		map[string]any{"full_name": "Frank Updated"})
	if err != nil {
		t.Fatalf("UpdateOrCreate failed: %v", err)
	}
	if created {
		t.Error("expected created=false")
	}
	if user.FullName != "Frank Updated" {
		t.Errorf("expected full_name updated, got %q", user.FullName)
	}

	// updatesに無いフィールドは変更されない
	var reloaded testUser
	if err := db.Where("name = ?", "frank").First(&reloaded).Error; err != nil {
		t.Fatalf("failed to reload: %v", err)
	}
	if reloaded.Email != "frank@example.com" {
		t.Errorf("expected email untouched, got %q", reloaded.Email)
	}
	if reloaded.FullName != "Frank Updated" {
		t.Errorf("expected full_name persisted, got %q", reloaded.FullName)
	}
}

func TestUpdateOrCreate_CreatesOnMiss(t *testing.T) {
	ctx := context.Background()
	db := setupDB(t)

	user, created, err := UpdateOrCreate[testUser](ctx, db,
		map[string]any{"name": "grace"},
		map[string]any{"email": "grace@example.com"},
		map[string]any{"full_name": "Grace"})
	if err != nil {
		t.Fatalf("UpdateOrCreate failed: %v", err)
	}
	if !created {
		t.Error("expected created=true")
	}
	if user.Email != "grace@example.com" || user.FullName != "Grace" {
		t.Errorf("expected merged fields, got email=%q full_name=%q", user.Email, user.FullName)
	}
}

func TestGetByPK(t *testing.T) {
	ctx := context.Background()
	db := setupDB(t)

	seed := testUser{Name: "heidi"}
	if err := db.Create(&seed).Error; err != nil {
		t.Fatalf("failed to seed row: %v", err)
	}

	user, err := GetByPK[testUser](ctx, db, seed.ID)
	if err != nil {
		t.Fatalf("GetByPK failed: %v", err)
	}
	if user == nil || user.Name != "heidi" {
		t.Fatalf("expected heidi, got %+v", user)
	}

	// 見つからない場合はnilを返しエラーにはしない
	missing, err := GetByPK[testUser](ctx, db, uint(9999))
	if err != nil {
		t.Fatalf("GetByPK failed: %v", err)
	}
	if missing != nil {
		t.Errorf("expected nil for missing row, got %+v", missing)
	}
}

func TestGet_NotFound(t *testing.T) {
	ctx := context.Background()
	db := setupDB(t)

	user, err := Get[testUser](ctx, db, map[string]any{"name": "nobody"})
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if user != nil {
		t.Errorf("expected nil, got %+v", user)
	}
}
