// Package example はヘルパーの使い方を示すユーザーAPIの実装。
// ライブラリ本体からは参照されない。
package example

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// User はユーザーを表すモデル。
type User struct {
	ID        string    `gorm:"type:char(36);primaryKey"`
	Name      string    `gorm:"type:varchar(64);not null;unique"`
	FullName  string    `gorm:"type:varchar(255)"`
	Timezone  string    `gorm:"type:varchar(64);default:'UTC'"`
	CreatedAt time.Time `gorm:"not null;autoCreateTime"`
	UpdatedAt time.Time `gorm:"not null;autoUpdateTime"`
}

// TableName はテーブル名を指定。
func (User) TableName() string {
	return "users"
}

// BeforeCreate はレコード作成前にUUIDを生成する。
func (u *User) BeforeCreate(tx *gorm.DB) error {
	if u.ID == "" {
		u.ID = uuid.New().String()
	}
	return nil
}
