package database

import (
	"fmt"

	"gorm.io/gorm/schema"
)

// NamingStrategy は制約・インデックス名を固定テンプレートで生成する。
// 自動生成されるマイグレーションの差分が環境間で安定するよう、
// 以下の規約に従う。
//
//	インデックス:   ix_{テーブル}_{カラム}
//	一意制約:       uq_{テーブル}_{カラム}
//	チェック制約:   ck_{テーブル}_{制約名}
//	外部キー:       fk_{テーブル}_{カラム}_{参照先テーブル}
//	主キー:         pk_{テーブル}（gormは主キー制約に名前を付けないため、
//	                手書きマイグレーションでの規約として使う）
//
// テーブル名・カラム名の変換はgorm標準のNamingStrategyに委譲する。
type NamingStrategy struct {
	schema.NamingStrategy
}

// NewNamingStrategy は新しいNamingStrategyを生成する。
func NewNamingStrategy() NamingStrategy {
	return NamingStrategy{
		NamingStrategy: schema.NamingStrategy{IdentifierMaxLength: 64},
	}
}

// IndexName はインデックス名を生成する。
func (ns NamingStrategy) IndexName(table, column string) string {
	return fmt.Sprintf("ix_%s_%s", table, ns.ColumnName(table, column))
}

// UniqueName は一意制約名を生成する。
func (ns NamingStrategy) UniqueName(table, column string) string {
	return fmt.Sprintf("uq_%s_%s", table, ns.ColumnName(table, column))
}

// CheckerName はチェック制約名を生成する。
func (ns NamingStrategy) CheckerName(table, column string) string {
	return fmt.Sprintf("ck_%s_%s", table, column)
}

// RelationshipFKName は外部キー制約名を生成する。
func (ns NamingStrategy) RelationshipFKName(rel schema.Relationship) string {
	table := rel.Schema.Table
	referred := rel.FieldSchema.Table
	column := ""
	if len(rel.References) > 0 {
		ref := rel.References[0]
		column = ref.ForeignKey.DBName
		table = ref.ForeignKey.Schema.Table
		referred = ref.PrimaryKey.Schema.Table
	}
	return fmt.Sprintf("fk_%s_%s_%s", table, column, referred)
}
