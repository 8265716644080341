package database

// SyncResult はSyncの実行結果を表す。
type SyncResult string

const (
	// SyncCreated はデータベースを新規作成（またはスタンプ）したことを表す。
	SyncCreated SyncResult = "created"
	// SyncUpgraded はスキーマをheadまで更新したことを表す。
	SyncUpgraded SyncResult = "upgraded"
	// SyncAlreadyUpToDate はスキーマが既に最新だったことを表す。
	SyncAlreadyUpToDate SyncResult = "already up-to-date"
)

// DatabaseStatus はデータベースの状態を表す。保存せず毎回再計算する。
type DatabaseStatus string

const (
	// StatusNoSchema はスキーマが存在しないことを表す。
	StatusNoSchema DatabaseStatus = "no schema"
	// StatusNoInfo はテーブルはあるがマイグレーション記録が無いことを表す。
	StatusNoInfo DatabaseStatus = "no migration info"
	// StatusUpgradeAvailable は未適用のリビジョンがあることを表す。
	StatusUpgradeAvailable DatabaseStatus = "upgrade available"
	// StatusUpToDate はスキーマがheadと一致していることを表す。
	StatusUpToDate DatabaseStatus = "up to date"
)
