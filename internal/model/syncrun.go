package model

import "time"

// 同期実行のステータス。
const (
	// SyncStatusOK は同期が正常に完了したことを示す。
	SyncStatusOK = "ok"
	// SyncStatusFailed は同期が失敗しロールバックされたことを示す。
	SyncStatusFailed = "failed"
	// SyncStatusNone は同期実行履歴が存在しないことを示す。
	SyncStatusNone = "none"
	// SyncStatusUnknown は履歴の読み取りに失敗し状態が不明なことを示す。
	SyncStatusUnknown = "unknown"
)

// UpsertCounters は同期実行で処理した行数のカウンター。
// 実際に変更された行数ではなく、処理対象となった行数を数える。
type UpsertCounters struct {
	TeachersUpserts    int `json:"teachersUpserts"`
	ClassesUpserts     int `json:"classesUpserts"`
	EnrollmentsUpserts int `json:"enrollmentsUpserts"`
}

// LinkStats は紐付け処理の統計。
type LinkStats struct {
	// TotalMatches はexternal_idが一致した(teacher, roster_teacher)ペアの数。
	TotalMatches int `json:"totalMatches"`
	// Updated は今回の実行でroster_source_idが実際に書き換わった教員数。
	Updated int `json:"updated"`
	// AlreadyLinked は一致したが既に正しく紐付いていた教員数。
	AlreadyLinked int `json:"alreadyLinked"`
	// NowLinked はテーブル全体でroster_source_idが設定済みの教員総数。
	NowLinked int `json:"nowLinked"`
}

// RunSummary は1回の同期実行の要約。sync_runsのsummary列にJSONで永続化される。
type RunSummary struct {
	Counters   UpsertCounters `json:"counters"`
	Link       LinkStats      `json:"link"`
	StartedAt  time.Time      `json:"startedAt"`
	FinishedAt time.Time      `json:"finishedAt"`
	Error      string         `json:"error,omitempty"`
}

// SyncRun は同期実行の履歴レコード。書き込み後は不変で、追記専用の履歴となる。
// 失敗した実行の「修正」は新しい実行として記録する。
type SyncRun struct {
	ID         string
	Status     string
	Summary    RunSummary
	StartedAt  time.Time
	FinishedAt time.Time
}

// RunStatus は/internal/sync/statusが返す読み取り結果。
// 履歴が存在しない場合はstatus=none、読み取りに失敗した場合は
// status=unknownとなり、最後に成功した実行の要約にデグレードする。
type RunStatus struct {
	Status      string      `json:"status"`
	Run         *SyncRun    `json:"run,omitempty"`
	Error       string      `json:"error,omitempty"`
	LastSummary *RunSummary `json:"lastSummary,omitempty"`
}
