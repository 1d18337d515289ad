// Package repository はデータ永続化のインターフェースを定義する。
package repository

import (
	"context"
	"database/sql"

	"github.com/hitoshi/rostersync/internal/model"
)

// RosterRepository はロスターコレクションのUPSERTインターフェース。
// すべてのメソッドは呼び出し側が管理するトランザクション内で実行され、
// 戻り値のカウンターは実際に変更された行数ではなく処理した行数を表す。
type RosterRepository interface {
	// UpsertTeachers は教員レコードをexternal_idをキーにUPSERTする。
	UpsertTeachers(ctx context.Context, tx *sql.Tx, teachers []model.RosterTeacher) (int, error)

	// UpsertClasses はクラスレコードをexternal_idをキーにUPSERTする。
	UpsertClasses(ctx context.Context, tx *sql.Tx, classes []model.RosterClass) (int, error)

	// UpsertEnrollments は担当レコードを複合キーでUPSERTする。
	// 衝突時はroleを上書きする。
	UpsertEnrollments(ctx context.Context, tx *sql.Tx, enrollments []model.RosterEnrollment) (int, error)
}

// TeacherLinkRepository は既存教員とロスター教員の紐付けインターフェース。
// UPSERTと同一トランザクション内で実行される。
type TeacherLinkRepository interface {
	// LinkRosterTeachers はexternal_idが一致する教員にroster_source_idを設定し、
	// 紐付け統計を返す。値が実際に変わる行のみ更新する。
	LinkRosterTeachers(ctx context.Context, tx *sql.Tx) (model.LinkStats, error)
}

// SyncRunRepository は同期実行履歴の永続化インターフェース。
type SyncRunRepository interface {
	// Insert は実行レコードを追記する。レコードは書き込み後不変となる。
	Insert(ctx context.Context, run *model.SyncRun) error

	// FindLatest は最新の実行レコードを返す。履歴が存在しない場合はnilを返す。
	FindLatest(ctx context.Context) (*model.SyncRun, error)
}
