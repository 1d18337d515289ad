package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/hitoshi/rostersync/internal/model"
)

// PostgresSyncRunRepo はPostgreSQLを使用した同期実行履歴リポジトリ。
type PostgresSyncRunRepo struct {
	db *sql.DB
}

// NewPostgresSyncRunRepo はPostgresSyncRunRepoを生成する。
func NewPostgresSyncRunRepo(db *sql.DB) *PostgresSyncRunRepo {
	return &PostgresSyncRunRepo{db: db}
}

// Insert は実行レコードを追記する。summaryはJSONBとして永続化される。
// 失敗した実行のレコードはロールバック済みトランザクションの外で書き込まれるため、
// トランザクションを受け取らずプールの接続を直接使用する。
func (r *PostgresSyncRunRepo) Insert(ctx context.Context, run *model.SyncRun) error {
	summary, err := json.Marshal(run.Summary)
	if err != nil {
		return fmt.Errorf("実行要約のシリアライズに失敗しました: %w", err)
	}

	_, err = r.db.ExecContext(ctx,
		`INSERT INTO sync_runs (id, status, summary, started_at, finished_at)
		 VALUES ($1, $2, $3, $4, $5)`,
		run.ID, run.Status, summary, run.StartedAt, run.FinishedAt,
	)
	if err != nil {
		return fmt.Errorf("実行レコードの書き込みに失敗しました: %w", err)
	}
	return nil
}

// FindLatest は開始時刻が最新の実行レコードを返す。履歴が存在しない場合はnilを返す。
func (r *PostgresSyncRunRepo) FindLatest(ctx context.Context) (*model.SyncRun, error) {
	run := &model.SyncRun{}
	var summary []byte

	err := r.db.QueryRowContext(ctx,
		`SELECT id, status, summary, started_at, finished_at
		 FROM sync_runs
		 ORDER BY started_at DESC
		 LIMIT 1`,
	).Scan(&run.ID, &run.Status, &summary, &run.StartedAt, &run.FinishedAt)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("最新の実行レコードの取得に失敗しました: %w", err)
	}

	if err := json.Unmarshal(summary, &run.Summary); err != nil {
		return nil, fmt.Errorf("実行要約の解析に失敗しました: %w", err)
	}

	return run, nil
}

// compile-time interface check
var _ SyncRunRepository = (*PostgresSyncRunRepo)(nil)
