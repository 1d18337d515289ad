package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/hitoshi/rostersync/internal/model"
)

// PostgresTeacherLinkRepo は評価ドメインのteachersテーブルと
// roster_teachersの紐付けを行うリポジトリ。
// teachersテーブルはevaluationサービスが所有しており、
// このサブシステムが書き込むのはroster_source_id列のみ。
type PostgresTeacherLinkRepo struct {
	db *sql.DB
}

// NewPostgresTeacherLinkRepo はPostgresTeacherLinkRepoを生成する。
func NewPostgresTeacherLinkRepo(db *sql.DB) *PostgresTeacherLinkRepo {
	return &PostgresTeacherLinkRepo{db: db}
}

// LinkRosterTeachers はexternal_idが一致する(teacher, roster_teacher)ペアを集計し、
// roster_source_idが変わる行のみ更新して紐付け統計を返す。
// 値が同じ行を更新しないことで不要な書き込みとタイムスタンプの揺れを防ぐ。
func (r *PostgresTeacherLinkRepo) LinkRosterTeachers(ctx context.Context, tx *sql.Tx) (model.LinkStats, error) {
	var stats model.LinkStats

	// 1) external_id一致ペアの総数
	err := tx.QueryRowContext(ctx,
		`SELECT COUNT(*)::int
		 FROM teachers t
		 JOIN roster_teachers rt
		   ON t.external_id IS NOT NULL
		  AND rt.external_id IS NOT NULL
		  AND t.external_id = rt.external_id`,
	).Scan(&stats.TotalMatches)
	if err != nil {
		return stats, fmt.Errorf("紐付け候補の集計に失敗しました: %w", err)
	}

	// 2) 値が実際に変わる行のみ更新（NULLをIS DISTINCT FROMで扱う）
	res, err := tx.ExecContext(ctx,
		`WITH matches AS (
		    SELECT t.id AS teacher_id, rt.id AS roster_id
		    FROM teachers t
		    JOIN roster_teachers rt
		      ON t.external_id IS NOT NULL
		     AND rt.external_id IS NOT NULL
		     AND t.external_id = rt.external_id
		 )
		 UPDATE teachers t
		 SET roster_source_id = (m.roster_id)::text
		 FROM matches m
		 WHERE t.id = m.teacher_id
		   AND t.roster_source_id IS DISTINCT FROM (m.roster_id)::text`,
	)
	if err != nil {
		return stats, fmt.Errorf("roster_source_idの更新に失敗しました: %w", err)
	}
	updated, err := res.RowsAffected()
	if err != nil {
		return stats, fmt.Errorf("更新行数の取得に失敗しました: %w", err)
	}
	stats.Updated = int(updated)

	// 3) テーブル全体で紐付け済みの教員総数
	err = tx.QueryRowContext(ctx,
		`SELECT COUNT(*)::int FROM teachers WHERE roster_source_id IS NOT NULL`,
	).Scan(&stats.NowLinked)
	if err != nil {
		return stats, fmt.Errorf("紐付け済み教員数の集計に失敗しました: %w", err)
	}

	// 4) 一致したが既に正しく紐付いていた数
	stats.AlreadyLinked = clampAlreadyLinked(stats.TotalMatches, stats.Updated)

	return stats, nil
}

// clampAlreadyLinked は一致数から更新数を引いた値を負にならないように返す。
func clampAlreadyLinked(totalMatches, updated int) int {
	already := totalMatches - updated
	if already < 0 {
		return 0
	}
	return already
}

// compile-time interface check
var _ TeacherLinkRepository = (*PostgresTeacherLinkRepo)(nil)
