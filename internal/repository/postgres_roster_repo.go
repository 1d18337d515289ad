package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"github.com/hitoshi/rostersync/internal/model"
)

// PostgresRosterRepo はPostgreSQLを使用したロスターリポジトリ。
type PostgresRosterRepo struct {
	db *sql.DB
}

// NewPostgresRosterRepo はPostgresRosterRepoを生成する。
func NewPostgresRosterRepo(db *sql.DB) *PostgresRosterRepo {
	return &PostgresRosterRepo{db: db}
}

// UpsertTeachers は教員レコードをexternal_idをキーにUPSERTする。
// 既存行の場合は可変フィールドをすべて上書きし、updated_atを更新する。
func (r *PostgresRosterRepo) UpsertTeachers(ctx context.Context, tx *sql.Tx, teachers []model.RosterTeacher) (int, error) {
	processed := 0
	for _, t := range teachers {
		_, err := tx.ExecContext(ctx,
			`INSERT INTO roster_teachers (id, external_id, username, first_name, last_name, org_external_id, created_at, updated_at)
			 VALUES ($1, $2, $3, $4, $5, $6, now(), now())
			 ON CONFLICT (external_id) DO UPDATE SET
			    username = EXCLUDED.username,
			    first_name = EXCLUDED.first_name,
			    last_name = EXCLUDED.last_name,
			    org_external_id = EXCLUDED.org_external_id,
			    updated_at = now()`,
			uuid.New().String(), t.ExternalID, t.Username, t.FirstName, t.LastName, t.OrgExternalID,
		)
		if err != nil {
			return processed, fmt.Errorf("教員レコードのUPSERTに失敗しました (%s): %w", t.ExternalID, describePQError(err))
		}
		processed++
	}
	return processed, nil
}

// UpsertClasses はクラスレコードをexternal_idをキーにUPSERTする。
func (r *PostgresRosterRepo) UpsertClasses(ctx context.Context, tx *sql.Tx, classes []model.RosterClass) (int, error) {
	processed := 0
	for _, c := range classes {
		_, err := tx.ExecContext(ctx,
			`INSERT INTO roster_classes (id, external_id, title, school_external_id, term, created_at, updated_at)
			 VALUES ($1, $2, $3, $4, $5, now(), now())
			 ON CONFLICT (external_id) DO UPDATE SET
			    title = EXCLUDED.title,
			    school_external_id = EXCLUDED.school_external_id,
			    term = EXCLUDED.term,
			    updated_at = now()`,
			uuid.New().String(), c.ExternalID, c.Title, c.SchoolExternalID, c.Term,
		)
		if err != nil {
			return processed, fmt.Errorf("クラスレコードのUPSERTに失敗しました (%s): %w", c.ExternalID, describePQError(err))
		}
		processed++
	}
	return processed, nil
}

// UpsertEnrollments は担当レコードを(teacher_external_id, class_external_id)の
// 複合キーでUPSERTする。衝突時はroleを上書きする。
func (r *PostgresRosterRepo) UpsertEnrollments(ctx context.Context, tx *sql.Tx, enrollments []model.RosterEnrollment) (int, error) {
	processed := 0
	for _, e := range enrollments {
		_, err := tx.ExecContext(ctx,
			`INSERT INTO roster_teacher_class_enrollments (teacher_external_id, class_external_id, role, created_at, updated_at)
			 VALUES ($1, $2, $3, now(), now())
			 ON CONFLICT (teacher_external_id, class_external_id) DO UPDATE SET
			    role = EXCLUDED.role,
			    updated_at = now()`,
			e.TeacherExternalID, e.ClassExternalID, e.Role,
		)
		if err != nil {
			return processed, fmt.Errorf("担当レコードのUPSERTに失敗しました (%s/%s): %w",
				e.TeacherExternalID, e.ClassExternalID, describePQError(err))
		}
		processed++
	}
	return processed, nil
}

// describePQError はPostgreSQLエラーに制約名とエラーコード名を付与する。
// 制約違反のトラブルシュートでどの一意制約に当たったかを判別できるようにする。
func describePQError(err error) error {
	if pqErr, ok := err.(*pq.Error); ok {
		if pqErr.Constraint != "" {
			return fmt.Errorf("%s (constraint=%s): %w", pqErr.Code.Name(), pqErr.Constraint, err)
		}
		return fmt.Errorf("%s: %w", pqErr.Code.Name(), err)
	}
	return err
}

// compile-time interface check
var _ RosterRepository = (*PostgresRosterRepo)(nil)
