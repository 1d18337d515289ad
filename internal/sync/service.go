// Package sync はロスター同期パイプラインのオーケストレーションを提供する。
// トークン取得→ディスカバリー→フェッチ→UPSERT→紐付け→実行記録の
// 一連の流れを1つのトランザクション境界で制御する。
package sync

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/hitoshi/rostersync/internal/metrics"
	"github.com/hitoshi/rostersync/internal/model"
	"github.com/hitoshi/rostersync/internal/provider"
	"github.com/hitoshi/rostersync/internal/repository"
)

// RunState は同期実行のライフサイクル状態。
type RunState string

const (
	// StateIdle は実行中の同期がないことを示す。
	StateIdle RunState = "idle"
	// StateRunning はフェッチまたはUPSERTが進行中であることを示す。
	StateRunning RunState = "running"
	// StateCommitting はトランザクションのコミット中であることを示す。
	StateCommitting RunState = "committing"
)

// ProviderClient は同期サービスが必要とするプロバイダー操作のインターフェース。
type ProviderClient interface {
	// ResolveRosterBase はロスターAPIのベースURLを解決する。
	ResolveRosterBase(ctx context.Context) (string, error)
	// FetchRoster は3コレクションを並行取得する。
	FetchRoster(ctx context.Context, rosterBase string) (*provider.RosterData, error)
}

// CompletionNotifier は同期完了イベントの通知インターフェース。
type CompletionNotifier interface {
	Trigger(ctx context.Context, event string) []model.WebhookDeliveryResult
}

// Service はロスター同期パイプラインを実行するサービス。
// 実行はシングルフライトガードで保護され、重複起動はErrSyncInFlightで拒否される。
// トークンキャッシュと最終成功要約はこのオブジェクトが所有し、
// グローバル状態は持たない。
type Service struct {
	db         *sql.DB
	client     ProviderClient
	rosterRepo repository.RosterRepository
	linkRepo   repository.TeacherLinkRepository
	runRepo    repository.SyncRunRepository
	logger     *slog.Logger
	metrics    metrics.MetricsCollector
	notifier   CompletionNotifier

	mu          sync.Mutex
	state       RunState
	lastSummary *model.RunSummary
}

// NewService はServiceを生成する。metricsとnotifierはnilでもよい。
func NewService(
	db *sql.DB,
	client ProviderClient,
	rosterRepo repository.RosterRepository,
	linkRepo repository.TeacherLinkRepository,
	runRepo repository.SyncRunRepository,
	logger *slog.Logger,
	collector metrics.MetricsCollector,
	notifier CompletionNotifier,
) *Service {
	return &Service{
		db:         db,
		client:     client,
		rosterRepo: rosterRepo,
		linkRepo:   linkRepo,
		runRepo:    runRepo,
		logger:     logger,
		metrics:    collector,
		notifier:   notifier,
		state:      StateIdle,
	}
}

// State は現在の実行状態を返す。
func (s *Service) State() RunState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Run は同期パイプラインを1回実行する。
// 成功時はstatus=okの実行レコードを返す。パイプライン内のどこで失敗しても
// 永続化はロールバックされ、status=failedの実行レコードが
// ロールバック済みトランザクションの外でベストエフォートで書き込まれる。
// すでに実行中の場合はmodel.ErrSyncInFlightを返す。
func (s *Service) Run(ctx context.Context) (*model.SyncRun, error) {
	s.mu.Lock()
	if s.state != StateIdle {
		s.mu.Unlock()
		return nil, model.ErrSyncInFlight
	}
	s.state = StateRunning
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		s.state = StateIdle
		s.mu.Unlock()
	}()

	startedAt := time.Now().UTC()
	s.logger.Info("sync run started")

	summary, err := s.runPipeline(ctx)
	finishedAt := time.Now().UTC()
	summary.StartedAt = startedAt
	summary.FinishedAt = finishedAt

	if s.metrics != nil {
		s.metrics.RecordSyncDuration(finishedAt.Sub(startedAt))
	}

	if err != nil {
		stage := string(model.SyncStageOf(err))
		if s.metrics != nil {
			s.metrics.RecordSyncFailure(stage)
		}
		s.logger.Error("sync run failed",
			slog.String("stage", stage),
			slog.String("error", err.Error()),
		)
		run := s.recordFailedRun(ctx, summary, err)
		return run, err
	}

	run := &model.SyncRun{
		ID:         uuid.New().String(),
		Status:     model.SyncStatusOK,
		Summary:    summary,
		StartedAt:  startedAt,
		FinishedAt: finishedAt,
	}

	// 実行レコードの書き込み失敗はデータのコミットを取り消せないため、
	// ログに記録して成功として返す。status読み取りはインメモリの
	// 最終成功要約へデグレードできる。
	if recErr := s.runRepo.Insert(ctx, run); recErr != nil {
		s.logger.Error("failed to record successful run",
			slog.String("run_id", run.ID),
			slog.String("error", recErr.Error()),
		)
	}

	s.mu.Lock()
	summaryCopy := summary
	s.lastSummary = &summaryCopy
	s.mu.Unlock()

	if s.metrics != nil {
		s.metrics.RecordSyncSuccess()
	}
	s.logger.Info("sync run completed",
		slog.String("run_id", run.ID),
		slog.Int("teachers_upserts", summary.Counters.TeachersUpserts),
		slog.Int("classes_upserts", summary.Counters.ClassesUpserts),
		slog.Int("enrollments_upserts", summary.Counters.EnrollmentsUpserts),
		slog.Int("link_updated", summary.Link.Updated),
	)

	// 完了イベントの配信はベストエフォートで、同期のレスポンスをブロックしない
	if s.notifier != nil {
		go s.notifier.Trigger(context.WithoutCancel(ctx), "sync.completed")
	}

	return run, nil
}

// runPipeline はフェッチから紐付けまでのパイプライン本体を実行する。
// UPSERTと紐付けは1つのトランザクション内で実行され、
// 失敗時はロールバックして全テーブルへの影響をゼロにする。
func (s *Service) runPipeline(ctx context.Context) (model.RunSummary, error) {
	var summary model.RunSummary

	// 1. ディスカバリー（トークン取得を内包する）
	rosterBase, err := s.client.ResolveRosterBase(ctx)
	if err != nil {
		return summary, err
	}

	// 2. 3コレクションの並行フェッチ。書き込みはまだ始まらない
	data, err := s.client.FetchRoster(ctx, rosterBase)
	if err != nil {
		return summary, err
	}

	// 3. トランザクション開始。コミットかロールバックまで
	//    プールの接続を1本占有する
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return summary, model.NewSyncError(model.StageDB, fmt.Errorf("トランザクションの開始に失敗: %w", err))
	}
	committed := false
	defer func() {
		// すべての離脱経路で接続を解放する
		if !committed {
			if rbErr := tx.Rollback(); rbErr != nil && rbErr != sql.ErrTxDone {
				s.logger.Error("rollback failed", slog.String("error", rbErr.Error()))
			}
		}
	}()

	// 4. UPSERT: 教員 → クラス → 担当の順序（アプリケーション上の規約）
	summary.Counters.TeachersUpserts, err = s.rosterRepo.UpsertTeachers(ctx, tx, mapTeachers(data.Teachers))
	if err != nil {
		return summary, model.NewSyncError(model.StageDB, err)
	}
	summary.Counters.ClassesUpserts, err = s.rosterRepo.UpsertClasses(ctx, tx, mapClasses(data.Classes))
	if err != nil {
		return summary, model.NewSyncError(model.StageDB, err)
	}
	summary.Counters.EnrollmentsUpserts, err = s.rosterRepo.UpsertEnrollments(ctx, tx, mapEnrollments(data.Enrollments))
	if err != nil {
		return summary, model.NewSyncError(model.StageDB, err)
	}

	// 5. 紐付け。UPSERTと同一トランザクションで実行する
	summary.Link, err = s.linkRepo.LinkRosterTeachers(ctx, tx)
	if err != nil {
		return summary, model.NewSyncError(model.StageLink, err)
	}

	// 6. コミット
	s.mu.Lock()
	s.state = StateCommitting
	s.mu.Unlock()

	if err := tx.Commit(); err != nil {
		return summary, model.NewSyncError(model.StageDB, fmt.Errorf("コミットに失敗: %w", err))
	}
	committed = true

	if s.metrics != nil {
		s.metrics.RecordRowsUpserted(
			summary.Counters.TeachersUpserts +
				summary.Counters.ClassesUpserts +
				summary.Counters.EnrollmentsUpserts,
		)
	}

	return summary, nil
}

// recordFailedRun はstatus=failedの実行レコードをベストエフォートで書き込む。
// 記録自体の失敗は飲み込み、元のエラーを覆い隠さない。
// 元のctxがキャンセル済みでも記録できるようキャンセルを切り離す。
func (s *Service) recordFailedRun(ctx context.Context, summary model.RunSummary, runErr error) *model.SyncRun {
	summary.Error = runErr.Error()

	run := &model.SyncRun{
		ID:         uuid.New().String(),
		Status:     model.SyncStatusFailed,
		Summary:    summary,
		StartedAt:  summary.StartedAt,
		FinishedAt: summary.FinishedAt,
	}

	if err := s.runRepo.Insert(context.WithoutCancel(ctx), run); err != nil {
		s.logger.Error("failed to record failed run",
			slog.String("run_id", run.ID),
			slog.String("error", err.Error()),
		)
	}

	return run
}

// Status は最新の実行レコードを返す。
// 履歴が存在しない場合はstatus=none、読み取りに失敗した場合は
// status=unknownとインメモリの最終成功要約へデグレードし、
// 呼び出し側にエラーを伝播させない。
func (s *Service) Status(ctx context.Context) model.RunStatus {
	run, err := s.runRepo.FindLatest(ctx)
	if err != nil {
		s.logger.Error("failed to read latest run", slog.String("error", err.Error()))

		s.mu.Lock()
		last := s.lastSummary
		s.mu.Unlock()

		return model.RunStatus{
			Status:      model.SyncStatusUnknown,
			Error:       err.Error(),
			LastSummary: last,
		}
	}

	if run == nil {
		return model.RunStatus{Status: model.SyncStatusNone}
	}

	return model.RunStatus{
		Status: run.Status,
		Run:    run,
	}
}

// mapTeachers はプロバイダーのユーザーレコードをドメインモデルに変換する。
func mapTeachers(users []provider.RosterUser) []model.RosterTeacher {
	teachers := make([]model.RosterTeacher, 0, len(users))
	for _, u := range users {
		orgID := ""
		if len(u.OrgSourcedIDs) > 0 {
			orgID = u.OrgSourcedIDs[0]
		}
		teachers = append(teachers, model.RosterTeacher{
			ExternalID:    u.SourcedID,
			Username:      u.Username,
			FirstName:     u.GivenName,
			LastName:      u.FamilyName,
			OrgExternalID: orgID,
		})
	}
	return teachers
}

// mapClasses はプロバイダーのクラスレコードをドメインモデルに変換する。
// 複数タームが宣言されている場合は先頭を採用する。
func mapClasses(records []provider.RosterClassRecord) []model.RosterClass {
	classes := make([]model.RosterClass, 0, len(records))
	for _, r := range records {
		term := ""
		if len(r.Terms) > 0 {
			term = r.Terms[0]
		}
		classes = append(classes, model.RosterClass{
			ExternalID:       r.SourcedID,
			Title:            r.Title,
			SchoolExternalID: r.SchoolSourcedID,
			Term:             term,
		})
	}
	return classes
}

// mapEnrollments はプロバイダーの担当レコードをドメインモデルに変換する。
func mapEnrollments(records []provider.RosterEnrollmentRecord) []model.RosterEnrollment {
	enrollments := make([]model.RosterEnrollment, 0, len(records))
	for _, r := range records {
		enrollments = append(enrollments, model.RosterEnrollment{
			TeacherExternalID: r.UserSourcedID,
			ClassExternalID:   r.ClassSourcedID,
			Role:              r.Role,
		})
	}
	return enrollments
}
