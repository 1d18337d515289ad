// Package app はアプリケーションの起動と依存関係のワイヤリングを提供する。
package app

import (
	"context"
	"database/sql"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/time/rate"

	"github.com/hitoshi/rostersync/internal/config"
	"github.com/hitoshi/rostersync/internal/database"
	"github.com/hitoshi/rostersync/internal/handler"
	"github.com/hitoshi/rostersync/internal/logger"
	"github.com/hitoshi/rostersync/internal/metrics"
	"github.com/hitoshi/rostersync/internal/middleware"
	"github.com/hitoshi/rostersync/internal/provider"
	"github.com/hitoshi/rostersync/internal/repository"
	"github.com/hitoshi/rostersync/internal/security"
	syncpkg "github.com/hitoshi/rostersync/internal/sync"
	"github.com/hitoshi/rostersync/internal/webhook"
)

// Init はアプリケーションの初期化を行う。
// 環境変数からConfigを読み込み、JSON構造化ログをセットアップする。
// writerが指定された場合はログ出力先としてそのwriterを使用する。
func Init(w io.Writer) (*config.Config, error) {
	// 1. ログの初期化（設定読み込み前にログを使えるようにする）
	logger.SetupDefault(w)

	// 2. 環境変数から設定を読み込む
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	return cfg, nil
}

// Run はアプリケーションのメインエントリーポイント。
// コマンドライン引数からサブコマンドを解析し、対応するモードで起動する。
// argsにはos.Args[1:]を渡す。
func Run(w io.Writer, args []string) error {
	cmd := ParseCommand(args)

	// healthcheck は軽量サブコマンドのため、フル初期化をスキップする
	if cmd == CommandHealthcheck {
		port := os.Getenv("SERVER_PORT")
		if port == "" {
			port = "7002"
		}
		return runHealthcheck(port)
	}

	cfg, err := Init(w)
	if err != nil {
		return fmt.Errorf("initialization failed: %w", err)
	}

	slog.Info("starting application",
		slog.String("command", string(cmd)),
		slog.String("port", cfg.ServerPort),
		slog.String("provider_base_url", cfg.ProviderBaseURL),
	)

	switch cmd {
	case CommandServe:
		return runServe(cfg)
	case CommandSync:
		return runSync(cfg)
	case CommandMigrate:
		return runMigrate(cfg)
	default:
		return runServe(cfg)
	}
}

// buildSyncService はDB接続から同期サービスまでの依存関係をワイヤリングする。
// notifierがnilの場合、完了イベントの配信は行われない。
func buildSyncService(
	cfg *config.Config,
	db *sql.DB,
	collector metrics.MetricsCollector,
	notifier *webhook.Notifier,
) *syncpkg.Service {
	client := provider.NewClient(provider.ClientConfig{
		BaseURL:           cfg.ProviderBaseURL,
		ClientID:          cfg.ProviderClientID,
		ClientSecret:      cfg.ProviderClientSecret,
		Scope:             cfg.ProviderScope,
		Timeout:           cfg.ProviderTimeout,
		TokenExpiryMargin: cfg.TokenExpiryMargin,
	})
	if collector != nil {
		client.TokenSourceRef().SetMetrics(collector)
	}

	rosterRepo := repository.NewPostgresRosterRepo(db)
	linkRepo := repository.NewPostgresTeacherLinkRepo(db)
	runRepo := repository.NewPostgresSyncRunRepo(db)

	var completionNotifier syncpkg.CompletionNotifier
	if notifier != nil {
		completionNotifier = notifier
	}

	return syncpkg.NewService(
		db, client, rosterRepo, linkRepo, runRepo,
		slog.Default(), collector, completionNotifier,
	)
}

// runServe はAPIサーバーモードで起動する。
// DB接続を開き、全依存関係をワイヤリングし、HTTPサーバーを起動する。
// SIGINTまたはSIGTERMシグナルを受信するとグレースフルシャットダウンを行う。
func runServe(cfg *config.Config) error {
	// 1. DB接続
	db, err := database.Open(cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer db.Close()

	if err := db.Ping(); err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}

	slog.Info("database connection established")

	// 2. メトリクスの初期化
	registry := prometheus.NewRegistry()
	collector := metrics.NewCollector(registry)

	// 3. Webhook通知の初期化（配信先URLは外部入力のためSSRFガード付きクライアントを使用）
	ssrfGuard := security.NewSSRFGuard()
	notifier := webhook.NewNotifier(
		ssrfGuard,
		ssrfGuard.NewSafeClient(cfg.WebhookTimeout),
		slog.Default(),
		collector,
	)

	// 4. 同期サービスのワイヤリング
	syncService := buildSyncService(cfg, db, collector, notifier)

	// 5. ルーターの構築
	rateLimiterCfg := middleware.DefaultRateLimiterConfig()
	if cfg.RateLimitGeneral > 0 {
		// configのRateLimitGeneralはreq/min単位なのでreq/secに変換する
		rateLimiterCfg.GeneralRate = rate.Limit(float64(cfg.RateLimitGeneral) / 60.0)
		rateLimiterCfg.GeneralBurst = cfg.RateLimitGeneral
	}
	rateLimiter := middleware.NewRateLimiter(rateLimiterCfg)
	defer rateLimiter.Stop()

	deps := &handler.RouterDeps{
		HealthChecker:     db,
		CORSAllowedOrigin: cfg.CORSAllowedOrigin,
		RateLimiter:       rateLimiter,
		AdminJWTSecret:    cfg.AdminJWTSecret,
		Logger:            slog.Default(),

		SyncService:     syncService,
		WebhookNotifier: notifier,

		Gatherer: registry,
	}

	router := handler.NewRouter(deps)

	// 6. HTTPサーバーの起動
	server := &http.Server{
		Addr:         ":" + cfg.ServerPort,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// グレースフルシャットダウンのためのシグナルハンドリング
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		slog.Info("API server starting",
			slog.String("addr", server.Addr),
		)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("server listen error", slog.String("error", err.Error()))
		}
	}()

	<-stop
	slog.Info("shutting down API server...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}

	slog.Info("API server stopped gracefully")
	return nil
}

// runSync は同期パイプラインを1回実行して終了する。
// cronや手動オペレーションからHTTPサーバーなしで実行するためのモード。
func runSync(cfg *config.Config) error {
	db, err := database.Open(cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer db.Close()

	if err := db.Ping(); err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}

	syncService := buildSyncService(cfg, db, nil, nil)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	run, err := syncService.Run(ctx)
	if err != nil {
		if run != nil {
			slog.Error("sync failed", slog.String("run_id", run.ID))
		}
		return fmt.Errorf("sync failed: %w", err)
	}

	slog.Info("sync completed",
		slog.String("run_id", run.ID),
		slog.Int("teachers_upserts", run.Summary.Counters.TeachersUpserts),
		slog.Int("classes_upserts", run.Summary.Counters.ClassesUpserts),
		slog.Int("enrollments_upserts", run.Summary.Counters.EnrollmentsUpserts),
	)
	return nil
}

// runMigrate はデータベースマイグレーションを実行する。
// すべての未適用マイグレーションを順番に適用する。
func runMigrate(cfg *config.Config) error {
	slog.Info("running database migrations",
		slog.String("database_url", maskDatabaseURL(cfg.DatabaseURL)),
	)

	if err := database.RunMigrations(cfg.DatabaseURL); err != nil {
		return fmt.Errorf("migration failed: %w", err)
	}

	slog.Info("database migrations completed successfully")
	return nil
}

// runHealthcheck はヘルスチェックを実行する。
// distroless環境でのDockerヘルスチェック用サブコマンド。
// /health エンドポイントにHTTPリクエストを送り、結果を返す。
func runHealthcheck(port string) error {
	url := fmt.Sprintf("http://localhost:%s/health", port)
	client := &http.Client{Timeout: 5 * time.Second}

	resp, err := client.Get(url)
	if err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("health check returned status %d", resp.StatusCode)
	}

	return nil
}

// maskDatabaseURL はデータベースURLの認証情報をマスクする。
func maskDatabaseURL(url string) string {
	if len(url) > 20 {
		return url[:12] + "***@..."
	}
	return "***"
}
