package handler

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/hitoshi/rostersync/internal/metrics"
	"github.com/hitoshi/rostersync/internal/middleware"
)

// RouterDeps はNewRouterに必要な依存関係をまとめた構造体。
type RouterDeps struct {
	// ミドルウェア依存
	HealthChecker     HealthChecker
	CORSAllowedOrigin string
	RateLimiter       *middleware.RateLimiter
	AdminJWTSecret    string
	Logger            *slog.Logger

	// 同期
	SyncService SyncServiceInterface

	// Webhook
	WebhookNotifier WebhookNotifierInterface

	// メトリクス
	Gatherer prometheus.Gatherer
}

// NewRouter は全APIエンドポイントのルーティングとミドルウェアチェーンを構成したchi.Routerを返す。
//
// ミドルウェアスタックの実行順序:
//
//	Recovery → CORS → Logging → RateLimit
//
// /internal/* はプライベートネットワーク内からのみ到達する前提の面で、
// /secure/* はそれに加えて管理者JWTをアプリケーションレベルで検証する。
func NewRouter(deps *RouterDeps) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.NewRecoveryMiddleware())
	r.Use(middleware.NewCORSMiddleware(deps.CORSAllowedOrigin))
	if deps.Logger != nil {
		r.Use(middleware.NewLoggingMiddleware(deps.Logger))
	}

	healthHandler := NewHealthHandler(deps.HealthChecker)
	syncHandler := NewSyncHandler(deps.SyncService)
	webhookHandler := NewWebhookHandler(deps.WebhookNotifier)

	// --- 運用エンドポイント ---
	r.Get("/health", healthHandler.Health)
	if deps.Gatherer != nil {
		r.Method(http.MethodGet, "/metrics", metrics.Handler(deps.Gatherer))
	}

	// --- レート制限付きのAPIルート ---
	r.Group(func(r chi.Router) {
		if deps.RateLimiter != nil {
			r.Use(deps.RateLimiter.Middleware())
		}

		// 内部トリガー面（プライベートネットワーク前提）
		r.Route("/internal/sync", func(r chi.Router) {
			r.Post("/run", syncHandler.RunSync)
			r.Get("/status", syncHandler.GetStatus)
		})

		// 管理者面: JWTのrole=adminを検証してから内部トリガーに委譲する
		r.Route("/secure/sync", func(r chi.Router) {
			r.Use(middleware.NewAdminAuthMiddleware(deps.AdminJWTSecret))
			r.Post("/run", syncHandler.RunSync)
			r.Get("/status", syncHandler.GetStatus)
		})

		// Webhook購読管理
		r.Route("/webhooks", func(r chi.Router) {
			r.Post("/subscribe", webhookHandler.Subscribe)
			r.Get("/subscriptions", webhookHandler.ListSubscriptions)
			r.Post("/trigger", webhookHandler.Trigger)
		})
	})

	return r
}
