// Package metrics はPrometheusメトリクスの収集と公開を提供する。
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// MetricsCollector はメトリクス収集のインターフェース。
// 同期サービスとWebhook通知から利用する。
type MetricsCollector interface {
	RecordSyncSuccess()
	RecordSyncFailure(stage string)
	RecordSyncDuration(duration time.Duration)
	RecordRowsUpserted(count int)
	RecordTokenRefresh()
	RecordWebhookDelivery(status string)
}

// Collector はPrometheusメトリクスを収集する実装。
type Collector struct {
	syncSuccess     prometheus.Counter
	syncFail        *prometheus.CounterVec
	syncDuration    prometheus.Histogram
	rowsUpserted    prometheus.Counter
	tokenRefresh    prometheus.Counter
	webhookDelivery *prometheus.CounterVec
}

// NewCollector は新しいCollectorを生成し、指定されたレジストリにメトリクスを登録する。
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		syncSuccess: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "rostersync_sync_success_total",
			Help: "同期実行成功の合計数",
		}),
		syncFail: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "rostersync_sync_fail_total",
			Help: "失敗段階別の同期実行失敗数",
		}, []string{"stage"}),
		syncDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "rostersync_sync_duration_seconds",
			Help:    "同期実行の所要時間（秒）",
			Buckets: prometheus.DefBuckets,
		}),
		rowsUpserted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "rostersync_rows_upserted_total",
			Help: "UPSERTで処理した行の合計数",
		}),
		tokenRefresh: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "rostersync_token_refresh_total",
			Help: "アクセストークン再取得の合計数",
		}),
		webhookDelivery: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "rostersync_webhook_delivery_total",
			Help: "結果ステータス別のWebhook配信数",
		}, []string{"status"}),
	}

	reg.MustRegister(
		c.syncSuccess,
		c.syncFail,
		c.syncDuration,
		c.rowsUpserted,
		c.tokenRefresh,
		c.webhookDelivery,
	)

	return c
}

// RecordSyncSuccess は同期成功を記録する。
func (c *Collector) RecordSyncSuccess() {
	c.syncSuccess.Inc()
}

// RecordSyncFailure は同期失敗を失敗段階とともに記録する。
func (c *Collector) RecordSyncFailure(stage string) {
	c.syncFail.WithLabelValues(stage).Inc()
}

// RecordSyncDuration は同期実行の所要時間を記録する。
func (c *Collector) RecordSyncDuration(duration time.Duration) {
	c.syncDuration.Observe(duration.Seconds())
}

// RecordRowsUpserted はUPSERTで処理した行数を記録する。
func (c *Collector) RecordRowsUpserted(count int) {
	c.rowsUpserted.Add(float64(count))
}

// RecordTokenRefresh はアクセストークンの再取得を記録する。
func (c *Collector) RecordTokenRefresh() {
	c.tokenRefresh.Inc()
}

// RecordWebhookDelivery はWebhook配信の結果を記録する。
func (c *Collector) RecordWebhookDelivery(status string) {
	c.webhookDelivery.WithLabelValues(status).Inc()
}

// Handler はPrometheusスクレイプ用のHTTPハンドラーを返す。
func Handler(gatherer prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}

// compile-time interface check
var _ MetricsCollector = (*Collector)(nil)
