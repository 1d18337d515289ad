// Package webhook は変更イベントの購読管理と通知配信を提供する。
package webhook

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/hitoshi/rostersync/internal/metrics"
	"github.com/hitoshi/rostersync/internal/model"
	"github.com/hitoshi/rostersync/internal/security"
)

// Notifier はWebhook購読のインメモリストアと通知配信を提供する。
// 購読はプロセス再起動で失われる（意図した非永続性）。
// ミューテックスで保護された明示的なサービスオブジェクトであり、
// グローバル状態は持たない。
type Notifier struct {
	guard      security.SSRFGuardService
	httpClient *http.Client
	logger     *slog.Logger
	metrics    metrics.MetricsCollector

	mu   sync.RWMutex
	subs map[string]*model.WebhookSubscription
}

// NewNotifier はNotifierを生成する。
// httpClientには配信先URLが外部入力であることから、
// SSRF防止機能付きのクライアントを渡すこと。metricsはnilでもよい。
func NewNotifier(
	guard security.SSRFGuardService,
	httpClient *http.Client,
	logger *slog.Logger,
	collector metrics.MetricsCollector,
) *Notifier {
	return &Notifier{
		guard:      guard,
		httpClient: httpClient,
		logger:     logger,
		metrics:    collector,
		subs:       make(map[string]*model.WebhookSubscription),
	}
}

// Subscribe は購読を登録する。URLはSSRFガードで事前検証される。
func (n *Notifier) Subscribe(url string, events []string) (*model.WebhookSubscription, error) {
	if err := n.guard.ValidateURL(url); err != nil {
		return nil, err
	}
	if len(events) == 0 {
		events = []string{"sync.completed"}
	}

	sub := &model.WebhookSubscription{
		ID:        uuid.New().String(),
		URL:       url,
		Events:    events,
		CreatedAt: time.Now().UTC(),
	}

	n.mu.Lock()
	n.subs[sub.ID] = sub
	n.mu.Unlock()

	n.logger.Info("webhook subscription registered",
		slog.String("subscription_id", sub.ID),
		slog.String("url", url),
	)

	return sub, nil
}

// Subscriptions は登録済みの購読一覧を作成時刻順で返す。
func (n *Notifier) Subscriptions() []*model.WebhookSubscription {
	n.mu.RLock()
	defer n.mu.RUnlock()

	subs := make([]*model.WebhookSubscription, 0, len(n.subs))
	for _, s := range n.subs {
		subs = append(subs, s)
	}
	sort.Slice(subs, func(i, j int) bool {
		return subs[i].CreatedAt.Before(subs[j].CreatedAt)
	})
	return subs
}

// webhookPayload は配信するPOSTボディ。
type webhookPayload struct {
	Event     string    `json:"event"`
	Timestamp time.Time `json:"timestamp"`
}

// Trigger はイベントを対象とするすべての購読へ順次POSTを配信し、
// 購読ごとの結果を返す。リトライやバックオフは行わず、
// 配信失敗は結果に記録されるだけで呼び出し側へエラーとして伝播しない。
func (n *Notifier) Trigger(ctx context.Context, event string) []model.WebhookDeliveryResult {
	n.mu.RLock()
	targets := make([]*model.WebhookSubscription, 0, len(n.subs))
	for _, s := range n.subs {
		if s.WantsEvent(event) {
			targets = append(targets, s)
		}
	}
	n.mu.RUnlock()

	sort.Slice(targets, func(i, j int) bool {
		return targets[i].CreatedAt.Before(targets[j].CreatedAt)
	})

	results := make([]model.WebhookDeliveryResult, 0, len(targets))
	for _, sub := range targets {
		results = append(results, n.deliver(ctx, sub, event))
	}

	return results
}

// deliver は単一の購読へ通知をPOSTする。
func (n *Notifier) deliver(ctx context.Context, sub *model.WebhookSubscription, event string) model.WebhookDeliveryResult {
	result := model.WebhookDeliveryResult{
		SubscriptionID: sub.ID,
		URL:            sub.URL,
	}

	body, err := json.Marshal(webhookPayload{
		Event:     event,
		Timestamp: time.Now().UTC(),
	})
	if err != nil {
		result.Status = model.DeliveryError
		result.Error = err.Error()
		return result
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, sub.URL, bytes.NewReader(body))
	if err != nil {
		result.Status = model.DeliveryError
		result.Error = err.Error()
		return result
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := n.httpClient.Do(req)
	if err != nil {
		result.Status = model.DeliveryError
		result.Error = err.Error()
		n.recordDelivery(result.Status)
		n.logger.Warn("webhook delivery error",
			slog.String("subscription_id", sub.ID),
			slog.String("url", sub.URL),
			slog.String("error", err.Error()),
		)
		return result
	}
	defer resp.Body.Close()

	result.StatusCode = resp.StatusCode
	if resp.StatusCode >= 200 && resp.StatusCode <= 299 {
		result.Status = model.DeliveryDelivered
	} else {
		result.Status = model.DeliveryFailed
	}
	n.recordDelivery(result.Status)

	n.logger.Info("webhook delivered",
		slog.String("subscription_id", sub.ID),
		slog.String("url", sub.URL),
		slog.String("status", result.Status),
		slog.Int("status_code", resp.StatusCode),
	)

	return result
}

func (n *Notifier) recordDelivery(status string) {
	if n.metrics != nil {
		n.metrics.RecordWebhookDelivery(status)
	}
}
