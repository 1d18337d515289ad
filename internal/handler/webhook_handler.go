package handler

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/hitoshi/rostersync/internal/model"
)

// WebhookNotifierInterface はWebhookハンドラーが必要とするサービスインターフェース。
type WebhookNotifierInterface interface {
	// Subscribe は購読を登録する。URLが危険な場合はエラーを返す。
	Subscribe(url string, events []string) (*model.WebhookSubscription, error)
	// Subscriptions は登録済みの購読一覧を返す。
	Subscriptions() []*model.WebhookSubscription
	// Trigger はイベントを対象とする購読へ通知を配信し、購読ごとの結果を返す。
	Trigger(ctx context.Context, event string) []model.WebhookDeliveryResult
}

// WebhookHandler はWebhook購読管理のHTTPハンドラー。
type WebhookHandler struct {
	notifier WebhookNotifierInterface
}

// NewWebhookHandler はWebhookHandlerを生成する。
func NewWebhookHandler(notifier WebhookNotifierInterface) *WebhookHandler {
	return &WebhookHandler{notifier: notifier}
}

// subscribeRequest は購読登録リクエストのボディ。
type subscribeRequest struct {
	URL    string   `json:"url"`
	Events []string `json:"events"`
}

// Subscribe はWebhook購読を登録する。
// POST /webhooks/subscribe
func (h *WebhookHandler) Subscribe(w http.ResponseWriter, r *http.Request) {
	var req subscribeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeAPIErrorResponse(w, http.StatusBadRequest, model.NewInvalidRequestError())
		return
	}
	if req.URL == "" {
		writeAPIErrorResponse(w, http.StatusBadRequest, model.NewInvalidURLError("URLが指定されていません"))
		return
	}

	sub, err := h.notifier.Subscribe(req.URL, req.Events)
	if err != nil {
		writeAPIErrorResponse(w, http.StatusBadRequest, model.NewSSRFBlockedError())
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"status":       "subscribed",
		"subscription": sub,
	})
}

// ListSubscriptions は登録済みの購読一覧を返す。
// GET /webhooks/subscriptions
func (h *WebhookHandler) ListSubscriptions(w http.ResponseWriter, r *http.Request) {
	subs := h.notifier.Subscriptions()
	if subs == nil {
		subs = []*model.WebhookSubscription{}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"subscriptions": subs,
	})
}

// triggerRequest はイベント配信リクエストのボディ。
type triggerRequest struct {
	Event string `json:"event"`
}

// Trigger はイベントを対象とする全購読へ通知を配信する。
// POST /webhooks/trigger
//
// 配信は順次実行され、購読ごとの結果がレスポンスに含まれる。
// 配信失敗は結果に記録されるだけでエラーにはならない。
func (h *WebhookHandler) Trigger(w http.ResponseWriter, r *http.Request) {
	var req triggerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeAPIErrorResponse(w, http.StatusBadRequest, model.NewInvalidRequestError())
		return
	}
	if req.Event == "" {
		req.Event = "sync.completed"
	}

	results := h.notifier.Trigger(r.Context(), req.Event)
	if results == nil {
		results = []model.WebhookDeliveryResult{}
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"event":     req.Event,
		"triggered": len(results),
		"results":   results,
	})
}
