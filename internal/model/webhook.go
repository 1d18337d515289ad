package model

import "time"

// Webhook配信結果のステータス。
const (
	// DeliveryDelivered は2xxレスポンスを受け取ったことを示す。
	DeliveryDelivered = "delivered"
	// DeliveryFailed は非2xxレスポンスを受け取ったことを示す。
	DeliveryFailed = "failed"
	// DeliveryError はリクエスト自体が失敗したことを示す。
	DeliveryError = "error"
)

// WebhookSubscription はWebhook購読。インメモリのみで保持し、
// プロセス再起動で失われる（意図した非永続性）。
type WebhookSubscription struct {
	ID        string    `json:"id"`
	URL       string    `json:"url"`
	Events    []string  `json:"events"`
	CreatedAt time.Time `json:"createdAt"`
}

// WebhookDeliveryResult は購読ごとの配信結果。
type WebhookDeliveryResult struct {
	SubscriptionID string `json:"subscriptionId"`
	URL            string `json:"url"`
	Status         string `json:"status"`
	StatusCode     int    `json:"statusCode,omitempty"`
	Error          string `json:"error,omitempty"`
}

// WantsEvent は購読がイベントを対象としているかを返す。
func (s *WebhookSubscription) WantsEvent(event string) bool {
	for _, e := range s.Events {
		if e == event {
			return true
		}
	}
	return false
}
