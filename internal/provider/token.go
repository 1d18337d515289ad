package provider

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/hitoshi/rostersync/internal/model"
)

// RefreshRecorder はトークン再取得のメトリクス記録インターフェース。
type RefreshRecorder interface {
	RecordTokenRefresh()
}

// accessToken はプロセスメモリ内にのみ保持するアクセストークン。
// 永続化されず、プロセス再起動で破棄される。
type accessToken struct {
	value     string
	expiresAt time.Time
}

// TokenSource はclient_credentialsグラントのアクセストークンを取得・キャッシュする。
// 有効期限の安全マージン内に入ると次回取得時に再発行する。
// ミューテックスで保護された明示的なサービスオブジェクトであり、
// グローバル状態は持たない。
type TokenSource struct {
	config     ClientConfig
	httpClient *http.Client

	mu     sync.Mutex
	cached *accessToken

	// now はテストで時刻を差し替えるためのフック。
	now func() time.Time

	metrics RefreshRecorder
}

// NewTokenSource はTokenSourceを生成する。
func NewTokenSource(config ClientConfig, httpClient *http.Client) *TokenSource {
	if config.TokenExpiryMargin == 0 {
		config.TokenExpiryMargin = 30 * time.Second
	}
	return &TokenSource{
		config:     config,
		httpClient: httpClient,
		now:        time.Now,
	}
}

// SetMetrics はトークン再取得のメトリクスレコーダーを設定する。
func (ts *TokenSource) SetMetrics(m RefreshRecorder) {
	ts.mu.Lock()
	defer ts.mu.Unlock()
	ts.metrics = m
}

// tokenResponse はトークンエンドポイントのレスポンス。
type tokenResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
	ExpiresIn   int    `json:"expires_in"`
	Scope       string `json:"scope"`
}

// tokenRequest はclient_credentialsグラントのリクエストボディ。
type tokenRequest struct {
	GrantType    string `json:"grant_type"`
	ClientID     string `json:"client_id"`
	ClientSecret string `json:"client_secret"`
	Scope        string `json:"scope"`
}

// GetAccessToken は有効なアクセストークンを返す。
// キャッシュ済みトークンがマージンを差し引いても有効な場合はそれを返し、
// そうでなければ新しいトークンを取得してキャッシュを置き換える。
// 取得に失敗した場合はauth段階のSyncErrorを返し、同期全体が中断される。
func (ts *TokenSource) GetAccessToken(ctx context.Context) (string, error) {
	ts.mu.Lock()
	defer ts.mu.Unlock()

	if ts.cached != nil && ts.cached.expiresAt.Add(-ts.config.TokenExpiryMargin).After(ts.now()) {
		return ts.cached.value, nil
	}

	token, err := ts.requestToken(ctx)
	if err != nil {
		return "", model.NewSyncError(model.StageAuth, err)
	}

	ts.cached = token
	if ts.metrics != nil {
		ts.metrics.RecordTokenRefresh()
	}

	slog.Info("access token refreshed",
		slog.Time("expires_at", token.expiresAt),
	)

	return token.value, nil
}

// requestToken はトークンエンドポイントから新しいトークンを取得する。
// 呼び出し側でミューテックスを保持していること。
func (ts *TokenSource) requestToken(ctx context.Context) (*accessToken, error) {
	body, err := json.Marshal(tokenRequest{
		GrantType:    "client_credentials",
		ClientID:     ts.config.ClientID,
		ClientSecret: ts.config.ClientSecret,
		Scope:        ts.config.Scope,
	})
	if err != nil {
		return nil, fmt.Errorf("トークンリクエストの構築に失敗: %w", err)
	}

	url := strings.TrimRight(ts.config.BaseURL, "/") + tokenEndpoint
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, strings.NewReader(string(body)))
	if err != nil {
		return nil, fmt.Errorf("トークンリクエストの作成に失敗: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := ts.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("トークンリクエストに失敗: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("トークンエンドポイントがステータス %d を返しました: %s",
			resp.StatusCode, strings.TrimSpace(string(respBody)))
	}

	var tr tokenResponse
	if err := json.NewDecoder(resp.Body).Decode(&tr); err != nil {
		return nil, fmt.Errorf("トークンレスポンスの解析に失敗: %w", err)
	}
	if tr.AccessToken == "" {
		return nil, fmt.Errorf("トークンレスポンスにaccess_tokenが含まれていません")
	}

	return &accessToken{
		value:     tr.AccessToken,
		expiresAt: ts.now().Add(time.Duration(tr.ExpiresIn) * time.Second),
	}, nil
}
