// Package provider はロスタープロバイダー（Schoolday互換API）のクライアントを提供する。
// OAuthトークン取得、ディスカバリー、ロスターコレクション取得を担当する。
package provider

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

const (
	// defaultRosterBasePath はディスカバリーがベースパスを返さない場合のフォールバック。
	defaultRosterBasePath = "/oneroster/v1p1"

	tokenEndpoint     = "/oauth/token"
	discoveryEndpoint = "/discovery/districts"
)

// ClientConfig はプロバイダークライアントの設定。
type ClientConfig struct {
	// BaseURL はプロバイダーのルートURL（例: "https://api.schoolday.example"）。
	BaseURL      string
	ClientID     string
	ClientSecret string
	Scope        string

	// Timeout は各アウトバウンドHTTPコールの上限時間。
	// ゼロの場合は10秒を使用する。プロバイダーの応答停止で同期全体が
	// 永久にブロックされることを防ぐ。
	Timeout time.Duration

	// TokenExpiryMargin はトークン有効期限の安全マージン。
	// ゼロの場合は30秒を使用する。
	TokenExpiryMargin time.Duration
}

// Client はロスタープロバイダーへのHTTPクライアント。
type Client struct {
	config     ClientConfig
	httpClient *http.Client
	tokens     *TokenSource
}

// NewClient はClientを生成する。
func NewClient(config ClientConfig) *Client {
	if config.Timeout == 0 {
		config.Timeout = 10 * time.Second
	}
	config.BaseURL = strings.TrimRight(config.BaseURL, "/")

	httpClient := &http.Client{Timeout: config.Timeout}
	c := &Client{
		config:     config,
		httpClient: httpClient,
	}
	c.tokens = NewTokenSource(config, httpClient)
	return c
}

// TokenSourceRef はクライアントが保持するトークンソースを返す。
// メトリクスフックの設定に使用する。
func (c *Client) TokenSourceRef() *TokenSource {
	return c.tokens
}

// getJSON はBearer認証付きGETを実行し、レスポンスをoutにデコードする。
// 非2xxレスポンスはエラーとして返す。
func (c *Client) getJSON(ctx context.Context, url string, out any) error {
	token, err := c.tokens.GetAccessToken(ctx)
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("リクエスト作成に失敗: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("HTTPリクエスト失敗: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("プロバイダーがステータス %d を返しました: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("レスポンスの解析に失敗: %w", err)
	}
	return nil
}
