package model

import (
	"errors"
	"fmt"
)

// APIError は統一エラーフォーマットを表す。
// UIに表示する原因カテゴリと対処方法を含む。
type APIError struct {
	Code     string // エラーコード
	Message  string // エラーメッセージ
	Category string // カテゴリ: auth, validation, sync, system
	Action   string // ユーザー向け対処方法
}

// Error はerrorインターフェースを実装する。
func (e *APIError) Error() string {
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// SyncStage は同期パイプラインのどの段階で失敗したかを表す。
type SyncStage string

const (
	// StageAuth はトークン取得段階。フェッチ前に中断される。
	StageAuth SyncStage = "auth"
	// StageDiscovery はロスターAPIのベースURL解決段階。
	StageDiscovery SyncStage = "discovery"
	// StageFetch はロスターコレクションの取得段階。書き込み前に中断される。
	StageFetch SyncStage = "fetch"
	// StageDB はトランザクション内のUPSERT段階。ロールバックされる。
	StageDB SyncStage = "db"
	// StageLink は紐付け段階。UPSERTと同一トランザクションでロールバックされる。
	StageLink SyncStage = "link"
)

// SyncError は同期パイプラインの段階付きエラー。
// すべての失敗はロールバック後にfailedの実行レコードへ変換される。
type SyncError struct {
	Stage SyncStage
	Err   error
}

// Error はerrorインターフェースを実装する。
func (e *SyncError) Error() string {
	return fmt.Sprintf("sync %s stage: %v", e.Stage, e.Err)
}

// Unwrap はラップされたエラーを返す。
func (e *SyncError) Unwrap() error {
	return e.Err
}

// NewSyncError は段階付きエラーを生成する。
func NewSyncError(stage SyncStage, err error) *SyncError {
	return &SyncError{Stage: stage, Err: err}
}

// SyncStageOf はエラーから同期段階を取り出す。SyncErrorでない場合は空文字を返す。
func SyncStageOf(err error) SyncStage {
	var se *SyncError
	if errors.As(err, &se) {
		return se.Stage
	}
	return ""
}

// ErrSyncInFlight は同期実行がすでに進行中の場合に返される。
// 実行はシングルフライトガードにより重複起動できない。
var ErrSyncInFlight = errors.New("sync run already in flight")

// 定義済みエラーコード
const (
	ErrCodeUnauthorized   = "UNAUTHORIZED"
	ErrCodeForbidden      = "FORBIDDEN"
	ErrCodeInvalidRequest = "INVALID_REQUEST"
	ErrCodeInvalidURL     = "INVALID_URL"
	ErrCodeSSRFBlocked    = "SSRF_BLOCKED"
	ErrCodeSyncInFlight   = "SYNC_IN_FLIGHT"
	ErrCodeSyncFailed     = "SYNC_FAILED"
)

// NewUnauthorizedError は認証エラーを生成する。
func NewUnauthorizedError() *APIError {
	return &APIError{
		Code:     ErrCodeUnauthorized,
		Message:  "認証が必要です。",
		Category: "auth",
		Action:   "有効なトークンを添えて再度リクエストしてください。",
	}
}

// NewForbiddenError は権限不足エラーを生成する。
func NewForbiddenError() *APIError {
	return &APIError{
		Code:     ErrCodeForbidden,
		Message:  "この操作には管理者権限が必要です。",
		Category: "auth",
		Action:   "管理者アカウントでログインし直してください。",
	}
}

// NewInvalidRequestError はリクエストボディ解析エラーを生成する。
func NewInvalidRequestError() *APIError {
	return &APIError{
		Code:     ErrCodeInvalidRequest,
		Message:  "リクエストボディの解析に失敗しました。",
		Category: "validation",
		Action:   "正しいJSON形式でリクエストしてください。",
	}
}

// NewInvalidURLError は無効なURLエラーを生成する。
func NewInvalidURLError(reason string) *APIError {
	return &APIError{
		Code:     ErrCodeInvalidURL,
		Message:  fmt.Sprintf("無効なURLです: %s", reason),
		Category: "validation",
		Action:   "正しいURL形式（http:// または https:// で始まるURL）を入力してください。",
	}
}

// NewSSRFBlockedError はSSRFブロックエラーを生成する。
func NewSSRFBlockedError() *APIError {
	return &APIError{
		Code:     ErrCodeSSRFBlocked,
		Message:  "セキュリティポリシーにより、指定されたURLへの配信がブロックされました。",
		Category: "validation",
		Action:   "公開されているエンドポイントのURLを登録してください。プライベートIPへの配信は許可されていません。",
	}
}

// NewSyncInFlightError は同期の重複起動エラーを生成する。
func NewSyncInFlightError() *APIError {
	return &APIError{
		Code:     ErrCodeSyncInFlight,
		Message:  "同期実行がすでに進行中です。",
		Category: "sync",
		Action:   "進行中の実行が完了してから再度お試しください。",
	}
}
