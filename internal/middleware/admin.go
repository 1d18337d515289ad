package middleware

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"

	"github.com/hitoshi/rostersync/internal/model"
)

// adminClaims は管理者トークンのクレーム。
// 認証サービスが発行するJWTのrole属性で管理者を判定する。
type adminClaims struct {
	Role string `json:"role"`
	jwt.RegisteredClaims
}

// writeAuthError は認証エラーレスポンスを書き込む。
func writeAuthError(w http.ResponseWriter, statusCode int, apiErr *model.APIError) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(map[string]string{
		"code":     apiErr.Code,
		"message":  apiErr.Message,
		"category": apiErr.Category,
		"action":   apiErr.Action,
	})
}

// NewAdminAuthMiddleware はAuthorizationヘッダーのBearer JWTを検証し、
// role=adminのトークンのみを通すミドルウェアを返す。
// 署名はHS256の共有シークレットで検証する。ネットワークトポロジーだけに
// 依存した信頼ではなく、アプリケーションレベルで管理者権限を強制する。
func NewAdminAuthMiddleware(secret string) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			auth := r.Header.Get("Authorization")
			parts := strings.SplitN(auth, " ", 2)
			if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") || parts[1] == "" {
				writeAuthError(w, http.StatusUnauthorized, model.NewUnauthorizedError())
				return
			}

			claims := &adminClaims{}
			token, err := jwt.ParseWithClaims(parts[1], claims, func(t *jwt.Token) (any, error) {
				if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
					return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
				}
				return []byte(secret), nil
			})
			if err != nil || !token.Valid {
				writeAuthError(w, http.StatusUnauthorized, model.NewUnauthorizedError())
				return
			}

			if claims.Role != "admin" {
				writeAuthError(w, http.StatusForbidden, model.NewForbiddenError())
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
