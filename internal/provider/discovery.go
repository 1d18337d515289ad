package provider

import (
	"context"
	"log/slog"
	"strings"

	"github.com/hitoshi/rostersync/internal/model"
)

// district はディスカバリーエンドポイントが返す学区情報。
type district struct {
	DistrictID       string `json:"districtId"`
	Name             string `json:"name"`
	OneRosterBaseURL string `json:"oneRosterBaseUrl"`
}

// ResolveRosterBase はディスカバリーエンドポイントからロスターAPIの
// ベースURLを解決する。最初に返された学区のベースパスを採用し、
// 宣言がない場合は既定パスにフォールバックする。
// 単一学区デプロイを前提としており、複数学区が返された場合も
// 先頭のみを使用する。
func (c *Client) ResolveRosterBase(ctx context.Context) (string, error) {
	var districts []district
	if err := c.getJSON(ctx, c.config.BaseURL+discoveryEndpoint, &districts); err != nil {
		// トークン取得失敗はauth段階のまま伝播させる
		if model.SyncStageOf(err) == model.StageAuth {
			return "", err
		}
		return "", model.NewSyncError(model.StageDiscovery, err)
	}

	basePath := defaultRosterBasePath
	if len(districts) > 0 && districts[0].OneRosterBaseURL != "" {
		basePath = districts[0].OneRosterBaseURL
	}

	if len(districts) > 1 {
		slog.Warn("discovery returned multiple districts, using the first",
			slog.Int("districts", len(districts)),
			slog.String("district_id", districts[0].DistrictID),
		)
	}

	// 絶対URLとして宣言されている場合はそのまま使用する
	if strings.HasPrefix(basePath, "http://") || strings.HasPrefix(basePath, "https://") {
		return strings.TrimRight(basePath, "/"), nil
	}
	if !strings.HasPrefix(basePath, "/") {
		basePath = "/" + basePath
	}
	return c.config.BaseURL + strings.TrimRight(basePath, "/"), nil
}
