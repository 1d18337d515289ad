package handler

import (
	"context"
	"errors"
	"net/http"

	"github.com/hitoshi/rostersync/internal/model"
)

// SyncServiceInterface は同期ハンドラーが必要とするサービスインターフェース。
type SyncServiceInterface interface {
	// Run は同期パイプラインを1回実行する。
	// 実行中の場合はmodel.ErrSyncInFlightを返す。
	Run(ctx context.Context) (*model.SyncRun, error)
	// Status は最新の実行状態を返す。エラーを伝播させない。
	Status(ctx context.Context) model.RunStatus
}

// SyncHandler は同期実行のHTTPハンドラー。
type SyncHandler struct {
	service SyncServiceInterface
}

// NewSyncHandler はSyncHandlerを生成する。
func NewSyncHandler(service SyncServiceInterface) *SyncHandler {
	return &SyncHandler{service: service}
}

// runResponse は同期実行のAPIレスポンス。
type runResponse struct {
	Status   string                `json:"status"`
	RunID    string                `json:"runId,omitempty"`
	Counters *model.UpsertCounters `json:"counters,omitempty"`
	Link     *model.LinkStats      `json:"link,omitempty"`
	Error    string                `json:"error,omitempty"`
}

// RunSync は同期パイプラインを実行する。
// POST /internal/sync/run
func (h *SyncHandler) RunSync(w http.ResponseWriter, r *http.Request) {
	run, err := h.service.Run(r.Context())
	if err != nil {
		if errors.Is(err, model.ErrSyncInFlight) {
			writeAPIErrorResponse(w, http.StatusConflict, model.NewSyncInFlightError())
			return
		}

		resp := runResponse{
			Status: model.SyncStatusFailed,
			Error:  err.Error(),
		}
		if run != nil {
			resp.RunID = run.ID
		}
		writeJSON(w, http.StatusInternalServerError, resp)
		return
	}

	writeJSON(w, http.StatusOK, runResponse{
		Status:   model.SyncStatusOK,
		RunID:    run.ID,
		Counters: &run.Summary.Counters,
		Link:     &run.Summary.Link,
	})
}

// GetStatus は最新の同期実行状態を返す。
// GET /internal/sync/status
//
// 履歴が存在しない場合は{status:"none"}、履歴の読み取りに失敗した場合は
// {status:"unknown", error, lastSummary}へデグレードする。常に200を返す。
func (h *SyncHandler) GetStatus(w http.ResponseWriter, r *http.Request) {
	status := h.service.Status(r.Context())
	writeJSON(w, http.StatusOK, statusResponseFrom(status))
}

// statusResponse は同期状態のAPIレスポンス。
type statusResponse struct {
	Status      string            `json:"status"`
	RunID       string            `json:"runId,omitempty"`
	Summary     *model.RunSummary `json:"summary,omitempty"`
	Error       string            `json:"error,omitempty"`
	LastSummary *model.RunSummary `json:"lastSummary,omitempty"`
}

// statusResponseFrom はRunStatusをAPIレスポンスに変換する。
func statusResponseFrom(status model.RunStatus) statusResponse {
	resp := statusResponse{
		Status:      status.Status,
		Error:       status.Error,
		LastSummary: status.LastSummary,
	}
	if status.Run != nil {
		resp.RunID = status.Run.ID
		resp.Summary = &status.Run.Summary
	}
	return resp
}
