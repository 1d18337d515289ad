package provider

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/hitoshi/rostersync/internal/model"
)

// RosterUser はOneRoster APIのユーザーレコード。
type RosterUser struct {
	SourcedID     string   `json:"sourcedId"`
	Username      string   `json:"username"`
	GivenName     string   `json:"givenName"`
	FamilyName    string   `json:"familyName"`
	OrgSourcedIDs []string `json:"orgSourcedIds"`
}

// RosterClassRecord はOneRoster APIのクラスレコード。
type RosterClassRecord struct {
	SourcedID       string   `json:"sourcedId"`
	Title           string   `json:"title"`
	SchoolSourcedID string   `json:"schoolSourcedId"`
	Terms           []string `json:"terms"`
}

// RosterEnrollmentRecord はOneRoster APIの担当レコード。
type RosterEnrollmentRecord struct {
	UserSourcedID  string `json:"userSourcedId"`
	ClassSourcedID string `json:"classSourcedId"`
	Role           string `json:"role"`
}

// RosterData は1回の同期で取得する3コレクションのまとまり。
type RosterData struct {
	Teachers    []RosterUser
	Classes     []RosterClassRecord
	Enrollments []RosterEnrollmentRecord
}

// FetchRoster は解決済みのベースURLから教員・クラス・担当の3コレクションを
// 並行に取得する。3つすべてが成功しなければならず、いずれかが失敗した場合は
// fetch段階のエラーを返し、取得済みデータは使用されない。
// コレクション単位のリトライや部分受理は行わない。
func (c *Client) FetchRoster(ctx context.Context, rosterBase string) (*RosterData, error) {
	data := &RosterData{}
	errs := make([]error, 3)

	var wg sync.WaitGroup
	wg.Add(3)

	go func() {
		defer wg.Done()
		if err := c.getJSON(ctx, rosterBase+"/users?role=teacher", &data.Teachers); err != nil {
			errs[0] = fmt.Errorf("教員コレクションの取得に失敗: %w", err)
		}
	}()
	go func() {
		defer wg.Done()
		if err := c.getJSON(ctx, rosterBase+"/classes", &data.Classes); err != nil {
			errs[1] = fmt.Errorf("クラスコレクションの取得に失敗: %w", err)
		}
	}()
	go func() {
		defer wg.Done()
		if err := c.getJSON(ctx, rosterBase+"/enrollments", &data.Enrollments); err != nil {
			errs[2] = fmt.Errorf("担当コレクションの取得に失敗: %w", err)
		}
	}()

	wg.Wait()

	for _, err := range errs {
		if err != nil {
			// トークン取得失敗はauth段階のまま伝播させる
			if model.SyncStageOf(err) == model.StageAuth {
				return nil, err
			}
			return nil, model.NewSyncError(model.StageFetch, err)
		}
	}

	slog.Info("roster collections fetched",
		slog.Int("teachers", len(data.Teachers)),
		slog.Int("classes", len(data.Classes)),
		slog.Int("enrollments", len(data.Enrollments)),
	)

	return data, nil
}
