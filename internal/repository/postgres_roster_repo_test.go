package repository

import (
	"testing"

	"github.com/hitoshi/rostersync/internal/model"
)

// PostgresRosterRepoはRosterRepositoryインターフェースを満たすことを検証
func TestPostgresRosterRepo_ImplementsInterface(t *testing.T) {
	var _ RosterRepository = (*PostgresRosterRepo)(nil)
}

// NewPostgresRosterRepoが正しく初期化されることを検証
func TestNewPostgresRosterRepo_Initializes(t *testing.T) {
	repo := NewPostgresRosterRepo(nil)
	if repo == nil {
		t.Fatal("expected non-nil repo")
	}
}

// RosterTeacherモデルのフィールドが正しく構築されることを検証
func TestRosterTeacherModel_Fields(t *testing.T) {
	teacher := model.RosterTeacher{
		ExternalID:    "t-1",
		Username:      "asato",
		FirstName:     "Akira",
		LastName:      "Sato",
		OrgExternalID: "org-1",
	}

	if teacher.ExternalID != "t-1" {
		t.Errorf("ExternalID = %q, want t-1", teacher.ExternalID)
	}
	if teacher.Username != "asato" {
		t.Errorf("Username = %q, want asato", teacher.Username)
	}
	if teacher.OrgExternalID != "org-1" {
		t.Errorf("OrgExternalID = %q, want org-1", teacher.OrgExternalID)
	}
}

// RosterEnrollmentモデルの複合キーフィールドを検証
func TestRosterEnrollmentModel_Fields(t *testing.T) {
	enrollment := model.RosterEnrollment{
		TeacherExternalID: "t-1",
		ClassExternalID:   "c-1",
		Role:              "teacher",
	}

	if enrollment.TeacherExternalID != "t-1" || enrollment.ClassExternalID != "c-1" {
		t.Errorf("unexpected enrollment keys: %+v", enrollment)
	}
	if enrollment.Role != "teacher" {
		t.Errorf("Role = %q, want teacher", enrollment.Role)
	}
}
