// Package model はドメインモデルを定義する。
package model

import "time"

// RosterTeacher はロスタープロバイダーから同期した教員レコード。
// external_idはプロバイダー側のsourcedIdで、一意制約のキーとなる。
type RosterTeacher struct {
	ID            string
	ExternalID    string
	Username      string
	FirstName     string
	LastName      string
	OrgExternalID string
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// RosterClass はロスタープロバイダーから同期したクラスレコード。
type RosterClass struct {
	ID               string
	ExternalID       string
	Title            string
	SchoolExternalID string
	Term             string
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

// RosterEnrollment は教員とクラスの担当関係。
// (teacher_external_id, class_external_id)の複合キーで一意となる。
type RosterEnrollment struct {
	TeacherExternalID string
	ClassExternalID   string
	Role              string
	CreatedAt         time.Time
	UpdatedAt         time.Time
}
