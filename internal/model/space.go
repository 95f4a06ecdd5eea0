package model

import "time"

// Space はグループとメンバーシップを所有する組織スコープ（テナント）を表す。
type Space struct {
	ID        string
	Name      string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// User はスペースをまたぐグローバルなユーザーアイデンティティを表す。
type User struct {
	ID        string
	Email     string
	Name      string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// SpaceMember はユーザーのスペース所属を表す。
// グループのメンバーシップとブックマークはこのメンバーIDを参照する。
type SpaceMember struct {
	ID          string
	SpaceID     string
	UserID      string
	DisplayName string
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// Session は認証済みユーザーのセッションを表す。
// 認証そのものは外部のOAuthフローで行われ、本体はセッションの検証のみを扱う。
type Session struct {
	ID        string
	UserID    string
	ExpiresAt time.Time
	CreatedAt time.Time
}
