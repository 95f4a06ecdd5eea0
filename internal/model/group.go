// Package model はドメインモデルを定義する。
package model

import "time"

// Group はスペース内のグループを表す。
// is_privateがtrueのグループはメンバーシップを持つアクターにのみ可視となる。
type Group struct {
	ID              string
	SpaceID         string
	CreatorMemberID string
	Name            string
	Description     string
	IsPrivate       bool
	State           GroupState
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// GroupState はグループのライフサイクル状態を表す。
// openからclosedへの一方向遷移のみをモデル化する。
type GroupState string

const (
	// GroupStateOpen は活動中のグループ状態。
	GroupStateOpen GroupState = "open"
	// GroupStateClosed はクローズされたグループ状態。
	// クローズは終端遷移であり、可視性には影響しない。
	GroupStateClosed GroupState = "closed"
)

// GroupUser はスペースメンバーとグループのメンバーシップ関係を表す。
// (group_id, member_id)の組み合わせはユニーク制約で保証される。
type GroupUser struct {
	ID        string
	SpaceID   string
	GroupID   string
	MemberID  string
	CreatedAt time.Time
}

// Bookmark はスペースメンバーによるグループのブックマークを表す。
// アクセス制御には影響しない純粋なユーザー便宜のための関係。
// (group_id, member_id)の組み合わせはユニーク制約で保証される。
type Bookmark struct {
	ID        string
	SpaceID   string
	GroupID   string
	MemberID  string
	CreatedAt time.Time
}
