// Package repository はデータ永続化のインターフェースを定義する。
package repository

import (
	"context"
	"database/sql"

	"github.com/hitoshi/groupman/internal/actor"
	"github.com/hitoshi/groupman/internal/model"
)

// Querier はSQL実行を抽象化するインターフェース。
// *sql.DB と *sql.Tx の両方を受け付けることで、単発の操作と
// オーケストレーションされたトランザクション内の操作を同じ実装で扱う。
type Querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// GroupRepository はグループデータの永続化インターフェース。
type GroupRepository interface {
	// FindVisibleByID は指定IDのグループをアクターの可視性述語付きで取得する。
	// 存在しない場合もアクセス権がない場合もnilを返す。
	FindVisibleByID(ctx context.Context, a actor.Actor, id string) (*model.Group, error)

	// ListVisible はアクターに可視な全グループを返す。
	ListVisible(ctx context.Context, a actor.Actor) ([]*model.Group, error)

	// ListBookmarked はアクターに可視かつブックマーク済みのグループを返す。
	ListBookmarked(ctx context.Context, m actor.Member) ([]*model.Group, error)

	// Insert はグループを挿入する。qにトランザクションを渡せる。
	Insert(ctx context.Context, q Querier, group *model.Group) error

	// Update はグループの表示属性を更新する。
	Update(ctx context.Context, group *model.Group) error

	// Close はグループの状態をclosedへ遷移させる。
	Close(ctx context.Context, group *model.Group) error
}

// GroupUserRepository はメンバーシップデータの永続化インターフェース。
type GroupUserRepository interface {
	// FindByGroupAndMember はグループIDとメンバーIDでメンバーシップを検索する。
	// 見つからない場合はnilを返す。
	FindByGroupAndMember(ctx context.Context, groupID, memberID string) (*model.GroupUser, error)

	// Insert はメンバーシップを挿入する。ユニーク制約違反は
	// UniqueViolationErrorでラップして返す。qにトランザクションを渡せる。
	Insert(ctx context.Context, q Querier, gu *model.GroupUser) error

	// DeleteOrphaned はスペースメンバー行が失われた孤児メンバーシップを削除し、
	// 削除件数を返す。
	DeleteOrphaned(ctx context.Context) (int64, error)
}

// BookmarkRepository はブックマークデータの永続化インターフェース。
type BookmarkRepository interface {
	// Insert はブックマークを挿入する。ユニーク制約違反は
	// UniqueViolationErrorでラップして返す。qにトランザクションを渡せる。
	Insert(ctx context.Context, q Querier, b *model.Bookmark) error

	// Delete は(group_id, member_id)に一致するブックマークを高々1行削除し、
	// 実際に削除されたかどうかを返す。
	Delete(ctx context.Context, groupID, memberID string) (bool, error)
}

// SessionRepository はセッションデータの永続化インターフェース。
type SessionRepository interface {
	// Create はセッションを作成する。
	Create(ctx context.Context, session *model.Session) error
	// FindByID は指定IDのセッションを取得する。期限切れの場合はnilを返す。
	FindByID(ctx context.Context, id string) (*model.Session, error)
	// DeleteByID は指定IDのセッションを削除する。
	DeleteByID(ctx context.Context, id string) error
}

// SpaceMemberRepository はスペースメンバーデータの永続化インターフェース。
type SpaceMemberRepository interface {
	// FindBySpaceAndUser はスペースIDとユーザーIDでメンバーを検索する。
	// 見つからない場合はnilを返す。
	FindBySpaceAndUser(ctx context.Context, spaceID, userID string) (*model.SpaceMember, error)
}
