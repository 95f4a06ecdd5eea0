package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/hitoshi/groupman/internal/model"
)

// PostgresGroupUserRepo はPostgreSQLを使用したメンバーシップリポジトリ。
type PostgresGroupUserRepo struct {
	db *sql.DB
}

// NewPostgresGroupUserRepo はPostgresGroupUserRepoを生成する。
func NewPostgresGroupUserRepo(db *sql.DB) *PostgresGroupUserRepo {
	return &PostgresGroupUserRepo{db: db}
}

// FindByGroupAndMember はグループIDとメンバーIDでメンバーシップを検索する。
// 見つからない場合はnilを返す。
func (r *PostgresGroupUserRepo) FindByGroupAndMember(ctx context.Context, groupID, memberID string) (*model.GroupUser, error) {
	gu := &model.GroupUser{}
	err := r.db.QueryRowContext(ctx,
		`SELECT id, space_id, group_id, member_id, created_at
		 FROM group_users WHERE group_id = $1 AND member_id = $2`,
		groupID, memberID,
	).Scan(&gu.ID, &gu.SpaceID, &gu.GroupID, &gu.MemberID, &gu.CreatedAt)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("メンバーシップの取得に失敗しました: %w", err)
	}

	return gu, nil
}

// Insert はメンバーシップを挿入する。
// (group_id, member_id)のユニーク制約違反はUniqueViolationErrorとして返す。
// トランザクション内で実行する場合はqに*sql.Txを渡す。
func (r *PostgresGroupUserRepo) Insert(ctx context.Context, q Querier, gu *model.GroupUser) error {
	_, err := q.ExecContext(ctx,
		`INSERT INTO group_users (id, space_id, group_id, member_id, created_at)
		 VALUES ($1, $2, $3, $4, $5)`,
		gu.ID, gu.SpaceID, gu.GroupID, gu.MemberID, gu.CreatedAt,
	)
	if err != nil {
		return classifyInsertError(err)
	}
	return nil
}

// DeleteOrphaned はスペースメンバー行が失われた孤児メンバーシップを削除する。
// 可視性述語は孤児を不可視として扱うため、この削除は正しさではなく
// 衛生のためのバッチ処理であり、冪等に実行できる。
func (r *PostgresGroupUserRepo) DeleteOrphaned(ctx context.Context) (int64, error) {
	result, err := r.db.ExecContext(ctx,
		`DELETE FROM group_users gu
		 WHERE NOT EXISTS (SELECT 1 FROM space_members sm WHERE sm.id = gu.member_id)`,
	)
	if err != nil {
		return 0, fmt.Errorf("孤児メンバーシップの削除に失敗しました: %w", err)
	}
	deleted, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("削除件数の取得に失敗しました: %w", err)
	}
	return deleted, nil
}

// compile-time interface check
var _ GroupUserRepository = (*PostgresGroupUserRepo)(nil)
