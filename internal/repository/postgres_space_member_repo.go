package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/hitoshi/groupman/internal/model"
)

// PostgresSpaceMemberRepo はPostgreSQLを使用したスペースメンバーリポジトリ。
type PostgresSpaceMemberRepo struct {
	db *sql.DB
}

// NewPostgresSpaceMemberRepo はPostgresSpaceMemberRepoを生成する。
func NewPostgresSpaceMemberRepo(db *sql.DB) *PostgresSpaceMemberRepo {
	return &PostgresSpaceMemberRepo{db: db}
}

// FindBySpaceAndUser はスペースIDとユーザーIDでメンバーを検索する。
// 見つからない場合はnilを返す。
func (r *PostgresSpaceMemberRepo) FindBySpaceAndUser(ctx context.Context, spaceID, userID string) (*model.SpaceMember, error) {
	member := &model.SpaceMember{}
	err := r.db.QueryRowContext(ctx,
		`SELECT id, space_id, user_id, display_name, created_at, updated_at
		 FROM space_members WHERE space_id = $1 AND user_id = $2`,
		spaceID, userID,
	).Scan(&member.ID, &member.SpaceID, &member.UserID, &member.DisplayName, &member.CreatedAt, &member.UpdatedAt)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("スペースメンバーの取得に失敗しました: %w", err)
	}

	return member, nil
}

// compile-time interface check
var _ SpaceMemberRepository = (*PostgresSpaceMemberRepo)(nil)
