package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/hitoshi/groupman/internal/model"
)

// PostgresBookmarkRepo はPostgreSQLを使用したブックマークリポジトリ。
type PostgresBookmarkRepo struct {
	db *sql.DB
}

// NewPostgresBookmarkRepo はPostgresBookmarkRepoを生成する。
func NewPostgresBookmarkRepo(db *sql.DB) *PostgresBookmarkRepo {
	return &PostgresBookmarkRepo{db: db}
}

// Insert はブックマークを挿入する。
// (group_id, member_id)のユニーク制約違反はUniqueViolationErrorとして返す。
// 同時実行の競合はロックではなくこのユニーク制約のみで解決する。
// トランザクション内で実行する場合はqに*sql.Txを渡す。
func (r *PostgresBookmarkRepo) Insert(ctx context.Context, q Querier, b *model.Bookmark) error {
	_, err := q.ExecContext(ctx,
		`INSERT INTO bookmarks (id, space_id, group_id, member_id, created_at)
		 VALUES ($1, $2, $3, $4, $5)`,
		b.ID, b.SpaceID, b.GroupID, b.MemberID, b.CreatedAt,
	)
	if err != nil {
		return classifyInsertError(err)
	}
	return nil
}

// Delete は(group_id, member_id)に一致するブックマークを削除し、
// 実際に行が削除されたかどうかを返す。
// 対象が存在しない場合はfalseを返すだけでエラーにしない。
func (r *PostgresBookmarkRepo) Delete(ctx context.Context, groupID, memberID string) (bool, error) {
	result, err := r.db.ExecContext(ctx,
		`DELETE FROM bookmarks WHERE group_id = $1 AND member_id = $2`,
		groupID, memberID,
	)
	if err != nil {
		return false, fmt.Errorf("ブックマークの削除に失敗しました: %w", err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("削除結果の取得に失敗しました: %w", err)
	}
	return rowsAffected > 0, nil
}

// compile-time interface check
var _ BookmarkRepository = (*PostgresBookmarkRepo)(nil)
