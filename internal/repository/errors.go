package repository

import (
	"errors"
	"fmt"

	"github.com/lib/pq"
)

// ユニーク制約名。マイグレーションのインデックス定義と一致させること。
const (
	// ConstraintGroupUserUnique は(group_id, member_id)のメンバーシップ一意制約。
	ConstraintGroupUserUnique = "group_users_group_id_member_id_key"
	// ConstraintBookmarkUnique は(group_id, member_id)のブックマーク一意制約。
	ConstraintBookmarkUnique = "bookmarks_group_id_member_id_key"
)

// uniqueViolationCode はPostgreSQLのunique_violationエラーコード。
const uniqueViolationCode = "23505"

// UniqueViolationError は特定のユニーク制約への違反を表す。
// どの制約に違反したかをマネージャ層が検査し、冪等成功（ブックマーク）や
// バリデーションエラー（メンバーシップ）へ再分類する。
type UniqueViolationError struct {
	Constraint string
	Err        error
}

// Error はerrorインターフェースを実装する。
func (e *UniqueViolationError) Error() string {
	return fmt.Sprintf("unique constraint violated: %s", e.Constraint)
}

// Unwrap は元となったドライバエラーを返す。
func (e *UniqueViolationError) Unwrap() error {
	return e.Err
}

// classifyInsertError はINSERT失敗をユニーク制約違反とそれ以外に分類する。
// ユニーク制約違反はUniqueViolationErrorへ変換し、それ以外はそのまま返す。
func classifyInsertError(err error) error {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) && pqErr.Code == uniqueViolationCode {
		return &UniqueViolationError{Constraint: pqErr.Constraint, Err: err}
	}
	return err
}

// IsUniqueViolation はerrが指定されたユニーク制約への違反かどうかを判定する。
func IsUniqueViolation(err error, constraint string) bool {
	var uv *UniqueViolationError
	return errors.As(err, &uv) && uv.Constraint == constraint
}
