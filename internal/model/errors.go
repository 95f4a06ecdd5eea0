package model

import "fmt"

// APIError は統一エラーフォーマットを表す。
// Codeがメッセージカタログの識別子、Categoryがドメインに対応する。
// 表示テキストはカタログ側の定義であり、呼び出し側はCodeで分岐する。
type APIError struct {
	Code     string            // エラーコード（メッセージカタログの識別子）
	Message  string            // エラーメッセージ
	Category string            // カテゴリ: auth, validation, group, system
	Action   string            // ユーザー向け対処方法
	Fields   map[string]string // フィールド単位のバリデーション詳細（任意）
}

// Error はerrorインターフェースを実装する。
func (e *APIError) Error() string {
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// 定義済みエラーコード
const (
	ErrCodeGroupNotFound    = "GROUP_NOT_FOUND"
	ErrCodeSpaceNotFound    = "SPACE_NOT_FOUND"
	ErrCodeNotAMember       = "NOT_A_MEMBER"
	ErrCodeValidationFailed = "VALIDATION_FAILED"
	ErrCodeUnexpected       = "UNEXPECTED_ERROR"
	ErrCodeUnauthorized     = "UNAUTHORIZED"
)

// NewGroupNotFoundError はグループ未検出エラーを生成する。
// 存在しない場合とプライベートグループへのアクセス権がない場合の両方で
// 同一のエラーを返し、プライベートグループの存在を漏らさない。
func NewGroupNotFoundError(groupID string) *APIError {
	return &APIError{
		Code:     ErrCodeGroupNotFound,
		Message:  fmt.Sprintf("指定されたグループが見つかりません: %s", groupID),
		Category: "group",
		Action:   "グループIDを確認してください。",
	}
}

// NewSpaceNotFoundError はスペース未検出エラーを生成する。
// スペースが存在しない場合と所属メンバーでない場合の両方で同一のエラーを返す。
func NewSpaceNotFoundError(spaceID string) *APIError {
	return &APIError{
		Code:     ErrCodeSpaceNotFound,
		Message:  fmt.Sprintf("指定されたスペースが見つかりません: %s", spaceID),
		Category: "group",
		Action:   "スペースIDを確認してください。",
	}
}

// NewNotAMemberError はメンバーシップ未検出エラーを生成する。
func NewNotAMemberError(groupID string) *APIError {
	return &APIError{
		Code:     ErrCodeNotAMember,
		Message:  fmt.Sprintf("このグループのメンバーではありません: %s", groupID),
		Category: "group",
		Action:   "グループへの参加が必要です。",
	}
}

// NewValidationError はバリデーションエラーを生成する。
// fieldsにはフィールド名から違反内容へのマップを渡す。
func NewValidationError(fields map[string]string) *APIError {
	return &APIError{
		Code:     ErrCodeValidationFailed,
		Message:  "入力内容に誤りがあります。",
		Category: "validation",
		Action:   "各フィールドのエラー内容を確認してください。",
		Fields:   fields,
	}
}

// NewUnexpectedError は想定外のストレージ障害を表すエラーを生成する。
// 原因となったエラーの詳細はログにのみ記録し、呼び出し元には公開しない。
func NewUnexpectedError() *APIError {
	return &APIError{
		Code:     ErrCodeUnexpected,
		Message:  "予期しないエラーが発生しました。",
		Category: "system",
		Action:   "しばらく待ってから再度お試しください。",
	}
}

// NewUnauthorizedError は未認証エラーを生成する。
func NewUnauthorizedError() *APIError {
	return &APIError{
		Code:     ErrCodeUnauthorized,
		Message:  "認証が必要です。",
		Category: "auth",
		Action:   "ログインしてください。",
	}
}
