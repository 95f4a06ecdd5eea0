package middleware

import (
	"encoding/json"
	"net/http"

	"github.com/hitoshi/groupman/internal/model"
)

// ErrorResponseBody はAPIエラーレスポンスの統一フォーマット。
// 原因カテゴリと対処方法、フィールド単位のバリデーション詳細を含む。
type ErrorResponseBody struct {
	Code     string            `json:"code"`
	Message  string            `json:"message"`
	Category string            `json:"category"`
	Action   string            `json:"action"`
	Fields   map[string]string `json:"fields,omitempty"`
}

// WriteErrorResponse は統一エラーフォーマットでHTTPエラーレスポンスを書き込む。
// すべてのAPIエンドポイントで一貫したエラーレスポンスを提供する。
func WriteErrorResponse(w http.ResponseWriter, statusCode int, apiErr *model.APIError) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(ErrorResponseBody{
		Code:     apiErr.Code,
		Message:  apiErr.Message,
		Category: apiErr.Category,
		Action:   apiErr.Action,
		Fields:   apiErr.Fields,
	})
}

// WriteInternalServerError は内部サーバーエラーの統一レスポンスを書き込む。
// 詳細はログのみに記録し、ユーザーにはストレージ内部を露出しない
// 一般的なメッセージを返す。
func WriteInternalServerError(w http.ResponseWriter) {
	WriteErrorResponse(w, http.StatusInternalServerError, model.NewUnexpectedError())
}
