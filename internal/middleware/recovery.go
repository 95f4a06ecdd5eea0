package middleware

import (
	"log/slog"
	"net/http"
	"runtime/debug"
)

// NewRecoveryMiddleware はpanic発生時にプロセスクラッシュを防ぎ、
// 500レスポンスを返すミドルウェアを生成する。
// ローダーアダプタの誤用などプログラミングエラーのpanicもここで捕捉され、
// スタックトレース付きでログに記録される。
func NewRecoveryMiddleware() func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if rec := recover(); rec != nil {
					slog.Error("panicから復帰しました",
						slog.Any("panic", rec),
						slog.String("method", r.Method),
						slog.String("path", r.URL.Path),
						slog.String("stack", string(debug.Stack())),
					)
					WriteInternalServerError(w)
				}
			}()
			next.ServeHTTP(w, r)
		})
	}
}
