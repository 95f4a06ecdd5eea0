// Package middleware はHTTPミドルウェアを提供する。
package middleware

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/hitoshi/groupman/internal/actor"
	"github.com/hitoshi/groupman/internal/model"
)

const sessionCookieName = "session_id"

// contextKey はコンテキストに値を格納するための型安全なキー。
type contextKey string

// actorContextKey はリクエストコンテキストにアクターを格納するためのキー。
var actorContextKey = contextKey("actor")

// SessionFinder はセッションの検索に必要なインターフェース。
// repository.SessionRepositoryの部分集合として定義する。
type SessionFinder interface {
	FindByID(ctx context.Context, id string) (*model.Session, error)
}

// SpaceMemberFinder はスペースメンバーの解決に必要なインターフェース。
// repository.SpaceMemberRepositoryの部分集合として定義する。
type SpaceMemberFinder interface {
	FindBySpaceAndUser(ctx context.Context, spaceID, userID string) (*model.SpaceMember, error)
}

// NewActorMiddleware はHTTP Only Cookieからセッションを読み取って検証し、
// 認証済みのグローバルユーザーアクターをリクエストコンテキストに注入する
// ミドルウェアを返す。認証そのものは外部のOAuthフローが担い、ここでは
// セッションの有効性のみを検証する。
// 未認証リクエストには401 Unauthorizedを返す。
func NewActorMiddleware(sessionFinder SessionFinder) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			cookie, err := r.Cookie(sessionCookieName)
			if err != nil || cookie.Value == "" {
				WriteErrorResponse(w, http.StatusUnauthorized, model.NewUnauthorizedError())
				return
			}

			session, err := sessionFinder.FindByID(r.Context(), cookie.Value)
			if err != nil {
				slog.Error("セッションの検証に失敗しました",
					slog.String("error", err.Error()),
				)
				WriteErrorResponse(w, http.StatusUnauthorized, model.NewUnauthorizedError())
				return
			}
			if session == nil {
				WriteErrorResponse(w, http.StatusUnauthorized, model.NewUnauthorizedError())
				return
			}

			ctx := ContextWithActor(r.Context(), actor.User{ID: session.UserID})
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// NewSpaceMemberMiddleware はURLのspaceIDパラメータと認証済みユーザーから
// スペースメンバーを解決し、メンバーアクターとしてコンテキストを差し替える
// ミドルウェアを返す。NewActorMiddlewareの後、スペーススコープの
// ルート配下にのみ配置する。
// メンバーが解決できない場合は404を返し、スペースの存在を漏らさない。
func NewSpaceMemberMiddleware(memberFinder SpaceMemberFinder) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			user, ok := ActorFromContext(r.Context()).(actor.User)
			if !ok {
				WriteErrorResponse(w, http.StatusUnauthorized, model.NewUnauthorizedError())
				return
			}

			spaceID := chi.URLParam(r, "spaceID")
			member, err := memberFinder.FindBySpaceAndUser(r.Context(), spaceID, user.ID)
			if err != nil {
				slog.Error("スペースメンバーの解決に失敗しました",
					slog.String("space_id", spaceID),
					slog.String("error", err.Error()),
				)
				WriteInternalServerError(w)
				return
			}
			if member == nil {
				WriteErrorResponse(w, http.StatusNotFound, model.NewSpaceNotFoundError(spaceID))
				return
			}

			ctx := ContextWithActor(r.Context(), actor.Member{ID: member.ID, SpaceID: member.SpaceID})
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// ActorFromContext はリクエストコンテキストからアクターを取得する。
// アクターミドルウェアを通過していない場合はnilを返す。
func ActorFromContext(ctx context.Context) actor.Actor {
	a, _ := ctx.Value(actorContextKey).(actor.Actor)
	return a
}

// MemberFromContext はリクエストコンテキストからメンバーアクターを取得する。
// スペーススコープ外のリクエストではエラーを返す。
func MemberFromContext(ctx context.Context) (actor.Member, error) {
	m, ok := ctx.Value(actorContextKey).(actor.Member)
	if !ok {
		return actor.Member{}, fmt.Errorf("メンバーアクターがコンテキストに存在しません")
	}
	return m, nil
}

// ContextWithActor はコンテキストにアクターを注入する。
// テストやミドルウェア以外のコンテキスト生成で使用する。
func ContextWithActor(ctx context.Context, a actor.Actor) context.Context {
	return context.WithValue(ctx, actorContextKey, a)
}
