package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/hitoshi/groupman/internal/loader"
	"github.com/hitoshi/groupman/internal/middleware"
)

// HealthChecker はヘルスチェックに必要なインターフェース。*sql.DBが満たす。
type HealthChecker interface {
	PingContext(ctx context.Context) error
}

// RouterDeps はNewRouterに必要な依存関係をまとめた構造体。
type RouterDeps struct {
	// ミドルウェア依存
	SessionFinder     middleware.SessionFinder
	SpaceMemberFinder middleware.SpaceMemberFinder
	CORSAllowedOrigin string
	RateLimiter       *middleware.RateLimiter
	Logger            *slog.Logger

	// グループ
	GroupService      GroupServiceInterface
	BookmarkService   BookmarkServiceInterface
	MembershipService MembershipServiceInterface
	LoaderObserver    loader.Observer

	// 運用
	HealthChecker  HealthChecker
	HTTPMetrics    middleware.HTTPMetricsRecorder
	MetricsHandler http.Handler
}

// NewRouter は全APIエンドポイントのルーティングとミドルウェアチェーンを構成したchi.Routerを返す。
//
// ミドルウェアスタックの実行順序:
//
//	Recovery → CORS → Logging → Actor → RateLimit(General)
//
// スペーススコープのルート（/api/spaces/{spaceID}/*）ではさらに
// SpaceMemberミドルウェアがメンバーアクターを解決する。
// ヘルスチェックとメトリクスはミドルウェアチェーンの外に配置する。
func NewRouter(deps *RouterDeps) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.NewRecoveryMiddleware())
	r.Use(middleware.NewCORSMiddleware(deps.CORSAllowedOrigin))

	groupHandler := NewGroupHandler(deps.GroupService, deps.BookmarkService, deps.MembershipService, deps.LoaderObserver)

	// --- 認証不要のルート ---

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		if deps.HealthChecker != nil {
			if err := deps.HealthChecker.PingContext(r.Context()); err != nil {
				http.Error(w, "unhealthy", http.StatusServiceUnavailable)
				return
			}
		}
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})

	if deps.MetricsHandler != nil {
		r.Handle("/metrics", deps.MetricsHandler)
	}

	// --- 認証が必要なルート ---
	// ミドルウェアスタック: Logging → Actor → RateLimit(General)
	r.Group(func(r chi.Router) {
		if deps.Logger != nil {
			r.Use(middleware.NewLoggingMiddleware(deps.Logger, deps.HTTPMetrics))
		}
		r.Use(middleware.NewActorMiddleware(deps.SessionFinder))
		if deps.RateLimiter != nil {
			r.Use(deps.RateLimiter.GeneralMiddleware())
		}

		// グローバルユーザーとしての読み取り
		r.Route("/api/groups", func(r chi.Router) {
			r.Get("/", groupHandler.ListGroups)
			r.Get("/{id}", groupHandler.GetGroup)
		})

		// スペーススコープのルート（メンバーアクターへ昇格）
		r.Route("/api/spaces/{spaceID}", func(r chi.Router) {
			r.Use(middleware.NewSpaceMemberMiddleware(deps.SpaceMemberFinder))

			r.Route("/groups", func(r chi.Router) {
				r.Get("/", groupHandler.ListGroups)
				r.Get("/bookmarked", groupHandler.ListBookmarked)

				// 書き込み系には専用のレート制限を重ねる
				mutation := func(r chi.Router) chi.Router {
					if deps.RateLimiter == nil {
						return r
					}
					return r.With(deps.RateLimiter.MutationMiddleware())
				}

				mutation(r).Post("/", groupHandler.CreateGroup)

				r.Route("/{id}", func(r chi.Router) {
					r.Get("/", groupHandler.GetGroup)
					r.Get("/membership", groupHandler.GetMembership)
					mutation(r).Patch("/", groupHandler.UpdateGroup)
					mutation(r).Post("/close", groupHandler.CloseGroup)
					mutation(r).Put("/bookmark", groupHandler.BookmarkGroup)
					mutation(r).Delete("/bookmark", groupHandler.UnbookmarkGroup)
				})
			})
		})
	})

	return r
}
