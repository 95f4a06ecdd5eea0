// Package loader はグラフ状のクエリ解決のためのリクエスト単位の
// バッチング・キャッシュ機構を提供する。
// 同一リクエスト内で複数のフィールドが「現在のアクターに可視なグループ」を
// 要求しても、ユニークなアクターごとに1回のクエリしか発行されない。
package loader

import (
	"context"
	"fmt"
	"time"

	dataloader "github.com/graph-gophers/dataloader/v7"
	"github.com/hitoshi/groupman/internal/actor"
	"github.com/hitoshi/groupman/internal/middleware"
	"github.com/hitoshi/groupman/internal/model"
)

// EntityGroups はこのアダプタが唯一サポートするエンティティ種別。
const EntityGroups = "groups"

// GroupLister は可視グループの問い合わせに必要なインターフェース。
// 認可ロジックはこの先の可視性述語に委譲し、ここでは複製しない。
type GroupLister interface {
	ListVisible(ctx context.Context, a actor.Actor) ([]*model.Group, error)
}

// Observer は可視性クエリの観測インターフェース。
type Observer interface {
	RecordVisibilityQuery(d time.Duration)
}

// Loaders は1リクエスト分のローダー集合。
// キャッシュのスコープは厳密に1リクエストであり、リクエストや
// アクターコンテキストをまたいで共有・再利用してはならない。
type Loaders struct {
	actor         actor.Actor
	visibleGroups *dataloader.Loader[actor.Actor, []*model.Group]
}

// New は認証済みアクターを含むコンテキストからLoadersを生成する。
// アクターのないコンテキストからの生成は呼び出し側のバグであり、
// 回復可能なランタイム条件ではなく即座にpanicする。
func New(ctx context.Context, lister GroupLister, obs Observer) *Loaders {
	a := middleware.ActorFromContext(ctx)
	if a == nil {
		panic("loader: 認証済みアクターのないコンテキストからは生成できません")
	}

	batchFn := func(ctx context.Context, actors []actor.Actor) []*dataloader.Result[[]*model.Group] {
		results := make([]*dataloader.Result[[]*model.Group], len(actors))
		for i, a := range actors {
			start := time.Now()
			groups, err := lister.ListVisible(ctx, a)
			if obs != nil {
				obs.RecordVisibilityQuery(time.Since(start))
			}
			results[i] = &dataloader.Result[[]*model.Group]{Data: groups, Error: err}
		}
		return results
	}

	return &Loaders{
		actor:         a,
		visibleGroups: dataloader.NewBatchedLoader(batchFn),
	}
}

// VisibleGroups は現在のアクターに可視なグループ一覧を返す。
// 同一リクエスト内の2回目以降の呼び出しはキャッシュから解決される。
func (l *Loaders) VisibleGroups(ctx context.Context) ([]*model.Group, error) {
	return l.visibleGroups.Load(ctx, l.actor)()
}

// ForEntity は指定エンティティ種別のローダーを返す。
// groups以外のエンティティの要求は呼び出し側のバグでありpanicする。
func (l *Loaders) ForEntity(entity string) *dataloader.Loader[actor.Actor, []*model.Group] {
	if entity != EntityGroups {
		panic(fmt.Sprintf("loader: サポートされないエンティティ種別です: %s", entity))
	}
	return l.visibleGroups
}
