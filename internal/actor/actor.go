// Package actor は可視性判定の主体となるアクターを定義する。
// アクターにはスペース所属を持つメンバーと、所属を間接的に解決する
// グローバルユーザーの2種類があり、どちらも同じ可視性契約を実装する。
package actor

import "github.com/hitoshi/groupman/internal/query"

// Actor はグループ可視性の問い合わせ主体を表す。
// VisibleGroupsは groups テーブル（エイリアスg）に対する述語を返す。
// 述語は副作用を持たず、呼び出し側がさらに条件を合成できる。
type Actor interface {
	// VisibleGroups はこのアクターに可視なグループを選択する述語を返す。
	// 規則: 非プライベートなグループ、またはメンバーシップが存在する
	// プライベートグループのみが可視となる。
	VisibleGroups() query.Cond

	// CacheKey はリクエスト内キャッシュのキーとして使える一意な識別子を返す。
	CacheKey() string
}

// Member はスペースに直接所属するメンバーアクター。
type Member struct {
	ID      string
	SpaceID string
}

// VisibleGroups はメンバー自身のスペース内のグループに限定した可視性述語を返す。
// プライベートグループは(group_id, member_id)のメンバーシップ行が存在する場合のみ可視。
func (m Member) VisibleGroups() query.Cond {
	return query.And(
		query.C("g.space_id = ?", m.SpaceID),
		query.Or(
			query.C("g.is_private = false"),
			query.C(
				"EXISTS (SELECT 1 FROM group_users gu WHERE gu.group_id = g.id AND gu.member_id = ?)",
				m.ID,
			),
		),
	)
}

// CacheKey はメンバーアクターのキャッシュキーを返す。
func (m Member) CacheKey() string {
	return "member:" + m.SpaceID + ":" + m.ID
}

// User はスペースへの直接所属を持たないグローバルユーザーアクター。
// スペース所属はメンバーシップ経由で間接的に解決される。
type User struct {
	ID string
}

// VisibleGroups はグローバルユーザーの可視性述語を返す。
// プライベートグループの可視判定はメンバーシップ行の存在と、その行が指す
// スペースメンバーがこのユーザーへ解決できることの両方を要求する。
// メンバー行が失われた孤児メンバーシップは「不可視」として扱い、エラーにしない。
func (u User) VisibleGroups() query.Cond {
	return query.Or(
		query.C("g.is_private = false"),
		query.C(
			`EXISTS (
				SELECT 1 FROM group_users gu
				JOIN space_members sm ON sm.id = gu.member_id
				WHERE gu.group_id = g.id AND sm.user_id = ?
			)`,
			u.ID,
		),
	)
}

// CacheKey はユーザーアクターのキャッシュキーを返す。
func (u User) CacheKey() string {
	return "user:" + u.ID
}
