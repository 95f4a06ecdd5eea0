package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/hitoshi/groupman/internal/actor"
	"github.com/hitoshi/groupman/internal/model"
	"github.com/hitoshi/groupman/internal/query"
)

// groupColumns はgroupsテーブル（エイリアスg）のSELECT列リスト。
const groupColumns = `g.id, g.space_id, g.creator_member_id, g.name, g.description, g.is_private, g.state, g.created_at, g.updated_at`

// PostgresGroupRepo はPostgreSQLを使用したグループリポジトリ。
type PostgresGroupRepo struct {
	db *sql.DB
}

// NewPostgresGroupRepo はPostgresGroupRepoを生成する。
func NewPostgresGroupRepo(db *sql.DB) *PostgresGroupRepo {
	return &PostgresGroupRepo{db: db}
}

// FindVisibleByID は指定IDのグループをアクターの可視性述語付きで取得する。
// 可視性はWHERE句に埋め込み、不可視なプライベートグループの行は
// 取得後のフィルタリングではなくクエリ自体で除外する。
// 存在しない場合もアクセス権がない場合も同じくnilを返す。
func (r *PostgresGroupRepo) FindVisibleByID(ctx context.Context, a actor.Actor, id string) (*model.Group, error) {
	cond := a.VisibleGroups()
	args := append([]any{id}, cond.Args...)

	group := &model.Group{}
	err := r.db.QueryRowContext(ctx,
		`SELECT `+groupColumns+`
		 FROM groups g
		 WHERE g.id = $1 AND `+cond.Rebind(1),
		args...,
	).Scan(
		&group.ID, &group.SpaceID, &group.CreatorMemberID, &group.Name, &group.Description,
		&group.IsPrivate, &group.State, &group.CreatedAt, &group.UpdatedAt,
	)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("グループの取得に失敗しました: %w", err)
	}

	return group, nil
}

// ListVisible はアクターに可視な全グループを作成日時順で返す。
func (r *PostgresGroupRepo) ListVisible(ctx context.Context, a actor.Actor) ([]*model.Group, error) {
	cond := a.VisibleGroups()
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+groupColumns+`
		 FROM groups g
		 WHERE `+cond.Rebind(0)+`
		 ORDER BY g.created_at ASC`,
		cond.Args...,
	)
	if err != nil {
		return nil, fmt.Errorf("可視グループ一覧の取得に失敗しました: %w", err)
	}
	defer rows.Close()

	return scanGroups(rows)
}

// ListBookmarked はアクターに可視かつブックマーク済みのグループを返す。
// 可視性述語にブックマーク行の存在条件をANDで合成する。
func (r *PostgresGroupRepo) ListBookmarked(ctx context.Context, m actor.Member) ([]*model.Group, error) {
	cond := query.And(
		m.VisibleGroups(),
		query.C(
			"EXISTS (SELECT 1 FROM bookmarks b WHERE b.group_id = g.id AND b.member_id = ?)",
			m.ID,
		),
	)
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+groupColumns+`
		 FROM groups g
		 WHERE `+cond.Rebind(0)+`
		 ORDER BY g.created_at ASC`,
		cond.Args...,
	)
	if err != nil {
		return nil, fmt.Errorf("ブックマーク済みグループ一覧の取得に失敗しました: %w", err)
	}
	defer rows.Close()

	return scanGroups(rows)
}

// scanGroups は結果セットをGroupのスライスへ読み取る。
func scanGroups(rows *sql.Rows) ([]*model.Group, error) {
	var groups []*model.Group
	for rows.Next() {
		group := &model.Group{}
		if err := rows.Scan(
			&group.ID, &group.SpaceID, &group.CreatorMemberID, &group.Name, &group.Description,
			&group.IsPrivate, &group.State, &group.CreatedAt, &group.UpdatedAt,
		); err != nil {
			return nil, fmt.Errorf("グループ行の読み取りに失敗しました: %w", err)
		}
		groups = append(groups, group)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("グループ一覧の走査に失敗しました: %w", err)
	}
	return groups, nil
}

// Insert はグループを挿入する。
// トランザクション内で実行する場合はqに*sql.Txを渡す。
func (r *PostgresGroupRepo) Insert(ctx context.Context, q Querier, group *model.Group) error {
	_, err := q.ExecContext(ctx,
		`INSERT INTO groups (id, space_id, creator_member_id, name, description, is_private, state, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		group.ID, group.SpaceID, group.CreatorMemberID, group.Name, group.Description,
		group.IsPrivate, group.State, group.CreatedAt, group.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("グループの挿入に失敗しました: %w", err)
	}
	return nil
}

// Update はグループの表示属性を更新する。
func (r *PostgresGroupRepo) Update(ctx context.Context, group *model.Group) error {
	result, err := r.db.ExecContext(ctx,
		`UPDATE groups SET name = $2, description = $3, is_private = $4, updated_at = now()
		 WHERE id = $1`,
		group.ID, group.Name, group.Description, group.IsPrivate,
	)
	if err != nil {
		return fmt.Errorf("グループの更新に失敗しました: %w", err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("更新結果の取得に失敗しました: %w", err)
	}
	if rowsAffected == 0 {
		return fmt.Errorf("グループが見つかりません: %s", group.ID)
	}
	return nil
}

// Close はグループの状態をclosedへ遷移させる。
// 状態遷移以外のバリデーションは行わない。
func (r *PostgresGroupRepo) Close(ctx context.Context, group *model.Group) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE groups SET state = $2, updated_at = now() WHERE id = $1`,
		group.ID, model.GroupStateClosed,
	)
	if err != nil {
		return fmt.Errorf("グループのクローズに失敗しました: %w", err)
	}
	group.State = model.GroupStateClosed
	return nil
}

// compile-time interface check
var _ GroupRepository = (*PostgresGroupRepo)(nil)
