// Package membership はグループメンバーシップのドメインロジックを提供する。
package membership

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/hitoshi/groupman/internal/actor"
	"github.com/hitoshi/groupman/internal/model"
	"github.com/hitoshi/groupman/internal/repository"
)

// Service はメンバーシップ管理のサービス層。
// メンバーシップは作成のみで更新されず、削除はグループ削除のカスケードでのみ起きる。
type Service struct {
	groupUsers repository.GroupUserRepository
}

// NewService はServiceの新しいインスタンスを生成する。
func NewService(groupUsers repository.GroupUserRepository) *Service {
	return &Service{groupUsers: groupUsers}
}

// GetMembership はグループとメンバーのメンバーシップを取得する。
// 存在しない場合はNOT_A_MEMBERエラーを返す。
func (s *Service) GetMembership(ctx context.Context, group *model.Group, m actor.Member) (*model.GroupUser, error) {
	gu, err := s.groupUsers.FindByGroupAndMember(ctx, group.ID, m.ID)
	if err != nil {
		return nil, fmt.Errorf("メンバーシップの取得に失敗しました: %w", err)
	}
	if gu == nil {
		return nil, model.NewNotAMemberError(group.ID)
	}
	return gu, nil
}

// CreateMembership はメンバーシップを挿入する。
// (group_id, member_id)のユニーク制約違反はバリデーションエラーへ再分類する。
// グループ作成ワークフロー内で1アクターにつき1回しか呼ばれないため通常は
// 起きないが、違反を黙って成功扱いにはしない。
// トランザクション内で実行する場合はqに*sql.Txを渡す。
func (s *Service) CreateMembership(ctx context.Context, q repository.Querier, group *model.Group, m actor.Member) (*model.GroupUser, error) {
	gu := &model.GroupUser{
		ID:        uuid.NewString(),
		SpaceID:   group.SpaceID,
		GroupID:   group.ID,
		MemberID:  m.ID,
		CreatedAt: time.Now(),
	}

	if err := s.groupUsers.Insert(ctx, q, gu); err != nil {
		if repository.IsUniqueViolation(err, repository.ConstraintGroupUserUnique) {
			return nil, model.NewValidationError(map[string]string{
				"member_id": "すでにこのグループのメンバーです。",
			})
		}
		return nil, fmt.Errorf("メンバーシップの作成に失敗しました: %w", err)
	}

	return gu, nil
}
