// Package group はグループ管理のドメインロジックを提供する。
// グループの取得・検証・更新・クローズと、作成ワークフローの
// オーケストレーション（create.go）を含む。
package group

import (
	"context"
	"database/sql"
	"log/slog"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/hitoshi/groupman/internal/actor"
	"github.com/hitoshi/groupman/internal/bookmark"
	"github.com/hitoshi/groupman/internal/event"
	"github.com/hitoshi/groupman/internal/membership"
	"github.com/hitoshi/groupman/internal/model"
	"github.com/hitoshi/groupman/internal/repository"
	"github.com/microcosm-cc/bluemonday"
)

// 表示属性の文字数上限
const (
	maxNameLength        = 100
	maxDescriptionLength = 1000
)

// MetricsRecorder はグループ操作のメトリクス記録インターフェース。
type MetricsRecorder interface {
	// RecordGroupCreated はグループ作成の成功を記録する。
	RecordGroupCreated()
	// RecordGroupCreateFail は作成ワークフローの失敗をステップ名付きで記録する。
	RecordGroupCreateFail(step string)
}

// Attributes はグループ作成時の表示属性。
type Attributes struct {
	Name        string
	Description string
	IsPrivate   bool
}

// UpdateAttributes はグループ更新時の部分属性。nilのフィールドは変更しない。
type UpdateAttributes struct {
	Name        *string
	Description *string
	IsPrivate   *bool
}

// Service はグループ管理のサービス層。
type Service struct {
	db          *sql.DB
	groups      repository.GroupRepository
	memberships *membership.Service
	bookmarks   *bookmark.Service
	publisher   event.Publisher
	metrics     MetricsRecorder
	sanitizer   *bluemonday.Policy
}

// NewService はServiceの新しいインスタンスを生成する。
func NewService(
	db *sql.DB,
	groups repository.GroupRepository,
	memberships *membership.Service,
	bookmarks *bookmark.Service,
	publisher event.Publisher,
	metrics MetricsRecorder,
) *Service {
	return &Service{
		db:          db,
		groups:      groups,
		memberships: memberships,
		bookmarks:   bookmarks,
		publisher:   publisher,
		metrics:     metrics,
		sanitizer:   bluemonday.StrictPolicy(),
	}
}

// Get はアクターに可視なグループを取得する。
// 存在しない場合とプライベートグループへのアクセス権がない場合は
// 区別せずGROUP_NOT_FOUNDを返し、プライベートグループの存在を漏らさない。
func (s *Service) Get(ctx context.Context, a actor.Actor, id string) (*model.Group, error) {
	group, err := s.groups.FindVisibleByID(ctx, a, id)
	if err != nil {
		slog.Error("グループの取得に失敗しました",
			slog.String("group_id", id),
			slog.String("error", err.Error()),
		)
		return nil, model.NewUnexpectedError()
	}
	if group == nil {
		return nil, model.NewGroupNotFoundError(id)
	}
	return group, nil
}

// ListVisible はアクターに可視な全グループを返す。
func (s *Service) ListVisible(ctx context.Context, a actor.Actor) ([]*model.Group, error) {
	groups, err := s.groups.ListVisible(ctx, a)
	if err != nil {
		slog.Error("可視グループ一覧の取得に失敗しました", slog.String("error", err.Error()))
		return nil, model.NewUnexpectedError()
	}
	return groups, nil
}

// buildGroup は属性を検証し、未保存のグループレコードを組み立てる。
// スペースと作成者はアクターのコンテキストから割り当てる。
func (s *Service) buildGroup(m actor.Member, attrs Attributes) (*model.Group, error) {
	name := strings.TrimSpace(s.sanitizer.Sanitize(attrs.Name))
	description := strings.TrimSpace(s.sanitizer.Sanitize(attrs.Description))

	fields := map[string]string{}
	if name == "" {
		fields["name"] = "表示名は必須です。"
	} else if utf8.RuneCountInString(name) > maxNameLength {
		fields["name"] = "表示名は100文字以内で入力してください。"
	}
	if utf8.RuneCountInString(description) > maxDescriptionLength {
		fields["description"] = "説明は1000文字以内で入力してください。"
	}
	if len(fields) > 0 {
		return nil, model.NewValidationError(fields)
	}

	now := time.Now()
	return &model.Group{
		ID:              uuid.NewString(),
		SpaceID:         m.SpaceID,
		CreatorMemberID: m.ID,
		Name:            name,
		Description:     description,
		IsPrivate:       attrs.IsPrivate,
		State:           model.GroupStateOpen,
		CreatedAt:       now,
		UpdatedAt:       now,
	}, nil
}

// Update はグループの表示属性を部分更新する。
// nilでないフィールドのみ検証のうえ適用する。
func (s *Service) Update(ctx context.Context, group *model.Group, attrs UpdateAttributes) (*model.Group, error) {
	fields := map[string]string{}

	if attrs.Name != nil {
		name := strings.TrimSpace(s.sanitizer.Sanitize(*attrs.Name))
		if name == "" {
			fields["name"] = "表示名は必須です。"
		} else if utf8.RuneCountInString(name) > maxNameLength {
			fields["name"] = "表示名は100文字以内で入力してください。"
		} else {
			group.Name = name
		}
	}
	if attrs.Description != nil {
		description := strings.TrimSpace(s.sanitizer.Sanitize(*attrs.Description))
		if utf8.RuneCountInString(description) > maxDescriptionLength {
			fields["description"] = "説明は1000文字以内で入力してください。"
		} else {
			group.Description = description
		}
	}
	if len(fields) > 0 {
		return nil, model.NewValidationError(fields)
	}
	if attrs.IsPrivate != nil {
		group.IsPrivate = *attrs.IsPrivate
	}

	if err := s.groups.Update(ctx, group); err != nil {
		slog.Error("グループの更新に失敗しました",
			slog.String("group_id", group.ID),
			slog.String("error", err.Error()),
		)
		return nil, model.NewUnexpectedError()
	}
	return group, nil
}

// Close はグループをclosed状態へ遷移させる。
// 一方向の終端遷移であり、状態遷移以外のバリデーションは行わない。
// クローズ後もグループの可視性は変化しない。
func (s *Service) Close(ctx context.Context, group *model.Group) (*model.Group, error) {
	if err := s.groups.Close(ctx, group); err != nil {
		slog.Error("グループのクローズに失敗しました",
			slog.String("group_id", group.ID),
			slog.String("error", err.Error()),
		)
		return nil, model.NewUnexpectedError()
	}
	return group, nil
}
