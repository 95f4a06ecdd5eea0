// Package bookmark はグループブックマークのドメインロジックを提供する。
// ブックマークはアクセス制御に影響しない純粋な便宜のための関係であり、
// 同時実行の競合はデータベースのユニーク制約のみで解決する。
package bookmark

import (
	"context"
	"database/sql"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/hitoshi/groupman/internal/actor"
	"github.com/hitoshi/groupman/internal/event"
	"github.com/hitoshi/groupman/internal/model"
	"github.com/hitoshi/groupman/internal/repository"
)

// MetricsRecorder はブックマーク操作のメトリクス記録インターフェース。
type MetricsRecorder interface {
	// RecordBookmarkEvent はブックマークイベントの発行を記録する。actionはbookmark | unbookmark。
	RecordBookmarkEvent(action string)
	// RecordBookmarkConflict はユニーク制約により冪等成功へ分類された挿入を記録する。
	RecordBookmarkConflict()
}

// Service はブックマーク管理のサービス層。
type Service struct {
	db        *sql.DB
	bookmarks repository.BookmarkRepository
	groups    repository.GroupRepository
	publisher event.Publisher
	metrics   MetricsRecorder
}

// NewService はServiceの新しいインスタンスを生成する。
func NewService(
	db *sql.DB,
	bookmarks repository.BookmarkRepository,
	groups repository.GroupRepository,
	publisher event.Publisher,
	metrics MetricsRecorder,
) *Service {
	return &Service{
		db:        db,
		bookmarks: bookmarks,
		groups:    groups,
		publisher: publisher,
		metrics:   metrics,
	}
}

// Create はブックマーク行の挿入を試み、新規に挿入されたかどうかを返す。
// ユニーク制約違反は「すでにブックマーク済み」を意味するため(false, nil)として
// 成功扱いにする。それ以外の失敗はそのまま返す。
// トランザクション内で実行する場合はqに*sql.Txを渡す。
func (s *Service) Create(ctx context.Context, q repository.Querier, group *model.Group, m actor.Member) (bool, error) {
	b := &model.Bookmark{
		ID:        uuid.NewString(),
		SpaceID:   group.SpaceID,
		GroupID:   group.ID,
		MemberID:  m.ID,
		CreatedAt: time.Now(),
	}

	err := s.bookmarks.Insert(ctx, q, b)
	if err == nil {
		return true, nil
	}
	if repository.IsUniqueViolation(err, repository.ConstraintBookmarkUnique) {
		if s.metrics != nil {
			s.metrics.RecordBookmarkConflict()
		}
		return false, nil
	}
	return false, err
}

// Bookmark はグループをブックマークする。
// 新規挿入時のみgroup_bookmarkedイベントを発行する。すでにブックマーク済みの
// 場合はイベントなしの成功となり、重複イベントは発行されない。
// 想定外のストレージ障害は詳細をログに記録し、呼び出し元には不透明な
// エラーのみを返す。
func (s *Service) Bookmark(ctx context.Context, group *model.Group, m actor.Member) error {
	created, err := s.Create(ctx, s.db, group, m)
	if err != nil {
		slog.Error("ブックマークの挿入に失敗しました",
			slog.String("group_id", group.ID),
			slog.String("member_id", m.ID),
			slog.String("error", err.Error()),
		)
		return model.NewUnexpectedError()
	}
	if created {
		s.publisher.Publish(event.TopicGroupBookmarked, event.GroupEvent{
			GroupID:  group.ID,
			SpaceID:  group.SpaceID,
			MemberID: m.ID,
		})
		if s.metrics != nil {
			s.metrics.RecordBookmarkEvent("bookmark")
		}
	}
	return nil
}

// Unbookmark はグループのブックマークを解除する。
// 実際に行が削除された場合のみgroup_unbookmarkedイベントを発行する。
// ブックマークされていないグループの解除は何もしない（エラーにしない）。
func (s *Service) Unbookmark(ctx context.Context, group *model.Group, m actor.Member) error {
	deleted, err := s.bookmarks.Delete(ctx, group.ID, m.ID)
	if err != nil {
		slog.Error("ブックマークの削除に失敗しました",
			slog.String("group_id", group.ID),
			slog.String("member_id", m.ID),
			slog.String("error", err.Error()),
		)
		return model.NewUnexpectedError()
	}
	if deleted {
		s.publisher.Publish(event.TopicGroupUnbookmarked, event.GroupEvent{
			GroupID:  group.ID,
			SpaceID:  group.SpaceID,
			MemberID: m.ID,
		})
		if s.metrics != nil {
			s.metrics.RecordBookmarkEvent("unbookmark")
		}
	}
	return nil
}

// ListBookmarked はメンバーに可視かつブックマーク済みのグループ一覧を返す。
// 可視性述語とブックマーク存在条件の合成は[repository.GroupRepository]が行う。
func (s *Service) ListBookmarked(ctx context.Context, m actor.Member) ([]*model.Group, error) {
	groups, err := s.groups.ListBookmarked(ctx, m)
	if err != nil {
		slog.Error("ブックマーク済みグループ一覧の取得に失敗しました",
			slog.String("member_id", m.ID),
			slog.String("error", err.Error()),
		)
		return nil, model.NewUnexpectedError()
	}
	return groups, nil
}
