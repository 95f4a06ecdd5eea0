// Package cleanup は孤児メンバーシップの自動削除ジョブを提供する。
// スペースメンバー行が失われたgroup_users行を定期バッチで削除する。
// 可視性の判定は孤児を不可視として扱うため、このジョブは正しさではなく
// テーブル衛生のための処理であり、任意のタイミングで冪等に実行できる。
package cleanup

import (
	"context"
	"fmt"
	"log/slog"
	"time"
)

// OrphanDeleter は孤児メンバーシップの削除を抽象化するインターフェース。
// repository.GroupUserRepositoryが満たす。
type OrphanDeleter interface {
	DeleteOrphaned(ctx context.Context) (int64, error)
}

// CleanupJob は孤児メンバーシップの自動削除ジョブ。
// 定期実行のバッチジョブとして設計されており、冪等な削除処理を保証する。
type CleanupJob struct {
	groupUsers OrphanDeleter
	logger     *slog.Logger
}

// NewCleanupJob は新しいCleanupJobを生成する。
func NewCleanupJob(groupUsers OrphanDeleter, logger *slog.Logger) *CleanupJob {
	return &CleanupJob{
		groupUsers: groupUsers,
		logger:     logger,
	}
}

// Run は孤児メンバーシップを削除する。
// 冪等: 削除対象がない場合でもエラーにならない。
func (j *CleanupJob) Run(ctx context.Context) error {
	start := time.Now()

	deletedCount, err := j.groupUsers.DeleteOrphaned(ctx)
	if err != nil {
		j.logger.Error("孤児メンバーシップのクリーンアップに失敗しました",
			slog.String("error", err.Error()),
		)
		return fmt.Errorf("孤児メンバーシップのクリーンアップに失敗: %w", err)
	}

	duration := time.Since(start)
	j.logger.Info("孤児メンバーシップのクリーンアップが完了しました",
		slog.Int64("deleted_count", deletedCount),
		slog.Float64("duration_ms", float64(duration.Milliseconds())),
	)

	return nil
}

// Start は一定間隔でRunを繰り返し実行する。
// 起動直後に1回実行し、以降はinterval間隔で実行する。
// ctxがキャンセルされると停止する（ブロッキング）。
func (j *CleanupJob) Start(ctx context.Context, interval time.Duration) {
	if err := j.Run(ctx); err != nil {
		j.logger.Error("クリーンアップジョブの実行に失敗しました", slog.String("error", err.Error()))
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := j.Run(ctx); err != nil {
				j.logger.Error("クリーンアップジョブの実行に失敗しました", slog.String("error", err.Error()))
			}
		}
	}
}
