package group

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/hitoshi/groupman/internal/actor"
	"github.com/hitoshi/groupman/internal/event"
	"github.com/hitoshi/groupman/internal/model"
)

// 作成ワークフローのステップ名
const (
	// StepGroup はグループレコードの検証と挿入ステップ。
	StepGroup = "group"
	// StepGroupUser は作成者メンバーシップの挿入ステップ。
	StepGroupUser = "group_user"
	// StepBookmarked は初期ブックマークの挿入ステップ（ベストエフォート）。
	StepBookmarked = "bookmarked"
)

// StepError は作成ワークフローのどのステップが失敗したかを表す。
type StepError struct {
	Step string
	Err  error
}

// Error はerrorインターフェースを実装する。
func (e *StepError) Error() string {
	return fmt.Sprintf("グループ作成のステップ %s が失敗しました: %v", e.Step, e.Err)
}

// Unwrap は失敗の原因となったエラーを返す。
func (e *StepError) Unwrap() error {
	return e.Err
}

// CreateResult はグループ作成ワークフローの結果。
// Bookmarkedは作成者のグループ一覧でブックマーク済みとして表示されるかどうか。
type CreateResult struct {
	Group      *model.Group
	GroupUser  *model.GroupUser
	Bookmarked bool
}

// createStep は作成ワークフローの名前付き必須ステップ。
// 失敗はトランザクション全体を中断する。
type createStep struct {
	name string
	run  func(ctx context.Context) error
}

// CreateGroup はグループ作成のオーケストレーションを行う。
//
// 単一トランザクション内で次の順序付きステップを実行する:
//  1. group: 属性を検証してグループを挿入する
//  2. group_user: 作成者のメンバーシップを挿入する。失敗は全体を中断する
//     （作成者は必ず自分のグループのメンバーでなければならない）
//  3. bookmarked: 作成者の初期ブックマークを挿入する。ベストエフォートであり、
//     失敗してもグループ作成は妨げない
//
// ステップ1・2の失敗時は全体がロールバックされ、部分的なグループや
// メンバーシップは観測されない。失敗したステップ名はStepErrorで返す。
// 初期ブックマークのgroup_bookmarkedイベントはコミット成功後にのみ発行する。
func (s *Service) CreateGroup(ctx context.Context, m actor.Member, attrs Attributes) (*CreateResult, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		slog.Error("トランザクションの開始に失敗しました", slog.String("error", err.Error()))
		return nil, model.NewUnexpectedError()
	}
	defer tx.Rollback()

	result := &CreateResult{}
	bookmarkCreated := false

	steps := []createStep{
		{
			name: StepGroup,
			run: func(ctx context.Context) error {
				group, err := s.buildGroup(m, attrs)
				if err != nil {
					return err
				}
				if err := s.groups.Insert(ctx, tx, group); err != nil {
					return err
				}
				result.Group = group
				return nil
			},
		},
		{
			name: StepGroupUser,
			run: func(ctx context.Context) error {
				gu, err := s.memberships.CreateMembership(ctx, tx, result.Group, m)
				if err != nil {
					return err
				}
				result.GroupUser = gu
				return nil
			},
		},
	}

	for _, step := range steps {
		if err := step.run(ctx); err != nil {
			if s.metrics != nil {
				s.metrics.RecordGroupCreateFail(step.name)
			}
			return nil, &StepError{Step: step.name, Err: err}
		}
	}

	// ステップ3: 初期ブックマーク。PostgreSQLはステートメントが1つでも失敗すると
	// トランザクション全体を中断状態にするため、SAVEPOINTで囲んで挿入が成功
	// しなかった場合はそこまで巻き戻し、コミットを守る。ユニーク制約違反で
	// 冪等に成功扱いとする場合もINSERT自体は失敗しているので巻き戻しが要る。
	if _, err := tx.ExecContext(ctx, "SAVEPOINT "+StepBookmarked); err != nil {
		slog.Warn("SAVEPOINTの作成に失敗しました",
			slog.String("step", StepBookmarked),
			slog.String("error", err.Error()),
		)
	} else {
		created, err := s.bookmarks.Create(ctx, tx, result.Group, m)
		if !created {
			if _, rbErr := tx.ExecContext(ctx, "ROLLBACK TO SAVEPOINT "+StepBookmarked); rbErr != nil {
				slog.Error("SAVEPOINTへの巻き戻しに失敗しました",
					slog.String("step", StepBookmarked),
					slog.String("error", rbErr.Error()),
				)
			}
		}
		if err != nil {
			slog.Warn("ベストエフォートのステップが失敗しました",
				slog.String("step", StepBookmarked),
				slog.String("error", err.Error()),
			)
		} else {
			bookmarkCreated = created
			result.Bookmarked = true
		}
	}

	if err := tx.Commit(); err != nil {
		slog.Error("トランザクションのコミットに失敗しました", slog.String("error", err.Error()))
		return nil, model.NewUnexpectedError()
	}

	if bookmarkCreated {
		s.publisher.Publish(event.TopicGroupBookmarked, event.GroupEvent{
			GroupID:  result.Group.ID,
			SpaceID:  result.Group.SpaceID,
			MemberID: m.ID,
		})
	}
	if s.metrics != nil {
		s.metrics.RecordGroupCreated()
	}

	return result, nil
}
