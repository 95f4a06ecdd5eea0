package repository

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/hitoshi/groupman/internal/model"
	"github.com/lib/pq"
)

// PostgresGroupRepoはGroupRepositoryインターフェースを満たすことを検証
func TestPostgresGroupRepo_ImplementsInterface(t *testing.T) {
	var _ GroupRepository = (*PostgresGroupRepo)(nil)
}

// PostgresGroupUserRepoはGroupUserRepositoryインターフェースを満たすことを検証
func TestPostgresGroupUserRepo_ImplementsInterface(t *testing.T) {
	var _ GroupUserRepository = (*PostgresGroupUserRepo)(nil)
}

// PostgresBookmarkRepoはBookmarkRepositoryインターフェースを満たすことを検証
func TestPostgresBookmarkRepo_ImplementsInterface(t *testing.T) {
	var _ BookmarkRepository = (*PostgresBookmarkRepo)(nil)
}

// PostgresSessionRepoはSessionRepositoryインターフェースを満たすことを検証
func TestPostgresSessionRepo_ImplementsInterface(t *testing.T) {
	var _ SessionRepository = (*PostgresSessionRepo)(nil)
}

// PostgresSpaceMemberRepoはSpaceMemberRepositoryインターフェースを満たすことを検証
func TestPostgresSpaceMemberRepo_ImplementsInterface(t *testing.T) {
	var _ SpaceMemberRepository = (*PostgresSpaceMemberRepo)(nil)
}

// *sql.DBと*sql.TxはどちらもQuerierを満たすことを検証
func TestQuerier_SatisfiedByDBAndTx(t *testing.T) {
	var _ Querier = (*sql.DB)(nil)
	var _ Querier = (*sql.Tx)(nil)
}

// NewPostgres*Repoが正しく初期化されることを検証
func TestNewPostgresRepos_Initialize(t *testing.T) {
	if NewPostgresGroupRepo(nil) == nil {
		t.Error("NewPostgresGroupRepo should return non-nil")
	}
	if NewPostgresGroupUserRepo(nil) == nil {
		t.Error("NewPostgresGroupUserRepo should return non-nil")
	}
	if NewPostgresBookmarkRepo(nil) == nil {
		t.Error("NewPostgresBookmarkRepo should return non-nil")
	}
	if NewPostgresSessionRepo(nil) == nil {
		t.Error("NewPostgresSessionRepo should return non-nil")
	}
	if NewPostgresSpaceMemberRepo(nil) == nil {
		t.Error("NewPostgresSpaceMemberRepo should return non-nil")
	}
}

// fakeQuerier はQuerierのExecContextを記録するモック実装。
// トランザクション引数として渡されるSQLと引数を検証するために使う。
type fakeQuerier struct {
	query string
	args  []any
	err   error
}

func (f *fakeQuerier) ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error) {
	f.query = query
	f.args = args
	if f.err != nil {
		return nil, f.err
	}
	return fakeResult{}, nil
}

func (f *fakeQuerier) QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error) {
	return nil, errors.New("not implemented")
}

func (f *fakeQuerier) QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row {
	return nil
}

type fakeResult struct{}

func (fakeResult) LastInsertId() (int64, error) { return 0, nil }
func (fakeResult) RowsAffected() (int64, error) { return 1, nil }

func TestPostgresGroupUserRepo_Insert_UsesGivenQuerier(t *testing.T) {
	q := &fakeQuerier{}
	repo := NewPostgresGroupUserRepo(nil)

	gu := &model.GroupUser{
		ID:        "gu-1",
		SpaceID:   "space-1",
		GroupID:   "group-1",
		MemberID:  "member-1",
		CreatedAt: time.Now(),
	}

	if err := repo.Insert(context.Background(), q, gu); err != nil {
		t.Fatalf("Insert() がエラーを返した: %v", err)
	}

	// dbフィールドではなく渡されたQuerierに対して実行されること
	if !strings.Contains(q.query, "INSERT INTO group_users") {
		t.Errorf("group_usersへのINSERTが実行されていない: %s", q.query)
	}
	if len(q.args) != 5 {
		t.Errorf("引数の個数 = %d, want 5", len(q.args))
	}
}

func TestPostgresGroupUserRepo_Insert_ClassifiesUniqueViolation(t *testing.T) {
	q := &fakeQuerier{err: &pq.Error{Code: "23505", Constraint: ConstraintGroupUserUnique}}
	repo := NewPostgresGroupUserRepo(nil)

	err := repo.Insert(context.Background(), q, &model.GroupUser{})

	if !IsUniqueViolation(err, ConstraintGroupUserUnique) {
		t.Errorf("ユニーク制約違反として分類されるべき: %v", err)
	}
}

func TestPostgresBookmarkRepo_Insert_ClassifiesUniqueViolation(t *testing.T) {
	q := &fakeQuerier{err: &pq.Error{Code: "23505", Constraint: ConstraintBookmarkUnique}}
	repo := NewPostgresBookmarkRepo(nil)

	err := repo.Insert(context.Background(), q, &model.Bookmark{})

	if !IsUniqueViolation(err, ConstraintBookmarkUnique) {
		t.Errorf("ユニーク制約違反として分類されるべき: %v", err)
	}

	// 違反した制約の同一性で区別できること
	if IsUniqueViolation(err, ConstraintGroupUserUnique) {
		t.Error("異なる制約の違反として判定されるべきでない")
	}
}

func TestPostgresBookmarkRepo_Insert_OtherErrorsPassThrough(t *testing.T) {
	q := &fakeQuerier{err: sql.ErrConnDone}
	repo := NewPostgresBookmarkRepo(nil)

	err := repo.Insert(context.Background(), q, &model.Bookmark{})

	if err == nil {
		t.Fatal("ドライバエラーはそのまま返すべき")
	}
	var uv *UniqueViolationError
	if errors.As(err, &uv) {
		t.Error("ユニーク制約違反以外をUniqueViolationErrorへ分類すべきでない")
	}
}
