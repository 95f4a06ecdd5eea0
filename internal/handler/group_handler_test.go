package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/hitoshi/groupman/internal/actor"
	"github.com/hitoshi/groupman/internal/group"
	"github.com/hitoshi/groupman/internal/middleware"
	"github.com/hitoshi/groupman/internal/model"
)

// GroupServiceInterfaceのモック実装
type mockGroupService struct {
	getFunc         func(ctx context.Context, a actor.Actor, id string) (*model.Group, error)
	createGroupFunc func(ctx context.Context, m actor.Member, attrs group.Attributes) (*group.CreateResult, error)
	updateFunc      func(ctx context.Context, g *model.Group, attrs group.UpdateAttributes) (*model.Group, error)
	closeFunc       func(ctx context.Context, g *model.Group) (*model.Group, error)
	listVisibleFunc func(ctx context.Context, a actor.Actor) ([]*model.Group, error)
}

func (m *mockGroupService) Get(ctx context.Context, a actor.Actor, id string) (*model.Group, error) {
	return m.getFunc(ctx, a, id)
}

func (m *mockGroupService) CreateGroup(ctx context.Context, member actor.Member, attrs group.Attributes) (*group.CreateResult, error) {
	return m.createGroupFunc(ctx, member, attrs)
}

func (m *mockGroupService) Update(ctx context.Context, g *model.Group, attrs group.UpdateAttributes) (*model.Group, error) {
	return m.updateFunc(ctx, g, attrs)
}

func (m *mockGroupService) Close(ctx context.Context, g *model.Group) (*model.Group, error) {
	return m.closeFunc(ctx, g)
}

func (m *mockGroupService) ListVisible(ctx context.Context, a actor.Actor) ([]*model.Group, error) {
	return m.listVisibleFunc(ctx, a)
}

// BookmarkServiceInterfaceのモック実装
type mockBookmarkService struct {
	bookmarkFunc       func(ctx context.Context, g *model.Group, m actor.Member) error
	unbookmarkFunc     func(ctx context.Context, g *model.Group, m actor.Member) error
	listBookmarkedFunc func(ctx context.Context, m actor.Member) ([]*model.Group, error)
}

func (m *mockBookmarkService) Bookmark(ctx context.Context, g *model.Group, member actor.Member) error {
	return m.bookmarkFunc(ctx, g, member)
}

func (m *mockBookmarkService) Unbookmark(ctx context.Context, g *model.Group, member actor.Member) error {
	return m.unbookmarkFunc(ctx, g, member)
}

func (m *mockBookmarkService) ListBookmarked(ctx context.Context, member actor.Member) ([]*model.Group, error) {
	return m.listBookmarkedFunc(ctx, member)
}

// MembershipServiceInterfaceのモック実装
type mockMembershipService struct {
	getMembershipFunc func(ctx context.Context, g *model.Group, m actor.Member) (*model.GroupUser, error)
}

func (m *mockMembershipService) GetMembership(ctx context.Context, g *model.Group, member actor.Member) (*model.GroupUser, error) {
	return m.getMembershipFunc(ctx, g, member)
}

func testGroup() *model.Group {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	return &model.Group{
		ID:              "group-1",
		SpaceID:         "space-1",
		CreatorMemberID: "member-1",
		Name:            "開発チーム",
		Description:     "バックエンドの開発",
		IsPrivate:       true,
		State:           model.GroupStateOpen,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
}

func testMember() actor.Member {
	return actor.Member{ID: "member-1", SpaceID: "space-1"}
}

// memberRequest はメンバーアクターとchiのURLパラメータ付きリクエストを組み立てる。
func memberRequest(method, target string, body string, a actor.Actor, params map[string]string) *http.Request {
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
	} else {
		req = httptest.NewRequest(method, target, nil)
	}

	rctx := chi.NewRouteContext()
	for k, v := range params {
		rctx.URLParams.Add(k, v)
	}
	ctx := context.WithValue(req.Context(), chi.RouteCtxKey, rctx)
	if a != nil {
		ctx = middleware.ContextWithActor(ctx, a)
	}
	return req.WithContext(ctx)
}

func decodeError(t *testing.T, w *httptest.ResponseRecorder) apiErrorResponse {
	t.Helper()
	var body apiErrorResponse
	if err := json.NewDecoder(w.Result().Body).Decode(&body); err != nil {
		t.Fatalf("エラーレスポンスのデコードに失敗: %v", err)
	}
	return body
}

func TestCreateGroup_Success(t *testing.T) {
	groups := &mockGroupService{
		createGroupFunc: func(ctx context.Context, m actor.Member, attrs group.Attributes) (*group.CreateResult, error) {
			if attrs.Name != "開発チーム" || !attrs.IsPrivate {
				t.Errorf("属性が異なる: %+v", attrs)
			}
			return &group.CreateResult{
				Group:      testGroup(),
				GroupUser:  &model.GroupUser{ID: "gu-1", GroupID: "group-1", MemberID: m.ID},
				Bookmarked: true,
			}, nil
		},
	}
	h := NewGroupHandler(groups, nil, nil, nil)

	req := memberRequest(http.MethodPost, "/api/spaces/space-1/groups",
		`{"name":"開発チーム","description":"バックエンドの開発","is_private":true}`,
		testMember(), nil)
	w := httptest.NewRecorder()

	h.CreateGroup(w, req)

	if w.Result().StatusCode != http.StatusCreated {
		t.Fatalf("status = %d, want %d", w.Result().StatusCode, http.StatusCreated)
	}

	var resp createGroupResponse
	if err := json.NewDecoder(w.Result().Body).Decode(&resp); err != nil {
		t.Fatalf("レスポンスのデコードに失敗: %v", err)
	}
	if resp.Group.ID != "group-1" {
		t.Errorf("group.id = %q, want group-1", resp.Group.ID)
	}
	if resp.GroupUser.ID != "gu-1" {
		t.Errorf("group_user.id = %q, want gu-1", resp.GroupUser.ID)
	}
	if !resp.Bookmarked {
		t.Error("bookmarkedがtrueであるべき")
	}
}

func TestCreateGroup_BestEffortBookmarkFailure_StillSucceeds(t *testing.T) {
	groups := &mockGroupService{
		createGroupFunc: func(ctx context.Context, m actor.Member, attrs group.Attributes) (*group.CreateResult, error) {
			// 初期ブックマークだけが失敗してもワークフロー全体は成功する
			return &group.CreateResult{
				Group:      testGroup(),
				GroupUser:  &model.GroupUser{ID: "gu-1"},
				Bookmarked: false,
			}, nil
		},
	}
	h := NewGroupHandler(groups, nil, nil, nil)

	req := memberRequest(http.MethodPost, "/api/spaces/space-1/groups",
		`{"name":"開発チーム"}`, testMember(), nil)
	w := httptest.NewRecorder()

	h.CreateGroup(w, req)

	if w.Result().StatusCode != http.StatusCreated {
		t.Fatalf("status = %d, want %d", w.Result().StatusCode, http.StatusCreated)
	}

	var resp createGroupResponse
	if err := json.NewDecoder(w.Result().Body).Decode(&resp); err != nil {
		t.Fatalf("レスポンスのデコードに失敗: %v", err)
	}
	if resp.Bookmarked {
		t.Error("ブックマーク失敗時はbookmarked=falseで成功を返すべき")
	}
}

func TestCreateGroup_ValidationFailure_IncludesStep(t *testing.T) {
	groups := &mockGroupService{
		createGroupFunc: func(ctx context.Context, m actor.Member, attrs group.Attributes) (*group.CreateResult, error) {
			return nil, &group.StepError{
				Step: group.StepGroup,
				Err:  model.NewValidationError(map[string]string{"name": "表示名は必須です。"}),
			}
		},
	}
	h := NewGroupHandler(groups, nil, nil, nil)

	req := memberRequest(http.MethodPost, "/api/spaces/space-1/groups",
		`{"name":""}`, testMember(), nil)
	w := httptest.NewRecorder()

	h.CreateGroup(w, req)

	if w.Result().StatusCode != http.StatusUnprocessableEntity {
		t.Fatalf("status = %d, want %d", w.Result().StatusCode, http.StatusUnprocessableEntity)
	}

	body := decodeError(t, w)
	if body.Code != model.ErrCodeValidationFailed {
		t.Errorf("code = %q, want %q", body.Code, model.ErrCodeValidationFailed)
	}
	// どのステップで失敗したかがレスポンスで識別できること
	if body.Step != "group" {
		t.Errorf("step = %q, want group", body.Step)
	}
	if body.Fields["name"] == "" {
		t.Errorf("nameのフィールドエラーが含まれるべき: %v", body.Fields)
	}
}

func TestCreateGroup_MembershipStepFailure_OpaqueWithStep(t *testing.T) {
	groups := &mockGroupService{
		createGroupFunc: func(ctx context.Context, m actor.Member, attrs group.Attributes) (*group.CreateResult, error) {
			return nil, &group.StepError{
				Step: group.StepGroupUser,
				Err:  errors.New("pq: deadlock detected"),
			}
		},
	}
	h := NewGroupHandler(groups, nil, nil, nil)

	req := memberRequest(http.MethodPost, "/api/spaces/space-1/groups",
		`{"name":"開発チーム"}`, testMember(), nil)
	w := httptest.NewRecorder()

	h.CreateGroup(w, req)

	if w.Result().StatusCode != http.StatusInternalServerError {
		t.Fatalf("status = %d, want %d", w.Result().StatusCode, http.StatusInternalServerError)
	}

	body := decodeError(t, w)
	if body.Step != "group_user" {
		t.Errorf("step = %q, want group_user", body.Step)
	}
	// ストレージ障害の詳細は公開しない
	if strings.Contains(body.Message, "deadlock") {
		t.Errorf("障害の詳細が公開されるべきでない: %q", body.Message)
	}
}

func TestCreateGroup_InvalidBody_Returns400(t *testing.T) {
	h := NewGroupHandler(&mockGroupService{}, nil, nil, nil)

	req := memberRequest(http.MethodPost, "/api/spaces/space-1/groups",
		`{invalid`, testMember(), nil)
	w := httptest.NewRecorder()

	h.CreateGroup(w, req)

	if w.Result().StatusCode != http.StatusBadRequest {
		t.Errorf("status = %d, want %d", w.Result().StatusCode, http.StatusBadRequest)
	}
}

func TestCreateGroup_WithoutMemberActor_Returns401(t *testing.T) {
	h := NewGroupHandler(&mockGroupService{}, nil, nil, nil)

	// グローバルユーザーアクターではグループを作成できない
	req := memberRequest(http.MethodPost, "/api/spaces/space-1/groups",
		`{"name":"開発チーム"}`, actor.User{ID: "user-1"}, nil)
	w := httptest.NewRecorder()

	h.CreateGroup(w, req)

	if w.Result().StatusCode != http.StatusUnauthorized {
		t.Errorf("status = %d, want %d", w.Result().StatusCode, http.StatusUnauthorized)
	}
}

func TestGetGroup_Success(t *testing.T) {
	groups := &mockGroupService{
		getFunc: func(ctx context.Context, a actor.Actor, id string) (*model.Group, error) {
			if id != "group-1" {
				t.Errorf("id = %q, want group-1", id)
			}
			return testGroup(), nil
		},
	}
	h := NewGroupHandler(groups, nil, nil, nil)

	req := memberRequest(http.MethodGet, "/api/groups/group-1", "",
		actor.User{ID: "user-1"}, map[string]string{"id": "group-1"})
	w := httptest.NewRecorder()

	h.GetGroup(w, req)

	if w.Result().StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want %d", w.Result().StatusCode, http.StatusOK)
	}

	var resp groupResponse
	if err := json.NewDecoder(w.Result().Body).Decode(&resp); err != nil {
		t.Fatalf("レスポンスのデコードに失敗: %v", err)
	}
	if resp.ID != "group-1" || resp.State != "open" {
		t.Errorf("resp = %+v", resp)
	}
}

func TestGetGroup_NotVisible_Returns404(t *testing.T) {
	groups := &mockGroupService{
		getFunc: func(ctx context.Context, a actor.Actor, id string) (*model.Group, error) {
			// 存在しない場合もアクセス権がない場合も同一のエラー
			return nil, model.NewGroupNotFoundError(id)
		},
	}
	h := NewGroupHandler(groups, nil, nil, nil)

	req := memberRequest(http.MethodGet, "/api/groups/private-group", "",
		actor.User{ID: "outsider"}, map[string]string{"id": "private-group"})
	w := httptest.NewRecorder()

	h.GetGroup(w, req)

	if w.Result().StatusCode != http.StatusNotFound {
		t.Fatalf("status = %d, want %d", w.Result().StatusCode, http.StatusNotFound)
	}

	body := decodeError(t, w)
	if body.Code != model.ErrCodeGroupNotFound {
		t.Errorf("code = %q, want %q", body.Code, model.ErrCodeGroupNotFound)
	}
}

func TestListGroups_ResolvesVisibleGroups(t *testing.T) {
	calls := 0
	groups := &mockGroupService{
		listVisibleFunc: func(ctx context.Context, a actor.Actor) ([]*model.Group, error) {
			calls++
			return []*model.Group{testGroup()}, nil
		},
	}
	h := NewGroupHandler(groups, nil, nil, nil)

	req := memberRequest(http.MethodGet, "/api/groups", "", actor.User{ID: "user-1"}, nil)
	w := httptest.NewRecorder()

	h.ListGroups(w, req)

	if w.Result().StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want %d", w.Result().StatusCode, http.StatusOK)
	}

	var resp []groupResponse
	if err := json.NewDecoder(w.Result().Body).Decode(&resp); err != nil {
		t.Fatalf("レスポンスのデコードに失敗: %v", err)
	}
	if len(resp) != 1 || resp[0].ID != "group-1" {
		t.Errorf("resp = %+v", resp)
	}
	if calls != 1 {
		t.Errorf("可視グループクエリの発行回数 = %d, want 1", calls)
	}
}

func TestListGroups_EmptyResult_ReturnsEmptyArray(t *testing.T) {
	groups := &mockGroupService{
		listVisibleFunc: func(ctx context.Context, a actor.Actor) ([]*model.Group, error) {
			return nil, nil
		},
	}
	h := NewGroupHandler(groups, nil, nil, nil)

	req := memberRequest(http.MethodGet, "/api/groups", "", actor.User{ID: "user-1"}, nil)
	w := httptest.NewRecorder()

	h.ListGroups(w, req)

	// nullではなく[]を返す
	got := strings.TrimSpace(w.Body.String())
	if got != "[]" {
		t.Errorf("body = %q, want []", got)
	}
}

func TestUpdateGroup_PartialUpdate(t *testing.T) {
	groups := &mockGroupService{
		getFunc: func(ctx context.Context, a actor.Actor, id string) (*model.Group, error) {
			return testGroup(), nil
		},
		updateFunc: func(ctx context.Context, g *model.Group, attrs group.UpdateAttributes) (*model.Group, error) {
			if attrs.Name == nil || *attrs.Name != "新しい名前" {
				t.Errorf("Name = %v", attrs.Name)
			}
			// 省略されたフィールドはnilで渡ること
			if attrs.Description != nil {
				t.Errorf("省略フィールドはnilであるべき: Description = %v", attrs.Description)
			}
			g.Name = *attrs.Name
			return g, nil
		},
	}
	h := NewGroupHandler(groups, nil, nil, nil)

	req := memberRequest(http.MethodPatch, "/api/spaces/space-1/groups/group-1",
		`{"name":"新しい名前"}`, testMember(), map[string]string{"id": "group-1"})
	w := httptest.NewRecorder()

	h.UpdateGroup(w, req)

	if w.Result().StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want %d", w.Result().StatusCode, http.StatusOK)
	}

	var resp groupResponse
	if err := json.NewDecoder(w.Result().Body).Decode(&resp); err != nil {
		t.Fatalf("レスポンスのデコードに失敗: %v", err)
	}
	if resp.Name != "新しい名前" {
		t.Errorf("name = %q, want 新しい名前", resp.Name)
	}
}

func TestCloseGroup_ReturnsClosedState(t *testing.T) {
	groups := &mockGroupService{
		getFunc: func(ctx context.Context, a actor.Actor, id string) (*model.Group, error) {
			return testGroup(), nil
		},
		closeFunc: func(ctx context.Context, g *model.Group) (*model.Group, error) {
			g.State = model.GroupStateClosed
			return g, nil
		},
	}
	h := NewGroupHandler(groups, nil, nil, nil)

	req := memberRequest(http.MethodPost, "/api/spaces/space-1/groups/group-1/close",
		"", testMember(), map[string]string{"id": "group-1"})
	w := httptest.NewRecorder()

	h.CloseGroup(w, req)

	var resp groupResponse
	if err := json.NewDecoder(w.Result().Body).Decode(&resp); err != nil {
		t.Fatalf("レスポンスのデコードに失敗: %v", err)
	}
	if resp.State != "closed" {
		t.Errorf("state = %q, want closed", resp.State)
	}
}

func TestGetMembership_Success(t *testing.T) {
	groups := &mockGroupService{
		getFunc: func(ctx context.Context, a actor.Actor, id string) (*model.Group, error) {
			return testGroup(), nil
		},
	}
	memberships := &mockMembershipService{
		getMembershipFunc: func(ctx context.Context, g *model.Group, m actor.Member) (*model.GroupUser, error) {
			return &model.GroupUser{ID: "gu-1", GroupID: g.ID, MemberID: m.ID}, nil
		},
	}
	h := NewGroupHandler(groups, nil, memberships, nil)

	req := memberRequest(http.MethodGet, "/api/spaces/space-1/groups/group-1/membership",
		"", testMember(), map[string]string{"id": "group-1"})
	w := httptest.NewRecorder()

	h.GetMembership(w, req)

	if w.Result().StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want %d", w.Result().StatusCode, http.StatusOK)
	}

	var resp groupUserResponse
	if err := json.NewDecoder(w.Result().Body).Decode(&resp); err != nil {
		t.Fatalf("レスポンスのデコードに失敗: %v", err)
	}
	if resp.MemberID != "member-1" {
		t.Errorf("member_id = %q, want member-1", resp.MemberID)
	}
}

func TestGetMembership_NotAMember_Returns404(t *testing.T) {
	groups := &mockGroupService{
		getFunc: func(ctx context.Context, a actor.Actor, id string) (*model.Group, error) {
			return testGroup(), nil
		},
	}
	memberships := &mockMembershipService{
		getMembershipFunc: func(ctx context.Context, g *model.Group, m actor.Member) (*model.GroupUser, error) {
			return nil, model.NewNotAMemberError(g.ID)
		},
	}
	h := NewGroupHandler(groups, nil, memberships, nil)

	req := memberRequest(http.MethodGet, "/api/spaces/space-1/groups/group-1/membership",
		"", testMember(), map[string]string{"id": "group-1"})
	w := httptest.NewRecorder()

	h.GetMembership(w, req)

	if w.Result().StatusCode != http.StatusNotFound {
		t.Errorf("status = %d, want %d", w.Result().StatusCode, http.StatusNotFound)
	}
}

func TestBookmarkGroup_Returns204(t *testing.T) {
	groups := &mockGroupService{
		getFunc: func(ctx context.Context, a actor.Actor, id string) (*model.Group, error) {
			return testGroup(), nil
		},
	}
	bookmarks := &mockBookmarkService{
		bookmarkFunc: func(ctx context.Context, g *model.Group, m actor.Member) error {
			return nil
		},
	}
	h := NewGroupHandler(groups, bookmarks, nil, nil)

	req := memberRequest(http.MethodPut, "/api/spaces/space-1/groups/group-1/bookmark",
		"", testMember(), map[string]string{"id": "group-1"})
	w := httptest.NewRecorder()

	h.BookmarkGroup(w, req)

	if w.Result().StatusCode != http.StatusNoContent {
		t.Errorf("status = %d, want %d", w.Result().StatusCode, http.StatusNoContent)
	}
}

func TestBookmarkGroup_InvisibleGroup_Returns404(t *testing.T) {
	groups := &mockGroupService{
		getFunc: func(ctx context.Context, a actor.Actor, id string) (*model.Group, error) {
			// 不可視なグループはブックマークできない
			return nil, model.NewGroupNotFoundError(id)
		},
	}
	bookmarks := &mockBookmarkService{
		bookmarkFunc: func(ctx context.Context, g *model.Group, m actor.Member) error {
			t.Fatal("不可視グループのブックマークは実行されるべきでない")
			return nil
		},
	}
	h := NewGroupHandler(groups, bookmarks, nil, nil)

	req := memberRequest(http.MethodPut, "/api/spaces/space-1/groups/hidden/bookmark",
		"", testMember(), map[string]string{"id": "hidden"})
	w := httptest.NewRecorder()

	h.BookmarkGroup(w, req)

	if w.Result().StatusCode != http.StatusNotFound {
		t.Errorf("status = %d, want %d", w.Result().StatusCode, http.StatusNotFound)
	}
}

func TestUnbookmarkGroup_Returns204(t *testing.T) {
	groups := &mockGroupService{
		getFunc: func(ctx context.Context, a actor.Actor, id string) (*model.Group, error) {
			return testGroup(), nil
		},
	}
	bookmarks := &mockBookmarkService{
		unbookmarkFunc: func(ctx context.Context, g *model.Group, m actor.Member) error {
			return nil
		},
	}
	h := NewGroupHandler(groups, bookmarks, nil, nil)

	req := memberRequest(http.MethodDelete, "/api/spaces/space-1/groups/group-1/bookmark",
		"", testMember(), map[string]string{"id": "group-1"})
	w := httptest.NewRecorder()

	h.UnbookmarkGroup(w, req)

	if w.Result().StatusCode != http.StatusNoContent {
		t.Errorf("status = %d, want %d", w.Result().StatusCode, http.StatusNoContent)
	}
}

func TestListBookmarked_ReturnsGroups(t *testing.T) {
	bookmarks := &mockBookmarkService{
		listBookmarkedFunc: func(ctx context.Context, m actor.Member) ([]*model.Group, error) {
			return []*model.Group{testGroup()}, nil
		},
	}
	h := NewGroupHandler(nil, bookmarks, nil, nil)

	req := memberRequest(http.MethodGet, "/api/spaces/space-1/groups/bookmarked",
		"", testMember(), nil)
	w := httptest.NewRecorder()

	h.ListBookmarked(w, req)

	if w.Result().StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want %d", w.Result().StatusCode, http.StatusOK)
	}

	var resp []groupResponse
	if err := json.NewDecoder(w.Result().Body).Decode(&resp); err != nil {
		t.Fatalf("レスポンスのデコードに失敗: %v", err)
	}
	if len(resp) != 1 {
		t.Errorf("件数 = %d, want 1", len(resp))
	}
}

func TestMapAPIErrorToHTTPStatus(t *testing.T) {
	tests := []struct {
		name string
		err  *model.APIError
		want int
	}{
		{"グループ未検出は404", model.NewGroupNotFoundError("g"), http.StatusNotFound},
		{"スペース未検出は404", model.NewSpaceNotFoundError("s"), http.StatusNotFound},
		{"非メンバーは404", model.NewNotAMemberError("g"), http.StatusNotFound},
		{"バリデーション失敗は422", model.NewValidationError(nil), http.StatusUnprocessableEntity},
		{"未認証は401", model.NewUnauthorizedError(), http.StatusUnauthorized},
		{"想定外エラーは500", model.NewUnexpectedError(), http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := mapAPIErrorToHTTPStatus(tt.err); got != tt.want {
				t.Errorf("mapAPIErrorToHTTPStatus() = %d, want %d", got, tt.want)
			}
		})
	}
}
