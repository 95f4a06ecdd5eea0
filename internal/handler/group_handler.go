// Package handler はHTTP APIのハンドラーを提供する。
package handler

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/hitoshi/groupman/internal/actor"
	"github.com/hitoshi/groupman/internal/group"
	"github.com/hitoshi/groupman/internal/loader"
	"github.com/hitoshi/groupman/internal/middleware"
	"github.com/hitoshi/groupman/internal/model"
)

// GroupServiceInterface はグループハンドラーが必要とするサービスインターフェース。
type GroupServiceInterface interface {
	// Get はアクターに可視なグループを取得する。
	Get(ctx context.Context, a actor.Actor, id string) (*model.Group, error)
	// CreateGroup はグループ作成ワークフローを実行する。
	CreateGroup(ctx context.Context, m actor.Member, attrs group.Attributes) (*group.CreateResult, error)
	// Update はグループの表示属性を部分更新する。
	Update(ctx context.Context, g *model.Group, attrs group.UpdateAttributes) (*model.Group, error)
	// Close はグループをclosed状態へ遷移させる。
	Close(ctx context.Context, g *model.Group) (*model.Group, error)
	// ListVisible はアクターに可視な全グループを返す。
	ListVisible(ctx context.Context, a actor.Actor) ([]*model.Group, error)
}

// BookmarkServiceInterface はブックマーク操作のサービスインターフェース。
type BookmarkServiceInterface interface {
	// Bookmark はグループをブックマークする（冪等）。
	Bookmark(ctx context.Context, g *model.Group, m actor.Member) error
	// Unbookmark はブックマークを解除する（冪等）。
	Unbookmark(ctx context.Context, g *model.Group, m actor.Member) error
	// ListBookmarked はブックマーク済みの可視グループ一覧を返す。
	ListBookmarked(ctx context.Context, m actor.Member) ([]*model.Group, error)
}

// MembershipServiceInterface はメンバーシップ参照のサービスインターフェース。
type MembershipServiceInterface interface {
	// GetMembership はグループとメンバーのメンバーシップを取得する。
	GetMembership(ctx context.Context, g *model.Group, m actor.Member) (*model.GroupUser, error)
}

// GroupHandler はグループ管理のHTTPハンドラー。
type GroupHandler struct {
	groups      GroupServiceInterface
	bookmarks   BookmarkServiceInterface
	memberships MembershipServiceInterface
	observer    loader.Observer
}

// NewGroupHandler はGroupHandlerを生成する。
// observerは可視性クエリの観測用で、nilでもよい。
func NewGroupHandler(
	groups GroupServiceInterface,
	bookmarks BookmarkServiceInterface,
	memberships MembershipServiceInterface,
	observer loader.Observer,
) *GroupHandler {
	return &GroupHandler{
		groups:      groups,
		bookmarks:   bookmarks,
		memberships: memberships,
		observer:    observer,
	}
}

// groupResponse はグループのAPIレスポンス。
type groupResponse struct {
	ID              string    `json:"id"`
	SpaceID         string    `json:"space_id"`
	CreatorMemberID string    `json:"creator_member_id"`
	Name            string    `json:"name"`
	Description     string    `json:"description"`
	IsPrivate       bool      `json:"is_private"`
	State           string    `json:"state"`
	CreatedAt       time.Time `json:"created_at"`
	UpdatedAt       time.Time `json:"updated_at"`
}

// groupUserResponse はメンバーシップのAPIレスポンス。
type groupUserResponse struct {
	ID        string    `json:"id"`
	SpaceID   string    `json:"space_id"`
	GroupID   string    `json:"group_id"`
	MemberID  string    `json:"member_id"`
	CreatedAt time.Time `json:"created_at"`
}

// createGroupResponse はグループ作成ワークフローのAPIレスポンス。
type createGroupResponse struct {
	Group      groupResponse     `json:"group"`
	GroupUser  groupUserResponse `json:"group_user"`
	Bookmarked bool              `json:"bookmarked"`
}

// createGroupRequest はグループ作成リクエストのボディ。
type createGroupRequest struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	IsPrivate   bool   `json:"is_private"`
}

// updateGroupRequest はグループ更新リクエストのボディ。nilのフィールドは変更しない。
type updateGroupRequest struct {
	Name        *string `json:"name"`
	Description *string `json:"description"`
	IsPrivate   *bool   `json:"is_private"`
}

// CreateGroup はグループ作成ワークフローを実行する。
// POST /api/spaces/{spaceID}/groups
func (h *GroupHandler) CreateGroup(w http.ResponseWriter, r *http.Request) {
	m, err := middleware.MemberFromContext(r.Context())
	if err != nil {
		writeAPIErrorResponse(w, http.StatusUnauthorized, model.NewUnauthorizedError())
		return
	}

	var req createGroupRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeAPIErrorResponse(w, http.StatusBadRequest, model.NewValidationError(map[string]string{
			"body": "リクエストボディを解析できません。",
		}))
		return
	}

	result, err := h.groups.CreateGroup(r.Context(), m, group.Attributes{
		Name:        req.Name,
		Description: req.Description,
		IsPrivate:   req.IsPrivate,
	})
	if err != nil {
		handleCreateGroupError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, createGroupResponse{
		Group:      toGroupResponse(result.Group),
		GroupUser:  toGroupUserResponse(result.GroupUser),
		Bookmarked: result.Bookmarked,
	})
}

// GetGroup はアクターに可視なグループを取得する。
// GET /api/spaces/{spaceID}/groups/{id} および GET /api/groups/{id}
func (h *GroupHandler) GetGroup(w http.ResponseWriter, r *http.Request) {
	a := middleware.ActorFromContext(r.Context())
	if a == nil {
		writeAPIErrorResponse(w, http.StatusUnauthorized, model.NewUnauthorizedError())
		return
	}

	g, err := h.groups.Get(r.Context(), a, chi.URLParam(r, "id"))
	if err != nil {
		handleServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, toGroupResponse(g))
}

// ListGroups はアクターに可視な全グループを返す。
// フィールド解決がリクエスト内で繰り返されても実クエリがアクターごとに
// 1回で済むよう、リクエストスコープのローダー経由で解決する。
// GET /api/spaces/{spaceID}/groups および GET /api/groups
func (h *GroupHandler) ListGroups(w http.ResponseWriter, r *http.Request) {
	a := middleware.ActorFromContext(r.Context())
	if a == nil {
		writeAPIErrorResponse(w, http.StatusUnauthorized, model.NewUnauthorizedError())
		return
	}

	loaders := loader.New(r.Context(), h.groups, h.observer)
	groups, err := loaders.VisibleGroups(r.Context())
	if err != nil {
		handleServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, toGroupResponses(groups))
}

// UpdateGroup はグループの表示属性を部分更新する。
// PATCH /api/spaces/{spaceID}/groups/{id}
func (h *GroupHandler) UpdateGroup(w http.ResponseWriter, r *http.Request) {
	m, err := middleware.MemberFromContext(r.Context())
	if err != nil {
		writeAPIErrorResponse(w, http.StatusUnauthorized, model.NewUnauthorizedError())
		return
	}

	var req updateGroupRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeAPIErrorResponse(w, http.StatusBadRequest, model.NewValidationError(map[string]string{
			"body": "リクエストボディを解析できません。",
		}))
		return
	}

	g, err := h.groups.Get(r.Context(), m, chi.URLParam(r, "id"))
	if err != nil {
		handleServiceError(w, err)
		return
	}

	updated, err := h.groups.Update(r.Context(), g, group.UpdateAttributes{
		Name:        req.Name,
		Description: req.Description,
		IsPrivate:   req.IsPrivate,
	})
	if err != nil {
		handleServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, toGroupResponse(updated))
}

// CloseGroup はグループをclosed状態へ遷移させる。
// POST /api/spaces/{spaceID}/groups/{id}/close
func (h *GroupHandler) CloseGroup(w http.ResponseWriter, r *http.Request) {
	m, err := middleware.MemberFromContext(r.Context())
	if err != nil {
		writeAPIErrorResponse(w, http.StatusUnauthorized, model.NewUnauthorizedError())
		return
	}

	g, err := h.groups.Get(r.Context(), m, chi.URLParam(r, "id"))
	if err != nil {
		handleServiceError(w, err)
		return
	}

	closed, err := h.groups.Close(r.Context(), g)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, toGroupResponse(closed))
}

// GetMembership はグループと自分のメンバーシップを取得する。
// GET /api/spaces/{spaceID}/groups/{id}/membership
func (h *GroupHandler) GetMembership(w http.ResponseWriter, r *http.Request) {
	m, err := middleware.MemberFromContext(r.Context())
	if err != nil {
		writeAPIErrorResponse(w, http.StatusUnauthorized, model.NewUnauthorizedError())
		return
	}

	g, err := h.groups.Get(r.Context(), m, chi.URLParam(r, "id"))
	if err != nil {
		handleServiceError(w, err)
		return
	}

	gu, err := h.memberships.GetMembership(r.Context(), g, m)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, toGroupUserResponse(gu))
}

// BookmarkGroup はグループをブックマークする。冪等であり、
// すでにブックマーク済みの場合も204を返す。
// PUT /api/spaces/{spaceID}/groups/{id}/bookmark
func (h *GroupHandler) BookmarkGroup(w http.ResponseWriter, r *http.Request) {
	h.toggleBookmark(w, r, h.bookmarks.Bookmark)
}

// UnbookmarkGroup はブックマークを解除する。冪等であり、
// ブックマークされていない場合も204を返す。
// DELETE /api/spaces/{spaceID}/groups/{id}/bookmark
func (h *GroupHandler) UnbookmarkGroup(w http.ResponseWriter, r *http.Request) {
	h.toggleBookmark(w, r, h.bookmarks.Unbookmark)
}

func (h *GroupHandler) toggleBookmark(
	w http.ResponseWriter,
	r *http.Request,
	op func(ctx context.Context, g *model.Group, m actor.Member) error,
) {
	m, err := middleware.MemberFromContext(r.Context())
	if err != nil {
		writeAPIErrorResponse(w, http.StatusUnauthorized, model.NewUnauthorizedError())
		return
	}

	g, err := h.groups.Get(r.Context(), m, chi.URLParam(r, "id"))
	if err != nil {
		handleServiceError(w, err)
		return
	}

	if err := op(r.Context(), g, m); err != nil {
		handleServiceError(w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// ListBookmarked はブックマーク済みの可視グループ一覧を返す。
// GET /api/spaces/{spaceID}/groups/bookmarked
func (h *GroupHandler) ListBookmarked(w http.ResponseWriter, r *http.Request) {
	m, err := middleware.MemberFromContext(r.Context())
	if err != nil {
		writeAPIErrorResponse(w, http.StatusUnauthorized, model.NewUnauthorizedError())
		return
	}

	groups, err := h.bookmarks.ListBookmarked(r.Context(), m)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, toGroupResponses(groups))
}

// --- 変換・出力ヘルパー ---

func toGroupResponse(g *model.Group) groupResponse {
	return groupResponse{
		ID:              g.ID,
		SpaceID:         g.SpaceID,
		CreatorMemberID: g.CreatorMemberID,
		Name:            g.Name,
		Description:     g.Description,
		IsPrivate:       g.IsPrivate,
		State:           string(g.State),
		CreatedAt:       g.CreatedAt,
		UpdatedAt:       g.UpdatedAt,
	}
}

func toGroupResponses(groups []*model.Group) []groupResponse {
	results := make([]groupResponse, len(groups))
	for i, g := range groups {
		results[i] = toGroupResponse(g)
	}
	return results
}

func toGroupUserResponse(gu *model.GroupUser) groupUserResponse {
	return groupUserResponse{
		ID:        gu.ID,
		SpaceID:   gu.SpaceID,
		GroupID:   gu.GroupID,
		MemberID:  gu.MemberID,
		CreatedAt: gu.CreatedAt,
	}
}

// apiErrorResponse はAPIエラーレスポンスの統一フォーマット。
// グループ作成ワークフローの失敗時は失敗したステップ名を含む。
type apiErrorResponse struct {
	Code     string            `json:"code"`
	Message  string            `json:"message"`
	Category string            `json:"category"`
	Action   string            `json:"action"`
	Fields   map[string]string `json:"fields,omitempty"`
	Step     string            `json:"step,omitempty"`
}

// writeJSON はJSONレスポンスを書き込む。
func writeJSON(w http.ResponseWriter, statusCode int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(body)
}

// writeAPIErrorResponse は統一エラーフォーマットでエラーレスポンスを書き込む。
func writeAPIErrorResponse(w http.ResponseWriter, statusCode int, apiErr *model.APIError) {
	writeJSON(w, statusCode, apiErrorResponse{
		Code:     apiErr.Code,
		Message:  apiErr.Message,
		Category: apiErr.Category,
		Action:   apiErr.Action,
		Fields:   apiErr.Fields,
	})
}

// handleServiceError はサービス層から返されたエラーを適切なHTTPステータスコードに変換する。
func handleServiceError(w http.ResponseWriter, err error) {
	var apiErr *model.APIError
	if errors.As(err, &apiErr) {
		writeAPIErrorResponse(w, mapAPIErrorToHTTPStatus(apiErr), apiErr)
		return
	}

	// APIError以外のエラーは内部サーバーエラーとして扱う
	slog.Error("internal server error", slog.String("error", err.Error()))
	writeAPIErrorResponse(w, http.StatusInternalServerError, model.NewUnexpectedError())
}

// handleCreateGroupError はグループ作成ワークフローのエラーを変換する。
// StepErrorの場合は失敗したステップ名をレスポンスに含める。
func handleCreateGroupError(w http.ResponseWriter, err error) {
	var stepErr *group.StepError
	if !errors.As(err, &stepErr) {
		handleServiceError(w, err)
		return
	}

	var apiErr *model.APIError
	if errors.As(stepErr.Err, &apiErr) {
		writeJSON(w, mapAPIErrorToHTTPStatus(apiErr), apiErrorResponse{
			Code:     apiErr.Code,
			Message:  apiErr.Message,
			Category: apiErr.Category,
			Action:   apiErr.Action,
			Fields:   apiErr.Fields,
			Step:     stepErr.Step,
		})
		return
	}

	// 既知のバリデーションエラー以外は詳細を露出しない
	slog.Error("グループ作成ワークフローが失敗しました",
		slog.String("step", stepErr.Step),
		slog.String("error", stepErr.Err.Error()),
	)
	unexpected := model.NewUnexpectedError()
	writeJSON(w, http.StatusInternalServerError, apiErrorResponse{
		Code:     unexpected.Code,
		Message:  unexpected.Message,
		Category: unexpected.Category,
		Action:   unexpected.Action,
		Step:     stepErr.Step,
	})
}

// mapAPIErrorToHTTPStatus はAPIErrorコードからHTTPステータスコードにマッピングする。
func mapAPIErrorToHTTPStatus(apiErr *model.APIError) int {
	switch apiErr.Code {
	case model.ErrCodeGroupNotFound, model.ErrCodeSpaceNotFound, model.ErrCodeNotAMember:
		return http.StatusNotFound
	case model.ErrCodeValidationFailed:
		return http.StatusUnprocessableEntity
	case model.ErrCodeUnauthorized:
		return http.StatusUnauthorized
	default:
		return http.StatusInternalServerError
	}
}
