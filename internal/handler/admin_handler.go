package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/hitoshi/storefront/internal/middleware"
	"github.com/hitoshi/storefront/internal/model"
	"github.com/hitoshi/storefront/internal/user"
)

// AdminServiceInterface は管理ハンドラーが必要とするサービスインターフェース。
type AdminServiceInterface interface {
	// Get はユーザーと実効ロールを取得する。
	Get(ctx context.Context, userID string) (*user.Details, error)
	// RevokeSessions はユーザーの全セッションを失効させる。
	RevokeSessions(ctx context.Context, userID string) error
}

// AdminHandler は管理者向けのHTTPハンドラー。
// 認証ゲートと認可ゲートの後に配置する。
type AdminHandler struct {
	service AdminServiceInterface
}

// NewAdminHandler はAdminHandlerを生成する。
func NewAdminHandler(service AdminServiceInterface) *AdminHandler {
	return &AdminHandler{service: service}
}

// GetUser はユーザーと実効ロールを返す。
// GET /api/admin/users/{id}
func (h *AdminHandler) GetUser(w http.ResponseWriter, r *http.Request) {
	userID, ok := userIDParam(w, r)
	if !ok {
		return
	}

	details, err := h.service.Get(r.Context(), userID)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"user": toUserResponse(details.User, details.Role),
	})
}

// RevokeSessions はユーザーの全セッションを失効させる。セッションが無くても成功する。
// DELETE /api/admin/users/{id}/sessions
func (h *AdminHandler) RevokeSessions(w http.ResponseWriter, r *http.Request) {
	userID, ok := userIDParam(w, r)
	if !ok {
		return
	}

	if err := h.service.RevokeSessions(r.Context(), userID); err != nil {
		handleServiceError(w, r, err)
		return
	}

	if p, ok := middleware.PrincipalFromContext(r.Context()); ok {
		slog.Info("sessions revoked by admin",
			slog.String("admin_id", p.User.ID),
			slog.String("user_id", userID),
		)
	}

	w.WriteHeader(http.StatusNoContent)
}

// userIDParam はパスパラメータのユーザーIDを検証して返す。
// UUID形式でない場合は400を書き込み、falseを返す。
func userIDParam(w http.ResponseWriter, r *http.Request) (string, bool) {
	id := chi.URLParam(r, "id")
	if _, err := uuid.Parse(id); err != nil {
		middleware.WriteAPIError(w, model.NewValidationError("ユーザーIDの形式が不正です"))
		return "", false
	}
	return id, true
}
