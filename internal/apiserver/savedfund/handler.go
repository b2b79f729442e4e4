// Package savedfund 收藏基金领域 - HTTP 处理
//
// 所有路由都要求会话令牌，数据按当前用户隔离：
// 其他用户的收藏与不存在的收藏同样返回 404。
package savedfund

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"

	"mutualfund-api/internal/apiserver/auth"
	"mutualfund-api/internal/shared/model"
	"mutualfund-api/internal/shared/storage"
	"mutualfund-api/pkg/logging"
)

// Handler 收藏基金 HTTP 处理器
type Handler struct {
	store  storage.SavedFundStore
	logger *logging.Logger
	now    func() time.Time
}

// NewHandler 创建收藏基金处理器
func NewHandler(store storage.SavedFundStore, logger *logging.Logger) *Handler {
	if logger == nil {
		logger = logging.Default("savedfund")
	}
	return &Handler{store: store, logger: logger, now: time.Now}
}

// RegisterRoutes 注册收藏基金路由，authn 为会话认证器
func (h *Handler) RegisterRoutes(mux *http.ServeMux, authn auth.Authenticator) {
	authed := auth.Middleware(authn)

	mux.Handle("GET /api/saved-funds", authed(http.HandlerFunc(h.List)))
	mux.Handle("POST /api/saved-funds/save", authed(http.HandlerFunc(h.Save)))
	mux.Handle("GET /api/saved-funds/{id}", authed(http.HandlerFunc(h.Get)))
	mux.Handle("DELETE /api/saved-funds/{id}", authed(http.HandlerFunc(h.Delete)))
}

// SaveInput 收藏请求体
type SaveInput struct {
	SchemeName string `json:"schemeName"`
	SchemeCode string `json:"schemeCode"`
	FundType   string `json:"fundType"`
	Category   string `json:"category"`
	AMC        string `json:"amc"`
	Notes      string `json:"notes"`
}

type listResponse struct {
	Success bool               `json:"success"`
	Count   int                `json:"count"`
	Data    []*model.SavedFund `json:"data"`
}

type saveResponse struct {
	Success bool             `json:"success"`
	Message string           `json:"message"`
	Data    *model.SavedFund `json:"data"`
}

var errNotFound = &auth.Error{Kind: auth.KindNotFound, Message: "Saved fund not found"}

// List 当前用户的收藏列表，按收藏时间倒序
func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	user := auth.GetAuthUser(r.Context())
	funds, err := h.store.ListSavedFunds(r.Context(), user.ID)
	if err != nil {
		h.fail(w, r, "Failed to fetch saved funds", err)
		return
	}
	writeJSON(w, http.StatusOK, listResponse{Success: true, Count: len(funds), Data: funds})
}

// Save 收藏一只基金，同一用户同一 schemeCode 只能收藏一次
func (h *Handler) Save(w http.ResponseWriter, r *http.Request) {
	var in SaveInput
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		auth.WriteError(w, &auth.Error{Kind: auth.KindInvalidInput, Message: "Invalid request body."})
		return
	}

	user := auth.GetAuthUser(r.Context())
	fund := &model.SavedFund{
		ID:         uuid.NewString(),
		UserID:     user.ID,
		SchemeName: in.SchemeName,
		SchemeCode: in.SchemeCode,
		FundType:   model.FundType(in.FundType),
		Category:   in.Category,
		AMC:        in.AMC,
		Notes:      in.Notes,
		CreatedAt:  h.now().UTC(),
	}
	fund.Normalize()
	if err := validate(fund); err != nil {
		auth.WriteError(w, err)
		return
	}

	if err := h.store.CreateSavedFund(r.Context(), fund); err != nil {
		if errors.Is(err, storage.ErrDuplicate) {
			auth.WriteError(w, &auth.Error{Kind: auth.KindConflict, Message: "Fund already saved."})
			return
		}
		h.fail(w, r, "Failed to save fund", err)
		return
	}
	writeJSON(w, http.StatusCreated, saveResponse{Success: true, Message: "Fund saved successfully", Data: fund})
}

// Get 收藏详情
func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	user := auth.GetAuthUser(r.Context())
	fund, err := h.store.GetSavedFund(r.Context(), user.ID, r.PathValue("id"))
	if err != nil {
		h.fail(w, r, "Failed to fetch saved fund details", err)
		return
	}
	if fund == nil {
		auth.WriteError(w, errNotFound)
		return
	}
	writeJSON(w, http.StatusOK, fund)
}

// Delete 取消收藏
func (h *Handler) Delete(w http.ResponseWriter, r *http.Request) {
	user := auth.GetAuthUser(r.Context())
	if err := h.store.DeleteSavedFund(r.Context(), user.ID, r.PathValue("id")); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			auth.WriteError(w, errNotFound)
			return
		}
		h.fail(w, r, "Failed to delete saved fund", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"message": "Saved fund deleted successfully"})
}

func validate(f *model.SavedFund) error {
	if f.SchemeName == "" || f.SchemeCode == "" || f.Category == "" {
		return &auth.Error{Kind: auth.KindInvalidInput, Message: "All fund details are required."}
	}
	if !f.FundType.Valid() {
		return &auth.Error{Kind: auth.KindInvalidInput, Message: "Invalid fund type."}
	}
	if len([]rune(f.Notes)) > model.MaxFundNotesLength {
		return &auth.Error{Kind: auth.KindInvalidInput,
			Message: fmt.Sprintf("Notes cannot exceed %d characters.", model.MaxFundNotesLength)}
	}
	return nil
}

func (h *Handler) fail(w http.ResponseWriter, r *http.Request, message string, err error) {
	h.logger.WithContext(r.Context()).WithError(err).Error(message)
	auth.WriteError(w, &auth.Error{Kind: auth.KindInternal, Message: message, Err: err})
}

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}
