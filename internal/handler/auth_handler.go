package handler

import (
	"context"
	"net/http"

	"github.com/LingoToday/LingoToday-sub001/internal/model"
)

// AuthServiceInterface は認証ハンドラーが必要とするサービスインターフェース。
type AuthServiceInterface interface {
	// Register はアカウントを作成する。
	Register(ctx context.Context, reg model.Registration) (*model.User, error)
	// Login は認証情報を検証し、トークンとユーザーを返す。
	Login(ctx context.Context, email, password string) (string, *model.User, error)
	// GetCurrentUser はユーザーIDからユーザー情報を取得する。
	GetCurrentUser(ctx context.Context, userID string) (*model.User, error)
}

// AuthHandler はアカウント登録・ログインのHTTPハンドラー。
type AuthHandler struct {
	service AuthServiceInterface
}

// NewAuthHandler はAuthHandlerを生成する。
func NewAuthHandler(service AuthServiceInterface) *AuthHandler {
	return &AuthHandler{service: service}
}

type registerRequest struct {
	FirstName string `json:"first_name"`
	Email     string `json:"email"`
	Password  string `json:"password"`
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type userResponse struct {
	User *model.User `json:"user"`
}

type loginResponse struct {
	Token string      `json:"token"`
	User  *model.User `json:"user"`
}

// Register はアカウントを作成する。
// POST /api/auth/register
func (h *AuthHandler) Register(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	user, err := h.service.Register(r.Context(), model.Registration{
		FirstName: req.FirstName,
		Email:     req.Email,
		Password:  req.Password,
	})
	if err != nil {
		handleServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, userResponse{User: user})
}

// Login はトークンを発行する。
// POST /api/auth/login
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	token, user, err := h.service.Login(r.Context(), req.Email, req.Password)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, loginResponse{Token: token, User: user})
}

// Me は現在のユーザー情報を返す。
// GET /api/auth/user
func (h *AuthHandler) Me(w http.ResponseWriter, r *http.Request) {
	userID := requireUserID(w, r)
	if userID == "" {
		return
	}

	user, err := h.service.GetCurrentUser(r.Context(), userID)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, userResponse{User: user})
}
