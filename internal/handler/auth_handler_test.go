package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/LingoToday/LingoToday-sub001/internal/middleware"
	"github.com/LingoToday/LingoToday-sub001/internal/model"
)

// --- モック定義 ---

type mockAuthService struct {
	registerFn       func(ctx context.Context, reg model.Registration) (*model.User, error)
	loginFn          func(ctx context.Context, email, password string) (string, *model.User, error)
	getCurrentUserFn func(ctx context.Context, userID string) (*model.User, error)
}

func (m *mockAuthService) Register(ctx context.Context, reg model.Registration) (*model.User, error) {
	if m.registerFn != nil {
		return m.registerFn(ctx, reg)
	}
	return nil, nil
}

func (m *mockAuthService) Login(ctx context.Context, email, password string) (string, *model.User, error) {
	if m.loginFn != nil {
		return m.loginFn(ctx, email, password)
	}
	return "", nil, nil
}

func (m *mockAuthService) GetCurrentUser(ctx context.Context, userID string) (*model.User, error) {
	if m.getCurrentUserFn != nil {
		return m.getCurrentUserFn(ctx, userID)
	}
	return nil, nil
}

// --- テスト ---

func TestAuthHandler_Register_ReturnsCreatedUser(t *testing.T) {
	var got model.Registration
	svc := &mockAuthService{
		registerFn: func(ctx context.Context, reg model.Registration) (*model.User, error) {
			got = reg
			return &model.User{ID: "u-1", Email: reg.Email, FirstName: reg.FirstName}, nil
		},
	}
	h := NewAuthHandler(svc)

	body := `{"first_name":"Ana","email":"ana@example.com","password":"secret123"}`
	req := httptest.NewRequest(http.MethodPost, "/api/auth/register", strings.NewReader(body))
	rec := httptest.NewRecorder()
	h.Register(rec, req)

	if rec.Code != http.StatusCreated {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusCreated)
	}
	if got.FirstName != "Ana" || got.Email != "ana@example.com" || got.Password != "secret123" {
		t.Errorf("サービスに渡された登録情報が不正: %+v", got)
	}

	var resp userResponse
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("レスポンスのデコードに失敗: %v", err)
	}
	if resp.User == nil || resp.User.ID != "u-1" {
		t.Errorf("user = %+v, want id u-1", resp.User)
	}
}

func TestAuthHandler_Register_ValidationErrorReturns422(t *testing.T) {
	svc := &mockAuthService{
		registerFn: func(ctx context.Context, reg model.Registration) (*model.User, error) {
			return nil, &model.ValidationError{
				Fields: map[model.Field]string{model.FieldEmail: "The email has already been taken."},
			}
		},
	}
	h := NewAuthHandler(svc)

	req := httptest.NewRequest(http.MethodPost, "/api/auth/register",
		strings.NewReader(`{"first_name":"Ana","email":"ana@example.com","password":"secret123"}`))
	rec := httptest.NewRecorder()
	h.Register(rec, req)

	if rec.Code != http.StatusUnprocessableEntity {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusUnprocessableEntity)
	}
	var body middleware.ValidationResponseBody
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("レスポンスのデコードに失敗: %v", err)
	}
	if msgs := body.Errors["email"]; len(msgs) != 1 || msgs[0] != "The email has already been taken." {
		t.Errorf("errors[email] = %v", msgs)
	}
}

func TestAuthHandler_Register_InvalidJSONReturns400(t *testing.T) {
	called := false
	svc := &mockAuthService{
		registerFn: func(ctx context.Context, reg model.Registration) (*model.User, error) {
			called = true
			return nil, nil
		},
	}
	h := NewAuthHandler(svc)

	req := httptest.NewRequest(http.MethodPost, "/api/auth/register", strings.NewReader("{not json"))
	rec := httptest.NewRecorder()
	h.Register(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want %d", rec.Code, http.StatusBadRequest)
	}
	if called {
		t.Error("不正なJSONではサービスが呼ばれるべきではない")
	}
}

func TestAuthHandler_Login_ReturnsToken(t *testing.T) {
	svc := &mockAuthService{
		loginFn: func(ctx context.Context, email, password string) (string, *model.User, error) {
			return "tok-1", &model.User{ID: "u-1", Email: email}, nil
		},
	}
	h := NewAuthHandler(svc)

	req := httptest.NewRequest(http.MethodPost, "/api/auth/login",
		strings.NewReader(`{"email":"ana@example.com","password":"secret123"}`))
	rec := httptest.NewRecorder()
	h.Login(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusOK)
	}
	var resp loginResponse
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("レスポンスのデコードに失敗: %v", err)
	}
	if resp.Token != "tok-1" {
		t.Errorf("token = %q, want tok-1", resp.Token)
	}
}

func TestAuthHandler_Login_InvalidCredentialsReturns401(t *testing.T) {
	svc := &mockAuthService{
		loginFn: func(ctx context.Context, email, password string) (string, *model.User, error) {
			return "", nil, model.NewInvalidCredentialsError()
		},
	}
	h := NewAuthHandler(svc)

	req := httptest.NewRequest(http.MethodPost, "/api/auth/login",
		strings.NewReader(`{"email":"ana@example.com","password":"wrong"}`))
	rec := httptest.NewRecorder()
	h.Login(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want %d", rec.Code, http.StatusUnauthorized)
	}
}

func TestAuthHandler_Me_RequiresUserInContext(t *testing.T) {
	h := NewAuthHandler(&mockAuthService{})

	req := httptest.NewRequest(http.MethodGet, "/api/auth/user", nil)
	rec := httptest.NewRecorder()
	h.Me(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want %d", rec.Code, http.StatusUnauthorized)
	}
}

func TestAuthHandler_Me_ReturnsCurrentUser(t *testing.T) {
	svc := &mockAuthService{
		getCurrentUserFn: func(ctx context.Context, userID string) (*model.User, error) {
			return &model.User{ID: userID, IsProUser: true}, nil
		},
	}
	h := NewAuthHandler(svc)

	req := httptest.NewRequest(http.MethodGet, "/api/auth/user", nil)
	req = req.WithContext(middleware.ContextWithUserID(req.Context(), "u-9"))
	rec := httptest.NewRecorder()
	h.Me(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusOK)
	}
	var resp userResponse
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("レスポンスのデコードに失敗: %v", err)
	}
	if resp.User == nil || resp.User.ID != "u-9" || !resp.User.IsProUser {
		t.Errorf("user = %+v", resp.User)
	}
}

func TestAuthHandler_Me_UserNotFoundReturns404(t *testing.T) {
	svc := &mockAuthService{
		getCurrentUserFn: func(ctx context.Context, userID string) (*model.User, error) {
			return nil, model.NewUserNotFoundError()
		},
	}
	h := NewAuthHandler(svc)

	req := httptest.NewRequest(http.MethodGet, "/api/auth/user", nil)
	req = req.WithContext(middleware.ContextWithUserID(req.Context(), "gone"))
	rec := httptest.NewRecorder()
	h.Me(rec, req)

	if rec.Code != http.StatusNotFound {
		t.Errorf("status = %d, want %d", rec.Code, http.StatusNotFound)
	}
}
