package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/LingoToday/LingoToday-sub001/internal/middleware"
	"github.com/LingoToday/LingoToday-sub001/internal/model"
	"github.com/LingoToday/LingoToday-sub001/internal/subscription"
)

// --- モック定義 ---

type mockSubscriptionService struct {
	createIntentFn func(ctx context.Context, userID, priceID string) (string, error)
	statusFn       func(ctx context.Context, userID string) (bool, error)
	recordFn       func(ctx context.Context, userID string, enabled bool) error
}

func (m *mockSubscriptionService) CreateIntent(ctx context.Context, userID, priceID string) (string, error) {
	if m.createIntentFn != nil {
		return m.createIntentFn(ctx, userID, priceID)
	}
	return "", nil
}

func (m *mockSubscriptionService) Status(ctx context.Context, userID string) (bool, error) {
	if m.statusFn != nil {
		return m.statusFn(ctx, userID)
	}
	return false, nil
}

func (m *mockSubscriptionService) RecordNotificationSetup(ctx context.Context, userID string, enabled bool) error {
	if m.recordFn != nil {
		return m.recordFn(ctx, userID, enabled)
	}
	return nil
}

type mockProcessor struct {
	confirmFn func(ctx context.Context, clientSecret, method string) error
}

func (m *mockProcessor) Confirm(ctx context.Context, clientSecret, method string) error {
	if m.confirmFn != nil {
		return m.confirmFn(ctx, clientSecret, method)
	}
	return nil
}

func withUser(req *http.Request, userID string) *http.Request {
	return req.WithContext(middleware.ContextWithUserID(req.Context(), userID))
}

// --- テスト ---

func TestSubscriptionHandler_CreateSubscription_ReturnsClientSecret(t *testing.T) {
	var gotUser, gotPrice string
	svc := &mockSubscriptionService{
		createIntentFn: func(ctx context.Context, userID, priceID string) (string, error) {
			gotUser, gotPrice = userID, priceID
			return "pi_1_secret_x", nil
		},
	}
	h := NewSubscriptionHandler(svc, &mockProcessor{})

	req := httptest.NewRequest(http.MethodPost, "/api/create-subscription", strings.NewReader(`{"price_id":"price_pro_monthly"}`))
	rec := httptest.NewRecorder()
	h.CreateSubscription(rec, withUser(req, "u-1"))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusOK)
	}
	if gotUser != "u-1" || gotPrice != "price_pro_monthly" {
		t.Errorf("CreateIntent(%q, %q)", gotUser, gotPrice)
	}
	var resp createSubscriptionResponse
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("レスポンスのデコードに失敗: %v", err)
	}
	if resp.ClientSecret != "pi_1_secret_x" {
		t.Errorf("clientSecret = %q", resp.ClientSecret)
	}
}

func TestSubscriptionHandler_CreateSubscription_UnknownPriceReturns422(t *testing.T) {
	svc := &mockSubscriptionService{
		createIntentFn: func(ctx context.Context, userID, priceID string) (string, error) {
			return "", &model.ValidationError{Fields: map[model.Field]string{subscription.FieldPriceID: "The selected price id is invalid."}}
		},
	}
	h := NewSubscriptionHandler(svc, &mockProcessor{})

	req := httptest.NewRequest(http.MethodPost, "/api/create-subscription", strings.NewReader(`{"price_id":"nope"}`))
	rec := httptest.NewRecorder()
	h.CreateSubscription(rec, withUser(req, "u-1"))

	if rec.Code != http.StatusUnprocessableEntity {
		t.Errorf("status = %d, want %d", rec.Code, http.StatusUnprocessableEntity)
	}
}

func TestSubscriptionHandler_Status(t *testing.T) {
	tests := []struct {
		name       string
		statusFn   func(ctx context.Context, userID string) (bool, error)
		wantStatus int
		wantPro    bool
	}{
		{
			name:       "有効化済み",
			statusFn:   func(ctx context.Context, userID string) (bool, error) { return true, nil },
			wantStatus: http.StatusOK,
			wantPro:    true,
		},
		{
			name:       "未有効化",
			statusFn:   func(ctx context.Context, userID string) (bool, error) { return false, nil },
			wantStatus: http.StatusOK,
		},
		{
			name:       "内部エラー",
			statusFn:   func(ctx context.Context, userID string) (bool, error) { return false, errors.New("db down") },
			wantStatus: http.StatusInternalServerError,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := NewSubscriptionHandler(&mockSubscriptionService{statusFn: tt.statusFn}, &mockProcessor{})

			req := httptest.NewRequest(http.MethodGet, "/api/subscription-status", nil)
			rec := httptest.NewRecorder()
			h.Status(rec, withUser(req, "u-1"))

			if rec.Code != tt.wantStatus {
				t.Fatalf("status = %d, want %d", rec.Code, tt.wantStatus)
			}
			if tt.wantStatus != http.StatusOK {
				return
			}
			var resp subscriptionStatusResponse
			if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
				t.Fatalf("レスポンスのデコードに失敗: %v", err)
			}
			if resp.IsProUser != tt.wantPro {
				t.Errorf("isProUser = %v, want %v", resp.IsProUser, tt.wantPro)
			}
		})
	}
}

func TestSubscriptionHandler_NotificationSetup_RecordsChoice(t *testing.T) {
	var gotEnabled bool
	called := false
	svc := &mockSubscriptionService{
		recordFn: func(ctx context.Context, userID string, enabled bool) error {
			called = true
			gotEnabled = enabled
			return nil
		},
	}
	h := NewSubscriptionHandler(svc, &mockProcessor{})

	req := httptest.NewRequest(http.MethodPut, "/api/notification-setup-status", strings.NewReader(`{"shown":true,"enabled":true}`))
	rec := httptest.NewRecorder()
	h.NotificationSetup(rec, withUser(req, "u-1"))

	if rec.Code != http.StatusNoContent {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusNoContent)
	}
	if !called || !gotEnabled {
		t.Errorf("RecordNotificationSetupがenabled=trueで呼ばれるべき: called=%v enabled=%v", called, gotEnabled)
	}
}

func TestSubscriptionHandler_Confirm(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantStatus int
		wantCode   string
	}{
		{name: "成功", wantStatus: http.StatusOK},
		{name: "カード拒否", err: &subscription.ConfirmError{Code: "Failed", Message: "Your card was declined."}, wantStatus: http.StatusPaymentRequired, wantCode: "Failed"},
		{name: "一時的な通信障害", err: &subscription.ConfirmError{Code: "network_blip"}, wantStatus: http.StatusPaymentRequired, wantCode: "network_blip"},
		{name: "インテントなし", err: model.NewIntentNotFoundError(), wantStatus: http.StatusNotFound, wantCode: model.ErrCodeIntentNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var gotSecret, gotMethod string
			proc := &mockProcessor{
				confirmFn: func(ctx context.Context, clientSecret, method string) error {
					gotSecret, gotMethod = clientSecret, method
					return tt.err
				},
			}
			h := NewSubscriptionHandler(&mockSubscriptionService{}, proc)

			req := httptest.NewRequest(http.MethodPost, "/processor/confirm",
				strings.NewReader(`{"client_secret":"pi_1_secret_x","payment_method_type":"card"}`))
			rec := httptest.NewRecorder()
			h.Confirm(rec, req)

			if rec.Code != tt.wantStatus {
				t.Fatalf("status = %d, want %d", rec.Code, tt.wantStatus)
			}
			if gotSecret != "pi_1_secret_x" || gotMethod != "card" {
				t.Errorf("Confirm(%q, %q)", gotSecret, gotMethod)
			}
			if tt.wantCode == "" {
				return
			}
			var body map[string]string
			if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
				t.Fatalf("レスポンスのデコードに失敗: %v", err)
			}
			if body["code"] != tt.wantCode {
				t.Errorf("code = %q, want %q", body["code"], tt.wantCode)
			}
		})
	}
}

func TestMapAPIErrorToHTTPStatus(t *testing.T) {
	tests := []struct {
		code string
		want int
	}{
		{model.ErrCodeInvalidCredentials, http.StatusUnauthorized},
		{model.ErrCodeUnauthorized, http.StatusUnauthorized},
		{model.ErrCodeUserNotFound, http.StatusNotFound},
		{model.ErrCodeEmailTaken, http.StatusUnprocessableEntity},
		{model.ErrCodeRateLimited, http.StatusTooManyRequests},
		{"SOMETHING_ELSE", http.StatusBadRequest},
	}
	for _, tt := range tests {
		if got := mapAPIErrorToHTTPStatus(&model.APIError{Code: tt.code}); got != tt.want {
			t.Errorf("mapAPIErrorToHTTPStatus(%s) = %d, want %d", tt.code, got, tt.want)
		}
	}
}
