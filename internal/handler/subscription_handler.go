package handler

import (
	"context"
	"net/http"
)

// SubscriptionServiceInterface はサブスクリプションハンドラーが必要とするサービスインターフェース。
type SubscriptionServiceInterface interface {
	// CreateIntent は決済インテントを作成し、クライアントシークレットを返す。
	CreateIntent(ctx context.Context, userID, priceID string) (string, error)
	// Status はユーザーのサブスクリプションが有効化済みかを返す。
	Status(ctx context.Context, userID string) (bool, error)
	// RecordNotificationSetup は通知設定の選択結果を記録する。
	RecordNotificationSetup(ctx context.Context, userID string, enabled bool) error
}

// ProcessorInterface は決済事業者エミュレーションの確定操作。
type ProcessorInterface interface {
	Confirm(ctx context.Context, clientSecret, method string) error
}

// SubscriptionHandler はサブスクリプション管理のHTTPハンドラー。
type SubscriptionHandler struct {
	service   SubscriptionServiceInterface
	processor ProcessorInterface
}

// NewSubscriptionHandler はSubscriptionHandlerを生成する。
func NewSubscriptionHandler(service SubscriptionServiceInterface, processor ProcessorInterface) *SubscriptionHandler {
	return &SubscriptionHandler{
		service:   service,
		processor: processor,
	}
}

type createSubscriptionRequest struct {
	PriceID string `json:"price_id"`
}

type createSubscriptionResponse struct {
	ClientSecret string `json:"clientSecret"`
}

type subscriptionStatusResponse struct {
	IsProUser bool `json:"isProUser"`
}

type notificationSetupRequest struct {
	Shown   bool `json:"shown"`
	Enabled bool `json:"enabled"`
}

type confirmRequest struct {
	ClientSecret      string `json:"client_secret"`
	PaymentMethodType string `json:"payment_method_type"`
}

// CreateSubscription は決済インテントを作成する。
// POST /api/create-subscription
func (h *SubscriptionHandler) CreateSubscription(w http.ResponseWriter, r *http.Request) {
	userID := requireUserID(w, r)
	if userID == "" {
		return
	}

	var req createSubscriptionRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	secret, err := h.service.CreateIntent(r.Context(), userID, req.PriceID)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, createSubscriptionResponse{ClientSecret: secret})
}

// Status はサブスクリプションの有効化状態を返す。
// GET /api/subscription-status
func (h *SubscriptionHandler) Status(w http.ResponseWriter, r *http.Request) {
	userID := requireUserID(w, r)
	if userID == "" {
		return
	}

	active, err := h.service.Status(r.Context(), userID)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, subscriptionStatusResponse{IsProUser: active})
}

// NotificationSetup は通知設定ステップの結果を記録する。
// PUT /api/notification-setup-status
func (h *SubscriptionHandler) NotificationSetup(w http.ResponseWriter, r *http.Request) {
	userID := requireUserID(w, r)
	if userID == "" {
		return
	}

	var req notificationSetupRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	if err := h.service.RecordNotificationSetup(r.Context(), userID, req.Enabled); err != nil {
		handleServiceError(w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// Confirm は決済事業者として支払いを確定する。
// POST /processor/confirm
func (h *SubscriptionHandler) Confirm(w http.ResponseWriter, r *http.Request) {
	var req confirmRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	if err := h.processor.Confirm(r.Context(), req.ClientSecret, req.PaymentMethodType); err != nil {
		handleServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"status": "processing"})
}
