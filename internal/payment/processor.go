package payment

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/google/uuid"
)

// PaymentMethodType は確定呼び出しに渡す支払い方法の種類。
type PaymentMethodType string

const (
	// PaymentMethodCard はカード決済。
	PaymentMethodCard PaymentMethodType = "card"
)

// ProcessorError は決済事業者の確定呼び出しが返すエラー。
type ProcessorError struct {
	Code    ErrorCode
	RawCode string
	Message string
}

// Error はerrorインターフェースを実装する。
func (e *ProcessorError) Error() string {
	raw := e.RawCode
	if raw == "" {
		raw = e.Code.String()
	}
	if e.Message == "" {
		return "processor: " + raw
	}
	return fmt.Sprintf("processor: %s: %s", raw, e.Message)
}

// AsProcessorError はerrを*ProcessorErrorとして取り出す。
// ProcessorError以外のエラーはErrorCodeUnknownとして扱う。
func AsProcessorError(err error) *ProcessorError {
	var pe *ProcessorError
	if errors.As(err, &pe) {
		return pe
	}
	return &ProcessorError{Code: ErrorCodeUnknown, RawCode: "unknown", Message: err.Error()}
}

// Processor は外部決済事業者の確定呼び出しのインターフェース。
// 成功時はnil、失敗時は*ProcessorErrorを返す。
type Processor interface {
	ConfirmPayment(ctx context.Context, clientSecret string, method PaymentMethodType) error
}

const pathProcessorConfirm = "/processor/confirm"

// HTTPProcessor はHTTP経由で決済事業者（サンドボックスのエミュレーション）を呼び出すProcessor。
type HTTPProcessor struct {
	httpClient *http.Client
	logger     *slog.Logger
	endpoint   string // テスト用にエンドポイントを差し替え可能
}

// NewHTTPProcessor はHTTPProcessorを生成する。
func NewHTTPProcessor(httpClient *http.Client, baseURL string, logger *slog.Logger) *HTTPProcessor {
	return &HTTPProcessor{
		httpClient: httpClient,
		logger:     logger,
		endpoint:   strings.TrimRight(baseURL, "/") + pathProcessorConfirm,
	}
}

type confirmRequest struct {
	ClientSecret      string            `json:"client_secret"`
	PaymentMethodType PaymentMethodType `json:"payment_method_type"`
}

type confirmErrorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// ConfirmPayment はクライアントシークレットで決済を確定する。
// 通信エラーや想定外の応答は決済が処理された可能性を否定できないためErrorCodeUnknownとする。
func (p *HTTPProcessor) ConfirmPayment(ctx context.Context, clientSecret string, method PaymentMethodType) error {
	data, err := json.Marshal(confirmRequest{ClientSecret: clientSecret, PaymentMethodType: method})
	if err != nil {
		return fmt.Errorf("確定リクエストのエンコードに失敗しました: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.endpoint, bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("HTTPリクエストの作成に失敗しました: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Request-ID", uuid.NewString())

	resp, err := p.httpClient.Do(req)
	if err != nil {
		p.logger.Warn("決済確定の呼び出しに失敗しました", slog.String("error", err.Error()))
		return &ProcessorError{Code: ErrorCodeUnknown, RawCode: "network_error", Message: err.Error()}
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusOK {
		return nil
	}

	body, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	var eb confirmErrorBody
	if err := json.Unmarshal(body, &eb); err != nil || eb.Code == "" {
		return &ProcessorError{
			Code:    ErrorCodeUnknown,
			RawCode: fmt.Sprintf("http_%d", resp.StatusCode),
			Message: http.StatusText(resp.StatusCode),
		}
	}
	return &ProcessorError{Code: ParseErrorCode(eb.Code), RawCode: eb.Code, Message: eb.Message}
}

var _ Processor = (*HTTPProcessor)(nil)
