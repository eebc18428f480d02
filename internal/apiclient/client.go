// Package apiclient はLingoTodayバックエンドのREST APIクライアントを提供する。
// 認証トークンはログイン時に一度書き込まれ、以降の認証付き呼び出しで参照される。
package apiclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sort"
	"strings"
	"sync"

	"github.com/google/uuid"

	"github.com/LingoToday/LingoToday-sub001/internal/model"
)

const (
	// maxResponseBytes はレスポンスボディの読み取り上限。
	maxResponseBytes = 1 << 20

	pathRegister           = "/api/auth/register"
	pathLogin              = "/api/auth/login"
	pathCurrentUser        = "/api/auth/user"
	pathCreateSubscription = "/api/create-subscription"
	pathSubscriptionStatus = "/api/subscription-status"
	pathNotificationSetup  = "/api/notification-setup-status"
	pathHealth             = "/health"

	// HeaderRequestID はリクエストIDを伝搬するヘッダー名。
	HeaderRequestID = "X-Request-ID"
)

// StatusError はバックエンドが2xx以外のステータスを返した場合のエラー。
// バリデーションエラー（422）の場合はErrorsにフィールド別メッセージが入る。
type StatusError struct {
	StatusCode int
	Message    string
	Errors     map[string][]string
}

// Error はerrorインターフェースを実装する。
func (e *StatusError) Error() string {
	if len(e.Errors) == 0 {
		return fmt.Sprintf("api: status %d: %s", e.StatusCode, e.Message)
	}
	fields := make([]string, 0, len(e.Errors))
	for f := range e.Errors {
		fields = append(fields, f)
	}
	sort.Strings(fields)
	return fmt.Sprintf("api: status %d: %s (fields: %s)", e.StatusCode, e.Message, strings.Join(fields, ", "))
}

// IsStatus はerrが指定ステータスのStatusErrorかを返す。
func IsStatus(err error, code int) bool {
	var se *StatusError
	return errors.As(err, &se) && se.StatusCode == code
}

// errorBody はエラーレスポンスのJSON形式。
type errorBody struct {
	Message string              `json:"message"`
	Errors  map[string][]string `json:"errors"`
}

// Client はバックエンドAPIのクライアント。
type Client struct {
	httpClient *http.Client
	logger     *slog.Logger
	baseURL    string

	mu    sync.RWMutex
	token string
}

// NewClient はClientの新しいインスタンスを生成する。
// baseURLは末尾のスラッシュを含まないこと（例: "http://localhost:8080"）。
func NewClient(httpClient *http.Client, baseURL string, logger *slog.Logger) *Client {
	return &Client{
		httpClient: httpClient,
		logger:     logger,
		baseURL:    strings.TrimRight(baseURL, "/"),
	}
}

// Token は現在の認証トークンを返す。未ログインの場合は空文字列。
func (c *Client) Token() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.token
}

// SetToken は認証トークンを設定する。
func (c *Client) SetToken(token string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.token = token
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
func (c *Client) Register(ctx context.Context, reg model.Registration) (*model.User, error) {
	var out userResponse
	err := c.do(ctx, http.MethodPost, pathRegister, registerRequest{
		FirstName: reg.FirstName,
		Email:     reg.Email,
		Password:  reg.Password,
	}, &out)
	if err != nil {
		return nil, err
	}
	if out.User == nil {
		return nil, errors.New("api: register response has no user")
	}
	return out.User, nil
}

// Login はログインし、返されたトークンを以降のリクエストに使用する。
func (c *Client) Login(ctx context.Context, email, password string) (*model.User, error) {
	var out loginResponse
	if err := c.do(ctx, http.MethodPost, pathLogin, loginRequest{Email: email, Password: password}, &out); err != nil {
		return nil, err
	}
	if out.Token == "" {
		return nil, errors.New("api: login response has no token")
	}
	c.SetToken(out.Token)
	return out.User, nil
}

// CurrentUser は現在のトークンに紐づくユーザーを取得する。
func (c *Client) CurrentUser(ctx context.Context) (*model.User, error) {
	var out userResponse
	if err := c.do(ctx, http.MethodGet, pathCurrentUser, nil, &out); err != nil {
		return nil, err
	}
	if out.User == nil {
		return nil, errors.New("api: user response has no user")
	}
	return out.User, nil
}

// CreateSubscription は指定価格IDの決済インテントを作成し、クライアントシークレットを返す。
func (c *Client) CreateSubscription(ctx context.Context, priceID string) (string, error) {
	var out struct {
		ClientSecret string `json:"clientSecret"`
	}
	if err := c.do(ctx, http.MethodPost, pathCreateSubscription, map[string]string{"price_id": priceID}, &out); err != nil {
		return "", err
	}
	if out.ClientSecret == "" {
		return "", errors.New("api: create-subscription response has no clientSecret")
	}
	return out.ClientSecret, nil
}

// SubscriptionStatus はサブスクリプションが有効化済みかを返す。
func (c *Client) SubscriptionStatus(ctx context.Context) (bool, error) {
	var out struct {
		IsProUser bool `json:"isProUser"`
	}
	if err := c.do(ctx, http.MethodGet, pathSubscriptionStatus, nil, &out); err != nil {
		return false, err
	}
	return out.IsProUser, nil
}

// RecordNotificationSetup は通知設定ステップが表示されたことと選択結果を記録する。
func (c *Client) RecordNotificationSetup(ctx context.Context, enabled bool) error {
	body := struct {
		Shown   bool `json:"shown"`
		Enabled bool `json:"enabled"`
	}{Shown: true, Enabled: enabled}
	return c.do(ctx, http.MethodPut, pathNotificationSetup, body, nil)
}

// Health はバックエンドのヘルスチェックを行う。
func (c *Client) Health(ctx context.Context) error {
	return c.do(ctx, http.MethodGet, pathHealth, nil, nil)
}

// do はJSONリクエストを送信し、2xxの場合にレスポンスをoutへデコードする。
func (c *Client) do(ctx context.Context, method, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("リクエストのエンコードに失敗しました: %w", err)
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("HTTPリクエストの作成に失敗しました: %w", err)
	}
	requestID := uuid.NewString()
	req.Header.Set("Accept", "application/json")
	req.Header.Set(HeaderRequestID, requestID)
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token := c.Token(); token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.logger.Warn("APIの呼び出しに失敗しました",
			slog.String("method", method),
			slog.String("path", path),
			slog.String("request_id", requestID),
			slog.String("error", err.Error()),
		)
		return fmt.Errorf("api: %s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return fmt.Errorf("レスポンスボディの読み取りに失敗しました: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		se := &StatusError{StatusCode: resp.StatusCode, Message: http.StatusText(resp.StatusCode)}
		var eb errorBody
		if json.Unmarshal(data, &eb) == nil {
			if eb.Message != "" {
				se.Message = eb.Message
			}
			se.Errors = eb.Errors
		}
		c.logger.Info("APIがエラーステータスを返しました",
			slog.String("method", method),
			slog.String("path", path),
			slog.String("request_id", requestID),
			slog.Int("http_status", resp.StatusCode),
		)
		return se
	}

	if out == nil || len(bytes.TrimSpace(data)) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("レスポンスJSONのパースに失敗しました: %w", err)
	}
	return nil
}
