// Package registration はオンボーディングの登録ステップを提供する。
// ローカル検証、アカウント作成、続けて同じ認証情報でのログインを1つの操作として扱う。
package registration

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sort"
	"strings"

	"github.com/LingoToday/LingoToday-sub001/internal/apiclient"
	"github.com/LingoToday/LingoToday-sub001/internal/metrics"
	"github.com/LingoToday/LingoToday-sub001/internal/model"
	"github.com/LingoToday/LingoToday-sub001/internal/security"
)

// ErrRegisteredNotSignedIn はアカウント作成後のログインに失敗した場合の原因エラー。
// 再試行はせず、通常のサインインを案内する。
var ErrRegisteredNotSignedIn = errors.New("registration: registered but not signed in")

// AuthAPI は登録に使用するバックエンドAPIのインターフェース。
type AuthAPI interface {
	Register(ctx context.Context, reg model.Registration) (*model.User, error)
	Login(ctx context.Context, email, password string) (*model.User, error)
}

// RegistrationError はアカウント作成またはログインで発生したエラー。
// Fieldsが空でない場合はフィールド単位でインライン表示し、
// それ以外はMessageを一般エラーとして表示する。
type RegistrationError struct {
	Fields  map[model.Field]string
	Message string
	Err     error
}

// Error はerrorインターフェースを実装する。
func (e *RegistrationError) Error() string {
	if len(e.Fields) == 0 {
		return "registration failed: " + e.Message
	}
	keys := make([]string, 0, len(e.Fields))
	for f := range e.Fields {
		keys = append(keys, string(f))
	}
	sort.Strings(keys)
	return "registration failed: invalid " + strings.Join(keys, ", ")
}

// Unwrap は原因エラーを返す。
func (e *RegistrationError) Unwrap() error {
	return e.Err
}

// FieldScoped はフィールド単位のエラーかを返す。
func (e *RegistrationError) FieldScoped() bool {
	return len(e.Fields) > 0
}

// APIError は画面表示用の統一エラーに変換する。
func (e *RegistrationError) APIError() *model.APIError {
	switch {
	case errors.Is(e.Err, ErrRegisteredNotSignedIn):
		return model.NewRegisteredNotSignedInError()
	case e.Fields[model.FieldEmail] != "" && len(e.Fields) == 1:
		apiErr := model.NewEmailTakenError()
		apiErr.Message = e.Fields[model.FieldEmail]
		return apiErr
	default:
		return model.NewRegistrationFailedError(e.Message)
	}
}

// backendFields はバックエンドのフィールド名とモデルのフィールドの対応。
var backendFields = map[string]model.Field{
	"first_name": model.FieldFirstName,
	"name":       model.FieldFirstName,
	"email":      model.FieldEmail,
	"password":   model.FieldPassword,
}

const generalFailureMessage = "We couldn't create your account. Please try again."

// Coordinator は登録ステップの処理を行う。
type Coordinator struct {
	api       AuthAPI
	sanitizer security.TextSanitizer
	metrics   metrics.MetricsCollector
	logger    *slog.Logger
}

// NewCoordinator はCoordinatorを生成する。
func NewCoordinator(api AuthAPI, sanitizer security.TextSanitizer, m metrics.MetricsCollector, logger *slog.Logger) *Coordinator {
	return &Coordinator{
		api:       api,
		sanitizer: sanitizer,
		metrics:   m,
		logger:    logger,
	}
}

// Register はローカル検証の後、アカウント作成とログインを順に行う。
// ローカル検証エラーは*model.ValidationError、バックエンドのエラーは*RegistrationErrorを返す。
// ログインはアカウント作成の成功後にのみ呼び出す。自動リトライはしない。
func (c *Coordinator) Register(ctx context.Context, reg model.Registration) (*model.User, error) {
	if err := Validate(reg); err != nil {
		c.metrics.RecordRegistration("invalid")
		return nil, err
	}
	reg = Normalize(reg)

	created, err := c.api.Register(ctx, reg)
	if err != nil {
		rerr := c.classify(err)
		c.metrics.RecordRegistration("rejected")
		c.logger.Info("アカウント作成に失敗しました",
			slog.Bool("field_scoped", rerr.FieldScoped()),
			slog.String("error", err.Error()),
		)
		return nil, rerr
	}

	user, err := c.api.Login(ctx, reg.Email, reg.Password)
	if err != nil {
		c.metrics.RecordRegistration("not_signed_in")
		c.logger.Warn("アカウント作成後のログインに失敗しました",
			slog.String("user_id", created.ID),
			slog.String("error", err.Error()),
		)
		return nil, &RegistrationError{
			Message: model.NewRegisteredNotSignedInError().Message,
			Err:     fmt.Errorf("%w: %v", ErrRegisteredNotSignedIn, err),
		}
	}
	if user == nil {
		user = created
	}

	c.metrics.RecordRegistration("success")
	c.logger.Info("アカウントを作成しログインしました", slog.String("user_id", user.ID))
	return user, nil
}

// classify はアカウント作成エラーをフィールド単位または一般エラーに分類する。
func (c *Coordinator) classify(err error) *RegistrationError {
	var se *apiclient.StatusError
	if !errors.As(err, &se) {
		return &RegistrationError{Message: generalFailureMessage, Err: err}
	}

	fields := make(map[model.Field]string)
	var unmapped []string
	for name, msgs := range se.Errors {
		if len(msgs) == 0 {
			continue
		}
		msg := c.sanitizer.Sanitize(msgs[0])
		if f, ok := backendFields[name]; ok {
			fields[f] = msg
			continue
		}
		unmapped = append(unmapped, msg)
	}
	sort.Strings(unmapped)
	if len(fields) > 0 {
		return &RegistrationError{Fields: fields, Message: strings.Join(unmapped, " "), Err: err}
	}

	msg := generalFailureMessage
	if se.StatusCode < http.StatusInternalServerError {
		if len(unmapped) > 0 {
			msg = strings.Join(unmapped, " ")
		} else if m := c.sanitizer.Sanitize(se.Message); m != "" {
			msg = m
		}
	}
	return &RegistrationError{Message: msg, Err: err}
}
