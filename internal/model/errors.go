package model

import (
	"fmt"
	"sort"
	"strings"
)

// APIError は統一エラーフォーマットを表す。
// UIに表示する原因カテゴリと対処方法を含む。
type APIError struct {
	Code     string // エラーコード
	Message  string // エラーメッセージ
	Category string // カテゴリ: auth, validation, payment, system
	Action   string // ユーザー向け対処方法
}

// Error はerrorインターフェースを実装する。
func (e *APIError) Error() string {
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// 定義済みエラーコード
const (
	ErrCodeValidation            = "VALIDATION_FAILED"
	ErrCodeEmailTaken            = "EMAIL_TAKEN"
	ErrCodeInvalidCredentials    = "INVALID_CREDENTIALS"
	ErrCodeUnauthorized          = "UNAUTHORIZED"
	ErrCodeUserNotFound          = "USER_NOT_FOUND"
	ErrCodeRegistrationFailed    = "REGISTRATION_FAILED"
	ErrCodeRegisteredNotSignedIn = "REGISTERED_NOT_SIGNED_IN"
	ErrCodeRegistrationRequired  = "REGISTRATION_REQUIRED"
	ErrCodePaymentFailed         = "PAYMENT_FAILED"
	ErrCodeActivationUnclear     = "ACTIVATION_UNCLEAR"
	ErrCodeIntentNotFound        = "INTENT_NOT_FOUND"
	ErrCodeRateLimited           = "RATE_LIMITED"
)

// Field はユーザー入力フィールドを表す。
type Field string

const (
	FieldLanguage      Field = "language"
	FieldLevel         Field = "level"
	FieldLearningStyle Field = "learning_style"
	FieldFirstName     Field = "first_name"
	FieldEmail         Field = "email"
	FieldPassword      Field = "password"
)

// ValidationError はネットワーク呼び出し前に検出されるローカルの入力エラー。
// Fieldsはフィールド単位のメッセージ、Errは原因となる番兵エラーを保持する。
type ValidationError struct {
	Fields  map[Field]string
	Message string
	Err     error
}

// Error はerrorインターフェースを実装する。
func (e *ValidationError) Error() string {
	if len(e.Fields) == 0 {
		return e.Message
	}
	keys := make([]string, 0, len(e.Fields))
	for f := range e.Fields {
		keys = append(keys, string(f))
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, k+": "+e.Fields[Field(k)])
	}
	if e.Message == "" {
		return strings.Join(parts, "; ")
	}
	return e.Message + ": " + strings.Join(parts, "; ")
}

// Unwrap は原因エラーを返す。
func (e *ValidationError) Unwrap() error {
	return e.Err
}

// NewEmailTakenError はメールアドレス重複エラーを生成する。
func NewEmailTakenError() *APIError {
	return &APIError{
		Code:     ErrCodeEmailTaken,
		Message:  "This email address is already registered.",
		Category: "validation",
		Action:   "Sign in with this email or use a different address.",
	}
}

// NewInvalidCredentialsError は認証情報不一致エラーを生成する。
func NewInvalidCredentialsError() *APIError {
	return &APIError{
		Code:     ErrCodeInvalidCredentials,
		Message:  "The email or password is incorrect.",
		Category: "auth",
		Action:   "Check your credentials and try again.",
	}
}

// NewUnauthorizedError は未認証エラーを生成する。
func NewUnauthorizedError() *APIError {
	return &APIError{
		Code:     ErrCodeUnauthorized,
		Message:  "Authentication is required.",
		Category: "auth",
		Action:   "Sign in and try again.",
	}
}

// NewUserNotFoundError はユーザーが見つからない場合のエラーを生成する。
func NewUserNotFoundError() *APIError {
	return &APIError{
		Code:     ErrCodeUserNotFound,
		Message:  "User not found.",
		Category: "auth",
		Action:   "Sign in again.",
	}
}

// NewRegistrationFailedError は登録失敗の一般エラーを生成する。
func NewRegistrationFailedError(message string) *APIError {
	if message == "" {
		message = "We couldn't create your account."
	}
	return &APIError{
		Code:     ErrCodeRegistrationFailed,
		Message:  message,
		Category: "auth",
		Action:   "Please check your details and try again.",
	}
}

// NewRegisteredNotSignedInError はアカウント作成後のログインに失敗した場合のエラーを生成する。
// リトライせず、通常のサインインを案内する。
func NewRegisteredNotSignedInError() *APIError {
	return &APIError{
		Code:     ErrCodeRegisteredNotSignedIn,
		Message:  "Your account was created, but we couldn't sign you in.",
		Category: "auth",
		Action:   "Please sign in with your new account from the login screen.",
	}
}

// NewRegistrationRequiredError は決済前に認証済みユーザーが存在しない場合のエラーを生成する。
func NewRegistrationRequiredError() *APIError {
	return &APIError{
		Code:     ErrCodeRegistrationRequired,
		Message:  "Please create an account before starting your subscription.",
		Category: "auth",
		Action:   "Complete the registration step first.",
	}
}

// NewPaymentFailedError は確定的な決済失敗エラーを生成する。
func NewPaymentFailedError(reason string) *APIError {
	msg := "Your payment could not be completed."
	if reason != "" {
		msg = fmt.Sprintf("Your payment could not be completed: %s", reason)
	}
	return &APIError{
		Code:     ErrCodePaymentFailed,
		Message:  msg,
		Category: "payment",
		Action:   "Check your card details and submit again.",
	}
}

// NewActivationUnclearError は有効化確認がタイムアウトした場合の案内を生成する。
// エラーではなく「状態不明」として表示する。
func NewActivationUnclearError() *APIError {
	return &APIError{
		Code:     ErrCodeActivationUnclear,
		Message:  "We're still confirming your subscription.",
		Category: "payment",
		Action:   "Activation may complete shortly. Check your account later.",
	}
}

// NewIntentNotFoundError は決済インテントが見つからない場合のエラーを生成する。
func NewIntentNotFoundError() *APIError {
	return &APIError{
		Code:     ErrCodeIntentNotFound,
		Message:  "Payment intent not found.",
		Category: "payment",
		Action:   "Start the payment again.",
	}
}

// NewRateLimitedError はレート制限超過エラーを生成する。
func NewRateLimitedError() *APIError {
	return &APIError{
		Code:     ErrCodeRateLimited,
		Message:  "Too many requests.",
		Category: "system",
		Action:   "Please wait a moment and try again.",
	}
}
