// Package auth はサンドボックスバックエンドのアカウント登録、ログイン、トークン認証を提供する。
package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/LingoToday/LingoToday-sub001/internal/model"
	"github.com/LingoToday/LingoToday-sub001/internal/registration"
	"github.com/LingoToday/LingoToday-sub001/internal/repository"
	"github.com/LingoToday/LingoToday-sub001/internal/security"
)

const (
	invalidDataMessage = "The given data was invalid."
	emailTakenMessage  = "The email has already been taken."
)

// ServiceConfig は認証サービスの設定。
type ServiceConfig struct {
	// BcryptCost はパスワードハッシュのコスト。0の場合はbcrypt.DefaultCost。
	BcryptCost int
}

// Service はサンドボックスの認証に関するビジネスロジックを提供する。
type Service struct {
	accounts  repository.AccountRepository
	tokens    *TokenIssuer
	sanitizer security.TextSanitizer
	config    ServiceConfig
	logger    *slog.Logger
}

// NewService はServiceを生成する。
func NewService(
	accounts repository.AccountRepository,
	tokens *TokenIssuer,
	sanitizer security.TextSanitizer,
	config ServiceConfig,
	logger *slog.Logger,
) *Service {
	if config.BcryptCost == 0 {
		config.BcryptCost = bcrypt.DefaultCost
	}
	return &Service{
		accounts:  accounts,
		tokens:    tokens,
		sanitizer: sanitizer,
		config:    config,
		logger:    logger,
	}
}

// Register はアカウントを作成する。
// 入力エラーとメールアドレス重複は*model.ValidationErrorを返す。
func (s *Service) Register(ctx context.Context, reg model.Registration) (*model.User, error) {
	reg = registration.Normalize(reg)
	reg.FirstName = s.sanitizer.Sanitize(reg.FirstName)
	if err := registration.Validate(reg); err != nil {
		return nil, err
	}

	existing, err := s.accounts.FindByEmail(ctx, reg.Email)
	if err != nil {
		return nil, fmt.Errorf("failed to find account: %w", err)
	}
	if existing != nil {
		return nil, emailTakenError()
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(reg.Password), s.config.BcryptCost)
	if err != nil {
		return nil, fmt.Errorf("failed to hash password: %w", err)
	}

	now := time.Now()
	account := &model.Account{
		ID:           uuid.New().String(),
		Email:        strings.ToLower(reg.Email),
		FirstName:    reg.FirstName,
		PasswordHash: string(hash),
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := s.accounts.Create(ctx, account); err != nil {
		if errors.Is(err, repository.ErrDuplicateEmail) {
			return nil, emailTakenError()
		}
		return nil, fmt.Errorf("failed to create account: %w", err)
	}

	s.logger.Info("アカウントを作成しました", slog.String("user_id", account.ID))
	return account.ToUser(), nil
}

// Login は認証情報を検証し、アクセストークンを発行する。
// 認証情報が一致しない場合はmodel.NewInvalidCredentialsError()を返す。
func (s *Service) Login(ctx context.Context, email, password string) (string, *model.User, error) {
	account, err := s.accounts.FindByEmail(ctx, strings.TrimSpace(email))
	if err != nil {
		return "", nil, fmt.Errorf("failed to find account: %w", err)
	}
	if account == nil {
		return "", nil, model.NewInvalidCredentialsError()
	}
	if err := bcrypt.CompareHashAndPassword([]byte(account.PasswordHash), []byte(password)); err != nil {
		s.logger.Info("ログインに失敗しました", slog.String("user_id", account.ID))
		return "", nil, model.NewInvalidCredentialsError()
	}

	token, err := s.tokens.Issue(account.ID)
	if err != nil {
		return "", nil, err
	}

	s.logger.Info("ログインしました", slog.String("user_id", account.ID))
	return token, account.ToUser(), nil
}

// Authenticate はアクセストークンを検証し、ユーザーIDを返す。
func (s *Service) Authenticate(token string) (string, error) {
	return s.tokens.Verify(token)
}

// GetCurrentUser は現在のユーザーを取得する。
func (s *Service) GetCurrentUser(ctx context.Context, userID string) (*model.User, error) {
	account, err := s.accounts.FindByID(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to find account: %w", err)
	}
	if account == nil {
		return nil, model.NewUserNotFoundError()
	}
	return account.ToUser(), nil
}

func emailTakenError() *model.ValidationError {
	return &model.ValidationError{
		Message: invalidDataMessage,
		Fields:  map[model.Field]string{model.FieldEmail: emailTakenMessage},
	}
}
