package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/lib/pq"

	"github.com/LingoToday/LingoToday-sub001/internal/model"
)

// pgUniqueViolation はPostgreSQLの一意制約違反エラーコード。
const pgUniqueViolation = "23505"

// PostgresAccountRepo はPostgreSQLを使用したアカウントリポジトリ。
type PostgresAccountRepo struct {
	db *sql.DB
}

// NewPostgresAccountRepo はPostgresAccountRepoを生成する。
func NewPostgresAccountRepo(db *sql.DB) *PostgresAccountRepo {
	return &PostgresAccountRepo{db: db}
}

const accountColumns = `id, email, first_name, password_hash, is_pro_user,
	notification_setup_shown, notifications_enabled, created_at, updated_at`

func scanAccount(row *sql.Row) (*model.Account, error) {
	a := &model.Account{}
	err := row.Scan(
		&a.ID, &a.Email, &a.FirstName, &a.PasswordHash, &a.IsProUser,
		&a.NotificationSetupShown, &a.NotificationsEnabled, &a.CreatedAt, &a.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return a, nil
}

// FindByID は指定IDのアカウントを取得する。見つからない場合はnilを返す。
func (r *PostgresAccountRepo) FindByID(ctx context.Context, id string) (*model.Account, error) {
	a, err := scanAccount(r.db.QueryRowContext(ctx,
		`SELECT `+accountColumns+` FROM accounts WHERE id = $1`,
		id,
	))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find account by ID: %w", err)
	}
	return a, nil
}

// FindByEmail はメールアドレスでアカウントを検索する。見つからない場合はnilを返す。
func (r *PostgresAccountRepo) FindByEmail(ctx context.Context, email string) (*model.Account, error) {
	a, err := scanAccount(r.db.QueryRowContext(ctx,
		`SELECT `+accountColumns+` FROM accounts WHERE lower(email) = lower($1)`,
		email,
	))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find account by email: %w", err)
	}
	return a, nil
}

// Create はアカウントを作成する。
// メールアドレスの一意制約に違反した場合はErrDuplicateEmailを返す。
func (r *PostgresAccountRepo) Create(ctx context.Context, a *model.Account) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO accounts (`+accountColumns+`)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		a.ID, a.Email, a.FirstName, a.PasswordHash, a.IsProUser,
		a.NotificationSetupShown, a.NotificationsEnabled, a.CreatedAt, a.UpdatedAt,
	)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && string(pqErr.Code) == pgUniqueViolation {
			return ErrDuplicateEmail
		}
		return fmt.Errorf("failed to insert account: %w", err)
	}
	return nil
}

// SetProUser はProユーザーフラグを更新する。
func (r *PostgresAccountRepo) SetProUser(ctx context.Context, id string, isPro bool) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE accounts SET is_pro_user = $2, updated_at = NOW() WHERE id = $1`,
		id, isPro,
	)
	if err != nil {
		return fmt.Errorf("failed to update pro flag: %w", err)
	}
	return nil
}

// MarkNotificationSetup は通知設定ステップの表示済みフラグと選択結果を記録する。
func (r *PostgresAccountRepo) MarkNotificationSetup(ctx context.Context, id string, enabled bool) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE accounts
		 SET notification_setup_shown = TRUE, notifications_enabled = $2, updated_at = NOW()
		 WHERE id = $1`,
		id, enabled,
	)
	if err != nil {
		return fmt.Errorf("failed to mark notification setup: %w", err)
	}
	return nil
}

// compile-time interface check
var _ AccountRepository = (*PostgresAccountRepo)(nil)
