package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/LingoToday/LingoToday-sub001/internal/model"
)

// PostgresPaymentIntentRepo はPostgreSQLを使用した決済インテントリポジトリ。
type PostgresPaymentIntentRepo struct {
	db *sql.DB
}

// NewPostgresPaymentIntentRepo はPostgresPaymentIntentRepoを生成する。
func NewPostgresPaymentIntentRepo(db *sql.DB) *PostgresPaymentIntentRepo {
	return &PostgresPaymentIntentRepo{db: db}
}

// Create は決済インテントを作成する。
func (r *PostgresPaymentIntentRepo) Create(ctx context.Context, in *model.PaymentIntent) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO payment_intents (id, user_id, price_id, client_secret, status, activate_at, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		in.ID, in.UserID, in.PriceID, in.ClientSecret, string(in.Status), in.ActivateAt, in.CreatedAt, in.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert payment intent: %w", err)
	}
	return nil
}

// FindByClientSecret はクライアントシークレットでインテントを検索する。見つからない場合はnilを返す。
func (r *PostgresPaymentIntentRepo) FindByClientSecret(ctx context.Context, clientSecret string) (*model.PaymentIntent, error) {
	in := &model.PaymentIntent{}
	var status string
	var activateAt sql.NullTime
	err := r.db.QueryRowContext(ctx,
		`SELECT id, user_id, price_id, client_secret, status, activate_at, created_at, updated_at
		 FROM payment_intents WHERE client_secret = $1`,
		clientSecret,
	).Scan(&in.ID, &in.UserID, &in.PriceID, &in.ClientSecret, &status, &activateAt, &in.CreatedAt, &in.UpdatedAt)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find payment intent: %w", err)
	}

	in.Status = model.IntentStatus(status)
	if activateAt.Valid {
		t := activateAt.Time
		in.ActivateAt = &t
	}
	return in, nil
}

// UpdateStatus はインテントの状態とWebhook配信予定時刻を更新する。
func (r *PostgresPaymentIntentRepo) UpdateStatus(ctx context.Context, id string, status model.IntentStatus, activateAt *time.Time) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE payment_intents SET status = $2, activate_at = $3, updated_at = NOW() WHERE id = $1`,
		id, string(status), activateAt,
	)
	if err != nil {
		return fmt.Errorf("failed to update payment intent status: %w", err)
	}
	return nil
}

// ListDueForActivation は処理中かつActivateAtがnow以前のインテントを作成順に返す。
func (r *PostgresPaymentIntentRepo) ListDueForActivation(ctx context.Context, now time.Time) ([]*model.PaymentIntent, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, user_id, price_id, client_secret, status, activate_at, created_at, updated_at
		 FROM payment_intents
		 WHERE status = $1 AND activate_at IS NOT NULL AND activate_at <= $2
		 ORDER BY created_at ASC`,
		string(model.IntentStatusProcessing), now,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list due payment intents: %w", err)
	}
	defer rows.Close()

	var due []*model.PaymentIntent
	for rows.Next() {
		in := &model.PaymentIntent{}
		var status string
		var activateAt sql.NullTime
		if err := rows.Scan(&in.ID, &in.UserID, &in.PriceID, &in.ClientSecret, &status, &activateAt, &in.CreatedAt, &in.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan payment intent: %w", err)
		}
		in.Status = model.IntentStatus(status)
		if activateAt.Valid {
			t := activateAt.Time
			in.ActivateAt = &t
		}
		due = append(due, in)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate payment intents: %w", err)
	}
	return due, nil
}

// DeleteAbandonedBefore は確定待ちのまま放置されたcutoffより古いインテントを削除し、削除件数を返す。
func (r *PostgresPaymentIntentRepo) DeleteAbandonedBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	result, err := r.db.ExecContext(ctx,
		`DELETE FROM payment_intents WHERE status = $1 AND created_at < $2`,
		string(model.IntentStatusRequiresConfirmation), cutoff,
	)
	if err != nil {
		return 0, fmt.Errorf("failed to delete abandoned payment intents: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return n, nil
}

// compile-time interface check
var _ PaymentIntentRepository = (*PostgresPaymentIntentRepo)(nil)
