// Package draft はオンボーディング中の作業状態（下書き）の保持と永続化を提供する。
//
// すべての変更はメモリ上のセッションとデバイスローカルのキー/バリューストアの
// 両方に即時反映される（write-through）。パスワードは永続化しない。
package draft

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"

	"github.com/LingoToday/LingoToday-sub001/internal/model"
	"github.com/LingoToday/LingoToday-sub001/internal/repository"
)

const (
	// TransientKey は登録完了前の下書きを保存するキー。
	TransientKey = "onboarding.draft"
	// FinalizedKey は登録完了後の下書きを保存するキー。
	FinalizedKey = "onboarding.finalized"
)

// Patch はセッションへの部分更新を表す。nilのフィールドは変更しない。
type Patch struct {
	StepIndex            *int
	Language             *model.Language
	Level                *model.Level
	LearningStyle        *model.LearningStyle
	Registration         *model.Registration
	NotificationsEnabled *bool
	Identity             *model.User
	Completed            *bool
}

// Ptr は値へのポインタを返す。Patchの組み立てに使用する。
func Ptr[T any](v T) *T {
	return &v
}

// apply はパッチをセッションのコピーに適用して返す。
func (p Patch) apply(s model.OnboardingSession) model.OnboardingSession {
	next := s.Clone()
	if p.StepIndex != nil {
		next.StepIndex = *p.StepIndex
	}
	if p.Language != nil {
		next.Language = *p.Language
	}
	if p.Level != nil {
		next.Level = *p.Level
	}
	if p.LearningStyle != nil {
		next.LearningStyle = *p.LearningStyle
	}
	if p.Registration != nil {
		next.Registration = *p.Registration
	}
	if p.NotificationsEnabled != nil {
		next.NotificationsEnabled = *p.NotificationsEnabled
	}
	if p.Identity != nil {
		id := *p.Identity
		next.Identity = &id
	}
	if p.Completed != nil {
		next.Completed = *p.Completed
	}
	return next
}

// Store はオンボーディングセッションの下書きストア。
type Store struct {
	repo   repository.KeyValueRepository
	logger *slog.Logger

	mu        sync.Mutex
	session   model.OnboardingSession
	finalized bool
}

// NewStore はStoreを生成する。セッションは初期値で開始する。
// フロー開始時には必ずResetを呼び出すこと。
func NewStore(repo repository.KeyValueRepository, logger *slog.Logger) *Store {
	return &Store{
		repo:   repo,
		logger: logger,
	}
}

// Session はメモリ上のセッションのコピーを返す。
func (s *Store) Session() model.OnboardingSession {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.session.Clone()
}

// Key は現在の書き込み先キーを返す。
func (s *Store) Key() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.keyLocked()
}

func (s *Store) keyLocked() string {
	if s.finalized {
		return FinalizedKey
	}
	return TransientKey
}

// Update はパッチをセッションに適用し、スナップショットを現在のキーに書き込む。
// 書き込みに失敗した場合、メモリ上のセッションは変更されない。
func (s *Store) Update(ctx context.Context, p Patch) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	next := p.apply(s.session)
	if err := s.writeLocked(ctx, s.keyLocked(), next); err != nil {
		return err
	}
	s.session = next
	return nil
}

// Reset は両方のキーを削除し、セッションを初期値に戻す。
// 前回の試行の下書きは再開しない。
func (s *Store) Reset(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, key := range []string{TransientKey, FinalizedKey} {
		if err := s.repo.Delete(ctx, key); err != nil {
			return fmt.Errorf("下書きのクリアに失敗: %w", err)
		}
	}
	s.session = model.OnboardingSession{}
	s.finalized = false

	s.logger.Debug("オンボーディングの下書きをクリアしました")
	return nil
}

// Finalize は登録完了時の変更pを適用した下書きを確定キーに書き込み、一時キーを削除する。
// 確定キーへの書き込みに失敗した場合、メモリ上のセッションと書き込み先キーは変更されない。
// 以降のUpdateは確定キーに書き込まれる。
func (s *Store) Finalize(ctx context.Context, p Patch) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	next := p.apply(s.session)
	if err := s.writeLocked(ctx, FinalizedKey, next); err != nil {
		return err
	}
	// 確定キーが正となる。残った一時キーは次回のResetで削除される。
	if err := s.repo.Delete(ctx, TransientKey); err != nil {
		s.logger.Warn("一時下書きの削除に失敗しました",
			slog.String("key", TransientKey),
			slog.String("error", err.Error()),
		)
	}
	s.session = next
	s.finalized = true

	s.logger.Info("オンボーディングの下書きを確定しました",
		slog.Int("step", s.session.StepIndex),
	)
	return nil
}

// Load は指定キーに永続化されたスナップショットを読み出す。
// キーが存在しない場合はnilを返す。
func (s *Store) Load(ctx context.Context, key string) (*model.OnboardingSession, error) {
	data, err := s.repo.Get(ctx, key)
	if err != nil {
		return nil, fmt.Errorf("下書きの読み込みに失敗: %w", err)
	}
	if data == nil {
		return nil, nil
	}

	var session model.OnboardingSession
	if err := json.Unmarshal(data, &session); err != nil {
		return nil, fmt.Errorf("下書きのデコードに失敗: %w", err)
	}
	return &session, nil
}

func (s *Store) writeLocked(ctx context.Context, key string, session model.OnboardingSession) error {
	data, err := json.Marshal(session.Snapshot())
	if err != nil {
		return fmt.Errorf("下書きのエンコードに失敗: %w", err)
	}
	if err := s.repo.Set(ctx, key, data); err != nil {
		return fmt.Errorf("下書きの保存に失敗: %w", err)
	}
	return nil
}
