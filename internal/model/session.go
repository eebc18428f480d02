package model

// Language は学習対象の言語を表す。
type Language string

const (
	LanguageSpanish    Language = "spanish"
	LanguageFrench     Language = "french"
	LanguageItalian    Language = "italian"
	LanguageGerman     Language = "german"
	LanguagePortuguese Language = "portuguese"
)

// Level は学習者の現在のレベルを表す。
type Level string

const (
	LevelBeginner     Level = "beginner"
	LevelIntermediate Level = "intermediate"
	LevelAdvanced     Level = "advanced"
)

// LearningStyle は学習スタイルを表す。
type LearningStyle string

const (
	LearningStyleMobile  LearningStyle = "mobile"
	LearningStyleDesktop LearningStyle = "desktop"
	LearningStyleAudio   LearningStyle = "audio"
	LearningStyleBlended LearningStyle = "blended"
)

// Registration は登録ステップで入力されるアカウント情報。
// Passwordは永続化しない（json:"-"）。
type Registration struct {
	FirstName string `json:"first_name"`
	Email     string `json:"email"`
	Password  string `json:"-"`
}

// OnboardingSession は1回のオンボーディング試行の作業状態を表す。
//
// 不変条件:
//   - Identityが非nilならStepIndexは4以上
//   - StepIndexが3以上ならLanguage、Level、LearningStyleはすべて設定済み（ガードで保証）
type OnboardingSession struct {
	StepIndex            int           `json:"step_index"`
	Language             Language      `json:"language,omitempty"`
	Level                Level         `json:"level,omitempty"`
	LearningStyle        LearningStyle `json:"learning_style,omitempty"`
	Registration         Registration  `json:"registration"`
	NotificationsEnabled bool          `json:"notifications_enabled"`
	Identity             *User         `json:"identity,omitempty"`
	// Completed は決済ステップでサブスクリプションの有効化が確認されたことを示す。
	Completed bool `json:"completed"`
}

// Clone はセッションのディープコピーを返す。
func (s OnboardingSession) Clone() OnboardingSession {
	if s.Identity != nil {
		id := *s.Identity
		s.Identity = &id
	}
	return s
}

// Snapshot は永続化対象のフィールドのみを持つコピーを返す。
// パスワードは含まれない。
func (s OnboardingSession) Snapshot() OnboardingSession {
	c := s.Clone()
	c.Registration.Password = ""
	return c
}

// Valid は定義済みの言語かどうかを返す。
func (l Language) Valid() bool {
	switch l {
	case LanguageSpanish, LanguageFrench, LanguageItalian, LanguageGerman, LanguagePortuguese:
		return true
	}
	return false
}

// Valid は定義済みのレベルかどうかを返す。
func (l Level) Valid() bool {
	switch l {
	case LevelBeginner, LevelIntermediate, LevelAdvanced:
		return true
	}
	return false
}

// Valid は定義済みの学習スタイルかどうかを返す。
func (s LearningStyle) Valid() bool {
	switch s {
	case LearningStyleMobile, LearningStyleDesktop, LearningStyleAudio, LearningStyleBlended:
		return true
	}
	return false
}
