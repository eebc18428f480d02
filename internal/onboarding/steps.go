// Package onboarding はオンボーディングウィザードのステップ定義、遷移エンジン、
// 画面向けのフローを提供する。
package onboarding

import (
	"fmt"

	"github.com/LingoToday/LingoToday-sub001/internal/model"
)

// Step はウィザードのステップ番号（0..6）を表す。
type Step int

const (
	StepLanguage Step = iota
	StepLevel
	StepLearningStyle
	StepRegistration
	StepNotifications
	StepPlanSummary
	StepPayment
)

// LastStep は最終ステップ。
const LastStep = StepPayment

// String はステップ名を返す。ログとメトリクスのラベルに使用する。
func (s Step) String() string {
	switch s {
	case StepLanguage:
		return "language"
	case StepLevel:
		return "level"
	case StepLearningStyle:
		return "learning_style"
	case StepRegistration:
		return "registration"
	case StepNotifications:
		return "notifications"
	case StepPlanSummary:
		return "plan_summary"
	case StepPayment:
		return "payment"
	default:
		return fmt.Sprintf("step(%d)", int(s))
	}
}

// Guard はステップの汎用「続ける」操作を有効にしてよいかを判定する純粋関数。
type Guard func(s *model.OnboardingSession) bool

// StepDefinition はステップごとの遷移ルール。
// HasGenericControlがfalseのステップは自身の操作（登録成功、トライアル開始、決済）でのみ進む。
type StepDefinition struct {
	Step              Step
	Guard             Guard
	HasGenericControl bool
}

// SelfDriving は汎用操作を持たないステップかどうかを返す。
func (d StepDefinition) SelfDriving() bool {
	return !d.HasGenericControl
}

func never(*model.OnboardingSession) bool  { return false }
func always(*model.OnboardingSession) bool { return true }

var definitions = [...]StepDefinition{
	StepLanguage: {
		Step:              StepLanguage,
		Guard:             func(s *model.OnboardingSession) bool { return s.Language != "" },
		HasGenericControl: true,
	},
	StepLevel: {
		Step:              StepLevel,
		Guard:             func(s *model.OnboardingSession) bool { return s.Level != "" },
		HasGenericControl: true,
	},
	StepLearningStyle: {
		Step:              StepLearningStyle,
		Guard:             func(s *model.OnboardingSession) bool { return s.LearningStyle != "" },
		HasGenericControl: true,
	},
	StepRegistration: {Step: StepRegistration, Guard: never},
	// 通知許可の拒否も許容される結果のため常に続行できる
	StepNotifications: {
		Step:              StepNotifications,
		Guard:             always,
		HasGenericControl: true,
	},
	StepPlanSummary: {Step: StepPlanSummary, Guard: never},
	StepPayment:     {Step: StepPayment, Guard: never},
}

// Definition は指定ステップの定義を返す。範囲外の場合はfalseを返す。
func Definition(step Step) (StepDefinition, bool) {
	if step < 0 || int(step) >= len(definitions) {
		return StepDefinition{}, false
	}
	return definitions[step], true
}

// Definitions はすべてのステップ定義をステップ順に返す。
func Definitions() []StepDefinition {
	out := make([]StepDefinition, len(definitions))
	copy(out, definitions[:])
	return out
}

// CanAdvance はセッションの現在ステップで汎用操作による遷移が可能かを返す。
func CanAdvance(s *model.OnboardingSession) bool {
	def, ok := Definition(Step(s.StepIndex))
	if !ok {
		return false
	}
	return def.HasGenericControl && def.Guard(s)
}
