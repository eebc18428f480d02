package model

import (
	"errors"
	"testing"
)

func TestValidationError_ErrorListsFieldsInOrder(t *testing.T) {
	err := &ValidationError{
		Message: "invalid registration",
		Fields: map[Field]string{
			FieldPassword: "too short",
			FieldEmail:    "invalid",
		},
	}

	want := "invalid registration: email: invalid; password: too short"
	if err.Error() != want {
		t.Errorf("Error() = %q, want %q", err.Error(), want)
	}
}

func TestValidationError_UnwrapReturnsCause(t *testing.T) {
	cause := errors.New("cannot advance")
	err := &ValidationError{Message: "guard not satisfied", Err: cause}

	if !errors.Is(err, cause) {
		t.Error("errors.Is は原因エラーを検出できるべき")
	}
	if err.Error() != "guard not satisfied" {
		t.Errorf("Error() = %q, want %q", err.Error(), "guard not satisfied")
	}
}

func TestAPIError_Format(t *testing.T) {
	err := NewPaymentFailedError("card declined")

	if err.Code != ErrCodePaymentFailed {
		t.Errorf("Code = %q, want %q", err.Code, ErrCodePaymentFailed)
	}
	if err.Category != "payment" {
		t.Errorf("Category = %q, want payment", err.Category)
	}
	want := "[PAYMENT_FAILED] Your payment could not be completed: card declined"
	if err.Error() != want {
		t.Errorf("Error() = %q, want %q", err.Error(), want)
	}
}

func TestOnboardingSession_SnapshotDropsPassword(t *testing.T) {
	s := OnboardingSession{
		StepIndex:    3,
		Registration: Registration{FirstName: "Ana", Email: "ana@example.com", Password: "Secret123"},
		Identity:     &User{ID: "u-1"},
	}

	snap := s.Snapshot()
	if snap.Registration.Password != "" {
		t.Error("Snapshot はパスワードを含んではならない")
	}
	if s.Registration.Password != "Secret123" {
		t.Error("Snapshot は元のセッションを変更してはならない")
	}

	snap.Identity.ID = "changed"
	if s.Identity.ID != "u-1" {
		t.Error("Snapshot はIdentityをディープコピーするべき")
	}
}
