package registration

import (
	"net/mail"
	"strings"
	"unicode/utf8"

	"github.com/LingoToday/LingoToday-sub001/internal/model"
)

// MinPasswordLength はパスワードの最小文字数。
const MinPasswordLength = 8

// Normalize は送信前に登録フィールドの前後の空白を除去する。パスワードは変更しない。
func Normalize(reg model.Registration) model.Registration {
	reg.FirstName = strings.TrimSpace(reg.FirstName)
	reg.Email = strings.TrimSpace(reg.Email)
	return reg
}

// Validate はネットワーク呼び出し前のローカル検証を行う。
// 不備があればフィールド単位の*model.ValidationErrorを返す。
func Validate(reg model.Registration) error {
	reg = Normalize(reg)
	fields := make(map[model.Field]string)

	if reg.FirstName == "" {
		fields[model.FieldFirstName] = "Please enter your first name."
	}

	if !validEmail(reg.Email) {
		fields[model.FieldEmail] = "Please enter a valid email address."
	}

	if utf8.RuneCountInString(reg.Password) < MinPasswordLength {
		fields[model.FieldPassword] = "Password must be at least 8 characters."
	}

	if len(fields) == 0 {
		return nil
	}
	return &model.ValidationError{
		Fields:  fields,
		Message: "registration details are invalid",
	}
}

// validEmail は表示名を含まない単一のメールアドレスかを判定する。
func validEmail(email string) bool {
	if email == "" {
		return false
	}
	addr, err := mail.ParseAddress(email)
	if err != nil || addr.Address != email {
		return false
	}
	at := strings.LastIndexByte(email, '@')
	return at > 0 && strings.Contains(email[at+1:], ".")
}
