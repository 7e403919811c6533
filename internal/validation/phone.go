package validation

import (
	"strings"
	"unicode"
)

// Phone check messages
const (
	msgPhoneRequired   = "phone number is required"
	msgPhoneNoPrefix   = "phone number must start with the country code (+)"
	msgPhoneTooShort   = "phone number is too short"
	msgPhoneNotNumeric = "phone number may only contain digits after +"
)

const minPhoneLength = 10

// PhoneResult is the outcome of ValidatePhone
type PhoneResult struct {
	Valid   bool   `json:"valid"`
	Cleaned string `json:"cleaned"`
	Message string `json:"message"`
}

// ValidatePhone checks a WhatsApp number: spaces and dashes are stripped, the
// rest must be '+' followed by digits, at least 10 characters in total.
func ValidatePhone(raw string) PhoneResult {
	if strings.TrimSpace(raw) == "" {
		return PhoneResult{Message: msgPhoneRequired}
	}

	cleaned := strings.NewReplacer(" ", "", "-", "").Replace(strings.TrimSpace(raw))
	if !strings.HasPrefix(cleaned, "+") {
		return PhoneResult{Cleaned: cleaned, Message: msgPhoneNoPrefix}
	}
	if len(cleaned) < minPhoneLength {
		return PhoneResult{Cleaned: cleaned, Message: msgPhoneTooShort}
	}
	if !isDigits(cleaned[1:]) {
		return PhoneResult{Cleaned: cleaned, Message: msgPhoneNotNumeric}
	}
	return PhoneResult{Valid: true, Cleaned: cleaned}
}

// ValidChatID reports whether s is a numeric Telegram chat id
func ValidChatID(s string) bool {
	return isDigits(strings.TrimSpace(s))
}

func isDigits(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if r > unicode.MaxASCII || !unicode.IsDigit(r) {
			return false
		}
	}
	return true
}
