package chat

import (
	"fmt"
	"strings"
	"unicode/utf8"
)

const (
	MaxMessageBytes = 4096 // 4KB max body size
	MaxTextChars    = 2000 // max character count
)

// ValidateBody checks that a message body meets content requirements and
// returns the trimmed body. An empty-after-trim body is the caller's bug
// and maps to ErrInvalidInput.
func ValidateBody(body string) (string, error) {
	trimmed := strings.TrimSpace(body)
	if trimmed == "" {
		return "", fmt.Errorf("%w: empty message body", ErrInvalidInput)
	}
	if len(trimmed) > MaxMessageBytes {
		return "", fmt.Errorf("%w: message exceeds %d byte limit", ErrInvalidInput, MaxMessageBytes)
	}
	if utf8.RuneCountInString(trimmed) > MaxTextChars {
		return "", fmt.Errorf("%w: message exceeds %d character limit", ErrInvalidInput, MaxTextChars)
	}
	if !utf8.ValidString(trimmed) {
		return "", fmt.Errorf("%w: message contains invalid UTF-8", ErrInvalidInput)
	}
	return trimmed, nil
}

// ValidateIdentity checks that a caller identity is usable for creating a
// session.
func ValidateIdentity(id Identity) error {
	if strings.TrimSpace(id.UserID) == "" {
		return fmt.Errorf("%w: empty user id", ErrInvalidInput)
	}
	return nil
}
