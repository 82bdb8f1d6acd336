package chat

import (
	"strings"
	"unicode/utf8"

	"github.com/artxchange/skillswap/internal/apperr"
)

const (
	MaxMessageBytes = 4096 // 4KB max frame size
	MaxTextChars    = 2000 // max character count
)

// NormalizeText trims surrounding whitespace and checks that what remains
// meets content requirements. It returns the text to store.
func NormalizeText(text string) (string, error) {
	text = strings.TrimSpace(text)
	if err := ValidateMessage(text); err != nil {
		return "", err
	}
	return text, nil
}

// ValidateMessage checks that a chat message meets content requirements.
func ValidateMessage(text string) error {
	if len(text) == 0 {
		return apperr.Validation("message text is empty")
	}
	if len(text) > MaxMessageBytes {
		return apperr.Validation("message exceeds %d byte limit", MaxMessageBytes)
	}
	if !utf8.ValidString(text) {
		return apperr.Validation("message contains invalid UTF-8")
	}
	if utf8.RuneCountInString(text) > MaxTextChars {
		return apperr.Validation("message exceeds %d character limit", MaxTextChars)
	}
	return nil
}
