package runner

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"unicode"
	"unicode/utf8"
)

// DefaultMaxAnswerSize bounds one operator answer in bytes.
const DefaultMaxAnswerSize = 4096

// EnvMaxAnswerSize overrides DefaultMaxAnswerSize.
const EnvMaxAnswerSize = "TASKTREE_MAX_INPUT_SIZE"

var (
	ErrAnswerTooLarge = errors.New("answer exceeds maximum allowed size")
	ErrInvalidUTF8    = errors.New("answer contains invalid UTF-8 sequences")
)

// MaxAnswerSize returns the limit from EnvMaxAnswerSize, or the default when the
// variable is unset or not a positive integer.
func MaxAnswerSize() int {
	if v, err := strconv.Atoi(os.Getenv(EnvMaxAnswerSize)); err == nil && v > 0 {
		return v
	}
	return DefaultMaxAnswerSize
}

// CleanAnswer trims an operator answer and strips control characters other
// than tab, so escape sequences never reach the transcript or the logs.
// Oversized answers are rejected rather than truncated. A limit <= 0 means
// MaxAnswerSize.
func CleanAnswer(answer string, limit int) (string, error) {
	if limit <= 0 {
		limit = MaxAnswerSize()
	}
	if len(answer) > limit {
		return "", fmt.Errorf("%w: size=%d limit=%d", ErrAnswerTooLarge, len(answer), limit)
	}
	if !utf8.ValidString(answer) {
		return "", ErrInvalidUTF8
	}
	cleaned := strings.Map(func(r rune) rune {
		if unicode.IsControl(r) && r != '\t' {
			return -1
		}
		return r
	}, answer)
	return strings.TrimSpace(cleaned), nil
}
