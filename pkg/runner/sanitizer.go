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

var (
	// DefaultMaxInputSize is 1MB, large enough for pasted scripts.
	DefaultMaxInputSize = 1 << 20
	// EnvMaxInputSize is the environment variable to override the default
	EnvMaxInputSize = "SWITCHBOARD_MAX_INPUT_SIZE"
)

var (
	ErrInputTooLarge = errors.New("input exceeds maximum allowed size")
	ErrInvalidUTF8   = errors.New("input contains invalid UTF-8 sequences")
)

// SanitizeInput checks a cell read from the user: it enforces the size limit,
// validates UTF-8 and strips control characters other than newline, tab and
// carriage return.
func SanitizeInput(input string) (string, error) {
	limit := maxInputSize()
	if len(input) > limit {
		return "", fmt.Errorf("%w: size=%d limit=%d", ErrInputTooLarge, len(input), limit)
	}
	if !utf8.ValidString(input) {
		return "", ErrInvalidUTF8
	}

	dirty := strings.IndexFunc(input, func(r rune) bool {
		return unicode.IsControl(r) && !isSafeControl(r)
	})
	if dirty < 0 {
		return input, nil
	}

	var b strings.Builder
	b.Grow(len(input))
	b.WriteString(input[:dirty])
	for _, r := range input[dirty:] {
		if !unicode.IsControl(r) || isSafeControl(r) {
			b.WriteRune(r)
		}
	}
	return b.String(), nil
}

func isSafeControl(r rune) bool {
	return r == '\n' || r == '\t' || r == '\r'
}

func maxInputSize() int {
	if val := os.Getenv(EnvMaxInputSize); val != "" {
		if size, err := strconv.Atoi(val); err == nil && size > 0 {
			return size
		}
	}
	return DefaultMaxInputSize
}
