package server

import (
	"context"
	"errors"
	"math/rand/v2"
	"strings"
)

// Match codes are two letters followed by two digits, e.g. "AB12".
const (
	codeLetters = "ABCDEFGHIJKLMNOPQRSTUVWXYZ"
	codeDigits  = "0123456789"
)

func randomMatchCode() string {
	code := make([]byte, 4)
	code[0] = codeLetters[rand.IntN(len(codeLetters))]
	code[1] = codeLetters[rand.IntN(len(codeLetters))]
	code[2] = codeDigits[rand.IntN(len(codeDigits))]
	code[3] = codeDigits[rand.IntN(len(codeDigits))]
	return string(code)
}

// GenerateMatchCode draws codes from next until inUse reports a free one.
// With 67,600 codes a collision is rare, so the loop is unbounded.
func GenerateMatchCode(ctx context.Context, next func() string, inUse func(ctx context.Context, code string) (bool, error)) (string, error) {
	for {
		if err := ctx.Err(); err != nil {
			return "", err
		}

		code := next()
		taken, err := inUse(ctx, code)
		if err != nil {
			return "", err
		}
		if !taken {
			return code, nil
		}
	}
}

func ValidateMatchCode(code string) error {
	if len(code) != 4 {
		return errors.New("Match code must be exactly 4 characters")
	}

	for i, ch := range code {
		if i < 2 && (ch < 'A' || ch > 'Z') {
			return errors.New("Match code must start with two letters A-Z")
		}
		if i >= 2 && (ch < '0' || ch > '9') {
			return errors.New("Match code must end with two digits 0-9")
		}
	}

	return nil
}

func NormalizeMatchCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}
