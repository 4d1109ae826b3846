package validation

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"
	"unicode/utf8"
)

var ErrValidationFailed = errors.New("validation failed")

const (
	MaxIdentifierLength = 128
	MaxSymbolLength     = 32
	MaxFilenameLength   = 255
)

// ValidateStringNotEmpty checks if a string is not empty after trimming.
func ValidateStringNotEmpty(s, fieldName string) error {
	if strings.TrimSpace(s) == "" {
		return fmt.Errorf("%w: %s cannot be empty", ErrValidationFailed, fieldName)
	}
	return nil
}

// ValidateStringMaxLength checks if a string's UTF-8 character count is within max bounds.
func ValidateStringMaxLength(s string, maxLength int, fieldName string) error {
	if utf8.RuneCountInString(s) > maxLength {
		return fmt.Errorf("%w: %s exceeds maximum length of %d characters", ErrValidationFailed, fieldName, maxLength)
	}
	return nil
}

var tradingDayRegex = regexp.MustCompile(`^\d{4}-\d{2}-\d{2}$`)

// ValidateTradingDay checks a YYYY-MM-DD calendar date.
func ValidateTradingDay(s string) error {
	if !tradingDayRegex.MatchString(s) {
		return fmt.Errorf("%w: trading day '%s' is not in YYYY-MM-DD format", ErrValidationFailed, s)
	}
	if _, err := time.Parse(time.DateOnly, s); err != nil {
		return fmt.Errorf("%w: trading day '%s' is not a valid date", ErrValidationFailed, s)
	}
	return nil
}

// ValidateFilename rejects empty names, path separators and overlong names.
func ValidateFilename(name string) error {
	if err := ValidateStringNotEmpty(name, "filename"); err != nil {
		return err
	}
	if strings.ContainsAny(name, `/\`) {
		return fmt.Errorf("%w: filename must not contain path separators", ErrValidationFailed)
	}
	return ValidateStringMaxLength(name, MaxFilenameLength, "filename")
}
