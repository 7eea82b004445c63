// Package validation provides identifier and path validation used by the
// schema value objects, the query builder and the CLI.
package validation

import (
	"errors"
	"fmt"
	"strings"
	"unicode"
)

// Limits
const (
	// MaxIdentifierLength is the longest table, column or index name accepted.
	// It matches the MySQL limit, the strictest of the supported dialects.
	MaxIdentifierLength = 64
	// MaxPathLength is the maximum allowed path length.
	MaxPathLength = 4096
)

// Common validation errors.
var (
	ErrEmptyIdentifier   = errors.New("identifier cannot be empty")
	ErrInvalidIdentifier = errors.New("invalid identifier")
	ErrIdentifierTooLong = errors.New("identifier too long")
	ErrPathTooLong       = errors.New("path too long")
	ErrInvalidCharacter  = errors.New("invalid character in path")
	ErrEmptyPath         = errors.New("path cannot be empty")
	ErrInvalidColumnRef  = errors.New("invalid column reference")
	ErrInvalidOrdering   = errors.New("invalid sort direction")
)

// IsIdentifier reports whether name matches [A-Za-z_][A-Za-z0-9_]*.
func IsIdentifier(name string) bool {
	if name == "" {
		return false
	}
	for i := 0; i < len(name); i++ {
		c := name[i]
		switch {
		case c == '_', c >= 'A' && c <= 'Z', c >= 'a' && c <= 'z':
		case c >= '0' && c <= '9':
			if i == 0 {
				return false
			}
		default:
			return false
		}
	}
	return true
}

// ValidateIdentifier checks a table, column, index or constraint name.
func ValidateIdentifier(name string) error {
	if name == "" {
		return ErrEmptyIdentifier
	}
	if len(name) > MaxIdentifierLength {
		return fmt.Errorf("%w: %d > %d", ErrIdentifierTooLong, len(name), MaxIdentifierLength)
	}
	if !IsIdentifier(name) {
		return fmt.Errorf("%w: %q", ErrInvalidIdentifier, name)
	}
	return nil
}

// ValidateColumnRef checks a possibly qualified column reference such as
// "name", "e.name", "*" or "e.*".
func ValidateColumnRef(ref string) error {
	if ref == "*" {
		return nil
	}
	qualifier, column, qualified := strings.Cut(ref, ".")
	if !qualified {
		return ValidateIdentifier(ref)
	}
	if err := ValidateIdentifier(qualifier); err != nil {
		return fmt.Errorf("%w: %q", ErrInvalidColumnRef, ref)
	}
	if column == "*" {
		return nil
	}
	if err := ValidateIdentifier(column); err != nil {
		return fmt.Errorf("%w: %q", ErrInvalidColumnRef, ref)
	}
	return nil
}

// NormalizeDirection returns "ASC" or "DESC" for a case-insensitive sort direction.
func NormalizeDirection(dir string) (string, error) {
	switch strings.ToUpper(strings.TrimSpace(dir)) {
	case "", "ASC":
		return "ASC", nil
	case "DESC":
		return "DESC", nil
	default:
		return "", fmt.Errorf("%w: %q", ErrInvalidOrdering, dir)
	}
}

// ValidatePath performs path validation without requiring a base directory.
// It checks length limits and invalid characters.
func ValidatePath(path string) error {
	if path == "" {
		return ErrEmptyPath
	}

	// Check length
	if len(path) > MaxPathLength {
		return ErrPathTooLong
	}

	// Check for null bytes
	if strings.Contains(path, "\x00") {
		return fmt.Errorf("%w: null byte not allowed", ErrInvalidCharacter)
	}

	// Check for control characters
	for _, r := range path {
		if unicode.IsControl(r) {
			return fmt.Errorf("%w: control character not allowed", ErrInvalidCharacter)
		}
	}

	return nil
}
