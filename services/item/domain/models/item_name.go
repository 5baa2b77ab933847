package models

import (
	"fmt"
	"strings"
	"unicode/utf8"
)

// ItemName is a value object representing a valid item name.
// Encapsulates validation rules: non-blank, at most 255 characters.
type ItemName string

const maxItemNameLength = 255

// NewItemName constructs a valid ItemName from s with surrounding whitespace
// removed, or returns an error if constraints are violated.
func NewItemName(s string) (ItemName, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return "", fmt.Errorf("item name must not be blank")
	}
	if utf8.RuneCountInString(s) > maxItemNameLength {
		return "", fmt.Errorf("item name must not exceed %d characters", maxItemNameLength)
	}
	return ItemName(s), nil
}

// String returns the underlying string value.
func (n ItemName) String() string {
	return string(n)
}
