// Package utils provides small, generic helper functions used across
// different layers of the application. These utilities are independent
// of domain or business logic.
package utils

import (
	"strconv"
	"strings"
)

// AtoiDefault converts a string to an int using strconv.Atoi.
// If the string is empty or cannot be parsed as an integer,
// it returns the provided default value instead.
func AtoiDefault(s string, def int) int {
	if s == "" {
		return def
	}
	if n, err := strconv.Atoi(s); err == nil {
		return n
	}
	return def
}

// ParseChoice reads s as a 1-based position in a list of n entries, as typed
// by a user answering a numbered menu, and returns the 0-based index.
//
// Example:
//
//	i, ok := utils.ParseChoice(" 2 ", 3) // 1, true
//	_, ok = utils.ParseChoice("4", 3)    // false
//	_, ok = utils.ParseChoice("two", 3)  // false
func ParseChoice(s string, n int) (int, bool) {
	i := AtoiDefault(strings.TrimSuffix(strings.TrimSpace(s), "."), 0)
	if i < 1 || i > n {
		return 0, false
	}
	return i - 1, true
}
