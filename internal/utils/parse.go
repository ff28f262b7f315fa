// Package utils holds small parsing helpers shared by the chat and HTTP
// layers.
package utils

import (
	"errors"
	"strconv"
	"strings"
)

// ErrInvalidUserID is returned by ParseUserID for anything that is not a
// positive decimal integer.
var ErrInvalidUserID = errors.New("invalid user id")

// Pagination bounds used by ClampPage.
const (
	DefaultPage     = 1
	DefaultPageSize = 20
	MaxPageSize     = 100
)

// AtoiDefault parses s with strconv.Atoi and returns def when s is empty or
// not an integer. Surrounding spaces are not trimmed.
func AtoiDefault(s string, def int) int {
	if s == "" {
		return def
	}
	if n, err := strconv.Atoi(s); err == nil {
		return n
	}
	return def
}

// ParseUserID parses a Telegram user id from a path segment, header or
// query value.
func ParseUserID(s string) (int64, error) {
	id, err := strconv.ParseInt(strings.TrimSpace(s), 10, 64)
	if err != nil || id <= 0 {
		return 0, ErrInvalidUserID
	}
	return id, nil
}

// ClampPage parses raw page and page size values, applying defaults and
// bounding the size to MaxPageSize.
func ClampPage(rawPage, rawSize string) (page, size int) {
	page = AtoiDefault(rawPage, DefaultPage)
	if page < 1 {
		page = 1
	}
	size = AtoiDefault(rawSize, DefaultPageSize)
	if size < 1 {
		size = 1
	}
	if size > MaxPageSize {
		size = MaxPageSize
	}
	return page, size
}
