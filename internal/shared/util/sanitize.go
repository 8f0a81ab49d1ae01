package util

import (
	"errors"
	"strings"
)

// ErrInvalidSlug is returned for owner or repository names that cannot be used in a host path.
var ErrInvalidSlug = errors.New("invalid owner or repository name")

// CleanSlug trims an owner or repository name and rejects path separators and traversal.
func CleanSlug(name string) (string, error) {
	s := strings.TrimSpace(name)
	if s == "" || s == "." || strings.Contains(s, "..") {
		return "", ErrInvalidSlug
	}
	if strings.ContainsAny(s, "/\\?#% ") {
		return "", ErrInvalidSlug
	}
	return s, nil
}
