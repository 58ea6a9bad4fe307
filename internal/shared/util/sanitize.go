package util

import (
	"errors"
	"strings"
	"unicode/utf8"
)

const maxFileNameRunes = 200

var errInvalidFileName = errors.New("invalid file name")

// SanitizeFileName flattens path separators, rejects traversal and caps the length.
func SanitizeFileName(name string) (string, error) {
	if strings.Contains(name, "..") {
		return "", errInvalidFileName
	}
	s := strings.TrimSpace(name)
	s = strings.ReplaceAll(s, "/", "_")
	s = strings.ReplaceAll(s, "\\", "_")
	if s == "" {
		return "", errInvalidFileName
	}
	if utf8.RuneCountInString(s) > maxFileNameRunes {
		runes := []rune(s)
		s = string(runes[len(runes)-maxFileNameRunes:])
	}
	return s, nil
}
