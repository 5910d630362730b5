package config

import (
	"fmt"
	"unicode/utf8"
)

// LoadRules reads a rule script from path. An empty file is a valid script.
func LoadRules(path string) (string, error) {
	data, err := readFile(path)
	if err != nil {
		return "", fmt.Errorf("rules file: %w", err)
	}
	if !utf8.Valid(data) {
		return "", fmt.Errorf("rules file: %w: %s is not valid UTF-8", ErrInvalidValue, path)
	}
	return string(data), nil
}
