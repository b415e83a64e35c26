package utils

import (
	"os"
	"strconv"
	"strings"
)

// GetEnvOrDefault returns the value of the environment variable or a default.
func GetEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// ParseInteger parses an environment value as int, falling back on empty or
// malformed input.
func ParseInteger(value string, defaultValue int) int {
	if value == "" {
		return defaultValue
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return defaultValue
	}
	return parsed
}

// ParseBoolean parses an environment value as bool, falling back on empty or
// malformed input.
func ParseBoolean(value string, defaultValue bool) bool {
	if value == "" {
		return defaultValue
	}
	parsed, err := strconv.ParseBool(value)
	if err != nil {
		return defaultValue
	}
	return parsed
}

// ParseArray splits a comma-separated environment value, trimming empty items.
func ParseArray(value string, defaultValue []string) []string {
	if value == "" {
		return defaultValue
	}
	var result []string
	for _, item := range strings.Split(value, ",") {
		if trimmed := strings.TrimSpace(item); trimmed != "" {
			result = append(result, trimmed)
		}
	}
	if len(result) == 0 {
		return defaultValue
	}
	return result
}
