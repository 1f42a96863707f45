package config

import (
	"fmt"
	"net/url"
	"regexp"

	"github.com/docker/go-units"
)

// MaxRetries is the upper bound for lenient fetch retries.
const MaxRetries = 10

// ValidateURL validates that a string is a valid absolute http(s) URL.
func ValidateURL(urlStr string, fieldName string) error {
	if urlStr == "" {
		return fmt.Errorf("%s cannot be empty", fieldName)
	}

	parsed, err := url.Parse(urlStr)
	if err != nil {
		return fmt.Errorf("invalid %s: %w", fieldName, err)
	}

	if parsed.Scheme == "" {
		return fmt.Errorf("%s must include a scheme (http/https)", fieldName)
	}

	if parsed.Host == "" {
		return fmt.Errorf("%s must include a host", fieldName)
	}

	return nil
}

// ValidateCredentials checks that username and token are either both set or both empty.
func ValidateCredentials(username string, token string) error {
	if (username == "") != (token == "") {
		return fmt.Errorf("username and token must be provided together")
	}
	return nil
}

// ValidatePattern checks that a custom sensitive pattern compiles.
func ValidatePattern(pattern string) error {
	if pattern == "" {
		return nil
	}
	if _, err := regexp.Compile("(?i)" + pattern); err != nil {
		return fmt.Errorf("invalid pattern %q: %w", pattern, err)
	}
	return nil
}

// ParseMaxResponseSize parses a human-readable size string (e.g., "10MB", "1GB") into bytes.
func ParseMaxResponseSize(sizeStr string) (int64, error) {
	size, err := units.FromHumanSize(sizeStr)
	if err != nil {
		return 0, fmt.Errorf("failed to parse max response size: %w", err)
	}
	if size <= 0 {
		return 0, fmt.Errorf("max response size must be positive, got %s", sizeStr)
	}
	return size, nil
}

// ValidateRetryCount validates that the retry count is within acceptable bounds.
func ValidateRetryCount(retries int) error {
	if retries < 0 {
		return fmt.Errorf("retry count cannot be negative, got %d", retries)
	}
	if retries > MaxRetries {
		return fmt.Errorf("retry count too high (max %d), got %d", MaxRetries, retries)
	}
	return nil
}
