// Package config provides shared configuration types and validation helpers for envhunter.
package config

import "time"

// CommonScanOptions contains the transport settings shared by every scan.
type CommonScanOptions struct {
	// RequestTimeout bounds a single HTTP request, including reading the body
	RequestTimeout time.Duration
	// Retries is the number of extra attempts for lenient (per-build) fetches
	Retries int
	// MaxResponseSize is the largest response body accepted (in bytes)
	MaxResponseSize int64
}

// DefaultCommonScanOptions returns sensible default values for common scan options.
func DefaultCommonScanOptions() CommonScanOptions {
	return CommonScanOptions{
		RequestTimeout:  30 * time.Second,
		Retries:         2,
		MaxResponseSize: 10 * 1000 * 1000, // 10MB
	}
}
