package reliability

import "time"

// IsRetryableHTTPStatus classifies retryable provider HTTP status codes.
func IsRetryableHTTPStatus(code int) bool {
	switch code {
	case 429, 500, 502, 503, 504:
		return true
	default:
		return false
	}
}

// IsPermanentHTTPStatus classifies failures that retrying cannot fix:
// bad credentials or a malformed request. These need operator attention.
func IsPermanentHTTPStatus(code int) bool {
	switch code {
	case 400, 401, 403, 404:
		return true
	default:
		return false
	}
}

// ExponentialBackoff computes a deterministic capped backoff duration.
func ExponentialBackoff(attempt int, base, cap time.Duration) time.Duration {
	if attempt <= 0 {
		return base
	}
	d := base
	for i := 0; i < attempt; i++ {
		d *= 2
		if d >= cap {
			return cap
		}
	}
	return d
}
