package reliability

import (
	"testing"
	"time"
)

func TestIsRetryableHTTPStatus(t *testing.T) {
	cases := []struct {
		code int
		want bool
	}{
		{200, false},
		{400, false},
		{401, false},
		{429, true},
		{500, true},
		{502, true},
		{503, true},
		{504, true},
	}
	for _, tc := range cases {
		if got := IsRetryableHTTPStatus(tc.code); got != tc.want {
			t.Errorf("IsRetryableHTTPStatus(%d) = %v, want %v", tc.code, got, tc.want)
		}
	}
}

func TestIsPermanentHTTPStatus(t *testing.T) {
	if !IsPermanentHTTPStatus(401) {
		t.Fatalf("401 should be permanent")
	}
	if IsPermanentHTTPStatus(503) {
		t.Fatalf("503 should not be permanent")
	}
}

func TestExponentialBackoff(t *testing.T) {
	base := 100 * time.Millisecond
	cap := time.Second
	if d := ExponentialBackoff(0, base, cap); d != base {
		t.Fatalf("attempt 0 = %v, want %v", d, base)
	}
	if d := ExponentialBackoff(2, base, cap); d != 400*time.Millisecond {
		t.Fatalf("attempt 2 = %v, want 400ms", d)
	}
	if d := ExponentialBackoff(10, base, cap); d != cap {
		t.Fatalf("attempt 10 = %v, want cap %v", d, cap)
	}
}
