package llm

import (
	"context"
	"strings"
)

// MockAdapter replays scripted deltas. Used in tests and when no provider is
// configured.
type MockAdapter struct {
	Deltas []string
	Err    error
}

func NewMockAdapter(deltas ...string) *MockAdapter {
	return &MockAdapter{Deltas: deltas}
}

func (m *MockAdapter) StreamReply(ctx context.Context, _ string, onToken TokenHandler) (string, error) {
	if m.Err != nil {
		return "", m.Err
	}
	var full strings.Builder
	for _, delta := range m.Deltas {
		select {
		case <-ctx.Done():
			return "", ctx.Err()
		default:
		}
		full.WriteString(delta)
		if onToken != nil {
			if err := onToken(delta, false); err != nil {
				return "", err
			}
		}
	}
	if onToken != nil {
		if err := onToken("", true); err != nil {
			return "", err
		}
	}
	return full.String(), nil
}
