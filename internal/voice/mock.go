package voice

import (
	"context"
	"sync"
)

// MockSTT returns a scripted transcript and records how often it was called.
type MockSTT struct {
	mu    sync.Mutex
	Text  string
	Err   error
	calls int
}

func (m *MockSTT) Transcribe(_ context.Context, pcm []byte, _ int, _ string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls++
	if m.Err != nil {
		return "", m.Err
	}
	if len(pcm) == 0 {
		return "", nil
	}
	return m.Text, nil
}

func (m *MockSTT) Calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

// MockTTS returns fixed PCM for every fragment and records the texts it saw.
type MockTTS struct {
	mu    sync.Mutex
	PCM   []byte
	Rate  int
	Err   error
	texts []string
}

func (m *MockTTS) Synthesize(_ context.Context, text, _ string) ([]byte, int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return nil, 0, m.Err
	}
	m.texts = append(m.texts, text)
	rate := m.Rate
	if rate == 0 {
		rate = sarvamTTSSampleRate
	}
	return m.PCM, rate, nil
}

func (m *MockTTS) Texts() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, len(m.texts))
	copy(out, m.texts)
	return out
}
