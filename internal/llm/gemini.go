package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/nivaanlabs/vaani/internal/reliability"
)

const (
	defaultTemperature     = 0.7
	defaultMaxOutputTokens = 150
	defaultTopP            = 1.0
	defaultTopK            = 40

	// The deadline covers only the initial response headers; the SSE stream
	// itself is bounded by maxOutputTokens and finishReason.
	responseHeaderTimeout = 10 * time.Second
)

// GeminiAdapter streams replies from a Gemini-style streamGenerateContent
// SSE endpoint.
type GeminiAdapter struct {
	streamURL string
	apiKey    string
	client    *http.Client
}

func NewGeminiAdapter(streamURL, apiKey string) *GeminiAdapter {
	return &GeminiAdapter{
		streamURL: strings.TrimSpace(streamURL),
		apiKey:    strings.TrimSpace(apiKey),
		client: &http.Client{
			Transport: &http.Transport{
				ResponseHeaderTimeout: responseHeaderTimeout,
			},
		},
	}
}

type geminiRequest struct {
	Contents         []geminiContent  `json:"contents"`
	GenerationConfig generationConfig `json:"generationConfig"`
}

type geminiContent struct {
	Parts []geminiPart `json:"parts"`
}

type geminiPart struct {
	Text string `json:"text"`
}

type generationConfig struct {
	Temperature     float64 `json:"temperature"`
	MaxOutputTokens int     `json:"maxOutputTokens"`
	TopP            float64 `json:"topP"`
	TopK            int     `json:"topK"`
}

type geminiStreamChunk struct {
	Candidates []struct {
		Content struct {
			Parts []geminiPart `json:"parts"`
		} `json:"content"`
		FinishReason string `json:"finishReason"`
	} `json:"candidates"`
}

func (a *GeminiAdapter) StreamReply(ctx context.Context, prompt string, onToken TokenHandler) (string, error) {
	payload, err := json.Marshal(geminiRequest{
		Contents: []geminiContent{{Parts: []geminiPart{{Text: prompt}}}},
		GenerationConfig: generationConfig{
			Temperature:     defaultTemperature,
			MaxOutputTokens: defaultMaxOutputTokens,
			TopP:            defaultTopP,
			TopK:            defaultTopK,
		},
	})
	if err != nil {
		return "", fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.streamURL, bytes.NewReader(payload))
	if err != nil {
		return "", fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if a.apiKey != "" {
		req.Header.Set("x-goog-api-key", a.apiKey)
	}

	res, err := a.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("send request: %w", err)
	}
	defer res.Body.Close()

	if res.StatusCode < 200 || res.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(res.Body, 4<<10))
		return "", fmt.Errorf("llm http status %d (retryable=%v): %s",
			res.StatusCode, reliability.IsRetryableHTTPStatus(res.StatusCode), string(body))
	}

	return consumeSSE(res.Body, onToken)
}

// consumeSSE drains an SSE body, emitting one onToken call per delta. Reads
// may split frames mid-line, so bytes are accumulated and split on newline
// with the tail carried into the next read. Malformed JSON lines are skipped.
func consumeSSE(body io.Reader, onToken TokenHandler) (string, error) {
	var (
		full     strings.Builder
		pending  []byte
		buf      = make([]byte, 32*1024)
		finished bool
	)

	finish := func() error {
		if finished {
			return nil
		}
		finished = true
		if onToken != nil {
			return onToken("", true)
		}
		return nil
	}

	for {
		n, readErr := body.Read(buf)
		if n > 0 {
			pending = append(pending, buf[:n]...)
			for {
				idx := bytes.IndexByte(pending, '\n')
				if idx < 0 {
					break
				}
				line := pending[:idx]
				pending = pending[idx+1:]

				done, err := handleSSELine(line, &full, onToken)
				if err != nil {
					return "", err
				}
				if done {
					if err := finish(); err != nil {
						return "", err
					}
					return full.String(), nil
				}
			}
		}
		if readErr == io.EOF {
			// Stream ended without an explicit finish marker.
			if done, err := handleSSELine(pending, &full, onToken); err != nil {
				return "", err
			} else if done {
				if err := finish(); err != nil {
					return "", err
				}
				return full.String(), nil
			}
			if err := finish(); err != nil {
				return "", err
			}
			return full.String(), nil
		}
		if readErr != nil {
			return "", fmt.Errorf("stream read: %w", readErr)
		}
	}
}

// handleSSELine processes one SSE line. It reports done=true when the chunk
// carries a finishReason.
func handleSSELine(line []byte, full *strings.Builder, onToken TokenHandler) (bool, error) {
	trimmed := strings.TrimSpace(string(line))
	if trimmed == "" {
		return false, nil
	}
	if !strings.HasPrefix(trimmed, "data:") {
		return false, nil
	}
	payload := strings.TrimSpace(strings.TrimPrefix(trimmed, "data:"))
	if payload == "" || payload == "[DONE]" {
		return payload == "[DONE]", nil
	}

	var chunk geminiStreamChunk
	if err := json.Unmarshal([]byte(payload), &chunk); err != nil {
		// SSE frames can be split across reads; partial JSON shows up as a
		// malformed line and is dropped.
		return false, nil
	}
	if len(chunk.Candidates) == 0 {
		return false, nil
	}

	cand := chunk.Candidates[0]
	for _, part := range cand.Content.Parts {
		if part.Text == "" {
			continue
		}
		full.WriteString(part.Text)
		if onToken != nil {
			if err := onToken(part.Text, false); err != nil {
				return false, err
			}
		}
	}
	return cand.FinishReason != "", nil
}
