package voice

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strings"
	"time"

	"github.com/nivaanlabs/vaani/internal/audio"
	"github.com/nivaanlabs/vaani/internal/reliability"
)

const (
	sarvamRequestTimeout = 30 * time.Second

	// The provider synthesizes at 24 kHz regardless of the call's rate.
	sarvamTTSSampleRate = 24000
)

type SarvamConfig struct {
	APIKey     string
	STTBaseURL string
	TTSBaseURL string
	STTModel   string
	TTSModel   string
}

// SarvamProvider implements both STT and TTS against the Sarvam speech APIs.
type SarvamProvider struct {
	cfg    SarvamConfig
	client *http.Client
}

func NewSarvamProvider(cfg SarvamConfig) *SarvamProvider {
	if strings.TrimSpace(cfg.STTBaseURL) == "" {
		cfg.STTBaseURL = "https://api.sarvam.ai/speech-to-text"
	}
	if strings.TrimSpace(cfg.TTSBaseURL) == "" {
		cfg.TTSBaseURL = "https://api.sarvam.ai/text-to-speech"
	}
	if strings.TrimSpace(cfg.STTModel) == "" {
		cfg.STTModel = "saarika:v2"
	}
	if strings.TrimSpace(cfg.TTSModel) == "" {
		cfg.TTSModel = "bulbul:v2"
	}
	return &SarvamProvider{
		cfg:    cfg,
		client: &http.Client{Timeout: sarvamRequestTimeout},
	}
}

type sarvamSTTResponse struct {
	Transcript string `json:"transcript"`
	Results    []struct {
		Alternatives []struct {
			Transcript string `json:"transcript"`
		} `json:"alternatives"`
	} `json:"results"`
}

func (p *SarvamProvider) Transcribe(ctx context.Context, pcm []byte, sampleRate int, language string) (string, error) {
	if len(pcm) == 0 {
		return "", nil
	}

	wav, err := audio.EncodeWAVPCM16LE(pcm, sampleRate)
	if err != nil {
		return "", fmt.Errorf("encode wav: %w", err)
	}

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	part, err := mw.CreateFormFile("file", "audio.wav")
	if err != nil {
		return "", err
	}
	if _, err := part.Write(wav); err != nil {
		return "", err
	}
	if err := mw.WriteField("model", p.cfg.STTModel); err != nil {
		return "", err
	}
	if err := mw.WriteField("language_code", languageCode(language)); err != nil {
		return "", err
	}
	if err := mw.Close(); err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.cfg.STTBaseURL, &body)
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())
	req.Header.Set("api-subscription-key", p.cfg.APIKey)

	res, err := p.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("stt request: %w", err)
	}
	defer res.Body.Close()

	if res.StatusCode < 200 || res.StatusCode >= 300 {
		detail, _ := io.ReadAll(io.LimitReader(res.Body, 4<<10))
		return "", fmt.Errorf("stt http status %d (retryable=%v): %s",
			res.StatusCode, reliability.IsRetryableHTTPStatus(res.StatusCode), string(detail))
	}

	var parsed sarvamSTTResponse
	if err := json.NewDecoder(res.Body).Decode(&parsed); err != nil {
		return "", fmt.Errorf("decode stt response: %w", err)
	}
	transcript := parsed.Transcript
	if transcript == "" && len(parsed.Results) > 0 && len(parsed.Results[0].Alternatives) > 0 {
		transcript = parsed.Results[0].Alternatives[0].Transcript
	}
	return strings.TrimSpace(transcript), nil
}

type sarvamTTSRequest struct {
	Inputs             []string `json:"inputs"`
	TargetLanguageCode string   `json:"target_language_code"`
	Speaker            string   `json:"speaker"`
	SpeechSampleRate   int      `json:"speech_sample_rate"`
	Model              string   `json:"model"`
}

type sarvamTTSResponse struct {
	Audios []string `json:"audios"`
}

func (p *SarvamProvider) Synthesize(ctx context.Context, text, voice string) ([]byte, int, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, 0, fmt.Errorf("empty text")
	}

	payload, err := json.Marshal(sarvamTTSRequest{
		Inputs:             []string{text},
		TargetLanguageCode: "hi-IN",
		Speaker:            ResolveSpeaker(voice),
		SpeechSampleRate:   sarvamTTSSampleRate,
		Model:              p.cfg.TTSModel,
	})
	if err != nil {
		return nil, 0, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.cfg.TTSBaseURL, bytes.NewReader(payload))
	if err != nil {
		return nil, 0, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("api-subscription-key", p.cfg.APIKey)

	res, err := p.client.Do(req)
	if err != nil {
		return nil, 0, fmt.Errorf("tts request: %w", err)
	}
	defer res.Body.Close()

	if res.StatusCode < 200 || res.StatusCode >= 300 {
		detail, _ := io.ReadAll(io.LimitReader(res.Body, 4<<10))
		return nil, 0, fmt.Errorf("tts http status %d (retryable=%v): %s",
			res.StatusCode, reliability.IsRetryableHTTPStatus(res.StatusCode), string(detail))
	}

	var parsed sarvamTTSResponse
	if err := json.NewDecoder(res.Body).Decode(&parsed); err != nil {
		return nil, 0, fmt.Errorf("decode tts response: %w", err)
	}
	if len(parsed.Audios) == 0 || parsed.Audios[0] == "" {
		return nil, 0, fmt.Errorf("tts returned no audio")
	}

	raw, err := base64.StdEncoding.DecodeString(parsed.Audios[0])
	if err != nil {
		return nil, 0, fmt.Errorf("decode tts audio: %w", err)
	}
	return audio.StripWAVHeader(raw), sarvamTTSSampleRate, nil
}

// languageCode normalizes a configured language into the provider's locale
// form. Bare ISO codes get the Indian locale suffix; "" defaults to English.
func languageCode(language string) string {
	language = strings.TrimSpace(language)
	if language == "" {
		language = "en"
	}
	lower := strings.ToLower(language)
	switch lower {
	case "en", "english":
		return "en-IN"
	case "hi", "hindi", "hinglish":
		return "hi-IN"
	}
	if strings.Contains(language, "-") {
		return language
	}
	return lower + "-IN"
}
