package voice

import "context"

// STTProvider turns buffered caller PCM into text. Implementations wrap the
// PCM in a WAV container before posting. An empty transcript is returned as
// "" with a nil error so the caller can skip the turn.
type STTProvider interface {
	Transcribe(ctx context.Context, pcm []byte, sampleRate int, language string) (string, error)
}

// TTSProvider synthesizes text to 16-bit LE mono PCM at the provider's native
// sample rate. Resampling to the session rate is the caller's job.
type TTSProvider interface {
	Synthesize(ctx context.Context, text, voice string) (pcm []byte, sourceRate int, err error)
}
