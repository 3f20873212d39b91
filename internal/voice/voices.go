package voice

import "log"

// DefaultSpeaker is the provider voice used when none is configured or the
// requested identifier is unknown.
const DefaultSpeaker = "anushka"

// openAIVoiceSpeakers maps the OpenAI-style voice identifiers callers tend to
// configure onto the TTS provider's speaker names.
var openAIVoiceSpeakers = map[string]string{
	"alloy":   "anushka",
	"echo":    "abhilash",
	"fable":   "arya",
	"onyx":    "karun",
	"nova":    "manisha",
	"shimmer": "vidya",
}

var providerSpeakers = map[string]bool{
	"anushka":  true,
	"abhilash": true,
	"arya":     true,
	"karun":    true,
	"manisha":  true,
	"vidya":    true,
	"hitesh":   true,
}

// ResolveSpeaker maps a configured voice identifier to a provider speaker.
// Native speaker names pass through; unknown identifiers fall back to the
// default with a warning so a typo does not silently change the voice.
func ResolveSpeaker(voice string) string {
	if voice == "" {
		return DefaultSpeaker
	}
	if speaker, ok := openAIVoiceSpeakers[voice]; ok {
		return speaker
	}
	if providerSpeakers[voice] {
		return voice
	}
	log.Printf("voice: unknown voice %q, falling back to %q", voice, DefaultSpeaker)
	return DefaultSpeaker
}
