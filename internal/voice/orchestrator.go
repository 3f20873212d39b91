package voice

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"log"
	"strings"
	"sync/atomic"
	"time"

	"github.com/nivaanlabs/vaani/internal/audio"
	"github.com/nivaanlabs/vaani/internal/knowledge"
	"github.com/nivaanlabs/vaani/internal/llm"
	"github.com/nivaanlabs/vaani/internal/observability"
	"github.com/nivaanlabs/vaani/internal/protocol"
	"github.com/nivaanlabs/vaani/internal/session"
	"github.com/nivaanlabs/vaani/internal/store"
)

// ReplyDoneMark is the mark frame name emitted after the assistant finishes
// speaking a reply or the greeting.
const ReplyDoneMark = "assistant_reply_done"

const fallbackGreeting = "Namaste! Main aapki kaise madad kar sakti hoon?"

// errBargeIn aborts the LLM stream from inside the token handler when the
// caller starts speaking over the assistant.
var errBargeIn = errors.New("barge-in preempted reply")

// SendFunc delivers one outbound frame to the carrier websocket writer.
type SendFunc func(frame any) error

// Options tunes the per-call pipeline. Zero values pick the defaults below.
type Options struct {
	Voice           string
	Language        string
	DefaultGreeting string

	// Silence gate: samples with |amplitude| above the threshold count as
	// active; below the ratio the turn is skipped without calling STT.
	SilenceAmplitudeThreshold int
	SilenceMinActiveRatio     float64

	InterChunkDelay time.Duration
}

// Orchestrator runs the STT -> LLM -> TTS pipeline for every session turn and
// owns the greeting and call-teardown flows.
type Orchestrator struct {
	stt     STTProvider
	tts     TTSProvider
	llm     llm.Adapter
	kb      *knowledge.Service
	store   store.Store
	metrics *observability.Metrics
	opts    Options
}

func NewOrchestrator(stt STTProvider, tts TTSProvider, adapter llm.Adapter, kb *knowledge.Service, st store.Store, metrics *observability.Metrics, opts Options) *Orchestrator {
	if opts.SilenceAmplitudeThreshold <= 0 {
		opts.SilenceAmplitudeThreshold = 100
	}
	if opts.SilenceMinActiveRatio <= 0 {
		opts.SilenceMinActiveRatio = 0.05
	}
	if opts.InterChunkDelay <= 0 {
		opts.InterChunkDelay = 10 * time.Millisecond
	}
	return &Orchestrator{
		stt:     stt,
		tts:     tts,
		llm:     adapter,
		kb:      kb,
		store:   st,
		metrics: metrics,
		opts:    opts,
	}
}

// HandleEvent applies one parsed carrier event to the session. Turn and
// greeting pipelines run on their own goroutines so the caller's event loop
// stays responsive to clear and stop frames.
func (o *Orchestrator) HandleEvent(ctx context.Context, sess *session.Session, evt any, send SendFunc) error {
	switch m := evt.(type) {
	case protocol.ConnectedEvent:
		sess.PinStreamSid(m.StreamSid)
		sess.SetCustomParameters(m.CustomParameters)
		o.maybeGreet(ctx, sess, send)

	case protocol.StartEvent:
		sess.PinStreamSid(protocol.EffectiveStreamSid(m))
		sess.SetCustomParameters(m.Start.CustomParameters)
		o.maybeGreet(ctx, sess, send)

	case protocol.MediaEvent:
		sess.PinStreamSid(m.StreamSid)
		o.maybeGreet(ctx, sess, send)
		if m.Media.Track == protocol.TrackOutbound {
			return nil
		}
		pcm, err := base64.StdEncoding.DecodeString(m.Media.Payload)
		if err != nil {
			return fmt.Errorf("media payload: %w", err)
		}
		sess.AppendInbound(pcm)
		if sess.InboundLen() >= sess.TurnThresholdBytes() && sess.TryBeginTurn() {
			go o.runTurn(ctx, sess, sess.TakeInbound(), send)
		}

	case protocol.StopEvent:
		o.flushResidualTurn(ctx, sess, send)
		o.CompleteCall(ctx, sess, m.Stop.Reason)

	case protocol.ClearEvent:
		sess.SetBargeIn()
		if o.metrics != nil {
			o.metrics.BargeIns.Inc()
		}

	case protocol.MarkEvent:
		log.Printf("session %s: carrier acked mark %q", sess.CallID, m.Mark.Name)
	}
	return nil
}

// flushResidualTurn processes whatever audio is still buffered when the call
// ends, so a trailing utterance makes it into the transcript.
func (o *Orchestrator) flushResidualTurn(ctx context.Context, sess *session.Session, send SendFunc) {
	pcm := sess.TakeInbound()
	if len(pcm) == 0 {
		return
	}
	if !sess.TryBeginTurn() {
		return
	}
	o.runTurn(ctx, sess, pcm, send)
}

// CompleteCall persists the transcript and closes the session. Safe to call
// more than once; only the first close has effect on in-flight work.
// Closing the session cancels the connection context, so the save runs on a
// detached one.
func (o *Orchestrator) CompleteCall(ctx context.Context, sess *session.Session, reason string) {
	duration := time.Since(sess.StartedAt())
	sess.Close()
	ctx = context.WithoutCancel(ctx)

	if o.store == nil {
		return
	}
	status := reason
	if status == "" {
		status = "completed"
	}
	record := store.CallRecord{
		CallSid:    sess.CallID,
		Direction:  sess.Direction,
		Transcript: transcriptFromHistory(sess.History()),
		DurationMS: duration.Milliseconds(),
		Status:     status,
	}
	if err := o.store.SaveCall(ctx, record); err != nil {
		log.Printf("session %s: save call record: %v", sess.CallID, err)
	}
}

func transcriptFromHistory(history []session.Message) []store.TranscriptEntry {
	out := make([]store.TranscriptEntry, 0, len(history))
	for _, msg := range history {
		if msg.Role == session.RoleSystem {
			continue
		}
		out = append(out, store.TranscriptEntry{Role: string(msg.Role), Content: msg.Content})
	}
	return out
}

// runTurn executes one full turn over a snapshot of the inbound buffer. The
// caller must already hold the turn gate; it is released on return.
func (o *Orchestrator) runTurn(ctx context.Context, sess *session.Session, pcm []byte, send SendFunc) {
	defer sess.EndTurn()

	if sess.ConsumeBargeIn() {
		return
	}
	if len(pcm) == 0 {
		return
	}
	if audio.ActiveSampleRatio(pcm, o.opts.SilenceAmplitudeThreshold) < o.opts.SilenceMinActiveRatio {
		return
	}

	sttStart := time.Now()
	userText, err := o.stt.Transcribe(ctx, pcm, sess.SampleRate, o.opts.Language)
	o.observeStage("stt", sttStart)
	if err != nil {
		o.countProviderError("stt", err)
		log.Printf("session %s: transcription failed: %v", sess.CallID, err)
		return
	}
	userText = strings.TrimSpace(userText)
	if userText == "" {
		return
	}

	sess.EnsureSystemMessage(o.systemPrompt(ctx, sess))

	chunks, err := o.kb.RelevantChunks(ctx, userText, knowledge.DefaultTopK)
	if err != nil {
		log.Printf("session %s: knowledge retrieval failed: %v", sess.CallID, err)
	}

	prompt := BuildTurnPrompt(o.personaBlock(sess), chunks, sess.History(), userText)
	sess.AppendUser(userText)

	reply, bargedIn, err := o.streamReply(ctx, sess, prompt, send)
	if err != nil {
		o.countProviderError("llm", err)
		log.Printf("session %s: reply stream failed: %v", sess.CallID, err)
	}
	if bargedIn {
		sess.ConsumeBargeIn()
	}
	if reply = PolishReply(reply); reply != "" {
		sess.AppendAssistant(reply)
	}
}

// systemPrompt refreshes the persona system entry for this turn: carrier
// custom parameters win, then the persisted persona, then the baked fallback.
func (o *Orchestrator) systemPrompt(ctx context.Context, sess *session.Session) string {
	if params := sess.CustomParameters(); len(params) > 0 {
		return PersonaPromptFromParameters(params)
	}
	content, err := o.kb.LoadPersona(ctx, knowledge.DefaultPersonaName)
	if err != nil {
		log.Printf("session %s: load persona: %v", sess.CallID, err)
		return knowledge.FallbackPersona
	}
	return content
}

// personaBlock returns the current persona system entry from history.
func (o *Orchestrator) personaBlock(sess *session.Session) string {
	for _, msg := range sess.History() {
		if msg.Role == session.RoleSystem && !strings.HasPrefix(msg.Content, session.RelevantContextPrefix) {
			return msg.Content
		}
	}
	return knowledge.FallbackPersona
}

// streamReply drives the LLM delta stream through the token buffer into a
// FIFO fragment queue consumed by a single writer goroutine, so fragments hit
// the wire strictly in enqueue order. The final mark is suppressed when the
// caller barges in.
func (o *Orchestrator) streamReply(ctx context.Context, sess *session.Session, prompt string, send SendFunc) (string, bool, error) {
	llmStart := time.Now()

	fragments := make(chan string, 8)
	writerDone := make(chan struct{})
	var writerAborted atomic.Bool

	go func() {
		defer close(writerDone)
		framesSent := 0
		for fragment := range fragments {
			if sess.BargeInPending() || writerAborted.Load() {
				writerAborted.Store(true)
				continue
			}
			sent, err := o.speakFragment(ctx, sess, fragment, send)
			if framesSent == 0 && sent > 0 && o.metrics != nil {
				o.metrics.ObserveFirstAudioLatency(time.Since(llmStart))
			}
			framesSent += sent
			if err != nil {
				o.countProviderError("tts", err)
				log.Printf("session %s: fragment synthesis failed: %v", sess.CallID, err)
				writerAborted.Store(true)
				continue
			}
			if sess.BargeInPending() {
				writerAborted.Store(true)
			}
		}
	}()

	tokenBuf := ""
	full, llmErr := o.llm.StreamReply(ctx, prompt, func(delta string, done bool) error {
		if sess.BargeInPending() {
			tokenBuf = ""
			return errBargeIn
		}
		if done {
			if rest := strings.TrimSpace(tokenBuf); rest != "" {
				fragments <- rest
			}
			tokenBuf = ""
			return nil
		}
		tokenBuf += delta
		for {
			cut := flushBoundary(tokenBuf)
			if cut <= 0 {
				break
			}
			fragment := strings.TrimSpace(tokenBuf[:cut])
			tokenBuf = strings.TrimLeft(tokenBuf[cut:], " \t\r\n")
			if fragment != "" {
				fragments <- fragment
			}
		}
		return nil
	})
	close(fragments)
	<-writerDone
	o.observeStage("llm", llmStart)

	bargedIn := writerAborted.Load() || sess.BargeInPending()
	if llmErr != nil {
		if errors.Is(llmErr, errBargeIn) {
			return full, true, nil
		}
		return full, bargedIn, llmErr
	}

	if !bargedIn {
		if sid := sess.StreamSid(); sid != "" {
			if err := send(protocol.NewMarkFrame(sid, ReplyDoneMark)); err != nil {
				return full, bargedIn, err
			}
			o.countFrame("out", string(protocol.EventMark))
		}
	}
	return full, bargedIn, nil
}

// speakFragment synthesizes one reply fragment and streams it to the wire.
// Returns the number of media frames emitted.
func (o *Orchestrator) speakFragment(ctx context.Context, sess *session.Session, text string, send SendFunc) (int, error) {
	text = SanitizeReplyText(text)
	if text == "" {
		return 0, nil
	}

	ttsStart := time.Now()
	pcm, sourceRate, err := o.tts.Synthesize(ctx, text, o.opts.Voice)
	o.observeStage("tts", ttsStart)
	if err != nil {
		return 0, err
	}
	if sourceRate != sess.SampleRate {
		pcm = audio.Resample(pcm, sourceRate, sess.SampleRate)
	}
	return o.streamPCM(ctx, sess, pcm, send)
}

// streamPCM chunks PCM at the session's 200ms frame size and emits ordered
// media frames, pacing the carrier between chunks. Stops at the next chunk
// boundary when the context ends or a barge-in is pending.
func (o *Orchestrator) streamPCM(ctx context.Context, sess *session.Session, pcm []byte, send SendFunc) (int, error) {
	sid := sess.StreamSid()
	if sid == "" {
		return 0, errors.New("stream sid not pinned")
	}

	sent := 0
	for _, chunk := range audio.Chunk(pcm, audio.ChunkSizeForRate(sess.SampleRate)) {
		if ctx.Err() != nil {
			return sent, ctx.Err()
		}
		if sess.BargeInPending() {
			return sent, nil
		}
		frame := protocol.NewMediaFrame(sid, sess.NextSequence(), chunk)
		if err := send(frame); err != nil {
			return sent, fmt.Errorf("send media frame: %w", err)
		}
		sent++
		o.countFrame("out", string(protocol.EventMedia))
		time.Sleep(o.opts.InterChunkDelay)
	}
	return sent, nil
}

// maybeGreet starts greeting delivery once the stream sid is known. Runs at
// most once per session via the greeting state machine.
func (o *Orchestrator) maybeGreet(ctx context.Context, sess *session.Session, send SendFunc) {
	if sess.StreamSid() == "" {
		return
	}
	if !sess.TryBeginGreeting() {
		return
	}
	go o.deliverGreeting(ctx, sess, send)
}

func (o *Orchestrator) deliverGreeting(ctx context.Context, sess *session.Session, send SendFunc) {
	text := greetingText(sess.CustomParameters()["greeting"], o.opts.DefaultGreeting)

	sent, err := o.speakFragment(ctx, sess, text, send)
	if err != nil {
		o.countProviderError("tts", err)
		log.Printf("session %s: greeting failed: %v", sess.CallID, err)
		if sent == 0 {
			sess.RevertGreeting()
		} else {
			sess.FinishGreeting()
		}
		// Keep the carrier from dropping a silent call while we recover.
		if _, kerr := o.streamPCM(ctx, sess, audio.Silence(1, sess.SampleRate), send); kerr != nil {
			log.Printf("session %s: keepalive silence failed: %v", sess.CallID, kerr)
		}
		return
	}

	sess.FinishGreeting()
	if sid := sess.StreamSid(); sid != "" && !sess.BargeInPending() {
		if err := send(protocol.NewMarkFrame(sid, ReplyDoneMark)); err != nil {
			log.Printf("session %s: greeting mark failed: %v", sess.CallID, err)
			return
		}
		o.countFrame("out", string(protocol.EventMark))
	}
}

// greetingText resolves the greeting: carrier custom parameter, then the
// configured default, then a literal fallback. Values pasted from env files
// sometimes arrive as `GREETING_TEXT="..."`; strip that wrapping.
func greetingText(param, configured string) string {
	text := strings.TrimSpace(param)
	if text == "" {
		text = strings.TrimSpace(configured)
	}
	if text == "" {
		text = fallbackGreeting
	}
	text = strings.TrimPrefix(text, "GREETING_TEXT=")
	text = strings.Trim(text, `"'`)
	return strings.TrimSpace(text)
}

func (o *Orchestrator) observeStage(stage string, start time.Time) {
	if o.metrics != nil {
		o.metrics.ObserveTurnStage(stage, time.Since(start))
	}
}

func (o *Orchestrator) countProviderError(provider string, err error) {
	if o.metrics == nil || err == nil {
		return
	}
	o.metrics.ProviderErrors.WithLabelValues(provider, "error").Inc()
}

func (o *Orchestrator) countFrame(direction, event string) {
	if o.metrics != nil {
		o.metrics.CarrierFrames.WithLabelValues(direction, event).Inc()
	}
}
