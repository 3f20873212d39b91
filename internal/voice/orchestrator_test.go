package voice

import (
	"context"
	"encoding/base64"
	"encoding/binary"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/nivaanlabs/vaani/internal/knowledge"
	"github.com/nivaanlabs/vaani/internal/llm"
	"github.com/nivaanlabs/vaani/internal/protocol"
	"github.com/nivaanlabs/vaani/internal/session"
	"github.com/nivaanlabs/vaani/internal/store"
)

type frameRecorder struct {
	mu     sync.Mutex
	frames []any
}

func (r *frameRecorder) send(frame any) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.frames = append(r.frames, frame)
	return nil
}

func (r *frameRecorder) all() []any {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]any, len(r.frames))
	copy(out, r.frames)
	return out
}

func (r *frameRecorder) media() []protocol.OutboundMedia {
	var out []protocol.OutboundMedia
	for _, f := range r.all() {
		if m, ok := f.(protocol.OutboundMedia); ok {
			out = append(out, m)
		}
	}
	return out
}

func (r *frameRecorder) marks() []protocol.OutboundMark {
	var out []protocol.OutboundMark
	for _, f := range r.all() {
		if m, ok := f.(protocol.OutboundMark); ok {
			out = append(out, m)
		}
	}
	return out
}

// activePCM builds a buffer of constant-amplitude samples that passes the
// silence gate.
func activePCM(bytes int) []byte {
	out := make([]byte, bytes)
	for i := 0; i+1 < len(out); i += 2 {
		binary.LittleEndian.PutUint16(out[i:], uint16(2000))
	}
	return out
}

func newTestOrchestrator(stt STTProvider, tts TTSProvider, adapter llm.Adapter) *Orchestrator {
	kb := knowledge.NewService(store.NewInMemoryStore())
	return NewOrchestrator(stt, tts, adapter, kb, nil, nil, Options{
		InterChunkDelay: time.Millisecond,
	})
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not met before deadline")
}

func TestGreetingStreamsAudioThenMark(t *testing.T) {
	tts := &MockTTS{PCM: activePCM(6400), Rate: 8000}
	o := newTestOrchestrator(&MockSTT{}, tts, llm.NewMockAdapter())
	sess := session.New("call-1", 8000)
	rec := &frameRecorder{}

	evt := protocol.ConnectedEvent{
		Event:            "connected",
		StreamSid:        "S1",
		CustomParameters: map[string]string{"greeting": "Hi."},
	}
	if err := o.HandleEvent(context.Background(), sess, evt, rec.send); err != nil {
		t.Fatalf("HandleEvent() error = %v", err)
	}

	waitFor(t, func() bool {
		return sess.Greeting() == session.GreetingDone && len(rec.marks()) > 0
	})

	media := rec.media()
	if len(media) == 0 {
		t.Fatal("greeting emitted no media frames")
	}
	if media[0].StreamSid != "S1" || media[0].SequenceNumber != "0" {
		t.Fatalf("first frame = sid %q seq %q, want S1/0", media[0].StreamSid, media[0].SequenceNumber)
	}
	marks := rec.marks()
	if marks[0].Mark.Name != ReplyDoneMark {
		t.Fatalf("mark name = %q, want %q", marks[0].Mark.Name, ReplyDoneMark)
	}
	if got := tts.Texts(); len(got) != 1 || got[0] != "Hi." {
		t.Fatalf("greeting texts = %v, want [Hi.]", got)
	}
}

func TestSilentTurnSkipsProviders(t *testing.T) {
	stt := &MockSTT{Text: "should never be used"}
	o := newTestOrchestrator(stt, &MockTTS{PCM: activePCM(3200), Rate: 8000}, llm.NewMockAdapter("Hello."))
	sess := session.New("call-2", 16000)
	sess.PinStreamSid("S2")
	rec := &frameRecorder{}

	if !sess.TryBeginTurn() {
		t.Fatal("turn gate unexpectedly held")
	}
	o.runTurn(context.Background(), sess, make([]byte, sess.TurnThresholdBytes()), rec.send)

	if stt.Calls() != 0 {
		t.Fatalf("STT called %d times for all-zero audio", stt.Calls())
	}
	if len(rec.all()) != 0 {
		t.Fatalf("frames emitted for a silent turn: %v", rec.all())
	}
}

func TestTurnStreamsOrderedReplyWithFinalMark(t *testing.T) {
	tts := &MockTTS{PCM: activePCM(7000), Rate: 8000}
	adapter := llm.NewMockAdapter("Hello", ", how", " are you?")
	o := newTestOrchestrator(&MockSTT{Text: "hello"}, tts, adapter)
	sess := session.New("call-3", 8000)
	sess.PinStreamSid("S3")
	rec := &frameRecorder{}

	if !sess.TryBeginTurn() {
		t.Fatal("turn gate unexpectedly held")
	}
	o.runTurn(context.Background(), sess, activePCM(sess.TurnThresholdBytes()), rec.send)

	if got := tts.Texts(); len(got) != 1 || got[0] != "Hello, how are you?" {
		t.Fatalf("tts fragments = %v, want one full sentence", got)
	}

	media := rec.media()
	if len(media) != 3 {
		t.Fatalf("media frames = %d, want 3 for 7000 bytes at 8kHz", len(media))
	}
	for i, m := range media {
		if m.SequenceNumber != strconv.Itoa(i) {
			t.Fatalf("frame %d sequence = %q, want contiguous from 0", i, m.SequenceNumber)
		}
	}

	frames := rec.all()
	last, ok := frames[len(frames)-1].(protocol.OutboundMark)
	if !ok || last.Mark.Name != ReplyDoneMark {
		t.Fatalf("last frame = %#v, want final %s mark", frames[len(frames)-1], ReplyDoneMark)
	}

	history := sess.History()
	final := history[len(history)-1]
	if final.Role != session.RoleAssistant || final.Content != "Hello, how are you?" {
		t.Fatalf("assistant history entry = %+v", final)
	}
}

func TestBargeInHaltsStreamingAndSuppressesMark(t *testing.T) {
	tts := &MockTTS{PCM: activePCM(6400), Rate: 8000}
	adapter := llm.NewMockAdapter("This is a long sentence.", " Another sentence.")
	o := newTestOrchestrator(&MockSTT{Text: "hello"}, tts, adapter)
	sess := session.New("call-4", 8000)
	sess.PinStreamSid("S4")

	rec := &frameRecorder{}
	// Barge in as soon as the first media frame hits the wire.
	send := func(frame any) error {
		err := rec.send(frame)
		if _, ok := frame.(protocol.OutboundMedia); ok {
			sess.SetBargeIn()
		}
		return err
	}

	if !sess.TryBeginTurn() {
		t.Fatal("turn gate unexpectedly held")
	}
	o.runTurn(context.Background(), sess, activePCM(sess.TurnThresholdBytes()), send)

	if got := rec.media(); len(got) != 1 {
		t.Fatalf("media frames = %d, want streaming halted after the first chunk", len(got))
	}
	if got := rec.marks(); len(got) != 0 {
		t.Fatalf("marks = %v, want none after barge-in", got)
	}
	if got := tts.Texts(); len(got) != 1 {
		t.Fatalf("tts fragments = %v, want the second fragment never synthesized", got)
	}
	if sess.BargeInPending() {
		t.Fatal("barge-in flag should be consumed at turn end")
	}
}

func TestOutboundTrackEchoDiscarded(t *testing.T) {
	o := newTestOrchestrator(&MockSTT{}, &MockTTS{}, llm.NewMockAdapter())
	sess := session.New("call-5", 16000)
	sess.FinishGreeting()
	rec := &frameRecorder{}

	evt := protocol.MediaEvent{
		Event: "media",
		Media: protocol.MediaPayload{
			Track:   protocol.TrackOutbound,
			Payload: base64.StdEncoding.EncodeToString(activePCM(3200)),
		},
	}
	if err := o.HandleEvent(context.Background(), sess, evt, rec.send); err != nil {
		t.Fatalf("HandleEvent() error = %v", err)
	}
	if sess.InboundLen() != 0 {
		t.Fatalf("inbound buffer = %d bytes, echo frames must be discarded", sess.InboundLen())
	}
}

func TestInboundMediaAccumulatesAndTriggersTurn(t *testing.T) {
	stt := &MockSTT{Text: "kitna price hai"}
	tts := &MockTTS{PCM: activePCM(3200), Rate: 16000}
	o := newTestOrchestrator(stt, tts, llm.NewMockAdapter("Do sau rupees."))
	sess := session.New("call-6", 16000)
	sess.PinStreamSid("S6")
	sess.FinishGreeting()
	rec := &frameRecorder{}

	half := base64.StdEncoding.EncodeToString(activePCM(sess.TurnThresholdBytes() / 2))
	evt := protocol.MediaEvent{Event: "media", Media: protocol.MediaPayload{Track: protocol.TrackInbound, Payload: half}}

	if err := o.HandleEvent(context.Background(), sess, evt, rec.send); err != nil {
		t.Fatalf("HandleEvent() error = %v", err)
	}
	if stt.Calls() != 0 {
		t.Fatal("turn triggered below the 2-second threshold")
	}

	if err := o.HandleEvent(context.Background(), sess, evt, rec.send); err != nil {
		t.Fatalf("HandleEvent() error = %v", err)
	}
	waitFor(t, func() bool { return stt.Calls() == 1 && len(rec.marks()) == 1 })

	if sess.InboundLen() != 0 {
		t.Fatalf("inbound buffer = %d bytes after turn snapshot", sess.InboundLen())
	}
}

func TestStreamPCMRequiresStreamSid(t *testing.T) {
	o := newTestOrchestrator(&MockSTT{}, &MockTTS{}, llm.NewMockAdapter())
	sess := session.New("call-7", 8000)
	rec := &frameRecorder{}

	if _, err := o.streamPCM(context.Background(), sess, activePCM(3200), rec.send); err == nil {
		t.Fatal("expected error when streaming before stream_sid is pinned")
	}
	if len(rec.all()) != 0 {
		t.Fatal("no frames may be emitted before stream_sid is known")
	}
}

type callCapturingStore struct {
	*store.InMemoryStore
	mu      sync.Mutex
	calls   []store.CallRecord
	ctxErrs []error
}

func (s *callCapturingStore) SaveCall(ctx context.Context, record store.CallRecord) error {
	s.mu.Lock()
	s.calls = append(s.calls, record)
	s.ctxErrs = append(s.ctxErrs, ctx.Err())
	s.mu.Unlock()
	return s.InMemoryStore.SaveCall(ctx, record)
}

func TestStopEventPersistsTranscriptAndClosesSession(t *testing.T) {
	st := &callCapturingStore{InMemoryStore: store.NewInMemoryStore()}
	kb := knowledge.NewService(st)
	o := NewOrchestrator(&MockSTT{Text: "hello"}, &MockTTS{PCM: activePCM(3200), Rate: 8000},
		llm.NewMockAdapter("Namaste!"), kb, st, nil, Options{InterChunkDelay: time.Millisecond})

	sess := session.New("call-8", 8000)
	sess.PinStreamSid("S8")
	sess.FinishGreeting()
	sess.AppendUser("hello")
	sess.AppendAssistant("Namaste!")
	rec := &frameRecorder{}

	evt := protocol.StopEvent{Event: "stop", Stop: protocol.StopPayload{Reason: "callended"}}
	if err := o.HandleEvent(context.Background(), sess, evt, rec.send); err != nil {
		t.Fatalf("HandleEvent() error = %v", err)
	}

	if sess.IsActive() {
		t.Fatal("session should be closed after stop")
	}
	st.mu.Lock()
	defer st.mu.Unlock()
	if len(st.calls) != 1 {
		t.Fatalf("saved calls = %d, want 1", len(st.calls))
	}
	rec8 := st.calls[0]
	if rec8.Status != "callended" || rec8.CallSid != "call-8" {
		t.Fatalf("call record = %+v", rec8)
	}
	if len(rec8.Transcript) != 2 || rec8.Transcript[0].Role != "user" {
		t.Fatalf("transcript = %+v", rec8.Transcript)
	}
}

func TestStopEventSavesWithLiveContext(t *testing.T) {
	st := &callCapturingStore{InMemoryStore: store.NewInMemoryStore()}
	kb := knowledge.NewService(st)
	o := NewOrchestrator(&MockSTT{}, &MockTTS{PCM: activePCM(3200), Rate: 8000},
		llm.NewMockAdapter("Namaste!"), kb, st, nil, Options{InterChunkDelay: time.Millisecond})

	// Closing the session cancels the connection context, as the WS handler
	// wires it. The transcript save must still go through.
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	sess := session.New("call-9", 8000)
	sess.SetCancel(cancel)
	sess.PinStreamSid("S9")
	sess.FinishGreeting()
	sess.AppendUser("hello")
	rec := &frameRecorder{}

	evt := protocol.StopEvent{Event: "stop", Stop: protocol.StopPayload{Reason: "callended"}}
	if err := o.HandleEvent(ctx, sess, evt, rec.send); err != nil {
		t.Fatalf("HandleEvent() error = %v", err)
	}
	if ctx.Err() == nil {
		t.Fatal("session close should have cancelled the connection context")
	}

	st.mu.Lock()
	defer st.mu.Unlock()
	if len(st.calls) != 1 {
		t.Fatalf("saved calls = %d, want 1", len(st.calls))
	}
	if st.ctxErrs[0] != nil {
		t.Fatalf("SaveCall context error = %v, want nil", st.ctxErrs[0])
	}
}

func TestGreetingTextNormalization(t *testing.T) {
	tests := []struct {
		param      string
		configured string
		want       string
	}{
		{"Hi.", "", "Hi."},
		{`GREETING_TEXT="Namaste ji."`, "", "Namaste ji."},
		{"'Hello.'", "", "Hello."},
		{"", "Default hello.", "Default hello."},
		{"", "", fallbackGreeting},
	}
	for _, tt := range tests {
		if got := greetingText(tt.param, tt.configured); got != tt.want {
			t.Fatalf("greetingText(%q, %q) = %q, want %q", tt.param, tt.configured, got, tt.want)
		}
	}
}
