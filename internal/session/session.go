package session

import (
	"context"
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

// Role tags one conversation history entry.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Message is one turn of conversation history.
type Message struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

// GreetingState tracks greeting delivery. Done is absorbing.
type GreetingState string

const (
	GreetingPending    GreetingState = "pending"
	GreetingInProgress GreetingState = "in_progress"
	GreetingDone       GreetingState = "done"
)

// RelevantContextPrefix marks the retrieval-augmented system entry so the
// persona system entry can be replaced without touching it.
const RelevantContextPrefix = "Relevant context:"

// Session holds the per-call state for one carrier media stream.
type Session struct {
	CallID     string
	SampleRate int
	Direction  string

	mu             sync.Mutex
	streamSid      string
	customParams   map[string]string
	inbound        []byte
	history        []Message
	seq            int64
	active         bool
	greeting       GreetingState
	processingTurn bool
	startedAt      time.Time
	lastActivityAt time.Time
	cancel         context.CancelFunc

	bargeInPending atomic.Bool
}

func New(callID string, sampleRate int) *Session {
	if sampleRate != 8000 && sampleRate != 16000 {
		sampleRate = 16000
	}
	now := time.Now().UTC()
	return &Session{
		CallID:         callID,
		SampleRate:     sampleRate,
		Direction:      "inbound",
		active:         true,
		greeting:       GreetingPending,
		startedAt:      now,
		lastActivityAt: now,
	}
}

// SetCancel registers the connection cancel function so registry expiry can
// tear the websocket down.
func (s *Session) SetCancel(cancel context.CancelFunc) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cancel = cancel
}

// PinStreamSid records the carrier-assigned stream sid. The first non-empty
// value wins; later values are ignored.
func (s *Session) PinStreamSid(sid string) {
	sid = strings.TrimSpace(sid)
	if sid == "" {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.streamSid == "" {
		s.streamSid = sid
	}
}

func (s *Session) StreamSid() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.streamSid
}

func (s *Session) SetCustomParameters(params map[string]string) {
	if len(params) == 0 {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.customParams == nil {
		s.customParams = make(map[string]string, len(params))
	}
	for k, v := range params {
		s.customParams[k] = v
	}
}

func (s *Session) CustomParameters() map[string]string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.customParams) == 0 {
		return nil
	}
	out := make(map[string]string, len(s.customParams))
	for k, v := range s.customParams {
		out[k] = v
	}
	return out
}

// AppendInbound buffers caller PCM. Inactive sessions accept no new audio.
func (s *Session) AppendInbound(pcm []byte) {
	if len(pcm) == 0 {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.active {
		return
	}
	s.inbound = append(s.inbound, pcm...)
	s.lastActivityAt = time.Now().UTC()
}

func (s *Session) InboundLen() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.inbound)
}

// TakeInbound snapshots and clears the inbound buffer.
func (s *Session) TakeInbound() []byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := s.inbound
	s.inbound = nil
	return out
}

// TurnThresholdBytes is the inbound buffer size that triggers a turn:
// two seconds of 16-bit mono PCM at the session rate.
func (s *Session) TurnThresholdBytes() int {
	return s.SampleRate * 2 * 2
}

// EnsureSystemMessage inserts or replaces the persona system entry. The
// retrieval-context system entry (prefixed with RelevantContextPrefix) is
// left alone. The persona entry always precedes user/assistant entries.
func (s *Session) EnsureSystemMessage(content string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, msg := range s.history {
		if msg.Role == RoleSystem && !strings.HasPrefix(msg.Content, RelevantContextPrefix) {
			s.history[i].Content = content
			return
		}
	}
	s.history = append([]Message{{Role: RoleSystem, Content: content}}, s.history...)
}

func (s *Session) AppendUser(text string) {
	s.appendMessage(RoleUser, text)
}

func (s *Session) AppendAssistant(text string) {
	s.appendMessage(RoleAssistant, text)
}

func (s *Session) appendMessage(role Role, text string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.history = append(s.history, Message{Role: role, Content: text})
}

func (s *Session) History() []Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Message, len(s.history))
	copy(out, s.history)
	return out
}

// NextSequence allocates the next outbound media frame sequence number,
// starting at 0 and strictly monotonic.
func (s *Session) NextSequence() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	seq := s.seq
	s.seq++
	return seq
}

// TryBeginTurn sets the processing gate; false when a turn is in flight.
func (s *Session) TryBeginTurn() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.processingTurn {
		return false
	}
	s.processingTurn = true
	return true
}

func (s *Session) EndTurn() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.processingTurn = false
}

// TryBeginGreeting transitions pending -> in_progress.
func (s *Session) TryBeginGreeting() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.greeting != GreetingPending {
		return false
	}
	s.greeting = GreetingInProgress
	return true
}

// FinishGreeting transitions to done. Done is absorbing.
func (s *Session) FinishGreeting() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.greeting = GreetingDone
}

// RevertGreeting returns in_progress to pending so a failed greeting can be
// retried. A done greeting stays done.
func (s *Session) RevertGreeting() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.greeting == GreetingInProgress {
		s.greeting = GreetingPending
	}
}

func (s *Session) Greeting() GreetingState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.greeting
}

func (s *Session) SetBargeIn()          { s.bargeInPending.Store(true) }
func (s *Session) BargeInPending() bool { return s.bargeInPending.Load() }

// ConsumeBargeIn clears the flag and reports whether it was set.
func (s *Session) ConsumeBargeIn() bool { return s.bargeInPending.Swap(false) }

func (s *Session) IsActive() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.active
}

func (s *Session) StartedAt() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.startedAt
}

func (s *Session) LastActivityAt() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastActivityAt
}

func (s *Session) Touch() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastActivityAt = time.Now().UTC()
}

// Close deactivates the session and cancels its connection context.
func (s *Session) Close() {
	s.mu.Lock()
	s.active = false
	cancel := s.cancel
	s.mu.Unlock()
	if cancel != nil {
		cancel()
	}
}
