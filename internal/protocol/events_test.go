package protocol

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"testing"
)

func TestParseCarrierEventVariants(t *testing.T) {
	cases := []struct {
		name string
		raw  string
		want EventType
	}{
		{"connected", `{"event":"connected","stream_sid":"S1"}`, EventConnected},
		{"start", `{"event":"start","start":{"stream_sid":"S1","custom_parameters":{"greeting":"Hi."}}}`, EventStart},
		{"media", `{"event":"media","stream_sid":"S1","media":{"track":"inbound","payload":"AAAA"}}`, EventMedia},
		{"stop", `{"event":"stop","stop":{"reason":"callended"}}`, EventStop},
		{"mark", `{"event":"mark","mark":{"name":"m1"}}`, EventMark},
		{"clear", `{"event":"clear","stream_sid":"S1"}`, EventClear},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := ParseCarrierEvent([]byte(tc.raw))
			if err != nil {
				t.Fatalf("ParseCarrierEvent() error = %v", err)
			}
			var env Envelope
			raw, _ := json.Marshal(got)
			_ = json.Unmarshal(raw, &env)
			if EventType(env.Event) != tc.want {
				t.Fatalf("event = %q, want %q", env.Event, tc.want)
			}
		})
	}
}

func TestParseCarrierEventRejectsUnknown(t *testing.T) {
	_, err := ParseCarrierEvent([]byte(`{"event":"dtmf"}`))
	if !errors.Is(err, ErrUnsupportedEvent) {
		t.Fatalf("err = %v, want ErrUnsupportedEvent", err)
	}
}

func TestParseCarrierEventRejectsGarbage(t *testing.T) {
	if _, err := ParseCarrierEvent([]byte("not json")); err == nil {
		t.Fatalf("expected error for malformed frame")
	}
	if _, err := ParseCarrierEvent([]byte(`{"event":"media","media":{}}`)); err == nil {
		t.Fatalf("expected error for media frame without payload")
	}
}

func TestEffectiveStreamSidPrefersNested(t *testing.T) {
	evt, err := ParseCarrierEvent([]byte(`{"event":"start","stream_sid":"outer","start":{"stream_sid":"inner"}}`))
	if err != nil {
		t.Fatalf("ParseCarrierEvent() error = %v", err)
	}
	if got := EffectiveStreamSid(evt); got != "inner" {
		t.Fatalf("EffectiveStreamSid = %q, want %q", got, "inner")
	}

	evt, err = ParseCarrierEvent([]byte(`{"event":"start","stream_sid":"outer","start":{}}`))
	if err != nil {
		t.Fatalf("ParseCarrierEvent() error = %v", err)
	}
	if got := EffectiveStreamSid(evt); got != "outer" {
		t.Fatalf("EffectiveStreamSid = %q, want %q", got, "outer")
	}
}

func TestNewMediaFrame(t *testing.T) {
	pcm := []byte{0x01, 0x02, 0x03, 0x04}
	frame := NewMediaFrame("S1", 7, pcm)
	if frame.Event != "media" || frame.StreamSid != "S1" {
		t.Fatalf("unexpected frame header: %+v", frame)
	}
	if frame.SequenceNumber != "7" {
		t.Fatalf("SequenceNumber = %q, want \"7\"", frame.SequenceNumber)
	}
	decoded, err := base64.StdEncoding.DecodeString(frame.Media.Payload)
	if err != nil {
		t.Fatalf("payload not base64: %v", err)
	}
	if string(decoded) != string(pcm) {
		t.Fatalf("payload round trip mismatch")
	}
}

func TestNewMarkFrame(t *testing.T) {
	frame := NewMarkFrame("S1", "assistant_reply_done")
	if frame.Event != "mark" || frame.Mark.Name != "assistant_reply_done" {
		t.Fatalf("unexpected mark frame: %+v", frame)
	}
}
