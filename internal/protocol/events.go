package protocol

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
)

// EventType identifies carrier websocket frame variants.
type EventType string

const (
	EventConnected EventType = "connected"
	EventStart     EventType = "start"
	EventMedia     EventType = "media"
	EventStop      EventType = "stop"
	EventMark      EventType = "mark"
	EventClear     EventType = "clear"
)

// Media tracks. The outbound track is the carrier echoing our own audio back
// and must never be fed into the inbound buffer.
const (
	TrackInbound  = "inbound"
	TrackOutbound = "outbound"
)

var ErrUnsupportedEvent = errors.New("unsupported carrier event")

type Envelope struct {
	Event string `json:"event"`
}

type ConnectedEvent struct {
	Event            string            `json:"event"`
	StreamSid        string            `json:"stream_sid,omitempty"`
	CustomParameters map[string]string `json:"custom_parameters,omitempty"`
}

type StartEvent struct {
	Event     string       `json:"event"`
	StreamSid string       `json:"stream_sid,omitempty"`
	Start     StartPayload `json:"start"`
}

type StartPayload struct {
	StreamSid        string            `json:"stream_sid,omitempty"`
	CallSid          string            `json:"call_sid,omitempty"`
	CustomParameters map[string]string `json:"custom_parameters,omitempty"`
}

type MediaEvent struct {
	Event     string       `json:"event"`
	StreamSid string       `json:"stream_sid,omitempty"`
	Media     MediaPayload `json:"media"`
}

type MediaPayload struct {
	Track   string `json:"track,omitempty"`
	Payload string `json:"payload"`
}

type StopEvent struct {
	Event     string      `json:"event"`
	StreamSid string      `json:"stream_sid,omitempty"`
	Stop      StopPayload `json:"stop"`
}

type StopPayload struct {
	Reason string `json:"reason,omitempty"`
}

type MarkEvent struct {
	Event     string      `json:"event"`
	StreamSid string      `json:"stream_sid,omitempty"`
	Mark      MarkPayload `json:"mark"`
}

type MarkPayload struct {
	Name string `json:"name"`
}

type ClearEvent struct {
	Event     string `json:"event"`
	StreamSid string `json:"stream_sid,omitempty"`
}

// ParseCarrierEvent decodes one inbound carrier frame. Unknown event names
// return ErrUnsupportedEvent so the gateway can log and skip them.
func ParseCarrierEvent(raw []byte) (any, error) {
	var env Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, fmt.Errorf("invalid envelope: %w", err)
	}

	switch EventType(env.Event) {
	case EventConnected:
		var msg ConnectedEvent
		if err := json.Unmarshal(raw, &msg); err != nil {
			return nil, err
		}
		return msg, nil
	case EventStart:
		var msg StartEvent
		if err := json.Unmarshal(raw, &msg); err != nil {
			return nil, err
		}
		return msg, nil
	case EventMedia:
		var msg MediaEvent
		if err := json.Unmarshal(raw, &msg); err != nil {
			return nil, err
		}
		if msg.Media.Payload == "" {
			return nil, errors.New("media event without payload")
		}
		return msg, nil
	case EventStop:
		var msg StopEvent
		if err := json.Unmarshal(raw, &msg); err != nil {
			return nil, err
		}
		return msg, nil
	case EventMark:
		var msg MarkEvent
		if err := json.Unmarshal(raw, &msg); err != nil {
			return nil, err
		}
		return msg, nil
	case EventClear:
		var msg ClearEvent
		if err := json.Unmarshal(raw, &msg); err != nil {
			return nil, err
		}
		return msg, nil
	default:
		return nil, ErrUnsupportedEvent
	}
}

// EffectiveStreamSid resolves the stream_sid carried by an event, preferring
// nested payload fields over the top-level one. Returns "" when absent.
func EffectiveStreamSid(evt any) string {
	switch m := evt.(type) {
	case ConnectedEvent:
		return m.StreamSid
	case StartEvent:
		if m.Start.StreamSid != "" {
			return m.Start.StreamSid
		}
		return m.StreamSid
	case MediaEvent:
		return m.StreamSid
	case StopEvent:
		return m.StreamSid
	case MarkEvent:
		return m.StreamSid
	case ClearEvent:
		return m.StreamSid
	default:
		return ""
	}
}

// OutboundMedia is one outbound audio frame. SequenceNumber is a
// string-encoded decimal per the carrier wire contract.
type OutboundMedia struct {
	Event          string       `json:"event"`
	StreamSid      string       `json:"stream_sid"`
	SequenceNumber string       `json:"sequence_number"`
	Media          MediaPayload `json:"media"`
}

type OutboundMark struct {
	Event     string      `json:"event"`
	StreamSid string      `json:"stream_sid"`
	Mark      MarkPayload `json:"mark"`
}

// NewMediaFrame builds an outbound media frame, base64-encoding the PCM chunk.
func NewMediaFrame(streamSid string, seq int64, pcm []byte) OutboundMedia {
	return OutboundMedia{
		Event:          string(EventMedia),
		StreamSid:      streamSid,
		SequenceNumber: strconv.FormatInt(seq, 10),
		Media: MediaPayload{
			Payload: base64.StdEncoding.EncodeToString(pcm),
		},
	}
}

func NewMarkFrame(streamSid, name string) OutboundMark {
	return OutboundMark{
		Event:     string(EventMark),
		StreamSid: streamSid,
		Mark:      MarkPayload{Name: name},
	}
}
