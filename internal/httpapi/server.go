package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/nivaanlabs/vaani/internal/config"
	"github.com/nivaanlabs/vaani/internal/knowledge"
	"github.com/nivaanlabs/vaani/internal/observability"
	"github.com/nivaanlabs/vaani/internal/protocol"
	"github.com/nivaanlabs/vaani/internal/session"
	"github.com/nivaanlabs/vaani/internal/store"
	"github.com/nivaanlabs/vaani/internal/voice"
)

// EventHandler applies one parsed carrier event to a session. Implemented by
// the voice orchestrator.
type EventHandler interface {
	HandleEvent(ctx context.Context, sess *session.Session, evt any, send voice.SendFunc) error
	CompleteCall(ctx context.Context, sess *session.Session, reason string)
}

type Server struct {
	cfg       config.Config
	sessions  *session.Registry
	handler   EventHandler
	knowledge *knowledge.Service
	store     store.Store
	metrics   *observability.Metrics
	caller    *CarrierClient
	upgrader  websocket.Upgrader
}

func New(cfg config.Config, sessions *session.Registry, handler EventHandler, kb *knowledge.Service, st store.Store, metrics *observability.Metrics) *Server {
	return &Server{
		cfg:       cfg,
		sessions:  sessions,
		handler:   handler,
		knowledge: kb,
		store:     st,
		metrics:   metrics,
		caller:    NewCarrierClient(cfg),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			// The carrier's media gateway is not a browser; it sends no Origin.
			CheckOrigin: func(r *http.Request) bool { return true },
		},
	}
}

func (s *Server) Router() http.Handler {
	r := chi.NewRouter()

	r.Get("/healthz", s.handleHealth)
	r.Get("/readyz", s.handleReady)
	r.Get("/metrics", func(w http.ResponseWriter, r *http.Request) {
		observability.MetricsHandler().ServeHTTP(w, r)
	})

	r.Get(s.cfg.WSPath, s.handleCarrierWS)

	r.Post("/v1/calls", s.handleCreateCall)
	r.Get("/v1/persona", s.handleGetPersona)
	r.Put("/v1/persona", s.handleUpdatePersona)
	r.Post("/v1/documents", s.handleUploadDocument)
	r.Get("/v1/documents", s.handleListDocuments)
	r.Get("/v1/documents/{id}", s.handleGetDocument)
	r.Delete("/v1/documents/{id}", s.handleDeleteDocument)

	return r
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	respondJSON(w, http.StatusOK, map[string]any{"status": "ok"})
}

func (s *Server) handleReady(w http.ResponseWriter, _ *http.Request) {
	respondJSON(w, http.StatusOK, map[string]any{
		"status":          "ready",
		"active_sessions": s.sessions.ActiveCount(),
	})
}

// handleCarrierWS accepts one carrier media stream. The connection is split
// into a reader loop (this goroutine), a writer goroutine draining the
// outbound queue, and turn pipelines spawned by the orchestrator.
func (s *Server) handleCarrierWS(w http.ResponseWriter, r *http.Request) {
	callID := strings.TrimSpace(r.URL.Query().Get("call_id"))
	if callID == "" {
		callID = uuid.NewString()
	}
	sampleRate := 16000
	if v := strings.TrimSpace(r.URL.Query().Get("sample_rate")); v != "" {
		if parsed, err := strconv.Atoi(v); err == nil {
			sampleRate = parsed
		}
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer conn.Close()

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	sess := session.New(callID, sampleRate)
	sess.SetCancel(cancel)
	s.sessions.Add(sess)
	defer s.sessions.Remove(callID)

	if s.metrics != nil {
		s.metrics.SessionEvents.WithLabelValues("created").Inc()
		s.metrics.ActiveSessions.Set(float64(s.sessions.ActiveCount()))
		defer func() {
			s.metrics.SessionEvents.WithLabelValues("closed").Inc()
			s.metrics.ActiveSessions.Set(float64(s.sessions.ActiveCount()))
		}()
	}
	log.Printf("session %s: carrier connected at %d Hz", callID, sess.SampleRate)

	outbound := make(chan any, 256)
	writerDone := make(chan struct{})
	go func() {
		defer close(writerDone)
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-outbound:
				if !ok {
					return
				}
				_ = conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
				if err := conn.WriteJSON(msg); err != nil {
					cancel()
					return
				}
			}
		}
	}()

	send := func(frame any) error {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case outbound <- frame:
			return nil
		}
	}

	conn.SetReadLimit(2 << 20)
	_ = conn.SetReadDeadline(time.Now().Add(120 * time.Second))
	conn.SetPongHandler(func(string) error {
		_ = conn.SetReadDeadline(time.Now().Add(120 * time.Second))
		return nil
	})

	for {
		msgType, data, err := conn.ReadMessage()
		if err != nil {
			break
		}
		_ = conn.SetReadDeadline(time.Now().Add(120 * time.Second))
		if msgType != websocket.TextMessage {
			continue
		}

		evt, err := protocol.ParseCarrierEvent(data)
		if err != nil {
			// Protocol violations are logged and skipped; the call goes on.
			log.Printf("session %s: dropping carrier frame: %v", callID, err)
			continue
		}
		if s.metrics != nil {
			s.metrics.CarrierFrames.WithLabelValues("in", eventName(evt)).Inc()
		}
		sess.Touch()

		if err := s.handler.HandleEvent(ctx, sess, evt, send); err != nil {
			log.Printf("session %s: event handling failed: %v", callID, err)
		}
		if _, ok := evt.(protocol.StopEvent); ok {
			break
		}
	}

	if sess.IsActive() {
		s.handler.CompleteCall(context.WithoutCancel(ctx), sess, "disconnected")
	}
	cancel()
	<-writerDone
	log.Printf("session %s: carrier disconnected", callID)
}

func eventName(evt any) string {
	switch evt.(type) {
	case protocol.ConnectedEvent:
		return string(protocol.EventConnected)
	case protocol.StartEvent:
		return string(protocol.EventStart)
	case protocol.MediaEvent:
		return string(protocol.EventMedia)
	case protocol.StopEvent:
		return string(protocol.EventStop)
	case protocol.MarkEvent:
		return string(protocol.EventMark)
	case protocol.ClearEvent:
		return string(protocol.EventClear)
	default:
		return "unknown"
	}
}

type errorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

var errEmptyBody = errors.New("empty body")

func decodeJSON(r *http.Request, out any) error {
	if r.Body == nil {
		return errEmptyBody
	}
	defer r.Body.Close()
	if err := json.NewDecoder(r.Body).Decode(out); err != nil {
		if strings.Contains(strings.ToLower(err.Error()), "eof") {
			return errEmptyBody
		}
		return err
	}
	return nil
}

func respondJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func respondError(w http.ResponseWriter, status int, code, message string) {
	respondJSON(w, status, errorResponse{Error: message, Code: code})
}
