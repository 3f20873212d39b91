package httpapi

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/nivaanlabs/vaani/internal/config"
	"github.com/nivaanlabs/vaani/internal/policy"
	"github.com/nivaanlabs/vaani/internal/reliability"
)

type createCallRequest struct {
	To   string `json:"to"`
	From string `json:"from,omitempty"`
}

type createCallResponse struct {
	Success bool   `json:"success"`
	CallSid string `json:"callSid"`
}

// handleCreateCall triggers an outbound call through the carrier's REST API.
// Missing configuration is a 400 enumerating the keys, not a retry loop.
func (s *Server) handleCreateCall(w http.ResponseWriter, r *http.Request) {
	var req createCallRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}
	req.To = strings.TrimSpace(req.To)
	if !strings.HasPrefix(req.To, "+") {
		respondError(w, http.StatusBadRequest, "invalid_number", "to must be an E.164 number starting with +")
		return
	}
	if missing := s.cfg.MissingCarrierKeys(); len(missing) > 0 {
		respondError(w, http.StatusBadRequest, "missing_configuration",
			"missing required configuration: "+strings.Join(missing, ", "))
		return
	}

	callSid, err := s.caller.Connect(r.Context(), req.To, req.From)
	if err != nil {
		log.Printf("outbound call to %s failed: %v", policy.MaskPhone(req.To), err)
		respondError(w, http.StatusBadGateway, "carrier_error", err.Error())
		return
	}
	log.Printf("outbound call to %s placed as %s", policy.MaskPhone(req.To), callSid)
	respondJSON(w, http.StatusCreated, createCallResponse{Success: true, CallSid: callSid})
}

// CarrierClient places outbound calls via the Exotel connect API.
type CarrierClient struct {
	cfg    config.Config
	client *http.Client

	// Overridable in tests.
	baseURL string
}

func NewCarrierClient(cfg config.Config) *CarrierClient {
	return &CarrierClient{
		cfg:    cfg,
		client: &http.Client{Timeout: 15 * time.Second},
	}
}

type carrierCallResponse struct {
	Call struct {
		Sid string `json:"Sid"`
	} `json:"Call"`
}

// Connect dials `to` and bridges the answered call to the voicebot websocket
// applet. Transient carrier failures are retried with backoff; permanent ones
// surface immediately. Returns the carrier call sid.
func (c *CarrierClient) Connect(ctx context.Context, to, from string) (string, error) {
	const maxAttempts = 3

	var lastErr error
	for attempt := 0; attempt < maxAttempts; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return "", ctx.Err()
			case <-time.After(reliability.ExponentialBackoff(attempt, 500*time.Millisecond, 4*time.Second)):
			}
		}
		sid, retryable, err := c.connectOnce(ctx, to, from)
		if err == nil {
			return sid, nil
		}
		lastErr = err
		if !retryable {
			break
		}
	}
	return "", lastErr
}

func (c *CarrierClient) connectOnce(ctx context.Context, to, from string) (string, bool, error) {
	if from == "" {
		from = c.cfg.ExotelFromNumber
	}

	endpoint := c.baseURL
	if endpoint == "" {
		endpoint = fmt.Sprintf("https://%s/v1/Accounts/%s/Calls/connect.json",
			c.cfg.ExotelSubdomain, c.cfg.ExotelSID)
	}

	form := url.Values{}
	form.Set("From", from)
	form.Set("To", to)
	form.Set("CallerId", c.cfg.ExotelFromNumber)
	if c.cfg.PublicBaseURL != "" {
		form.Set("Url", strings.TrimRight(c.cfg.PublicBaseURL, "/")+c.cfg.WSPath)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return "", false, err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.SetBasicAuth(c.cfg.ExotelAPIKey, c.cfg.ExotelAPIToken)

	res, err := c.client.Do(req)
	if err != nil {
		return "", true, fmt.Errorf("carrier request: %w", err)
	}
	defer res.Body.Close()

	if res.StatusCode < 200 || res.StatusCode >= 300 {
		detail, _ := io.ReadAll(io.LimitReader(res.Body, 4<<10))
		return "", reliability.IsRetryableHTTPStatus(res.StatusCode),
			fmt.Errorf("carrier http status %d: %s", res.StatusCode, string(detail))
	}

	var parsed carrierCallResponse
	if err := json.NewDecoder(res.Body).Decode(&parsed); err != nil {
		return "", false, fmt.Errorf("decode carrier response: %w", err)
	}
	if parsed.Call.Sid == "" {
		return "", false, fmt.Errorf("carrier response missing call sid")
	}
	return parsed.Call.Sid, false, nil
}
