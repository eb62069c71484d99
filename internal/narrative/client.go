package narrative

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/sony/gobreaker"
	"go.uber.org/zap"

	"github.com/banking/txn-monitoring-service/internal/config"
	"github.com/banking/txn-monitoring-service/internal/domain"
	"github.com/banking/txn-monitoring-service/internal/pkg/logger"
)

// maxResponseSize caps how much of a response body is read
const maxResponseSize = 1 << 20

// Request is the body sent to the narrative service
type Request struct {
	Model string                `json:"model"`
	Facts domain.NarrativeFacts `json:"facts"`
}

// Response is the narrative service reply
type Response struct {
	Narrative string `json:"narrative"`
}

// Client calls the external narrative service behind a circuit breaker
type Client struct {
	endpoint string
	apiKey   string
	model    string
	http     *http.Client
	breaker  *gobreaker.CircuitBreaker
	log      *logger.Logger
}

// NewClient creates a narrative client from configuration
func NewClient(cfg config.NarrativeConfig, log *logger.Logger) *Client {
	log = log.Named("narrative")

	failures := cfg.BreakerFailures
	if failures == 0 {
		failures = 5
	}
	settings := gobreaker.Settings{
		Name:        "narrative-service",
		MaxRequests: cfg.BreakerMaxRequests,
		Interval:    cfg.BreakerInterval,
		Timeout:     cfg.BreakerTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= failures
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			log.Warn("circuit breaker state changed",
				zap.String("breaker", name),
				zap.String("from", from.String()),
				zap.String("to", to.String()),
			)
		},
	}

	return &Client{
		endpoint: cfg.Endpoint,
		apiKey:   cfg.APIKey,
		model:    cfg.Model,
		http:     &http.Client{Timeout: cfg.Timeout},
		breaker:  gobreaker.NewCircuitBreaker(settings),
		log:      log,
	}
}

// State returns the breaker state
func (c *Client) State() gobreaker.State {
	return c.breaker.State()
}

// Generate requests a narrative for the facts of an auto-closed alert
func (c *Client) Generate(ctx context.Context, facts domain.NarrativeFacts) (string, error) {
	out, err := c.breaker.Execute(func() (interface{}, error) {
		return c.call(ctx, facts)
	})
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return "", domain.NewIntegrationError("NARRATIVE_UNAVAILABLE", "narrative service circuit open").WithCause(err)
		}
		return "", err
	}
	return out.(string), nil
}

func (c *Client) call(ctx context.Context, facts domain.NarrativeFacts) (string, error) {
	body, err := json.Marshal(Request{Model: c.model, Facts: facts})
	if err != nil {
		return "", domain.NewComputationError("NARRATIVE_ENCODE", "failed to encode narrative request").WithCause(err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return "", domain.NewConfigurationError("NARRATIVE_ENDPOINT", "invalid narrative endpoint").WithCause(err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return "", domain.NewIntegrationError("NARRATIVE_REQUEST_FAILED", "narrative request failed").WithCause(err)
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		return "", domain.NewIntegrationError("NARRATIVE_READ_FAILED", "failed to read narrative response").WithCause(err)
	}
	if resp.StatusCode != http.StatusOK {
		return "", domain.NewIntegrationError("NARRATIVE_BAD_STATUS",
			fmt.Sprintf("narrative service returned %d", resp.StatusCode))
	}

	var out Response
	if err := json.Unmarshal(payload, &out); err != nil {
		return "", domain.NewIntegrationError("NARRATIVE_DECODE", "malformed narrative response").WithCause(err)
	}
	text := strings.TrimSpace(out.Narrative)
	if text == "" {
		return "", domain.NewIntegrationError("NARRATIVE_EMPTY", "narrative service returned no text")
	}

	c.log.Debug("narrative generated", zap.String("alert_id", facts.AlertID), zap.Int("length", len(text)))
	return text, nil
}
