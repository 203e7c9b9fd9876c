package feed

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	sdkmath "cosmossdk.io/math"
	"github.com/rs/zerolog"
)

const (
	latestPath = "/latest"
	roundsPath = "/rounds"
)

// HTTPOptions parameterise the JSON price-API source.
type HTTPOptions struct {
	BaseURL   string
	Timeout   time.Duration
	UserAgent string
}

// HTTP fetches readings from a JSON price API. The API is expected to expose
// GET /latest and GET /rounds/{id}, both returning a reading payload.
type HTTP struct {
	opts    HTTPOptions
	logger  zerolog.Logger
	client  *http.Client
	baseURL string
}

// NewHTTP constructs an HTTP feed source.
func NewHTTP(opts HTTPOptions, logger zerolog.Logger) *HTTP {
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	return &HTTP{
		opts:    opts,
		logger:  logger.With().Str("component", "http_feed").Logger(),
		client:  &http.Client{Timeout: timeout},
		baseURL: strings.TrimRight(opts.BaseURL, "/"),
	}
}

// Decimals reports the precision advertised by the latest reading.
func (h *HTTP) Decimals(ctx context.Context) (uint8, error) {
	payload, err := h.fetch(ctx, latestPath)
	if err != nil {
		return 0, err
	}
	return payload.Decimals, nil
}

// Latest returns the feed's most recent reading.
func (h *HTTP) Latest(ctx context.Context) (Reading, error) {
	payload, err := h.fetch(ctx, latestPath)
	if err != nil {
		return Reading{}, err
	}
	return payload.reading()
}

// AtRound returns a historical reading.
func (h *HTTP) AtRound(ctx context.Context, round uint64) (Reading, error) {
	payload, err := h.fetch(ctx, fmt.Sprintf("%s/%d", roundsPath, round))
	if err != nil {
		return Reading{}, err
	}
	return payload.reading()
}

func (h *HTTP) fetch(ctx context.Context, path string) (*readingPayload, error) {
	if h.baseURL == "" {
		return nil, errors.New("feed base url not configured")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, h.baseURL+path, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")
	if ua := strings.TrimSpace(h.opts.UserAgent); ua != "" {
		req.Header.Set("User-Agent", ua)
	} else {
		req.Header.Set("User-Agent", "feed-sentinel/1.0")
	}

	resp, err := h.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	payloadBytes, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}

	if resp.StatusCode != http.StatusOK {
		return nil, parseHTTPError(resp.StatusCode, payloadBytes)
	}

	var payload readingPayload
	if err := json.Unmarshal(payloadBytes, &payload); err != nil {
		return nil, err
	}
	return &payload, nil
}

type readingPayload struct {
	Price     string `json:"price"`
	Decimals  uint8  `json:"decimals"`
	UpdatedAt uint64 `json:"updated_at"`
	Round     uint64 `json:"round"`
}

func (p *readingPayload) reading() (Reading, error) {
	price, ok := sdkmath.NewIntFromString(p.Price)
	if !ok {
		return Reading{}, fmt.Errorf("parse price magnitude %q", p.Price)
	}
	return Reading{Price: price, UpdatedAt: p.UpdatedAt, Round: p.Round}, nil
}

type errorResponse struct {
	ErrorType   string `json:"errorType"`
	Description string `json:"description"`
	Message     string `json:"message"`
}

func parseHTTPError(status int, payload []byte) error {
	var apiErr errorResponse
	if err := json.Unmarshal(payload, &apiErr); err == nil {
		if apiErr.Description != "" {
			return fmt.Errorf("feed api error (%d): %s", status, apiErr.Description)
		}
		if apiErr.Message != "" {
			return fmt.Errorf("feed api error (%d): %s", status, apiErr.Message)
		}
		if apiErr.ErrorType != "" {
			return fmt.Errorf("feed api error (%d): %s", status, apiErr.ErrorType)
		}
	}
	if len(payload) > 0 {
		return fmt.Errorf("feed api error (%d): %s", status, strings.TrimSpace(string(payload)))
	}
	return fmt.Errorf("feed api error (%d)", status)
}

var _ Source = (*HTTP)(nil)
