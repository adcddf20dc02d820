// Package rest implements the HTTP client for the betting backend and the
// fixed-interval poller that feeds the round state store.
package rest

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/google/uuid"

	bettingdomain "github.com/frankieli/livetable/internal/modules/betting/domain"
	rounddomain "github.com/frankieli/livetable/internal/modules/round/domain"
	"github.com/frankieli/livetable/internal/modules/session"
	"github.com/frankieli/livetable/internal/modules/transport/feed"
)

// Client calls the backend REST API. It implements the betting pipeline's
// Gateway interface.
type Client struct {
	baseURL string
	http    *http.Client
	session *session.Holder
}

// ClientOption configures a Client
type ClientOption func(*Client)

// WithHTTPClient overrides the underlying HTTP client (tests inject one)
func WithHTTPClient(h *http.Client) ClientOption {
	return func(c *Client) { c.http = h }
}

// NewClient creates a backend client
func NewClient(baseURL string, sess *session.Holder, opts ...ClientOption) *Client {
	c := &Client{
		baseURL: baseURL,
		http:    &http.Client{Timeout: 15 * time.Second},
		session: sess,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// apiResponse is the backend's response envelope
type apiResponse struct {
	Code int             `json:"code"`
	Msg  string          `json:"msg"`
	Data json.RawMessage `json:"data"`
}

func (c *Client) do(ctx context.Context, method, path string, body, out interface{}) error {
	var reqBody io.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to encode request: %w", err)
		}
		reqBody = bytes.NewReader(encoded)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reqBody)
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Request-ID", uuid.NewString())
	if token, ok := c.session.Get(); ok {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unexpected status %d", resp.StatusCode)
	}

	var envelope apiResponse
	if err := json.NewDecoder(resp.Body).Decode(&envelope); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	if envelope.Code != bettingdomain.CodeOK {
		if envelope.Code == bettingdomain.CodeSessionExpired {
			c.session.MarkExpired()
		}
		return &bettingdomain.BackendError{Code: envelope.Code, Message: envelope.Msg}
	}
	if out != nil && len(envelope.Data) > 0 {
		if err := json.Unmarshal(envelope.Data, out); err != nil {
			return fmt.Errorf("failed to decode response data: %w", err)
		}
	}
	return nil
}

// GetLobbyInfo fetches the lobby snapshot and normalizes every table record
// in it. The store filters for its own table.
func (c *Client) GetLobbyInfo(ctx context.Context) ([]rounddomain.TableRecord, error) {
	var data struct {
		Tables []map[string]interface{} `json:"tables"`
	}
	if err := c.do(ctx, http.MethodGet, "/api/lobby/info", nil, &data); err != nil {
		return nil, err
	}

	records := make([]rounddomain.TableRecord, 0, len(data.Tables))
	for _, raw := range data.Tables {
		if rec, ok := feed.NormalizeRecord(raw); ok {
			records = append(records, rec)
		}
	}
	return records, nil
}

// GetOdds fetches the zone to odds mapping for the current round format
func (c *Client) GetOdds(ctx context.Context) (map[string]float64, error) {
	var data struct {
		Odds map[string]float64 `json:"odds"`
	}
	if err := c.do(ctx, http.MethodGet, "/api/odds", nil, &data); err != nil {
		return nil, err
	}
	return data.Odds, nil
}

// PlaceBet submits one zone's bet
func (c *Client) PlaceBet(ctx context.Context, req bettingdomain.PlaceBetRequest) (*bettingdomain.PlaceBetResult, error) {
	var data struct {
		WagerID string   `json:"wagerid"`
		Balance *float64 `json:"balance"`
	}
	if err := c.do(ctx, http.MethodPost, "/api/bet/place", req, &data); err != nil {
		return nil, err
	}
	return &bettingdomain.PlaceBetResult{WagerID: data.WagerID, Balance: data.Balance}, nil
}

// GetWagersByRound fetches the authoritative wager list for a round
func (c *Client) GetWagersByRound(ctx context.Context, roundID string) ([]bettingdomain.Wager, error) {
	var data struct {
		Wagers []struct {
			WagerID string  `json:"wagerid"`
			Zone    string  `json:"zone"`
			Amount  float64 `json:"amount"`
			Odds    float64 `json:"odds"`
			Settled bool    `json:"settled"`
		} `json:"wagers"`
	}
	if err := c.do(ctx, http.MethodGet, "/api/wagers?roundid="+roundID, nil, &data); err != nil {
		return nil, err
	}

	wagers := make([]bettingdomain.Wager, 0, len(data.Wagers))
	for _, w := range data.Wagers {
		zone := w.Zone
		for code, z := range bettingdomain.Zones {
			if z.APIZone == w.Zone {
				zone = code
				break
			}
		}
		wagers = append(wagers, bettingdomain.Wager{
			WagerID: w.WagerID,
			Zone:    zone,
			Amount:  w.Amount,
			Odds:    w.Odds,
			Settled: w.Settled,
		})
	}
	return wagers, nil
}

// GetBalance fetches the authoritative account balance
func (c *Client) GetBalance(ctx context.Context) (float64, error) {
	var data struct {
		Balance float64 `json:"balance"`
	}
	if err := c.do(ctx, http.MethodGet, "/api/balance", nil, &data); err != nil {
		return 0, err
	}
	return data.Balance, nil
}
