// Package suggest calls the external move-suggestion service. The service is
// advisory only: any error, timeout or out-of-range reply falls back to a
// uniformly random pick from the available moves, so a flaky suggester never
// blocks play.
package suggest

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math/rand"
	"net/http"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"cardarena/internal/models"
)

// Request describes the position the suggester should evaluate.
type Request struct {
	GameKind   models.GameKind `json:"game_kind"`
	Difficulty string          `json:"difficulty"`
	Summary    json.RawMessage `json:"summary"`
	Available  []string        `json:"available_moves"`
	History    []string        `json:"history,omitempty"`
}

// Suggestion is the suggester's reply.
type Suggestion struct {
	Move      string `json:"move"`
	Rationale string `json:"rationale,omitempty"`
	// Fallback is set when the reply was generated locally instead of by
	// the service.
	Fallback bool `json:"fallback,omitempty"`
}

// Client talks to the suggestion service over HTTP.
type Client struct {
	baseURL string
	client  *http.Client

	rngMu sync.Mutex
	rng   *rand.Rand
}

// NewClient creates a suggestion client. The timeout bounds the whole
// request; a slow suggester degrades to the random fallback.
func NewClient(baseURL string, timeout time.Duration, rng *rand.Rand) *Client {
	return &Client{
		baseURL: baseURL,
		client: &http.Client{
			Timeout: timeout,
		},
		rng: rng,
	}
}

// SuggestMove asks the service for a move. The returned move is always a
// member of req.Available.
func (c *Client) SuggestMove(ctx context.Context, req Request) (Suggestion, error) {
	if len(req.Available) == 0 {
		return Suggestion{}, fmt.Errorf("no available moves for session")
	}
	sug, err := c.call(ctx, req)
	if err != nil {
		log.Warn().Err(err).Str("game_kind", string(req.GameKind)).Msg("suggestion service failed, falling back to random")
		return c.fallback(req), nil
	}
	if !contains(req.Available, sug.Move) {
		log.Warn().Str("move", sug.Move).Msg("suggestion outside available moves, falling back to random")
		return c.fallback(req), nil
	}
	return sug, nil
}

func (c *Client) call(ctx context.Context, req Request) (Suggestion, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return Suggestion{}, fmt.Errorf("encode suggestion request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/suggest", bytes.NewReader(body))
	if err != nil {
		return Suggestion{}, fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(httpReq)
	if err != nil {
		return Suggestion{}, fmt.Errorf("failed to make request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		responseBody, _ := io.ReadAll(resp.Body)
		return Suggestion{}, fmt.Errorf("suggester returned status code: %d, response: %s", resp.StatusCode, string(responseBody))
	}

	var sug Suggestion
	if err := json.NewDecoder(resp.Body).Decode(&sug); err != nil {
		return Suggestion{}, fmt.Errorf("decode suggestion response: %w", err)
	}
	return sug, nil
}

func (c *Client) fallback(req Request) Suggestion {
	c.rngMu.Lock()
	move := req.Available[c.rng.Intn(len(req.Available))]
	c.rngMu.Unlock()
	return Suggestion{Move: move, Fallback: true}
}

func contains(moves []string, move string) bool {
	for _, m := range moves {
		if m == move {
			return true
		}
	}
	return false
}
