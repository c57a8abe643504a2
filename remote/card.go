// Package remote talks to network-resident agents discovered through their
// published agent-card descriptors.
package remote

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/dgraph-io/ristretto"
)

// AgentCard is the published descriptor of a remote agent: where it listens
// and which tools it exposes.
type AgentCard struct {
	Name        string      `json:"name"`
	Description string      `json:"description"`
	URL         string      `json:"url"`
	Version     string      `json:"version"`
	Skills      []CardSkill `json:"skills,omitempty"`
}

// CardSkill is one tool advertised by the card.
type CardSkill struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
}

// Skill looks up an advertised tool by id.
func (c *AgentCard) Skill(id string) (*CardSkill, bool) {
	for i := range c.Skills {
		if c.Skills[i].ID == id {
			return &c.Skills[i], true
		}
	}
	return nil, false
}

// CardResolver fetches and caches agent cards. Cards change rarely, so each
// fetch is cached with a TTL rather than refetched per call.
type CardResolver struct {
	httpClient *http.Client
	cache      *ristretto.Cache
	ttl        time.Duration
}

// NewCardResolver builds a resolver with an in-memory TTL cache.
func NewCardResolver(httpClient *http.Client, ttl time.Duration) (*CardResolver, error) {
	cache, err := ristretto.NewCache(&ristretto.Config{
		NumCounters: 1 << 10,
		MaxCost:     1 << 20,
		BufferItems: 64,
	})
	if err != nil {
		return nil, fmt.Errorf("agent card cache: %w", err)
	}
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &CardResolver{httpClient: httpClient, cache: cache, ttl: ttl}, nil
}

// Resolve returns the card published at cardURL, from cache when fresh.
func (r *CardResolver) Resolve(ctx context.Context, cardURL string) (*AgentCard, error) {
	if v, ok := r.cache.Get(cardURL); ok {
		if card, ok := v.(*AgentCard); ok {
			return card, nil
		}
	}

	card, err := r.fetch(ctx, cardURL)
	if err != nil {
		return nil, err
	}
	r.cache.SetWithTTL(cardURL, card, 1, r.ttl)
	return card, nil
}

func (r *CardResolver) fetch(ctx context.Context, cardURL string) (*AgentCard, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, cardURL, nil)
	if err != nil {
		return nil, fmt.Errorf("build agent card request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := r.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch agent card %s: %w", cardURL, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("fetch agent card %s: status %d: %s", cardURL, resp.StatusCode, string(body))
	}

	var card AgentCard
	if err := json.NewDecoder(resp.Body).Decode(&card); err != nil {
		return nil, fmt.Errorf("decode agent card %s: %w", cardURL, err)
	}
	if card.URL == "" {
		return nil, fmt.Errorf("agent card %s has no service url", cardURL)
	}
	return &card, nil
}
