package client

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/velvetcast/session-service/internal/config"
	"github.com/velvetcast/session-service/internal/domain"
)

// RankService computes a member's rank inside a performer's room.
// Best-effort: callers fall back to the unranked placeholder on error
// and never block membership flow on it.
type RankService interface {
	ComputeRank(ctx context.Context, performerID, userID string) (domain.RankInfo, error)
}

// HTTPRankClient talks to the rank service's REST API.
type HTTPRankClient struct {
	baseURL string
	client  *http.Client
}

// NewHTTPRankClient creates a rank client from config.
func NewHTTPRankClient(cfg config.RankConfig) *HTTPRankClient {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 2 * time.Second
	}
	return &HTTPRankClient{
		baseURL: cfg.BaseURL,
		client:  &http.Client{Timeout: timeout},
	}
}

func (c *HTTPRankClient) ComputeRank(ctx context.Context, performerID, userID string) (domain.RankInfo, error) {
	q := url.Values{}
	q.Set("performer_id", performerID)
	q.Set("user_id", userID)
	u := fmt.Sprintf("%s/v1/ranks?%s", c.baseURL, q.Encode())

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return domain.RankInfo{}, err
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return domain.RankInfo{}, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return domain.RankInfo{}, fmt.Errorf("rank service returned %d", resp.StatusCode)
	}

	var rank domain.RankInfo
	if err := json.NewDecoder(resp.Body).Decode(&rank); err != nil {
		return domain.RankInfo{}, err
	}
	return rank, nil
}
