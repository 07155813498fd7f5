package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/velvetcast/session-service/internal/config"
	"github.com/velvetcast/session-service/internal/domain"
)

// Broadcast lifecycle states reported by the media gateway.
const (
	BroadcastStatusCreated      = "created"
	BroadcastStatusBroadcasting = "broadcasting"
	BroadcastStatusEnded        = "ended"
)

var ErrBroadcastNotFound = errors.New("broadcast not found")

// BroadcastMetadata is the session metadata the gateway keeps per
// broadcast. Callbacks carry only the broadcast id; the reconciler
// fetches the rest from here.
type BroadcastMetadata struct {
	ConversationID string `json:"conversation_id"`
	StreamID       string `json:"stream_id"`
	PublisherID    string `json:"publisher_id"`
}

// BroadcastStatus is the gateway's view of one broadcast session.
type BroadcastStatus struct {
	Status   string            `json:"status"`
	Metadata BroadcastMetadata `json:"metadata"`
}

// Joinable reports whether a viewer may still join this broadcast.
func (b *BroadcastStatus) Joinable() bool {
	return b.Status == BroadcastStatusCreated || b.Status == BroadcastStatusBroadcasting
}

// GatewayClient queries the external media gateway.
type GatewayClient interface {
	GetBroadcastStatus(ctx context.Context, broadcastID string) (*BroadcastStatus, error)
}

// HTTPGatewayClient talks to the gateway's REST API with a bounded
// timeout; a join that cannot verify broadcast status in time fails
// rather than retrying.
type HTTPGatewayClient struct {
	baseURL string
	client  *http.Client
}

// NewHTTPGatewayClient creates a gateway client from config.
func NewHTTPGatewayClient(cfg config.GatewayConfig) *HTTPGatewayClient {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &HTTPGatewayClient{
		baseURL: cfg.BaseURL,
		client:  &http.Client{Timeout: timeout},
	}
}

func (c *HTTPGatewayClient) GetBroadcastStatus(ctx context.Context, broadcastID string) (*BroadcastStatus, error) {
	u := fmt.Sprintf("%s/v1/broadcasts/%s", c.baseURL, url.PathEscape(broadcastID))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build gateway request: %w", err)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrGatewayUnavailable, err)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
		var status BroadcastStatus
		if err := json.NewDecoder(resp.Body).Decode(&status); err != nil {
			return nil, fmt.Errorf("failed to decode gateway response: %w", err)
		}
		return &status, nil
	case http.StatusNotFound:
		return nil, ErrBroadcastNotFound
	default:
		return nil, fmt.Errorf("%w: gateway returned %d", domain.ErrGatewayUnavailable, resp.StatusCode)
	}
}
