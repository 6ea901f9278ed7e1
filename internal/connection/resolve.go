package connection

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"

	"github.com/eleven-am/voice-widget/internal/shared"
)

type signedURLResponse struct {
	SignedURL string `json:"signed_url"`
}

// resolveURL builds the public endpoint or, when an API key is configured,
// fetches a signed URL. The key is only ever sent to the token endpoint.
func (c *Connection) resolveURL(ctx context.Context) (string, error) {
	if c.cfg.AgentID == "" {
		return "", fmt.Errorf("%w: agent id not configured", shared.ErrEndpointResolution)
	}

	if c.cfg.APIKey == "" {
		u, err := url.Parse(c.cfg.BaseURL)
		if err != nil {
			return "", fmt.Errorf("%w: base url: %v", shared.ErrEndpointResolution, err)
		}
		q := u.Query()
		q.Set("agent_id", c.cfg.AgentID)
		u.RawQuery = q.Encode()
		return u.String(), nil
	}

	u, err := url.Parse(c.cfg.SignedURLEndpoint)
	if err != nil {
		return "", fmt.Errorf("%w: token endpoint: %v", shared.ErrEndpointResolution, err)
	}
	q := u.Query()
	q.Set("agent_id", c.cfg.AgentID)
	u.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return "", fmt.Errorf("%w: %v", shared.ErrEndpointResolution, err)
	}
	req.Header.Set("xi-api-key", c.cfg.APIKey)

	resp, err := c.cfg.HTTPClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("%w: %v", shared.ErrEndpointResolution, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return "", fmt.Errorf("%w: token endpoint returned %d: %s", shared.ErrEndpointResolution, resp.StatusCode, body)
	}

	var out signedURLResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("%w: decode signed url: %v", shared.ErrEndpointResolution, err)
	}
	if out.SignedURL == "" {
		return "", fmt.Errorf("%w: empty signed url", shared.ErrEndpointResolution)
	}
	return out.SignedURL, nil
}
