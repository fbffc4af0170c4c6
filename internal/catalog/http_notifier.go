package catalog

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// HTTPNotifier pushes metadata updates to the catalog's REST API.
type HTTPNotifier struct {
	baseURL string
	token   string
	client  *http.Client
}

// NewHTTPNotifier constructs a notifier that PATCHes
// {baseURL}/videos/{jobID}/metadata. The token, when non-empty, is sent as a
// bearer credential.
func NewHTTPNotifier(baseURL, token string, client *http.Client) (*HTTPNotifier, error) {
	trimmed := strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if trimmed == "" {
		return nil, fmt.Errorf("catalog base URL is required")
	}
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}
	return &HTTPNotifier{baseURL: trimmed, token: strings.TrimSpace(token), client: client}, nil
}

func (n *HTTPNotifier) PushUpdate(ctx context.Context, jobID string, update Update) error {
	if strings.TrimSpace(jobID) == "" {
		return fmt.Errorf("job id is required")
	}
	body, err := json.Marshal(update)
	if err != nil {
		return fmt.Errorf("marshal catalog update: %w", err)
	}
	endpoint := fmt.Sprintf("%s/videos/%s/metadata", n.baseURL, url.PathEscape(jobID))
	req, err := http.NewRequestWithContext(ctx, http.MethodPatch, endpoint, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if n.token != "" {
		req.Header.Set("Authorization", "Bearer "+n.token)
	}
	resp, err := n.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		data, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("%s: %s", resp.Status, strings.TrimSpace(string(data)))
	}
	io.Copy(io.Discard, resp.Body)
	return nil
}
