package effector

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"ruleflow-server/src/engine"
)

// HTTPNotifier delivers notification actions by posting to the configured
// notification webhook.
type HTTPNotifier struct {
	url    string
	client *http.Client
}

func NewHTTPNotifier(url string, timeout time.Duration) *HTTPNotifier {
	return &HTTPNotifier{
		url:    url,
		client: &http.Client{Timeout: timeout},
	}
}

func (n *HTTPNotifier) Send(ctx context.Context, target, message string) error {
	payload, err := json.Marshal(map[string]string{
		"target":  target,
		"message": message,
	})
	if err != nil {
		return engine.PermanentEffector("notification payload could not be encoded", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.url, bytes.NewReader(payload))
	if err != nil {
		return engine.PermanentEffector("notification request could not be built", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := n.client.Do(req)
	if err != nil {
		return engine.TransientEffector("notification delivery failed", err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		return nil
	case resp.StatusCode >= 500:
		return engine.TransientEffector(fmt.Sprintf("notification service returned %d", resp.StatusCode), nil)
	default:
		return engine.PermanentEffector(fmt.Sprintf("notification to %q rejected with status %d", target, resp.StatusCode), nil)
	}
}
