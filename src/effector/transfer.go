package effector

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"ruleflow-server/src/engine"

	"github.com/shopspring/decimal"
)

// HTTPTransferService executes funds-transfer actions against the external
// transfer service. Status codes map onto the engine's error taxonomy:
// authorization, unknown-account and insufficient-funds responses are
// permanent, everything network-shaped is transient.
type HTTPTransferService struct {
	url    string
	client *http.Client
}

func NewHTTPTransferService(url string, timeout time.Duration) *HTTPTransferService {
	return &HTTPTransferService{
		url:    url,
		client: &http.Client{Timeout: timeout},
	}
}

func (t *HTTPTransferService) Transfer(ctx context.Context, sourceAccount, destinationAccount string, amount decimal.Decimal) error {
	payload, err := json.Marshal(map[string]string{
		"source_account":      sourceAccount,
		"destination_account": destinationAccount,
		"amount":              amount.StringFixed(2),
	})
	if err != nil {
		return engine.PermanentEffector("transfer payload could not be encoded", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.url, bytes.NewReader(payload))
	if err != nil {
		return engine.PermanentEffector("transfer request could not be built", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := t.client.Do(req)
	if err != nil {
		return engine.TransientEffector("transfer service unreachable", err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		return nil
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return engine.PermanentEffector("transfer not authorized", nil)
	case resp.StatusCode == http.StatusNotFound:
		return engine.PermanentEffector(fmt.Sprintf("account %q not found", destinationAccount), nil)
	case resp.StatusCode == http.StatusUnprocessableEntity:
		return engine.PermanentEffector(fmt.Sprintf("insufficient funds in account %q", sourceAccount), nil)
	case resp.StatusCode >= 500:
		return engine.TransientEffector(fmt.Sprintf("transfer service returned %d", resp.StatusCode), nil)
	default:
		return engine.PermanentEffector(fmt.Sprintf("transfer rejected with status %d", resp.StatusCode), nil)
	}
}
