// Outbound delivery of normalized payloads. The pipeline core only
// produces payloads; everything about getting them to the billing side
// (transport, retry, queueing) lives here.
package delivery

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/delento/iot-data-processor/pkg/monitor"
	"github.com/delento/iot-data-processor/pkg/types"
)

// Sender hands one payload to the billing side.
type Sender interface {
	Send(ctx context.Context, payload *types.OutputPayload) error
}

// BillingClient posts payloads to the downstream billing API over HTTP.
type BillingClient struct {
	endpoint string
	client   *http.Client
	log      *logrus.Logger

	maxRetries int
	baseDelay  time.Duration
	maxDelay   time.Duration
}

func NewBillingClient(endpoint string, log *logrus.Logger) *BillingClient {
	return &BillingClient{
		endpoint:   endpoint,
		client:     &http.Client{Timeout: 10 * time.Second},
		log:        log,
		maxRetries: 5,
		baseDelay:  2 * time.Second,
		maxDelay:   60 * time.Second,
	}
}

// Send delivers one payload, retrying transport errors and 5xx responses
// with exponential backoff. A 4xx response is permanent and not retried.
func (c *BillingClient) Send(ctx context.Context, payload *types.OutputPayload) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal payload: %w", err)
	}

	var lastErr error
	for attempt := 0; attempt < c.maxRetries; attempt++ {
		if attempt > 0 {
			delay := time.Duration(1<<(attempt-1)) * c.baseDelay
			if delay > c.maxDelay {
				delay = c.maxDelay
			}
			c.log.Warnf("Retrying delivery in %v... (attempt %d/%d)", delay, attempt+1, c.maxRetries)
			select {
			case <-time.After(delay):
			case <-ctx.Done():
				return ctx.Err()
			}
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
		if err != nil {
			return err
		}
		req.Header.Set("Content-Type", "application/json")

		resp, err := c.client.Do(req)
		if err != nil {
			lastErr = err
			continue
		}
		io.Copy(io.Discard, resp.Body)
		resp.Body.Close()

		switch {
		case resp.StatusCode < 300:
			monitor.PayloadsDelivered.Inc()
			return nil
		case resp.StatusCode >= 400 && resp.StatusCode < 500:
			monitor.DeliveryErrors.Inc()
			return fmt.Errorf("billing API rejected payload for %s: %s", payload.Header.MSN, resp.Status)
		default:
			lastErr = fmt.Errorf("billing API returned %s", resp.Status)
		}
	}

	monitor.DeliveryErrors.Inc()
	return fmt.Errorf("delivery failed after %d attempts: %w", c.maxRetries, lastErr)
}
