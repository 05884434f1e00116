// internal/common/camunda/client.go
package camunda

import (
	"context"
	stderrors "errors"
	"fmt"
	"time"

	"cleantalk-antispam/internal/common/config"
	"cleantalk-antispam/internal/common/errors"

	"github.com/camunda/zeebe/clients/go/v8/pkg/zbc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

const defaultPingTimeout = 10 * time.Second

// Client owns the gateway connection the anti-spam workers poll on.
type Client struct {
	client         zbc.Client
	pingTimeout    time.Duration
	requestTimeout time.Duration
}

// NewClientFromAppConfig dials the gateway named in the camunda section and
// fails unless the broker topology answers within the configured timeout.
func NewClientFromAppConfig(cfg config.CamundaConfig) (*Client, error) {
	if cfg.BrokerAddress == "" {
		return nil, errors.NewConfigInvalidError("camunda.broker_address is required")
	}

	zeebeClient, err := zbc.NewClient(&zbc.ClientConfig{
		GatewayAddress:         cfg.BrokerAddress,
		UsePlaintextConnection: true,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create Zeebe client: %w", err)
	}

	c := newClient(zeebeClient, config.GetDuration(cfg.Timeout))
	c.requestTimeout = config.GetDuration(cfg.RequestTimeout)
	if err := c.Ping(context.Background()); err != nil {
		_ = zeebeClient.Close()
		return nil, err
	}
	return c, nil
}

func newClient(zeebeClient zbc.Client, pingTimeout time.Duration) *Client {
	if pingTimeout <= 0 {
		pingTimeout = defaultPingTimeout
	}
	return &Client{client: zeebeClient, pingTimeout: pingTimeout}
}

func (c *Client) Close() error {
	return c.client.Close()
}

// Ping asks the gateway for the cluster topology.
func (c *Client) Ping(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, c.pingTimeout)
	defer cancel()

	if _, err := c.client.NewTopologyCommand().Send(ctx); err != nil {
		return mapZeebeError(err, "topology")
	}
	return nil
}

// mapZeebeError turns gateway failures into application errors. Deadline
// failures are timeouts; everything else means the broker is unavailable.
func mapZeebeError(err error, operation string) error {
	wrapped := fmt.Errorf("zeebe %s: %w", operation, err)

	if stderrors.Is(err, context.DeadlineExceeded) || status.Code(err) == codes.DeadlineExceeded {
		return errors.NewTimeoutError("zeebe", wrapped)
	}
	return errors.NewExternalServiceError("zeebe", wrapped)
}
