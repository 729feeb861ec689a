// ABOUTME: Target health probing used by the before-tool guideline
// ABOUTME: An unreachable or unhappy target yields a reason, never an error

package health

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"
)

const probeTimeout = 10 * time.Second

// Status is the outcome of one health probe.
type Status struct {
	Healthy bool
	Reason  string
}

// Checker probes whether a target machine is ready to receive GUI actions.
type Checker interface {
	Check(ctx context.Context, target string) Status
}

// HTTPChecker probes the automation daemon's health endpoint.
type HTTPChecker struct {
	port   int
	client *http.Client
}

// NewHTTPChecker builds a checker against the daemon port.
func NewHTTPChecker(port int) *HTTPChecker {
	return &HTTPChecker{
		port:   port,
		client: &http.Client{Timeout: probeTimeout},
	}
}

// Check probes http://{target}:{port}/health. Any transport or status failure
// is reported as unhealthy with a reason.
func (c *HTTPChecker) Check(ctx context.Context, target string) Status {
	if target == "" {
		return Status{Reason: "no target address"}
	}

	url := fmt.Sprintf("http://%s:%d/health", target, c.port)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return Status{Reason: fmt.Sprintf("invalid target address: %v", err)}
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return Status{Reason: fmt.Sprintf("health probe failed: %v", err)}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return Status{Reason: fmt.Sprintf("health endpoint returned status %d: %s", resp.StatusCode, body)}
	}
	return Status{Healthy: true}
}
