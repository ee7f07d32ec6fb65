package workerpool

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gofiber/fiber/v3/client"
)

// Prober checks the health endpoint of the worker listening on port.
type Prober interface {
	Probe(ctx context.Context, port int) error
}

// HTTPProber calls GET /health and expects a 200.
type HTTPProber struct {
	client *client.Client
	host   string
}

func NewHTTPProber(c *client.Client, host string) *HTTPProber {
	if c == nil {
		c = client.New()
	}

	if host == "" {
		host = "127.0.0.1"
	}

	return &HTTPProber{client: c, host: host}
}

func (p *HTTPProber) Probe(ctx context.Context, port int) error {
	req := p.client.R().
		SetContext(ctx).
		SetMethod(http.MethodGet).
		SetURL(fmt.Sprintf("http://%s:%d/health", p.host, port))

	if deadline, ok := ctx.Deadline(); ok {
		req.SetTimeout(time.Until(deadline))
	}

	resp, err := req.Send()
	if err != nil {
		client.ReleaseRequest(req)

		return fmt.Errorf("%w: port %d: %w", ErrProcessUnhealthy, port, err)
	}
	defer resp.Close()

	if resp.StatusCode() != http.StatusOK {
		return fmt.Errorf("%w: port %d answered %d", ErrProcessUnhealthy, port, resp.StatusCode())
	}

	return nil
}
