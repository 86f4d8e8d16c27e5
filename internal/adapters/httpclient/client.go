// Package httpclient es el cliente JSON compartido por los adapters HTTP
// (feed de sentimiento y oráculo de precio): rate limiting, retries con backoff
// y errores clasificados con domain.Classify.
package httpclient

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math"
	"net/http"
	"time"

	"golang.org/x/time/rate"

	"github.com/alejandrodnm/sentibot/internal/domain"
)

const (
	defaultTimeout = 10 * time.Second
	maxRetries     = 3
	baseRetryWait  = 500 * time.Millisecond
)

// Client es un HTTP client con rate limiting y retries.
type Client struct {
	http      *http.Client
	limiter   *rate.Limiter
	retryWait time.Duration
	headers   map[string]string
}

// New crea un Client limitado a ratePerSec peticiones por segundo.
func New(ratePerSec float64, burst int) *Client {
	return &Client{
		http:      &http.Client{Timeout: defaultTimeout},
		limiter:   rate.NewLimiter(rate.Limit(ratePerSec), burst),
		retryWait: baseRetryWait,
		headers:   map[string]string{"Accept": "application/json"},
	}
}

// WithHeader añade una cabecera a todas las peticiones (API keys).
func (c *Client) WithHeader(key, value string) *Client {
	c.headers[key] = value
	return c
}

// WithRetryWait cambia la espera base del backoff (tests).
func (c *Client) WithRetryWait(d time.Duration) *Client {
	c.retryWait = d
	return c
}

// GetJSON hace un GET y decodifica la respuesta en out.
//
// Clasificación:
//   - red, timeout, 429 y 5xx agotados → KindUnavailable
//   - 404 → KindNotFound (no se reintenta)
//   - otro 4xx → KindUnknown
//   - JSON inválido → KindSerialization
func (c *Client) GetJSON(ctx context.Context, op, url string, out any) error {
	for attempt := 0; attempt <= maxRetries; attempt++ {
		if err := c.limiter.Wait(ctx); err != nil {
			return domain.Classify(domain.KindUnavailable, op, fmt.Errorf("rate limiter: %w", err))
		}

		resp, err := c.do(ctx, url)
		if err != nil {
			if attempt == maxRetries || ctx.Err() != nil {
				return domain.Classify(domain.KindUnavailable, op,
					fmt.Errorf("request failed after %d retries: %w", attempt, err))
			}
			c.sleep(ctx, attempt)
			continue
		}

		switch {
		case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500:
			resp.Body.Close()
			if attempt == maxRetries {
				return domain.Classify(domain.KindUnavailable, op,
					fmt.Errorf("status %d after %d retries", resp.StatusCode, maxRetries))
			}
			slog.Warn("http: retrying", "op", op, "status", resp.StatusCode, "attempt", attempt+1)
			c.sleep(ctx, attempt)
			continue

		case resp.StatusCode == http.StatusNotFound:
			resp.Body.Close()
			return domain.Classify(domain.KindNotFound, op, fmt.Errorf("%s: status 404", url))

		case resp.StatusCode >= 400:
			body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
			resp.Body.Close()
			return domain.Classify(domain.KindUnknown, op,
				fmt.Errorf("client error %d: %s", resp.StatusCode, string(body)))
		}

		err = json.NewDecoder(resp.Body).Decode(out)
		resp.Body.Close()
		if err != nil {
			return domain.Classify(domain.KindSerialization, op, fmt.Errorf("decode response: %w", err))
		}
		return nil
	}
	return domain.Classify(domain.KindUnavailable, op, errors.New("retries exhausted"))
}

func (c *Client) do(ctx context.Context, url string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	for k, v := range c.headers {
		req.Header.Set(k, v)
	}
	return c.http.Do(req)
}

// sleep espera con backoff exponencial, respetando el contexto.
func (c *Client) sleep(ctx context.Context, attempt int) {
	wait := time.Duration(math.Pow(2, float64(attempt))) * c.retryWait
	select {
	case <-time.After(wait):
	case <-ctx.Done():
	}
}
