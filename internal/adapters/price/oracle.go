// Package price implementa ports.PriceOracle contra un endpoint estilo
// CoinGecko (/simple/price). Cachea el precio con TTL, corta con un circuit
// breaker cuando la API falla seguido y, si no hay precio fresco, sirve el
// último precio bueno.
package price

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/sony/gobreaker"

	"github.com/alejandrodnm/sentibot/internal/adapters/httpclient"
	"github.com/alejandrodnm/sentibot/internal/domain"
	"github.com/alejandrodnm/sentibot/internal/ports"
)

const (
	DefaultBaseURL  = "https://api.coingecko.com/api/v3"
	DefaultCacheTTL = 60 * time.Second

	// CoinGecko free tier: ~30 req/min
	oracleRatePerSec = 0.5
	oracleBurst      = 1

	tripAfterFailures = 3
	breakerCooldown   = 60 * time.Second
)

var _ ports.PriceOracle = (*Oracle)(nil)

// Config define qué par se consulta.
type Config struct {
	BaseURL    string
	CoinID     string // p.ej. "ethereum"
	VsCurrency string // p.ej. "usd"
	CacheTTL   time.Duration
	APIKey     string
}

// Oracle devuelve el precio de referencia del activo base en unidades quote.
type Oracle struct {
	cfg     Config
	client  *httpclient.Client
	breaker *gobreaker.CircuitBreaker
	clock   clockwork.Clock

	mu        sync.Mutex
	lastPrice float64
	fetchedAt time.Time
}

// Option configura el Oracle.
type Option func(*Oracle)

// WithClock inyecta el reloj usado por la caché (tests).
func WithClock(c clockwork.Clock) Option {
	return func(o *Oracle) { o.clock = c }
}

// WithClient reemplaza el cliente HTTP (tests).
func WithClient(c *httpclient.Client) Option {
	return func(o *Oracle) { o.client = c }
}

// New crea el oráculo. CoinID y VsCurrency son obligatorios.
func New(cfg Config, opts ...Option) (*Oracle, error) {
	if cfg.CoinID == "" || cfg.VsCurrency == "" {
		return nil, fmt.Errorf("price.New: coin_id and vs_currency are required")
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.CacheTTL <= 0 {
		cfg.CacheTTL = DefaultCacheTTL
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")

	o := &Oracle{
		cfg:    cfg,
		client: httpclient.New(oracleRatePerSec, oracleBurst),
		clock:  clockwork.NewRealClock(),
	}
	o.breaker = gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "price-oracle",
		MaxRequests: 1,
		Timeout:     breakerCooldown,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= tripAfterFailures
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			slog.Warn("price: circuit breaker state changed",
				"breaker", name, "from", from.String(), "to", to.String())
		},
	})
	for _, opt := range opts {
		opt(o)
	}
	if cfg.APIKey != "" {
		o.client.WithHeader("x-cg-demo-api-key", cfg.APIKey)
	}
	return o, nil
}

// GetReferencePrice devuelve el precio cacheado si sigue dentro del TTL; si no,
// consulta la API. Si la API falla y hay un precio anterior, lo devuelve.
func (o *Oracle) GetReferencePrice(ctx context.Context) (float64, error) {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.lastPrice > 0 && o.clock.Since(o.fetchedAt) < o.cfg.CacheTTL {
		return o.lastPrice, nil
	}

	res, err := o.breaker.Execute(func() (interface{}, error) {
		return o.fetch(ctx)
	})
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			err = domain.Classify(domain.KindUnavailable, "price.GetReferencePrice", err)
		}
		if o.lastPrice > 0 {
			slog.Warn("price: using last good price",
				"price", fmt.Sprintf("$%.2f", o.lastPrice),
				"age", o.clock.Since(o.fetchedAt).Round(time.Second).String(),
				"err", err)
			return o.lastPrice, nil
		}
		return 0, err
	}

	p := res.(float64)
	o.lastPrice = p
	o.fetchedAt = o.clock.Now()
	slog.Debug("price: refreshed", "coin", o.cfg.CoinID, "price", fmt.Sprintf("$%.2f", p))
	return p, nil
}

// State expone el estado del breaker (métricas y tests).
func (o *Oracle) State() gobreaker.State {
	return o.breaker.State()
}

func (o *Oracle) fetch(ctx context.Context) (float64, error) {
	q := url.Values{}
	q.Set("ids", o.cfg.CoinID)
	q.Set("vs_currencies", o.cfg.VsCurrency)
	endpoint := o.cfg.BaseURL + "/simple/price?" + q.Encode()

	var body map[string]map[string]float64
	if err := o.client.GetJSON(ctx, "price.fetch", endpoint, &body); err != nil {
		return 0, err
	}

	quotes, ok := body[o.cfg.CoinID]
	if !ok {
		return 0, domain.Classify(domain.KindNotFound, "price.fetch",
			fmt.Errorf("coin %q missing from response", o.cfg.CoinID))
	}
	p, ok := quotes[o.cfg.VsCurrency]
	if !ok || p <= 0 {
		return 0, domain.Classify(domain.KindUnavailable, "price.fetch",
			fmt.Errorf("no %s quote for %s", o.cfg.VsCurrency, o.cfg.CoinID))
	}
	return p, nil
}
