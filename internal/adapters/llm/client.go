// Package llm implementa los adapters HTTP de los modelos de generación:
// research (Perplexity), razonamiento y extracción restringida por schema (Gemini).
//
// A diferencia del client de Polymarket no hay retries: cada llamada es un único
// intento con timeout propio. Un fallo se propaga al pipeline, que lo trata como
// fatal para ese mercado. El circuit breaker corta las llamadas cuando el upstream
// acumula fallos consecutivos de transporte, 5xx o 429.
package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/sony/gobreaker"
	"golang.org/x/time/rate"
)

const (
	defaultRatePerSec      = 1.0
	defaultBurst           = 2
	defaultBreakerFailures = 5
	defaultBreakerCooldown = 60 * time.Second

	// Máximo de bytes del body de error que se incluyen en el mensaje.
	maxErrorBody = 512
)

// ErrStatus indica una respuesta no-2xx del upstream.
var ErrStatus = errors.New("unexpected status")

// StatusError es una respuesta no-2xx. errors.Is(err, ErrStatus) es true.
type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%v %d: %s", ErrStatus, e.Code, e.Body)
}

func (e *StatusError) Is(target error) bool { return target == ErrStatus }

// upstreamHealthy decide qué errores no cuentan para el breaker: los 4xx
// (salvo 429) rechazan un prompt concreto y context.Canceled viene del caller.
func upstreamHealthy(err error) bool {
	if err == nil || errors.Is(err, context.Canceled) {
		return true
	}
	var se *StatusError
	if errors.As(err, &se) {
		return se.Code >= 400 && se.Code < 500 && se.Code != http.StatusTooManyRequests
	}
	return false
}

// ClientConfig configura el transporte compartido de un upstream.
type ClientConfig struct {
	Name            string
	Timeout         time.Duration
	RatePerSec      float64
	Burst           int
	BreakerFailures uint32
	BreakerCooldown time.Duration
}

// client es el transporte HTTP de un upstream: limiter + breaker + timeout por llamada.
type client struct {
	name    string
	http    *http.Client
	timeout time.Duration
	limiter *rate.Limiter
	breaker *gobreaker.CircuitBreaker
}

func newClient(cfg ClientConfig) *client {
	if cfg.RatePerSec <= 0 {
		cfg.RatePerSec = defaultRatePerSec
	}
	if cfg.Burst <= 0 {
		cfg.Burst = defaultBurst
	}
	if cfg.BreakerFailures == 0 {
		cfg.BreakerFailures = defaultBreakerFailures
	}
	if cfg.BreakerCooldown <= 0 {
		cfg.BreakerCooldown = defaultBreakerCooldown
	}
	failures := cfg.BreakerFailures

	return &client{
		name:    cfg.Name,
		http:    &http.Client{},
		timeout: cfg.Timeout,
		limiter: rate.NewLimiter(rate.Limit(cfg.RatePerSec), cfg.Burst),
		breaker: gobreaker.NewCircuitBreaker(gobreaker.Settings{
			Name:        cfg.Name,
			MaxRequests: 1,
			Timeout:     cfg.BreakerCooldown,
			ReadyToTrip: func(counts gobreaker.Counts) bool {
				return counts.ConsecutiveFailures >= failures
			},
			IsSuccessful: upstreamHealthy,
			OnStateChange: func(name string, from, to gobreaker.State) {
				slog.Warn("llm circuit breaker state change", "upstream", name, "from", from.String(), "to", to.String())
			},
		}),
	}
}

// postJSON hace un único POST JSON y decodifica la respuesta 2xx en out.
// La espera del limiter usa ctx; el timeout configurado (si es > 0) solo cubre la llamada HTTP.
func (c *client) postJSON(ctx context.Context, url string, header http.Header, body, out any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("%s: marshal body: %w", c.name, err)
	}

	if err := c.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("%s: rate limiter: %w", c.name, err)
	}

	_, err = c.breaker.Execute(func() (interface{}, error) {
		callCtx := ctx
		if c.timeout > 0 {
			var cancel context.CancelFunc
			callCtx, cancel = context.WithTimeout(ctx, c.timeout)
			defer cancel()
		}
		return nil, c.do(callCtx, url, header, payload, out)
	})
	if err != nil {
		return fmt.Errorf("%s: %w", c.name, err)
	}
	return nil
}

func (c *client) do(ctx context.Context, url string, header http.Header, payload []byte, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	for k, vs := range header {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return &StatusError{Code: resp.StatusCode, Body: string(bytes.TrimSpace(snippet))}
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
