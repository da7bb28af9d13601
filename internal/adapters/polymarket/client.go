package polymarket

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"golang.org/x/time/rate"
)

const (
	defaultCLOBBase  = "https://clob.polymarket.com"
	defaultGammaBase = "https://gamma-api.polymarket.com"

	// Rate limits al 60% de los documentados: CLOB /books 30/s, Gamma /markets 18/s.
	booksRatePerSec = 30
	gammaRatePerSec = 18

	maxRetries    = 3
	baseRetryWait = 500 * time.Millisecond
	maxRetryAfter = 10 * time.Second
)

// endpoint es un host de la API con su propio presupuesto de requests.
type endpoint struct {
	name    string
	base    string
	limiter *rate.Limiter
}

// Client es el HTTP client de solo lectura de Polymarket: books del CLOB y
// metadata/resolución de Gamma.
type Client struct {
	http      *http.Client
	clob      endpoint
	gamma     endpoint
	retryWait time.Duration
}

// NewClient crea un Client. Un base URL vacío usa el de producción.
func NewClient(clobBase, gammaBase string) *Client {
	if clobBase == "" {
		clobBase = defaultCLOBBase
	}
	if gammaBase == "" {
		gammaBase = defaultGammaBase
	}
	return &Client{
		http:      &http.Client{Timeout: 10 * time.Second},
		clob:      endpoint{name: "clob", base: clobBase, limiter: rate.NewLimiter(booksRatePerSec, 5)},
		gamma:     endpoint{name: "gamma", base: gammaBase, limiter: rate.NewLimiter(gammaRatePerSec, 10)},
		retryWait: baseRetryWait,
	}
}

// WithRetryWait cambia la espera base entre reintentos. Los tests usan 1ms.
func (c *Client) WithRetryWait(d time.Duration) *Client {
	c.retryWait = d
	return c
}

// call hace una request JSON contra ep y decodifica la respuesta en out.
// body nil = GET. 429, 5xx y errores de red se reintentan con backoff;
// el resto de 4xx falla en el acto.
func (c *Client) call(ctx context.Context, ep endpoint, path string, body, out any) error {
	var payload []byte
	method := http.MethodGet
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal body: %w", err)
		}
		payload = b
		method = http.MethodPost
	}

	var lastErr error
	for attempt := 0; attempt <= maxRetries; attempt++ {
		if attempt > 0 {
			if err := c.backoff(ctx, attempt-1, lastErr); err != nil {
				return err
			}
		}
		if err := ep.limiter.Wait(ctx); err != nil {
			return fmt.Errorf("%s rate limiter: %w", ep.name, err)
		}

		retry, err := c.once(ctx, method, ep.base+path, payload, out)
		if err == nil {
			return nil
		}
		if !retry {
			return err
		}
		lastErr = err
		slog.Debug("polymarket: retrying", "endpoint", ep.name, "attempt", attempt+1, "err", err)
	}
	return fmt.Errorf("%s: after %d retries: %w", ep.name, maxRetries, lastErr)
}

// once hace un intento. retry indica si el fallo es transitorio.
func (c *Client) once(ctx context.Context, method, url string, payload []byte, out any) (retry bool, err error) {
	var reader io.Reader
	if payload != nil {
		reader = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, url, reader)
	if err != nil {
		return false, err
	}
	req.Header.Set("Accept", "application/json")
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return ctx.Err() == nil, err
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		return true, &rateLimitedError{retryAfter: parseRetryAfter(resp.Header.Get("Retry-After"))}
	case resp.StatusCode >= 500:
		return true, fmt.Errorf("server error %d", resp.StatusCode)
	case resp.StatusCode >= 400:
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return false, fmt.Errorf("client error %d: %s", resp.StatusCode, bytes.TrimSpace(msg))
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return false, fmt.Errorf("decode response: %w", err)
	}
	return false, nil
}

// rateLimitedError es un 429; retryAfter viene del header si lo hay.
type rateLimitedError struct {
	retryAfter time.Duration
}

func (e *rateLimitedError) Error() string {
	return fmt.Sprintf("rate limited (429), retry after %s", e.retryAfter)
}

// backoff espera 2^attempt * retryWait, o el Retry-After del 429 si es mayor.
func (c *Client) backoff(ctx context.Context, attempt int, cause error) error {
	wait := c.retryWait << attempt
	var rl *rateLimitedError
	if errors.As(cause, &rl) && rl.retryAfter > wait {
		wait = rl.retryAfter
		slog.Warn("polymarket: rate limited", "wait", wait)
	}

	t := time.NewTimer(wait)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// parseRetryAfter acepta segundos enteros; lo demás se ignora.
func parseRetryAfter(v string) time.Duration {
	secs, err := strconv.Atoi(v)
	if err != nil || secs <= 0 {
		return 0
	}
	return min(time.Duration(secs)*time.Second, maxRetryAfter)
}
