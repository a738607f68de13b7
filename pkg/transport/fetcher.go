package transport

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/cenk/backoff"
	"github.com/rs/dnscache"
	"golang.org/x/time/rate"
)

const (
	defaultUserAgent    = "packagekit/1.0"
	defaultMaxRetries   = 3
	defaultBaseDelay    = 500 * time.Millisecond
	defaultMaxBodyBytes = 512 << 20
	dnsRefreshInterval  = 5 * time.Minute
)

// HTTPFetcher downloads documents and payloads. The zero value is not usable;
// construct with NewHTTPFetcher.
type HTTPFetcher struct {
	client       *http.Client
	userAgent    string
	maxRetries   int
	baseDelay    time.Duration
	maxBodyBytes int64
	limiter      *rate.Limiter
	breakers     *breakerSet

	stopOnce sync.Once
	stop     chan struct{}
}

// Option configures an HTTPFetcher.
type Option func(*HTTPFetcher)

// WithHTTPClient sets a custom HTTP client, replacing the DNS caching one.
func WithHTTPClient(c *http.Client) Option {
	return func(f *HTTPFetcher) {
		f.client = c
	}
}

// WithTimeout sets the overall per-request timeout of the client.
func WithTimeout(d time.Duration) Option {
	return func(f *HTTPFetcher) {
		f.client.Timeout = d
	}
}

// WithUserAgent sets the User-Agent header.
func WithUserAgent(ua string) Option {
	return func(f *HTTPFetcher) {
		f.userAgent = ua
	}
}

// WithMaxRetries sets how many times a transient failure is retried.
func WithMaxRetries(n int) Option {
	return func(f *HTTPFetcher) {
		f.maxRetries = n
	}
}

// WithBaseDelay sets the first backoff interval.
func WithBaseDelay(d time.Duration) Option {
	return func(f *HTTPFetcher) {
		f.baseDelay = d
	}
}

// WithMaxBodyBytes caps the size of a response body.
func WithMaxBodyBytes(n int64) Option {
	return func(f *HTTPFetcher) {
		f.maxBodyBytes = n
	}
}

// WithRateLimit limits outgoing requests to perSecond with the given burst.
// A non-positive perSecond disables limiting.
func WithRateLimit(perSecond float64, burst int) Option {
	return func(f *HTTPFetcher) {
		if perSecond <= 0 {
			f.limiter = nil
			return
		}
		if burst < 1 {
			burst = 1
		}
		f.limiter = rate.NewLimiter(rate.Limit(perSecond), burst)
	}
}

// WithBreakerThreshold sets how many consecutive failures open a host's
// circuit.
func WithBreakerThreshold(n int64) Option {
	return func(f *HTTPFetcher) {
		f.breakers = newBreakerSet(n)
	}
}

// NewHTTPFetcher creates a fetcher. Call Close to stop the DNS cache refresh.
func NewHTTPFetcher(opts ...Option) *HTTPFetcher {
	resolver := &dnscache.Resolver{}
	stop := make(chan struct{})
	go func() {
		ticker := time.NewTicker(dnsRefreshInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				resolver.Refresh(true)
			case <-stop:
				return
			}
		}
	}()

	dialer := &net.Dialer{
		Timeout:   30 * time.Second,
		KeepAlive: 30 * time.Second,
	}

	f := &HTTPFetcher{
		client: &http.Client{
			Timeout: 5 * time.Minute,
			Transport: &http.Transport{
				Proxy: http.ProxyFromEnvironment,
				DialContext: func(ctx context.Context, network, addr string) (net.Conn, error) {
					host, port, err := net.SplitHostPort(addr)
					if err != nil {
						return nil, err
					}
					ips, err := resolver.LookupHost(ctx, host)
					if err != nil {
						return nil, err
					}
					var lastErr error
					for _, ip := range ips {
						conn, err := dialer.DialContext(ctx, network, net.JoinHostPort(ip, port))
						if err == nil {
							return conn, nil
						}
						lastErr = err
					}
					if lastErr == nil {
						lastErr = fmt.Errorf("no addresses for %s", host)
					}
					return nil, lastErr
				},
				MaxIdleConns:          100,
				MaxIdleConnsPerHost:   10,
				IdleConnTimeout:       90 * time.Second,
				TLSHandshakeTimeout:   10 * time.Second,
				ExpectContinueTimeout: 1 * time.Second,
			},
		},
		userAgent:    defaultUserAgent,
		maxRetries:   defaultMaxRetries,
		baseDelay:    defaultBaseDelay,
		maxBodyBytes: defaultMaxBodyBytes,
		breakers:     newBreakerSet(defaultBreakerThreshold),
		stop:         stop,
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// Close stops the background DNS refresh. It is safe to call more than once.
func (f *HTTPFetcher) Close() error {
	f.stopOnce.Do(func() { close(f.stop) })
	return nil
}

// Fetch GETs url and returns the full body. When bearerToken is non-empty it
// is sent as "Authorization: Bearer <token>". Every error wraps ErrTransport.
func (f *HTTPFetcher) Fetch(ctx context.Context, url, bearerToken string) ([]byte, error) {
	host := hostOf(url)
	breaker := f.breakers.get(host)

	if !breaker.Ready() {
		return nil, &Error{URL: url, Err: fmt.Errorf("%w: circuit open for %s", ErrUpstreamDown, host)}
	}

	body, err := f.fetchWithRetry(ctx, url, bearerToken)
	if err != nil {
		if retriable(err) {
			breaker.Fail()
		}
		return nil, err
	}

	breaker.Success()
	return body, nil
}

// PostJSON sends a single POST with a JSON body. It is not retried.
func (f *HTTPFetcher) PostJSON(ctx context.Context, url string, payload []byte, bearerToken string) ([]byte, error) {
	if err := f.wait(ctx); err != nil {
		return nil, &Error{URL: url, Err: err}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return nil, &Error{URL: url, Err: fmt.Errorf("creating request: %w", err)}
	}
	req.Header.Set("Content-Type", "application/json")

	return f.do(req, bearerToken)
}

// Breakers reports each known host's circuit as "open" or "closed".
func (f *HTTPFetcher) Breakers() map[string]string {
	return f.breakers.states()
}

func (f *HTTPFetcher) fetchWithRetry(ctx context.Context, url, bearerToken string) ([]byte, error) {
	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = f.baseDelay
	policy.MaxInterval = 30 * f.baseDelay
	policy.MaxElapsedTime = 0

	retries := f.maxRetries
	if retries < 0 {
		retries = 0
	}

	var body []byte
	operation := func() error {
		if err := f.wait(ctx); err != nil {
			return backoff.Permanent(&Error{URL: url, Err: err})
		}

		data, err := f.get(ctx, url, bearerToken)
		if err == nil {
			body = data
			return nil
		}
		if ctx.Err() != nil || !retriable(err) {
			return backoff.Permanent(err)
		}
		return err
	}

	err := backoff.Retry(operation, backoff.WithContext(backoff.WithMaxRetries(policy, uint64(retries)), ctx))
	if err != nil {
		var tErr *Error
		if !errors.As(err, &tErr) {
			err = &Error{URL: url, Err: err}
		}
		return nil, err
	}
	return body, nil
}

func (f *HTTPFetcher) wait(ctx context.Context) error {
	if f.limiter == nil {
		return nil
	}
	return f.limiter.Wait(ctx)
}

func (f *HTTPFetcher) get(ctx context.Context, url, bearerToken string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, &Error{URL: url, Err: fmt.Errorf("creating request: %w", err)}
	}
	req.Header.Set("Accept", "*/*")
	return f.do(req, bearerToken)
}

func (f *HTTPFetcher) do(req *http.Request, bearerToken string) ([]byte, error) {
	url := req.URL.String()
	req.Header.Set("User-Agent", f.userAgent)
	if bearerToken != "" {
		req.Header.Set("Authorization", "Bearer "+bearerToken)
	}

	resp, err := f.client.Do(req)
	if err != nil {
		if req.Context().Err() != nil {
			return nil, &Error{URL: url, Err: req.Context().Err()}
		}
		// Connection level failures are treated like an unavailable upstream
		return nil, &Error{URL: url, Err: fmt.Errorf("%w: %v", ErrUpstreamDown, err)}
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		limited := io.LimitReader(resp.Body, f.maxBodyBytes+1)
		body, err := io.ReadAll(limited)
		if err != nil {
			return nil, &Error{URL: url, StatusCode: resp.StatusCode, Err: fmt.Errorf("%w: reading body: %v", ErrUpstreamDown, err)}
		}
		if int64(len(body)) > f.maxBodyBytes {
			return nil, &Error{URL: url, StatusCode: resp.StatusCode, Err: ErrBodyTooLarge}
		}
		return body, nil

	case resp.StatusCode == http.StatusNotFound:
		return nil, &Error{URL: url, StatusCode: resp.StatusCode, Err: ErrNotFound}

	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return nil, &Error{URL: url, StatusCode: resp.StatusCode, Err: ErrUnauthorized}

	case resp.StatusCode == http.StatusTooManyRequests:
		return nil, &Error{URL: url, StatusCode: resp.StatusCode, Err: ErrRateLimited}

	case resp.StatusCode >= 500:
		return nil, &Error{URL: url, StatusCode: resp.StatusCode, Err: ErrUpstreamDown}

	default:
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return nil, &Error{URL: url, StatusCode: resp.StatusCode, Err: fmt.Errorf("unexpected status: %s", bytes.TrimSpace(snippet))}
	}
}
