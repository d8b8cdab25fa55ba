// Package fetch gets resources from the origin web server.
package fetch

//go:generate mockgen -source=fetch.go -destination=mocks/mock_fetcher.go -package=mocks

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/aceeric/shellcache/impl/metrics"
	"github.com/aceeric/shellcache/impl/resourcekey"
	"github.com/aceeric/shellcache/impl/store"

	log "github.com/sirupsen/logrus"
	"golang.org/x/time/rate"
)

// ErrNetwork means the origin could not be reached or the response could not be read.
// A response with a non-2xx status is not a network error.
var ErrNetwork = errors.New("network error")

// Fetcher fetches the resource with the passed logical key from the origin. If reload
// is true then any HTTP cache between the gateway and the origin is bypassed.
type Fetcher interface {
	Fetch(ctx context.Context, key string, reload bool) (store.Response, error)
}

// Opts configures an HTTPFetcher
type Opts struct {
	// Origin is the origin base URL, e.g. https://app.example.com
	Origin string
	// Timeout bounds each fetch. Zero means no timeout.
	Timeout time.Duration
	// TlsCfg is the client TLS config. Nil uses the Go defaults.
	TlsCfg *tls.Config
	// RateLimit caps fetches per second. Zero means no limit.
	RateLimit int64
}

// HTTPFetcher fetches from an origin over HTTP(S)
type HTTPFetcher struct {
	origin  string
	client  *http.Client
	limiter *rate.Limiter
}

// NewHTTPFetcher creates an HTTPFetcher from the passed options
func NewHTTPFetcher(opts Opts) (*HTTPFetcher, error) {
	if opts.Origin == "" {
		return nil, errors.New("origin url is required")
	}
	if !strings.HasPrefix(opts.Origin, "http://") && !strings.HasPrefix(opts.Origin, "https://") {
		return nil, fmt.Errorf("origin url must be http or https: %s", opts.Origin)
	}
	transport := http.DefaultTransport.(*http.Transport).Clone()
	if opts.TlsCfg != nil {
		transport.TLSClientConfig = opts.TlsCfg
	}
	f := &HTTPFetcher{
		origin: strings.TrimSuffix(opts.Origin, "/"),
		client: &http.Client{Transport: transport, Timeout: opts.Timeout},
	}
	if opts.RateLimit > 0 {
		f.limiter = rate.NewLimiter(rate.Limit(opts.RateLimit), int(opts.RateLimit))
	}
	return f, nil
}

// Origin returns the origin base URL
func (f *HTTPFetcher) Origin() string {
	return f.origin
}

// Fetch implements the Fetcher interface. The response is fully read into memory.
func (f *HTTPFetcher) Fetch(ctx context.Context, key string, reload bool) (store.Response, error) {
	if f.limiter != nil {
		if err := f.limiter.Wait(ctx); err != nil {
			return store.Response{}, fmt.Errorf("%w: %s", ErrNetwork, err)
		}
	}
	url := f.origin + resourcekey.ToPath(key)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return store.Response{}, err
	}
	if reload {
		req.Header.Set("Cache-Control", "no-cache")
		req.Header.Set("Pragma", "no-cache")
	}
	metrics.IncNetworkFetches()
	log.Debugf("fetching %s (reload: %t)", url, reload)
	resp, err := f.client.Do(req)
	if err != nil {
		metrics.IncFetchErrors()
		return store.Response{}, fmt.Errorf("%w: %s", ErrNetwork, err)
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		metrics.IncFetchErrors()
		return store.Response{}, fmt.Errorf("%w: error reading %s: %s", ErrNetwork, url, err)
	}
	return store.Response{
		Status: resp.StatusCode,
		Header: resp.Header.Clone(),
		Body:   body,
		Stored: time.Now(),
	}, nil
}
