// Package httpclient provides the centralized HTTP client configuration for envhunter.
// It offers a retryable HTTP client with default headers, request logging and proxy configuration.
package httpclient

import (
	"context"
	"crypto/tls"
	"net/http"
	"net/url"
	"os"
	"sync/atomic"
	"time"

	"github.com/hashicorp/go-retryablehttp"
	"github.com/rs/zerolog/log"
)

// ignoreProxy controls whether the HTTP_PROXY environment variable should be ignored.
var ignoreProxy atomic.Bool

// SetIgnoreProxy sets whether to ignore the HTTP_PROXY environment variable.
func SetIgnoreProxy(ignore bool) {
	ignoreProxy.Store(ignore)
}

// HeaderRoundTripper is an http.RoundTripper that adds default headers to requests.
// Headers are only added if they're not already present in the request.
type HeaderRoundTripper struct {
	Headers map[string]string
	Next    http.RoundTripper
}

func (hrt *HeaderRoundTripper) RoundTrip(req *http.Request) (*http.Response, error) {
	if hrt.Next == nil {
		return nil, http.ErrNotSupported
	}

	for k, v := range hrt.Headers {
		if req.Header.Get(k) == "" {
			req.Header.Set(k, v)
		}
	}

	return hrt.Next.RoundTrip(req)
}

// ClientOptions tunes a client returned by GetEnvHunterHTTPClient.
type ClientOptions struct {
	// DefaultHeaders are added to every request unless already present
	DefaultHeaders map[string]string
	// RetryMax is the number of retries after the first attempt, 0 disables retries
	RetryMax int
	// Timeout bounds a single attempt, 0 means no timeout
	Timeout time.Duration
	// Transport is shared between clients when set, DefaultHeaders are then ignored
	Transport http.RoundTripper
}

// GetEnvHunterHTTPClient creates a retryable HTTP client.
// It supports:
//   - Custom default headers (used for the Authorization header)
//   - Bounded retries for 429 and 5xx errors (except 501)
//   - Debug logging of every attempt and its response status
//   - HTTP proxy support via HTTP_PROXY environment variable (unless SetIgnoreProxy(true) is called)
//   - TLS certificate verification bypass (InsecureSkipVerify)
//
// Failed responses are passed through to the caller instead of being replaced by a
// generic "giving up" error, so status codes stay visible.
func GetEnvHunterHTTPClient(opts ClientOptions) *retryablehttp.Client {
	client := retryablehttp.NewClient()
	client.Logger = nil
	client.RetryMax = opts.RetryMax
	client.RetryWaitMin = 500 * time.Millisecond
	client.RetryWaitMax = 5 * time.Second
	client.HTTPClient.Timeout = opts.Timeout
	client.ErrorHandler = retryablehttp.PassthroughErrorHandler
	client.CheckRetry = checkRetry

	client.RequestLogHook = func(_ retryablehttp.Logger, req *http.Request, attempt int) {
		log.Debug().Str("method", req.Method).Str("url", req.URL.String()).Int("attempt", attempt).Msg("HTTP request")
	}
	client.ResponseLogHook = func(_ retryablehttp.Logger, resp *http.Response) {
		event := log.Debug().Int("status", resp.StatusCode)
		if resp.Request != nil && resp.Request.URL != nil {
			event = event.Str("method", resp.Request.Method).Str("url", resp.Request.URL.String())
		}
		event.Msg("HTTP response")
	}

	client.HTTPClient.Transport = opts.Transport
	if client.HTTPClient.Transport == nil {
		client.HTTPClient.Transport = NewTransport(opts.DefaultHeaders)
	}
	return client
}

// NewTransport creates the header adding transport used by every client.
// Clients sharing one transport also share its connection pool.
func NewTransport(defaultHeaders map[string]string) http.RoundTripper {
	// #nosec G402 - InsecureSkipVerify required for security scanning tool to connect to untrusted targets
	tr := &http.Transport{TLSClientConfig: &tls.Config{InsecureSkipVerify: true}}

	if !ignoreProxy.Load() {
		proxyServer, useHttpProxy := os.LookupEnv("HTTP_PROXY")
		if useHttpProxy {
			proxyUrl, err := url.Parse(proxyServer)
			if err != nil {
				log.Fatal().Err(err).Str("HTTP_PROXY", proxyServer).Msg("Invalid Proxy URL in HTTP_PROXY environment variable")
			}
			log.Info().Str("proxy", proxyUrl.String()).Msg("Using HTTP_PROXY")
			tr.Proxy = http.ProxyURL(proxyUrl)
		}
	}

	return &HeaderRoundTripper{Headers: defaultHeaders, Next: tr}
}

func checkRetry(ctx context.Context, resp *http.Response, err error) (bool, error) {
	if ctx != nil && ctx.Err() != nil {
		return false, ctx.Err()
	}

	if err != nil {
		log.Debug().Err(err).Msg("HTTP request failed")
		return true, nil
	}

	if resp == nil {
		return false, nil
	}

	if resp.StatusCode == http.StatusTooManyRequests || (resp.StatusCode >= 500 && resp.StatusCode != http.StatusNotImplemented) {
		reqUrl := ""
		if resp.Request != nil && resp.Request.URL != nil {
			reqUrl = resp.Request.URL.String()
		}
		log.Trace().Str("url", reqUrl).Int("statusCode", resp.StatusCode).Msg("Retryable HTTP status")
		return true, nil
	}

	return false, nil
}
