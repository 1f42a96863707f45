// Package jenkins fetches the job, build and injected environment resources of a Jenkins server.
package jenkins

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"

	"github.com/CompassSecurity/envhunter/pkg/config"
	"github.com/CompassSecurity/envhunter/pkg/httpclient"
	"github.com/CompassSecurity/envhunter/pkg/scanner/types"
	"github.com/hashicorp/go-retryablehttp"
	"github.com/rs/zerolog/log"
	"github.com/tidwall/gjson"
)

const (
	jobListingPath   = "api/json?tree=jobs[name,url]"
	buildListingPath = "api/json?tree=builds[number,url]"
	injectedEnvPath  = "injectedEnvVars/api/json"
)

// ErrMalformedJSON is returned when a response body is not the expected JSON document.
var ErrMalformedJSON = errors.New("malformed JSON response")

// ErrResponseTooLarge is returned when a response body exceeds the configured limit.
var ErrResponseTooLarge = errors.New("response exceeds max response size")

// ErrUnexpectedStatus is wrapped by every StatusError.
var ErrUnexpectedStatus = errors.New("unexpected HTTP status")

// StatusError reports a non-success HTTP status.
type StatusError struct {
	StatusCode int
	URL        string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s %d from %s", ErrUnexpectedStatus, e.StatusCode, e.URL)
}

func (e *StatusError) Unwrap() error {
	return ErrUnexpectedStatus
}

// ClientOptions configures a Jenkins Client.
type ClientOptions struct {
	config.CommonScanOptions
	BaseURL  string
	Username string
	Token    string
}

// Client fetches Jenkins JSON resources with two failure policies: strict fetches
// return every failure to the caller, lenient fetches turn failures into empty results.
type Client struct {
	baseURL         string
	strict          *retryablehttp.Client
	lenient         *retryablehttp.Client
	maxResponseSize int64
}

// NewClient creates a Client. Strict requests are attempted exactly once,
// lenient requests are retried up to opts.Retries times.
func NewClient(opts ClientOptions) (*Client, error) {
	if err := config.ValidateURL(opts.BaseURL, "Jenkins URL"); err != nil {
		return nil, err
	}

	headers := map[string]string{"Accept": "application/json"}
	if opts.Username != "" || opts.Token != "" {
		headers["Authorization"] = BasicAuthHeader(opts.Username, opts.Token)
	}

	transport := httpclient.NewTransport(headers)
	return &Client{
		baseURL: opts.BaseURL,
		strict: httpclient.GetEnvHunterHTTPClient(httpclient.ClientOptions{
			RetryMax:  0,
			Timeout:   opts.RequestTimeout,
			Transport: transport,
		}),
		lenient: httpclient.GetEnvHunterHTTPClient(httpclient.ClientOptions{
			RetryMax:  opts.Retries,
			Timeout:   opts.RequestTimeout,
			Transport: transport,
		}),
		maxResponseSize: opts.MaxResponseSize,
	}, nil
}

// BasicAuthHeader builds the value of a basic Authorization header.
func BasicAuthHeader(username string, token string) string {
	return "Basic " + base64.StdEncoding.EncodeToString([]byte(username+":"+token))
}

// GetJSON performs a strict fetch: transport errors, non-2xx statuses and
// invalid JSON bodies are all returned as errors.
func (c *Client) GetJSON(ctx context.Context, reqUrl string) ([]byte, error) {
	return c.fetch(ctx, c.strict, reqUrl)
}

// GetJSONLenient performs a lenient fetch: every failure yields nil.
// A missing resource is an expected condition and only logged at debug level.
func (c *Client) GetJSONLenient(ctx context.Context, reqUrl string) []byte {
	body, err := c.fetch(ctx, c.lenient, reqUrl)
	if err != nil {
		var statusErr *StatusError
		if errors.As(err, &statusErr) && statusErr.StatusCode == http.StatusNotFound {
			log.Debug().Str("url", reqUrl).Msg("Resource not present")
		} else {
			log.Debug().Err(err).Str("url", reqUrl).Msg("Lenient fetch failed, treating as empty")
		}
		return nil
	}
	return body
}

func (c *Client) fetch(ctx context.Context, client *retryablehttp.Client, reqUrl string) ([]byte, error) {
	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodGet, reqUrl, nil)
	if err != nil {
		return nil, fmt.Errorf("failed creating request for %s: %w", reqUrl, err)
	}

	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("GET %s: %w", reqUrl, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &StatusError{StatusCode: resp.StatusCode, URL: reqUrl}
	}

	var reader io.Reader = resp.Body
	if c.maxResponseSize > 0 {
		reader = io.LimitReader(resp.Body, c.maxResponseSize+1)
	}

	body, err := io.ReadAll(reader)
	if err != nil {
		return nil, fmt.Errorf("failed reading body of %s: %w", reqUrl, err)
	}

	if c.maxResponseSize > 0 && int64(len(body)) > c.maxResponseSize {
		return nil, fmt.Errorf("%w (%d bytes): %s", ErrResponseTooLarge, c.maxResponseSize, reqUrl)
	}

	if !gjson.ValidBytes(body) {
		return nil, fmt.Errorf("%w: %s", ErrMalformedJSON, reqUrl)
	}

	return body, nil
}

// ListJobs fetches the top level job listing.
func (c *Client) ListJobs(ctx context.Context) ([]Job, error) {
	reqUrl, err := JoinURL(c.baseURL, jobListingPath)
	if err != nil {
		return nil, fmt.Errorf("invalid Jenkins URL: %w", err)
	}

	body, err := c.GetJSON(ctx, reqUrl)
	if err != nil {
		return nil, fmt.Errorf("failed listing jobs: %w", err)
	}

	listing := gjson.GetBytes(body, "jobs")
	if !listing.IsArray() {
		return nil, fmt.Errorf("failed listing jobs: %w: no jobs array in %s", ErrMalformedJSON, reqUrl)
	}

	jobs := []Job{}
	var resolveErr error
	listing.ForEach(func(_, value gjson.Result) bool {
		job := Job{Name: value.Get("name").String()}
		job.URL, resolveErr = c.resolveJobURL(job.Name, value.Get("url").String())
		if resolveErr != nil {
			return false
		}
		jobs = append(jobs, job)
		return true
	})
	if resolveErr != nil {
		return nil, fmt.Errorf("failed listing jobs: %w", resolveErr)
	}

	return jobs, nil
}

func (c *Client) resolveJobURL(name string, jobUrl string) (string, error) {
	if jobUrl == "" {
		jobUrl = "job/" + url.PathEscape(name) + "/"
	}
	return JoinURL(c.baseURL, jobUrl)
}

// ListBuilds fetches the build listing of a job in server order.
func (c *Client) ListBuilds(ctx context.Context, job Job) ([]Build, error) {
	reqUrl, err := JoinURL(job.URL, buildListingPath)
	if err != nil {
		return nil, fmt.Errorf("invalid job URL %q: %w", job.URL, err)
	}

	body, err := c.GetJSON(ctx, reqUrl)
	if err != nil {
		return nil, fmt.Errorf("failed listing builds of %s: %w", job.Name, err)
	}

	listing := gjson.GetBytes(body, "builds")
	if !listing.Exists() || listing.Type == gjson.Null {
		return []Build{}, nil
	}
	if !listing.IsArray() {
		return nil, fmt.Errorf("failed listing builds of %s: %w: builds is not an array", job.Name, ErrMalformedJSON)
	}

	builds := []Build{}
	var resolveErr error
	listing.ForEach(func(_, value gjson.Result) bool {
		build := Build{Number: int(value.Get("number").Int())}
		buildUrl := value.Get("url").String()
		if buildUrl == "" {
			buildUrl = strconv.Itoa(build.Number) + "/"
		}
		build.URL, resolveErr = JoinURL(job.URL, buildUrl)
		if resolveErr != nil {
			return false
		}
		builds = append(builds, build)
		return true
	})
	if resolveErr != nil {
		return nil, fmt.Errorf("failed listing builds of %s: %w", job.Name, resolveErr)
	}

	return builds, nil
}

// GetInjectedEnv fetches the injected environment variables of a build.
// Builds without the resource, or with an unreadable one, yield an empty snapshot.
func (c *Client) GetInjectedEnv(ctx context.Context, build Build) types.EnvSnapshot {
	reqUrl, err := JoinURL(build.URL, injectedEnvPath)
	if err != nil {
		log.Debug().Err(err).Str("build", build.URL).Msg("Invalid build URL")
		return types.EnvSnapshot{}
	}

	body := c.GetJSONLenient(ctx, reqUrl)
	if body == nil {
		return types.EnvSnapshot{}
	}

	return ParseEnvMap(body)
}

// ParseEnvMap extracts the envMap object of an injected environment document,
// keeping the document order of the variables.
func ParseEnvMap(body []byte) types.EnvSnapshot {
	snapshot := types.EnvSnapshot{}
	envMap := gjson.GetBytes(body, "envMap")
	if !envMap.IsObject() {
		return snapshot
	}

	seen := map[string]int{}
	envMap.ForEach(func(key, value gjson.Result) bool {
		v := types.EnvVar{Key: key.String(), Value: value.String(), Raw: value.Raw}
		// duplicate keys in the document: the last one wins, like a JSON decoder
		if idx, ok := seen[v.Key]; ok {
			snapshot[idx] = v
			return true
		}
		seen[v.Key] = len(snapshot)
		snapshot = append(snapshot, v)
		return true
	})

	return snapshot
}
