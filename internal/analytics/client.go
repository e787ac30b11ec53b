package analytics

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"

	"github.com/haven/analytics-sync/internal/pkg/logger"
	"github.com/haven/analytics-sync/internal/pkg/retry"
)

const (
	// DefaultBaseURL is the Analytics Reporting API v4 endpoint root.
	DefaultBaseURL = "https://analyticsreporting.googleapis.com"
	// ReadonlyScope is the OAuth scope for report reads.
	ReadonlyScope = "https://www.googleapis.com/auth/analytics.readonly"

	batchGetPath = "/v4/reports:batchGet"
	// maxPages guards against a server that keeps returning page tokens.
	maxPages = 1000
)

// Config configures the API client.
type Config struct {
	BaseURL        string
	TimeoutSeconds int
	HTTPRetries    int
	// CredentialsJSON is a service-account key document.
	CredentialsJSON []byte
}

// APIError is a non-2xx response from the API.
type APIError struct {
	StatusCode int
	Status     string
	Message    string
}

func (e *APIError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("analytics API error (status %d %s): %s", e.StatusCode, e.Status, e.Message)
	}
	return fmt.Sprintf("analytics API error (status %d)", e.StatusCode)
}

// Client calls the Analytics Reporting API.
type Client struct {
	baseURL    string
	httpClient retry.HTTPDoer
}

// NewClient creates a client authenticated with the service account in cfg.
func NewClient(ctx context.Context, cfg Config) (*Client, error) {
	creds, err := google.CredentialsFromJSON(ctx, cfg.CredentialsJSON, ReadonlyScope)
	if err != nil {
		return nil, fmt.Errorf("parsing service account credentials: %w", err)
	}

	timeout := time.Duration(cfg.TimeoutSeconds) * time.Second
	if timeout == 0 {
		timeout = 60 * time.Second
	}
	authed := oauth2.NewClient(ctx, creds.TokenSource)
	authed.Timeout = timeout

	c := newClient(cfg.BaseURL, retry.NewClient(authed, cfg.HTTPRetries))
	logger.Info("analytics client initialized", "base_url", c.baseURL, "project_id", creds.ProjectID)
	return c, nil
}

// NewClientWithHTTP creates an unauthenticated client over doer. Used with
// pre-authenticated transports and in tests.
func NewClientWithHTTP(baseURL string, doer retry.HTTPDoer) *Client {
	return newClient(baseURL, doer)
}

func newClient(baseURL string, doer retry.HTTPDoer) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	return &Client{baseURL: baseURL, httpClient: doer}
}

// SetHTTPClient sets a custom HTTP client (useful for testing)
func (c *Client) SetHTTPClient(client retry.HTTPDoer) {
	c.httpClient = client
}

// BatchGet executes a single reports:batchGet call.
func (c *Client) BatchGet(ctx context.Context, body BatchGetRequest) (*Response, error) {
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request body: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+batchGetPath, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		apiErr := &APIError{StatusCode: resp.StatusCode}
		var env errorEnvelope
		if json.Unmarshal(respBody, &env) == nil {
			apiErr.Status = env.Error.Status
			apiErr.Message = env.Error.Message
		}
		return nil, apiErr
	}

	var out Response
	if err := json.Unmarshal(respBody, &out); err != nil {
		return nil, fmt.Errorf("failed to parse response: %w", err)
	}
	return &out, nil
}

// FetchAll runs req and follows nextPageToken until the report is complete,
// returning one Response per page.
func (c *Client) FetchAll(ctx context.Context, req ReportRequest) ([]Response, error) {
	var pages []Response
	for page := 0; page < maxPages; page++ {
		resp, err := c.BatchGet(ctx, BatchGetRequest{ReportRequests: []ReportRequest{req}})
		if err != nil {
			return nil, err
		}
		pages = append(pages, *resp)

		next := nextPageToken(resp)
		if next == "" {
			return pages, nil
		}
		logger.Debug("following page token", "view_id", req.ViewID, "page", page+2)
		req.PageToken = next
	}
	return nil, fmt.Errorf("report for view %s exceeded %d pages", req.ViewID, maxPages)
}

func nextPageToken(resp *Response) string {
	for _, r := range resp.Reports {
		if r.NextPageToken != "" {
			return r.NextPageToken
		}
	}
	return ""
}

// ServiceAccount holds the fields of a service-account key document.
type ServiceAccount struct {
	Type                    string `json:"type"`
	ProjectID               string `json:"project_id"`
	PrivateKeyID            string `json:"private_key_id"`
	PrivateKey              string `json:"private_key"`
	ClientEmail             string `json:"client_email"`
	ClientID                string `json:"client_id"`
	AuthURI                 string `json:"auth_uri"`
	TokenURI                string `json:"token_uri"`
	AuthProviderX509CertURL string `json:"auth_provider_x509_cert_url"`
	ClientX509CertURL       string `json:"client_x509_cert_url"`
	UniverseDomain          string `json:"universe_domain,omitempty"`
}

// JSON renders the key document accepted by google.CredentialsFromJSON.
func (sa ServiceAccount) JSON() ([]byte, error) {
	if sa.Type == "" {
		sa.Type = "service_account"
	}
	if sa.UniverseDomain == "" {
		sa.UniverseDomain = "googleapis.com"
	}
	if sa.ClientEmail == "" || sa.PrivateKey == "" {
		return nil, fmt.Errorf("service account requires client_email and private_key")
	}
	return json.Marshal(sa)
}

// LoadCredentials returns the key file at path, or the document built from
// sa when path is empty.
func LoadCredentials(path string, sa ServiceAccount) ([]byte, error) {
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading credentials file: %w", err)
		}
		return data, nil
	}
	return sa.JSON()
}
