// Package gateway talks to a self-hosted VWO gateway service, which
// resolves targeting inputs the SDK cannot compute locally: user-agent
// parsing, IP geolocation, remote list membership, and user aliasing.
package gateway

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/launchdarkly/ccache"
	"github.com/launchdarkly/go-sdk-common/v3/ldlog"

	"github.com/vwo/go-server-sdk/internal/datamodel"
	"github.com/vwo/go-server-sdk/internal/endpoints"
)

const (
	defaultTimeout    = 5 * time.Second
	userDataCacheTTL  = time.Minute
	userDataCacheSize = 1000

	retryInitialInterval = 2 * time.Second
	retryMaxAttempts     = 3
)

// Options configures the gateway client.
type Options struct {
	// URL is the gateway base address. A missing scheme defaults to
	// https.
	URL string

	Timeout    time.Duration
	HTTPClient *http.Client
	Loggers    ldlog.Loggers

	AccountID string
	SDKKey    string
}

// Client is a thin HTTP client for the gateway endpoints. User-data
// lookups are cached briefly since the same visitor tends to generate
// bursts of decisions.
type Client struct {
	baseURL       *url.URL
	httpClient    *http.Client
	loggers       ldlog.Loggers
	accountID     string
	sdkKey        string
	userDataCache *ccache.Cache
}

// NewClient validates the gateway address and builds a client.
func NewClient(opts Options) (*Client, error) {
	raw := strings.TrimRight(opts.URL, "/")
	if raw == "" {
		return nil, fmt.Errorf("gateway service URL is empty")
	}
	if !strings.Contains(raw, "://") {
		raw = endpoints.DefaultScheme + "://" + raw
	}
	base, err := url.Parse(raw)
	if err != nil || base.Host == "" {
		return nil, fmt.Errorf("invalid gateway service URL %q", opts.URL)
	}
	httpClient := opts.HTTPClient
	if httpClient == nil {
		timeout := opts.Timeout
		if timeout == 0 {
			timeout = defaultTimeout
		}
		httpClient = &http.Client{Timeout: timeout}
	}
	return &Client{
		baseURL:       base,
		httpClient:    httpClient,
		loggers:       opts.Loggers,
		accountID:     opts.AccountID,
		sdkKey:        opts.SDKKey,
		userDataCache: ccache.New(ccache.Configure().MaxSize(userDataCacheSize)),
	}, nil
}

// UserData resolves location and user-agent details for a visitor.
func (c *Client) UserData(userAgent, ipAddress string) (*datamodel.GatewayData, error) {
	cacheKey := userAgent + "\x00" + ipAddress
	if item := c.userDataCache.Get(cacheKey); item != nil && !item.Expired() {
		return item.Value().(*datamodel.GatewayData), nil
	}

	params := url.Values{}
	if userAgent != "" {
		params.Set("userAgent", userAgent)
	}
	if ipAddress != "" {
		params.Set("ipAddress", ipAddress)
	}
	body, err := c.get(endpoints.GatewayUserDataPath, params)
	if err != nil {
		return nil, err
	}
	var data datamodel.GatewayData
	if err := json.Unmarshal(body, &data); err != nil {
		return nil, fmt.Errorf("malformed gateway user-data response: %w", err)
	}
	c.userDataCache.Set(cacheKey, &data, userDataCacheTTL)
	return &data, nil
}

// CheckListAttribute reports whether the attribute value belongs to a
// remote list. Transport failures and explicit "false" responses both
// yield false, so inlist predicates fail closed.
func (c *Client) CheckListAttribute(attribute, listID string) bool {
	params := url.Values{}
	params.Set("attribute", attribute)
	params.Set("listId", listID)
	params.Set("accountId", c.accountID)
	body, err := c.get(endpoints.GatewayCheckAttributePath, params)
	if err != nil {
		c.loggers.Warnf("gateway attribute check failed for list %q: %s", listID, err)
		return false
	}
	return strings.TrimSpace(string(body)) != "false"
}

// GetAlias resolves a provisional user id to its canonical alias, or
// returns the input unchanged when no alias exists.
func (c *Client) GetAlias(userID string) (string, error) {
	params := url.Values{}
	params.Set("userId", userID)
	params.Set("accountId", c.accountID)
	body, err := c.get(endpoints.GatewayGetAliasPath, params)
	if err != nil {
		return "", err
	}
	var resp struct {
		Alias string `json:"alias"`
	}
	if err := json.Unmarshal(body, &resp); err != nil || resp.Alias == "" {
		return userID, nil
	}
	return resp.Alias, nil
}

// SetAlias links a provisional user id to a canonical one.
func (c *Client) SetAlias(tempUserID, userID string) error {
	params := url.Values{}
	params.Set("tempUserId", tempUserID)
	params.Set("userId", userID)
	params.Set("accountId", c.accountID)
	_, err := c.get(endpoints.GatewaySetAliasPath, params)
	return err
}

// get performs a GET with bounded retries. Responses other than 200 are
// terminal; network errors retry with exponential backoff and jitter.
func (c *Client) get(path string, params url.Values) ([]byte, error) {
	u := *c.baseURL
	u.Path = strings.TrimRight(u.Path, "/") + path
	u.RawQuery = params.Encode()

	var body []byte
	operation := func() error {
		req, err := http.NewRequest(http.MethodGet, u.String(), nil)
		if err != nil {
			return backoff.Permanent(err)
		}
		if c.sdkKey != "" {
			req.Header.Set("Authorization", c.sdkKey)
		}
		resp, err := c.httpClient.Do(req)
		if err != nil {
			return err
		}
		defer resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			io.Copy(io.Discard, resp.Body)
			return backoff.Permanent(fmt.Errorf("gateway returned status %d for %s", resp.StatusCode, path))
		}
		body, err = io.ReadAll(resp.Body)
		if err != nil {
			return err
		}
		return nil
	}

	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = retryInitialInterval
	if err := backoff.Retry(operation, backoff.WithMaxRetries(bo, retryMaxAttempts)); err != nil {
		return nil, err
	}
	return body, nil
}
