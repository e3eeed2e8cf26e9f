// Package datasource fetches and refreshes the account settings that
// drive every decision: a one-shot requestor against the settings
// endpoint and an optional polling processor that keeps the client's
// snapshot current.
package datasource

import (
	"fmt"
	"io"
	"math/rand"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/gregjones/httpcache"
	"github.com/launchdarkly/go-sdk-common/v3/ldlog"
	"golang.org/x/sync/singleflight"

	"github.com/vwo/go-server-sdk/internal/endpoints"
)

type httpStatusError struct {
	Code int
}

func (e httpStatusError) Error() string {
	return fmt.Sprintf("settings endpoint returned status %d", e.Code)
}

// RequestorConfig configures the settings requestor.
type RequestorConfig struct {
	AccountID string
	SDKKey    string

	// BaseURL is scheme + host; empty uses the default data endpoint.
	BaseURL string

	// CollectionPrefix is inserted between host and path when the
	// account is served from a dedicated collection.
	CollectionPrefix string

	// IsProduction appends s=prod so the endpoint serves production
	// settings.
	IsProduction bool

	Timeout    time.Duration
	HTTPClient *http.Client
	Loggers    ldlog.Loggers
}

// Requestor fetches raw settings documents. Responses ride through an
// in-memory caching transport so unchanged documents cost a
// conditional request, and concurrent fetches collapse into one.
type Requestor struct {
	cfg        RequestorConfig
	httpClient *http.Client
	loggers    ldlog.Loggers
	sf         singleflight.Group
}

func NewRequestor(cfg RequestorConfig) *Requestor {
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		timeout := cfg.Timeout
		if timeout == 0 {
			timeout = 10 * time.Second
		}
		cachingTransport := httpcache.NewMemoryCacheTransport()
		httpClient = cachingTransport.Client()
		httpClient.Timeout = timeout
	}
	return &Requestor{cfg: cfg, httpClient: httpClient, loggers: cfg.Loggers}
}

// FetchSettings retrieves the current settings document. viaWebhook
// uses the pull endpoint, which bypasses server-side caches after a
// webhook notification.
func (r *Requestor) FetchSettings(viaWebhook bool) ([]byte, error) {
	key := "settings"
	if viaWebhook {
		key = "webhook"
	}
	raw, err, _ := r.sf.Do(key, func() (interface{}, error) {
		return r.fetch(viaWebhook)
	})
	if err != nil {
		return nil, err
	}
	return raw.([]byte), nil
}

func (r *Requestor) fetch(viaWebhook bool) ([]byte, error) {
	req, err := http.NewRequest(http.MethodGet, r.settingsURL(viaWebhook), nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", endpoints.SDKName+"/"+endpoints.SDKVersion)

	resp, err := r.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		io.Copy(io.Discard, resp.Body)
		return nil, httpStatusError{Code: resp.StatusCode}
	}
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	return body, nil
}

func (r *Requestor) settingsURL(viaWebhook bool) string {
	base := strings.TrimRight(r.cfg.BaseURL, "/")
	if base == "" {
		base = endpoints.DefaultScheme + "://" + endpoints.DefaultHost
	} else if !strings.Contains(base, "://") {
		base = endpoints.DefaultScheme + "://" + base
	}
	if r.cfg.CollectionPrefix != "" {
		base += "/" + strings.Trim(r.cfg.CollectionPrefix, "/")
	}
	path := endpoints.SettingsPath
	if viaWebhook {
		path = endpoints.WebhookSettingsPath
	}

	q := url.Values{}
	q.Set("i", r.cfg.SDKKey)
	q.Set("r", strconv.FormatFloat(rand.Float64(), 'f', -1, 64))
	q.Set("a", r.cfg.AccountID)
	q.Set("platform", endpoints.Platform)
	q.Set("api-version", endpoints.APIVersion)
	q.Set("sn", endpoints.SDKName)
	q.Set("sv", endpoints.SDKVersion)
	if r.cfg.IsProduction {
		q.Set("s", "prod")
	}
	return base + path + "?" + q.Encode()
}
