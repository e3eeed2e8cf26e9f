package vwo

import (
	"net/http"
	"time"

	"github.com/launchdarkly/go-sdk-common/v3/ldlog"

	"github.com/vwo/go-server-sdk/interfaces"
)

const (
	// MinimumPollInterval is the shortest allowed settings poll cycle.
	MinimumPollInterval = time.Second

	defaultTimeout = 10 * time.Second
)

// GatewayServiceConfig points the SDK at a self-hosted gateway service
// for location, user-agent, and remote-list targeting.
type GatewayServiceConfig struct {
	// URL is the gateway base address; a missing scheme defaults to
	// https.
	URL string
}

// BatchEventsConfig turns on client-side event batching.
type BatchEventsConfig struct {
	// EventsPerRequest is the batch size that triggers a flush
	// (default 100, maximum 5000).
	EventsPerRequest int

	// RequestInterval flushes partial batches on a timer (default
	// 600s).
	RequestInterval time.Duration

	// FlushCallback observes every flush attempt.
	FlushCallback func(err error, count int)
}

// ThreadingConfig bounds the event delivery worker pool.
type ThreadingConfig struct {
	// MaxWorkers is the number of concurrent event deliveries
	// (default 4).
	MaxWorkers int
}

// Config is the SDK's initialization configuration. AccountID and
// SDKKey are required; everything else has working defaults.
type Config struct {
	// AccountID is the VWO account identifier.
	AccountID string

	// SDKKey is the environment's server-side key. It authenticates
	// settings and event requests.
	SDKKey string

	// PollInterval enables background settings polling when positive.
	// Zero leaves the snapshot fixed until UpdateSettings is called.
	PollInterval time.Duration

	// Loggers configures SDK logging. The zero value logs at Info
	// level to standard error.
	Loggers ldlog.Loggers

	// Storage persists decisions so users keep their variations across
	// calls and processes. Optional.
	Storage interfaces.StorageConnector

	// GatewayService is required for location, user-agent, and
	// remote-list targeting. Optional.
	GatewayService GatewayServiceConfig

	// Integrations receives a description of every decision the SDK
	// makes. Optional.
	Integrations func(decision map[string]interface{})

	// BatchEvents batches tracking calls instead of delivering each
	// one individually. Optional.
	BatchEvents *BatchEventsConfig

	// Threading bounds event delivery concurrency.
	Threading ThreadingConfig

	// InitialSettings seeds the client with a settings document
	// instead of fetching one at startup; used with local files and in
	// tests.
	InitialSettings []byte

	// BaseURL overrides the VWO data endpoint (scheme optional).
	BaseURL string

	// IsDevelopmentMode requests non-production settings.
	IsDevelopmentMode bool

	// IsUsageStatsDisabled stops the SDK from reporting which optional
	// capabilities are configured.
	IsUsageStatsDisabled bool

	// Timeout bounds each HTTP request (default 10s).
	Timeout time.Duration

	// HTTPClient overrides the transport for all SDK requests.
	// Optional.
	HTTPClient *http.Client
}

func (c *Config) applyDefaults() {
	if c.Timeout == 0 {
		c.Timeout = defaultTimeout
	}
	if c.Threading.MaxWorkers <= 0 {
		c.Threading.MaxWorkers = 4
	}
}

func (c *Config) validate() error {
	if c.AccountID == "" {
		return ErrMissingAccountID
	}
	if c.SDKKey == "" {
		return ErrMissingSDKKey
	}
	if c.PollInterval != 0 && c.PollInterval < MinimumPollInterval {
		return ErrInvalidPollInterval
	}
	return nil
}

// usageStats summarizes the optional capabilities in use; it rides on
// impression events so capability adoption is measurable server-side.
func (c *Config) usageStats() map[string]interface{} {
	if c.IsUsageStatsDisabled {
		return nil
	}
	stats := map[string]interface{}{}
	if c.Storage != nil {
		stats["ss"] = 1
	}
	if c.Integrations != nil {
		stats["ig"] = 1
	}
	if c.BatchEvents != nil {
		stats["eb"] = 1
	}
	if c.GatewayService.URL != "" {
		stats["gs"] = 1
	}
	if c.PollInterval > 0 {
		stats["pi"] = 1
	}
	if len(stats) > 0 {
		stats["_l"] = 1
	}
	return stats
}
