// Package vwo is the main package for the VWO feature management and
// experimentation SDK for server-side Go applications.
//
// Create a client with Init, then evaluate features with
// VWOClient.GetFlag and report conversions with VWOClient.TrackEvent:
//
//	client, err := vwo.Init(vwo.Config{
//	    AccountID: "123456",
//	    SDKKey:    "your-sdk-key",
//	})
//	if err != nil { ... }
//	defer client.Close()
//
//	flag := client.GetFlag("feature-key", vwo.NewContext("user-id"))
//	if flag.IsEnabled() { ... }
package vwo

import (
	"strings"

	"github.com/vwo/go-server-sdk/internal/datasource"
	"github.com/vwo/go-server-sdk/internal/decision"
	"github.com/vwo/go-server-sdk/internal/endpoints"
	"github.com/vwo/go-server-sdk/internal/events"
	"github.com/vwo/go-server-sdk/internal/gateway"
	"github.com/vwo/go-server-sdk/internal/hooks"
	"github.com/vwo/go-server-sdk/internal/storage"
)

// Init validates the configuration, loads the initial settings
// (synchronously, unless Config.InitialSettings seeds them), and starts
// the background machinery: the event pipeline and, when PollInterval
// is set, settings polling. The returned client is ready to use.
func Init(config Config) (*VWOClient, error) {
	config.applyDefaults()
	if err := config.validate(); err != nil {
		return nil, err
	}
	loggers := config.Loggers

	client := &VWOClient{
		accountID: config.AccountID,
		loggers:   loggers,
	}

	client.requestor = datasource.NewRequestor(datasource.RequestorConfig{
		AccountID:    config.AccountID,
		SDKKey:       config.SDKKey,
		BaseURL:      config.BaseURL,
		IsProduction: !config.IsDevelopmentMode,
		Timeout:      config.Timeout,
		HTTPClient:   config.HTTPClient,
		Loggers:      loggers,
	})

	if config.InitialSettings != nil {
		if err := client.applySettings(config.InitialSettings); err != nil {
			return nil, err
		}
	} else {
		raw, err := client.requestor.FetchSettings(false)
		if err != nil {
			loggers.Errorf("initial settings fetch failed: %s", err)
			return nil, err
		}
		if err := client.applySettings(raw); err != nil {
			return nil, err
		}
	}
	settings := client.currentSettings()

	var gatewayClient *gateway.Client
	if config.GatewayService.URL != "" {
		gc, err := gateway.NewClient(gateway.Options{
			URL:        config.GatewayService.URL,
			Timeout:    config.Timeout,
			HTTPClient: config.HTTPClient,
			Loggers:    loggers,
			AccountID:  config.AccountID,
			SDKKey:     config.SDKKey,
		})
		if err != nil {
			return nil, err
		}
		gatewayClient = gc
	}

	var batching *events.BatchConfig
	if config.BatchEvents != nil {
		batching = &events.BatchConfig{
			EventsPerRequest: config.BatchEvents.EventsPerRequest,
			RequestInterval:  config.BatchEvents.RequestInterval,
			FlushCallback:    config.BatchEvents.FlushCallback,
		}
	}
	processor, err := events.NewProcessor(events.Config{
		AccountID:  config.AccountID,
		SDKKey:     config.SDKKey,
		BaseURL:    eventsBaseURL(config.BaseURL, settings.CollectionPrefix),
		HTTPClient: config.HTTPClient,
		Loggers:    loggers,
		MaxWorkers: config.Threading.MaxWorkers,
		Batching:   batching,
		UsageStats: config.usageStats(),
	})
	if err != nil {
		return nil, err
	}
	client.eventsP = processor

	client.services = &decision.Services{
		Loggers: loggers,
		Storage: storage.NewService(config.Storage, loggers),
		Gateway: gatewayClient,
		Events:  processor,
		Hooks:   hooks.NewRunner(config.Integrations, loggers),
	}

	if config.PollInterval > 0 {
		client.polling = datasource.NewPollingProcessor(client.requestor, config.PollInterval,
			func(raw []byte) {
				if err := client.applySettings(raw); err != nil {
					loggers.Errorf("polled settings rejected: %s; keeping current settings", err)
				}
			}, loggers)
		closeWhenReady := make(chan struct{})
		client.polling.Start(closeWhenReady)
	}

	loggers.Infof("VWO client initialized for account %s", config.AccountID)
	return client, nil
}

// eventsBaseURL resolves the endpoint events are posted to, honoring a
// custom data endpoint and the account's collection prefix.
func eventsBaseURL(baseURL, collectionPrefix string) string {
	base := strings.TrimRight(baseURL, "/")
	if base == "" {
		base = endpoints.DefaultScheme + "://" + endpoints.DefaultHost
	} else if !strings.Contains(base, "://") {
		base = endpoints.DefaultScheme + "://" + base
	}
	if collectionPrefix != "" {
		base += "/" + strings.Trim(collectionPrefix, "/")
	}
	return base
}
