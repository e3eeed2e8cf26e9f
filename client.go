package vwo

import (
	"sync"
	"sync/atomic"

	"github.com/launchdarkly/go-sdk-common/v3/ldlog"

	"github.com/vwo/go-server-sdk/internal/datamodel"
	"github.com/vwo/go-server-sdk/internal/datasource"
	"github.com/vwo/go-server-sdk/internal/decision"
	"github.com/vwo/go-server-sdk/internal/events"
)

// VWOClient is the SDK's entry point for flag decisions and event
// tracking. Construct one with Init and share it across goroutines; all
// methods are safe for concurrent use. Decisions read an immutable
// settings snapshot, so a settings refresh never disturbs in-flight
// evaluations.
type VWOClient struct {
	accountID string
	loggers   ldlog.Loggers

	// settings holds the current *datamodel.Settings snapshot.
	settings atomic.Value

	services  *decision.Services
	eventsP   *events.Processor
	requestor *datasource.Requestor
	polling   *datasource.PollingProcessor

	closed    bool
	closeOnce sync.Once
	closeMu   sync.RWMutex
}

func (c *VWOClient) currentSettings() *datamodel.Settings {
	s, _ := c.settings.Load().(*datamodel.Settings)
	return s
}

// GetFlag evaluates a feature for the user and returns its state and
// variables. Errors never escape: a bad key, missing settings, or an
// internal failure all yield a disabled Flag.
func (c *VWOClient) GetFlag(featureKey string, ctx Context) Flag {
	defer func() {
		if p := recover(); p != nil {
			c.loggers.Errorf("GetFlag(%q) panicked: %v; returning disabled flag", featureKey, p)
		}
	}()

	if featureKey == "" {
		c.loggers.Error("GetFlag called with an empty feature key")
		return Flag{}
	}
	if ctx.ID == "" {
		c.loggers.Errorf("GetFlag(%q) called without a user id", featureKey)
		return Flag{}
	}
	settings := c.currentSettings()
	if settings == nil {
		c.loggers.Errorf("GetFlag(%q): no settings available; returning disabled flag", featureKey)
		return Flag{}
	}

	user := ctx.toUserContext(settings.AccountID)
	result := decision.GetFlag(featureKey, settings, user, c.services)
	return newFlag(result.Enabled, result.Variables)
}

// TrackEvent reports a conversion event with optional event properties.
// The returned map carries the event name and whether it was accepted;
// events not attached to any feature metric are rejected.
func (c *VWOClient) TrackEvent(eventName string, ctx Context, eventProperties map[string]interface{}) (status map[string]bool) {
	status = map[string]bool{eventName: false}
	defer func() {
		if p := recover(); p != nil {
			c.loggers.Errorf("TrackEvent(%q) panicked: %v", eventName, p)
		}
	}()

	if eventName == "" || ctx.ID == "" {
		c.loggers.Error("TrackEvent requires an event name and a user id")
		return status
	}
	settings := c.currentSettings()
	if settings == nil {
		c.loggers.Errorf("TrackEvent(%q): no settings available", eventName)
		return status
	}
	if !settings.EventBelongsToAnyFeature(eventName) {
		c.loggers.Errorf("event %q is not configured as a metric of any feature", eventName)
		return status
	}

	user := ctx.toUserContext(settings.AccountID)
	if c.eventsP != nil {
		c.eventsP.SendGoal(eventName, user, eventProperties)
	}
	c.services.Hooks.Execute(map[string]interface{}{
		"api":       "TRACK_EVENT",
		"eventName": eventName,
		"userId":    ctx.ID,
	})
	status[eventName] = true
	return status
}

// SetAttribute syncs one visitor attribute.
func (c *VWOClient) SetAttribute(key string, value interface{}, ctx Context) {
	c.SetAttributes(map[string]interface{}{key: value}, ctx)
}

// SetAttributes syncs a set of visitor attributes in one event.
func (c *VWOClient) SetAttributes(attributes map[string]interface{}, ctx Context) {
	defer func() {
		if p := recover(); p != nil {
			c.loggers.Errorf("SetAttributes panicked: %v", p)
		}
	}()

	if len(attributes) == 0 || ctx.ID == "" {
		c.loggers.Error("SetAttributes requires attributes and a user id")
		return
	}
	for k, v := range attributes {
		if k == "" || v == nil {
			c.loggers.Errorf("SetAttributes: dropping attribute %q with missing key or value", k)
			delete(attributes, k)
		}
	}
	if len(attributes) == 0 {
		return
	}
	settings := c.currentSettings()
	if settings == nil {
		c.loggers.Error("SetAttributes: no settings available")
		return
	}
	user := ctx.toUserContext(settings.AccountID)
	if c.eventsP != nil {
		c.eventsP.SendAttributes(user, attributes)
	}
}

// UpdateSettings replaces the active settings snapshot. A nil document
// fetches a fresh one from the settings endpoint; viaWebhook uses the
// webhook pull endpoint, which bypasses server-side caches. The current
// snapshot is kept on any failure.
func (c *VWOClient) UpdateSettings(raw []byte, viaWebhook bool) error {
	c.closeMu.RLock()
	closed := c.closed
	c.closeMu.RUnlock()
	if closed {
		return ErrClientClosed
	}

	if raw == nil {
		fetched, err := c.requestor.FetchSettings(viaWebhook)
		if err != nil {
			c.loggers.Errorf("settings fetch failed: %s; keeping current settings", err)
			return err
		}
		raw = fetched
	}
	return c.applySettings(raw)
}

func (c *VWOClient) applySettings(raw []byte) error {
	if err := datamodel.ValidateSettings(raw); err != nil {
		c.loggers.Errorf("settings document rejected: %s", err)
		return err
	}
	settings, err := datamodel.ParseSettings(raw)
	if err != nil {
		c.loggers.Errorf("settings document could not be parsed: %s", err)
		return err
	}
	if err := settings.Process(); err != nil {
		c.loggers.Errorf("settings document could not be processed: %s", err)
		return err
	}
	c.settings.Store(settings)
	c.loggers.Infof("settings updated (version %d, %d features, %d campaigns)",
		settings.Version, len(settings.Features), len(settings.Campaigns))
	return nil
}

// GetAlias resolves a provisional user id to its canonical alias
// through the gateway service, or returns the id unchanged when no
// alias exists. Requires Config.GatewayService.
func (c *VWOClient) GetAlias(userID string) (string, error) {
	if userID == "" {
		return "", ErrMissingUserID
	}
	if c.services.Gateway == nil {
		return "", ErrGatewayNotConfigured
	}
	return c.services.Gateway.GetAlias(userID)
}

// SetAlias links a provisional user id to a canonical one through the
// gateway service, so decisions made under the provisional id follow
// the user. Requires Config.GatewayService.
func (c *VWOClient) SetAlias(tempUserID, userID string) error {
	if tempUserID == "" || userID == "" {
		return ErrMissingUserID
	}
	if c.services.Gateway == nil {
		return ErrGatewayNotConfigured
	}
	return c.services.Gateway.SetAlias(tempUserID, userID)
}

// FlushEvents forces delivery of any batched events and reports whether
// a flush was performed. It returns false when batching is not enabled.
func (c *VWOClient) FlushEvents() bool {
	if c.eventsP == nil {
		return false
	}
	return c.eventsP.Flush()
}

// Close shuts down polling and flushes and stops the event pipeline.
// The client must not be used afterwards.
func (c *VWOClient) Close() error {
	c.closeOnce.Do(func() {
		c.closeMu.Lock()
		c.closed = true
		c.closeMu.Unlock()
		if c.polling != nil {
			_ = c.polling.Close()
		}
		if c.eventsP != nil {
			c.eventsP.Close()
		}
		c.loggers.Info("client closed")
	})
	return nil
}
