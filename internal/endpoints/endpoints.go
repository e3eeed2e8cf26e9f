// Package endpoints defines the default VWO service hosts and URL paths
// shared by the settings requestor, the event dispatcher, and the gateway
// client.
package endpoints

const (
	// DefaultHost is the VWO data endpoint used for settings and events
	// when no custom host is configured.
	DefaultHost = "dev.visualwebsiteoptimizer.com"

	// DefaultScheme is used when a configured host does not carry one.
	DefaultScheme = "https"

	SettingsPath        = "/server-side/v2-settings"
	WebhookSettingsPath = "/server-side/v2-pull"

	EventsPath      = "/events/t"
	BatchEventsPath = "/events/t/batch"

	GatewayCheckAttributePath = "/attribute/check"
	GatewayUserDataPath       = "/get-user-data"
	GatewayGetAliasPath       = "/get-alias"
	GatewaySetAliasPath       = "/set-alias"
)

// SDK identification, sent on every settings request and event.
const (
	SDKName    = "vwo-fme-go-sdk"
	SDKVersion = "1.0.0"
	Platform   = "server"
	APIVersion = "1"
)

// Event archetype names recognized by the data endpoint.
const (
	EventVariationShown    = "vwo_variation_shown"
	EventSyncVisitorProp   = "vwo_syncVisitorProp"
	EventLog               = "vwo_log"
	EventSDKInitCalled     = "vwo_sdkInitCalled"
	VisitorEnvironmentProp = "vwo_fs_environment"
	VisitorPlatform        = "FS"
)
