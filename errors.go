package vwo

import "errors"

// Initialization and API errors returned by the SDK.
var (
	// ErrMissingAccountID means Config.AccountID was empty.
	ErrMissingAccountID = errors.New("account id is required")

	// ErrMissingSDKKey means Config.SDKKey was empty.
	ErrMissingSDKKey = errors.New("sdk key is required")

	// ErrInvalidPollInterval means Config.PollInterval was positive but
	// shorter than MinimumPollInterval.
	ErrInvalidPollInterval = errors.New("poll interval must be at least one second")

	// ErrClientClosed means the client has been shut down.
	ErrClientClosed = errors.New("client has been closed")

	// ErrMissingUserID means a Context was built without a user id.
	ErrMissingUserID = errors.New("user id is required")

	// ErrGatewayNotConfigured means an operation needs the gateway
	// service but Config.GatewayService was not set.
	ErrGatewayNotConfigured = errors.New("gateway service is not configured")
)
