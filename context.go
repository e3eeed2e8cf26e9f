package vwo

import (
	"github.com/vwo/go-server-sdk/internal/datamodel"
)

// Context describes the user a flag decision or tracking call is for.
// ID is required; everything else refines targeting.
type Context struct {
	// ID uniquely identifies the user. Bucketing is deterministic per
	// ID, so the same user sees the same variation across calls.
	ID string

	// UserAgent and IPAddress feed user-agent and location targeting.
	// They require a configured gateway service unless UAInfo and
	// Location are supplied pre-resolved.
	UserAgent string
	IPAddress string

	// CustomVariables feed custom-variable targeting.
	CustomVariables map[string]interface{}

	// VariationTargetingVariables feed whitelisting on testing
	// campaigns with forced variations.
	VariationTargetingVariables map[string]interface{}

	// SessionID groups events from one session; zero means the SDK
	// stamps each call with the current time.
	SessionID int64

	// Location and UAInfo, when supplied, are used as-is instead of
	// asking the gateway service.
	Location map[string]string
	UAInfo   map[string]string
}

// NewContext is shorthand for a Context with just a user id.
func NewContext(userID string) Context {
	return Context{ID: userID}
}

// RandomUserID returns a random id for anonymous users. Store it if the
// same visitor should keep their variations across sessions.
func RandomUserID() string {
	return datamodel.RandomUUID()
}

func (c Context) toUserContext(accountID string) *datamodel.UserContext {
	user := datamodel.NewUserContext(c.ID, accountID, c.UserAgent, c.IPAddress,
		c.CustomVariables, c.VariationTargetingVariables, c.SessionID)
	if c.Location != nil || c.UAInfo != nil {
		user.Gateway = &datamodel.GatewayData{Location: c.Location, UAInfo: c.UAInfo}
	}
	return user
}
