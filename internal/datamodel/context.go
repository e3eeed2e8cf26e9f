package datamodel

import (
	"time"

	"github.com/vwo/go-server-sdk/internal/segmentation"
)

// GatewayData holds the location and user-agent details resolved by
// the gateway service, or supplied pre-resolved by the caller.
type GatewayData struct {
	Location map[string]string `json:"location,omitempty"`
	UAInfo   map[string]string `json:"uaInfo,omitempty"`
}

// UserContext is the normalized per-call view of the user a decision
// is being made for. It is built once per API call and never shared
// between calls.
type UserContext struct {
	ID        string
	UserAgent string
	IPAddress string

	CustomVariables             map[string]interface{}
	VariationTargetingVariables map[string]interface{}

	// UUID is the deterministic visitor id (GenerateUUID).
	UUID string

	// SessionID is a per-call timestamp unless the caller supplied one.
	SessionID int64

	// Gateway is filled lazily from the gateway service when a
	// feature's targeting needs it, or up front by the caller.
	Gateway *GatewayData
}

// NewUserContext normalizes the caller-supplied values and derives the
// visitor UUID for the account. The variable maps are copied: the
// pipeline writes reserved properties into them, and the caller may
// share one map across concurrent calls.
func NewUserContext(userID, accountID, userAgent, ipAddress string,
	customVariables, variationTargetingVariables map[string]interface{},
	sessionID int64) *UserContext {

	if sessionID == 0 {
		sessionID = time.Now().Unix()
	}
	return &UserContext{
		ID:                          userID,
		UserAgent:                   userAgent,
		IPAddress:                   ipAddress,
		CustomVariables:             copyVariables(customVariables),
		VariationTargetingVariables: copyVariables(variationTargetingVariables),
		UUID:                        GenerateUUID(userID, accountID),
		SessionID:                   sessionID,
	}
}

func copyVariables(in map[string]interface{}) map[string]interface{} {
	out := make(map[string]interface{}, len(in)+1)
	for k, v := range in {
		out[k] = v
	}
	return out
}

// SegmentationUser projects the context into the evaluator's input.
func (c *UserContext) SegmentationUser() segmentation.UserInfo {
	info := segmentation.UserInfo{
		UserAgent: c.UserAgent,
		IPAddress: c.IPAddress,
	}
	if c.Gateway != nil {
		info.Location = c.Gateway.Location
		info.UAInfo = c.Gateway.UAInfo
	}
	return info
}
