// Package decision implements the flag evaluation pipeline: sticky
// storage lookup, rollout and experiment rule cascades, whitelisting,
// and mutually-exclusive-group arbitration.
package decision

import (
	"strconv"

	"github.com/launchdarkly/go-sdk-common/v3/ldlog"

	"github.com/vwo/go-server-sdk/internal/datamodel"
	"github.com/vwo/go-server-sdk/internal/events"
	"github.com/vwo/go-server-sdk/internal/gateway"
	"github.com/vwo/go-server-sdk/internal/hooks"
	"github.com/vwo/go-server-sdk/internal/segmentation"
	"github.com/vwo/go-server-sdk/internal/storage"
)

// Services aggregates the long-lived components the pipeline consults.
// Gateway and Events may be nil (not configured / not needed in tests);
// Storage is always non-nil but may wrap a nil connector.
type Services struct {
	Loggers ldlog.Loggers
	Storage *storage.Service
	Gateway *gateway.Client
	Events  *events.Processor
	Hooks   *hooks.Runner
}

// call is the per-evaluation state. A fresh call is built for every
// GetFlag invocation and never shared, so the pipeline itself needs no
// locking.
type call struct {
	sv       *Services
	settings *datamodel.Settings
	feature  *datamodel.Feature
	user     *datamodel.UserContext

	// megWinners caches group arbitration results within this call so
	// sibling rules of one group agree without re-running the group.
	// The value is the winning campaign reference, or "-1" for none.
	megWinners map[string]string
}

func newCall(sv *Services, settings *datamodel.Settings, feature *datamodel.Feature,
	user *datamodel.UserContext) *call {
	return &call{
		sv:         sv,
		settings:   settings,
		feature:    feature,
		user:       user,
		megWinners: map[string]string{},
	}
}

// segServices wires the segmentation evaluator's lookups to this call's
// settings, storage, and gateway.
func (c *call) segServices() segmentation.Services {
	return segmentation.Services{
		Loggers: c.sv.Loggers,
		CheckListAttribute: func(attribute, listID string) bool {
			if c.sv.Gateway == nil {
				c.sv.Loggers.Warn("inlist targeting requires a configured gateway service")
				return false
			}
			return c.sv.Gateway.CheckListAttribute(attribute, listID)
		},
		FeatureKeyByID: func(id int) (string, bool) {
			if f := c.settings.FeatureByID(id); f != nil {
				return f.Key, true
			}
			return "", false
		},
		HasStoredDecision: func(featureKey string) bool {
			return c.sv.Storage.Get(featureKey, c.user.ID) != nil
		},
	}
}

// setContextualData resolves location and user-agent details through
// the gateway service, but only when this feature's targeting actually
// needs them and the caller did not supply them up front.
func (c *call) setContextualData() {
	if c.user.Gateway != nil {
		return
	}
	if !c.feature.GatewayServiceRequired || c.sv.Gateway == nil {
		return
	}
	if c.user.UserAgent == "" && c.user.IPAddress == "" {
		return
	}
	data, err := c.sv.Gateway.UserData(c.user.UserAgent, c.user.IPAddress)
	if err != nil {
		c.sv.Loggers.Warnf("gateway user-data lookup failed: %s; location and user-agent targeting will not match", err)
		return
	}
	c.user.Gateway = data
}

func (c *call) sendImpression(campaignID, variationID int) {
	if c.sv.Events != nil {
		c.sv.Events.SendImpression(campaignID, variationID, c.user)
	}
}

// campaignRef identifies a campaign inside group maps: testing
// campaigns by id, personalize rules by id and pinned variation.
func campaignRef(c *datamodel.Campaign) string {
	if c.IsPersonalize() && len(c.Variations) > 0 {
		return strconv.Itoa(c.ID) + "_" + strconv.Itoa(c.Variations[0].ID)
	}
	return strconv.Itoa(c.ID)
}
