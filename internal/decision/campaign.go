package decision

import (
	"github.com/vwo/go-server-sdk/internal/bucketer"
	"github.com/vwo/go-server-sdk/internal/datamodel"
)

// preSegmentation runs the campaign's targeting against the user's
// custom variables. Rollout and personalize rules keep their targeting
// on the single variation; testing campaigns keep it on the campaign.
// No targeting means the rule applies to everyone.
func (c *call) preSegmentation(campaign *datamodel.Campaign) bool {
	node := campaign.SegmentsNode
	if campaign.IsRollout() || campaign.IsPersonalize() {
		if len(campaign.Variations) == 0 {
			return false
		}
		node = campaign.Variations[0].SegmentsNode
	}
	if node == nil {
		c.sv.Loggers.Debugf("campaign %d (%s) has no targeting; rule applies", campaign.ID, campaign.RuleKey)
		return true
	}
	return node.Evaluate(c.user.CustomVariables, c.user.SegmentationUser(), c.segServices())
}

// isUserPartOfCampaign is the traffic gate: the user's percent bucket
// must fall within the campaign's traffic allocation. Rollout and
// personalize rules carry their traffic on the variation weight.
func (c *call) isUserPartOfCampaign(campaign *datamodel.Campaign) bool {
	if campaign == nil {
		return false
	}
	var traffic float64
	if campaign.IsRollout() || campaign.IsPersonalize() {
		if len(campaign.Variations) == 0 {
			return false
		}
		traffic = campaign.Variations[0].Weight
	} else {
		traffic = float64(campaign.PercentTraffic)
	}
	if traffic <= 0 {
		return false
	}
	bucket := bucketer.BucketValueForUser(campaign.TrafficSeed(c.user.ID), bucketer.MaxTrafficPercent)
	return float64(bucket) <= traffic
}

// findWinningVariation assigns the variation for a user already inside
// the campaign's traffic. Testing campaigns bucket over the variation
// ranges; rollout and personalize rules have exactly one treatment.
func (c *call) findWinningVariation(campaign *datamodel.Campaign) *datamodel.Variation {
	if campaign.IsRollout() || campaign.IsPersonalize() {
		if len(campaign.Variations) == 0 {
			return nil
		}
		return campaign.Variations[0]
	}
	bucket := bucketer.VariationBucket(campaign.VariationSeed(c.user.ID, c.settings.AccountID))
	for _, v := range campaign.Variations {
		if v.InRange(bucket) {
			return v
		}
	}
	return nil
}

// trafficAndVariation combines the traffic gate with variation
// assignment, logging the outcome like every decision step.
func (c *call) trafficAndVariation(campaign *datamodel.Campaign) *datamodel.Variation {
	if !c.isUserPartOfCampaign(campaign) {
		c.sv.Loggers.Infof("user %q is not in traffic for campaign %d (%s)",
			c.user.ID, campaign.ID, campaign.RuleKey)
		return nil
	}
	v := c.findWinningVariation(campaign)
	if v == nil {
		c.sv.Loggers.Infof("user %q got no variation for campaign %d (%s)",
			c.user.ID, campaign.ID, campaign.RuleKey)
		return nil
	}
	c.sv.Loggers.Infof("user %q got variation %d of campaign %d (%s)",
		c.user.ID, v.ID, campaign.ID, campaign.RuleKey)
	return v
}
