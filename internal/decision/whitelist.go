package decision

import (
	"github.com/vwo/go-server-sdk/internal/bucketer"
	"github.com/vwo/go-server-sdk/internal/datamodel"
)

// checkWhitelisting forces users matching a variation's targeting into
// that variation, bypassing traffic and group arbitration. Targeting
// runs against the variation targeting variables rather than the
// custom variables. When several variations match, the tie is broken
// by bucketing over the matched set.
func (c *call) checkWhitelisting(campaign *datamodel.Campaign) *datamodel.Variation {
	targeting := c.user.VariationTargetingVariables
	segUser := c.user.SegmentationUser()
	segServices := c.segServices()

	var matched []*datamodel.Variation
	for _, v := range campaign.Variations {
		if v.SegmentsNode == nil {
			c.sv.Loggers.Debugf("variation %d of campaign %d has no whitelist targeting; skipping", v.ID, campaign.ID)
			continue
		}
		if v.SegmentsNode.Evaluate(targeting, segUser, segServices) {
			clone := *v
			matched = append(matched, &clone)
		}
	}

	switch len(matched) {
	case 0:
		return nil
	case 1:
		return matched[0]
	}

	datamodel.ScaleVariationWeights(matched)
	datamodel.SetVariationAllocation(matched)
	bucket := bucketer.VariationBucket(campaign.TrafficSeed(c.user.ID))
	for _, v := range matched {
		if v.InRange(bucket) {
			return v
		}
	}
	return nil
}
