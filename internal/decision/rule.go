package decision

import (
	"github.com/vwo/go-server-sdk/internal/datamodel"
)

// evaluateRule decides whether a campaign applies to the user. A
// whitelisted variation is returned alongside and has already been
// reported as an impression; the caller must not bucket again.
func (c *call) evaluateRule(campaign *datamodel.Campaign) (bool, *datamodel.Variation) {
	passed, whitelisted := c.checkWhitelistingAndPreSeg(campaign)
	if passed && whitelisted != nil {
		c.sendImpression(campaign.ID, whitelisted.ID)
	}
	return passed, whitelisted
}

// checkWhitelistingAndPreSeg runs, in order: whitelisting (testing
// campaigns with forced variations), targeting pre-segmentation, and
// group arbitration for campaigns inside a mutually exclusive group.
func (c *call) checkWhitelistingAndPreSeg(campaign *datamodel.Campaign) (bool, *datamodel.Variation) {
	// The reserved _vwoUserId property drives user-list targeting; it
	// is the raw id unless the campaign opted into hashed user lists.
	whitelistID := c.user.ID
	targetingID := c.user.ID
	if campaign.IsUserListEnabled {
		whitelistID = c.user.UUID
		targetingID = c.user.UUID
	}

	if campaign.IsAB() {
		c.user.VariationTargetingVariables["_vwoUserId"] = whitelistID
		if campaign.IsForcedVariationEnabled {
			if v := c.checkWhitelisting(campaign); v != nil {
				c.sv.Loggers.Infof("user %q whitelisted into variation %d of campaign %d",
					c.user.ID, v.ID, campaign.ID)
				return true, v
			}
		}
	}
	c.user.CustomVariables["_vwoUserId"] = targetingID

	ref := campaignRef(campaign)
	groupID, group, inGroup := c.settings.GroupForCampaign(ref)

	if inGroup {
		// A winner decided earlier in this call binds all group members.
		if winner, seen := c.megWinners[groupID]; seen {
			return winner == ref, nil
		}
		// A sticky winner from a previous call binds too.
		if stored := c.storedGroupWinnerRef(groupID, group); stored != "" {
			c.megWinners[groupID] = stored
			return stored == ref, nil
		}
	}

	if !c.preSegmentation(campaign) {
		return false, nil
	}
	if !inGroup {
		return true, nil
	}

	winner := c.evaluateGroup(groupID, group)
	if winner == nil {
		c.megWinners[groupID] = "-1"
		return false, nil
	}
	c.megWinners[groupID] = winner.ref
	return winner.ref == ref, nil
}
