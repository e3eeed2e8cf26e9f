package decision

import (
	"math"
	"strconv"

	"golang.org/x/exp/slices"

	"github.com/vwo/go-server-sdk/interfaces"
	"github.com/vwo/go-server-sdk/internal/bucketer"
	"github.com/vwo/go-server-sdk/internal/datamodel"
)

// megStoragePrefix keys the sticky winner record of a mutually
// exclusive group; it shares the feature-keyed storage namespace.
const megStoragePrefix = "_vwo_meta_meg_"

func megStorageKey(groupID string) string {
	return megStoragePrefix + groupID
}

// megCandidate is one group member considered for the group win.
type megCandidate struct {
	campaign *datamodel.Campaign
	ref      string
	weight   float64
	start    int
	end      int
}

// storedGroupWinnerRef resolves a previously persisted group winner to
// its campaign reference, or "" when none is stored.
func (c *call) storedGroupWinnerRef(groupID string, group *datamodel.Group) string {
	rec := c.sv.Storage.Get(megStorageKey(groupID), c.user.ID)
	if rec == nil || rec.ExperimentID == 0 {
		return ""
	}
	ref := strconv.Itoa(rec.ExperimentID)
	if rec.ExperimentVariationID > 0 {
		ref += "_" + strconv.Itoa(rec.ExperimentVariationID)
	}
	if !slices.Contains(group.Campaigns, ref) {
		c.sv.Loggers.Warnf("stored winner %q is no longer part of group %s; re-evaluating", ref, groupID)
		return ""
	}
	return ref
}

// evaluateGroup arbitrates a mutually exclusive group and returns the
// winning member, or nil when the user qualifies for none. Members the
// user already has a sticky decision for take precedence over members
// the user merely qualifies for.
func (c *call) evaluateGroup(groupID string, group *datamodel.Group) *megCandidate {
	var withStorage, eligible []*megCandidate
	seenRules := map[string]bool{}

	for _, f := range c.groupFeatures(group) {
		if !c.featurePassesRolloutGate(f) {
			c.sv.Loggers.Debugf("feature %q skipped in group %s: rollout gate not passed", f.Key, groupID)
			continue
		}
		for _, campaign := range f.ExperimentRules() {
			ref := campaignRef(campaign)
			if !slices.Contains(group.Campaigns, ref) {
				continue
			}
			ruleID := f.Key + "/" + campaign.RuleKey
			if seenRules[ruleID] {
				continue
			}
			seenRules[ruleID] = true

			cand := &megCandidate{campaign: campaign, ref: ref}
			if rec := c.sv.Storage.Get(f.Key, c.user.ID); rec != nil &&
				rec.ExperimentKey == campaign.Key && campaign.FindVariation(rec.ExperimentVariationID) != nil {
				withStorage = append(withStorage, cand)
				continue
			}
			if c.preSegmentation(campaign) && c.isUserPartOfCampaign(campaign) {
				eligible = append(eligible, cand)
			}
		}
	}

	pool := withStorage
	if len(pool) == 0 {
		pool = eligible
	}

	var winner *megCandidate
	switch {
	case len(pool) == 0:
		return nil
	case len(pool) == 1:
		winner = pool[0]
	case group.ET == datamodel.GroupAlgoAdvanced:
		winner = c.pickAdvancedWinner(groupID, group, pool)
	default:
		winner = c.pickRandomWinner(groupID, pool)
	}
	if winner != nil {
		c.sv.Loggers.Infof("campaign %q won group %s for user %q", winner.ref, groupID, c.user.ID)
		c.persistGroupWinner(groupID, winner)
	}
	return winner
}

// groupFeatures returns, in settings order, the features that contain
// at least one rule belonging to the group.
func (c *call) groupFeatures(group *datamodel.Group) []*datamodel.Feature {
	var out []*datamodel.Feature
	for _, f := range c.settings.Features {
		for _, campaign := range f.ExperimentRules() {
			if slices.Contains(group.Campaigns, campaignRef(campaign)) {
				out = append(out, f)
				break
			}
		}
	}
	return out
}

// featurePassesRolloutGate mirrors the main pipeline's rollout-first
// rule: a feature whose rollouts all reject the user cannot win the
// group through its experiments. Any passing rollout rule opens the
// gate; features without rollouts pass.
func (c *call) featurePassesRolloutGate(f *datamodel.Feature) bool {
	rollouts := f.RolloutRules()
	if len(rollouts) == 0 {
		return true
	}
	for _, gate := range rollouts {
		if c.preSegmentation(gate) && c.isUserPartOfCampaign(gate) {
			return true
		}
	}
	return false
}

// pickRandomWinner splits the bucket space equally among candidates.
func (c *call) pickRandomWinner(groupID string, pool []*megCandidate) *megCandidate {
	weight := math.Round(100/float64(len(pool))*10000) / 10000
	for _, cand := range pool {
		cand.weight = weight
	}
	return c.allocateAndBucket(groupID, pool)
}

// pickAdvancedWinner honors the group's priority order first; among
// the remaining candidates the configured weights decide.
func (c *call) pickAdvancedWinner(groupID string, group *datamodel.Group, pool []*megCandidate) *megCandidate {
	for _, ref := range group.P {
		for _, cand := range pool {
			if cand.ref == ref {
				return cand
			}
		}
	}
	var weighted []*megCandidate
	for _, cand := range pool {
		if w := group.Wt[cand.ref]; w > 0 {
			cand.weight = w
			weighted = append(weighted, cand)
		}
	}
	if len(weighted) == 0 {
		return nil
	}
	return c.allocateAndBucket(groupID, weighted)
}

// allocateAndBucket assigns zero-indexed ranges over the 10000-bucket
// space and picks the candidate owning the user's group bucket. The
// group seed is independent of any campaign so the same user always
// resolves the group the same way.
func (c *call) allocateAndBucket(groupID string, pool []*megCandidate) *megCandidate {
	cursor := 0
	for _, cand := range pool {
		step := int(math.Ceil(cand.weight * 100))
		if step == 0 {
			cand.start, cand.end = -1, -1
			continue
		}
		cand.start = cursor
		cand.end = cursor + step
		cursor += step
	}
	bucket := bucketer.BucketValueForUser(groupID+"_"+c.user.ID, bucketer.MaxTrafficValue)
	for _, cand := range pool {
		if cand.start != -1 && bucket >= cand.start && bucket <= cand.end {
			return cand
		}
	}
	return nil
}

// persistGroupWinner stores the arbitration result so later calls (and
// other SDK instances sharing the connector) keep the user pinned to
// the winner. Testing campaigns use the -1 variation marker; a
// personalize winner records its pinned variation.
func (c *call) persistGroupWinner(groupID string, winner *megCandidate) {
	rec := interfaces.StorageRecord{
		FeatureKey:            megStorageKey(groupID),
		UserID:                c.user.ID,
		ExperimentID:          winner.campaign.ID,
		ExperimentKey:         winner.campaign.Key,
		ExperimentVariationID: -1,
	}
	if winner.campaign.IsPersonalize() && len(winner.campaign.Variations) > 0 {
		rec.ExperimentVariationID = winner.campaign.Variations[0].ID
	}
	c.sv.Storage.Set(rec)
}
