package decision

import (
	"github.com/vwo/go-server-sdk/interfaces"
	"github.com/vwo/go-server-sdk/internal/datamodel"
)

// Result is the outcome of a flag evaluation.
type Result struct {
	Enabled   bool
	Variables []datamodel.Variable
}

// Synthetic variation ids reported to a feature's impact campaign.
const (
	impactVariationDisabled = 1
	impactVariationEnabled  = 2
)

// GetFlag evaluates a feature for a user: sticky storage first, then
// the rollout cascade, then the experiment cascade, with impressions,
// storage writes, the integration callback, and the impact campaign
// impression on the way out.
func GetFlag(featureKey string, settings *datamodel.Settings, user *datamodel.UserContext, sv *Services) Result {
	feature := settings.FeatureByKey(featureKey)
	if feature == nil {
		sv.Loggers.Errorf("feature %q not found in settings; returning disabled", featureKey)
		if sv.Events != nil {
			sv.Events.SendLogEvent("ERROR", "GetFlag: feature not found: "+featureKey)
		}
		return Result{}
	}

	c := newCall(sv, settings, feature, user)
	var result Result
	record := interfaces.StorageRecord{FeatureKey: featureKey, UserID: user.ID}

	rolloutDecided := false
	checkExperiments := false

	// Sticky decisions short-circuit everything else: an experiment
	// assignment is final; a rollout assignment is kept but the
	// experiment cascade still runs on top of it.
	if stored := sv.Storage.Get(featureKey, user.ID); stored != nil {
		if stored.ExperimentKey != "" && stored.ExperimentVariationID != 0 {
			if v := findExperimentVariation(feature, stored.ExperimentKey, stored.ExperimentVariationID); v != nil {
				sv.Loggers.Infof("user %q gets stored experiment variation %q for feature %q",
					user.ID, v.Key, featureKey)
				return Result{Enabled: true, Variables: v.Variables}
			}
		} else if stored.RolloutKey != "" && stored.RolloutID != 0 {
			if v := findRolloutVariation(feature, stored.RolloutKey, stored.RolloutVariationID); v != nil {
				sv.Loggers.Infof("user %q gets stored rollout variation %q for feature %q",
					user.ID, v.Key, featureKey)
				result.Enabled = true
				result.Variables = v.Variables
				record.RolloutID = stored.RolloutID
				record.RolloutKey = stored.RolloutKey
				record.RolloutVariationID = stored.RolloutVariationID
				rolloutDecided = true
				checkExperiments = true
			}
		}
	}

	c.setContextualData()

	decision := map[string]interface{}{
		"api":                         "GET_FLAG",
		"featureName":                 feature.Name,
		"featureId":                   feature.ID,
		"featureKey":                  feature.Key,
		"userId":                      user.ID,
		"customVariables":             user.CustomVariables,
		"variationTargetingVariables": user.VariationTargetingVariables,
	}

	if !rolloutDecided {
		rollouts := feature.RolloutRules()
		if len(rollouts) == 0 {
			sv.Loggers.Debugf("feature %q has no rollout rules; checking experiment rules", featureKey)
			checkExperiments = true
		} else {
			var matched *datamodel.Campaign
			for _, campaign := range rollouts {
				if passed, _ := c.evaluateRule(campaign); passed {
					matched = campaign
					break
				}
			}
			if matched != nil {
				if v := c.trafficAndVariation(matched); v != nil {
					result.Enabled = true
					result.Variables = v.Variables
					checkExperiments = true
					record.RolloutID = matched.ID
					record.RolloutKey = matched.Key
					record.RolloutVariationID = v.ID
					decision["rolloutId"] = matched.ID
					decision["rolloutKey"] = matched.Key
					decision["rolloutVariationId"] = v.ID
					c.sendImpression(matched.ID, v.ID)
				}
			} else {
				sv.Loggers.Infof("user %q did not qualify for any rollout rule of feature %q",
					user.ID, featureKey)
			}
		}
	}

	if checkExperiments {
		for _, campaign := range feature.ExperimentRules() {
			passed, whitelisted := c.evaluateRule(campaign)
			if !passed {
				continue
			}
			v := whitelisted
			if v == nil {
				if v = c.trafficAndVariation(campaign); v != nil {
					c.sendImpression(campaign.ID, v.ID)
				}
			}
			if v != nil {
				result.Enabled = true
				result.Variables = v.Variables
				record.ExperimentID = campaign.ID
				record.ExperimentKey = campaign.Key
				record.ExperimentVariationID = v.ID
				decision["experimentId"] = campaign.ID
				decision["experimentKey"] = campaign.Key
				decision["experimentVariationId"] = v.ID
			}
			break
		}
	}

	if result.Enabled {
		sv.Storage.Set(record)
	}

	decision["isEnabled"] = result.Enabled
	sv.Hooks.Execute(decision)

	if feature.ImpactCampaign != nil && feature.ImpactCampaign.CampaignID != 0 {
		variationID := impactVariationDisabled
		if result.Enabled {
			variationID = impactVariationEnabled
		}
		sv.Loggers.Debugf("reporting feature %q state to impact campaign %d",
			featureKey, feature.ImpactCampaign.CampaignID)
		c.sendImpression(feature.ImpactCampaign.CampaignID, variationID)
	}

	return result
}

func findExperimentVariation(f *datamodel.Feature, campaignKey string, variationID int) *datamodel.Variation {
	for _, c := range f.ExperimentRules() {
		if c.Key == campaignKey {
			if v := c.FindVariation(variationID); v != nil {
				return v
			}
		}
	}
	return nil
}

func findRolloutVariation(f *datamodel.Feature, campaignKey string, variationID int) *datamodel.Variation {
	for _, c := range f.RolloutRules() {
		if c.Key == campaignKey {
			if v := c.FindVariation(variationID); v != nil {
				return v
			}
		}
	}
	return nil
}
