package datamodel

// Rule is the wire-level binding between a feature and a campaign.
type Rule struct {
	Type        string `json:"type"`
	RuleKey     string `json:"ruleKey,omitempty"`
	CampaignID  int    `json:"campaignId"`
	VariationID int    `json:"variationId,omitempty"`
}

// Metric is a trackable goal attached to a feature.
type Metric struct {
	ID         int    `json:"id"`
	Identifier string `json:"identifier"`
	Type       string `json:"type,omitempty"`
}

// ImpactCampaign identifies the campaign that measures the aggregate
// impact of a feature; enabling or disabling the feature reports a
// synthetic variation to it.
type ImpactCampaign struct {
	CampaignID int    `json:"campaignId,omitempty"`
	Type       string `json:"type,omitempty"`
}

// Feature is a flag with its ordered rules, metrics, and variables.
type Feature struct {
	ID             int             `json:"id"`
	Key            string          `json:"key"`
	Name           string          `json:"name,omitempty"`
	Type           string          `json:"type,omitempty"`
	Status         string          `json:"status,omitempty"`
	Rules          []Rule          `json:"rules,omitempty"`
	Metrics        []Metric        `json:"metrics,omitempty"`
	ImpactCampaign *ImpactCampaign `json:"impactCampaign,omitempty"`

	// LinkedCampaigns holds the per-feature campaign copies built by
	// AttachLinkedCampaigns, in rule order.
	LinkedCampaigns []*Campaign `json:"-"`

	// GatewayServiceRequired is true when any rule's targeting uses
	// predicates that only the gateway service can resolve.
	GatewayServiceRequired bool `json:"-"`
}

// RolloutRules returns the feature's linked rollout campaigns in rule
// order.
func (f *Feature) RolloutRules() []*Campaign {
	return f.rulesOfType(CampaignTypeRollout)
}

// ExperimentRules returns the feature's linked testing and personalize
// campaigns in rule order.
func (f *Feature) ExperimentRules() []*Campaign {
	out := make([]*Campaign, 0, len(f.LinkedCampaigns))
	for _, c := range f.LinkedCampaigns {
		if c.IsAB() || c.IsPersonalize() {
			out = append(out, c)
		}
	}
	return out
}

func (f *Feature) rulesOfType(campaignType string) []*Campaign {
	out := make([]*Campaign, 0, len(f.LinkedCampaigns))
	for _, c := range f.LinkedCampaigns {
		if c.Type == campaignType {
			out = append(out, c)
		}
	}
	return out
}

// HasMetric reports whether the event name is a metric of this feature.
func (f *Feature) HasMetric(eventName string) bool {
	for _, m := range f.Metrics {
		if m.Identifier == eventName {
			return true
		}
	}
	return false
}
