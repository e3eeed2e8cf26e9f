package datamodel

import (
	"fmt"
	"regexp"

	"github.com/vwo/go-server-sdk/internal/segmentation"
)

// gatewayPredicateRe finds targeting constructs that only the gateway
// service can resolve: location and user-agent fields anywhere in a
// segments document, and inlist operands on custom variables.
var gatewayPredicateRe = regexp.MustCompile(
	`"(country|region|city|os|device_type|browser_string|ua)"\s*:|"custom_variable"\s*:\s*\{\s*"[^"]+"\s*:\s*"inlist\([^)]*\)"`)

// Process prepares a freshly parsed settings document for evaluation:
// it parses every segments document, computes bucket allocations, links
// campaign copies into their features, and marks features whose
// targeting needs the gateway service. It must run exactly once per
// snapshot, before the snapshot is published.
func (s *Settings) Process() error {
	for _, c := range s.Campaigns {
		if err := c.process(); err != nil {
			return fmt.Errorf("campaign %d: %w", c.ID, err)
		}
	}
	for _, f := range s.Features {
		if err := s.attachLinkedCampaigns(f); err != nil {
			return fmt.Errorf("feature %q: %w", f.Key, err)
		}
		f.GatewayServiceRequired = s.featureNeedsGateway(f)
	}
	s.reindex()
	return nil
}

func (c *Campaign) process() error {
	node, err := segmentation.ParseSegments(c.Segments)
	if err != nil {
		return err
	}
	c.SegmentsNode = node
	for _, v := range c.Variations {
		vnode, err := segmentation.ParseSegments(v.Segments)
		if err != nil {
			return fmt.Errorf("variation %d: %w", v.ID, err)
		}
		v.SegmentsNode = vnode
	}
	if c.IsRollout() || c.IsPersonalize() {
		setRolloutAllocation(c.Variations)
	} else {
		ScaleVariationWeights(c.Variations)
		SetVariationAllocation(c.Variations)
	}
	return nil
}

// attachLinkedCampaigns materializes each rule as a deep copy of its
// campaign, stamped with the rule key. Personalize rules pin the copy
// to the single variation the rule references.
func (s *Settings) attachLinkedCampaigns(f *Feature) error {
	f.LinkedCampaigns = make([]*Campaign, 0, len(f.Rules))
	for _, rule := range f.Rules {
		base := s.campaignsByID[rule.CampaignID]
		if base == nil {
			return fmt.Errorf("rule %q references unknown campaign %d", rule.RuleKey, rule.CampaignID)
		}
		linked := base.Clone()
		linked.RuleKey = rule.RuleKey
		if linked.RuleKey == "" {
			linked.RuleKey = linked.Key
		}
		if rule.VariationID != 0 && linked.IsPersonalize() {
			v := linked.FindVariation(rule.VariationID)
			if v == nil {
				return fmt.Errorf("rule %q references unknown variation %d of campaign %d",
					rule.RuleKey, rule.VariationID, rule.CampaignID)
			}
			linked.Variations = []*Variation{v}
		}
		f.LinkedCampaigns = append(f.LinkedCampaigns, linked)
	}
	return nil
}

func (s *Settings) featureNeedsGateway(f *Feature) bool {
	for _, c := range f.LinkedCampaigns {
		if gatewayPredicateRe.Match(c.Segments) {
			return true
		}
		for _, v := range c.Variations {
			if gatewayPredicateRe.Match(v.Segments) {
				return true
			}
		}
	}
	return false
}

