package datamodel

import (
	"encoding/json"
	"math"
	"strconv"

	"github.com/launchdarkly/go-sdk-common/v3/ldvalue"

	"github.com/vwo/go-server-sdk/internal/bucketer"
	"github.com/vwo/go-server-sdk/internal/segmentation"
)

// Campaign types as they appear on the wire.
const (
	CampaignTypeRollout     = "FLAG_ROLLOUT"
	CampaignTypeAB          = "FLAG_TESTING"
	CampaignTypePersonalize = "FLAG_PERSONALIZE"
)

const StatusRunning = "RUNNING"

// Variable is a typed feature variable attached to a variation.
type Variable struct {
	ID    int           `json:"id"`
	Key   string        `json:"key"`
	Type  string        `json:"type,omitempty"`
	Value ldvalue.Value `json:"value"`
}

// Variation is one arm of a campaign. For rollout and personalize
// campaigns each variation doubles as the rule's single treatment and
// carries its own targeting segments.
type Variation struct {
	ID         int             `json:"id"`
	Key        string          `json:"key,omitempty"`
	Name       string          `json:"name,omitempty"`
	Weight     float64         `json:"weight,omitempty"`
	Segments   json.RawMessage `json:"segments,omitempty"`
	Variables  []Variable      `json:"variables,omitempty"`
	StartRange int             `json:"startRangeVariation,omitempty"`
	EndRange   int             `json:"endRangeVariation,omitempty"`

	// SegmentsNode is the parsed form of Segments, built once when
	// settings are processed.
	SegmentsNode *segmentation.Node `json:"-"`
}

// Campaign is a server-side experiment or rollout definition. A feature
// rule references a campaign by id; settings processing links a deep
// copy of the campaign into the feature (see AttachLinkedCampaigns), so
// per-rule fields like RuleKey never leak between features.
type Campaign struct {
	ID                       int             `json:"id"`
	Key                      string          `json:"key,omitempty"`
	Name                     string          `json:"name,omitempty"`
	Type                     string          `json:"type"`
	Status                   string          `json:"status,omitempty"`
	PercentTraffic           int             `json:"percentTraffic,omitempty"`
	Salt                     string          `json:"salt,omitempty"`
	Segments                 json.RawMessage `json:"segments,omitempty"`
	Variations               []*Variation    `json:"variations,omitempty"`
	IsForcedVariationEnabled bool            `json:"isForcedVariationEnabled,omitempty"`
	IsUserListEnabled        bool            `json:"isUserListEnabled,omitempty"`
	Weight                   float64         `json:"weight,omitempty"`

	// RuleKey is set on the per-feature copy of the campaign during
	// rule linking.
	RuleKey string `json:"ruleKey,omitempty"`

	SegmentsNode *segmentation.Node `json:"-"`
}

func (c *Campaign) IsRollout() bool     { return c.Type == CampaignTypeRollout }
func (c *Campaign) IsAB() bool          { return c.Type == CampaignTypeAB }
func (c *Campaign) IsPersonalize() bool { return c.Type == CampaignTypePersonalize }

// Clone returns a deep copy of the campaign. Parsed segment nodes and
// raw segment documents are immutable after settings processing and are
// shared rather than copied.
func (c *Campaign) Clone() *Campaign {
	out := *c
	out.Variations = make([]*Variation, len(c.Variations))
	for i, v := range c.Variations {
		vc := *v
		vc.Variables = append([]Variable(nil), v.Variables...)
		out.Variations[i] = &vc
	}
	return &out
}

// FindVariation returns the variation with the given id, or nil.
func (c *Campaign) FindVariation(variationID int) *Variation {
	for _, v := range c.Variations {
		if v.ID == variationID {
			return v
		}
	}
	return nil
}

// TrafficSeed is the hash seed for the campaign traffic gate.
func (c *Campaign) TrafficSeed(userID string) string {
	if c.Salt != "" {
		return c.Salt + "_" + userID
	}
	return strconv.Itoa(c.ID) + "_" + userID
}

// VariationSeed is the hash seed for variation assignment in testing
// campaigns; it mixes in the account id so that assignment differs
// across accounts sharing campaign ids.
func (c *Campaign) VariationSeed(userID, accountID string) string {
	if c.Salt != "" {
		return c.Salt + "_" + accountID + "_" + userID
	}
	return strconv.Itoa(c.ID) + "_" + accountID + "_" + userID
}

// ScaleVariationWeights normalizes variation weights so they sum to
// 100. When every weight is zero the traffic is split equally.
func ScaleVariationWeights(variations []*Variation) {
	if len(variations) == 0 {
		return
	}
	total := 0.0
	for _, v := range variations {
		total += v.Weight
	}
	if total == 0 {
		equal := 100.0 / float64(len(variations))
		for _, v := range variations {
			v.Weight = equal
		}
		return
	}
	for _, v := range variations {
		v.Weight = v.Weight / total * 100
	}
}

// SetVariationAllocation assigns one-indexed bucket ranges over the
// 10000-bucket space in declaration order. Zero-weight variations get
// the unreachable range [-1,-1].
func SetVariationAllocation(variations []*Variation) {
	cursor := 0
	for _, v := range variations {
		step := allocationStep(v.Weight)
		if step == 0 {
			v.StartRange = -1
			v.EndRange = -1
			continue
		}
		v.StartRange = cursor + 1
		v.EndRange = cursor + step
		cursor += step
	}
}

func allocationStep(weight float64) int {
	step := int(math.Ceil(weight * 100))
	if step > bucketer.MaxTrafficValue {
		step = bucketer.MaxTrafficValue
	}
	return step
}

// setRolloutAllocation gives each rollout or personalize variation the
// range [1, weight*100]; the traffic gate and the variation check share
// one bucket space for these campaign types.
func setRolloutAllocation(variations []*Variation) {
	for _, v := range variations {
		v.StartRange = 1
		v.EndRange = allocationStep(v.Weight)
	}
}

// InRange reports whether the bucket value falls inside the variation's
// allocated range.
func (v *Variation) InRange(bucketValue int) bool {
	return v.StartRange != -1 && bucketValue >= v.StartRange && bucketValue <= v.EndRange
}
