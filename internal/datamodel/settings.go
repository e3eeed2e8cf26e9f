// Package datamodel defines the settings document and its derived
// indexes. A Settings value is immutable once Process has run; the
// client swaps whole snapshots rather than mutating one in place.
package datamodel

import (
	"encoding/json"
	"fmt"
	"strconv"
)

// Group is a mutually exclusive campaign group. ET selects the winner
// allocation algorithm: 1 picks randomly by weight, 2 honors the
// priority list P first and then the weight map Wt.
type Group struct {
	Name      string             `json:"name,omitempty"`
	Campaigns []string           `json:"campaigns,omitempty"`
	ET        int                `json:"et,omitempty"`
	P         []string           `json:"p,omitempty"`
	Wt        map[string]float64 `json:"wt,omitempty"`
}

const (
	GroupAlgoRandom   = 1
	GroupAlgoAdvanced = 2
)

// Settings is the full account configuration fetched from the data
// endpoint.
type Settings struct {
	AccountID        string
	SDKKey           string
	Version          int
	CollectionPrefix string
	Campaigns        []*Campaign
	Features         []*Feature
	CampaignGroups   map[string]int // campaign reference -> group id
	Groups           map[string]*Group

	featuresByKey map[string]*Feature
	featuresByID  map[int]*Feature
	campaignsByID map[int]*Campaign
}

type settingsJSON struct {
	AccountID        json.RawMessage       `json:"accountId"`
	SDKKey           string                `json:"sdkKey"`
	Version          json.RawMessage       `json:"version"`
	CollectionPrefix string                `json:"collectionPrefix"`
	Campaigns        json.RawMessage       `json:"campaigns"`
	Features         json.RawMessage       `json:"features"`
	CampaignGroups   map[string]int        `json:"campaignGroups"`
	Groups           map[string]*groupJSON `json:"groups"`
}

type groupJSON struct {
	Name      string             `json:"name"`
	Campaigns []json.RawMessage  `json:"campaigns"`
	ET        int                `json:"et"`
	P         []json.RawMessage  `json:"p"`
	Wt        map[string]float64 `json:"wt"`
}

// ParseSettings decodes a settings document. The endpoint serializes
// empty collections as {} rather than [], and numeric identifiers may
// arrive as either numbers or strings; both forms are accepted.
func ParseSettings(raw []byte) (*Settings, error) {
	var doc settingsJSON
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("malformed settings document: %w", err)
	}

	s := &Settings{
		SDKKey:           doc.SDKKey,
		CollectionPrefix: doc.CollectionPrefix,
		CampaignGroups:   doc.CampaignGroups,
	}

	var err error
	if s.AccountID, err = flexibleString(doc.AccountID); err != nil {
		return nil, fmt.Errorf("settings accountId: %w", err)
	}
	if s.AccountID == "" {
		return nil, fmt.Errorf("settings document has no accountId")
	}
	if len(doc.Version) > 0 {
		v, err := flexibleString(doc.Version)
		if err != nil {
			return nil, fmt.Errorf("settings version: %w", err)
		}
		s.Version, _ = strconv.Atoi(v)
	}

	if err := decodeCollection(doc.Campaigns, &s.Campaigns); err != nil {
		return nil, fmt.Errorf("settings campaigns: %w", err)
	}
	if err := decodeCollection(doc.Features, &s.Features); err != nil {
		return nil, fmt.Errorf("settings features: %w", err)
	}

	if doc.Groups != nil {
		s.Groups = make(map[string]*Group, len(doc.Groups))
		for id, g := range doc.Groups {
			group := &Group{Name: g.Name, ET: g.ET, Wt: g.Wt}
			if group.ET == 0 {
				group.ET = GroupAlgoRandom
			}
			for _, c := range g.Campaigns {
				ref, err := flexibleString(c)
				if err != nil {
					return nil, fmt.Errorf("group %s campaign reference: %w", id, err)
				}
				group.Campaigns = append(group.Campaigns, ref)
			}
			for _, p := range g.P {
				ref, err := flexibleString(p)
				if err != nil {
					return nil, fmt.Errorf("group %s priority reference: %w", id, err)
				}
				group.P = append(group.P, ref)
			}
			s.Groups[id] = group
		}
	}

	s.reindex()
	return s, nil
}

// decodeCollection accepts either a JSON array or the endpoint's
// empty-object placeholder.
func decodeCollection(raw json.RawMessage, target interface{}) error {
	if len(raw) == 0 {
		return nil
	}
	trimmed := firstNonSpace(raw)
	if trimmed == '{' {
		var placeholder map[string]json.RawMessage
		if err := json.Unmarshal(raw, &placeholder); err != nil {
			return err
		}
		if len(placeholder) != 0 {
			return fmt.Errorf("expected a list, got a non-empty object")
		}
		return nil
	}
	return json.Unmarshal(raw, target)
}

func firstNonSpace(raw []byte) byte {
	for _, b := range raw {
		switch b {
		case ' ', '\t', '\n', '\r':
			continue
		}
		return b
	}
	return 0
}

// flexibleString decodes a JSON number or string into its textual form.
func flexibleString(raw json.RawMessage) (string, error) {
	if len(raw) == 0 {
		return "", nil
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s, nil
	}
	var n json.Number
	if err := json.Unmarshal(raw, &n); err == nil {
		return n.String(), nil
	}
	return "", fmt.Errorf("expected a string or number, got %s", string(raw))
}

func (s *Settings) reindex() {
	s.featuresByKey = make(map[string]*Feature, len(s.Features))
	s.featuresByID = make(map[int]*Feature, len(s.Features))
	for _, f := range s.Features {
		s.featuresByKey[f.Key] = f
		s.featuresByID[f.ID] = f
	}
	s.campaignsByID = make(map[int]*Campaign, len(s.Campaigns))
	for _, c := range s.Campaigns {
		s.campaignsByID[c.ID] = c
	}
}

// FeatureByKey returns the feature with the given key, or nil.
func (s *Settings) FeatureByKey(key string) *Feature { return s.featuresByKey[key] }

// FeatureByID returns the feature with the given numeric id, or nil.
func (s *Settings) FeatureByID(id int) *Feature { return s.featuresByID[id] }

// CampaignByID returns the campaign with the given id, or nil.
func (s *Settings) CampaignByID(id int) *Campaign { return s.campaignsByID[id] }

// GroupForCampaign returns the group id a campaign reference belongs
// to, if any. refs are "<campaignId>" for testing campaigns and
// "<campaignId>_<variationId>" for personalize rules.
func (s *Settings) GroupForCampaign(ref string) (string, *Group, bool) {
	groupID, ok := s.CampaignGroups[ref]
	if !ok {
		return "", nil, false
	}
	id := strconv.Itoa(groupID)
	group, ok := s.Groups[id]
	return id, group, ok
}

// EventBelongsToAnyFeature reports whether any feature tracks the
// event as a metric.
func (s *Settings) EventBelongsToAnyFeature(eventName string) bool {
	for _, f := range s.Features {
		if f.HasMetric(eventName) {
			return true
		}
	}
	return false
}
