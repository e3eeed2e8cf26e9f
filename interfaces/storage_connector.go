// Package interfaces contains the public types that applications
// implement or consume when integrating the SDK, kept separate from
// the main package to avoid import cycles for custom components.
package interfaces

// StorageRecord is the sticky decision persisted for one user and
// feature. A record carries a rollout assignment, an experiment
// assignment, or both; an ExperimentVariationID of -1 marks a
// mutually-exclusive-group winner entry with no concrete variation.
type StorageRecord struct {
	FeatureKey string `json:"featureKey"`
	UserID     string `json:"userId"`

	RolloutID          int    `json:"rolloutId,omitempty"`
	RolloutKey         string `json:"rolloutKey,omitempty"`
	RolloutVariationID int    `json:"rolloutVariationId,omitempty"`

	ExperimentID          int    `json:"experimentId,omitempty"`
	ExperimentKey         string `json:"experimentKey,omitempty"`
	ExperimentVariationID int    `json:"experimentVariationId,omitempty"`
}

// StorageConnector is a user-provided persistence backend for sticky
// decisions. Implementations must be safe for concurrent use. Get
// returns (nil, nil) when no record exists.
type StorageConnector interface {
	Get(featureKey, userID string) (*StorageRecord, error)
	Set(record StorageRecord) error
}
