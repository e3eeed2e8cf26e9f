// Package storage wraps the user-provided storage connector so that
// the decision pipeline never observes connector failures: a missing,
// erroring, or absent connector degrades to a cache miss, and invalid
// records are rejected before they reach the connector.
package storage

import (
	"github.com/launchdarkly/go-sdk-common/v3/ldlog"

	"github.com/vwo/go-server-sdk/interfaces"
)

// Service decorates an optional StorageConnector.
type Service struct {
	connector interfaces.StorageConnector
	loggers   ldlog.Loggers
}

func NewService(connector interfaces.StorageConnector, loggers ldlog.Loggers) *Service {
	return &Service{connector: connector, loggers: loggers}
}

// HasConnector reports whether a connector is configured.
func (s *Service) HasConnector() bool {
	return s != nil && s.connector != nil
}

// Get returns the stored record for the user and feature, or nil on
// any miss, validation failure, or connector error.
func (s *Service) Get(featureKey, userID string) *interfaces.StorageRecord {
	if !s.HasConnector() || featureKey == "" || userID == "" {
		return nil
	}
	record, err := s.connector.Get(featureKey, userID)
	if err != nil {
		s.loggers.Warnf("storage connector read failed for feature %q, user %q: %s; treating as a miss",
			featureKey, userID, err)
		return nil
	}
	if record == nil {
		return nil
	}
	if !validRecord(*record) {
		s.loggers.Warnf("storage connector returned an incomplete record for feature %q, user %q; ignoring",
			featureKey, userID)
		return nil
	}
	return record
}

// Set validates and persists a record. It reports whether the record
// was handed to the connector and accepted.
func (s *Service) Set(record interfaces.StorageRecord) bool {
	if !s.HasConnector() {
		return false
	}
	if !validRecord(record) {
		s.loggers.Warnf("refusing to store incomplete decision record for feature %q, user %q",
			record.FeatureKey, record.UserID)
		return false
	}
	if err := s.connector.Set(record); err != nil {
		s.loggers.Warnf("storage connector write failed for feature %q, user %q: %s",
			record.FeatureKey, record.UserID, err)
		return false
	}
	return true
}

// validRecord requires the identifying pair plus at least one complete
// assignment triple. ExperimentVariationID may be -1 (group winner
// markers), so only zero means unset.
func validRecord(r interfaces.StorageRecord) bool {
	if r.FeatureKey == "" || r.UserID == "" {
		return false
	}
	rollout := r.RolloutKey != "" && r.RolloutID != 0 && r.RolloutVariationID != 0
	experiment := r.ExperimentKey != "" && r.ExperimentID != 0 && r.ExperimentVariationID != 0
	return rollout || experiment
}
