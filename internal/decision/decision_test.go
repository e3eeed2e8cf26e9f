package decision

import (
	"fmt"
	"testing"

	"github.com/launchdarkly/go-sdk-common/v3/ldlog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vwo/go-server-sdk/interfaces"
	"github.com/vwo/go-server-sdk/internal/datamodel"
	"github.com/vwo/go-server-sdk/internal/hooks"
	"github.com/vwo/go-server-sdk/internal/storage"
)

const decisionSettings = `{
	"accountId": 12345,
	"sdkKey": "server-key",
	"campaigns": [
		{
			"id": 10, "key": "plain-rollout", "type": "FLAG_ROLLOUT", "status": "RUNNING",
			"variations": [
				{"id": 1, "key": "rollout-on", "weight": 100,
				 "variables": [{"id": 1, "key": "color", "type": "string", "value": "red"}]}
			]
		},
		{
			"id": 11, "key": "us-rollout", "type": "FLAG_ROLLOUT", "status": "RUNNING",
			"variations": [
				{"id": 1, "key": "us-on", "weight": 100,
				 "segments": {"custom_variable": {"country": "US"}},
				 "variables": [{"id": 1, "key": "color", "type": "string", "value": "blue"}]}
			]
		},
		{
			"id": 12, "key": "zero-rollout", "type": "FLAG_ROLLOUT", "status": "RUNNING",
			"variations": [{"id": 1, "key": "nobody", "weight": 0}]
		},
		{
			"id": 20, "key": "ab-campaign", "type": "FLAG_TESTING", "status": "RUNNING",
			"percentTraffic": 100, "isForcedVariationEnabled": true,
			"variations": [
				{"id": 1, "key": "control", "weight": 50,
				 "segments": {"or": [{"user": "forced-user"}]},
				 "variables": [{"id": 1, "key": "cta", "type": "string", "value": "buy"}]},
				{"id": 2, "key": "variant", "weight": 50,
				 "segments": {},
				 "variables": [{"id": 1, "key": "cta", "type": "string", "value": "buy now"}]}
			]
		},
		{
			"id": 30, "key": "meg-a", "type": "FLAG_TESTING", "status": "RUNNING",
			"percentTraffic": 100,
			"variations": [{"id": 1, "key": "a1", "weight": 100}]
		},
		{
			"id": 31, "key": "meg-b", "type": "FLAG_TESTING", "status": "RUNNING",
			"percentTraffic": 100,
			"variations": [{"id": 1, "key": "b1", "weight": 100}]
		}
	],
	"features": [
		{
			"id": 1, "key": "plain-feature",
			"rules": [{"type": "FLAG_ROLLOUT", "ruleKey": "r1", "campaignId": 10}]
		},
		{
			"id": 2, "key": "cascade-feature",
			"rules": [
				{"type": "FLAG_ROLLOUT", "ruleKey": "us-first", "campaignId": 11},
				{"type": "FLAG_ROLLOUT", "ruleKey": "everyone", "campaignId": 10}
			]
		},
		{
			"id": 3, "key": "zero-feature",
			"rules": [{"type": "FLAG_ROLLOUT", "ruleKey": "nobody", "campaignId": 12}]
		},
		{
			"id": 4, "key": "ab-feature",
			"rules": [{"type": "FLAG_TESTING", "ruleKey": "ab-rule", "campaignId": 20}]
		},
		{
			"id": 5, "key": "meg-feature-a",
			"rules": [{"type": "FLAG_TESTING", "ruleKey": "meg-a-rule", "campaignId": 30}]
		},
		{
			"id": 6, "key": "meg-feature-b",
			"rules": [{"type": "FLAG_TESTING", "ruleKey": "meg-b-rule", "campaignId": 31}]
		}
	],
	"campaignGroups": {"30": 7, "31": 7},
	"groups": {"7": {"name": "exclusive", "campaigns": ["30", "31"]}}
}`

func testSettings(t *testing.T) *datamodel.Settings {
	t.Helper()
	s, err := datamodel.ParseSettings([]byte(decisionSettings))
	require.NoError(t, err)
	require.NoError(t, s.Process())
	return s
}

func testServices(connector interfaces.StorageConnector) *Services {
	return &Services{
		Loggers: ldlog.NewDisabledLoggers(),
		Storage: storage.NewService(connector, ldlog.NewDisabledLoggers()),
	}
}

func user(s *datamodel.Settings, id string, custom map[string]interface{}) *datamodel.UserContext {
	return datamodel.NewUserContext(id, s.AccountID, "", "", custom, nil, 0)
}

type memConnector struct {
	records map[string]interfaces.StorageRecord
}

func newMemConnector() *memConnector {
	return &memConnector{records: map[string]interfaces.StorageRecord{}}
}

func (m *memConnector) Get(featureKey, userID string) (*interfaces.StorageRecord, error) {
	if r, ok := m.records[featureKey+"/"+userID]; ok {
		return &r, nil
	}
	return nil, nil
}

func (m *memConnector) Set(record interfaces.StorageRecord) error {
	m.records[record.FeatureKey+"/"+record.UserID] = record
	return nil
}

func TestUnknownFeatureIsDisabled(t *testing.T) {
	s := testSettings(t)
	result := GetFlag("no-such-feature", s, user(s, "u1", nil), testServices(nil))
	assert.False(t, result.Enabled)
	assert.Empty(t, result.Variables)
}

func TestFullRolloutEnablesEveryone(t *testing.T) {
	s := testSettings(t)
	for i := 0; i < 50; i++ {
		result := GetFlag("plain-feature", s, user(s, fmt.Sprintf("user-%d", i), nil), testServices(nil))
		assert.True(t, result.Enabled)
		require.Len(t, result.Variables, 1)
		assert.Equal(t, "red", result.Variables[0].Value.StringValue())
	}
}

func TestZeroTrafficDisablesEveryone(t *testing.T) {
	s := testSettings(t)
	for i := 0; i < 50; i++ {
		result := GetFlag("zero-feature", s, user(s, fmt.Sprintf("user-%d", i), nil), testServices(nil))
		assert.False(t, result.Enabled)
	}
}

func TestRolloutRulesAreFirstMatch(t *testing.T) {
	s := testSettings(t)

	// US users match the first rule and get its variables.
	result := GetFlag("cascade-feature", s, user(s, "u1", map[string]interface{}{"country": "US"}), testServices(nil))
	assert.True(t, result.Enabled)
	require.Len(t, result.Variables, 1)
	assert.Equal(t, "blue", result.Variables[0].Value.StringValue())

	// Everyone else falls through to the catch-all rule.
	result = GetFlag("cascade-feature", s, user(s, "u1", map[string]interface{}{"country": "FR"}), testServices(nil))
	assert.True(t, result.Enabled)
	require.Len(t, result.Variables, 1)
	assert.Equal(t, "red", result.Variables[0].Value.StringValue())
}

func TestDecisionIsDeterministic(t *testing.T) {
	s := testSettings(t)
	first := GetFlag("ab-feature", s, user(s, "stable-user", nil), testServices(nil))
	for i := 0; i < 10; i++ {
		again := GetFlag("ab-feature", s, user(s, "stable-user", nil), testServices(nil))
		assert.Equal(t, first, again)
	}
}

func TestABCampaignAssignsSomeVariation(t *testing.T) {
	s := testSettings(t)
	control, variant := 0, 0
	for i := 0; i < 200; i++ {
		result := GetFlag("ab-feature", s, user(s, fmt.Sprintf("user-%d", i), nil), testServices(nil))
		require.True(t, result.Enabled)
		require.Len(t, result.Variables, 1)
		switch result.Variables[0].Value.StringValue() {
		case "buy":
			control++
		case "buy now":
			variant++
		default:
			t.Fatalf("unexpected variable value %q", result.Variables[0].Value.StringValue())
		}
	}
	// Both arms of a 50/50 split must actually receive users.
	assert.Greater(t, control, 50)
	assert.Greater(t, variant, 50)
}

func TestWhitelistingForcesVariation(t *testing.T) {
	s := testSettings(t)
	result := GetFlag("ab-feature", s, user(s, "forced-user", nil), testServices(nil))
	assert.True(t, result.Enabled)
	require.Len(t, result.Variables, 1)
	assert.Equal(t, "buy", result.Variables[0].Value.StringValue(),
		"whitelisted user must land in control regardless of bucketing")
}

func TestStoredExperimentDecisionShortCircuits(t *testing.T) {
	s := testSettings(t)
	conn := newMemConnector()
	conn.records["ab-feature/sticky-user"] = interfaces.StorageRecord{
		FeatureKey:            "ab-feature",
		UserID:                "sticky-user",
		ExperimentID:          20,
		ExperimentKey:         "ab-campaign",
		ExperimentVariationID: 2,
	}
	result := GetFlag("ab-feature", s, user(s, "sticky-user", nil), testServices(conn))
	assert.True(t, result.Enabled)
	require.Len(t, result.Variables, 1)
	assert.Equal(t, "buy now", result.Variables[0].Value.StringValue())
}

func TestWinningDecisionIsStored(t *testing.T) {
	s := testSettings(t)
	conn := newMemConnector()
	result := GetFlag("ab-feature", s, user(s, "new-user", nil), testServices(conn))
	require.True(t, result.Enabled)

	stored, ok := conn.records["ab-feature/new-user"]
	require.True(t, ok, "winning decision must be persisted")
	assert.Equal(t, 20, stored.ExperimentID)
	assert.Equal(t, "ab-campaign", stored.ExperimentKey)
	assert.NotZero(t, stored.ExperimentVariationID)
}

func TestMutuallyExclusiveGroupAdmitsOneFeature(t *testing.T) {
	s := testSettings(t)
	for i := 0; i < 50; i++ {
		conn := newMemConnector()
		sv := testServices(conn)
		id := fmt.Sprintf("meg-user-%d", i)
		a := GetFlag("meg-feature-a", s, user(s, id, nil), sv)
		b := GetFlag("meg-feature-b", s, user(s, id, nil), sv)
		assert.False(t, a.Enabled && b.Enabled,
			"user %s won both members of an exclusive group", id)
		assert.True(t, a.Enabled || b.Enabled,
			"user %s with 100%% traffic should win one group member", id)
	}
}

func TestGroupWinnerIsSticky(t *testing.T) {
	s := testSettings(t)
	conn := newMemConnector()
	sv := testServices(conn)

	first := GetFlag("meg-feature-a", s, user(s, "meg-user", nil), sv)
	_, hasWinner := conn.records["_vwo_meta_meg_7/meg-user"]
	assert.True(t, hasWinner, "group arbitration must persist its winner")

	for i := 0; i < 5; i++ {
		again := GetFlag("meg-feature-a", s, user(s, "meg-user", nil), sv)
		assert.Equal(t, first.Enabled, again.Enabled)
	}
}

func TestMegRolloutGateConsidersAllRolloutRules(t *testing.T) {
	// Feature gate-a's first rollout rule is segment-gated but its second
	// accepts everyone, so the feature must still compete in the group
	// for users the first rule rejects.
	doc := `{
		"accountId": 12345,
		"campaigns": [
			{"id": 40, "key": "gated-ro", "type": "FLAG_ROLLOUT", "status": "RUNNING",
			 "variations": [{"id": 1, "key": "us-only", "weight": 100,
				"segments": {"custom_variable": {"country": "US"}}}]},
			{"id": 41, "key": "open-ro", "type": "FLAG_ROLLOUT", "status": "RUNNING",
			 "variations": [{"id": 1, "key": "everyone", "weight": 100}]},
			{"id": 42, "key": "exp-a", "type": "FLAG_TESTING", "status": "RUNNING",
			 "percentTraffic": 100,
			 "variations": [{"id": 1, "key": "a1", "weight": 100}]},
			{"id": 43, "key": "exp-b", "type": "FLAG_TESTING", "status": "RUNNING",
			 "percentTraffic": 100,
			 "variations": [{"id": 1, "key": "b1", "weight": 100}]}
		],
		"features": [
			{"id": 1, "key": "gate-a",
			 "rules": [
				{"type": "FLAG_ROLLOUT", "ruleKey": "us-first", "campaignId": 40},
				{"type": "FLAG_ROLLOUT", "ruleKey": "everyone", "campaignId": 41},
				{"type": "FLAG_TESTING", "ruleKey": "a-rule", "campaignId": 42}]},
			{"id": 2, "key": "gate-b",
			 "rules": [{"type": "FLAG_TESTING", "ruleKey": "b-rule", "campaignId": 43}]}
		],
		"campaignGroups": {"42": 9, "43": 9},
		"groups": {"9": {"name": "gated-group", "campaigns": ["42", "43"]}}
	}`
	s, err := datamodel.ParseSettings([]byte(doc))
	require.NoError(t, err)
	require.NoError(t, s.Process())

	nonUS := map[string]interface{}{"country": "FR"}
	aWins := 0
	for i := 0; i < 50; i++ {
		conn := newMemConnector()
		sv := testServices(conn)
		id := fmt.Sprintf("gate-user-%d", i)
		b := GetFlag("gate-b", s, user(s, id, nonUS), sv)

		winner, ok := conn.records["_vwo_meta_meg_9/"+id]
		require.True(t, ok, "group arbitration must persist a winner for user %s", id)
		if winner.ExperimentID == 42 {
			aWins++
			assert.False(t, b.Enabled,
				"user %s cannot get gate-b's experiment when gate-a won the group", id)
		}
	}
	assert.Greater(t, aWins, 0,
		"a feature whose later rollout rule passes must win the group for some users")
}

func TestGetFlagDoesNotMutateCallerMaps(t *testing.T) {
	s := testSettings(t)
	custom := map[string]interface{}{"country": "US"}
	targeting := map[string]interface{}{"plan": "pro"}

	result := GetFlag("ab-feature", s,
		datamodel.NewUserContext("u1", s.AccountID, "", "", custom, targeting, 0),
		testServices(nil))
	require.True(t, result.Enabled)

	assert.Equal(t, map[string]interface{}{"country": "US"}, custom)
	assert.Equal(t, map[string]interface{}{"plan": "pro"}, targeting)
}

func TestHookReceivesDecision(t *testing.T) {
	s := testSettings(t)
	var got map[string]interface{}
	sv := testServices(nil)
	sv.Hooks = hooks.NewRunner(func(d map[string]interface{}) { got = d }, ldlog.NewDisabledLoggers())

	GetFlag("plain-feature", s, user(s, "hook-user", nil), sv)
	require.NotNil(t, got)
	assert.Equal(t, "GET_FLAG", got["api"])
	assert.Equal(t, "plain-feature", got["featureKey"])
	assert.Equal(t, "hook-user", got["userId"])
	assert.Equal(t, true, got["isEnabled"])
	assert.Equal(t, 10, got["rolloutId"])
}

func TestStoredRolloutContinuesIntoExperiments(t *testing.T) {
	// A feature with both a rollout and an experiment: a stored rollout
	// decision keeps the rollout variables but still runs experiments.
	doc := `{
		"accountId": 12345,
		"campaigns": [
			{"id": 10, "key": "ro", "type": "FLAG_ROLLOUT", "status": "RUNNING",
			 "variations": [{"id": 1, "key": "on", "weight": 100,
				"variables": [{"id": 1, "key": "v", "type": "string", "value": "rollout"}]}]},
			{"id": 20, "key": "exp", "type": "FLAG_TESTING", "status": "RUNNING",
			 "percentTraffic": 100,
			 "variations": [
				{"id": 1, "key": "c", "weight": 50,
				 "variables": [{"id": 1, "key": "v", "type": "string", "value": "c"}]},
				{"id": 2, "key": "t", "weight": 50,
				 "variables": [{"id": 1, "key": "v", "type": "string", "value": "t"}]}]}
		],
		"features": [{"id": 1, "key": "both",
			"rules": [
				{"type": "FLAG_ROLLOUT", "ruleKey": "r", "campaignId": 10},
				{"type": "FLAG_TESTING", "ruleKey": "e", "campaignId": 20}]}]
	}`
	s, err := datamodel.ParseSettings([]byte(doc))
	require.NoError(t, err)
	require.NoError(t, s.Process())

	conn := newMemConnector()
	conn.records["both/u1"] = interfaces.StorageRecord{
		FeatureKey: "both", UserID: "u1",
		RolloutID: 10, RolloutKey: "ro", RolloutVariationID: 1,
	}
	result := GetFlag("both", s, user(s, "u1", nil), testServices(conn))
	assert.True(t, result.Enabled)
	require.Len(t, result.Variables, 1)
	assert.Contains(t, []string{"c", "t"}, result.Variables[0].Value.StringValue(),
		"experiment variables win over the stored rollout's")

	// The merged decision is persisted with both triples.
	stored := conn.records["both/u1"]
	assert.Equal(t, 10, stored.RolloutID)
	assert.Equal(t, 20, stored.ExperimentID)
}
