package segmentation

import (
	"strconv"
	"strings"

	"github.com/launchdarkly/go-sdk-common/v3/ldlog"
)

// UserInfo carries the per-user inputs that location and user-agent
// predicates need. Location and UAInfo come from the gateway service
// and are nil when it was not consulted.
type UserInfo struct {
	UserAgent string
	IPAddress string
	Location  map[string]string
	UAInfo    map[string]string
}

// Services supplies the evaluator's external lookups. Any nil function
// makes the predicates that need it evaluate to false.
type Services struct {
	Loggers ldlog.Loggers

	// CheckListAttribute asks the gateway whether the attribute value is
	// a member of the given remote list.
	CheckListAttribute func(attribute, listID string) bool

	// FeatureKeyByID resolves a numeric feature id to its key.
	FeatureKeyByID func(id int) (string, bool)

	// HasStoredDecision reports whether sticky storage holds a decision
	// for the given feature and the current user.
	HasStoredDecision func(featureKey string) bool
}

// Evaluate runs the expression against the user's properties. A nil
// node carries no constraint and always passes.
func (n *Node) Evaluate(properties map[string]interface{}, user UserInfo, sv Services) bool {
	if n == nil {
		return true
	}
	switch n.kind {
	case kindNot:
		return !n.children[0].Evaluate(properties, user, sv)
	case kindAnd:
		return n.evaluateAnd(properties, user, sv)
	case kindOr:
		return n.evaluateOr(properties, user, sv)
	case kindCustomVariable:
		return n.evaluateCustomVariable(properties, sv)
	case kindUserList:
		return n.evaluateUserList(properties)
	case kindUserAgent:
		if user.UserAgent == "" {
			sv.Loggers.Debug("user_agent predicate skipped: context has no user agent")
			return false
		}
		return n.operand.match(user.UserAgent)
	case kindFeatureFlag:
		return n.evaluateFeatureFlag(sv)
	case kindLocation:
		// A location predicate outside an all-location "and" group never
		// matches; grouping is handled by evaluateAnd.
		return false
	case kindUAField:
		return false
	default:
		return false
	}
}

// evaluateAnd collects location predicates from its children. When every
// child is a location predicate they are matched together against the
// gateway-resolved location; otherwise location children are inert and
// the remaining children must all pass.
func (n *Node) evaluateAnd(properties map[string]interface{}, user UserInfo, sv Services) bool {
	expected := make(map[string]string)
	for _, child := range n.children {
		if child.kind == kindLocation {
			expected[child.key] = child.expected
			if len(expected) == len(n.children) {
				return matchLocation(expected, user)
			}
			continue
		}
		if !child.Evaluate(properties, user, sv) {
			return false
		}
	}
	return true
}

// evaluateOr collects user-agent field predicates from its children.
// When every child is a user-agent field they are matched together
// against the gateway-resolved user-agent details. A featureId child
// short-circuits the whole group with a storage probe.
func (n *Node) evaluateOr(properties map[string]interface{}, user UserInfo, sv Services) bool {
	expected := make(map[string][]string)
	for _, child := range n.children {
		switch child.kind {
		case kindUAField:
			expected[child.key] = child.expectedList
			if len(expected) == len(n.children) {
				return matchUserAgentFields(expected, user)
			}
		case kindFeatureFlag:
			return child.evaluateFeatureFlag(sv)
		default:
			if child.Evaluate(properties, user, sv) {
				return true
			}
		}
	}
	return false
}

func (n *Node) evaluateCustomVariable(properties map[string]interface{}, sv Services) bool {
	raw, ok := properties[n.key]
	if !ok {
		return false
	}
	if n.operand.opType == opInList {
		if n.operand.listID == "" || sv.CheckListAttribute == nil {
			sv.Loggers.Warn("inlist operand requires the gateway service; predicate fails")
			return false
		}
		return sv.CheckListAttribute(stringifyProperty(raw), n.operand.listID)
	}
	return n.operand.match(stringifyProperty(raw))
}

func (n *Node) evaluateUserList(properties map[string]interface{}) bool {
	actual := stringifyProperty(properties["_vwoUserId"])
	for _, want := range n.expectedList {
		if want == actual {
			return true
		}
	}
	return false
}

func (n *Node) evaluateFeatureFlag(sv Services) bool {
	id, err := strconv.Atoi(n.key)
	if err != nil || sv.FeatureKeyByID == nil || sv.HasStoredDecision == nil {
		return false
	}
	featureKey, ok := sv.FeatureKeyByID(id)
	if !ok {
		sv.Loggers.Errorf("feature with id %d referenced by segment not found in settings", id)
		return false
	}
	enabled := sv.HasStoredDecision(featureKey)
	if strings.EqualFold(n.expected, "off") {
		return !enabled
	}
	return enabled
}

func matchLocation(expected map[string]string, user UserInfo) bool {
	if user.IPAddress == "" || user.Location == nil {
		return false
	}
	for field, want := range expected {
		actual, ok := user.Location[field]
		if !ok || normalizeLocationValue(want) != normalizeLocationValue(actual) {
			return false
		}
	}
	return true
}

// normalizeLocationValue strips surrounding quotes and whitespace; the
// gateway occasionally returns quoted location fields.
func normalizeLocationValue(s string) string {
	return strings.TrimSpace(strings.Trim(strings.TrimSpace(s), `"`))
}

func matchUserAgentFields(expected map[string][]string, user UserInfo) bool {
	if user.UserAgent == "" || user.UAInfo == nil {
		return false
	}
	for field, actual := range user.UAInfo {
		wants, ok := expected[field]
		if !ok {
			continue
		}
		for _, want := range wants {
			if matchUserAgentValue(want, actual) {
				return true
			}
		}
	}
	return false
}

// matchUserAgentValue supports wildcard(...) patterns (with * standing
// for any run of characters) and case-insensitive equality.
func matchUserAgentValue(want, actual string) bool {
	if m := wildcardRe.FindStringSubmatch(want); m != nil {
		return wildcardPatternMatches(m[1], actual)
	}
	return strings.EqualFold(want, actual)
}

// wildcardPatternMatches is anchored at the start of the value but not
// at the end, so "chrome*" and "chrome" both accept "chrome 120".
func wildcardPatternMatches(pattern, actual string) bool {
	pattern = strings.ToLower(pattern)
	actual = strings.ToLower(actual)
	parts := strings.Split(pattern, "*")
	pos := 0
	for i, part := range parts {
		if part == "" {
			continue
		}
		idx := strings.Index(actual[pos:], part)
		if idx < 0 {
			return false
		}
		if i == 0 && idx != 0 {
			return false
		}
		pos += idx + len(part)
	}
	return true
}
