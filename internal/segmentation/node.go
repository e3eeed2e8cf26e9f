// Package segmentation implements the targeting DSL used by campaign
// pre-segmentation and whitelisting. A DSL document is parsed once into
// a Node tree when settings are processed; evaluation against a user's
// properties is then allocation-free.
package segmentation

import (
	"encoding/json"
	"fmt"

	"github.com/launchdarkly/go-sdk-common/v3/ldvalue"
)

type nodeKind int

const (
	kindNot nodeKind = iota
	kindAnd
	kindOr
	kindCustomVariable
	kindUserList
	kindUserAgent
	kindFeatureFlag
	kindLocation
	kindUAField
)

// Node is one operator or predicate of a parsed targeting expression.
type Node struct {
	kind     nodeKind
	children []*Node

	// key is the custom variable name, the location field (country,
	// region, city), the user-agent field (os, browser_string,
	// device_type, device), or the numeric feature id as a string.
	key string

	operand *operandMatcher // custom_variable and user_agent predicates

	expected     string   // location predicates and featureId state ("on"/"off")
	expectedList []string // user-agent field predicates and user lists
}

// ParseSegments parses a raw segments document. An absent or empty
// document yields a nil Node, which always evaluates to true.
func ParseSegments(raw json.RawMessage) (*Node, error) {
	if len(raw) == 0 {
		return nil, nil
	}
	var obj map[string]json.RawMessage
	if err := json.Unmarshal(raw, &obj); err != nil {
		return nil, fmt.Errorf("malformed segments document: %w", err)
	}
	if len(obj) == 0 {
		return nil, nil
	}
	return parseNode(obj)
}

func parseNode(obj map[string]json.RawMessage) (*Node, error) {
	if len(obj) != 1 {
		return nil, fmt.Errorf("segment node must have exactly one operator, found %d", len(obj))
	}
	for op, raw := range obj {
		switch op {
		case "not":
			child, err := parseChild(raw)
			if err != nil {
				return nil, err
			}
			return &Node{kind: kindNot, children: []*Node{child}}, nil
		case "and", "or":
			var items []map[string]json.RawMessage
			if err := json.Unmarshal(raw, &items); err != nil {
				return nil, fmt.Errorf("operator %q expects a list: %w", op, err)
			}
			children := make([]*Node, 0, len(items))
			for _, item := range items {
				child, err := parseNode(item)
				if err != nil {
					return nil, err
				}
				children = append(children, child)
			}
			kind := kindAnd
			if op == "or" {
				kind = kindOr
			}
			return &Node{kind: kind, children: children}, nil
		case "custom_variable":
			return parseCustomVariable(raw)
		case "user":
			return &Node{kind: kindUserList, expectedList: splitOperandList(scalarString(raw))}, nil
		case "user_agent":
			return &Node{kind: kindUserAgent, operand: parseOperand(scalarString(raw))}, nil
		case "featureId":
			return parseFeatureFlag(raw)
		case "country", "region", "city":
			return &Node{kind: kindLocation, key: op, expected: scalarString(raw)}, nil
		case "os", "browser_string", "device_type", "device":
			return &Node{kind: kindUAField, key: op, expectedList: scalarStringList(raw)}, nil
		default:
			return nil, fmt.Errorf("unknown segment operator %q", op)
		}
	}
	return nil, nil // unreachable
}

func parseChild(raw json.RawMessage) (*Node, error) {
	var obj map[string]json.RawMessage
	if err := json.Unmarshal(raw, &obj); err != nil {
		return nil, fmt.Errorf("malformed segment operand: %w", err)
	}
	return parseNode(obj)
}

func parseCustomVariable(raw json.RawMessage) (*Node, error) {
	var obj map[string]json.RawMessage
	if err := json.Unmarshal(raw, &obj); err != nil || len(obj) != 1 {
		return nil, fmt.Errorf("custom_variable expects a single key-value pair")
	}
	for key, val := range obj {
		return &Node{kind: kindCustomVariable, key: key, operand: parseOperand(scalarString(val))}, nil
	}
	return nil, nil // unreachable
}

func parseFeatureFlag(raw json.RawMessage) (*Node, error) {
	var obj map[string]json.RawMessage
	if err := json.Unmarshal(raw, &obj); err != nil || len(obj) != 1 {
		return nil, fmt.Errorf("featureId expects a single id-state pair")
	}
	for id, state := range obj {
		return &Node{kind: kindFeatureFlag, key: id, expected: scalarString(state)}, nil
	}
	return nil, nil // unreachable
}

// scalarString decodes a JSON scalar of any type into its textual form.
// Non-string operands (numbers, booleans) appear in real DSL documents.
func scalarString(raw json.RawMessage) string {
	return stringifyValue(ldvalue.Parse(raw))
}

func scalarStringList(raw json.RawMessage) []string {
	v := ldvalue.Parse(raw)
	if v.Type() == ldvalue.ArrayType {
		out := make([]string, 0, v.Count())
		for i := 0; i < v.Count(); i++ {
			out = append(out, stringifyValue(v.GetByIndex(i)))
		}
		return out
	}
	return []string{stringifyValue(v)}
}

func stringifyValue(v ldvalue.Value) string {
	switch v.Type() {
	case ldvalue.StringType:
		return v.StringValue()
	case ldvalue.BoolType:
		if v.BoolValue() {
			return "true"
		}
		return "false"
	case ldvalue.NullType:
		return ""
	case ldvalue.NumberType:
		return normalizeNumeric(v.JSONString())
	default:
		return v.JSONString()
	}
}
