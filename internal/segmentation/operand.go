package segmentation

import (
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"
)

type operandType int

const (
	opEqual operandType = iota
	opLower
	opWildcard
	opRegex
	opGreaterThan
	opGreaterEqual
	opLessThan
	opLessEqual
	opInList
)

type wildcardKind int

const (
	wildcardExact wildcardKind = iota
	wildcardStartsWith
	wildcardEndsWith
	wildcardContains
)

var (
	lowerRe    = regexp.MustCompile(`^lower\((.*)\)$`)
	wildcardRe = regexp.MustCompile(`^wildcard\((.*)\)$`)
	regexOpRe  = regexp.MustCompile(`^regex\((.*)\)$`)
	gtRe       = regexp.MustCompile(`^gt\((\d+\.?\d*|\.\d+)\)$`)
	gteRe      = regexp.MustCompile(`^gte\((\d+\.?\d*|\.\d+)\)$`)
	ltRe       = regexp.MustCompile(`^lt\((\d+\.?\d*|\.\d+)\)$`)
	lteRe      = regexp.MustCompile(`^lte\((\d+\.?\d*|\.\d+)\)$`)
	inListRe   = regexp.MustCompile(`^inlist\(([^)]*)\)$`)
)

// operandMatcher is a targeting operand with its matching strategy
// resolved at parse time.
type operandMatcher struct {
	opType   operandType
	value    string
	wildcard wildcardKind
	pattern  *regexp.Regexp // regex operands; nil if the pattern failed to compile
	number   float64        // gt/gte/lt/lte operands
	listID   string         // inlist operands
}

func parseOperand(operand string) *operandMatcher {
	if m := inListRe.FindStringSubmatch(operand); m != nil {
		return &operandMatcher{opType: opInList, listID: m[1]}
	}
	if m := lowerRe.FindStringSubmatch(operand); m != nil {
		return &operandMatcher{opType: opLower, value: m[1]}
	}
	if m := wildcardRe.FindStringSubmatch(operand); m != nil {
		return parseWildcard(m[1])
	}
	if m := regexOpRe.FindStringSubmatch(operand); m != nil {
		pattern, err := regexp.Compile(m[1])
		if err != nil {
			pattern = nil
		}
		return &operandMatcher{opType: opRegex, value: m[1], pattern: pattern}
	}
	if m := gtRe.FindStringSubmatch(operand); m != nil {
		return numericOperand(opGreaterThan, m[1])
	}
	if m := gteRe.FindStringSubmatch(operand); m != nil {
		return numericOperand(opGreaterEqual, m[1])
	}
	if m := ltRe.FindStringSubmatch(operand); m != nil {
		return numericOperand(opLessThan, m[1])
	}
	if m := lteRe.FindStringSubmatch(operand); m != nil {
		return numericOperand(opLessEqual, m[1])
	}
	return &operandMatcher{opType: opEqual, value: normalizeNumeric(operand)}
}

func parseWildcard(value string) *operandMatcher {
	kind := wildcardExact
	if strings.HasPrefix(value, "*") && strings.HasSuffix(value, "*") && len(value) >= 2 {
		kind = wildcardContains
		value = value[1 : len(value)-1]
	} else if strings.HasPrefix(value, "*") {
		kind = wildcardEndsWith
		value = value[1:]
	} else if strings.HasSuffix(value, "*") {
		kind = wildcardStartsWith
		value = value[:len(value)-1]
	}
	return &operandMatcher{opType: opWildcard, wildcard: kind, value: normalizeNumeric(value)}
}

func numericOperand(t operandType, text string) *operandMatcher {
	n, err := strconv.ParseFloat(text, 64)
	if err != nil {
		// The capture group guarantees a numeric form; fall back to
		// literal equality if parsing still fails.
		return &operandMatcher{opType: opEqual, value: text}
	}
	return &operandMatcher{opType: t, number: n}
}

// match evaluates the operand against a user-supplied value.
func (m *operandMatcher) match(tagValue string) bool {
	switch m.opType {
	case opLower:
		return strings.EqualFold(m.value, tagValue)
	case opWildcard:
		tag := normalizeNumeric(tagValue)
		switch m.wildcard {
		case wildcardContains:
			return strings.Contains(tag, m.value)
		case wildcardStartsWith:
			return strings.HasPrefix(tag, m.value)
		case wildcardEndsWith:
			return strings.HasSuffix(tag, m.value)
		default:
			return tag == m.value
		}
	case opRegex:
		if m.pattern == nil {
			return false
		}
		return m.pattern.MatchString(tagValue)
	case opGreaterThan, opGreaterEqual, opLessThan, opLessEqual:
		tag, err := strconv.ParseFloat(strings.TrimSpace(tagValue), 64)
		if err != nil {
			return false
		}
		switch m.opType {
		case opGreaterThan:
			return tag > m.number
		case opGreaterEqual:
			return tag >= m.number
		case opLessThan:
			return tag < m.number
		default:
			return tag <= m.number
		}
	case opInList:
		// Handled by the evaluator; requires the gateway service.
		return false
	default:
		return m.value == normalizeNumeric(tagValue)
	}
}

// normalizeNumeric collapses numeric strings to a canonical form so that
// "123.0" and "123" compare equal, as do "1.10" and "1.1". Non-numeric
// strings pass through unchanged.
func normalizeNumeric(s string) string {
	f, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil || math.IsInf(f, 0) || math.IsNaN(f) {
		return s
	}
	if f == math.Trunc(f) && math.Abs(f) < 1e15 {
		return strconv.FormatInt(int64(f), 10)
	}
	return strconv.FormatFloat(f, 'f', -1, 64)
}

func splitOperandList(operand string) []string {
	parts := strings.Split(operand, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		out = append(out, strings.TrimSpace(p))
	}
	return out
}

// stringifyProperty renders an arbitrary attribute value the way operand
// matching expects: booleans as "true"/"false", nil as empty, numbers in
// canonical form.
func stringifyProperty(v interface{}) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case bool:
		if t {
			return "true"
		}
		return "false"
	case float64:
		return normalizeNumeric(strconv.FormatFloat(t, 'f', -1, 64))
	case int:
		return strconv.Itoa(t)
	case int64:
		return strconv.FormatInt(t, 10)
	default:
		return normalizeNumeric(fmt.Sprintf("%v", v))
	}
}
