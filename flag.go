package vwo

import (
	"github.com/launchdarkly/go-sdk-common/v3/ldvalue"

	"github.com/vwo/go-server-sdk/internal/datamodel"
)

// Variable is one feature variable in the variation served to the user.
type Variable struct {
	ID    int
	Key   string
	Type  string
	Value ldvalue.Value
}

// Flag is the result of evaluating a feature for a user.
type Flag struct {
	enabled   bool
	variables []Variable
}

func newFlag(enabled bool, vars []datamodel.Variable) Flag {
	f := Flag{enabled: enabled}
	for _, v := range vars {
		f.variables = append(f.variables, Variable{ID: v.ID, Key: v.Key, Type: v.Type, Value: v.Value})
	}
	return f
}

// IsEnabled reports whether the feature is on for the user.
func (f Flag) IsEnabled() bool {
	return f.enabled
}

// Variables returns all variables of the served variation.
func (f Flag) Variables() []Variable {
	return f.variables
}

// GetVariable returns a variable's value as a plain Go value, or
// defaultValue when the variable does not exist in the served
// variation.
func (f Flag) GetVariable(key string, defaultValue interface{}) interface{} {
	for _, v := range f.variables {
		if v.Key == key {
			return v.Value.AsArbitraryValue()
		}
	}
	return defaultValue
}

// GetVariableValue is like GetVariable but keeps the ldvalue
// representation.
func (f Flag) GetVariableValue(key string) ldvalue.Value {
	for _, v := range f.variables {
		if v.Key == key {
			return v.Value
		}
	}
	return ldvalue.Null()
}
