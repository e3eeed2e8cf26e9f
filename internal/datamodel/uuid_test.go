package datamodel

import (
	"regexp"
	"testing"

	"github.com/stretchr/testify/assert"
)

var uuidForm = regexp.MustCompile(`^[0-9A-F]{32}$`)

func TestGenerateUUIDForm(t *testing.T) {
	id := GenerateUUID("user-1", "12345")
	assert.Regexp(t, uuidForm, id)
}

func TestGenerateUUIDIsDeterministic(t *testing.T) {
	assert.Equal(t, GenerateUUID("user-1", "12345"), GenerateUUID("user-1", "12345"))
	assert.NotEqual(t, GenerateUUID("user-1", "12345"), GenerateUUID("user-2", "12345"))
	assert.NotEqual(t, GenerateUUID("user-1", "12345"), GenerateUUID("user-1", "54321"))
}

func TestRandomUUIDIsUnique(t *testing.T) {
	assert.NotEqual(t, RandomUUID(), RandomUUID())
}

func TestUserContextDefaults(t *testing.T) {
	ctx := NewUserContext("user-1", "12345", "", "", nil, nil, 0)
	assert.NotNil(t, ctx.CustomVariables)
	assert.NotNil(t, ctx.VariationTargetingVariables)
	assert.NotZero(t, ctx.SessionID)
	assert.Equal(t, GenerateUUID("user-1", "12345"), ctx.UUID)

	info := ctx.SegmentationUser()
	assert.Nil(t, info.Location)

	ctx.Gateway = &GatewayData{Location: map[string]string{"country": "US"}}
	info = ctx.SegmentationUser()
	assert.Equal(t, "US", info.Location["country"])
}
