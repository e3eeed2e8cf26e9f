package datamodel

import (
	"fmt"
	"strings"

	"github.com/xeipuuv/gojsonschema"
)

// settingsSchema rejects documents that are structurally unusable
// before any model-level parsing runs. Collections may be either lists
// or the endpoint's empty-object placeholder.
const settingsSchema = `{
	"type": "object",
	"required": ["accountId", "campaigns"],
	"properties": {
		"version": {"type": ["number", "string"]},
		"accountId": {"type": ["number", "string"]},
		"sdkKey": {"type": "string"},
		"collectionPrefix": {"type": "string"},
		"campaigns": {
			"anyOf": [
				{"type": "object", "maxProperties": 0},
				{
					"type": "array",
					"items": {
						"type": "object",
						"required": ["id", "type", "variations"],
						"properties": {
							"id": {"type": ["number", "string"]},
							"type": {"type": "string"},
							"key": {"type": "string"},
							"status": {"type": "string"},
							"percentTraffic": {"type": "number"},
							"variations": {
								"type": "array",
								"items": {
									"type": "object",
									"required": ["id"],
									"properties": {
										"id": {"type": ["number", "string"]},
										"key": {"type": "string"},
										"name": {"type": "string"},
										"weight": {"type": "number"}
									}
								}
							}
						}
					}
				}
			]
		},
		"features": {
			"anyOf": [
				{"type": "object", "maxProperties": 0},
				{
					"type": "array",
					"items": {
						"type": "object",
						"required": ["id", "key"],
						"properties": {
							"id": {"type": ["number", "string"]},
							"key": {"type": "string"},
							"status": {"type": "string"},
							"rules": {"type": "array"},
							"metrics": {"type": "array"}
						}
					}
				}
			]
		},
		"campaignGroups": {"type": "object"},
		"groups": {"type": "object"}
	}
}`

var settingsSchemaLoader = gojsonschema.NewStringLoader(settingsSchema)

// ValidateSettings checks a raw settings document against the schema.
func ValidateSettings(raw []byte) error {
	result, err := gojsonschema.Validate(settingsSchemaLoader, gojsonschema.NewBytesLoader(raw))
	if err != nil {
		return fmt.Errorf("settings validation failed: %w", err)
	}
	if result.Valid() {
		return nil
	}
	issues := make([]string, 0, len(result.Errors()))
	for _, e := range result.Errors() {
		issues = append(issues, e.String())
	}
	return fmt.Errorf("invalid settings document: %s", strings.Join(issues, "; "))
}
