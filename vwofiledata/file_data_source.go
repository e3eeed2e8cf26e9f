// Package vwofiledata loads settings from a local JSON or YAML file
// instead of the VWO settings endpoint. It is meant for local
// development and integration testing.
//
// Use it by seeding the SDK configuration with the file's contents:
//
//	raw, err := vwofiledata.ReadSettingsFile("./testdata/settings.yaml")
//	if err != nil { ... }
//	config := vwo.Config{ ..., InitialSettings: raw }
//
// For automatic reloading, pair it with a Watcher that pushes changed
// documents into the client:
//
//	watcher, err := vwofiledata.NewWatcher(vwofiledata.Options{
//	    Path:     "./testdata/settings.yaml",
//	    OnUpdate: func(raw []byte) { _ = client.UpdateSettings(raw, false) },
//	})
package vwofiledata

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/ghodss/yaml.v1"
)

// ReadSettingsFile reads a settings document from a JSON or YAML file
// and returns it as JSON. YAML detection is by file extension (.yaml
// or .yml); everything else is treated as JSON.
func ReadSettingsFile(path string) ([]byte, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("unable to read settings file %q: %w", path, err)
	}
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		converted, err := yaml.YAMLToJSON(raw)
		if err != nil {
			return nil, fmt.Errorf("settings file %q is not valid YAML: %w", path, err)
		}
		return converted, nil
	default:
		return raw, nil
	}
}
