package vwofiledata

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/launchdarkly/go-sdk-common/v3/ldlog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const jsonSettings = `{"accountId": "12345", "sdkKey": "k", "campaigns": [], "features": []}`

const yamlSettings = `accountId: "12345"
sdkKey: k
campaigns: []
features: []
`

func writeTempFile(t *testing.T, name, contents string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(contents), 0600))
	return path
}

func TestReadSettingsFileJSON(t *testing.T) {
	path := writeTempFile(t, "settings.json", jsonSettings)
	raw, err := ReadSettingsFile(path)
	require.NoError(t, err)
	assert.JSONEq(t, jsonSettings, string(raw))
}

func TestReadSettingsFileYAML(t *testing.T) {
	path := writeTempFile(t, "settings.yaml", yamlSettings)
	raw, err := ReadSettingsFile(path)
	require.NoError(t, err)

	var doc map[string]interface{}
	require.NoError(t, json.Unmarshal(raw, &doc))
	assert.Equal(t, "12345", doc["accountId"])
	assert.Equal(t, "k", doc["sdkKey"])
}

func TestReadSettingsFileErrors(t *testing.T) {
	_, err := ReadSettingsFile(filepath.Join(t.TempDir(), "missing.json"))
	assert.Error(t, err)

	path := writeTempFile(t, "bad.yaml", "\t<-tabs are not yaml")
	_, err = ReadSettingsFile(path)
	assert.Error(t, err)
}

func TestWatcherValidatesOptions(t *testing.T) {
	_, err := NewWatcher(Options{OnUpdate: func([]byte) {}})
	assert.Error(t, err)

	_, err = NewWatcher(Options{Path: "x.json"})
	assert.Error(t, err)
}

func TestWatcherDeliversInitialAndChangedDocuments(t *testing.T) {
	path := writeTempFile(t, "settings.json", jsonSettings)

	updates := make(chan []byte, 10)
	w, err := NewWatcher(Options{
		Path:     path,
		OnUpdate: func(raw []byte) { updates <- raw },
		Loggers:  ldlog.NewDisabledLoggers(),
	})
	require.NoError(t, err)
	defer w.Close()

	select {
	case raw := <-updates:
		assert.JSONEq(t, jsonSettings, string(raw))
	case <-time.After(2 * time.Second):
		t.Fatal("initial document was not delivered")
	}

	changed := `{"accountId": "12345", "sdkKey": "k2", "campaigns": [], "features": []}`
	require.NoError(t, os.WriteFile(path, []byte(changed), 0600))

	deadline := time.After(5 * time.Second)
	for {
		select {
		case raw := <-updates:
			var doc map[string]interface{}
			require.NoError(t, json.Unmarshal(raw, &doc))
			if doc["sdkKey"] == "k2" {
				return
			}
		case <-deadline:
			t.Fatal("changed document was not delivered")
		}
	}
}

func TestWatcherSkipsUnchangedContent(t *testing.T) {
	path := writeTempFile(t, "settings.json", jsonSettings)

	updates := make(chan []byte, 10)
	w, err := NewWatcher(Options{
		Path:     path,
		OnUpdate: func(raw []byte) { updates <- raw },
		Loggers:  ldlog.NewDisabledLoggers(),
	})
	require.NoError(t, err)
	defer w.Close()

	<-updates // initial load

	// Rewriting identical contents may fire a change event but must not
	// invoke the callback again.
	require.NoError(t, os.WriteFile(path, []byte(jsonSettings), 0600))
	select {
	case <-updates:
		t.Fatal("unchanged document was delivered")
	case <-time.After(500 * time.Millisecond):
	}
}
