package vworedis

import (
	"context"
	"testing"
	"time"

	"github.com/launchdarkly/go-sdk-common/v3/ldlog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vwo/go-server-sdk/interfaces"
)

const testRedisURL = "redis://localhost:6379/0"

func TestNewConnectorRequiresURLOrClient(t *testing.T) {
	_, err := NewConnector(Options{})
	assert.Error(t, err)

	_, err = NewConnector(Options{URL: "://not-a-url"})
	assert.Error(t, err)
}

func TestNewConnectorDefaults(t *testing.T) {
	c, err := NewConnector(Options{URL: testRedisURL, Loggers: ldlog.NewDisabledLoggers()})
	require.NoError(t, err)
	defer c.Close()

	assert.Equal(t, DefaultPrefix, c.prefix)
	assert.Equal(t, defaultOpTimeout, c.opTimeout)
	assert.Equal(t, "vwo:my-feature:user-1", c.key("my-feature", "user-1"))
}

func TestKeyUsesCustomPrefix(t *testing.T) {
	c, err := NewConnector(Options{URL: testRedisURL, Prefix: "myapp"})
	require.NoError(t, err)
	defer c.Close()

	assert.Equal(t, "myapp:my-feature:user-1", c.key("my-feature", "user-1"))
}

// requireLocalRedis skips the test unless a Redis server is reachable
// on the default local port.
func requireLocalRedis(t *testing.T) *Connector {
	t.Helper()
	c, err := NewConnector(Options{
		URL:     testRedisURL,
		Prefix:  "vwo-test",
		Loggers: ldlog.NewDisabledLoggers(),
	})
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := c.client.Ping(ctx).Err(); err != nil {
		c.Close()
		t.Skipf("no local Redis available: %s", err)
	}
	t.Cleanup(func() { c.Close() })
	return c
}

func TestRoundTrip(t *testing.T) {
	c := requireLocalRedis(t)

	record := interfaces.StorageRecord{
		FeatureKey:            "checkout-redesign",
		UserID:                "user-1",
		ExperimentID:          20,
		ExperimentKey:         "ab-campaign",
		ExperimentVariationID: 2,
	}
	require.NoError(t, c.Set(record))

	got, err := c.Get("checkout-redesign", "user-1")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, record, *got)
}

func TestGetMissingKeyReturnsNil(t *testing.T) {
	c := requireLocalRedis(t)

	got, err := c.Get("no-such-feature", "no-such-user")
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestGetRejectsCorruptRecord(t *testing.T) {
	c := requireLocalRedis(t)

	ctx := context.Background()
	require.NoError(t, c.client.Set(ctx, c.key("corrupt", "user-1"), "not json", 0).Err())

	_, err := c.Get("corrupt", "user-1")
	assert.Error(t, err)
}
