// Package vworedis provides a Redis-backed storage connector, so that
// decisions stick to users across processes and SDK instances sharing
// the same Redis deployment.
//
// Use it by putting a connector in the SDK configuration's Storage
// field:
//
//	connector, err := vworedis.NewConnector(vworedis.Options{URL: "redis://localhost:6379"})
//	if err != nil { ... }
//	config := vwo.Config{ ..., Storage: connector }
package vworedis

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/launchdarkly/go-sdk-common/v3/ldlog"

	"github.com/vwo/go-server-sdk/interfaces"
)

// DefaultPrefix is prepended to all keys when Options.Prefix is empty.
const DefaultPrefix = "vwo"

const defaultOpTimeout = 5 * time.Second

// Options configures the Redis connector.
type Options struct {
	// URL is a Redis connection URL ("redis://host:port[/db]"). Ignored
	// when Client is set.
	URL string

	// Client, if set, is used instead of opening a new connection; it
	// lets the connector share an application-managed client or a
	// cluster/sentinel deployment.
	Client redis.UniversalClient

	// Prefix namespaces the connector's keys (default DefaultPrefix).
	Prefix string

	// TTL expires stored decisions; zero keeps them forever.
	TTL time.Duration

	// OpTimeout bounds each Redis operation (default 5s).
	OpTimeout time.Duration

	Loggers ldlog.Loggers
}

// Connector is a StorageConnector backed by Redis. Records are stored
// as JSON under "<prefix>:<featureKey>:<userId>".
type Connector struct {
	client    redis.UniversalClient
	prefix    string
	ttl       time.Duration
	opTimeout time.Duration
	loggers   ldlog.Loggers
}

// NewConnector opens (or adopts) a Redis client and returns the
// connector.
func NewConnector(opts Options) (*Connector, error) {
	client := opts.Client
	if client == nil {
		if opts.URL == "" {
			return nil, fmt.Errorf("either URL or Client must be set")
		}
		redisOpts, err := redis.ParseURL(opts.URL)
		if err != nil {
			return nil, fmt.Errorf("invalid Redis URL %q: %w", opts.URL, err)
		}
		client = redis.NewClient(redisOpts)
	}
	prefix := opts.Prefix
	if prefix == "" {
		prefix = DefaultPrefix
	}
	opTimeout := opts.OpTimeout
	if opTimeout == 0 {
		opTimeout = defaultOpTimeout
	}
	opts.Loggers.Infof("RedisConnector: using prefix %q", prefix)
	return &Connector{
		client:    client,
		prefix:    prefix,
		ttl:       opts.TTL,
		opTimeout: opTimeout,
		loggers:   opts.Loggers,
	}, nil
}

// Get implements interfaces.StorageConnector.
func (c *Connector) Get(featureKey, userID string) (*interfaces.StorageRecord, error) {
	ctx, cancel := context.WithTimeout(context.Background(), c.opTimeout)
	defer cancel()

	data, err := c.client.Get(ctx, c.key(featureKey, userID)).Bytes()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var record interfaces.StorageRecord
	if err := json.Unmarshal(data, &record); err != nil {
		return nil, fmt.Errorf("stored decision is not valid JSON: %w", err)
	}
	return &record, nil
}

// Set implements interfaces.StorageConnector.
func (c *Connector) Set(record interfaces.StorageRecord) error {
	data, err := json.Marshal(record)
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(context.Background(), c.opTimeout)
	defer cancel()
	return c.client.Set(ctx, c.key(record.FeatureKey, record.UserID), data, c.ttl).Err()
}

// Close releases the underlying client. Do not call it when the client
// was supplied through Options.Client and is shared elsewhere.
func (c *Connector) Close() error {
	return c.client.Close()
}

func (c *Connector) key(featureKey, userID string) string {
	return c.prefix + ":" + featureKey + ":" + userID
}
