package events

import (
	"math/rand"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	gocache "github.com/patrickmn/go-cache"

	"github.com/launchdarkly/go-sdk-common/v3/ldlog"

	"github.com/vwo/go-server-sdk/internal/datamodel"
	"github.com/vwo/go-server-sdk/internal/endpoints"
)

const (
	logDedupTTL     = 5 * time.Minute
	logDedupSweep   = 10 * time.Minute
	defaultWorkers  = 4
	dispatchBacklog = 1000

	retryInitialInterval = 2 * time.Second
	retryMaxAttempts     = 3
)

// BatchConfig enables client-side event batching.
type BatchConfig struct {
	// EventsPerRequest is the flush threshold and the maximum batch
	// size per request.
	EventsPerRequest int

	// RequestInterval flushes a partially filled batch on a timer.
	RequestInterval time.Duration

	// FlushCallback, if set, observes every flush attempt.
	FlushCallback func(err error, count int)
}

// Config configures the event processor.
type Config struct {
	AccountID  string
	SDKKey     string
	BaseURL    string // scheme + host (+ optional collection prefix)
	HTTPClient *http.Client
	Loggers    ldlog.Loggers

	// MaxWorkers bounds concurrent deliveries for non-batched events.
	MaxWorkers int

	// Batching is nil when every event is delivered individually.
	Batching *BatchConfig

	// UsageStats is attached to impression props as vwoMeta; nil when
	// usage-stats collection is disabled.
	UsageStats map[string]interface{}
}

// Processor owns event construction and delivery. All Send methods are
// asynchronous and safe for concurrent use.
type Processor struct {
	cfg        Config
	baseURL    *url.URL
	dispatcher *dispatcher
	batch      *batchQueue
	logDedup   *gocache.Cache
	loggers    ldlog.Loggers

	closeOnce sync.Once
}

func NewProcessor(cfg Config) (*Processor, error) {
	base, err := url.Parse(strings.TrimRight(cfg.BaseURL, "/"))
	if err != nil {
		return nil, err
	}
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 10 * time.Second}
	}
	workers := cfg.MaxWorkers
	if workers <= 0 {
		workers = defaultWorkers
	}
	p := &Processor{
		cfg:      cfg,
		baseURL:  base,
		logDedup: gocache.New(logDedupTTL, logDedupSweep),
		loggers:  cfg.Loggers,
	}
	p.dispatcher = newDispatcher(workers, httpClient, cfg.Loggers)
	if cfg.Batching != nil {
		p.batch = newBatchQueue(*cfg.Batching, p.sendBatch, cfg.Loggers)
	}
	return p, nil
}

// SendImpression reports a variation-shown decision.
func (p *Processor) SendImpression(campaignID, variationID int, user *datamodel.UserContext) {
	ev, err := p.impressionEvent(campaignID, variationID, user)
	if err != nil {
		p.loggers.Errorf("failed to build impression event: %s", err)
		return
	}
	p.deliver(ev)
}

// SendGoal reports a custom conversion event.
func (p *Processor) SendGoal(eventName string, user *datamodel.UserContext, eventProperties map[string]interface{}) {
	ev, err := p.goalEvent(eventName, user, eventProperties)
	if err != nil {
		p.loggers.Errorf("failed to build goal event %q: %s", eventName, err)
		return
	}
	p.deliver(ev)
}

// SendAttributes syncs visitor attributes.
func (p *Processor) SendAttributes(user *datamodel.UserContext, attributes map[string]interface{}) {
	ev, err := p.attributeEvent(user, attributes)
	if err != nil {
		p.loggers.Errorf("failed to build attribute event: %s", err)
		return
	}
	p.deliver(ev)
}

// SendLogEvent reports an SDK error to the data endpoint, at most once
// per unique message per dedup window. Log events bypass batching and
// are never retried.
func (p *Processor) SendLogEvent(level, message string) {
	key := message + "-" + endpoints.SDKName + "-" + endpoints.SDKVersion
	if err := p.logDedup.Add(key, struct{}{}, gocache.DefaultExpiration); err != nil {
		return // already reported recently
	}
	ev, err := p.logEvent(level, message)
	if err != nil {
		return
	}
	p.dispatcher.enqueue(p.toTask(ev))
}

// Flush forces delivery of any batched events and reports whether a
// batch flush was performed.
func (p *Processor) Flush() bool {
	if p.batch == nil {
		p.loggers.Warn("flush requested but event batching is not enabled")
		return false
	}
	return p.batch.flush("manual")
}

// Close flushes batched events and stops the workers.
func (p *Processor) Close() {
	p.closeOnce.Do(func() {
		if p.batch != nil {
			p.batch.close()
		}
		p.dispatcher.close()
	})
}

func (p *Processor) deliver(ev event) {
	if p.batch != nil {
		p.batch.add(ev)
		return
	}
	p.dispatcher.enqueue(p.toTask(ev))
}

func (p *Processor) toTask(ev event) task {
	u := *p.baseURL
	u.Path = strings.TrimRight(u.Path, "/") + endpoints.EventsPath
	u.RawQuery = ev.queryParams.Encode()
	return task{
		url:       u.String(),
		body:      ev.body,
		sdkKey:    p.cfg.SDKKey,
		retryable: ev.retryable,
		name:      ev.name,
	}
}

// sendBatch posts accumulated events to the batch endpoint as
// {"ev": [...]}; used as the batch queue's sender.
func (p *Processor) sendBatch(bodies [][]byte) error {
	u := *p.baseURL
	u.Path = strings.TrimRight(u.Path, "/") + endpoints.BatchEventsPath
	q := url.Values{}
	q.Set("a", p.cfg.AccountID)
	q.Set("env", p.cfg.SDKKey)
	q.Set("sd", endpoints.SDKName)
	q.Set("sv", endpoints.SDKVersion)
	u.RawQuery = q.Encode()

	var buf []byte
	buf = append(buf, `{"ev":[`...)
	for i, b := range bodies {
		if i > 0 {
			buf = append(buf, ',')
		}
		buf = append(buf, b...)
	}
	buf = append(buf, `]}`...)

	return p.dispatcher.post(task{
		url:       u.String(),
		body:      buf,
		sdkKey:    p.cfg.SDKKey,
		retryable: true,
		name:      "batch",
	})
}

func randomFraction() float64 {
	return rand.Float64()
}
