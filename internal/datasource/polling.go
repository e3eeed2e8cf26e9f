package datasource

import (
	"bytes"
	"sync"
	"time"

	"github.com/launchdarkly/go-sdk-common/v3/ldlog"
)

// PollingProcessor periodically refetches settings and hands changed
// documents to the update callback. Identical consecutive documents are
// dropped so the client does not rebuild its snapshot for nothing.
type PollingProcessor struct {
	requestor    *Requestor
	pollInterval time.Duration
	onUpdate     func(raw []byte)
	loggers      ldlog.Loggers

	lastRaw            []byte
	setInitializedOnce sync.Once
	isInitialized      bool
	quit               chan struct{}
	closeOnce          sync.Once
}

func NewPollingProcessor(requestor *Requestor, pollInterval time.Duration,
	onUpdate func(raw []byte), loggers ldlog.Loggers) *PollingProcessor {

	return &PollingProcessor{
		requestor:    requestor,
		pollInterval: pollInterval,
		onUpdate:     onUpdate,
		loggers:      loggers,
		quit:         make(chan struct{}),
	}
}

// Start launches the polling loop. closeWhenReady is closed after the
// first successful poll, or on shutdown, whichever comes first.
func (pp *PollingProcessor) Start(closeWhenReady chan<- struct{}) {
	pp.loggers.Infof("Starting settings polling with interval: %+v", pp.pollInterval)

	ticker := newTickerWithInitialTick(pp.pollInterval)

	go func() {
		defer ticker.Stop()

		var readyOnce sync.Once
		notifyReady := func() {
			readyOnce.Do(func() {
				close(closeWhenReady)
			})
		}
		// Ensure we stop waiting for initialization if we exit, even if
		// initialization fails
		defer notifyReady()

		for {
			select {
			case <-pp.quit:
				pp.loggers.Info("Polling has been shut down")
				return
			case <-ticker.C:
				if err := pp.poll(); err != nil {
					pp.loggers.Errorf("Settings poll failed: %s; will retry at next scheduled poll interval", err)
					continue
				}
				pp.setInitializedOnce.Do(func() {
					pp.isInitialized = true
					pp.loggers.Info("First settings poll successful")
					notifyReady()
				})
			}
		}
	}()
}

func (pp *PollingProcessor) poll() error {
	raw, err := pp.requestor.FetchSettings(false)
	if err != nil {
		return err
	}
	if bytes.Equal(raw, pp.lastRaw) {
		pp.loggers.Debug("Settings unchanged since last poll")
		return nil
	}
	pp.lastRaw = raw
	pp.onUpdate(raw)
	return nil
}

// IsInitialized reports whether at least one poll has succeeded.
func (pp *PollingProcessor) IsInitialized() bool {
	return pp.isInitialized
}

func (pp *PollingProcessor) Close() error {
	pp.closeOnce.Do(func() {
		close(pp.quit)
	})
	return nil
}

type tickerWithInitialTick struct {
	*time.Ticker
	C <-chan time.Time
}

func newTickerWithInitialTick(interval time.Duration) *tickerWithInitialTick {
	c := make(chan time.Time)
	ticker := time.NewTicker(interval)
	t := &tickerWithInitialTick{
		C:      c,
		Ticker: ticker,
	}
	go func() {
		c <- time.Now() // Ensure we do an initial poll immediately
		for tt := range ticker.C {
			c <- tt
		}
	}()
	return t
}
