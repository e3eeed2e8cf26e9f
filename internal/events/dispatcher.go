package events

import (
	"bytes"
	"fmt"
	"io"
	"net/http"
	"sync"

	"github.com/cenkalti/backoff/v4"
	"github.com/launchdarkly/go-sdk-common/v3/ldlog"

	"github.com/vwo/go-server-sdk/internal/endpoints"
)

// task is one HTTP delivery for the worker pool.
type task struct {
	url       string
	body      []byte
	sdkKey    string
	retryable bool
	name      string
}

// dispatcher is a fixed pool of delivery workers behind a bounded
// queue. When the queue is full the event is dropped and logged rather
// than blocking the caller.
type dispatcher struct {
	tasks   chan task
	client  *http.Client
	loggers ldlog.Loggers
	wg      sync.WaitGroup
}

func newDispatcher(workers int, client *http.Client, loggers ldlog.Loggers) *dispatcher {
	d := &dispatcher{
		tasks:   make(chan task, dispatchBacklog),
		client:  client,
		loggers: loggers,
	}
	d.wg.Add(workers)
	for i := 0; i < workers; i++ {
		go d.worker()
	}
	return d
}

func (d *dispatcher) worker() {
	defer d.wg.Done()
	for t := range d.tasks {
		if err := d.post(t); err != nil {
			d.loggers.Errorf("failed to deliver event %q: %s", t.name, err)
		}
	}
}

func (d *dispatcher) enqueue(t task) bool {
	select {
	case d.tasks <- t:
		return true
	default:
		d.loggers.Warnf("event queue is full; dropping event %q", t.name)
		return false
	}
}

// post delivers one payload, retrying transient failures with
// exponential backoff unless the task forbids it.
func (d *dispatcher) post(t task) error {
	operation := func() error {
		req, err := http.NewRequest(http.MethodPost, t.url, bytes.NewReader(t.body))
		if err != nil {
			return backoff.Permanent(err)
		}
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("User-Agent", endpoints.SDKName+"/"+endpoints.SDKVersion)
		if t.sdkKey != "" {
			req.Header.Set("Authorization", t.sdkKey)
		}
		resp, err := d.client.Do(req)
		if err != nil {
			return err
		}
		defer resp.Body.Close()
		io.Copy(io.Discard, resp.Body)
		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			err := fmt.Errorf("event endpoint returned status %d", resp.StatusCode)
			if resp.StatusCode >= 500 {
				return err // worth retrying
			}
			return backoff.Permanent(err)
		}
		return nil
	}

	if !t.retryable {
		return operation()
	}
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = retryInitialInterval
	return backoff.Retry(operation, backoff.WithMaxRetries(bo, retryMaxAttempts))
}

func (d *dispatcher) close() {
	close(d.tasks)
	d.wg.Wait()
}
