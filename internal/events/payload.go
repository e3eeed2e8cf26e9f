// Package events builds and delivers the tracking calls the SDK emits:
// variation-shown impressions, custom goal conversions, visitor
// attribute syncs, and internal error reports. Delivery is always
// asynchronous so the decision APIs never block on the network.
package events

import (
	"fmt"
	"net/url"
	"strconv"
	"time"

	"github.com/launchdarkly/go-jsonstream/v3/jwriter"
	"github.com/launchdarkly/go-sdk-common/v3/ldvalue"

	"github.com/vwo/go-server-sdk/internal/datamodel"
	"github.com/vwo/go-server-sdk/internal/endpoints"
)

// event is one fully built tracking call: the query string for the
// events endpoint plus the serialized body.
type event struct {
	name        string
	queryParams url.Values
	body        []byte

	// retryable is false for internal log events, which must not storm
	// a degraded endpoint.
	retryable bool
}

func nowMillis() int64 {
	return time.Now().UnixNano() / int64(time.Millisecond)
}

// baseQueryParams builds the query string shared by all events.
func (p *Processor) baseQueryParams(eventName string, visitorUA, visitorIP string) url.Values {
	now := nowMillis()
	q := url.Values{}
	q.Set("en", eventName)
	q.Set("a", p.cfg.AccountID)
	q.Set("env", p.cfg.SDKKey)
	q.Set("eTime", strconv.FormatInt(now, 10))
	q.Set("random", fmt.Sprintf("%.10f", randomFraction()))
	q.Set("p", endpoints.VisitorPlatform)
	if visitorUA != "" {
		q.Set("visitor_ua", visitorUA)
	}
	if visitorIP != "" {
		q.Set("visitor_ip", visitorIP)
	}
	return q
}

// payloadHeader holds the envelope fields shared by all event bodies.
type payloadHeader struct {
	eventName string
	visitorID string
	sessionID int64
	visitorUA string
	visitorIP string
}

func headerForUser(eventName string, user *datamodel.UserContext) payloadHeader {
	return payloadHeader{
		eventName: eventName,
		visitorID: user.UUID,
		sessionID: user.SessionID,
		visitorUA: user.UserAgent,
		visitorIP: user.IPAddress,
	}
}

// writeBody serializes the event envelope:
//
//	{"d": {"msgId", "visId", "sessionId", "visitor_ua", "visitor_ip",
//	       "event": {"props": {...}, "name", "time"},
//	       "visitor": {"props": {"vwo_fs_environment": ..., ...}}}}
//
// writeProps fills the event props after the standard SDK identity
// fields; writeVisitorProps may be nil when no visitor attributes are
// attached.
func (p *Processor) writeBody(h payloadHeader,
	writeProps func(props *jwriter.ObjectState),
	writeVisitorProps func(props *jwriter.ObjectState)) ([]byte, error) {

	now := nowMillis()
	w := jwriter.NewWriter()
	top := w.Object()
	d := top.Name("d").Object()
	d.Name("msgId").String(h.visitorID + "-" + strconv.FormatInt(now, 10))
	d.Name("visId").String(h.visitorID)
	d.Name("sessionId").Int(int(h.sessionID))
	if h.visitorUA != "" {
		d.Name("visitor_ua").String(h.visitorUA)
	}
	if h.visitorIP != "" {
		d.Name("visitor_ip").String(h.visitorIP)
	}

	ev := d.Name("event").Object()
	props := ev.Name("props").Object()
	props.Name("vwo_sdkName").String(endpoints.SDKName)
	props.Name("vwo_sdkVersion").String(endpoints.SDKVersion)
	props.Name("vwo_envKey").String(p.cfg.SDKKey)
	if writeProps != nil {
		writeProps(&props)
	}
	props.End()
	ev.Name("name").String(h.eventName)
	ev.Name("time").Int(int(now))
	ev.End()

	visitor := d.Name("visitor").Object()
	vprops := visitor.Name("props").Object()
	vprops.Name(endpoints.VisitorEnvironmentProp).String(p.cfg.SDKKey)
	if writeVisitorProps != nil {
		writeVisitorProps(&vprops)
	}
	vprops.End()
	visitor.End()

	d.End()
	top.End()
	return w.Bytes(), w.Error()
}

// impressionEvent reports that a user saw a campaign variation.
func (p *Processor) impressionEvent(campaignID, variationID int, user *datamodel.UserContext) (event, error) {
	h := headerForUser(endpoints.EventVariationShown, user)
	body, err := p.writeBody(h, func(props *jwriter.ObjectState) {
		props.Name("id").Int(campaignID)
		props.Name("variation").String(strconv.Itoa(variationID))
		props.Name("isFirst").Int(1)
		if len(p.cfg.UsageStats) > 0 {
			meta := props.Name("vwoMeta").Object()
			writeArbitraryProps(&meta, p.cfg.UsageStats)
			meta.End()
		}
	}, nil)
	if err != nil {
		return event{}, err
	}
	return event{
		name:        h.eventName,
		queryParams: p.baseQueryParams(h.eventName, user.UserAgent, user.IPAddress),
		body:        body,
		retryable:   true,
	}, nil
}

// goalEvent reports a custom conversion with optional properties.
func (p *Processor) goalEvent(eventName string, user *datamodel.UserContext,
	eventProperties map[string]interface{}) (event, error) {

	h := headerForUser(eventName, user)
	body, err := p.writeBody(h, func(props *jwriter.ObjectState) {
		props.Name("isCustomEvent").Bool(true)
		writeArbitraryProps(props, eventProperties)
	}, nil)
	if err != nil {
		return event{}, err
	}
	return event{
		name:        eventName,
		queryParams: p.baseQueryParams(eventName, user.UserAgent, user.IPAddress),
		body:        body,
		retryable:   true,
	}, nil
}

// attributeEvent syncs visitor properties.
func (p *Processor) attributeEvent(user *datamodel.UserContext, attributes map[string]interface{}) (event, error) {
	h := headerForUser(endpoints.EventSyncVisitorProp, user)
	body, err := p.writeBody(h, func(props *jwriter.ObjectState) {
		props.Name("isCustomEvent").Bool(true)
	}, func(vprops *jwriter.ObjectState) {
		writeArbitraryProps(vprops, attributes)
	})
	if err != nil {
		return event{}, err
	}
	return event{
		name:        h.eventName,
		queryParams: p.baseQueryParams(h.eventName, user.UserAgent, user.IPAddress),
		body:        body,
		retryable:   true,
	}, nil
}

// logEvent reports an SDK-internal error to the data endpoint.
func (p *Processor) logEvent(level, message string) (event, error) {
	h := payloadHeader{
		eventName: endpoints.EventLog,
		visitorID: datamodel.RandomUUID(),
		sessionID: time.Now().Unix(),
	}
	body, err := p.writeBody(h, func(props *jwriter.ObjectState) {
		props.Name("product").String("fme")
		data := props.Name("data").Object()
		data.Name("msg").String(fmt.Sprintf("[%s]: %s %s %s",
			level, endpoints.SDKName, endpoints.SDKVersion, message))
		data.End()
	}, nil)
	if err != nil {
		return event{}, err
	}
	return event{
		name:        h.eventName,
		queryParams: p.baseQueryParams(h.eventName, "", ""),
		body:        body,
		retryable:   false,
	}, nil
}

func writeArbitraryProps(obj *jwriter.ObjectState, values map[string]interface{}) {
	for k, v := range values {
		ldvalue.CopyArbitraryValue(v).WriteToJSONWriter(obj.Name(k))
	}
}
