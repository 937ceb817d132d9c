package apple

import (
	"bytes"
	"context"
	"encoding/xml"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/campusflow/campusflow/pkg/connector"
	"github.com/campusflow/campusflow/pkg/event"
	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"
)

const davTimeLayout = "20060102T150405Z"

// Calendar is one CalDAV collection opened with basic auth.
type Calendar struct {
	collection *url.URL
	username   string
	password   string
	adapter    *Adapter
}

// objectNamespace scopes the calendar object UIDs derived from local event ids.
var objectNamespace = uuid.MustParse("5d0c8a52-93f4-4b1e-a0c6-3e7f2b9d41a8")

// objectUID names the calendar object of a local event. The same event always maps to the
// same object, so a repeated create lands on the path of the first one.
func objectUID(e event.Event) string {
	if e.Id == "" {
		return uuid.NewString()
	}
	return uuid.NewSHA1(objectNamespace, []byte(e.Id)).String()
}

// Insert stores the calendar object of e. The UID is the external id. When the object already
// exists, from an attempt whose response was lost, it is overwritten instead.
func (c *Calendar) Insert(ctx context.Context, e event.Event) (string, error) {
	uid := objectUID(e)
	body, err := c.encode(uid, e)
	if err != nil {
		return "", connector.External(err)
	}
	resp, err := c.do(ctx, http.MethodPut, c.objectURL(uid), bytes.NewReader(body), map[string]string{
		"Content-Type":  "text/calendar; charset=utf-8",
		"If-None-Match": "*",
	})
	if err != nil {
		return "", err
	}
	defer drain(resp)
	switch {
	case resp.StatusCode == http.StatusPreconditionFailed:
		log.Debugf("CalDAV object %s already exists, overwriting it", uid)
		if err := c.Update(ctx, uid, e); err != nil {
			return "", err
		}
	case resp.StatusCode >= 300:
		err := fmt.Errorf("unable to create CalDAV event: %s", resp.Status)
		log.Error(err)
		return "", connector.HTTPStatusError(resp.StatusCode, err)
	}
	return uid, nil
}

func (c *Calendar) Update(ctx context.Context, externalId string, e event.Event) error {
	body, err := c.encode(externalId, e)
	if err != nil {
		return connector.External(err)
	}
	resp, err := c.do(ctx, http.MethodPut, c.objectURL(externalId), bytes.NewReader(body), map[string]string{
		"Content-Type": "text/calendar; charset=utf-8",
		"If-Match":     "*",
	})
	if err != nil {
		return err
	}
	defer drain(resp)
	switch {
	case resp.StatusCode == http.StatusPreconditionFailed || resp.StatusCode == http.StatusNotFound:
		return fmt.Errorf("%w: %s", connector.ErrRemoteGone, externalId)
	case resp.StatusCode >= 300:
		err := fmt.Errorf("unable to update CalDAV event %s: %s", externalId, resp.Status)
		log.Error(err)
		return connector.HTTPStatusError(resp.StatusCode, err)
	}
	return nil
}

// List runs a calendar-query REPORT over the pull window.
func (c *Calendar) List(ctx context.Context) ([]connector.RemoteEvent, error) {
	now := c.adapter.clock.Now().UTC()
	query := calendarQuery(now.AddDate(0, 0, -c.adapter.pastDays), now.AddDate(0, 0, c.adapter.futureDays))
	resp, err := c.do(ctx, "REPORT", c.collection.String(), strings.NewReader(query), map[string]string{
		"Content-Type": "application/xml; charset=utf-8",
		"Depth":        "1",
	})
	if err != nil {
		return nil, err
	}
	defer drain(resp)
	if resp.StatusCode != http.StatusMultiStatus {
		err := fmt.Errorf("unable to query CalDAV events: %s", resp.Status)
		log.Error(err)
		return nil, connector.HTTPStatusError(resp.StatusCode, err)
	}

	var ms multistatus
	if err := xml.NewDecoder(resp.Body).Decode(&ms); err != nil {
		return nil, connector.External(fmt.Errorf("invalid multistatus response: %w", err))
	}

	var events []connector.RemoteEvent
	for _, r := range ms.Responses {
		data := r.calendarData()
		if data == "" {
			continue
		}
		parsed, err := c.decode(data)
		if err != nil {
			log.Warnf("ignoring unreadable CalDAV object %s: %v", r.Href, err)
			continue
		}
		events = append(events, parsed...)
	}
	return events, nil
}

func (c *Calendar) objectURL(uid string) string {
	u := *c.collection
	u.Path += url.PathEscape(uid) + ".ics"
	return u.String()
}

func (c *Calendar) do(ctx context.Context, method string, target string, body io.Reader, headers map[string]string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, method, target, body)
	if err != nil {
		return nil, connector.External(err)
	}
	req.SetBasicAuth(c.username, c.password)
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	resp, err := c.adapter.client.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, err
		}
		return nil, connector.Transient(err)
	}
	return resp, nil
}

func drain(resp *http.Response) {
	_, _ = io.Copy(io.Discard, resp.Body)
	_ = resp.Body.Close()
}

func calendarQuery(from time.Time, to time.Time) string {
	return `<?xml version="1.0" encoding="utf-8"?>
<c:calendar-query xmlns:d="DAV:" xmlns:c="urn:ietf:params:xml:ns:caldav">
  <d:prop><d:getetag/><c:calendar-data/></d:prop>
  <c:filter>
    <c:comp-filter name="VCALENDAR">
      <c:comp-filter name="VEVENT">
        <c:time-range start="` + from.UTC().Format(davTimeLayout) + `" end="` + to.UTC().Format(davTimeLayout) + `"/>
      </c:comp-filter>
    </c:comp-filter>
  </c:filter>
</c:calendar-query>`
}

type multistatus struct {
	XMLName   xml.Name      `xml:"DAV: multistatus"`
	Responses []davResponse `xml:"DAV: response"`
}

type davResponse struct {
	Href      string     `xml:"DAV: href"`
	Propstats []propstat `xml:"DAV: propstat"`
}

type propstat struct {
	Prop struct {
		CalendarData string `xml:"urn:ietf:params:xml:ns:caldav calendar-data"`
	} `xml:"DAV: prop"`
	Status string `xml:"DAV: status"`
}

func (r davResponse) calendarData() string {
	for _, ps := range r.Propstats {
		if ps.Status == "" || strings.Contains(ps.Status, " 200 ") {
			if data := strings.TrimSpace(ps.Prop.CalendarData); data != "" {
				return data
			}
		}
	}
	return ""
}
