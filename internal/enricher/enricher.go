package enricher

import (
	"net"

	"github.com/mssola/useragent"
	"github.com/oschwald/geoip2-golang"

	"github.com/OYD-Protocol/shoptrack/internal/event"
)

// Enricher fills the best-effort provenance fields of an event from the
// request transport context. Every step is optional; a missing GeoIP
// database or an unparsable address simply leaves the fields empty.
type Enricher struct {
	geoIP *geoip2.Reader
}

func New(geoIPPath string) *Enricher {
	var geoIP *geoip2.Reader
	if geoIPPath != "" {
		geoIP, _ = geoip2.Open(geoIPPath)
	}

	return &Enricher{geoIP: geoIP}
}

// Enrich records the raw provenance values and derives browser, OS, device
// type and geo information from them.
func (e *Enricher) Enrich(ev *event.Event, userAgentString, sourceAddress, sessionID string) {
	ev.UserAgent = userAgentString
	ev.SourceAddress = sourceAddress
	ev.SessionID = sessionID

	if userAgentString != "" {
		ua := useragent.New(userAgentString)
		ev.Browser, ev.BrowserVersion = ua.Browser()
		ev.OS = ua.OS()
		ev.DeviceType = deviceType(ua)
	}

	if e.geoIP != nil && sourceAddress != "" {
		host := sourceAddress
		if h, _, err := net.SplitHostPort(sourceAddress); err == nil {
			host = h
		}
		ip := net.ParseIP(host)
		if ip != nil {
			record, err := e.geoIP.City(ip)
			if err == nil {
				ev.Country = record.Country.IsoCode
				if name, ok := record.City.Names["en"]; ok {
					ev.City = name
				}
			}
		}
	}
}

func deviceType(ua *useragent.UserAgent) string {
	if ua.Mobile() {
		return "mobile"
	}
	if ua.Bot() {
		return "bot"
	}
	return "desktop"
}

func (e *Enricher) Close() {
	if e.geoIP != nil {
		e.geoIP.Close()
	}
}
