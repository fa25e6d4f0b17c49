package nel

import (
	"net/http"
	"net/http/httptrace"
	"time"

	"github.com/cloudflare/nel/report"
)

// RoundTripper is an illustrative http.RoundTripper adapter: it ingests a
// response's NEL and Report-To headers into the Client's caches and submits
// one report per round trip, classifying the transport error when the round
// trip fails.
type RoundTripper struct {
	// Underlying is the wrapped transport; http.DefaultTransport is used if
	// nil.
	Underlying http.RoundTripper

	// Client is the NEL client headers are ingested into and reports are
	// submitted to. Default() is used if nil.
	Client *Client
}

// RoundTrip implements http.RoundTripper.
func (rt *RoundTripper) RoundTrip(req *http.Request) (*http.Response, error) {
	underlying := rt.Underlying
	if underlying == nil {
		underlying = http.DefaultTransport
	}
	client := rt.Client
	if client == nil {
		client = Default()
	}

	start := time.Now()
	rep := report.New(req.URL.String())
	rep.SetMethod(req.Method)

	var remoteAddr string
	trace := &httptrace.ClientTrace{
		GotConn: func(info httptrace.GotConnInfo) {
			if info.Conn != nil {
				remoteAddr = info.Conn.RemoteAddr().String()
			}
		},
	}
	req = req.WithContext(httptrace.WithClientTrace(req.Context(), trace))

	resp, err := underlying.RoundTrip(req)
	rep.SetElapsed(time.Since(start))
	if remoteAddr != "" {
		rep.SetServerIP(remoteAddr)
	}

	if err != nil {
		rep.SetError(err)
		client.SubmitReport(*rep)
		return resp, err
	}

	rep.SetProtocol(protocolLabel(resp.Proto))
	rep.SetStatusCode(resp.StatusCode)
	client.ingestResponseHeaders(req.URL.Hostname(), resp.Header)
	client.SubmitReport(*rep)
	return resp, nil
}

// ingestResponseHeaders feeds a response's NEL and Report-To header values,
// if present, into the respective caches for host.
func (c *Client) ingestResponseHeaders(host string, header http.Header) {
	if v := header.Get("NEL"); v != "" {
		c.NELHeader(host, v)
	}
	if v := header.Get("Report-To"); v != "" {
		c.ReportToHeader(host, v)
	}
}

// protocolLabel maps an *http.Response's wire protocol string onto the
// short tag NEL reports use in their "protocol" field.
func protocolLabel(proto string) string {
	switch proto {
	case "HTTP/2.0":
		return "h2"
	case "HTTP/1.1", "HTTP/1.0":
		return "http/1.1"
	default:
		return proto
	}
}
