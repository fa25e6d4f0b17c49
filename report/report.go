// Package report defines the Report value type captured by producers and
// serialized onto the wire for the NEL collector.
package report

import (
	"encoding/json"
	"net"
	"strings"
	"time"

	"github.com/cloudflare/nel/classify"
)

// Report is a record of one observed network event. It is value-typed and
// immutable once built: setters return the receiver for chaining at capture
// time, but a Report handed to SubmitReport must not be mutated afterwards.
type Report struct {
	captured time.Time

	url          string
	hostOverride string
	referrer     string
	serverIP     string
	protocol     string
	method       string
	statusCode   int
	elapsed      time.Duration

	hasError bool
	err      classify.Error
}

// New starts building a Report for the given request URL, stamping the
// capture time used later to compute the wire "age".
func New(url string) *Report {
	return &Report{url: url, captured: time.Now()}
}

// Clone returns a value copy of the report, safe to hand to a second
// consumer (e.g. the retry path) without sharing mutable state: Report has
// no reference fields, so a plain copy suffices.
func (r Report) Clone() Report {
	return r
}

// SetHost overrides the host used for policy/endpoint cache lookups,
// instead of the host parsed from the request URL. Useful when the
// responding server's identity differs from the URL's authority (e.g. the
// request went through a CONNECT proxy).
func (r *Report) SetHost(host string) *Report {
	r.hostOverride = host
	return r
}

// Host returns the explicit host override, or "" if none was set.
func (r Report) Host() string {
	return r.hostOverride
}

// SetReferrer records the referring document URL, if any.
func (r *Report) SetReferrer(referrer string) *Report {
	r.referrer = referrer
	return r
}

// SetServerIP records the server IP the request was sent to, stripping any
// port suffix, including the "[v6]:port" bracketed form: NEL reports carry
// a bare IP, not a host:port pair.
func (r *Report) SetServerIP(hostport string) *Report {
	r.serverIP = stripPort(hostport)
	return r
}

func stripPort(hostport string) string {
	if host, _, err := net.SplitHostPort(hostport); err == nil {
		return host
	}
	// No port present (net.SplitHostPort failed because there was no ":" or
	// the bracketed literal had nothing to split): return as-is, trimming any
	// stray brackets from an unterminated "[v6]" literal.
	return strings.Trim(hostport, "[]")
}

// SetProtocol records the protocol label, e.g. "h2" or "wireguard".
func (r *Report) SetProtocol(protocol string) *Report {
	r.protocol = protocol
	return r
}

// SetMethod records the HTTP method.
func (r *Report) SetMethod(method string) *Report {
	r.method = method
	return r
}

// SetStatusCode records the HTTP status code; 0 means no response was
// received.
func (r *Report) SetStatusCode(code int) *Report {
	r.statusCode = code
	return r
}

// SetElapsed records the time spent on the network event.
func (r *Report) SetElapsed(d time.Duration) *Report {
	r.elapsed = d
	return r
}

// SetError runs the classifier over err and stores its NEL {class,subclass},
// including the protocol-aware wireguard substitution. Passing a nil err is
// a no-op: it does not clear a previously set error.
func (r *Report) SetError(err error) *Report {
	if err == nil {
		return r
	}
	r.hasError = true
	r.err = classify.Classify(err, r.protocol)
	return r
}

// IsSuccess reports whether the report carries no error.
func (r Report) IsSuccess() bool {
	return !r.hasError
}

// URL returns the report's triggering request URL.
func (r Report) URL() string {
	return r.url
}

// Error returns the classified error and whether one is set.
func (r Report) Error() (classify.Error, bool) {
	return r.err, r.hasError
}

// age computes the wire "age" in milliseconds as of now, clamped to 0: a
// report must never claim to be younger than the moment it was captured.
func (r Report) age(now time.Time) int64 {
	d := now.Sub(r.captured)
	if d < 0 {
		return 0
	}
	return d.Milliseconds()
}

// wireEnvelope is the single-element array entry serialized to the
// collector.
type wireEnvelope struct {
	Age  int64    `json:"age"`
	Type string   `json:"type"`
	URL  string   `json:"url"`
	Body wireBody `json:"body"`
}

type wireBody struct {
	Referrer         string  `json:"referrer"`
	SamplingFraction float64 `json:"sampling_fraction"`
	ServerIP         string  `json:"server_ip"`
	Protocol         string  `json:"protocol"`
	Method           string  `json:"method"`
	StatusCode       int     `json:"status_code"`
	ElapsedTime      int64   `json:"elapsed_time"`
	Phase            string  `json:"phase"`
	Type             string  `json:"type"`
}

// Serialize renders the report as the JSON array-of-one NEL wire payload.
// Success reports serialize with phase "application" and type "ok": there
// is no failure to classify, so the wire type collapses to a fixed token.
func (r Report) Serialize() ([]byte, error) {
	return r.serializeAt(time.Now())
}

func (r Report) serializeAt(now time.Time) ([]byte, error) {
	phase := "application"
	typ := "ok"
	if r.hasError {
		phase = r.err.Phase()
		typ = r.err.WireType()
	}

	envelope := [1]wireEnvelope{{
		Age:  r.age(now),
		Type: "network-error",
		URL:  r.url,
		Body: wireBody{
			Referrer:         r.referrer,
			SamplingFraction: 1.0,
			ServerIP:         r.serverIP,
			Protocol:         r.protocol,
			Method:           r.method,
			StatusCode:       r.statusCode,
			ElapsedTime:      r.elapsed.Milliseconds(),
			Phase:            phase,
			Type:             typ,
		},
	}}
	return json.Marshal(envelope)
}
