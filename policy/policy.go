package policy

import (
	"encoding/json"
	"time"
)

// Policy is the cached per-host NEL directive.
type Policy struct {
	ReportTo          string
	SuccessFraction   float64
	FailureFraction   float64
	IncludeSubdomains bool
}

// nelHeaderPayload is the wire shape of the NEL response header.
type nelHeaderPayload struct {
	ReportTo          string   `json:"report_to"`
	MaxAge            int64    `json:"max_age"`
	IncludeSubdomains bool     `json:"include_subdomains"`
	SuccessFraction   *float64 `json:"success_fraction"`
	FailureFraction   *float64 `json:"failure_fraction"`
}

// Policies is the process-wide (or Client-scoped) NEL policy cache, keyed
// by host.
type Policies struct {
	c *cache[Policy]
}

// NewPolicies builds an empty policy cache.
func NewPolicies() *Policies {
	return &Policies{c: newCache[Policy]()}
}

// Get returns the cached policy for host, if any and unexpired.
func (p *Policies) Get(host string) (Policy, bool) {
	return p.c.get(host)
}

// Ingest parses raw as a NEL header value for host and updates the cache.
// Malformed input is rejected silently, leaving any existing entry for host
// untouched. It reports whether the header was accepted, for callers that
// want to log the rejection.
func (p *Policies) Ingest(host, raw string) bool {
	var payload nelHeaderPayload
	if err := json.Unmarshal([]byte(raw), &payload); err != nil {
		return false
	}
	if payload.ReportTo == "" {
		return false
	}

	successFraction := 0.0
	if payload.SuccessFraction != nil {
		successFraction = *payload.SuccessFraction
	}
	failureFraction := 1.0
	if payload.FailureFraction != nil {
		failureFraction = *payload.FailureFraction
	}
	if successFraction < 0 || successFraction > 1 || failureFraction < 0 || failureFraction > 1 {
		return false
	}

	if payload.MaxAge == 0 {
		p.c.remove(host)
		return true
	}

	p.c.insert(host, Policy{
		ReportTo:          payload.ReportTo,
		SuccessFraction:   successFraction,
		FailureFraction:   failureFraction,
		IncludeSubdomains: payload.IncludeSubdomains,
	}, time.Duration(payload.MaxAge)*time.Second)
	return true
}
