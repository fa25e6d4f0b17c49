// Package selector decides, for a given report, whether to drop it (for
// sampling) and which cached collector endpoint to POST it to.
package selector

import (
	"math/rand"
	"net/url"

	"github.com/cloudflare/nel/policy"
	"github.com/cloudflare/nel/report"
)

// Report is the minimal view of a report.Report the selector needs, kept as
// an interface so callers can pass either a *report.Report or a test double.
type Report interface {
	URL() string
	Host() string
	IsSuccess() bool
}

// Selector picks a collector endpoint for a report, consulting the policy
// and endpoint caches and applying per-origin sampling. A false second
// return value means "do not POST, treat as success", distinct from a POST
// actually failing.
type Selector struct {
	Policies  *policy.Policies
	Endpoints *policy.Endpoints

	// Rand is the sampling source and must not be nil. New sets it to a
	// freshly seeded rand.Rand; tests replace it for deterministic draws.
	Rand *rand.Rand
}

// New builds a Selector backed by the given caches, with its own rand.Rand
// seeded once from the process-wide source: sampling draws have no need for
// cryptographic quality.
func New(policies *policy.Policies, endpoints *policy.Endpoints) *Selector {
	return &Selector{
		Policies:  policies,
		Endpoints: endpoints,
		Rand:      rand.New(rand.NewSource(rand.Int63())),
	}
}

// Select returns the endpoint URL to POST r to, or ("", false) to mean
// "treat as delivered, nothing to send". When evaluateDrop is true, the
// per-bucket sampling fraction may cause a drop even though a policy and
// endpoint group exist. Retries pass evaluateDrop=false: a report already
// sampled in on its first attempt must not be resampled out on retry.
func (s *Selector) Select(r Report, evaluateDrop bool) (string, bool) {
	host := r.Host()
	if host == "" {
		host = hostOf(r.URL())
	}
	if host == "" {
		return "", false
	}

	pol, ok := s.Policies.Get(host)
	if !ok {
		return "", false
	}

	urls, ok := s.Endpoints.Get(host, pol.ReportTo)
	if !ok || len(urls) == 0 {
		return "", false
	}

	if evaluateDrop {
		u := s.Rand.Float64()
		threshold := pol.FailureFraction
		if r.IsSuccess() {
			threshold = pol.SuccessFraction
		}
		if u >= threshold {
			return "", false
		}
	}

	return urls[s.Rand.Intn(len(urls))], true
}

func hostOf(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return ""
	}
	return u.Hostname()
}

// compile-time assertion that *report.Report satisfies Report.
var _ Report = (*report.Report)(nil)
