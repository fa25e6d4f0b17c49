package selector

import (
	"math/rand"
	"testing"

	"github.com/cloudflare/nel/policy"
)

type fakeReport struct {
	url     string
	host    string
	success bool
}

func (f fakeReport) URL() string      { return f.url }
func (f fakeReport) Host() string     { return f.host }
func (f fakeReport) IsSuccess() bool  { return f.success }

func setup(t *testing.T, successFraction, failureFraction float64) *Selector {
	t.Helper()
	pols := policy.NewPolicies()
	eps := policy.NewEndpoints()
	pols.Ingest("example.com", `{"report_to":"g","max_age":60,"success_fraction":`+ffmt(successFraction)+`,"failure_fraction":`+ffmt(failureFraction)+`}`)
	eps.Ingest("example.com", `{"group":"g","max_age":60,"endpoints":[{"url":"https://c/r"}]}`)
	s := New(pols, eps)
	s.Rand = rand.New(rand.NewSource(1))
	return s
}

func ffmt(f float64) string {
	if f == 0 {
		return "0"
	}
	if f == 1 {
		return "1"
	}
	return "0.5"
}

func TestSelectNoPolicyReturnsNone(t *testing.T) {
	s := New(policy.NewPolicies(), policy.NewEndpoints())
	_, ok := s.Select(fakeReport{url: "https://example.com/"}, true)
	if ok {
		t.Fatal("expected none without a cached policy")
	}
}

func TestSelectSuccessFractionZeroDrops(t *testing.T) {
	s := setup(t, 0, 1)
	_, ok := s.Select(fakeReport{url: "https://example.com/", success: true}, true)
	if ok {
		t.Fatal("expected success report to be dropped with success_fraction=0")
	}
}

func TestSelectSuccessFractionOneSelects(t *testing.T) {
	s := setup(t, 1, 1)
	url, ok := s.Select(fakeReport{url: "https://example.com/", success: true}, true)
	if !ok || url != "https://c/r" {
		t.Fatalf("got %q,%v want https://c/r,true", url, ok)
	}
}

func TestSelectRetryBypassesSampling(t *testing.T) {
	s := setup(t, 0, 0)
	url, ok := s.Select(fakeReport{url: "https://example.com/", success: false}, false)
	if !ok || url != "https://c/r" {
		t.Fatalf("retry selection should bypass sampling, got %q,%v", url, ok)
	}
}

func TestSelectMissingHostReturnsNone(t *testing.T) {
	s := setup(t, 1, 1)
	_, ok := s.Select(fakeReport{url: "/relative/path"}, true)
	if ok {
		t.Fatal("expected none for a hostless URL")
	}
}

func TestSelectHostOverride(t *testing.T) {
	s := setup(t, 1, 1)
	url, ok := s.Select(fakeReport{url: "https://other.example/", host: "example.com", success: true}, true)
	if !ok || url != "https://c/r" {
		t.Fatalf("host override should drive cache lookup, got %q,%v", url, ok)
	}
}
