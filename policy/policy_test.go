package policy

import "testing"

func TestNELHeaderIngestAndRemoval(t *testing.T) {
	p := NewPolicies()

	if !p.Ingest("example.com", `{"report_to":"g","max_age":60,"failure_fraction":1.0}`) {
		t.Fatal("expected valid header to be accepted")
	}
	got, ok := p.Get("example.com")
	if !ok {
		t.Fatal("expected policy to be cached")
	}
	if got.ReportTo != "g" || got.SuccessFraction != 0 || got.FailureFraction != 1 {
		t.Fatalf("got %+v, unexpected defaults/values", got)
	}

	if !p.Ingest("example.com", `{"report_to":"g","max_age":0}`) {
		t.Fatal("expected max_age=0 removal to be accepted")
	}
	if _, ok := p.Get("example.com"); ok {
		t.Fatal("expected policy to be removed after max_age=0")
	}
}

func TestNELHeaderMalformedDoesNotMutate(t *testing.T) {
	p := NewPolicies()
	p.Ingest("example.com", `{"report_to":"g","max_age":60}`)

	cases := []string{
		`not json`,
		`{"report_to":"","max_age":60}`,
		`{"report_to":"g","max_age":60,"success_fraction":2.0}`,
		`{"report_to":"g","max_age":60,"failure_fraction":-1}`,
	}
	for _, raw := range cases {
		if p.Ingest("example.com", raw) {
			t.Fatalf("expected %q to be rejected", raw)
		}
	}

	got, ok := p.Get("example.com")
	if !ok || got.ReportTo != "g" {
		t.Fatal("malformed headers must not disturb the existing cache entry")
	}
}

func TestEndpointsIngestAndLookup(t *testing.T) {
	e := NewEndpoints()
	if !e.Ingest("example.com", `{"group":"g","max_age":60,"endpoints":[{"url":"https://c/r"}]}`) {
		t.Fatal("expected valid header to be accepted")
	}
	urls, ok := e.Get("example.com", "g")
	if !ok || len(urls) != 1 || urls[0] != "https://c/r" {
		t.Fatalf("got %v, want [https://c/r]", urls)
	}

	// Mutating the returned slice must not affect the cache (snapshot clone).
	urls[0] = "mutated"
	again, _ := e.Get("example.com", "g")
	if again[0] != "https://c/r" {
		t.Fatal("Get must return a snapshot copy, not a reference into the cache")
	}
}

func TestEndpointsRejectsEmptyURL(t *testing.T) {
	e := NewEndpoints()
	if e.Ingest("example.com", `{"group":"g","max_age":60,"endpoints":[{"url":""}]}`) {
		t.Fatal("expected empty endpoint URL to be rejected")
	}
	if _, ok := e.Get("example.com", "g"); ok {
		t.Fatal("rejected header must not populate the cache")
	}
}

func TestCacheCapacityEvictsNearestExpiration(t *testing.T) {
	p := NewPolicies()
	// Fill the cache to capacity. The first entry is short-lived, so it has
	// the nearest expiration and is the one the overflowing insert evicts.
	p.Ingest("a", `{"report_to":"g","max_age":60}`)
	for i := 1; i < capacity; i++ {
		host := string(rune('a' + i))
		p.Ingest(host, `{"report_to":"g","max_age":3600}`)
	}
	p.Ingest("overflow", `{"report_to":"g","max_age":3600}`)
	if _, ok := p.Get("overflow"); !ok {
		t.Fatal("expected the newly inserted entry to be present")
	}
	if _, ok := p.Get("a"); ok {
		t.Fatal("expected the entry with the nearest expiration to be evicted")
	}
	if n := p.c.inner.ItemCount(); n != capacity {
		t.Fatalf("ItemCount() = %d, want %d", n, capacity)
	}
}
