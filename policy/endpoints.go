package policy

import (
	"encoding/json"
	"time"
)

// reportToPayload is the wire shape of the Report-To response header.
type reportToPayload struct {
	Group     string             `json:"group"`
	MaxAge    int64              `json:"max_age"`
	Endpoints []reportToEndpoint `json:"endpoints"`
}

type reportToEndpoint struct {
	URL string `json:"url"`
}

// Endpoints is the process-wide (or Client-scoped) endpoint-group cache,
// keyed by "{host}:{group}".
type Endpoints struct {
	c *cache[[]string]
}

// NewEndpoints builds an empty endpoint-group cache.
func NewEndpoints() *Endpoints {
	return &Endpoints{c: newCache[[]string]()}
}

// Get returns a copy of the cached endpoint URL list for (host, group), if
// any and unexpired.
func (e *Endpoints) Get(host, group string) ([]string, bool) {
	urls, ok := e.c.get(endpointKey(host, group))
	if !ok {
		return nil, false
	}
	out := make([]string, len(urls))
	copy(out, urls)
	return out, true
}

// Ingest parses raw as a Report-To header value for host and updates the
// cache. Malformed input, an empty group, an empty endpoint list, or any
// empty endpoint URL is rejected silently, leaving existing entries
// untouched.
func (e *Endpoints) Ingest(host, raw string) bool {
	var payload reportToPayload
	if err := json.Unmarshal([]byte(raw), &payload); err != nil {
		return false
	}
	if payload.Group == "" || len(payload.Endpoints) == 0 {
		return false
	}

	urls := make([]string, len(payload.Endpoints))
	for i, ep := range payload.Endpoints {
		if ep.URL == "" {
			return false
		}
		urls[i] = ep.URL
	}

	key := endpointKey(host, payload.Group)
	if payload.MaxAge == 0 {
		e.c.remove(key)
		return true
	}

	e.c.insert(key, urls, time.Duration(payload.MaxAge)*time.Second)
	return true
}

func endpointKey(host, group string) string {
	return host + ":" + group
}
