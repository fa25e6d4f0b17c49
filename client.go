// Package nel is a client-side implementation of Network Error Logging: it
// lets an HTTP client ingest a server's NEL and Report-To policy headers,
// classify its own transport failures, and deliver NEL reports to the
// server-designated collector on a best-effort, sampled basis.
package nel

import (
	"bytes"
	"context"
	"fmt"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/cloudflare/nel/policy"
	"github.com/cloudflare/nel/queue"
	"github.com/cloudflare/nel/report"
	"github.com/cloudflare/nel/reporter"
)

// Client is the NEL entry point: it owns the policy and endpoint caches, the
// intake queue, and the single reporter task delivering reports to
// collectors. Its lifetime runs from New until Close.
type Client struct {
	config    *Config
	policies  *policy.Policies
	endpoints *policy.Endpoints
	intake    *queue.Queue[report.Report]
	reporter  *reporter.Reporter

	cancel context.CancelFunc
	done   chan struct{}
}

// New builds a Client and starts its reporter task in the background. Call
// Close to stop it.
func New(opts ...Option) (*Client, error) {
	c := &Config{}
	options := append([]Option{optionDefaults, optionEnvironment}, opts...)
	for _, opt := range options {
		if err := opt(c); err != nil {
			return nil, fmt.Errorf("configuring nel client: %w", err)
		}
	}

	policies := policy.NewPolicies()
	endpoints := policy.NewEndpoints()
	intake := queue.New[report.Report](c.intakeCapacity)

	rep := reporter.New(intake, policies, endpoints, c.Logger).
		WithRetryTiming(c.retryTimeout, c.retryFloor).
		WithRetryQueueCapacity(c.retryQueueCapacity)

	ctx, cancel := context.WithCancel(context.Background())
	client := &Client{
		config:    c,
		policies:  policies,
		endpoints: endpoints,
		intake:    intake,
		reporter:  rep,
		cancel:    cancel,
		done:      make(chan struct{}),
	}

	go func() {
		defer close(client.done)
		rep.Run(ctx, timeSleep, client.post)
	}()

	return client, nil
}

// timeSleep is the production Sleeper: a channel that closes once d has
// elapsed or ctx is done.
func timeSleep(ctx context.Context, d time.Duration) <-chan struct{} {
	ch := make(chan struct{})
	timer := time.NewTimer(d)
	go func() {
		defer timer.Stop()
		select {
		case <-timer.C:
		case <-ctx.Done():
		}
		close(ch)
	}()
	return ch
}

// post is the production Poster: an HTTP POST of the wire payload with the
// collector's expected content type, treating any transport error or
// non-2xx status as failure.
func (c *Client) post(ctx context.Context, endpointURL string, payload []byte) bool {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpointURL, bytes.NewReader(payload))
	if err != nil {
		c.Logger().Warn().Err(err).Str("endpoint", endpointURL).Msg("nel: building collector request")
		return false
	}
	req.Header.Set("Content-Type", "application/reports+json")

	resp, err := c.config.httpClient.Do(req)
	if err != nil {
		c.Logger().Trace().Err(err).Str("endpoint", endpointURL).Msg("nel: collector post failed")
		return false
	}
	defer resp.Body.Close()

	return resp.StatusCode >= 200 && resp.StatusCode < 300
}

// SubmitReport enqueues a report for delivery. It is non-blocking and
// infallible: on a full intake queue the report is dropped (and the drop
// logged at Warn) rather than stalling the caller.
func (c *Client) SubmitReport(r report.Report) {
	if !c.intake.TryPush(r) {
		c.Logger().Warn().Str("url", r.URL()).Msg("nel: intake queue full, dropping report")
	}
}

// NELHeader ingests the value of a response's NEL header for host. Malformed
// input leaves the policy cache untouched and is logged at Warn rather than
// returned, since a caller feeding it response headers has no useful way to
// react to a single bad header.
func (c *Client) NELHeader(host, raw string) {
	if !c.policies.Ingest(host, raw) {
		c.Logger().Warn().Str("host", host).Msg("nel: rejected malformed NEL header")
	}
}

// ReportToHeader ingests the value of a response's Report-To header for
// host. Malformed input is logged at Warn and otherwise ignored.
func (c *Client) ReportToHeader(host, raw string) {
	if !c.endpoints.Ingest(host, raw) {
		c.Logger().Warn().Str("host", host).Msg("nel: rejected malformed Report-To header")
	}
}

// Close stops the reporter task and waits for it to exit. A Client must not
// be used after Close returns.
func (c *Client) Close() {
	c.cancel()
	<-c.done
}

// Default is a lazily-initialized, process-wide Client for callers who don't
// need a dedicated instance.
var (
	defaultOnce   sync.Once
	defaultClient *Client
)

// Default returns the process-wide Client, building it with opts the first
// time it is called; opts passed on later calls are ignored.
func Default(opts ...Option) *Client {
	defaultOnce.Do(func() {
		var err error
		defaultClient, err = New(opts...)
		if err != nil {
			log.Println(fmt.Errorf("nel: initializing default client: %w", err))
			defaultClient, _ = New()
		}
	})
	return defaultClient
}
