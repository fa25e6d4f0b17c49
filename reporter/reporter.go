// Package reporter implements the single long-lived cooperative task that
// drains the intake queue and manages the retry queue. One goroutine owns
// all mutable state and cooperatively selects between "next report to pop"
// and "retry timer fires", with the POST call itself as the only
// suspension point in between.
package reporter

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/cloudflare/nel/policy"
	"github.com/cloudflare/nel/queue"
	"github.com/cloudflare/nel/report"
	"github.com/cloudflare/nel/selector"
)

// RetryTimeout is the canonical retry backoff applied after a failed
// delivery attempt.
const RetryTimeout = 60 * time.Second

// RetryFloor is the minimum sleep the retry timer will ever be armed with,
// even for a badly overdue retry.
const RetryFloor = 10 * time.Millisecond

// RetryQueueCapacity bounds the secondary retry queue: once full, newly
// failed reports are dropped rather than grown without bound.
const RetryQueueCapacity = 256

// Sleeper is the host-supplied delay primitive. It must return once d has
// elapsed or ctx is done.
type Sleeper func(ctx context.Context, d time.Duration) <-chan struct{}

// Poster is the host-supplied transport. It returns true if the payload was
// delivered successfully.
type Poster func(ctx context.Context, endpointURL string, payload []byte) bool

// Reporter owns the retry state and drives reports from the intake queue to
// the host's Poster, retrying failed deliveries on a timer.
type Reporter struct {
	intake   *queue.Queue[report.Report]
	selector *selector.Selector
	log      *zerolog.Logger

	retryQueue *queue.Queue[report.Failed]

	retryTimeout time.Duration
	retryFloor   time.Duration

	// nextFailed and retryTimer hold the single pending retry, if any. Run
	// is the sole owner and sole caller of every method that touches them,
	// so no lock is needed.
	nextFailed *report.Failed
	retryTimer <-chan struct{}
}

// New builds a Reporter draining intake and consulting the policy/endpoint
// caches owned by policies/endpoints through a Selector, using the
// canonical RetryTimeout, RetryFloor and RetryQueueCapacity. Use
// WithRetryTiming and WithRetryQueueCapacity before the first call to Run to
// override them.
func New(intake *queue.Queue[report.Report], policies *policy.Policies, endpoints *policy.Endpoints, log *zerolog.Logger) *Reporter {
	return &Reporter{
		intake:       intake,
		selector:     selector.New(policies, endpoints),
		log:          log,
		retryQueue:   queue.New[report.Failed](RetryQueueCapacity),
		retryTimeout: RetryTimeout,
		retryFloor:   RetryFloor,
	}
}

// WithRetryTiming overrides the retry backoff and floor, returning r for
// chaining. Must be called before Run.
func (r *Reporter) WithRetryTiming(timeout, floor time.Duration) *Reporter {
	r.retryTimeout = timeout
	r.retryFloor = floor
	return r
}

// WithRetryQueueCapacity replaces the retry queue with one of the given
// capacity. Must be called before Run, and before any report has failed.
func (r *Reporter) WithRetryQueueCapacity(capacity int) *Reporter {
	r.retryQueue = queue.New[report.Failed](capacity)
	return r
}

// Run executes the reporter loop forever, until ctx is canceled. It holds
// exactly one pending "pop next" wait and at most one armed retry timer at
// any time, so cancellation during an in-flight POST simply loses the
// current report, an accepted loss for a best-effort delivery mechanism.
func (r *Reporter) Run(ctx context.Context, sleep Sleeper, post Poster) {
	for {
		select {
		case <-ctx.Done():
			return

		case rep := <-r.intake.Chan():
			r.deliverFirstAttempt(ctx, rep, post, sleep)

		case <-r.retryTimer:
			r.deliverRetry(ctx, r.nextFailed, post, sleep)
		}
	}
}

// deliverFirstAttempt handles a report popped fresh from the intake queue:
// serialize, attempt delivery, and on failure either arm the retry timer
// directly (if nothing is already pending) or queue it behind the current
// retry.
func (r *Reporter) deliverFirstAttempt(ctx context.Context, rep report.Report, post Poster, sleep Sleeper) {
	payload, err := rep.Serialize()
	if err != nil {
		r.log.Warn().Err(err).Msg("reporter: failed to serialize report, dropping")
		return
	}

	if r.postIfSelected(ctx, rep, payload, true, post) {
		return
	}

	failed := report.Failed{LastTry: time.Now(), Original: rep}
	if r.nextFailed == nil {
		r.nextFailed = &failed
		r.retryTimer = sleep(ctx, r.retryTimeout)
		return
	}
	if !r.retryQueue.TryPush(failed) {
		r.log.Warn().Str("url", rep.URL()).Msg("reporter: retry queue full, dropping failed report")
	}
}

// deliverRetry fires when the armed retry timer expires: it reattempts
// failed's delivery, requeues it on another failure, then arms the timer for
// whatever retry is now next in line, if any.
func (r *Reporter) deliverRetry(ctx context.Context, failed *report.Failed, post Poster, sleep Sleeper) {
	if failed == nil {
		r.nextFailed = nil
		r.retryTimer = nil
		return
	}

	rep := failed.Original
	payload, err := rep.Serialize()
	if err != nil {
		r.log.Warn().Err(err).Msg("reporter: failed to serialize retried report, dropping")
	} else if !r.postIfSelected(ctx, rep, payload, false, post) {
		if !r.retryQueue.TryPush(report.Failed{LastTry: time.Now(), Original: rep}) {
			r.log.Warn().Str("url", rep.URL()).Msg("reporter: retry queue full, dropping retried report")
		}
	}

	next, ok := r.retryQueue.TryPop()
	if !ok {
		r.nextFailed = nil
		r.retryTimer = nil
		return
	}
	r.nextFailed = &next
	r.retryTimer = sleep(ctx, next.RetryAfter(time.Now(), r.retryTimeout, r.retryFloor))
}

// postIfSelected resolves the endpoint to use (if any) and performs the
// POST. A report with no eligible endpoint is treated as delivered: a drop
// here is not an error, NEL treats best-effort delivery as normal.
func (r *Reporter) postIfSelected(ctx context.Context, rep report.Report, payload []byte, evaluateDrop bool, post Poster) bool {
	endpoint, ok := r.selector.Select(rep, evaluateDrop)
	if !ok {
		return true
	}
	return post(ctx, endpoint, payload)
}
