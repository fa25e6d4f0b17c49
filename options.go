package nel

import (
	"errors"
	"io"
	"net/http"
	"os"
	"strconv"
	"time"

	"github.com/rs/zerolog"
)

// Config holds the tunables a Client is built from, assembled from
// optionDefaults, then optionEnvironment, then any Option values the caller
// supplies.
type Config struct {
	Logger *zerolog.Logger

	httpClient *http.Client

	retryTimeout       time.Duration
	retryFloor         time.Duration
	intakeCapacity     int
	retryQueueCapacity int
}

// Option is the functional-option type used to configure a Client.
type Option func(*Config) error

// optionDefaults is always applied first, providing the canonical tunables:
// a 60s retry backoff, a 10ms retry floor, and 256-entry intake/retry
// queues.
var optionDefaults Option = func(c *Config) error {
	c.Logger = defaultLogger()
	c.httpClient = &http.Client{Timeout: 10 * time.Second}
	c.retryTimeout = 60 * time.Second
	c.retryFloor = 10 * time.Millisecond
	c.intakeCapacity = 256
	c.retryQueueCapacity = 256
	return nil
}

// nelRetryTimeoutEnv is the environment variable checked by optionEnvironment
// for a retry backoff override, expressed in whole seconds.
const nelRetryTimeoutEnv = "NEL_RETRY_TIMEOUT"

// optionEnvironment is always applied after optionDefaults, letting a
// deployment tune the retry backoff without a code change.
var optionEnvironment Option = func(c *Config) error {
	raw, ok := os.LookupEnv(nelRetryTimeoutEnv)
	if !ok || raw == "" {
		return nil
	}
	secs, err := strconv.Atoi(raw)
	if err != nil || secs <= 0 {
		return nil
	}
	c.retryTimeout = time.Duration(secs) * time.Second
	return nil
}

func defaultLogger() *zerolog.Logger {
	l := zerolog.New(zerolog.NewConsoleWriter()).With().Timestamp().Logger()
	return &l
}

// withError lets an Option report a construction-time failure without the
// caller needing a second return path.
func withError(err error) Option {
	return func(*Config) error {
		return err
	}
}

// WithLogger is a functional Option replacing the Client's logger. If w is
// already a *zerolog.Logger it is used directly, otherwise it is wrapped.
func WithLogger(w io.Writer) Option {
	return func(c *Config) error {
		if w == nil {
			return errors.New("nel: cannot set a nil logger")
		}
		zl, ok := w.(*zerolog.Logger)
		if !ok {
			l := zerolog.New(w)
			zl = &l
		}
		c.Logger = zl
		return nil
	}
}

// WithHTTPClient overrides the *http.Client used to POST reports to
// collector endpoints. The client owns its own timeout; the reporter places
// no per-report deadline of its own.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Config) error {
		if hc == nil {
			return errors.New("nel: cannot set a nil http.Client")
		}
		c.httpClient = hc
		return nil
	}
}

// WithRetryTimeout overrides the canonical 60s retry backoff. Kept
// overridable since different deployments have favored different backoffs;
// 60s remains the default.
func WithRetryTimeout(d time.Duration) Option {
	return func(c *Config) error {
		if d <= 0 {
			return errors.New("nel: retry timeout must be positive")
		}
		c.retryTimeout = d
		return nil
	}
}

// WithQueueCapacities overrides the intake and retry queue capacities,
// both 256 by default.
func WithQueueCapacities(intake, retry int) Option {
	return func(c *Config) error {
		if intake <= 0 || retry <= 0 {
			return errors.New("nel: queue capacities must be positive")
		}
		c.intakeCapacity = intake
		c.retryQueueCapacity = retry
		return nil
	}
}
