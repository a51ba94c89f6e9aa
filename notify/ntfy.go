package notify

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/geekxflood/idrac2ntfy/logging"
)

// Dispatcher defaults.
const (
	DefaultTimeout        = 15 * time.Second
	DefaultMaxAttempts    = 3
	DefaultInitialBackoff = 500 * time.Millisecond
	DefaultMaxBackoff     = 10 * time.Second
)

// maxErrorBody bounds how much of a failed response is kept for logging.
const maxErrorBody = 512

// AttemptRecorder observes every HTTP request the Dispatcher makes.
// outcome is "delivered" or a DeliveryKind name.
type AttemptRecorder interface {
	RecordAttempt(outcome string)
}

// DispatcherConfig configures a Dispatcher. Zero durations and attempt
// counts take the package defaults.
type DispatcherConfig struct {
	URL            string
	Token          string
	Timeout        time.Duration
	MaxAttempts    int
	InitialBackoff time.Duration
	MaxBackoff     time.Duration

	// Client overrides the HTTP client. Its Timeout is left untouched.
	Client *http.Client

	Logger   logging.Logger
	Recorder AttemptRecorder
}

// Dispatcher delivers Messages to one ntfy topic. It is safe for concurrent
// use; connections are pooled by the underlying http.Client.
type Dispatcher struct {
	url            string
	token          string
	maxAttempts    int
	initialBackoff time.Duration
	maxBackoff     time.Duration
	client         *http.Client
	logger         logging.Logger
	recorder       AttemptRecorder
}

// NewDispatcher returns a Dispatcher for config. It fails when the URL is
// not an absolute http(s) URL.
func NewDispatcher(config DispatcherConfig) (*Dispatcher, error) {
	u, err := url.Parse(config.URL)
	if err != nil {
		return nil, fmt.Errorf("invalid ntfy url: %w", err)
	}
	if (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return nil, fmt.Errorf("invalid ntfy url %q: must be an absolute http(s) URL", config.URL)
	}

	if config.Token != headerValue(config.Token) {
		return nil, errors.New("invalid ntfy token: contains whitespace or control characters")
	}

	d := &Dispatcher{
		url:            config.URL,
		token:          config.Token,
		maxAttempts:    config.MaxAttempts,
		initialBackoff: config.InitialBackoff,
		maxBackoff:     config.MaxBackoff,
		client:         config.Client,
		logger:         config.Logger,
		recorder:       config.Recorder,
	}
	if d.maxAttempts <= 0 {
		d.maxAttempts = DefaultMaxAttempts
	}
	if d.initialBackoff <= 0 {
		d.initialBackoff = DefaultInitialBackoff
	}
	if d.maxBackoff <= 0 {
		d.maxBackoff = DefaultMaxBackoff
	}
	if d.maxBackoff < d.initialBackoff {
		d.maxBackoff = d.initialBackoff
	}
	if d.client == nil {
		timeout := config.Timeout
		if timeout <= 0 {
			timeout = DefaultTimeout
		}
		d.client = &http.Client{Timeout: timeout}
	}
	if d.logger == nil {
		d.logger = logging.NewComponentLogger("dispatcher", "ntfy")
	}
	return d, nil
}

// Deliver POSTs msg to the ntfy topic. Transient failures are retried with
// exponential backoff up to the configured number of attempts; 4xx
// responses are not retried. Cancelling ctx aborts any pending retry.
//
// The returned error, if any, is a *DeliveryError.
func (d *Dispatcher) Deliver(ctx context.Context, msg Message) error {
	var (
		attempts int
		last     *DeliveryError
	)

	operation := func() error {
		attempts++
		derr := d.post(ctx, msg)
		d.record(derr)
		if derr == nil {
			return nil
		}
		derr.Attempts = attempts
		last = derr

		if derr.Kind != KindTransient {
			return backoff.Permanent(derr)
		}
		if attempts < d.maxAttempts {
			d.logger.WarnContext(ctx, "ntfy delivery failed, retrying",
				"attempt", attempts,
				"max_attempts", d.maxAttempts,
				"status", derr.StatusCode,
				"error", derr.Err)
		}
		return derr
	}

	err := backoff.Retry(operation, backoff.WithContext(d.policy(), ctx))
	if err == nil {
		d.logger.DebugContext(ctx, "ntfy delivery succeeded", "attempts", attempts)
		return nil
	}

	var derr *DeliveryError
	if errors.As(err, &derr) {
		return derr
	}

	// Retry gave up on the context rather than on an attempt.
	if last == nil {
		return &DeliveryError{Kind: KindTransient, Attempts: attempts, Err: err}
	}
	last.Err = fmt.Errorf("%w (last error: %v)", err, last.Err)
	return last
}

func (d *Dispatcher) policy() backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = d.initialBackoff
	b.MaxInterval = d.maxBackoff
	b.MaxElapsedTime = 0
	return backoff.WithMaxRetries(b, uint64(d.maxAttempts-1))
}

// post makes one HTTP request and classifies the outcome.
func (d *Dispatcher) post(ctx context.Context, msg Message) *DeliveryError {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, d.url, strings.NewReader(msg.Body))
	if err != nil {
		return &DeliveryError{Kind: KindRejected, Err: fmt.Errorf("create request: %w", err)}
	}

	req.Header.Set("Content-Type", "text/plain; charset=utf-8")
	req.Header.Set("Title", headerValue(msg.Title))
	req.Header.Set("Markdown", "no")
	if priority := headerValue(string(msg.Priority)); priority != "" {
		req.Header.Set("Priority", priority)
	}
	if tags := headerTags(msg.Tags); tags != "" {
		req.Header.Set("Tags", tags)
	}
	if d.token != "" {
		req.Header.Set("Authorization", "Bearer "+d.token)
	}

	resp, err := d.client.Do(req)
	if err != nil {
		return &DeliveryError{Kind: KindTransient, Err: fmt.Errorf("perform request: %w", err)}
	}
	defer resp.Body.Close()

	kind, ok := classifyStatus(resp.StatusCode)
	if ok {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}

	body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	_, _ = io.Copy(io.Discard, resp.Body)

	derr := &DeliveryError{Kind: kind, StatusCode: resp.StatusCode}
	if text := strings.TrimSpace(string(body)); text != "" {
		derr.Err = errors.New(text)
	}
	return derr
}

// headerTags joins tags for the Tags header, dropping the ones that are
// empty once sanitized.
func headerTags(tags []string) string {
	clean := make([]string, 0, len(tags))
	for _, t := range tags {
		if t = headerValue(t); t != "" {
			clean = append(clean, t)
		}
	}
	return strings.Join(clean, ",")
}

func (d *Dispatcher) record(derr *DeliveryError) {
	if d.recorder == nil {
		return
	}
	if derr == nil {
		d.recorder.RecordAttempt("delivered")
		return
	}
	d.recorder.RecordAttempt(derr.Kind.String())
}
