package notify

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/geekxflood/idrac2ntfy/alert"
	"github.com/geekxflood/idrac2ntfy/idrac"
	"github.com/geekxflood/idrac2ntfy/logging"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type capturedRequest struct {
	method string
	header http.Header
	body   string
}

type attemptLog struct {
	mu       sync.Mutex
	outcomes []string
}

func (l *attemptLog) RecordAttempt(outcome string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.outcomes = append(l.outcomes, outcome)
}

// ntfyStub answers every request with the next status in statuses, repeating
// the last one.
func ntfyStub(t *testing.T, statuses ...int) (*httptest.Server, *atomic.Int32, chan capturedRequest) {
	t.Helper()

	var calls atomic.Int32
	requests := make(chan capturedRequest, 16)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := int(calls.Add(1))
		body, _ := io.ReadAll(r.Body)
		requests <- capturedRequest{method: r.Method, header: r.Header.Clone(), body: string(body)}

		status := statuses[len(statuses)-1]
		if n <= len(statuses) {
			status = statuses[n-1]
		}
		w.WriteHeader(status)
		if status >= 300 {
			_, _ = io.WriteString(w, `{"code":40101,"error":"stub"}`)
		}
	}))
	t.Cleanup(srv.Close)
	return srv, &calls, requests
}

func newTestDispatcher(t *testing.T, url string, recorder AttemptRecorder) *Dispatcher {
	t.Helper()
	base := slog.New(slog.NewTextHandler(io.Discard, nil))
	d, err := NewDispatcher(DispatcherConfig{
		URL:            url,
		Token:          "tk_secret",
		MaxAttempts:    3,
		InitialBackoff: time.Millisecond,
		MaxBackoff:     5 * time.Millisecond,
		Logger:         logging.NewComponentLoggerFrom(base, "dispatcher", "ntfy"),
		Recorder:       recorder,
	})
	require.NoError(t, err)
	return d
}

var testMessage = Message{
	Priority: PriorityUrgent,
	Icon:     IconCritical,
	Title:    "idrac-r740 Critical: Fan Critical",
	Body:     "Fan RPM below threshold",
	Tags:     []string{"rotating_light", "server", "fan_critical"},
}

func TestDeliverSendsNtfyRequest(t *testing.T) {
	srv, calls, requests := ntfyStub(t, http.StatusOK)
	recorder := &attemptLog{}
	d := newTestDispatcher(t, srv.URL+"/idrac", recorder)

	require.NoError(t, d.Deliver(context.Background(), testMessage))
	assert.Equal(t, int32(1), calls.Load())
	assert.Equal(t, []string{"delivered"}, recorder.outcomes)

	req := <-requests
	assert.Equal(t, http.MethodPost, req.method)
	assert.Equal(t, "Fan RPM below threshold", req.body)
	assert.Equal(t, "Bearer tk_secret", req.header.Get("Authorization"))
	assert.Equal(t, "idrac-r740 Critical: Fan Critical", req.header.Get("Title"))
	assert.Equal(t, "urgent", req.header.Get("Priority"))
	assert.Equal(t, "rotating_light,server,fan_critical", req.header.Get("Tags"))
	assert.Equal(t, "no", req.header.Get("Markdown"))
	assert.Equal(t, "text/plain; charset=utf-8", req.header.Get("Content-Type"))
}

func TestDeliverOmitsAuthorizationWithoutToken(t *testing.T) {
	srv, _, requests := ntfyStub(t, http.StatusOK)
	d, err := NewDispatcher(DispatcherConfig{URL: srv.URL})
	require.NoError(t, err)

	require.NoError(t, d.Deliver(context.Background(), testMessage))
	req := <-requests
	assert.Empty(t, req.header.Get("Authorization"))
}

func TestDeliverRetriesTransientUpToMaxAttempts(t *testing.T) {
	srv, calls, _ := ntfyStub(t, http.StatusServiceUnavailable)
	recorder := &attemptLog{}
	d := newTestDispatcher(t, srv.URL, recorder)

	err := d.Deliver(context.Background(), testMessage)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrTransient))
	assert.False(t, errors.Is(err, ErrRejected))

	var derr *DeliveryError
	require.ErrorAs(t, err, &derr)
	assert.Equal(t, KindTransient, derr.Kind)
	assert.Equal(t, 3, derr.Attempts)
	assert.Equal(t, http.StatusServiceUnavailable, derr.StatusCode)
	assert.Equal(t, int32(3), calls.Load())
	assert.Equal(t, []string{"transient", "transient", "transient"}, recorder.outcomes)
}

func TestDeliverRecoversAfterTransientFailure(t *testing.T) {
	srv, calls, _ := ntfyStub(t, http.StatusBadGateway, http.StatusOK)
	d := newTestDispatcher(t, srv.URL, nil)

	require.NoError(t, d.Deliver(context.Background(), testMessage))
	assert.Equal(t, int32(2), calls.Load())
}

func TestDeliverDoesNotRetryClientErrors(t *testing.T) {
	tests := []struct {
		name     string
		status   int
		sentinel error
		kind     DeliveryKind
	}{
		{"unauthorized", http.StatusUnauthorized, ErrUnauthorized, KindUnauthorized},
		{"forbidden", http.StatusForbidden, ErrUnauthorized, KindUnauthorized},
		{"bad request", http.StatusBadRequest, ErrRejected, KindRejected},
		{"too large", http.StatusRequestEntityTooLarge, ErrRejected, KindRejected},
		{"rate limited", http.StatusTooManyRequests, ErrRejected, KindRejected},
		{"redirect without location", http.StatusMovedPermanently, ErrRejected, KindRejected},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv, calls, _ := ntfyStub(t, tt.status)
			d := newTestDispatcher(t, srv.URL, nil)

			err := d.Deliver(context.Background(), testMessage)
			assert.ErrorIs(t, err, tt.sentinel)
			assert.NotErrorIs(t, err, ErrTransient)

			var derr *DeliveryError
			require.ErrorAs(t, err, &derr)
			assert.Equal(t, tt.kind, derr.Kind)
			assert.Equal(t, 1, derr.Attempts)
			assert.Equal(t, tt.status, derr.StatusCode)
			assert.Contains(t, derr.Error(), "stub")
			assert.Equal(t, int32(1), calls.Load())
		})
	}
}

func TestDeliverNetworkErrorIsTransient(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	d := newTestDispatcher(t, url, nil)
	err := d.Deliver(context.Background(), testMessage)

	var derr *DeliveryError
	require.ErrorAs(t, err, &derr)
	assert.Equal(t, KindTransient, derr.Kind)
	assert.Equal(t, 3, derr.Attempts)
	assert.Zero(t, derr.StatusCode)
}

func TestDeliverStopsOnCancelledContext(t *testing.T) {
	srv, calls, _ := ntfyStub(t, http.StatusServiceUnavailable)
	base := slog.New(slog.NewTextHandler(io.Discard, nil))
	d, err := NewDispatcher(DispatcherConfig{
		URL:            srv.URL,
		MaxAttempts:    5,
		InitialBackoff: time.Hour,
		MaxBackoff:     time.Hour,
		Logger:         logging.NewComponentLoggerFrom(base, "dispatcher", "ntfy"),
	})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		for calls.Load() == 0 {
			time.Sleep(time.Millisecond)
		}
		cancel()
	}()

	done := make(chan error, 1)
	go func() { done <- d.Deliver(ctx, testMessage) }()

	select {
	case err := <-done:
		assert.ErrorIs(t, err, ErrTransient)
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(5 * time.Second):
		t.Fatal("Deliver did not return after cancellation")
	}
	assert.Equal(t, int32(1), calls.Load())
}

func TestNewDispatcherValidatesURL(t *testing.T) {
	for _, u := range []string{"", "ntfy.example.com/idrac", "ftp://ntfy.example.com/x", "http://"} {
		_, err := NewDispatcher(DispatcherConfig{URL: u})
		assert.Error(t, err, u)
	}
}

func TestDeliveryErrorMessage(t *testing.T) {
	err := &DeliveryError{Kind: KindUnauthorized, StatusCode: 401, Attempts: 1}
	assert.Equal(t, "ntfy delivery unauthorized after 1 attempt(s): HTTP 401", err.Error())
	assert.Equal(t, "DeliveryKind(9)", DeliveryKind(9).String())
}

func TestClassifyStatus(t *testing.T) {
	tests := []struct {
		code int
		ok   bool
		kind DeliveryKind
	}{
		{http.StatusOK, true, 0},
		{http.StatusAccepted, true, 0},
		{http.StatusContinue, false, KindRejected},
		{http.StatusFound, false, KindRejected},
		{http.StatusNotModified, false, KindRejected},
		{http.StatusUnauthorized, false, KindUnauthorized},
		{http.StatusForbidden, false, KindUnauthorized},
		{http.StatusNotFound, false, KindRejected},
		{http.StatusTooManyRequests, false, KindRejected},
		{http.StatusInternalServerError, false, KindTransient},
		{http.StatusBadGateway, false, KindTransient},
		{599, false, KindTransient},
		{600, false, KindRejected},
	}

	for _, tt := range tests {
		t.Run(strconv.Itoa(tt.code), func(t *testing.T) {
			kind, ok := classifyStatus(tt.code)
			assert.Equal(t, tt.ok, ok, tt.code)
			if !tt.ok {
				assert.Equal(t, tt.kind, kind, tt.code)
			}
		})
	}
}

func TestDeliverSanitizesTrapControlledHeaders(t *testing.T) {
	srv, calls, requests := ntfyStub(t, http.StatusOK)
	recorder := &attemptLog{}
	d := newTestDispatcher(t, srv.URL, recorder)

	msg := NewBuilder(BuilderConfig{Tags: []string{"rack\r\n2"}}).Build(alert.Alert{
		Title:       "iDRAC Alert (1.3.6.1.4.1.674.99\r\nx)",
		Description: "Unrecognized SNMP trap 1.3.6.1.4.1.674.99\r\nx from 192.0.2.10",
		Severity:    idrac.Unknown,
		Source:      "iDRAC",
	})

	require.NoError(t, d.Deliver(context.Background(), msg))
	assert.Equal(t, int32(1), calls.Load())
	assert.Equal(t, []string{"delivered"}, recorder.outcomes)

	req := <-requests
	assert.Equal(t, "iDRAC Unknown: iDRAC Alert (1.3.6.1.4.1.674.99 x)", req.header.Get("Title"))
	assert.Equal(t, "question,server,rack 2", req.header.Get("Tags"))
	assert.Equal(t, "Unrecognized SNMP trap 1.3.6.1.4.1.674.99\r\nx from 192.0.2.10", req.body,
		"the body is sent verbatim")
}

func TestDeliverSanitizesUnbuiltMessages(t *testing.T) {
	srv, calls, requests := ntfyStub(t, http.StatusOK)
	d := newTestDispatcher(t, srv.URL, nil)

	msg := testMessage
	msg.Title = "bad\x00title\x7f"
	msg.Tags = []string{"ok", "\n", "a\tb"}

	require.NoError(t, d.Deliver(context.Background(), msg))
	assert.Equal(t, int32(1), calls.Load())

	req := <-requests
	assert.Equal(t, "bad title", req.header.Get("Title"))
	assert.Equal(t, "ok,a b", req.header.Get("Tags"))
}

func TestNewDispatcherRejectsUnsafeToken(t *testing.T) {
	_, err := NewDispatcher(DispatcherConfig{URL: "https://ntfy.sh/x", Token: "tk\r\nX-Injected: 1"})
	assert.Error(t, err)
}
