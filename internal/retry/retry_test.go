package retry

import (
	"context"
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/timmy/legisync/internal/logger"
	"github.com/timmy/legisync/internal/remote"
)

type recordingSleeper struct {
	delays []time.Duration
}

func (r *recordingSleeper) sleep(ctx context.Context, d time.Duration) error {
	r.delays = append(r.delays, d)
	return ctx.Err()
}

func newTestExecutor() (*Executor, *recordingSleeper) {
	rec := &recordingSleeper{}
	return &Executor{Sleep: rec.sleep, Logger: logger.Discard()}, rec
}

func TestDoRetriesUpToMaxAttempts(t *testing.T) {
	exec, rec := newTestExecutor()
	policy := Policy{MaxAttempts: 4, BaseDelay: 10 * time.Millisecond, Backoff: Exponential}

	calls := 0
	transient := &remote.Error{Method: http.MethodGet, Path: "/x", NoResponse: true}
	_, err := Do(context.Background(), exec, policy, "fetch x", func(ctx context.Context) (int, error) {
		calls++
		return 0, transient
	})

	require.Error(t, err)
	assert.Equal(t, 4, calls)
	assert.Equal(t, []time.Duration{10 * time.Millisecond, 20 * time.Millisecond, 40 * time.Millisecond}, rec.delays)

	var rerr *Error
	require.ErrorAs(t, err, &rerr)
	assert.Equal(t, "fetch x", rerr.Label)
	assert.Equal(t, 4, rerr.Attempts)
	assert.ErrorIs(t, err, transient)
}

func TestDoStopsOnTerminalError(t *testing.T) {
	exec, rec := newTestExecutor()
	calls := 0
	notFound := &remote.Error{Method: http.MethodGet, Path: "/x", StatusCode: http.StatusNotFound}

	_, err := Do(context.Background(), exec, DefaultPolicy(), "fetch x", func(ctx context.Context) (string, error) {
		calls++
		return "", notFound
	})

	require.Error(t, err)
	assert.Equal(t, 1, calls)
	assert.Empty(t, rec.delays)
	assert.Equal(t, http.StatusNotFound, remote.StatusCode(err))
}

func TestDoSucceedsAfterTransientFailures(t *testing.T) {
	exec, rec := newTestExecutor()
	calls := 0

	got, err := Do(context.Background(), exec, DefaultPolicy(), "fetch x", func(ctx context.Context) (string, error) {
		calls++
		if calls < 3 {
			return "", &remote.Error{StatusCode: http.StatusServiceUnavailable}
		}
		return "ok", nil
	})

	require.NoError(t, err)
	assert.Equal(t, "ok", got)
	assert.Equal(t, 3, calls)
	assert.Len(t, rec.delays, 2)
}

func TestDoHonoursCancellationDuringSleep(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	exec := &Executor{
		Logger: logger.Discard(),
		Sleep: func(ctx context.Context, d time.Duration) error {
			cancel()
			return ctx.Err()
		},
	}
	calls := 0

	_, err := Do(ctx, exec, DefaultPolicy(), "fetch x", func(ctx context.Context) (int, error) {
		calls++
		return 0, errors.New("connection reset")
	})

	require.Error(t, err)
	assert.Equal(t, 1, calls)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestWithRetry(t *testing.T) {
	exec, _ := newTestExecutor()
	calls := 0

	err := exec.WithRetry(context.Background(), func(ctx context.Context) error {
		calls++
		return errors.New("flaky")
	}, 2, time.Millisecond, "commit")

	require.Error(t, err)
	assert.Equal(t, 2, calls)
	assert.Contains(t, err.Error(), "commit: failed after 2 attempt(s)")
}

func TestWithRetryUsesBaseDelayAsGiven(t *testing.T) {
	exec, rec := newTestExecutor()

	err := exec.WithRetry(context.Background(), func(ctx context.Context) error {
		return errors.New("flaky")
	}, 3, 10*time.Millisecond, "commit")

	require.Error(t, err)
	assert.Equal(t, []time.Duration{10 * time.Millisecond, 20 * time.Millisecond}, rec.delays)
}

func TestPolicyDelayClamps(t *testing.T) {
	tests := []struct {
		name    string
		policy  Policy
		attempt int
		want    time.Duration
	}{
		{"constant", Policy{BaseDelay: time.Second, Backoff: Constant}, 5, time.Second},
		{"linear", Policy{BaseDelay: time.Second, Backoff: Linear}, 3, 3 * time.Second},
		{"exponential", Policy{BaseDelay: time.Second, Backoff: Exponential}, 4, 8 * time.Second},
		{"ceiling", Policy{BaseDelay: time.Second, MaxDelay: 5 * time.Second, Backoff: Exponential}, 10, 5 * time.Second},
		{"floor", Policy{BaseDelay: 0, MinDelay: 50 * time.Millisecond, Backoff: Linear}, 2, 50 * time.Millisecond},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.policy.delay(tt.attempt))
		})
	}
}

func TestPolicyDelayJitterStaysInBounds(t *testing.T) {
	p := Policy{BaseDelay: 100 * time.Millisecond, Backoff: Constant, Jitter: 0.5}
	for i := 0; i < 100; i++ {
		d := p.delay(1)
		assert.GreaterOrEqual(t, d, 50*time.Millisecond)
		assert.LessOrEqual(t, d, 150*time.Millisecond)
	}
}

func TestParseBackoff(t *testing.T) {
	for _, name := range []string{"", "exponential", "Linear", "constant"} {
		_, err := ParseBackoff(name)
		assert.NoError(t, err, name)
	}
	_, err := ParseBackoff("fibonacci")
	assert.Error(t, err)
}
