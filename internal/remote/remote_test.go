package remote_test

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/raysh454/sitedrop/internal/remote"
	"github.com/raysh454/sitedrop/internal/testutil"
)

func newClient(attempts int) *remote.Client {
	return remote.NewClient(remote.Policy{Attempts: attempts, Delay: time.Millisecond}, &testutil.DummyLogger{})
}

// ─── Classify ──────────────────────────────────────────────────────────

func TestClassify_StatusCodes(t *testing.T) {
	cases := []struct {
		code int
		want remote.Kind
	}{
		{404, remote.KindNotFound},
		{409, remote.KindConflict},
		{422, remote.KindUnprocessable},
		{408, remote.KindTransient},
		{429, remote.KindTransient},
		{500, remote.KindTransient},
		{503, remote.KindTransient},
		{400, remote.KindFatal},
		{401, remote.KindFatal},
		{403, remote.KindFatal},
	}
	for _, tc := range cases {
		t.Run(fmt.Sprint(tc.code), func(t *testing.T) {
			err := fmt.Errorf("call: %w", &remote.StatusError{StatusCode: tc.code})
			assert.Equal(t, tc.want, remote.Classify(err))
		})
	}
}

type timeoutErr struct{}

func (timeoutErr) Error() string   { return "i/o timeout" }
func (timeoutErr) Timeout() bool   { return true }
func (timeoutErr) Temporary() bool { return true }

var _ net.Error = timeoutErr{}

func TestClassify_NetworkAndContext(t *testing.T) {
	assert.Equal(t, remote.KindTransient, remote.Classify(timeoutErr{}))
	assert.Equal(t, remote.KindTransient, remote.Classify(context.DeadlineExceeded))
	assert.Equal(t, remote.KindTransient, remote.Classify(io.ErrUnexpectedEOF))
	assert.Equal(t, remote.KindFatal, remote.Classify(context.Canceled))
	assert.Equal(t, remote.KindFatal, remote.Classify(errors.New("boom")))
}

func TestKindOf_NilHasNoKind(t *testing.T) {
	assert.Equal(t, remote.KindNone, remote.KindOf(nil))
	assert.False(t, remote.IsNotFound(nil))
	assert.True(t, remote.IsNotFound(&remote.StatusError{StatusCode: 404}))
}

// ─── Client.Do ─────────────────────────────────────────────────────────

func TestDo_SucceedsFirstTry(t *testing.T) {
	c := newClient(3)
	calls := 0
	err := c.Do(context.Background(), remote.Op{Name: "get"}, func(context.Context) error {
		calls++
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 1, calls)
}

func TestDo_RetriesTransientThenSucceeds(t *testing.T) {
	logger := &testutil.DummyLogger{}
	c := remote.NewClient(remote.Policy{Attempts: 3, Delay: time.Millisecond}, logger)
	calls := 0
	err := c.Do(context.Background(), remote.Op{Name: "get"}, func(context.Context) error {
		calls++
		if calls < 3 {
			return &remote.StatusError{StatusCode: 502}
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 3, calls)
	assert.Len(t, logger.Warns, 2)
}

func TestDo_ExhaustedTransientBecomesFatal(t *testing.T) {
	c := newClient(3)
	calls := 0
	err := c.Do(context.Background(), remote.Op{Name: "get pages"}, func(context.Context) error {
		calls++
		return &remote.StatusError{StatusCode: 503}
	})
	require.Error(t, err)
	assert.Equal(t, 3, calls)

	var rerr *remote.Error
	require.ErrorAs(t, err, &rerr)
	assert.Equal(t, remote.KindFatal, rerr.Kind)
	assert.True(t, rerr.Exhausted())
	assert.Equal(t, 3, rerr.Attempts)
	assert.Equal(t, 503, rerr.StatusCode)
	assert.Contains(t, err.Error(), "gave up after 3 attempts")
}

func TestDo_FatalIsNotRetried(t *testing.T) {
	c := newClient(5)
	calls := 0
	err := c.Do(context.Background(), remote.Op{Name: "put"}, func(context.Context) error {
		calls++
		return &remote.StatusError{StatusCode: 401, Message: "Bad credentials"}
	})
	require.Error(t, err)
	assert.Equal(t, 1, calls)
	assert.Equal(t, remote.KindFatal, remote.KindOf(err))
}

func TestDo_BranchKindsPassThrough(t *testing.T) {
	c := newClient(3)
	for code, want := range map[int]remote.Kind{
		404: remote.KindNotFound,
		409: remote.KindConflict,
		422: remote.KindUnprocessable,
	} {
		calls := 0
		err := c.Do(context.Background(), remote.Op{Name: "op"}, func(context.Context) error {
			calls++
			return &remote.StatusError{StatusCode: code}
		})
		assert.Equal(t, want, remote.KindOf(err), "status %d", code)
		assert.Equal(t, 1, calls, "status %d", code)
	}
}

func TestFatal_ReclassifiesWithoutExhausting(t *testing.T) {
	c := newClient(3)
	err := c.Do(context.Background(), remote.Op{Name: "create"}, func(context.Context) error {
		return &remote.StatusError{StatusCode: 422, Message: "name already exists"}
	})
	require.Equal(t, remote.KindUnprocessable, remote.KindOf(err))

	fatal := remote.Fatal("create", err)
	assert.Equal(t, remote.KindFatal, remote.KindOf(fatal))
	assert.Equal(t, 422, fatal.StatusCode)
	assert.Equal(t, 1, fatal.Attempts)
	assert.False(t, fatal.Exhausted())
	assert.Equal(t, "create: provider returned 422: name already exists", fatal.Error())

	var serr *remote.StatusError
	assert.True(t, errors.As(fatal, &serr))
}

func TestDo_NonIdempotentNeverRetries(t *testing.T) {
	c := newClient(5)
	calls := 0
	err := c.Do(context.Background(), remote.Op{Name: "create", Class: remote.NonIdempotent, Attempts: 5},
		func(context.Context) error {
			calls++
			return &remote.StatusError{StatusCode: 500}
		})
	require.Error(t, err)
	assert.Equal(t, 1, calls)
	assert.Equal(t, remote.KindFatal, remote.KindOf(err))
}

func TestDo_OpOverridesPolicy(t *testing.T) {
	c := newClient(2)
	calls := 0
	_ = c.Do(context.Background(), remote.Op{Name: "get", Attempts: 4, Delay: time.Millisecond},
		func(context.Context) error {
			calls++
			return timeoutErr{}
		})
	assert.Equal(t, 4, calls)
}

func TestDo_PerAttemptTimeout(t *testing.T) {
	c := remote.NewClient(remote.Policy{Attempts: 2, Delay: time.Millisecond, Timeout: 10 * time.Millisecond}, &testutil.DummyLogger{})
	calls := 0
	err := c.Do(context.Background(), remote.Op{Name: "slow"}, func(ctx context.Context) error {
		calls++
		<-ctx.Done()
		return ctx.Err()
	})
	require.Error(t, err)
	assert.Equal(t, 2, calls)
	assert.True(t, errors.Is(err, context.DeadlineExceeded))
}

func TestDo_CanceledContextStops(t *testing.T) {
	c := remote.NewClient(remote.Policy{Attempts: 5, Delay: time.Hour}, &testutil.DummyLogger{})
	ctx, cancel := context.WithCancel(context.Background())
	calls := 0
	err := c.Do(ctx, remote.Op{Name: "get"}, func(context.Context) error {
		calls++
		cancel()
		return &remote.StatusError{StatusCode: 500}
	})
	require.Error(t, err)
	assert.Equal(t, 1, calls)
	assert.Equal(t, remote.KindFatal, remote.KindOf(err))
}

func TestCall_ReturnsValue(t *testing.T) {
	c := newClient(2)
	calls := 0
	v, err := remote.Call(context.Background(), c, remote.Op{Name: "get"}, func(context.Context) (string, error) {
		calls++
		if calls == 1 {
			return "", io.ErrUnexpectedEOF
		}
		return "payload", nil
	})
	require.NoError(t, err)
	assert.Equal(t, "payload", v)
}

// ─── Retry ─────────────────────────────────────────────────────────────

func TestRetry_StopsOnNonRetryable(t *testing.T) {
	sentinel := errors.New("stop")
	calls := 0
	err := remote.Retry(context.Background(), "activate", 3, time.Millisecond,
		func(err error) bool { return !errors.Is(err, sentinel) },
		func(context.Context) error {
			calls++
			return sentinel
		})
	assert.Same(t, sentinel, err)
	assert.Equal(t, 1, calls)
}

func TestRetry_ExhaustsWithLastError(t *testing.T) {
	calls := 0
	err := remote.Retry(context.Background(), "activate", 3, time.Millisecond,
		func(error) bool { return true },
		func(context.Context) error {
			calls++
			return fmt.Errorf("attempt %d", calls)
		})
	require.Error(t, err)
	assert.Equal(t, 3, calls)

	var rerr *remote.Error
	require.ErrorAs(t, err, &rerr)
	assert.True(t, rerr.Exhausted())
	assert.Equal(t, remote.KindFatal, rerr.Kind)
	assert.Contains(t, err.Error(), "attempt 3")
}

func TestRetry_ZeroDelayAndAttemptsAreClamped(t *testing.T) {
	calls := 0
	err := remote.Retry(context.Background(), "op", 0, 0,
		func(error) bool { return true },
		func(context.Context) error {
			calls++
			return errors.New("x")
		})
	require.Error(t, err)
	assert.Equal(t, 1, calls)
}

// ─── Sleep ─────────────────────────────────────────────────────────────

func TestSleep_ReturnsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	start := time.Now()
	err := remote.Sleep(ctx, time.Hour)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Less(t, time.Since(start), time.Second)
}

func TestSleep_ZeroIsImmediate(t *testing.T) {
	require.NoError(t, remote.Sleep(context.Background(), 0))
}
