package retry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func observedLogger() (*zap.Logger, *observer.ObservedLogs) {
	core, logs := observer.New(zapcore.DebugLevel)
	return zap.New(core), logs
}

func TestDo_FailsTwiceThenSucceeds(t *testing.T) {
	logger, logs := observedLogger()
	calls := 0

	result, err := Do(context.Background(), logger, Policy{Attempts: 3, Delay: 0}, "fetch",
		func(ctx context.Context) (string, error) {
			calls++
			if calls < 3 {
				return "", errors.New("venue busy")
			}
			return "ok", nil
		})

	require.NoError(t, err)
	assert.Equal(t, "ok", result)
	assert.Equal(t, 3, calls)

	failed := logs.FilterMessage("Operation attempt failed").All()
	require.Len(t, failed, 2)
	assert.Equal(t, int64(1), failed[0].ContextMap()["attempt"])
	assert.Equal(t, int64(2), failed[1].ContextMap()["attempt"])
}

func TestDo_SuccessIsNotRetried(t *testing.T) {
	logger, logs := observedLogger()
	calls := 0

	_, err := Do(context.Background(), logger, Policy{Attempts: 5}, "noop",
		func(ctx context.Context) (int, error) {
			calls++
			return 1, nil
		})

	assert.NoError(t, err)
	assert.Equal(t, 1, calls)
	assert.Equal(t, 0, logs.Len())
}

func TestDo_ReturnsLastErrorOnExhaustion(t *testing.T) {
	logger, logs := observedLogger()
	calls := 0

	_, err := Do(context.Background(), logger, Policy{Attempts: 3, Delay: time.Millisecond}, "submit",
		func(ctx context.Context) (int, error) {
			calls++
			return 0, errors.New("attempt " + string(rune('0'+calls)))
		})

	require.Error(t, err)
	assert.Equal(t, "attempt 3", err.Error())
	assert.Equal(t, 3, calls)
	assert.Equal(t, 3, logs.FilterMessage("Operation attempt failed").Len())
	assert.Equal(t, 1, logs.FilterMessage("Operation failed after all attempts").Len())
}

func TestDo_ZeroAttemptsRunsOnce(t *testing.T) {
	logger, _ := observedLogger()
	calls := 0

	_, err := Do(context.Background(), logger, Policy{Attempts: 0, Delay: -time.Second}, "once",
		func(ctx context.Context) (int, error) {
			calls++
			return 0, errors.New("boom")
		})

	assert.Error(t, err)
	assert.Equal(t, 1, calls)
}

func TestDo_PermanentStopsImmediately(t *testing.T) {
	logger, logs := observedLogger()
	calls := 0
	cause := errors.New("lot below minimum")

	_, err := Do(context.Background(), logger, Policy{Attempts: 3}, "order",
		func(ctx context.Context) (int, error) {
			calls++
			return 0, Permanent(cause)
		})

	assert.ErrorIs(t, err, cause)
	assert.Equal(t, 1, calls)
	assert.Equal(t, 1, logs.FilterMessage("Operation failed permanently, not retrying").Len())
}

func TestDo_ContextCancelAbortsWait(t *testing.T) {
	logger, _ := observedLogger()
	ctx, cancel := context.WithCancel(context.Background())
	cause := errors.New("timeout")

	start := time.Now()
	_, err := Do(ctx, logger, Policy{Attempts: 3, Delay: time.Hour}, "slow",
		func(ctx context.Context) (int, error) {
			cancel()
			return 0, cause
		})

	assert.ErrorIs(t, err, cause)
	assert.Contains(t, err.Error(), "retry aborted")
	assert.Less(t, time.Since(start), time.Minute)
}

func TestRun(t *testing.T) {
	logger, _ := observedLogger()
	calls := 0

	err := Run(context.Background(), logger, Policy{Attempts: 2}, "close", func(ctx context.Context) error {
		calls++
		if calls == 1 {
			return errors.New("requote")
		}
		return nil
	})

	assert.NoError(t, err)
	assert.Equal(t, 2, calls)
}
