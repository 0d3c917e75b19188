package utils

import (
	"context"
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRetryStopsOnSuccess(t *testing.T) {
	calls := 0
	err := Retry(context.Background(), 3, time.Millisecond, func(attempt int) error {
		calls++
		if attempt < 2 {
			return errors.New("flaky")
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 2, calls)
}

func TestRetryExhaustsAttempts(t *testing.T) {
	boom := errors.New("boom")
	calls := 0
	err := Retry(context.Background(), 3, time.Millisecond, func(int) error {
		calls++
		return boom
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, 3, calls)
}

func TestRetryPermanentErrorIsNotRetried(t *testing.T) {
	notFound := errors.New("404")
	calls := 0
	err := Retry(context.Background(), 5, time.Millisecond, func(int) error {
		calls++
		return Permanent(notFound)
	})
	assert.Same(t, notFound, err)
	assert.Equal(t, 1, calls)
}

func TestRetryHonoursContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	calls := 0
	err := Retry(ctx, 5, time.Hour, func(int) error {
		calls++
		return errors.New("down")
	})
	require.Error(t, err)
	assert.Equal(t, 1, calls)
}

func TestSleepCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, Sleep(ctx, time.Hour), context.Canceled)
}

func TestJitterBounds(t *testing.T) {
	assert.Zero(t, Jitter(0))
	for i := 0; i < 50; i++ {
		d := Jitter(time.Second)
		assert.GreaterOrEqual(t, d, time.Second)
		assert.LessOrEqual(t, d, 1200*time.Millisecond)
	}
}

func TestSetBrowserHeaders(t *testing.T) {
	h := http.Header{}
	SetBrowserHeaders(h)
	assert.Contains(t, h.Get("User-Agent"), "Mozilla/5.0")
	assert.Equal(t, AcceptLanguage, h.Get("Accept-Language"))
}

func TestSetLevel(t *testing.T) {
	require.NoError(t, SetLevel("debug"))
	require.NoError(t, SetLevel("info"))
	assert.Error(t, SetLevel("loud"))
}
