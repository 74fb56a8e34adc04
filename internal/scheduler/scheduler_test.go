package scheduler

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNextRunTime(t *testing.T) {
	ny, err := time.LoadLocation("America/New_York")
	require.NoError(t, err)
	s, err := New(Options{Hour: 16, Minute: 30, Location: ny}, zerolog.Nop())
	require.NoError(t, err)

	before := time.Date(2026, 2, 2, 15, 0, 0, 0, ny)
	assert.Equal(t, time.Date(2026, 2, 2, 16, 30, 0, 0, ny), s.Next(before))

	exactly := time.Date(2026, 2, 2, 16, 30, 0, 0, ny)
	assert.Equal(t, time.Date(2026, 2, 3, 16, 30, 0, 0, ny), s.Next(exactly))

	// 23:00 UTC on Feb 2 is 18:00 in New York, so the next run is Feb 3.
	utc := time.Date(2026, 2, 2, 23, 0, 0, 0, time.UTC)
	assert.Equal(t, time.Date(2026, 2, 3, 16, 30, 0, 0, ny), s.Next(utc))

	// Month end rolls over.
	late := time.Date(2026, 1, 31, 20, 0, 0, 0, ny)
	assert.Equal(t, time.Date(2026, 2, 1, 16, 30, 0, 0, ny), s.Next(late))
}

func TestNewRejectsBadTime(t *testing.T) {
	_, err := New(Options{Hour: 24}, zerolog.Nop())
	assert.Error(t, err)
	_, err = New(Options{Minute: -1}, zerolog.Nop())
	assert.Error(t, err)
}

func TestRunOnStartThenStops(t *testing.T) {
	s, err := New(Options{Hour: 3, RunOnStart: true}, zerolog.Nop())
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	var calls atomic.Int32
	err = s.Run(ctx, func(ctx context.Context, at time.Time) error {
		calls.Add(1)
		cancel()
		return errors.New("tick errors are logged")
	})

	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, int32(1), calls.Load())
}

func TestRunHonoursStartupDelayCancel(t *testing.T) {
	s, err := New(Options{StartupDelay: time.Hour}, zerolog.Nop())
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	err = s.Run(ctx, func(context.Context, time.Time) error {
		t.Fatal("tick must not run")
		return nil
	})
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}
