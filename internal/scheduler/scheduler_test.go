package scheduler

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAddAndRunNow(t *testing.T) {
	s := New(nil)
	defer s.Stop()

	calls := 0
	require.NoError(t, s.Add("reconcile", "0 3 * * *", func(ctx context.Context) error {
		calls++
		return ctx.Err()
	}))
	require.NoError(t, s.RunNow("reconcile"))
	assert.Equal(t, 1, calls)

	assert.Error(t, s.Add("reconcile", "0 4 * * *", func(context.Context) error { return nil }), "duplicate name")
	assert.Error(t, s.RunNow("missing"))
}

func TestAddRejectsBadSpec(t *testing.T) {
	s := New(nil)
	defer s.Stop()
	assert.Error(t, s.Add("bad", "not a cron line", func(context.Context) error { return nil }))
}

func TestRunNowPropagatesJobError(t *testing.T) {
	s := New(nil)
	defer s.Stop()
	boom := errors.New("boom")
	require.NoError(t, s.Add("manual", "", func(context.Context) error { return boom }))
	assert.ErrorIs(t, s.RunNow("manual"), boom)
}

func TestStartStop(t *testing.T) {
	s := New(nil)
	assert.False(t, s.IsRunning())

	require.NoError(t, s.Add("tick", "@every 1h", func(context.Context) error { return nil }))
	s.Start()
	s.Start()
	assert.True(t, s.IsRunning())

	s.Stop()
	assert.False(t, s.IsRunning())
	assert.Error(t, s.ctx.Err(), "job context is cancelled after stop")
}
