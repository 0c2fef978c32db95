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

func TestValidate(t *testing.T) {
	require.NoError(t, Validate("0 3 * * *"))
	require.NoError(t, Validate("*/5 * * * *"))
	assert.Error(t, Validate("every night"))
	assert.Error(t, Validate(""))
}

func TestNewRejectsInvalidExpression(t *testing.T) {
	_, err := New("reindex", "61 * * * *", func(context.Context) error { return nil }, zerolog.Nop())
	assert.Error(t, err)
}

func TestNextFollowsCron(t *testing.T) {
	s, err := New("reindex", "0 3 * * *", func(context.Context) error { return nil }, zerolog.Nop())
	require.NoError(t, err)

	from := time.Date(2026, time.March, 4, 10, 15, 0, 0, time.UTC)
	next, err := s.Next(from)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2026, time.March, 5, 3, 0, 0, 0, time.UTC), next)
}

func TestRunNowSkipsOverlappingRuns(t *testing.T) {
	release := make(chan struct{})
	started := make(chan struct{})
	var calls atomic.Int32
	s, err := New("reindex", "* * * * *", func(context.Context) error {
		calls.Add(1)
		close(started)
		<-release
		return errors.New("index unavailable")
	}, zerolog.Nop())
	require.NoError(t, err)

	done := make(chan bool)
	go func() { done <- s.RunNow(context.Background()) }()
	<-started

	assert.False(t, s.RunNow(context.Background()))
	close(release)
	assert.True(t, <-done)
	assert.Equal(t, int32(1), calls.Load())
}

func TestRunStopsOnCancel(t *testing.T) {
	s, err := New("reindex", "0 3 * * *", func(context.Context) error { return nil }, zerolog.Nop())
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() { errCh <- s.Run(ctx) }()
	cancel()

	select {
	case err := <-errCh:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(2 * time.Second):
		t.Fatal("scheduler did not stop")
	}
}
