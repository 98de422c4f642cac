package pool

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func constTask(v any) TaskFunc {
	return func(ctx context.Context, args []any, kwargs map[string]any) (any, error) {
		return v, nil
	}
}

func TestSubmitAndGetWait(t *testing.T) {
	p := New(2, false)
	tid, err := p.Submit(constTask(42), nil, nil, nil)
	require.NoError(t, err)

	results := p.Get(true)
	require.Contains(t, results, tid)
	assert.Equal(t, Complete, results[tid].State)
	assert.Equal(t, 42, results[tid].Value)
	p.Close()
}

func TestDependentTaskWaitsForDependency(t *testing.T) {
	p := New(1, false)
	started := make(chan struct{})
	release := make(chan struct{})

	first, err := p.Submit(func(ctx context.Context, args []any, kwargs map[string]any) (any, error) {
		close(started)
		<-release
		return "first", nil
	}, nil, nil, nil)
	require.NoError(t, err)

	second, err := p.Submit(constTask("second"), []int{first}, nil, nil)
	require.NoError(t, err)

	<-started
	// second cannot have finished yet: its dependency is still running.
	partial := p.Get(false)
	_, secondDone := partial[second]
	assert.False(t, secondDone)

	close(release)
	results := p.Get(true)
	assert.Equal(t, Complete, results[first].State)
	assert.Equal(t, Complete, results[second].State)
	p.Close()
}

func TestTaskErrorRecordsErrorState(t *testing.T) {
	p := New(1, false)
	wantErr := errors.New("boom")
	tid, err := p.Submit(func(ctx context.Context, args []any, kwargs map[string]any) (any, error) {
		return nil, wantErr
	}, nil, nil, nil)
	require.NoError(t, err)

	results := p.Get(true)
	assert.Equal(t, Error, results[tid].State)
	assert.ErrorIs(t, results[tid].Err, wantErr)
	p.Close()
}

func TestCancelPendingTask(t *testing.T) {
	p := New(1, false)
	block := make(chan struct{})
	_, err := p.Submit(func(ctx context.Context, args []any, kwargs map[string]any) (any, error) {
		<-block
		return nil, nil
	}, nil, nil, nil)
	require.NoError(t, err)

	pending, err := p.Submit(constTask(nil), nil, nil, nil)
	require.NoError(t, err)

	p.Cancel([]int{pending})
	close(block)
	results := p.Get(true)
	assert.Equal(t, Canceled, results[pending].State)
	p.Close()
}

func TestKillRunningTaskObservesContextCancellation(t *testing.T) {
	p := New(1, false)
	tid, err := p.Submit(func(ctx context.Context, args []any, kwargs map[string]any) (any, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	}, nil, nil, nil)
	require.NoError(t, err)

	// give the scheduler a moment to move the task into running.
	time.Sleep(20 * time.Millisecond)
	p.Kill([]int{tid})

	results := p.Get(true)
	assert.Equal(t, Error, results[tid].State)
	p.Close()
}

func TestSubmitAfterCloseFails(t *testing.T) {
	p := New(1, false)
	p.Close()
	_, err := p.Submit(constTask(nil), nil, nil, nil)
	assert.ErrorIs(t, err, errClosing)
}

func TestStateString(t *testing.T) {
	assert.Equal(t, "pending", Pending.String())
	assert.Equal(t, "running", Running.String())
	assert.Equal(t, "complete", Complete.String())
	assert.Equal(t, "error", Error.String())
	assert.Equal(t, "canceled", Canceled.String())
	assert.Equal(t, "unknown", State(99).String())
}
