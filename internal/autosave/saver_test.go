package autosave_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"alcyxob/setpad/internal/autosave"
	"alcyxob/setpad/internal/autosave/autosavetest"
	"alcyxob/setpad/internal/domain"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

const delay = autosave.DefaultDelay

type recorder struct {
	mu    sync.Mutex
	saved []string
	err   error
}

func (r *recorder) save(_ context.Context, rec domain.LogRecord) (domain.LogRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return domain.LogRecord{}, r.err
	}
	r.saved = append(r.saved, rec.TableName)
	return rec, nil
}

func (r *recorder) names() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.saved...)
}

func named(name string) domain.LogRecord {
	return domain.LogRecord{ID: "log-1", TableName: name}
}

func newSaver(rec *recorder) (*autosave.Saver, *autosavetest.Clock) {
	clock := autosavetest.NewClock(time.Unix(0, 0))
	return autosave.New(context.Background(), rec.save, autosave.Options{Clock: clock}), clock
}

func TestDebounceKeepsLatest(t *testing.T) {
	rec := &recorder{}
	s, clock := newSaver(rec)

	s.Schedule(named("a"))
	clock.Advance(delay / 2)
	s.Schedule(named("b"))
	clock.Advance(delay / 2)
	s.Schedule(named("c"))
	clock.Advance(delay - time.Millisecond)

	assert.Empty(t, rec.names(), "nothing saved before the edits settle")
	assert.True(t, s.Pending())

	clock.Advance(time.Millisecond)
	assert.Equal(t, []string{"c"}, rec.names())
	assert.False(t, s.Pending())
	assert.Zero(t, clock.Active())
}

func TestEditDuringSaveIsNotDropped(t *testing.T) {
	started := make(chan string, 4)
	release := make(chan struct{})
	save := func(_ context.Context, rec domain.LogRecord) (domain.LogRecord, error) {
		started <- rec.TableName
		<-release
		return rec, nil
	}
	clock := autosavetest.NewClock(time.Unix(0, 0))
	s := autosave.New(context.Background(), save, autosave.Options{Clock: clock})

	s.Schedule(named("a"))
	firstDone := make(chan struct{})
	go func() {
		defer close(firstDone)
		clock.Advance(delay)
	}()
	assert.Equal(t, "a", <-started)

	// Edit while "a" is still being written; its timer fires mid-save.
	s.Schedule(named("b"))
	clock.Advance(delay)
	assert.True(t, s.Pending())
	select {
	case name := <-started:
		t.Fatalf("second save %q started while first in flight", name)
	default:
	}

	close(release)
	<-firstDone

	clock.Advance(delay)
	assert.Equal(t, "b", <-started)
	assert.False(t, s.Pending())
}

func TestFlush(t *testing.T) {
	rec := &recorder{}
	s, clock := newSaver(rec)

	require.NoError(t, s.Flush(context.Background()), "nothing pending")
	assert.Empty(t, rec.names())

	s.Schedule(named("a"))
	require.NoError(t, s.Flush(context.Background()))
	assert.Equal(t, []string{"a"}, rec.names())
	assert.Zero(t, clock.Active(), "flush stops the timer")

	clock.Advance(delay)
	assert.Equal(t, []string{"a"}, rec.names(), "no duplicate save")
}

func TestCancel(t *testing.T) {
	rec := &recorder{}
	s, clock := newSaver(rec)

	s.Schedule(named("a"))
	s.Cancel()
	assert.False(t, s.Pending())

	s.Schedule(named("b"))
	clock.Advance(delay)
	require.NoError(t, s.Flush(context.Background()))
	assert.Empty(t, rec.names())
}

func TestFailedSaveStaysPending(t *testing.T) {
	rec := &recorder{err: errors.New("offline")}
	var reported []error
	clock := autosavetest.NewClock(time.Unix(0, 0))
	s := autosave.New(context.Background(), rec.save, autosave.Options{
		Clock:   clock,
		OnError: func(err error) { reported = append(reported, err) },
	})

	s.Schedule(named("a"))
	clock.Advance(delay)
	require.Len(t, reported, 1)
	assert.True(t, s.Pending())
	assert.Zero(t, clock.Active(), "failures are not retried on a timer")

	rec.mu.Lock()
	rec.err = nil
	rec.mu.Unlock()

	require.NoError(t, s.Flush(context.Background()))
	assert.Equal(t, []string{"a"}, rec.names())
	assert.False(t, s.Pending())
}

func TestFlushWaitsForRunningSave(t *testing.T) {
	release := make(chan struct{})
	started := make(chan struct{}, 1)
	var mu sync.Mutex
	var order []string
	save := func(_ context.Context, rec domain.LogRecord) (domain.LogRecord, error) {
		if rec.TableName == "a" {
			started <- struct{}{}
			<-release
		}
		mu.Lock()
		order = append(order, rec.TableName)
		mu.Unlock()
		return rec, nil
	}
	clock := autosavetest.NewClock(time.Unix(0, 0))
	s := autosave.New(context.Background(), save, autosave.Options{Clock: clock})

	s.Schedule(named("a"))
	go clock.Advance(delay)
	<-started
	s.Schedule(named("b"))

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, s.Flush(ctx), context.DeadlineExceeded)

	close(release)
	require.NoError(t, s.Flush(context.Background()))
	require.NoError(t, s.Wait(context.Background()))

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []string{"a", "b"}, order)
}

// launchedClock hands out timers whose callbacks have already been launched
// by the runtime, so Stop never prevents them from running.
type launchedClock struct {
	mu        sync.Mutex
	callbacks []func()
}

type launchedTimer struct{}

func (launchedTimer) Stop() bool { return false }

func (c *launchedClock) Now() time.Time { return time.Unix(0, 0) }

func (c *launchedClock) AfterFunc(_ time.Duration, f func()) autosave.Timer {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.callbacks = append(c.callbacks, f)
	return launchedTimer{}
}

func (c *launchedClock) callback(i int) func() {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.callbacks[i]
}

func TestReplacedTimerCallbackIsIgnored(t *testing.T) {
	rec := &recorder{}
	clock := &launchedClock{}
	s := autosave.New(context.Background(), rec.save, autosave.Options{Clock: clock})

	s.Schedule(named("a"))
	s.Schedule(named("b"))

	// The first timer fires after the second edit replaced it.
	clock.callback(0)()
	assert.Empty(t, rec.names(), "the replaced timer must not save")
	assert.True(t, s.Pending())

	s.Schedule(named("c"))
	clock.callback(1)()
	assert.Empty(t, rec.names(), "edit c restarted the quiet period")

	clock.callback(2)()
	assert.Equal(t, []string{"c"}, rec.names())
	assert.False(t, s.Pending())
}

type ctxKey struct{}

func TestFlushSavesWithSaverValues(t *testing.T) {
	var seen []any
	save := func(ctx context.Context, rec domain.LogRecord) (domain.LogRecord, error) {
		seen = append(seen, ctx.Value(ctxKey{}))
		return rec, nil
	}
	owner := context.WithValue(context.Background(), ctxKey{}, "u1")
	clock := autosavetest.NewClock(time.Unix(0, 0))
	s := autosave.New(owner, save, autosave.Options{Clock: clock})

	s.Schedule(named("a"))
	require.NoError(t, s.Flush(context.Background()))
	assert.Equal(t, []any{"u1"}, seen)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	var got error
	s2 := autosave.New(owner, func(ctx context.Context, rec domain.LogRecord) (domain.LogRecord, error) {
		got = ctx.Err()
		return rec, nil
	}, autosave.Options{Clock: clock})
	s2.Schedule(named("b"))
	require.NoError(t, s2.Flush(ctx))
	assert.ErrorIs(t, got, context.Canceled, "the caller still bounds the save")
}

func TestHoldKeepsRecordUntilRelease(t *testing.T) {
	rec := &recorder{}
	s, clock := newSaver(rec)

	s.Schedule(named("a"))
	s.Hold()
	clock.Advance(delay)
	assert.Empty(t, rec.names())
	assert.True(t, s.Pending())

	s.Schedule(named("b"))
	clock.Advance(delay)
	assert.Empty(t, rec.names(), "edits while held are only buffered")

	s.Release()
	clock.Advance(delay)
	assert.Equal(t, []string{"b"}, rec.names())
	assert.False(t, s.Pending())
}

func TestSystemClock(t *testing.T) {
	rec := &recorder{}
	s := autosave.New(context.Background(), rec.save, autosave.Options{Delay: 5 * time.Millisecond})

	s.Schedule(named("a"))
	require.Eventually(t, func() bool { return len(rec.names()) == 1 }, time.Second, time.Millisecond)
	require.NoError(t, s.Wait(context.Background()))
}
