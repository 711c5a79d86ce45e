package sweeper

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeCollector struct {
	mu      sync.Mutex
	results map[string][]int
	errs    map[string]error
	calls   map[string]int
}

func (f *fakeCollector) GarbageCollect(ctx context.Context, typeKey string) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.calls == nil {
		f.calls = map[string]int{}
	}
	f.calls[typeKey]++
	if err := f.errs[typeKey]; err != nil {
		return -1, err
	}
	queue := f.results[typeKey]
	if len(queue) == 0 {
		return 0, nil
	}
	n := queue[0]
	f.results[typeKey] = queue[1:]
	return n, nil
}

func (f *fakeCollector) callCount(typeKey string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[typeKey]
}

func TestRunOnce_DrainsUntilEmpty(t *testing.T) {
	c := &fakeCollector{results: map[string][]int{"avatar": {50, 50, 3}}}
	s := New(c, []string{"avatar"}, WithMaxBatches(10))

	got := s.RunOnce(context.Background())
	assert.Equal(t, 103, got["avatar"])
	assert.Equal(t, 4, c.callCount("avatar"))
}

func TestRunOnce_SingleBatchByDefault(t *testing.T) {
	c := &fakeCollector{results: map[string][]int{"avatar": {50, 50}}}
	s := New(c, []string{"avatar"})

	got := s.RunOnce(context.Background())
	assert.Equal(t, 50, got["avatar"])
	assert.Equal(t, 1, c.callCount("avatar"))
}

func TestRunOnce_FailureDoesNotStopOtherProfiles(t *testing.T) {
	c := &fakeCollector{
		results: map[string][]int{"clip": {2}},
		errs:    map[string]error{"avatar": errors.New("disk error")},
	}
	s := New(c, []string{"avatar", "clip"})

	got := s.RunOnce(context.Background())
	assert.Equal(t, 0, got["avatar"])
	assert.Equal(t, 2, got["clip"])
}

func TestStart_InvalidSchedule(t *testing.T) {
	s := New(&fakeCollector{}, []string{"avatar"}, WithSchedule("not a schedule"))
	assert.Error(t, s.Start())
}

func TestStart_RunsOnSchedule(t *testing.T) {
	c := &fakeCollector{}
	s := New(c, []string{"avatar"}, WithSchedule("@every 1s"))
	require.NoError(t, s.Start())
	assert.Error(t, s.Start())

	assert.Eventually(t, func() bool { return c.callCount("avatar") > 0 }, 3*time.Second, 50*time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	s.Stop(ctx)
}

func TestSweeper_LogsUnderComponent(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, nil))
	c := &fakeCollector{errs: map[string]error{"avatar": errors.New("disk full")}}
	s := New(c, []string{"avatar"}, WithLogger(logger))

	s.RunOnce(context.Background())
	assert.Contains(t, buf.String(), `"component":"sweeper"`)
	assert.Contains(t, buf.String(), `"msg":"sweep failed"`)
}
