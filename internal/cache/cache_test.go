package cache

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/friendsincode/athleon_scheduler/internal/models"
)

func TestDisabledWithoutAddress(t *testing.T) {
	c := New(Config{}, zerolog.Nop())
	if c.IsAvailable() {
		t.Fatal("cache without address must be disabled")
	}
	if err := c.SetSchedule(context.Background(), &models.Schedule{ScheduleID: "s"}); err != nil {
		t.Fatalf("set on disabled cache: %v", err)
	}
	if err := c.Invalidate(context.Background(), "s"); err != nil {
		t.Fatalf("invalidate on disabled cache: %v", err)
	}
	if _, ok := c.GetSchedule(context.Background(), "e", "s"); ok {
		t.Fatal("disabled cache must miss")
	}
}

func TestDisabledWhenUnreachable(t *testing.T) {
	c := New(Config{RedisAddr: "127.0.0.1:1"}, zerolog.Nop())
	if c.IsAvailable() {
		t.Fatal("unreachable cache must be disabled")
	}
}

func TestLatestCoalescesLoads(t *testing.T) {
	c := New(Config{}, zerolog.Nop())

	var calls atomic.Int32
	release := make(chan struct{})
	load := func(context.Context) (*models.Schedule, error) {
		calls.Add(1)
		<-release
		return &models.Schedule{EventID: "e", ScheduleID: "s", Version: 3}, nil
	}

	const readers = 5
	var wg sync.WaitGroup
	results := make([]*models.Schedule, readers)
	for i := 0; i < readers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			sched, err := c.Latest(context.Background(), "e", "s", load)
			if err != nil {
				t.Errorf("latest: %v", err)
				return
			}
			results[i] = sched
		}(i)
	}

	time.Sleep(50 * time.Millisecond)
	close(release)
	wg.Wait()

	if n := calls.Load(); n < 1 || n > readers {
		t.Fatalf("unexpected load count %d", n)
	}
	for i, r := range results {
		if r == nil || r.Version != 3 {
			t.Fatalf("reader %d got %+v", i, r)
		}
	}
	if readers > 1 && results[0] == results[1] {
		t.Fatal("readers must not share one schedule value")
	}
}

func TestLatestPropagatesLoadError(t *testing.T) {
	c := New(Config{}, zerolog.Nop())
	boom := errors.New("boom")
	_, err := c.Latest(context.Background(), "e", "s", func(context.Context) (*models.Schedule, error) {
		return nil, boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("expected load error, got %v", err)
	}
}

// memBackend mirrors the Redis hash layout and the version guard of the
// write script.
type memBackend struct {
	mu       sync.Mutex
	versions map[string]int
	data     map[string][]byte
	down     bool
}

func newMemBackend() *memBackend {
	return &memBackend{versions: map[string]int{}, data: map[string][]byte{}}
}

var errDown = errors.New("connection refused")

func (m *memBackend) Get(_ context.Context, key string) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.down {
		return nil, errDown
	}
	d, ok := m.data[key]
	if !ok {
		return nil, redis.Nil
	}
	return d, nil
}

func (m *memBackend) SetIfNewer(_ context.Context, key string, version int, data []byte, _ time.Duration) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.down {
		return false, errDown
	}
	if cur, ok := m.versions[key]; ok && cur > version {
		return false, nil
	}
	m.versions[key] = version
	m.data[key] = data
	return true, nil
}

func (m *memBackend) Del(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.down {
		return errDown
	}
	delete(m.versions, key)
	delete(m.data, key)
	return nil
}

func (m *memBackend) Ping(context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.down {
		return errDown
	}
	return nil
}

func (m *memBackend) Close() error { return nil }

func (m *memBackend) setDown(down bool) {
	m.mu.Lock()
	m.down = down
	m.mu.Unlock()
}

func (m *memBackend) has(key string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.data[key]
	return ok
}

func schedAt(version int) *models.Schedule {
	return &models.Schedule{EventID: "e", ScheduleID: "s", Version: version}
}

func TestSetScheduleKeepsNewestVersion(t *testing.T) {
	c := newWithBackend(DefaultConfig(), newMemBackend(), zerolog.Nop())
	ctx := context.Background()

	for _, v := range []int{3, 2, 3} {
		if err := c.SetSchedule(ctx, schedAt(v)); err != nil {
			t.Fatalf("set v%d: %v", v, err)
		}
	}
	got, ok := c.GetSchedule(ctx, "e", "s")
	if !ok || got.Version != 3 {
		t.Fatalf("cached %+v, want version 3", got)
	}
	if _, ok := c.GetSchedule(ctx, "other-event", "s"); ok {
		t.Fatal("read from another event must miss")
	}
}

func TestLatestDoesNotOverwriteNewerCommit(t *testing.T) {
	c := newWithBackend(DefaultConfig(), newMemBackend(), zerolog.Nop())
	ctx := context.Background()

	loading := make(chan struct{})
	release := make(chan struct{})
	done := make(chan *models.Schedule)
	go func() {
		sched, err := c.Latest(ctx, "e", "s", func(context.Context) (*models.Schedule, error) {
			close(loading)
			<-release
			return schedAt(1), nil
		})
		if err != nil {
			t.Errorf("latest: %v", err)
		}
		done <- sched
	}()

	<-loading
	// A writer commits v2 while the reader still holds v1.
	if err := c.SetSchedule(ctx, schedAt(2)); err != nil {
		t.Fatalf("set v2: %v", err)
	}
	close(release)
	if got := <-done; got == nil || got.Version != 1 {
		t.Fatalf("reader got %+v, want its own load", got)
	}

	cached, ok := c.GetSchedule(ctx, "e", "s")
	if !ok || cached.Version != 2 {
		t.Fatalf("cached %+v, want version 2", cached)
	}
}

func TestTrippedCacheRecoversAndDropsStaleEntries(t *testing.T) {
	mem := newMemBackend()
	cfg := DefaultConfig()
	cfg.RetryInterval = 100 * time.Millisecond
	c := newWithBackend(cfg, mem, zerolog.Nop())
	ctx := context.Background()

	if err := c.SetSchedule(ctx, schedAt(1)); err != nil {
		t.Fatalf("set v1: %v", err)
	}

	mem.setDown(true)
	if err := c.SetSchedule(ctx, schedAt(2)); err == nil {
		t.Fatal("expected write error while Redis is down")
	}
	if c.IsAvailable() {
		t.Fatal("cache should trip on error")
	}
	// Committed while tripped: nothing is written, the key is remembered.
	if err := c.SetSchedule(ctx, schedAt(3)); err != nil {
		t.Fatalf("set while tripped: %v", err)
	}

	mem.setDown(false)
	if _, ok := c.GetSchedule(ctx, "e", "s"); ok {
		t.Fatal("tripped cache must not serve before the retry interval")
	}
	if !mem.has(scheduleKey("s")) {
		t.Fatal("stale v1 entry should still be in Redis before the probe")
	}

	time.Sleep(150 * time.Millisecond)
	if _, ok := c.GetSchedule(ctx, "e", "s"); ok {
		t.Fatal("stale v1 must be dropped, not served")
	}
	if !c.IsAvailable() {
		t.Fatal("cache should be re-enabled after a successful probe")
	}
	if mem.has(scheduleKey("s")) {
		t.Fatal("stale entry should have been deleted on recovery")
	}

	if err := c.SetSchedule(ctx, schedAt(4)); err != nil {
		t.Fatalf("set v4: %v", err)
	}
	if got, ok := c.GetSchedule(ctx, "e", "s"); !ok || got.Version != 4 {
		t.Fatalf("cached %+v, want version 4", got)
	}
}

func TestProbeFailureKeepsCacheTripped(t *testing.T) {
	mem := newMemBackend()
	cfg := DefaultConfig()
	cfg.RetryInterval = 10 * time.Millisecond
	c := newWithBackend(cfg, mem, zerolog.Nop())
	c.trip()

	mem.setDown(true)
	time.Sleep(15 * time.Millisecond)
	if _, ok := c.GetSchedule(context.Background(), "e", "s"); ok || c.IsAvailable() {
		t.Fatal("failed probe must keep the cache tripped")
	}
}
