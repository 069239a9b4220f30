package usage

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/voxdesk/voxdesk/internal/db"
	"github.com/voxdesk/voxdesk/internal/identity"
	"gorm.io/gorm"
)

func openTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	conn, err := db.Open("file:" + filepath.Join(t.TempDir(), "usage.db"))
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	if errMigrate := db.Migrate(conn); errMigrate != nil {
		t.Fatalf("migrate: %v", errMigrate)
	}
	return conn
}

func newRedisStore(t *testing.T) (*RedisStore, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewRedisStore(client, "test", time.Hour), mr
}

// backends returns every Store implementation under test.
func backends(t *testing.T) map[string]Store {
	t.Helper()
	redisStore, _ := newRedisStore(t)
	return map[string]Store{
		"database": NewGormStore(openTestDB(t)),
		"redis":    redisStore,
	}
}

// clock is a settable time source.
type clock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *clock) Set(t time.Time) {
	c.mu.Lock()
	c.now = t
	c.mu.Unlock()
}

func TestRecordUsage_SumsDeltasWithinPeriod(t *testing.T) {
	for name, store := range backends(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			clk := &clock{now: time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)}
			rec := NewRecorder(store, time.UTC, clk.Now, nil)
			key := identity.Key{Type: identity.TypeIP, Value: "203.0.113.7"}

			var total int64
			for _, delta := range []float64{12, 30, 0, 45.4, 1} {
				require.NoError(t, rec.RecordUsage(ctx, key, delta))
				total += ClampSeconds(delta)

				counter, err := rec.Current(ctx, key)
				require.NoError(t, err)
				assert.Equal(t, total, counter.Seconds)
			}

			counter, err := rec.Current(ctx, key)
			require.NoError(t, err)
			assert.Equal(t, int64(88), counter.Seconds)
			assert.Equal(t, int64(5), counter.Calls)
			assert.Equal(t, "2026-03-10", counter.Period)
		})
	}
}

func TestRecordUsage_ClampsMalformedDelta(t *testing.T) {
	for name, store := range backends(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			rec := NewRecorder(store, time.UTC, nil, nil)
			key := identity.Key{Type: identity.TypeUserID, Value: "1"}

			require.NoError(t, rec.RecordUsage(ctx, key, -30))
			counter, err := rec.Current(ctx, key)
			require.NoError(t, err)
			assert.Equal(t, int64(0), counter.Seconds)
			assert.Equal(t, int64(1), counter.Calls)
		})
	}
}

func TestRecordUsage_LazyResetAcrossPeriod(t *testing.T) {
	for name, store := range backends(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			clk := &clock{now: time.Date(2026, 3, 10, 23, 59, 0, 0, time.UTC)}
			rec := NewRecorder(store, time.UTC, clk.Now, nil)
			key := identity.Key{Type: identity.TypeFingerprint, Value: "fp-1"}

			require.NoError(t, rec.RecordUsage(ctx, key, 60))
			clk.Set(time.Date(2026, 3, 11, 0, 0, 30, 0, time.UTC))

			counter, err := rec.Current(ctx, key)
			require.NoError(t, err)
			assert.Equal(t, int64(0), counter.Calls)
			assert.Equal(t, int64(0), counter.Seconds)

			previous, err := store.Get(ctx, key, "2026-03-10")
			require.NoError(t, err)
			assert.Equal(t, int64(1), previous.Calls, "history must be kept")
		})
	}
}

func TestRecordUsage_FingerprintSightings(t *testing.T) {
	for name, store := range backends(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			clk := &clock{now: time.Date(2026, 3, 10, 8, 0, 0, 0, time.UTC)}
			rec := NewRecorder(store, time.UTC, clk.Now, nil)

			fp := identity.Key{Type: identity.TypeFingerprint, Value: "fp-xyz"}
			ip := identity.Key{Type: identity.TypeIP, Value: "198.51.100.1"}
			require.NoError(t, rec.RecordUsage(ctx, fp, 10))
			clk.Set(clk.Now().Add(48 * time.Hour))
			require.NoError(t, rec.RecordUsage(ctx, fp, 10))
			require.NoError(t, rec.RecordUsage(ctx, ip, 10))

			sighting, err := rec.Sighting(ctx, "fp-xyz")
			require.NoError(t, err)
			assert.Equal(t, int64(2), sighting.TimesSeen)
			assert.Equal(t, time.Date(2026, 3, 10, 8, 0, 0, 0, time.UTC), sighting.FirstSeenAt.UTC())
			assert.Equal(t, time.Date(2026, 3, 12, 8, 0, 0, 0, time.UTC), sighting.LastSeenAt.UTC())

			unseen, err := rec.Sighting(ctx, "198.51.100.1")
			require.NoError(t, err)
			assert.Equal(t, int64(0), unseen.TimesSeen)
		})
	}
}

func TestList_OrdersByCalls(t *testing.T) {
	for name, store := range backends(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			rec := NewRecorder(store, time.UTC, nil, nil)
			busy := identity.Key{Type: identity.TypeIP, Value: "2001:db8::1"}
			quiet := identity.Key{Type: identity.TypeUserID, Value: "9"}

			for i := 0; i < 3; i++ {
				require.NoError(t, rec.RecordUsage(ctx, busy, 5))
			}
			require.NoError(t, rec.RecordUsage(ctx, quiet, 5))

			all, err := rec.List(ctx, ListFilter{})
			require.NoError(t, err)
			require.Len(t, all, 2)
			assert.Equal(t, busy, all[0].Key)
			assert.Equal(t, int64(3), all[0].Calls)

			onlyUsers, err := rec.List(ctx, ListFilter{IdentityType: identity.TypeUserID})
			require.NoError(t, err)
			require.Len(t, onlyUsers, 1)
			assert.Equal(t, quiet, onlyUsers[0].Key)
		})
	}
}

func TestGormStore_ConcurrentIncrements(t *testing.T) {
	ctx := context.Background()
	store := NewGormStore(openTestDB(t))
	key := identity.Key{Type: identity.TypeIP, Value: "203.0.113.50"}
	now := time.Now().UTC()

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := store.Increment(ctx, key, PeriodOf(now, time.UTC), 3, now); err != nil {
				t.Errorf("increment: %v", err)
			}
		}()
	}
	wg.Wait()

	counter, err := store.Get(ctx, key, PeriodOf(now, time.UTC))
	require.NoError(t, err)
	assert.Equal(t, int64(20), counter.Calls)
	assert.Equal(t, int64(60), counter.Seconds)
}

func TestRedisStore_CountersExpire(t *testing.T) {
	ctx := context.Background()
	store, mr := newRedisStore(t)
	key := identity.Key{Type: identity.TypeIP, Value: "203.0.113.9"}
	now := time.Now().UTC()
	period := PeriodOf(now, time.UTC)

	require.NoError(t, store.Increment(ctx, key, period, 10, now))
	assert.True(t, mr.Exists("test:usage:"+period+":ip:203.0.113.9"))

	mr.FastForward(2 * time.Hour)
	counter, err := store.Get(ctx, key, period)
	require.NoError(t, err)
	assert.Equal(t, int64(0), counter.Calls)
}

// failingStore rejects every write.
type failingStore struct {
	Store
	calls int
}

func (f *failingStore) Increment(context.Context, identity.Key, string, int64, time.Time) error {
	f.calls++
	return errors.New("store unavailable")
}

func TestRecordAll_SwallowsStoreErrors(t *testing.T) {
	store := &failingStore{}
	rec := NewRecorder(store, time.UTC, nil, nil)
	keys := []identity.Key{
		{Type: identity.TypeUserID, Value: "1"},
		{Type: identity.TypeIP, Value: "203.0.113.1"},
	}

	rec.RecordAll(context.Background(), keys, 30)
	assert.Equal(t, 2, store.calls, "every key is attempted even after a failure")

	err := rec.RecordUsage(context.Background(), keys[0], 30)
	assert.Error(t, err)
}

func TestPeriodOf_UsesLocation(t *testing.T) {
	loc := time.FixedZone("UTC-5", -5*60*60)
	instant := time.Date(2026, 3, 11, 2, 0, 0, 0, time.UTC)
	assert.Equal(t, "2026-03-11", PeriodOf(instant, time.UTC))
	assert.Equal(t, "2026-03-10", PeriodOf(instant, loc))
	assert.True(t, ValidPeriod("2026-03-10"))
	assert.False(t, ValidPeriod("2026-13-40"))
}

func TestClampSeconds(t *testing.T) {
	assert.Equal(t, int64(0), ClampSeconds(-1))
	assert.Equal(t, int64(0), ClampSeconds(0))
	assert.Equal(t, int64(2), ClampSeconds(1.6))
}
