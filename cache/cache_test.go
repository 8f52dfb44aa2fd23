package cache

import (
	"context"
	"log/slog"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"tender-notifier/pkg/tender"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))
}

func newTestRedis(t *testing.T) (*Redis, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewRedis(client, "test", testLogger()), mr
}

// stores runs the same checks against both backends.
func stores(t *testing.T) map[string]Store {
	t.Helper()
	r, _ := newTestRedis(t)
	return map[string]Store{
		"memory": NewMemory(),
		"redis":  r,
	}
}

func TestStoreEmptyDefault(t *testing.T) {
	for name, s := range stores(t) {
		t.Run(name, func(t *testing.T) {
			rec, err := s.Get(context.Background())
			if err != nil {
				t.Fatalf("Get() error: %v", err)
			}
			if rec.Tenders == nil || len(rec.Tenders) != 0 {
				t.Errorf("Get() tenders = %v, want empty non-nil slice", rec.Tenders)
			}
			if rec.TotalCount != 0 || rec.LiveTendersCount != 0 || !rec.LastFetched.IsZero() {
				t.Errorf("Get() = %+v, want zero counts", rec)
			}

			if _, ok, err := s.Stats(context.Background()); err != nil || ok {
				t.Errorf("Stats() ok = %v, err = %v; want false, nil", ok, err)
			}
		})
	}
}

func TestStoreReplaceIsIdempotent(t *testing.T) {
	payload := []tender.Tender{
		{Title: "Road Construction", Organisation: "PWD", RefNo: "R1"},
		{Title: "IT Services", Organisation: "NIC", RefNo: "R2"},
	}

	for name, s := range stores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			var results []tender.CacheRecord
			for i := 0; i < 2; i++ {
				rec := tender.CacheRecord{
					Tenders:          payload,
					TotalCount:       len(payload),
					LiveTendersCount: 7,
					LastFetched:      time.Now().UTC().Add(time.Duration(i) * time.Second),
					Source:           tender.SourceManual,
				}
				if err := s.Set(ctx, rec); err != nil {
					t.Fatalf("Set() error: %v", err)
				}
				got, err := s.Get(ctx)
				if err != nil {
					t.Fatalf("Get() error: %v", err)
				}
				results = append(results, got)
			}

			a, b := results[0], results[1]
			if a.TotalCount != b.TotalCount || a.LiveTendersCount != b.LiveTendersCount || len(a.Tenders) != len(b.Tenders) {
				t.Fatalf("records differ: %+v vs %+v", a, b)
			}
			for i := range a.Tenders {
				if a.Tenders[i] != b.Tenders[i] {
					t.Errorf("tender %d differs: %+v vs %+v", i, a.Tenders[i], b.Tenders[i])
				}
			}
		})
	}
}

func TestStoreLastWriterWins(t *testing.T) {
	for name, s := range stores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			first := tender.CacheRecord{Tenders: []tender.Tender{{RefNo: "A"}, {RefNo: "B"}}, TotalCount: 2, Source: tender.SourceCronRefresh}
			second := tender.CacheRecord{Tenders: []tender.Tender{{RefNo: "C"}}, TotalCount: 1, Source: tender.SourceManual}

			if err := s.Set(ctx, first); err != nil {
				t.Fatalf("Set() error: %v", err)
			}
			if err := s.Set(ctx, second); err != nil {
				t.Fatalf("Set() error: %v", err)
			}

			got, err := s.Get(ctx)
			if err != nil {
				t.Fatalf("Get() error: %v", err)
			}
			if len(got.Tenders) != 1 || got.Tenders[0].RefNo != "C" || got.Source != tender.SourceManual {
				t.Errorf("Get() = %+v, want the second record with no merge", got)
			}
		})
	}
}

func TestStoreStats(t *testing.T) {
	for name, s := range stores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			want := tender.StatsRecord{LiveTendersCount: 1234, UpdatedBy: tender.SourceCronRefresh, RecordedAt: time.Now().UTC().Truncate(time.Second)}
			if err := s.SetStats(ctx, want); err != nil {
				t.Fatalf("SetStats() error: %v", err)
			}
			got, ok, err := s.Stats(ctx)
			if err != nil || !ok {
				t.Fatalf("Stats() ok = %v, err = %v", ok, err)
			}
			if got.LiveTendersCount != want.LiveTendersCount || got.UpdatedBy != want.UpdatedBy || !got.RecordedAt.Equal(want.RecordedAt) {
				t.Errorf("Stats() = %+v, want %+v", got, want)
			}
		})
	}
}

func TestMemoryGetReturnsCopy(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()
	if err := m.Set(ctx, tender.CacheRecord{Tenders: []tender.Tender{{Title: "original"}}}); err != nil {
		t.Fatalf("Set() error: %v", err)
	}

	got, _ := m.Get(ctx)
	got.Tenders[0].Title = "mutated"

	again, _ := m.Get(ctx)
	if again.Tenders[0].Title != "original" {
		t.Errorf("stored record was mutated through Get() result: %q", again.Tenders[0].Title)
	}
}

func TestMemoryConcurrentAccess(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(2)
		go func(n int) {
			defer wg.Done()
			_ = m.Set(ctx, tender.CacheRecord{Tenders: make([]tender.Tender, n), TotalCount: n})
		}(i)
		go func() {
			defer wg.Done()
			rec, _ := m.Get(ctx)
			if len(rec.Tenders) != rec.TotalCount {
				t.Errorf("torn read: %d tenders, totalCount %d", len(rec.Tenders), rec.TotalCount)
			}
		}()
	}
	wg.Wait()
}

func TestRedisGetErrorWhenServerDown(t *testing.T) {
	r, mr := newTestRedis(t)
	mr.Close()

	if _, err := r.Get(context.Background()); err == nil {
		t.Error("Get() should fail when redis is unreachable")
	}
}
