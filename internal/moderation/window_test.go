package moderation

import (
	"context"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
)

func TestMemoryWindow_PrunesOldEntries(t *testing.T) {
	w := NewMemoryWindow(10 * time.Second)
	ctx := context.Background()
	base := time.Unix(1_700_000_000, 0)

	steps := []struct {
		offset time.Duration
		want   int
	}{
		{0, 1},
		{2 * time.Second, 2},
		{9 * time.Second, 3},
		{10 * time.Second, 4}, // first entry sits exactly on the cutoff and is kept
		{11 * time.Second, 4}, // first entry now out of the window
		{30 * time.Second, 1},
	}

	for _, s := range steps {
		got, err := w.Record(ctx, "u1", base.Add(s.offset))
		if err != nil {
			t.Fatalf("Record() error: %v", err)
		}
		if got != s.want {
			t.Errorf("Record(+%s) = %d, want %d", s.offset, got, s.want)
		}
	}
}

func TestMemoryWindow_PerUser(t *testing.T) {
	w := NewMemoryWindow(10 * time.Second)
	ctx := context.Background()
	now := time.Now()

	w.Record(ctx, "a", now)
	w.Record(ctx, "a", now)
	got, _ := w.Record(ctx, "b", now)

	if got != 1 {
		t.Errorf("user b count = %d, want 1", got)
	}
}

func TestMemoryWindow_DropsIdleUsers(t *testing.T) {
	w := NewMemoryWindow(10 * time.Second)
	ctx := context.Background()
	base := time.Unix(1_700_000_000, 0)

	steps := []struct {
		user   string
		offset time.Duration
		users  int
	}{
		{"u1", 0, 1},
		{"u2", 0, 2},
		{"u3", 5 * time.Second, 3},
		{"u1", 12 * time.Second, 2}, // sweep: u2 has aged out, u3 has not
		{"u4", 30 * time.Second, 1},
	}

	for _, s := range steps {
		if _, err := w.Record(ctx, s.user, base.Add(s.offset)); err != nil {
			t.Fatalf("Record() error: %v", err)
		}
		w.mu.Lock()
		got := len(w.times)
		w.mu.Unlock()
		if got != s.users {
			t.Errorf("after %s at +%s: %d users tracked, want %d", s.user, s.offset, got, s.users)
		}
	}
}

func TestRedisWindow_CountsAndExpires(t *testing.T) {
	client := redis.NewClient(&redis.Options{Addr: "localhost:6379"})
	ctx := context.Background()
	if err := client.Ping(ctx).Err(); err != nil {
		t.Skipf("redis not available: %v", err)
	}
	user := "test_window_user"
	client.Del(ctx, RedisWindowPrefix+user)
	t.Cleanup(func() {
		client.Del(ctx, RedisWindowPrefix+user)
		client.Close()
	})

	w := NewRedisWindow(client, 30*time.Second)
	for i := 1; i <= 3; i++ {
		got, err := w.Record(ctx, user, time.Now())
		if err != nil {
			t.Fatalf("Record() error: %v", err)
		}
		if got != i {
			t.Errorf("Record() #%d = %d, want %d", i, got, i)
		}
	}

	ttl, err := client.TTL(ctx, RedisWindowPrefix+user).Result()
	if err != nil {
		t.Fatal(err)
	}
	if ttl <= 0 || ttl > 30*time.Second {
		t.Errorf("expected TTL in (0, 30s], got %s", ttl)
	}
}
