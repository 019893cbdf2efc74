package store

import (
	"context"
	"path/filepath"
	"testing"

	miniredis "github.com/alicebob/miniredis/v2"

	"guardian-shell/internal/platform/storage"
)

var testSealKey = []byte("0123456789abcdef0123456789abcdef")

func newSQLiteStore(t *testing.T, namespace string) Store {
	t.Helper()
	db, err := storage.Open(filepath.Join(t.TempDir(), "secure.db"))
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	t.Cleanup(func() { _ = storage.Close(db) })

	s, err := NewSQLite(db, Config{Namespace: namespace})
	if err != nil {
		t.Fatalf("NewSQLite error: %v", err)
	}
	return s
}

func newRedisStore(t *testing.T, namespace string) Store {
	t.Helper()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("start miniredis: %v", err)
	}
	t.Cleanup(mr.Close)

	s, err := NewRedis(Config{Namespace: namespace, Redis: &RedisConfig{Addr: mr.Addr()}})
	if err != nil {
		t.Fatalf("NewRedis error: %v", err)
	}
	return s
}

func TestStoreLifecycle(t *testing.T) {
	backends := []struct {
		name string
		open func(t *testing.T) Store
	}{
		{"memory", func(t *testing.T) Store { return NewMemory(Config{Namespace: "test"}) }},
		{"sqlite", func(t *testing.T) Store { return newSQLiteStore(t, "test") }},
		{"redis", func(t *testing.T) Store { return newRedisStore(t, "test") }},
		{"sealed", func(t *testing.T) Store {
			s, err := NewSealed(NewMemory(Config{}), testSealKey, nil)
			if err != nil {
				t.Fatalf("NewSealed error: %v", err)
			}
			return s
		}},
	}

	for _, backend := range backends {
		t.Run(backend.name, func(t *testing.T) {
			ctx := context.Background()
			s := backend.open(t)
			t.Cleanup(func() { _ = s.Close(ctx) })

			if _, ok, err := s.Get(ctx, "auth_token"); err != nil || ok {
				t.Fatalf("expected absent key, ok=%v err=%v", ok, err)
			}

			if err := s.Set(ctx, "auth_token", "token-1"); err != nil {
				t.Fatalf("Set error: %v", err)
			}
			if err := s.Set(ctx, "auth_token", "token-2"); err != nil {
				t.Fatalf("overwrite error: %v", err)
			}
			if err := s.Set(ctx, "refresh_token", "refresh-1"); err != nil {
				t.Fatalf("Set error: %v", err)
			}

			got, ok, err := s.Get(ctx, "auth_token")
			if err != nil || !ok || got != "token-2" {
				t.Fatalf("Get = %q, %v, %v", got, ok, err)
			}

			keys, err := s.Keys(ctx)
			if err != nil {
				t.Fatalf("Keys error: %v", err)
			}
			if len(keys) != 2 || keys[0] != "auth_token" || keys[1] != "refresh_token" {
				t.Fatalf("unexpected keys: %v", keys)
			}

			if err := s.Remove(ctx, "auth_token"); err != nil {
				t.Fatalf("Remove error: %v", err)
			}
			if _, ok, _ := s.Get(ctx, "auth_token"); ok {
				t.Fatal("expected key removed")
			}
			if err := s.Remove(ctx, "auth_token"); err != nil {
				t.Fatalf("removing an absent key should succeed: %v", err)
			}

			stats, err := s.Stats(ctx)
			if err != nil {
				t.Fatalf("Stats error: %v", err)
			}
			if stats["type"] == nil {
				t.Fatalf("stats missing type: %v", stats)
			}
		})
	}
}

func TestSQLiteNamespacesAreIsolated(t *testing.T) {
	ctx := context.Background()
	db, err := storage.Open(filepath.Join(t.TempDir(), "ns.db"))
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	t.Cleanup(func() { _ = storage.Close(db) })

	a, _ := NewSQLite(db, Config{Namespace: "a"})
	b, _ := NewSQLite(db, Config{Namespace: "b"})

	if err := a.Set(ctx, "auth_token", "from-a"); err != nil {
		t.Fatalf("Set error: %v", err)
	}
	if _, ok, _ := b.Get(ctx, "auth_token"); ok {
		t.Fatal("namespace b must not see namespace a's key")
	}
}

func TestSealedRejectsTamperedValues(t *testing.T) {
	ctx := context.Background()
	inner := NewMemory(Config{})
	s, err := NewSealed(inner, testSealKey, nil)
	if err != nil {
		t.Fatalf("NewSealed error: %v", err)
	}

	if err := s.Set(ctx, "auth_token", "secret"); err != nil {
		t.Fatalf("Set error: %v", err)
	}

	raw, _, _ := inner.Get(ctx, "auth_token")
	if raw == "secret" {
		t.Fatal("value stored in plaintext")
	}

	// Same ciphertext under a different key fails authentication.
	_ = inner.Set(ctx, "refresh_token", raw)
	if _, ok, err := s.Get(ctx, "refresh_token"); ok || err != nil {
		t.Fatalf("moved ciphertext should read as absent, ok=%v err=%v", ok, err)
	}

	_ = inner.Set(ctx, "auth_token", raw[:len(raw)-4]+"AAAA")
	if _, ok, err := s.Get(ctx, "auth_token"); ok || err != nil {
		t.Fatalf("tampered ciphertext should read as absent, ok=%v err=%v", ok, err)
	}

	_ = inner.Set(ctx, "auth_user", "plain")
	if _, ok, _ := s.Get(ctx, "auth_user"); ok {
		t.Fatal("unsealed value should read as absent")
	}

	if _, err := NewSealed(inner, []byte("short"), nil); err == nil {
		t.Fatal("expected error for short key")
	}
}

func TestFactory(t *testing.T) {
	ctx := context.Background()

	s, err := New(Config{Driver: DriverMemory}, Dependencies{})
	if err != nil {
		t.Fatalf("New memory store: %v", err)
	}
	_ = s.Close(ctx)

	if _, err := New(Config{Driver: DriverSQLite}, Dependencies{}); err == nil {
		t.Fatal("expected error for sqlite without database handle")
	}

	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis: %v", err)
	}
	defer mr.Close()

	sealed, err := New(Config{
		Driver:  DriverRedis,
		Redis:   &RedisConfig{Addr: mr.Addr()},
		SealKey: testSealKey,
	}, Dependencies{})
	if err != nil {
		t.Fatalf("New sealed redis store: %v", err)
	}
	defer sealed.Close(ctx)

	stats, err := sealed.Stats(ctx)
	if err != nil {
		t.Fatalf("Stats error: %v", err)
	}
	if stats["sealed"] != true || stats["type"] != "redis" {
		t.Fatalf("unexpected stats %v", stats)
	}

	if _, err := New(Config{Driver: "unknown"}, Dependencies{}); err == nil {
		t.Fatal("expected error for unsupported driver")
	}
}
