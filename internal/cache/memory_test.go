package cache

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestMemoryGetMiss(t *testing.T) {
	m := NewMemory()

	var out string
	if err := m.Get(context.Background(), "absent", &out); !errors.Is(err, ErrMiss) {
		t.Fatalf("err = %v, want ErrMiss", err)
	}
}

func TestMemorySetGetRoundTrip(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()

	type payload struct {
		Answer  string   `json:"answer"`
		Sources []string `json:"sources"`
	}

	in := payload{Answer: "yes", Sources: []string{"a", "b"}}
	if err := m.Set(ctx, "k", in, 0); err != nil {
		t.Fatalf("Set: %v", err)
	}

	var out payload
	if err := m.Get(ctx, "k", &out); err != nil {
		t.Fatalf("Get: %v", err)
	}
	if out.Answer != in.Answer || len(out.Sources) != 2 {
		t.Errorf("round trip = %+v, want %+v", out, in)
	}
}

func TestMemoryTTLExpiry(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()

	now := time.Now()
	m.now = func() time.Time { return now }

	if err := m.Set(ctx, "k", "v", time.Minute); err != nil {
		t.Fatalf("Set: %v", err)
	}

	ok, err := m.Exists(ctx, "k")
	if err != nil || !ok {
		t.Fatalf("Exists = %v, %v; want true", ok, err)
	}

	now = now.Add(2 * time.Minute)

	ok, err = m.Exists(ctx, "k")
	if err != nil || ok {
		t.Fatalf("Exists after expiry = %v, %v; want false", ok, err)
	}

	var out string
	if err := m.Get(ctx, "k", &out); !errors.Is(err, ErrMiss) {
		t.Errorf("Get after expiry = %v, want ErrMiss", err)
	}
}

func TestMemoryIncrement(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()

	for want := int64(1); want <= 3; want++ {
		n, err := m.Increment(ctx, "counter", 1)
		if err != nil {
			t.Fatalf("Increment: %v", err)
		}
		if n != want {
			t.Errorf("Increment = %d, want %d", n, want)
		}
	}

	n, err := m.Increment(ctx, "counter", 5)
	if err != nil {
		t.Fatalf("Increment by 5: %v", err)
	}
	if n != 8 {
		t.Errorf("Increment by 5 = %d, want 8", n)
	}
}

func TestMemoryExpire(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()

	now := time.Now()
	m.now = func() time.Time { return now }

	if err := m.Set(ctx, "k", "v", 0); err != nil {
		t.Fatalf("Set: %v", err)
	}
	if err := m.Expire(ctx, "k", time.Second); err != nil {
		t.Fatalf("Expire: %v", err)
	}

	now = now.Add(2 * time.Second)
	if ok, _ := m.Exists(ctx, "k"); ok {
		t.Error("key should have expired")
	}
}

func TestMemoryDeletePattern(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()

	for _, key := range []string{"retrieval:u1:h1", "retrieval:u1:h2", "retrieval:u2:h1", "other"} {
		if err := m.Set(ctx, key, "v", 0); err != nil {
			t.Fatalf("Set: %v", err)
		}
	}

	deleted, err := m.DeletePattern(ctx, "retrieval:u1:*")
	if err != nil {
		t.Fatalf("DeletePattern: %v", err)
	}
	if deleted != 2 {
		t.Errorf("deleted = %d, want 2", deleted)
	}

	if ok, _ := m.Exists(ctx, "retrieval:u2:h1"); !ok {
		t.Error("unmatched key was deleted")
	}
	if ok, _ := m.Exists(ctx, "retrieval:u1:h1"); ok {
		t.Error("matched key survived")
	}
}
