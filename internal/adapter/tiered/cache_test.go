package tiered_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/ascension-labs/govcore/internal/adapter/tiered"
)

// memCache is a simple in-memory cache for testing.
type memCache struct {
	data map[string][]byte
	err  error
}

func newMemCache() *memCache {
	return &memCache{data: make(map[string][]byte)}
}

func (m *memCache) Get(_ context.Context, key string) ([]byte, bool, error) {
	if m.err != nil {
		return nil, false, m.err
	}
	v, ok := m.data[key]
	return v, ok, nil
}

func (m *memCache) Set(_ context.Context, key string, value []byte, _ time.Duration) error {
	if m.err != nil {
		return m.err
	}
	m.data[key] = value
	return nil
}

func (m *memCache) Delete(_ context.Context, key string) error {
	if m.err != nil {
		return m.err
	}
	delete(m.data, key)
	return nil
}

func TestTiered_L1Hit(t *testing.T) {
	l1, l2 := newMemCache(), newMemCache()
	c := tiered.New(l1, l2, 5*time.Minute)

	l1.data["key1"] = []byte("val1")

	val, found, err := c.Get(context.Background(), "key1")
	if err != nil || !found {
		t.Fatalf("expected L1 hit, got found=%v err=%v", found, err)
	}
	if string(val) != "val1" {
		t.Fatalf("expected val1, got %s", val)
	}
}

func TestTiered_L2HitWithBackfill(t *testing.T) {
	l1, l2 := newMemCache(), newMemCache()
	c := tiered.New(l1, l2, 5*time.Minute)

	l2.data["key2"] = []byte("val2")

	val, found, err := c.Get(context.Background(), "key2")
	if err != nil || !found {
		t.Fatalf("expected L2 hit, got found=%v err=%v", found, err)
	}
	if string(val) != "val2" {
		t.Fatalf("expected val2, got %s", val)
	}
	if string(l1.data["key2"]) != "val2" {
		t.Fatal("expected L1 backfill")
	}
}

func TestTiered_Miss(t *testing.T) {
	c := tiered.New(newMemCache(), newMemCache(), 5*time.Minute)

	_, found, err := c.Get(context.Background(), "missing")
	if err != nil {
		t.Fatal(err)
	}
	if found {
		t.Fatal("expected miss")
	}
}

func TestTiered_L2FailureIsMiss(t *testing.T) {
	l1, l2 := newMemCache(), newMemCache()
	l2.err = errors.New("nats: connection closed")
	c := tiered.New(l1, l2, 5*time.Minute)
	ctx := context.Background()

	if _, found, err := c.Get(ctx, "k"); err != nil || found {
		t.Fatalf("expected silent miss, got found=%v err=%v", found, err)
	}
	if err := c.Set(ctx, "k", []byte("v"), time.Minute); err != nil {
		t.Fatalf("Set should tolerate L2 failure: %v", err)
	}
	if string(l1.data["k"]) != "v" {
		t.Fatal("expected value in L1")
	}
	if err := c.Delete(ctx, "k"); err == nil {
		t.Fatal("Delete should surface L2 failure")
	}
}

func TestTiered_NilL2(t *testing.T) {
	l1 := newMemCache()
	c := tiered.New(l1, nil, time.Minute)
	ctx := context.Background()

	if err := c.Set(ctx, "k", []byte("v"), time.Minute); err != nil {
		t.Fatal(err)
	}
	if v, ok, _ := c.Get(ctx, "k"); !ok || string(v) != "v" {
		t.Fatalf("expected L1 hit, got %q %v", v, ok)
	}
	if _, ok, _ := c.Get(ctx, "absent"); ok {
		t.Fatal("expected miss")
	}
	if err := c.Delete(ctx, "k"); err != nil {
		t.Fatal(err)
	}
}

func TestTiered_SetAndDeleteBoth(t *testing.T) {
	l1, l2 := newMemCache(), newMemCache()
	c := tiered.New(l1, l2, 5*time.Minute)
	ctx := context.Background()

	if err := c.Set(ctx, "key3", []byte("val3"), time.Minute); err != nil {
		t.Fatal(err)
	}
	if _, ok := l1.data["key3"]; !ok {
		t.Fatal("expected key3 in L1")
	}
	if _, ok := l2.data["key3"]; !ok {
		t.Fatal("expected key3 in L2")
	}

	if err := c.Delete(ctx, "key3"); err != nil {
		t.Fatal(err)
	}
	if _, ok := l1.data["key3"]; ok {
		t.Fatal("expected key3 deleted from L1")
	}
	if _, ok := l2.data["key3"]; ok {
		t.Fatal("expected key3 deleted from L2")
	}
}
