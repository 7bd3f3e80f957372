// Campuswatch - Campus Network Security Dashboard
// Copyright 2026 Campuswatch contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/campuswatch/campuswatch

package cache

import (
	"strings"
	"testing"
	"time"
)

func TestGetSet(t *testing.T) {
	c := New(time.Minute)
	defer c.Close()

	if _, ok := c.Get("absent"); ok {
		t.Error("Get on empty cache should miss")
	}

	c.Set("key", "value")
	v, ok := c.Get("key")
	if !ok {
		t.Fatal("Get after Set should hit")
	}
	if v.(string) != "value" {
		t.Errorf("Get = %v, want value", v)
	}
}

func TestTTLExpiry(t *testing.T) {
	c := New(time.Minute)
	defer c.Close()

	c.SetWithTTL("short", 42, 10*time.Millisecond)
	if _, ok := c.Get("short"); !ok {
		t.Fatal("entry should be present before expiry")
	}

	time.Sleep(20 * time.Millisecond)
	if _, ok := c.Get("short"); ok {
		t.Error("entry should have expired")
	}

	_, _, evictions, _ := c.GetStats()
	if evictions == 0 {
		t.Error("expired access should count as an eviction")
	}
}

func TestOverwrite(t *testing.T) {
	c := New(time.Minute)
	defer c.Close()

	c.Set("key", 1)
	c.Set("key", 2)

	v, ok := c.Get("key")
	if !ok || v.(int) != 2 {
		t.Errorf("Get = %v, %v; want 2, true", v, ok)
	}
}

func TestGetExpiredKeepsConcurrentOverwrite(t *testing.T) {
	c := New(time.Minute)
	defer c.Close()

	// A Get that observes an expired entry must not evict a fresh value
	// written between its read and its delete. Interleave the two
	// repeatedly; a delete without re-checking expiry loses the write.
	for i := 0; i < 500; i++ {
		c.SetWithTTL("key", "stale", -time.Second)

		done := make(chan struct{})
		go func() {
			c.Get("key")
			close(done)
		}()
		c.SetWithTTL("key", "fresh", time.Minute)
		<-done

		v, ok := c.Get("key")
		if !ok || v.(string) != "fresh" {
			t.Fatalf("iteration %d: Get = %v, %v; fresh overwrite was evicted", i, v, ok)
		}
	}
}

func TestDeleteWhere(t *testing.T) {
	c := New(time.Minute)
	defer c.Close()

	c.Set(GenerateKey("alice", "dashboard", "24h"), 1)
	c.Set(GenerateKey("bob", "dashboard", "24h"), 2)
	c.Set(GenerateKey("alice", "protocols", "24h"), 3)

	c.DeleteWhere(func(key string) bool {
		return strings.Contains(key, ":dashboard:")
	})

	if _, ok := c.Get(GenerateKey("alice", "dashboard", "24h")); ok {
		t.Error("alice's dashboard entry should be gone")
	}
	if _, ok := c.Get(GenerateKey("bob", "dashboard", "24h")); ok {
		t.Error("bob's dashboard entry should be gone")
	}
	if _, ok := c.Get(GenerateKey("alice", "protocols", "24h")); !ok {
		t.Error("unrelated query entry should survive")
	}
	_, _, _, total := c.GetStats()
	if total != 1 {
		t.Errorf("TotalKeys = %d, want 1", total)
	}
}

func TestClear(t *testing.T) {
	c := New(time.Minute)
	defer c.Close()

	c.Set("a", 1)
	c.Set("b", 2)
	c.Clear()

	if _, ok := c.Get("a"); ok {
		t.Error("entries should be gone after Clear")
	}
	_, _, _, total := c.GetStats()
	if total != 0 {
		t.Errorf("TotalKeys after Clear = %d, want 0", total)
	}
}

func TestStats(t *testing.T) {
	c := New(time.Minute)
	defer c.Close()

	c.Set("key", 1)
	c.Get("key")
	c.Get("key")
	c.Get("absent")

	hits, misses, _, _ := c.GetStats()
	if hits != 2 {
		t.Errorf("hits = %d, want 2", hits)
	}
	if misses != 1 {
		t.Errorf("misses = %d, want 1", misses)
	}
	if rate := c.HitRate(); rate < 66 || rate > 67 {
		t.Errorf("HitRate = %f, want ~66.7", rate)
	}
}

func TestGenerateKey(t *testing.T) {
	window := 24 * time.Hour

	k1 := GenerateKey("alice", "dashboard-stats", window)
	k2 := GenerateKey("alice", "dashboard-stats", window)
	if k1 != k2 {
		t.Errorf("identical inputs should produce identical keys: %q vs %q", k1, k2)
	}

	// Different caller, query, or params must all change the key.
	if GenerateKey("bob", "dashboard-stats", window) == k1 {
		t.Error("different caller should change key")
	}
	if GenerateKey("alice", "protocol-stats", window) == k1 {
		t.Error("different query should change key")
	}
	if GenerateKey("alice", "dashboard-stats", time.Hour) == k1 {
		t.Error("different window should change key")
	}
}
