package cache

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/pavelanni/essayeval/internal/model"
)

type clock struct{ t time.Time }

func (c *clock) now() time.Time { return c.t }

func newTestMemory(t *testing.T, ttl time.Duration, maxEntries int) (*Memory, *clock) {
	t.Helper()
	c := &clock{t: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)}
	m := NewMemory(ttl, maxEntries)
	m.now = c.now
	return m, c
}

func result(id string) *model.EvaluationResult {
	return &model.EvaluationResult{
		ID:           id,
		OverallScore: 71,
		Feedback:     model.Feedback{Strengths: []string{"focused"}},
	}
}

func TestMemoryGetSetDelete(t *testing.T) {
	m, _ := newTestMemory(t, time.Minute, 10)
	ctx := context.Background()

	if _, err := m.Get(ctx, "x"); !errors.Is(err, ErrMiss) {
		t.Fatalf("Get on empty cache: err = %v, want ErrMiss", err)
	}
	if err := m.Set(ctx, result("x")); err != nil {
		t.Fatalf("Set: %v", err)
	}
	got, err := m.Get(ctx, "x")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.OverallScore != 71 {
		t.Errorf("OverallScore = %d", got.OverallScore)
	}
	if err := m.Delete(ctx, "x"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, err := m.Get(ctx, "x"); !errors.Is(err, ErrMiss) {
		t.Errorf("Get after Delete: err = %v, want ErrMiss", err)
	}
}

func TestMemoryExpiry(t *testing.T) {
	m, c := newTestMemory(t, time.Minute, 10)
	ctx := context.Background()
	_ = m.Set(ctx, result("x"))

	c.t = c.t.Add(59 * time.Second)
	if _, err := m.Get(ctx, "x"); err != nil {
		t.Fatalf("entry expired early: %v", err)
	}
	c.t = c.t.Add(time.Second)
	if _, err := m.Get(ctx, "x"); !errors.Is(err, ErrMiss) {
		t.Errorf("err = %v, want ErrMiss after TTL", err)
	}
	if m.Len() != 0 {
		t.Errorf("expired entry not removed, Len = %d", m.Len())
	}
}

func TestMemoryBound(t *testing.T) {
	m, c := newTestMemory(t, time.Minute, 2)
	ctx := context.Background()

	_ = m.Set(ctx, result("a"))
	c.t = c.t.Add(time.Second)
	_ = m.Set(ctx, result("b"))
	c.t = c.t.Add(time.Second)
	_ = m.Set(ctx, result("c"))

	if m.Len() != 2 {
		t.Fatalf("Len = %d, want 2", m.Len())
	}
	if _, err := m.Get(ctx, "a"); !errors.Is(err, ErrMiss) {
		t.Error("oldest entry should have been evicted")
	}
	for _, id := range []string{"b", "c"} {
		if _, err := m.Get(ctx, id); err != nil {
			t.Errorf("Get(%q): %v", id, err)
		}
	}
}

func TestMemoryIsolation(t *testing.T) {
	m, _ := newTestMemory(t, time.Minute, 10)
	ctx := context.Background()

	r := result("x")
	_ = m.Set(ctx, r)
	r.Feedback.Strengths[0] = "mutated by caller"

	got, _ := m.Get(ctx, "x")
	if got.Feedback.Strengths[0] != "focused" {
		t.Error("cache shares slices with the stored result")
	}
	got.Feedback.Strengths[0] = "mutated by reader"
	again, _ := m.Get(ctx, "x")
	if again.Feedback.Strengths[0] != "focused" {
		t.Error("cache shares slices with returned results")
	}
}

var (
	_ ResultCache = (*Memory)(nil)
	_ ResultCache = (*Redis)(nil)
)
