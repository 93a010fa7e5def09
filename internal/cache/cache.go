// Package cache keeps recently produced or fetched results close to the HTTP layer.
package cache

import (
	"context"
	"errors"
	"slices"
	"sync"
	"time"

	"github.com/pavelanni/essayeval/internal/model"
)

// ErrMiss is returned by Get when no live entry exists for an id.
var ErrMiss = errors.New("cache miss")

// DefaultTTL is how long a cached result stays live.
const DefaultTTL = 10 * time.Minute

// ResultCache stores evaluation results by id.
type ResultCache interface {
	Set(ctx context.Context, r *model.EvaluationResult) error
	Get(ctx context.Context, id string) (*model.EvaluationResult, error)
	Delete(ctx context.Context, id string) error
}

type entry struct {
	result  model.EvaluationResult
	expires time.Time
}

// Memory is an in-process ResultCache with a fixed TTL and an entry bound.
type Memory struct {
	mu         sync.Mutex
	entries    map[string]entry
	ttl        time.Duration
	maxEntries int
	now        func() time.Time
}

// NewMemory creates an in-process cache. Non-positive arguments select defaults.
func NewMemory(ttl time.Duration, maxEntries int) *Memory {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	if maxEntries <= 0 {
		maxEntries = 1000
	}
	return &Memory{
		entries:    make(map[string]entry),
		ttl:        ttl,
		maxEntries: maxEntries,
		now:        time.Now,
	}
}

func (m *Memory) Set(_ context.Context, r *model.EvaluationResult) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	if _, ok := m.entries[r.ID]; !ok && len(m.entries) >= m.maxEntries {
		m.evict(now)
	}
	m.entries[r.ID] = entry{result: clone(r), expires: now.Add(m.ttl)}
	return nil
}

func (m *Memory) Get(_ context.Context, id string) (*model.EvaluationResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	e, ok := m.entries[id]
	if !ok {
		return nil, ErrMiss
	}
	if !m.now().Before(e.expires) {
		delete(m.entries, id)
		return nil, ErrMiss
	}
	r := clone(&e.result)
	return &r, nil
}

func (m *Memory) Delete(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.entries, id)
	return nil
}

// Len returns the number of entries, including expired ones not yet evicted.
func (m *Memory) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.entries)
}

// evict drops expired entries, then the entry closest to expiry if the cache
// is still full. Callers hold m.mu.
func (m *Memory) evict(now time.Time) {
	for id, e := range m.entries {
		if !now.Before(e.expires) {
			delete(m.entries, id)
		}
	}
	if len(m.entries) < m.maxEntries {
		return
	}
	var oldest string
	var oldestAt time.Time
	for id, e := range m.entries {
		if oldest == "" || e.expires.Before(oldestAt) {
			oldest, oldestAt = id, e.expires
		}
	}
	delete(m.entries, oldest)
}

func clone(r *model.EvaluationResult) model.EvaluationResult {
	c := *r
	c.Feedback.Strengths = slices.Clone(r.Feedback.Strengths)
	c.Feedback.Improvements = slices.Clone(r.Feedback.Improvements)
	c.Feedback.Suggestions = slices.Clone(r.Feedback.Suggestions)
	c.Feedback.MissingKeywords = slices.Clone(r.Feedback.MissingKeywords)
	c.Agents = slices.Clone(r.Agents)
	if r.WritingEfficiency != nil {
		we := *r.WritingEfficiency
		c.WritingEfficiency = &we
	}
	return c
}
