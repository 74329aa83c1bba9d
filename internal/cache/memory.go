package cache

import (
	"context"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	searchdomain "github.com/smallbiznis/quicksearch/internal/search/domain"
)

// Memory is a bounded in-process cache whose entries expire after ttl.
type Memory struct {
	lru *expirable.LRU[string, []searchdomain.Suggestion]
}

func NewMemory(size int, ttl time.Duration) *Memory {
	return &Memory{lru: expirable.NewLRU[string, []searchdomain.Suggestion](size, nil, ttl)}
}

func (m *Memory) Get(_ context.Context, key string) ([]searchdomain.Suggestion, bool) {
	return m.lru.Get(key)
}

func (m *Memory) Set(_ context.Context, key string, value []searchdomain.Suggestion) {
	if key == "" || len(value) == 0 {
		return
	}
	m.lru.Add(key, value)
}

func (m *Memory) Clear(context.Context) error {
	m.lru.Purge()
	return nil
}

func (m *Memory) Len() int {
	return m.lru.Len()
}

// Noop never stores anything.
type Noop struct{}

func (Noop) Get(context.Context, string) ([]searchdomain.Suggestion, bool) { return nil, false }
func (Noop) Set(context.Context, string, []searchdomain.Suggestion)        {}
func (Noop) Clear(context.Context) error                                   { return nil }
