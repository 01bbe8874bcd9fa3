// Package storage provides key/value areas modelled on chrome.storage.local.
// Values are opaque JSON documents; callers own their schema.
package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
)

// Area is a key/value store of JSON documents.
type Area interface {
	// Get returns the documents stored under keys. Missing keys are absent
	// from the result.
	Get(ctx context.Context, keys ...string) (map[string]json.RawMessage, error)
	Set(ctx context.Context, items map[string]json.RawMessage) error
	Remove(ctx context.Context, keys ...string) error
	Close() error
}

// Kind selects an Area implementation.
type Kind string

const (
	KindMemory Kind = "memory"
	KindFile   Kind = "file"
	KindSQLite Kind = "sqlite"
)

// Open returns the Area of the given kind rooted at path. path is ignored for
// KindMemory.
func Open(kind Kind, path string) (Area, error) {
	switch kind {
	case KindMemory, "":
		return NewMemory(), nil
	case KindFile:
		return OpenFile(path)
	case KindSQLite:
		return OpenSQLite(path)
	default:
		return nil, fmt.Errorf("storage: unknown kind %q", kind)
	}
}

// Memory is an in-process Area. It stands in for persistent storage when
// none is available.
type Memory struct {
	mu    sync.RWMutex
	items map[string]json.RawMessage
}

// NewMemory returns an empty Memory area.
func NewMemory() *Memory {
	return &Memory{items: make(map[string]json.RawMessage)}
}

func (m *Memory) Get(ctx context.Context, keys ...string) (map[string]json.RawMessage, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make(map[string]json.RawMessage, len(keys))
	for _, k := range keys {
		if v, ok := m.items[k]; ok {
			out[k] = clone(v)
		}
	}
	return out, nil
}

func (m *Memory) Set(ctx context.Context, items map[string]json.RawMessage) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for k, v := range items {
		m.items[k] = clone(v)
	}
	return nil
}

func (m *Memory) Remove(ctx context.Context, keys ...string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, k := range keys {
		delete(m.items, k)
	}
	return nil
}

func (m *Memory) Close() error { return nil }

func clone(v json.RawMessage) json.RawMessage {
	out := make(json.RawMessage, len(v))
	copy(out, v)
	return out
}
