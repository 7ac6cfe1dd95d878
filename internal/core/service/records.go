package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/rl1809/dapr-shop/internal/port"
)

// casAttempts bounds the compare-and-swap loop of every conditional write.
const casAttempts = 5

// maxIndexLen caps every id index kept in the store.
const maxIndexLen = 100

var errRecordMissing = errors.New("record missing")

// records keeps entities of one kind in the state store and mirrors them in
// memory. When the store fails, reads and writes degrade to the mirror.
type records[T any] struct {
	store    port.StateStore
	logger   *zap.Logger
	prefix   string
	indexKey string
	idOf     func(T) string

	mu       sync.RWMutex
	fallback map[string]T
	known    []string
}

func newRecords[T any](store port.StateStore, logger *zap.Logger, prefix, indexKey string, idOf func(T) string) *records[T] {
	return &records[T]{
		store:    store,
		logger:   logger,
		prefix:   prefix,
		indexKey: indexKey,
		idOf:     idOf,
		fallback: make(map[string]T),
	}
}

func (r *records[T]) key(id string) string { return r.prefix + id }

func (r *records[T]) remember(v T) {
	id := r.idOf(v)
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.fallback[id]; !ok {
		r.known = append(r.known, id)
	}
	r.fallback[id] = v
}

func (r *records[T]) fromMemory(id string) (T, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	v, ok := r.fallback[id]
	return v, ok
}

// load returns the entity and its store version. versioned is false when the
// store could not be consulted, in which case the copy came from memory.
func (r *records[T]) load(ctx context.Context, id string) (v T, version string, versioned bool, err error) {
	item, err := r.store.Get(ctx, r.key(id))
	if err != nil {
		r.logger.Warn("state store read failed, using in-memory copy", zap.String("key", r.key(id)), zap.Error(err))
		mem, ok := r.fromMemory(id)
		if !ok {
			return v, "", false, errRecordMissing
		}
		return mem, "", false, nil
	}
	if item == nil {
		mem, ok := r.fromMemory(id)
		if !ok {
			return v, "", true, errRecordMissing
		}
		return mem, "", true, nil
	}
	if err := json.Unmarshal(item.Value, &v); err != nil {
		r.logger.Warn("stored record is unreadable, using in-memory copy", zap.String("key", r.key(id)), zap.Error(err))
		mem, ok := r.fromMemory(id)
		if !ok {
			return v, "", false, errRecordMissing
		}
		return mem, "", false, nil
	}
	return v, item.Version, true, nil
}

func (r *records[T]) get(ctx context.Context, id string) (T, bool) {
	v, _, _, err := r.load(ctx, id)
	return v, err == nil
}

// put writes v unconditionally and records it in the index.
func (r *records[T]) put(ctx context.Context, v T) {
	r.remember(v)
	id := r.idOf(v)
	data, err := json.Marshal(v)
	if err != nil {
		r.logger.Error("encode record", zap.String("id", id), zap.Error(err))
		return
	}
	if err := r.store.Save(ctx, r.key(id), data); err != nil {
		r.logger.Warn("state store write failed, kept in memory", zap.String("key", r.key(id)), zap.Error(err))
		return
	}
	if r.indexKey != "" {
		if err := appendIndex(ctx, r.store, r.indexKey, id, false); err != nil {
			r.logger.Warn("index update failed", zap.String("index", r.indexKey), zap.Error(err))
		}
	}
}

// seed stores v only if its key is absent.
func (r *records[T]) seed(ctx context.Context, v T) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	err = r.store.SaveIfVersion(ctx, r.key(r.idOf(v)), data, "")
	if errors.Is(err, port.ErrVersionConflict) {
		return nil
	}
	return err
}

// mutate applies fn to the current entity and writes it back with a
// compare-and-swap, retrying when another writer got there first. It returns
// the entity before and after fn.
func (r *records[T]) mutate(ctx context.Context, id string, fn func(*T) error) (before, after T, err error) {
	for attempt := 0; attempt < casAttempts; attempt++ {
		current, version, versioned, err := r.load(ctx, id)
		if err != nil {
			return before, after, err
		}
		if !versioned {
			return r.mutateInMemory(id, fn)
		}

		next := current
		if err := fn(&next); err != nil {
			return before, after, err
		}
		data, err := json.Marshal(next)
		if err != nil {
			return before, after, fmt.Errorf("encode record: %w", err)
		}

		err = r.store.SaveIfVersion(ctx, r.key(id), data, version)
		if errors.Is(err, port.ErrVersionConflict) {
			r.logger.Debug("concurrent write, retrying", zap.String("key", r.key(id)), zap.Int("attempt", attempt+1))
			continue
		}
		if err != nil {
			r.logger.Warn("state store write failed, applying in memory", zap.String("key", r.key(id)), zap.Error(err))
			return r.mutateInMemory(id, fn)
		}
		r.remember(next)
		return current, next, nil
	}
	return before, after, errConflict
}

var errConflict = errors.New("too many concurrent writers")

func (r *records[T]) mutateInMemory(id string, fn func(*T) error) (before, after T, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	current, ok := r.fallback[id]
	if !ok {
		return before, after, errRecordMissing
	}
	next := current
	if err := fn(&next); err != nil {
		return before, after, err
	}
	r.fallback[id] = next
	return current, next, nil
}

// ids lists the in-memory ids in insertion order followed by indexed ids the
// process has not seen yet.
func (r *records[T]) ids(ctx context.Context) []string {
	r.mu.RLock()
	out := append([]string(nil), r.known...)
	r.mu.RUnlock()

	if r.indexKey == "" {
		return out
	}
	indexed, err := readIndex(ctx, r.store, r.indexKey)
	if err != nil {
		r.logger.Warn("index read failed", zap.String("index", r.indexKey), zap.Error(err))
		return out
	}
	seen := make(map[string]bool, len(out))
	for _, id := range out {
		seen[id] = true
	}
	for _, id := range indexed {
		if !seen[id] {
			seen[id] = true
			out = append(out, id)
		}
	}
	return out
}

func (r *records[T]) all(ctx context.Context) []T {
	ids := r.ids(ctx)
	out := make([]T, 0, len(ids))
	for _, id := range ids {
		if v, ok := r.get(ctx, id); ok {
			out = append(out, v)
		}
	}
	return out
}

func readIndex(ctx context.Context, store port.StateStore, key string) ([]string, error) {
	ids, _, err := loadIndex(ctx, store, key)
	return ids, err
}

func loadIndex(ctx context.Context, store port.StateStore, key string) ([]string, string, error) {
	item, err := store.Get(ctx, key)
	if err != nil {
		return nil, "", err
	}
	if item == nil {
		return nil, "", nil
	}
	var ids []string
	if err := json.Unmarshal(item.Value, &ids); err != nil {
		return nil, "", fmt.Errorf("decode index %s: %w", key, err)
	}
	return ids, item.Version, nil
}

// appendIndex adds id to the index at key, newest last unless newestFirst.
// The list is capped at maxIndexLen, dropping the oldest ids.
func appendIndex(ctx context.Context, store port.StateStore, key, id string, newestFirst bool) error {
	for attempt := 0; attempt < casAttempts; attempt++ {
		ids, version, err := loadIndex(ctx, store, key)
		if err != nil {
			return err
		}
		for _, existing := range ids {
			if existing == id {
				return nil
			}
		}
		if newestFirst {
			ids = append([]string{id}, ids...)
			if len(ids) > maxIndexLen {
				ids = ids[:maxIndexLen]
			}
		} else {
			ids = append(ids, id)
			if len(ids) > maxIndexLen {
				ids = ids[len(ids)-maxIndexLen:]
			}
		}
		data, err := json.Marshal(ids)
		if err != nil {
			return err
		}
		err = store.SaveIfVersion(ctx, key, data, version)
		if errors.Is(err, port.ErrVersionConflict) {
			continue
		}
		return err
	}
	return errConflict
}
