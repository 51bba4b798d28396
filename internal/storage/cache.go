package storage

import (
	"bytes"
	"context"
	"fmt"
	"sort"
)

// Cache buffers writes over a parent store. Reads see buffered writes first.
// Write flushes the buffer into the parent; dropping the Cache discards it.
type Cache struct {
	parent KV
	writes map[string][]byte
	// deleted marks keys removed in this layer.
	deleted map[string]struct{}
}

func NewCache(parent KV) *Cache {
	return &Cache{
		parent:  parent,
		writes:  make(map[string][]byte),
		deleted: make(map[string]struct{}),
	}
}

func (c *Cache) Get(ctx context.Context, key []byte) ([]byte, error) {
	k := string(key)
	if _, ok := c.deleted[k]; ok {
		return nil, nil
	}
	if v, ok := c.writes[k]; ok {
		return bytes.Clone(v), nil
	}
	return c.parent.Get(ctx, key)
}

func (c *Cache) Set(_ context.Context, key, value []byte) error {
	k := string(key)
	delete(c.deleted, k)
	c.writes[k] = bytes.Clone(value)
	return nil
}

func (c *Cache) Delete(_ context.Context, key []byte) error {
	k := string(key)
	delete(c.writes, k)
	c.deleted[k] = struct{}{}
	return nil
}

func (c *Cache) Iterate(ctx context.Context, prefix []byte, fn func(key, value []byte) error) error {
	merged := make(map[string][]byte)
	err := c.parent.Iterate(ctx, prefix, func(key, value []byte) error {
		merged[string(key)] = value
		return nil
	})
	if err != nil {
		return err
	}
	for k, v := range c.writes {
		if bytes.HasPrefix([]byte(k), prefix) {
			merged[k] = v
		}
	}
	for k := range c.deleted {
		delete(merged, k)
	}

	keys := make([]string, 0, len(merged))
	for k := range merged {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		if err := fn([]byte(k), bytes.Clone(merged[k])); err != nil {
			return stopped(err)
		}
	}
	return nil
}

// Mutations returns the buffered writes in key order.
func (c *Cache) Mutations() []Mutation {
	muts := make([]Mutation, 0, len(c.writes)+len(c.deleted))
	for k, v := range c.writes {
		muts = append(muts, Mutation{Key: []byte(k), Value: v})
	}
	for k := range c.deleted {
		muts = append(muts, Mutation{Key: []byte(k)})
	}
	sort.Slice(muts, func(i, j int) bool {
		return bytes.Compare(muts[i].Key, muts[j].Key) < 0
	})
	return muts
}

// Write flushes buffered writes into the parent and resets the layer.
func (c *Cache) Write(ctx context.Context) error {
	muts := c.Mutations()
	if len(muts) == 0 {
		return nil
	}
	if b, ok := c.parent.(Batcher); ok {
		if err := b.ApplyBatch(ctx, muts); err != nil {
			return fmt.Errorf("apply batch: %w", err)
		}
	} else {
		for _, mut := range muts {
			var err error
			if mut.Value == nil {
				err = c.parent.Delete(ctx, mut.Key)
			} else {
				err = c.parent.Set(ctx, mut.Key, mut.Value)
			}
			if err != nil {
				return fmt.Errorf("write %x: %w", mut.Key, err)
			}
		}
	}
	c.writes = make(map[string][]byte)
	c.deleted = make(map[string]struct{})
	return nil
}

// ApplyBatch lets a child cache flush into this layer in one step.
func (c *Cache) ApplyBatch(ctx context.Context, muts []Mutation) error {
	for _, mut := range muts {
		if mut.Value == nil {
			_ = c.Delete(ctx, mut.Key)
			continue
		}
		_ = c.Set(ctx, mut.Key, mut.Value)
	}
	return nil
}
