package storage

import (
	"bytes"
	"context"
)

// Prefix namespaces every key of a parent store.
type Prefix struct {
	parent KV
	prefix []byte
}

func NewPrefix(parent KV, prefix []byte) *Prefix {
	return &Prefix{parent: parent, prefix: bytes.Clone(prefix)}
}

func (p *Prefix) key(k []byte) []byte {
	out := make([]byte, 0, len(p.prefix)+len(k))
	out = append(out, p.prefix...)
	return append(out, k...)
}

func (p *Prefix) Get(ctx context.Context, key []byte) ([]byte, error) {
	return p.parent.Get(ctx, p.key(key))
}

func (p *Prefix) Set(ctx context.Context, key, value []byte) error {
	return p.parent.Set(ctx, p.key(key), value)
}

func (p *Prefix) Delete(ctx context.Context, key []byte) error {
	return p.parent.Delete(ctx, p.key(key))
}

func (p *Prefix) Iterate(ctx context.Context, prefix []byte, fn func(key, value []byte) error) error {
	return p.parent.Iterate(ctx, p.key(prefix), func(key, value []byte) error {
		return fn(key[len(p.prefix):], value)
	})
}
