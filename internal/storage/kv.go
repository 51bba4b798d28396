package storage

import (
	"bytes"
	"context"
	"errors"
)

// ErrStopIteration may be returned by an Iterate callback to end the walk early
// without reporting an error.
var ErrStopIteration = errors.New("stop iteration")

// KV is an ordered byte key-value store. Get returns nil for a missing key.
type KV interface {
	Get(ctx context.Context, key []byte) ([]byte, error)
	Set(ctx context.Context, key, value []byte) error
	Delete(ctx context.Context, key []byte) error
	// Iterate visits every key with the given prefix in ascending order.
	Iterate(ctx context.Context, prefix []byte, fn func(key, value []byte) error) error
}

// Mutation is a single pending write; a nil Value deletes the key.
type Mutation struct {
	Key   []byte
	Value []byte
}

// Batcher is implemented by stores that can apply several mutations atomically.
type Batcher interface {
	ApplyBatch(ctx context.Context, muts []Mutation) error
}

// PrefixEnd returns the smallest key greater than every key with the prefix,
// or nil when no such key exists.
func PrefixEnd(prefix []byte) []byte {
	end := bytes.Clone(prefix)
	for i := len(end) - 1; i >= 0; i-- {
		if end[i] < 0xff {
			end[i]++
			return end[:i+1]
		}
	}
	return nil
}

func stopped(err error) error {
	if errors.Is(err, ErrStopIteration) {
		return nil
	}
	return err
}
