package cache

import (
	"context"
	"time"

	"github.com/GrayGhostDev/Midway-Cleaning-app-sub001/codec"
	"github.com/GrayGhostDev/Midway-Cleaning-app-sub001/kv"
)

// Entry is one value written by MSet.
type Entry struct {
	Key   string
	Value any
	// TTL of zero stores the entry without expiry.
	TTL time.Duration
}

// MGet fetches several keys in one round trip. The result has one slot per
// key; a miss is nil. If the batch fails as a whole every slot is nil.
func MGet[T any](ctx context.Context, m *Manager, keys ...string) []*T {
	out := make([]*T, len(keys))
	if len(keys) == 0 {
		return out
	}
	full := make([]string, len(keys))
	for i, k := range keys {
		full[i] = m.key(k)
	}
	vals, err := m.store.MGet(ctx, full...)
	if err != nil {
		m.log.Error("mget of %d key(s) failed: %s", len(keys), err)
		return out
	}
	dec := codec.Msgpack[T]()
	for i, data := range vals {
		if data == nil {
			continue
		}
		val, err := dec.Unmarshal(data)
		if err != nil {
			m.log.Error("mget %s: %s", keys[i], err)
			continue
		}
		out[i] = &val
	}
	return out
}

// MSet writes every entry in a single pipeline. Entries that cannot be
// encoded are skipped; a failed pipeline is logged and not retried.
func (m *Manager) MSet(ctx context.Context, entries ...Entry) {
	enc := codec.Msgpack[any]()
	ops := make([]kv.Op, 0, len(entries))
	for _, e := range entries {
		data, err := enc.Marshal(e.Value)
		if err != nil {
			m.log.Error("mset %s: %s", e.Key, err)
			continue
		}
		ops = append(ops, kv.SetOp(m.key(e.Key), data, e.TTL))
	}
	if err := m.store.Pipeline(ctx, ops...); err != nil {
		m.log.Error("mset of %d entries failed: %s", len(ops), err)
	}
}
