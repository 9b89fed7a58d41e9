package storage

import (
	"bytes"
	"sort"
)

type overlayEntry struct {
	value   []byte
	deleted bool
}

// Overlay buffers writes on top of a base Store. Reads observe buffered
// writes; nothing reaches the base until Commit. Discard drops the buffer.
type Overlay struct {
	base    Store
	entries map[string]overlayEntry
}

// NewOverlay stages mutations against base.
func NewOverlay(base Store) *Overlay {
	return &Overlay{base: base, entries: make(map[string]overlayEntry)}
}

func (o *Overlay) Get(key []byte) ([]byte, bool, error) {
	if entry, ok := o.entries[string(key)]; ok {
		if entry.deleted {
			return nil, false, nil
		}
		return append([]byte(nil), entry.value...), true, nil
	}
	return o.base.Get(key)
}

func (o *Overlay) Put(key []byte, value []byte) error {
	o.entries[string(key)] = overlayEntry{value: append([]byte(nil), value...)}
	return nil
}

func (o *Overlay) Delete(key []byte) error {
	o.entries[string(key)] = overlayEntry{deleted: true}
	return nil
}

// Iterate merges the base view with buffered writes, preserving key order.
func (o *Overlay) Iterate(prefix []byte, fn func(key, value []byte) (bool, error)) error {
	merged := make(map[string][]byte)
	err := o.base.Iterate(prefix, func(key, value []byte) (bool, error) {
		merged[string(key)] = value
		return true, nil
	})
	if err != nil {
		return err
	}
	for k, entry := range o.entries {
		if !bytes.HasPrefix([]byte(k), prefix) {
			continue
		}
		if entry.deleted {
			delete(merged, k)
			continue
		}
		merged[k] = entry.value
	}
	keys := make([]string, 0, len(merged))
	for k := range merged {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		more, err := fn([]byte(k), append([]byte(nil), merged[k]...))
		if err != nil {
			return err
		}
		if !more {
			return nil
		}
	}
	return nil
}

// Pending returns the number of buffered mutations.
func (o *Overlay) Pending() int {
	return len(o.entries)
}

// Commit flushes buffered mutations to the base in key order, atomically when
// the base supports batches.
func (o *Overlay) Commit() error {
	keys := make([]string, 0, len(o.entries))
	for k := range o.entries {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	ops := make([]Op, 0, len(keys))
	for _, k := range keys {
		entry := o.entries[k]
		ops = append(ops, Op{Key: []byte(k), Value: entry.value, Delete: entry.deleted})
	}
	if writer, ok := o.base.(batchWriter); ok {
		if err := writer.WriteBatch(ops); err != nil {
			return err
		}
	} else {
		for _, op := range ops {
			var err error
			if op.Delete {
				err = o.base.Delete(op.Key)
			} else {
				err = o.base.Put(op.Key, op.Value)
			}
			if err != nil {
				return err
			}
		}
	}
	o.Discard()
	return nil
}

// WriteBatch lets a nested overlay commit into this one.
func (o *Overlay) WriteBatch(ops []Op) error {
	for _, op := range ops {
		if op.Delete {
			o.entries[string(op.Key)] = overlayEntry{deleted: true}
			continue
		}
		o.entries[string(op.Key)] = overlayEntry{value: append([]byte(nil), op.Value...)}
	}
	return nil
}

// Discard drops every buffered mutation.
func (o *Overlay) Discard() {
	o.entries = make(map[string]overlayEntry)
}
